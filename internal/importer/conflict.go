package importer

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/cataloghq/catalog-backend/internal/fieldpath"
	"github.com/cataloghq/catalog-backend/internal/types"
)

// ConflictResult is the detector output. MergedData starts as a deep copy of
// the incoming payload; under the manual overwrite policy, conflicting fields
// are rewritten back to the prior manual value.
type ConflictResult struct {
	HasConflicts bool
	Conflicts    []types.ConflictEntry
	MergedData   map[string]any
	SkippedPaths []string
}

// DetectConflicts compares incoming data against the fields a human edited on
// the prior version. Under overwrite_level=automatic detection is skipped
// entirely; under manual, the manual value wins at every diverging path and an
// audit entry is recorded.
func DetectConflicts(prior *types.ProductVersion, incoming map[string]any, overwriteLevel string, now time.Time) (*ConflictResult, error) {
	merged, err := deepCopyMap(incoming)
	if err != nil {
		return nil, err
	}
	res := &ConflictResult{MergedData: merged}

	if prior == nil || len(prior.ManuallyEditedFields) == 0 {
		return res, nil
	}
	if overwriteLevel == types.OverwriteAutomatic {
		return res, nil
	}

	priorData, err := decodePayload(prior.Data)
	if err != nil {
		return nil, err
	}

	// Deterministic ordering of the audit trail regardless of how the field
	// set was stored.
	fields := append([]string(nil), prior.ManuallyEditedFields...)
	sort.Strings(fields)

	for _, field := range fields {
		apiVal, ok := fieldpath.Get(merged, field)
		if !ok {
			continue
		}
		manualVal, _ := fieldpath.Get(priorData, field)
		if fieldpath.Equal(manualVal, apiVal) {
			continue
		}
		res.HasConflicts = true
		res.Conflicts = append(res.Conflicts, types.ConflictEntry{
			Field:       field,
			ManualValue: manualVal,
			APIValue:    apiVal,
			DetectedAt:  now,
		})
		res.SkippedPaths = append(res.SkippedPaths, field)
		if err := fieldpath.Set(merged, field, manualVal); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// ApplyLockedFields copies the prior version's value at every locked path into
// merged, overwriting whatever conflict resolution produced. Locking is a
// stronger guarantee than conflict handling and is applied after it.
func ApplyLockedFields(prior *types.ProductVersion, merged map[string]any) error {
	if prior == nil || len(prior.LockedFields) == 0 {
		return nil
	}
	priorData, err := decodePayload(prior.Data)
	if err != nil {
		return err
	}
	locked := append([]string(nil), prior.LockedFields...)
	sort.Strings(locked)
	for _, path := range locked {
		val, ok := fieldpath.Get(priorData, path)
		if !ok {
			continue
		}
		if err := fieldpath.Set(merged, path, val); err != nil {
			return err
		}
	}
	return nil
}

func decodePayload(raw []byte) (map[string]any, error) {
	if len(raw) == 0 {
		return map[string]any{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	if m == nil {
		m = map[string]any{}
	}
	return m, nil
}

// deepCopyMap round-trips through JSON so merged mutations never alias the
// caller's payload, and values are normalized to JSON shapes.
func deepCopyMap(in map[string]any) (map[string]any, error) {
	if in == nil {
		return map[string]any{}, nil
	}
	b, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}
