package importer

import (
	"fmt"
	"strings"

	"github.com/cataloghq/catalog-backend/internal/fieldpath"
	"github.com/cataloghq/catalog-backend/internal/types"
)

// Known collection fields and the sub-fields each item must carry to survive
// mapping. Items missing a required sub-field are stripped, not failed.
var collectionRequiredSubfields = map[string][]string{
	"gallery":           {"url"},
	"media":             {"url"},
	"documents":         {"url", "title"},
	"tags":              {"value"},
	"attributes":        {"code", "value"},
	"packaging_options": {"unit"},
}

// Fields that hold language-keyed text. A plain scalar arriving here is
// wrapped under the source's default language key.
var multilingualFields = []string{
	"name",
	"description",
	"short_description",
	"meta_title",
	"meta_description",
}

// MappedRow is the mapper output for one raw record.
type MappedRow struct {
	EntityCode string
	Data       map[string]any
	Raw        map[string]any
}

// Mapper turns raw feed records into normalized catalog payloads using a
// source's field-mapping table.
type Mapper struct {
	transforms *TransformRegistry
}

func NewMapper(transforms *TransformRegistry) *Mapper {
	if transforms == nil {
		transforms = NewTransformRegistry()
	}
	return &Mapper{transforms: transforms}
}

// MapRow applies the source mapping table to one raw record. Mapping entries
// with a missing external field are skipped; a failing transform fails the
// whole row (the caller records it as a row error).
func (m *Mapper) MapRow(raw map[string]any, source *types.ImportSource) (*MappedRow, error) {
	if raw == nil {
		return nil, fmt.Errorf("nil raw record")
	}
	if source == nil {
		return nil, fmt.Errorf("nil import source")
	}
	data := map[string]any{}
	for _, fm := range source.FieldMappings {
		if fm.Source == "" || fm.Target == "" {
			continue
		}
		val, ok := lookupRaw(raw, fm.Source)
		if !ok {
			continue
		}
		if fm.Transform != "" {
			tv, err := m.transforms.Apply(fm.Transform, val)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", fm.Source, err)
			}
			val = tv
		}
		if err := fieldpath.Set(data, fm.Target, val); err != nil {
			return nil, fmt.Errorf("field %q -> %q: %w", fm.Source, fm.Target, err)
		}
	}

	stripIncompleteCollectionItems(data)
	wrapMultilingualScalars(data, source.DefaultLanguage)

	return &MappedRow{
		EntityCode: resolveEntityCode(data, raw),
		Data:       data,
		Raw:        raw,
	}, nil
}

// lookupRaw reads an external field from the raw record. External names may
// themselves be dotted (API payloads nest).
func lookupRaw(raw map[string]any, field string) (any, bool) {
	if v, ok := raw[field]; ok {
		return v, true
	}
	if strings.Contains(field, ".") {
		return fieldpath.Get(raw, field)
	}
	return nil, false
}

// Resolution order: mapped entity_code, raw entity_code, raw sku, "".
func resolveEntityCode(data, raw map[string]any) string {
	if v, ok := fieldpath.Get(data, "entity_code"); ok {
		if s := strings.TrimSpace(toStr(v)); s != "" {
			return s
		}
	}
	for _, key := range []string{"entity_code", "sku"} {
		if v, ok := raw[key]; ok {
			if s := strings.TrimSpace(toStr(v)); s != "" {
				return s
			}
		}
	}
	return ""
}

func stripIncompleteCollectionItems(data map[string]any) {
	for field, required := range collectionRequiredSubfields {
		v, ok := data[field]
		if !ok {
			continue
		}
		arr, ok := v.([]any)
		if !ok {
			continue
		}
		kept := make([]any, 0, len(arr))
		for _, item := range arr {
			obj, ok := item.(map[string]any)
			if !ok {
				continue
			}
			complete := true
			for _, sub := range required {
				if sv, ok := obj[sub]; !ok || fieldpath.IsEmpty(sv) {
					complete = false
					break
				}
			}
			if complete {
				kept = append(kept, obj)
			}
		}
		data[field] = kept
	}
}

func wrapMultilingualScalars(data map[string]any, defaultLanguage string) {
	lang := strings.TrimSpace(defaultLanguage)
	if lang == "" {
		lang = "en"
	}
	for _, field := range multilingualFields {
		v, ok := data[field]
		if !ok || v == nil {
			continue
		}
		switch v.(type) {
		case map[string]any:
			// already language-keyed
		case []any:
			// not a text value, leave it alone
		default:
			data[field] = map[string]any{lang: v}
		}
	}
}

func toStr(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}
