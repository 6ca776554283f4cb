package importer

import (
	"fmt"
	"math"
	"strings"

	"github.com/cataloghq/catalog-backend/internal/fieldpath"
	"github.com/cataloghq/catalog-backend/internal/types"
)

// PublishDecision is the outcome of the auto-publish rule chain.
type PublishDecision struct {
	Eligible bool   `json:"eligible"`
	Reason   string `json:"reason"`
}

// EvaluateAutoPublish runs the short-circuiting rule chain deciding whether a
// freshly imported version may skip manual review:
//
//  1. the source must allow auto-publish,
//  2. manual edits with locked fields must never be published over silently,
//  3. the score must meet the source threshold (inclusive),
//  4. every required field must be present and non-empty.
func EvaluateAutoPublish(source *types.ImportSource, prior *types.ProductVersion, data map[string]any, score int) PublishDecision {
	if source == nil || !source.AutoPublishEnabled {
		return PublishDecision{Eligible: false, Reason: "auto-publish disabled for source"}
	}
	if prior != nil && prior.ManuallyEdited && len(prior.LockedFields) > 0 {
		return PublishDecision{Eligible: false, Reason: "product has manual edits with locked fields"}
	}
	if score < source.MinScoreThreshold {
		return PublishDecision{
			Eligible: false,
			Reason:   fmt.Sprintf("score %d below threshold %d", score, source.MinScoreThreshold),
		}
	}
	var missing []string
	for _, field := range source.RequiredFields {
		v, ok := fieldpath.Get(data, field)
		if !ok || fieldpath.IsEmpty(v) {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return PublishDecision{
			Eligible: false,
			Reason:   "missing required fields: " + strings.Join(missing, ", "),
		}
	}
	return PublishDecision{
		Eligible: true,
		Reason:   fmt.Sprintf("score %d meets threshold %d, all required fields present", score, source.MinScoreThreshold),
	}
}

// PriorityScore ranks products for improvement work: high traffic with low
// completeness ranks highest. Not a publish gate.
func PriorityScore(views30d int, completenessScore int) float64 {
	raw := float64(views30d) / 100.0 * float64(100-completenessScore) / 100.0
	return math.Round(raw*10) / 10
}
