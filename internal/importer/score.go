package importer

import (
	"math"
	"sort"

	"github.com/cataloghq/catalog-backend/internal/fieldpath"
)

// Weighted completeness checks. The caps sum to exactly 100 so the clamp in
// Score only guards against future weight edits.
const (
	scoreNameMax       = 15
	scoreDescMax       = 10
	scoreBrandMax      = 10
	scoreCategoryMax   = 10
	scoreImageMax      = 15
	scoreMultiImageMax = 5
	scoreFeaturesMax   = 25
	scoreFeaturesPer   = 5
	scorePackagingMax  = 10
	shortNameLength    = 10
	shortDescLength    = 30
)

// ScoreBreakdownEntry reports one check for diagnostics.
type ScoreBreakdownEntry struct {
	Current    int     `json:"current"`
	Max        int     `json:"max"`
	Percentage float64 `json:"percentage"`
}

type scoreCheck struct {
	field   string
	current int
	max     int
	issue   string
}

// Score computes the 0-100 completeness score for a catalog payload. Pure
// function, no side effects.
func Score(data map[string]any) int {
	total := 0
	for _, c := range runChecks(data) {
		total += c.current
	}
	if total < 0 {
		return 0
	}
	if total > 100 {
		return 100
	}
	return total
}

// CriticalIssues returns the failing checks in prose form, suitable for the
// product version's critical_issues list.
func CriticalIssues(data map[string]any) []string {
	var issues []string
	for _, c := range runChecks(data) {
		if c.current < c.max && c.issue != "" {
			issues = append(issues, c.issue)
		}
	}
	return issues
}

// ScoreBreakdown reports per-field current/max/percentage.
func ScoreBreakdown(data map[string]any) map[string]ScoreBreakdownEntry {
	out := make(map[string]ScoreBreakdownEntry)
	for _, c := range runChecks(data) {
		pct := 0.0
		if c.max > 0 {
			pct = math.Round(float64(c.current)/float64(c.max)*1000) / 10
		}
		out[c.field] = ScoreBreakdownEntry{Current: c.current, Max: c.max, Percentage: pct}
	}
	return out
}

func runChecks(data map[string]any) []scoreCheck {
	name := textValue(data["name"])
	desc := textValue(data["description"])

	checks := []scoreCheck{
		{
			field:   "name",
			current: lengthScore(name, shortNameLength, scoreNameMax),
			max:     scoreNameMax,
			issue:   "Missing or too short product name",
		},
		{
			field:   "description",
			current: lengthScore(desc, shortDescLength, scoreDescMax),
			max:     scoreDescMax,
			issue:   "Missing or too short product description",
		},
		{
			field:   "brand",
			current: presenceScore(data, scoreBrandMax, "brand", "brand.name"),
			max:     scoreBrandMax,
			issue:   "Missing brand information",
		},
		{
			field:   "category",
			current: presenceScore(data, scoreCategoryMax, "category", "categories"),
			max:     scoreCategoryMax,
			issue:   "Missing category assignment",
		},
		{
			field:   "primary_image",
			current: presenceScore(data, scoreImageMax, "gallery.0.url", "image"),
			max:     scoreImageMax,
			issue:   "Missing primary product image",
		},
		{
			field:   "additional_images",
			current: multiImageScore(data),
			max:     scoreMultiImageMax,
			issue:   "Only one product image",
		},
		{
			field:   "features",
			current: featuresScore(data),
			max:     scoreFeaturesMax,
			issue:   "Missing or incomplete marketing feature list",
		},
		{
			field:   "packaging",
			current: presenceScore(data, scorePackagingMax, "packaging_options.0"),
			max:     scorePackagingMax,
			issue:   "Missing packaging options",
		},
	}
	return checks
}

func lengthScore(text string, shortLen, max int) int {
	if text == "" {
		return 0
	}
	if len(text) < shortLen {
		return max / 2
	}
	return max
}

func presenceScore(data map[string]any, max int, paths ...string) int {
	for _, p := range paths {
		if v, ok := fieldpath.Get(data, p); ok && !fieldpath.IsEmpty(v) {
			return max
		}
	}
	return 0
}

func multiImageScore(data map[string]any) int {
	if arr, ok := data["gallery"].([]any); ok && len(arr) >= 2 {
		return scoreMultiImageMax
	}
	return 0
}

func featuresScore(data map[string]any) int {
	arr, ok := data["features"].([]any)
	if !ok {
		return 0
	}
	n := 0
	for _, item := range arr {
		if !fieldpath.IsEmpty(item) {
			n++
		}
	}
	if n > scoreFeaturesMax/scoreFeaturesPer {
		n = scoreFeaturesMax / scoreFeaturesPer
	}
	return n * scoreFeaturesPer
}

// textValue unwraps language-keyed text fields: a map takes the first
// non-empty translation in sorted key order so the same payload always scores
// the same, anything else stringifies.
func textValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if s, ok := t[k].(string); ok && s != "" {
				return s
			}
		}
		return ""
	default:
		return toStr(t)
	}
}
