package models

import "strings"

// nullLike holds the lowercased default missing-value markers of pandas' read_csv,
// which spreadsheet exports commonly carry. It includes FailureMarker, so a previous
// run's output fed back as input never yields failed rows as entities.
var nullLike = map[string]struct{}{
	"":         {},
	"#n/a":     {},
	"#n/a n/a": {},
	"#na":      {},
	"-1.#ind":  {},
	"-1.#qnan": {},
	"-nan":     {},
	"1.#ind":   {},
	"1.#qnan":  {},
	"<na>":     {},
	"n/a":      {},
	"na":       {},
	"nan":      {},
	"null":     {},
	"none":     {},
}

// IsNullLike reports whether a cell value should be treated as missing.
func IsNullLike(s string) bool {
	_, ok := nullLike[strings.ToLower(strings.TrimSpace(s))]
	return ok
}

// DistinctEntities returns the distinct non-null values in first-occurrence order.
// Values are trimmed before comparison.
func DistinctEntities(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if IsNullLike(v) {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
