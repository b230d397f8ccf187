package core

import "strings"

// SplitLabels tokenizes a raw comma-separated label string.
//
// Each token is trimmed of surrounding whitespace. Tokens that are empty after
// trimming (trailing commas, all-whitespace entries) are dropped rather than
// resolved to an empty-named label. Duplicate tokens collapse to a single
// occurrence, preserving first-seen order.
//
// Examples:
//
//	SplitLabels("food, drink")   -> ["food", "drink"]
//	SplitLabels("food,,food, ")  -> ["food"]
//	SplitLabels("")              -> nil
func SplitLabels(raw string) []string {
	var names []string
	seen := make(map[string]struct{})
	for _, tok := range strings.Split(raw, ",") {
		name := strings.TrimSpace(tok)
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names
}
