package category

import (
	"slices"
	"strings"

	"golang.org/x/text/cases"
)

// SplitCompound normalizes a free-text tag value that may hold several
// sub-values joined by delim, such as "italian;pizza". Sub-values are
// trimmed and case-folded. Empty parts and repeats are dropped, so
// "Pizza; pizza;" yields ["pizza"]. An empty delim splits nothing.
func SplitCompound(value, delim string) []string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	parts := []string{value}
	if delim != "" {
		parts = strings.Split(value, delim)
	}

	fold := cases.Fold()
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = fold.String(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if !slices.Contains(out, p) {
			out = append(out, p)
		}
	}
	return out
}
