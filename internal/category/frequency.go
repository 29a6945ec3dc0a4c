package category

import (
	"cmp"
	"slices"

	"github.com/sells-group/access-cli/internal/model"
)

// TagCount is one row of a tag frequency report.
type TagCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// Frequencies tallies the values of tag key across pois. Compound values are
// split with SplitCompound and every distinct sub-value gets a full count, so
// "italian;pizza" adds one to both italian and pizza. Results are sorted by
// count, highest first, then by value.
func Frequencies(pois []model.POI, key, delim string) []TagCount {
	tally := make(map[string]int)
	for _, p := range pois {
		for _, v := range SplitCompound(p.Tag(key), delim) {
			tally[v]++
		}
	}
	out := make([]TagCount, 0, len(tally))
	for v, n := range tally {
		out = append(out, TagCount{Value: v, Count: n})
	}
	slices.SortFunc(out, func(a, b TagCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Value, b.Value)
	})
	return out
}

// CategoryTotals counts matching POIs per category over the whole input,
// ignoring location. The last entry is the total across categories.
func CategoryTotals(pois []model.POI, cat Catalog) []TagCount {
	m := cat.matcher()
	names := cat.Names()
	counts := make([]int, len(names))
	for _, p := range pois {
		for _, c := range m.match(p) {
			counts[c]++
		}
	}
	out := make([]TagCount, 0, len(names)+1)
	total := 0
	for i, n := range names {
		out = append(out, TagCount{Value: n, Count: counts[i]})
		total += counts[i]
	}
	return append(out, TagCount{Value: TotalColumn, Count: total})
}
