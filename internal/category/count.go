package category

import (
	"math"

	"github.com/paulmach/orb"
	"go.uber.org/zap"

	"github.com/sells-group/access-cli/internal/frame"
	"github.com/sells-group/access-cli/internal/geo"
	"github.com/sells-group/access-cli/internal/model"
)

// SupplyTable is the name given to tables produced by Count.
const SupplyTable = "supply"

// CountOptions tunes Count and CountNearest.
type CountOptions struct {
	// Total appends a column holding the sum of every category column.
	Total bool
}

// Count builds the supply table: one row per region, one column per
// category, each cell the number of POIs in the region carrying a tag value
// of the category. A POI matching several categories counts once in each.
// A POI is attributed to the first region, in region order, that contains
// it, so POIs on a shared edge or in overlapping regions are not counted
// twice.
func Count(regions []model.Region, pois []model.POI, cat Catalog, opts CountOptions) (*frame.Table, error) {
	if err := cat.Validate(); err != nil {
		return nil, err
	}
	keys := make([]string, len(regions))
	bounds := make([]orb.Bound, len(regions))
	for i, r := range regions {
		keys[i] = r.ID
		if r.Geometry == nil {
			return nil, &model.SchemaError{Table: "regions", Unit: r.ID, Reason: "region has no geometry"}
		}
		bounds[i] = r.Geometry.Bound()
	}
	tbl, err := frame.New(SupplyTable, keys)
	if err != nil {
		return nil, err
	}

	m := cat.matcher()
	counts := newCounts(len(cat.Categories), len(regions))
	matched, placed := 0, 0
	for _, p := range pois {
		hits := m.match(p)
		if len(hits) == 0 || !geo.ValidPoint(p.Point) {
			continue
		}
		matched++
		for r := range regions {
			if !bounds[r].Contains(p.Point) || !geo.Contains(regions[r].Geometry, p.Point) {
				continue
			}
			for _, c := range hits {
				counts[c][r]++
			}
			placed++
			break
		}
	}

	zap.L().Debug("category: counted pois",
		zap.Int("regions", len(regions)),
		zap.Int("pois", len(pois)),
		zap.Int("matched", matched),
		zap.Int("placed", placed),
	)
	return fill(tbl, cat, counts, opts)
}

// CountNearest is Count for point units: each matching POI goes to the unit
// whose centroid is nearest, provided it lies within maxDistance. Ties go to
// the unit listed first.
func CountNearest(units []model.SpatialUnit, pois []model.POI, cat Catalog, maxDistance float64, metric geo.Metric, opts CountOptions) (*frame.Table, error) {
	if err := cat.Validate(); err != nil {
		return nil, err
	}
	if math.IsNaN(maxDistance) || maxDistance <= 0 {
		return nil, model.NewConfigurationError("max_distance", "must be positive, got %g", maxDistance)
	}
	keys := make([]string, len(units))
	for i, u := range units {
		keys[i] = u.ID
		if !geo.ValidPoint(u.Centroid) {
			return nil, &model.SchemaError{Table: "units", Unit: u.ID, Reason: "unit has no valid reference point"}
		}
	}
	tbl, err := frame.New(SupplyTable, keys)
	if err != nil {
		return nil, err
	}

	m := cat.matcher()
	counts := newCounts(len(cat.Categories), len(units))
	for _, p := range pois {
		hits := m.match(p)
		if len(hits) == 0 || !geo.ValidPoint(p.Point) {
			continue
		}
		best, bestD := -1, math.Inf(1)
		for u := range units {
			d := geo.Distance(metric, units[u].Centroid, p.Point)
			if d <= maxDistance && d < bestD {
				best, bestD = u, d
			}
		}
		if best < 0 {
			continue
		}
		for _, c := range hits {
			counts[c][best]++
		}
	}
	return fill(tbl, cat, counts, opts)
}

func newCounts(categories, rows int) [][]float64 {
	counts := make([][]float64, categories)
	for i := range counts {
		counts[i] = make([]float64, rows)
	}
	return counts
}

func fill(tbl *frame.Table, cat Catalog, counts [][]float64, opts CountOptions) (*frame.Table, error) {
	names := cat.Names()
	for i, name := range names {
		if err := tbl.AddColumn(name, counts[i]); err != nil {
			return nil, err
		}
	}
	if opts.Total {
		total, err := tbl.RowSum(names...)
		if err != nil {
			return nil, err
		}
		if err := tbl.AddColumn(TotalColumn, total); err != nil {
			return nil, err
		}
	}
	return tbl, nil
}
