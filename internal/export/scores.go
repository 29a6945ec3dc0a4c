package export

import (
	"math"

	"github.com/sells-group/access-cli/internal/frame"
	"github.com/sells-group/access-cli/internal/model"
)

// Scores flattens a score table into store rows, category-major. Non-finite
// cells become degenerate rows without a value.
func Scores(runID string, tbl *frame.Table) []model.Score {
	cols := tbl.Columns()
	out := make([]model.Score, 0, len(cols)*tbl.Len())
	for _, c := range cols {
		for i := range tbl.Len() {
			s := model.Score{RunID: runID, UnitID: tbl.Key(i), Category: c}
			v := tbl.At(i, c)
			if math.IsInf(v, 0) || math.IsNaN(v) {
				s.Degenerate = true
			} else {
				s.Value = &v
			}
			out = append(out, s)
		}
	}
	return out
}

// ScoreTable rebuilds a unit-by-category table from stored scores, keeping
// first-seen unit and category order. Degenerate rows load as +Inf.
func ScoreTable(name string, scores []model.Score) (*frame.Table, error) {
	var units, cats []string
	unitIdx := map[string]int{}
	catIdx := map[string]int{}
	for _, s := range scores {
		if _, ok := unitIdx[s.UnitID]; !ok {
			unitIdx[s.UnitID] = len(units)
			units = append(units, s.UnitID)
		}
		if _, ok := catIdx[s.Category]; !ok {
			catIdx[s.Category] = len(cats)
			cats = append(cats, s.Category)
		}
	}

	values := make([][]float64, len(cats))
	for c := range values {
		values[c] = make([]float64, len(units))
		for i := range values[c] {
			values[c][i] = math.NaN()
		}
	}
	for _, s := range scores {
		v := math.Inf(1)
		if s.Value != nil {
			v = *s.Value
		}
		values[catIdx[s.Category]][unitIdx[s.UnitID]] = v
	}

	tbl, err := frame.New(name, units)
	if err != nil {
		return nil, err
	}
	for c, cat := range cats {
		if err := tbl.AddColumn(cat, values[c]); err != nil {
			return nil, err
		}
	}
	return tbl, nil
}
