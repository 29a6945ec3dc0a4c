package pipeline

import (
	"math"

	"github.com/sells-group/access-cli/internal/accessibility"
	"github.com/sells-group/access-cli/internal/frame"
	"github.com/sells-group/access-cli/internal/model"
)

// Summarize describes each scored category: total supply, units holding
// supply, and the range and mean of finite scores. Degenerate cells are
// listed separately and excluded from the statistics.
func Summarize(res *accessibility.Result, supply *frame.Table) (*model.RunSummary, error) {
	summary := &model.RunSummary{
		Units:      res.Scores.Len(),
		Degenerate: res.Degenerate,
	}
	for _, c := range res.Categories() {
		s, err := supply.RequireColumn(c)
		if err != nil {
			return nil, err
		}
		cs := model.CategorySummary{Category: c}
		for _, v := range s {
			cs.TotalSupply += v
			if v > 0 {
				cs.SupplyUnits++
			}
		}

		scores, _ := res.Scores.Column(c)
		cs.Min, cs.Max = math.Inf(1), math.Inf(-1)
		var sum float64
		var n int
		for i, v := range scores {
			if res.IsDegenerate(res.Scores.Key(i), c) || math.IsInf(v, 0) || math.IsNaN(v) {
				continue
			}
			cs.Min = min(cs.Min, v)
			cs.Max = max(cs.Max, v)
			sum += v
			n++
		}
		if n == 0 {
			cs.Min, cs.Max = 0, 0
		} else {
			cs.Mean = sum / float64(n)
		}
		summary.Categories = append(summary.Categories, cs)
	}
	return summary, nil
}
