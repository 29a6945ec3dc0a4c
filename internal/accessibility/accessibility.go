// Package accessibility implements the two-step floating catchment area
// (2SFCA) computation: supply-to-demand ratios per supply unit, spread back
// to every unit through the distance-decay weight matrix.
package accessibility

import (
	"context"
	"math"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/sells-group/access-cli/internal/frame"
	"github.com/sells-group/access-cli/internal/model"
	"github.com/sells-group/access-cli/internal/weights"
)

// Options controls a computation.
type Options struct {
	// Categories restricts the supply columns processed. Empty means all
	// columns, in table order.
	Categories []string
	// Workers is the number of categories computed concurrently. Values below
	// 2 compute sequentially.
	Workers int
}

// Result holds the per-category outputs of one computation. All tables are
// keyed like the weight matrix and carry one column per category.
type Result struct {
	Scores    *frame.Table
	Catchment *frame.Table
	Ratios    *frame.Table
	// Degenerate lists supply units whose catchment holds no demand, with
	// +Inf ratio and score, followed by the units in reach of them, whose
	// score is +Inf too and whose entry names the supply unit as Source.
	Degenerate []model.DegenerateRatio
}

// IsDegenerate reports whether the (unit, category) cell is a sentinel.
func (r *Result) IsDegenerate(unit, category string) bool {
	for _, d := range r.Degenerate {
		if d.Unit == unit && d.Category == category {
			return true
		}
	}
	return false
}

// Categories returns the category names in output order.
func (r *Result) Categories() []string { return r.Scores.Columns() }

type column struct {
	catchment  []float64
	ratios     []float64
	scores     []float64
	degenerate []model.DegenerateRatio
}

// Compute runs 2SFCA for every category column of supply.
//
// supply must cover exactly the matrix key set (it is reordered to matrix
// order when needed) and demand must be aligned to the matrix keys. Negative
// or NaN inputs are a SchemaError.
func Compute(ctx context.Context, w *weights.Matrix, supply *frame.Table, demand []float64, opts Options) (*Result, error) {
	if w == nil || supply == nil {
		return nil, model.NewConfigurationError("accessibility", "weight matrix and supply table are required")
	}
	keys := w.Keys()
	if len(demand) != len(keys) {
		return nil, model.NewSchemaError("demand", "demand has %d values for %d units", len(demand), len(keys))
	}
	for i, d := range demand {
		if math.IsNaN(d) || math.IsInf(d, 0) || d < 0 {
			return nil, &model.SchemaError{Table: "demand", Unit: keys[i], Reason: "demand must be a finite non-negative number"}
		}
	}

	aligned, err := supply.Align(keys)
	if err != nil {
		return nil, err
	}

	categories := opts.Categories
	if len(categories) == 0 {
		categories = aligned.Columns()
	}
	if len(categories) == 0 {
		return nil, model.NewSchemaError(supply.Name(), "no supply columns")
	}

	inputs := make([][]float64, len(categories))
	for c, name := range categories {
		col, err := aligned.RequireColumn(name)
		if err != nil {
			return nil, err
		}
		for i, s := range col {
			if math.IsNaN(s) || math.IsInf(s, 0) || s < 0 {
				return nil, &model.SchemaError{
					Table:  supply.Name(),
					Column: name,
					Unit:   keys[i],
					Reason: "supply must be a finite non-negative number",
				}
			}
		}
		inputs[c] = col
	}

	cols := make([]column, len(categories))
	if opts.Workers < 2 {
		for c, name := range categories {
			if err := ctx.Err(); err != nil {
				return nil, eris.Wrap(err, "accessibility: compute cancelled")
			}
			cols[c] = computeColumn(w, name, inputs[c], demand)
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(opts.Workers)
		for c, name := range categories {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				cols[c] = computeColumn(w, name, inputs[c], demand)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, eris.Wrap(err, "accessibility: compute cancelled")
		}
	}

	res := &Result{
		Scores:    frame.MustNew("accessibility", keys),
		Catchment: frame.MustNew("catchment", keys),
		Ratios:    frame.MustNew("ratio", keys),
	}
	for c, name := range categories {
		if err := res.Scores.AddColumn(name, cols[c].scores); err != nil {
			return nil, err
		}
		if err := res.Catchment.AddColumn(name, cols[c].catchment); err != nil {
			return nil, err
		}
		if err := res.Ratios.AddColumn(name, cols[c].ratios); err != nil {
			return nil, err
		}
		res.Degenerate = append(res.Degenerate, cols[c].degenerate...)
	}

	for _, d := range res.Degenerate {
		zap.L().Warn("accessibility: degenerate ratio",
			zap.String("unit", d.Unit),
			zap.String("category", d.Category),
			zap.Float64("supply", d.Supply),
			zap.String("source", d.Source),
		)
	}
	zap.L().Debug("accessibility: computed",
		zap.Int("units", len(keys)),
		zap.Int("categories", len(categories)),
		zap.Int("degenerate", len(res.Degenerate)),
	)
	return res, nil
}

// computeColumn runs both stages for one category.
func computeColumn(w *weights.Matrix, category string, supply, demand []float64) column {
	n := w.Len()
	col := column{
		catchment: CatchmentDemand(w, demand),
		ratios:    make([]float64, n),
	}

	// Degenerate ratios are masked out of the product and restored as
	// sentinels afterwards.
	masked := make([]float64, n)
	for j := range n {
		switch {
		case supply[j] == 0:
		case col.catchment[j] == 0:
			col.ratios[j] = math.Inf(1)
			col.degenerate = append(col.degenerate, model.DegenerateRatio{
				Unit:     w.Key(j),
				Category: category,
				Supply:   supply[j],
			})
		default:
			col.ratios[j] = supply[j] / col.catchment[j]
			masked[j] = col.ratios[j]
		}
	}

	var scores mat.VecDense
	scores.MulVec(w.Dense(), mat.NewVecDense(n, masked))
	col.scores = scores.RawVector().Data

	// A degenerate supply unit is in reach of every unit i with W(i,j) > 0.
	// Those units hold no demand themselves, so they get the sentinel too and
	// are flagged with the supply unit as source.
	flagged := make(map[int]bool, len(col.degenerate))
	for _, d := range col.degenerate {
		j, _ := w.Index(d.Unit)
		flagged[j] = true
	}
	sources := col.degenerate
	for _, d := range sources {
		j, _ := w.Index(d.Unit)
		col.scores[j] = math.Inf(1)
		for i := range n {
			if i == j || w.At(i, j) == 0 {
				continue
			}
			col.scores[i] = math.Inf(1)
			if flagged[i] {
				continue
			}
			flagged[i] = true
			col.degenerate = append(col.degenerate, model.DegenerateRatio{
				Unit:     w.Key(i),
				Category: category,
				Supply:   d.Supply,
				Source:   d.Unit,
			})
		}
	}
	return col
}

// CatchmentDemand is stage one: for every unit j, the weighted demand
// within reach, sum over i of W(i,j) * demand(i).
func CatchmentDemand(w *weights.Matrix, demand []float64) []float64 {
	var out mat.VecDense
	out.MulVec(w.Dense().T(), mat.NewVecDense(w.Len(), demand))
	return out.RawVector().Data
}
