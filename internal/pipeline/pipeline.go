// Package pipeline runs one accessibility analysis end to end: load units
// and supply, build weights and demand, compute 2SFCA scores, then persist
// and export the result.
package pipeline

import (
	"context"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/access-cli/internal/accessibility"
	"github.com/sells-group/access-cli/internal/category"
	"github.com/sells-group/access-cli/internal/dataset"
	"github.com/sells-group/access-cli/internal/demand"
	"github.com/sells-group/access-cli/internal/export"
	"github.com/sells-group/access-cli/internal/frame"
	"github.com/sells-group/access-cli/internal/model"
	"github.com/sells-group/access-cli/internal/store"
	"github.com/sells-group/access-cli/internal/weights"
)

// Attribution selects how POIs are assigned to units.
type Attribution string

const (
	// AttributionContain counts POIs inside each unit polygon.
	AttributionContain Attribution = "contain"
	// AttributionNearest assigns each POI to the nearest unit centroid.
	AttributionNearest Attribution = "nearest"
)

// Options describes one run.
type Options struct {
	Name string

	UnitsPath string
	Units     dataset.UnitOptions

	// SupplyPath is a precomputed supply table. When empty, supply is
	// counted from POIPath with Catalog.
	SupplyPath      string
	POIPath         string
	POIs            dataset.POIOptions
	Catalog         category.Catalog
	Attribution     Attribution
	NearestDistance float64
	Total           bool

	// Categories restricts the supply columns scored. Empty scores all.
	Categories []string

	// WeightsPath is a precomputed matrix. When empty, the matrix is built
	// from unit centroids with Weights.
	WeightsPath string
	Weights     weights.Config
	Profile     demand.Profile
	Workers     int

	OutputPath       string
	MatrixOutputPath string
	DemandOutputPath string
	SaveUnits        bool
}

// Stage records the duration of one step of a run.
type Stage struct {
	Name       string `json:"name"`
	DurationMs int64  `json:"duration_ms"`
}

// Result is the in-memory outcome of a run.
type Result struct {
	RunID   string
	Units   []model.SpatialUnit
	Supply  *frame.Table
	Weights *weights.Matrix
	Demand  []float64
	// DemandTable is Demand as a one-column table keyed like Weights.
	DemandTable *frame.Table
	Access      *accessibility.Result
	Summary     *model.RunSummary
	Stages      []Stage
}

// Pipeline runs analyses. The store is optional; without one, runs are not
// recorded.
type Pipeline struct {
	loader *dataset.Loader
	store  store.Store
}

// New creates a Pipeline.
func New(loader *dataset.Loader, st store.Store) *Pipeline {
	return &Pipeline{loader: loader, store: st}
}

func (o Options) validate() error {
	if o.UnitsPath == "" {
		return model.NewConfigurationError("units", "a units file is required")
	}
	if o.SupplyPath == "" && o.POIPath == "" {
		return model.NewConfigurationError("supply", "either a supply table or a POI file is required")
	}
	if o.SupplyPath == "" {
		switch o.Attribution {
		case AttributionContain, "":
		case AttributionNearest:
			if o.NearestDistance <= 0 {
				return model.NewConfigurationError("nearest_distance", "must be positive, got %g", o.NearestDistance)
			}
		default:
			return model.NewConfigurationError("attribution", "unknown attribution %q", o.Attribution)
		}
	}
	if o.WeightsPath == "" {
		if err := o.Weights.Validate(); err != nil {
			return err
		}
	}
	return o.Profile.Validate()
}

func (o Options) params() model.RunParams {
	return model.RunParams{
		Name:       o.Name,
		UnitsPath:  o.UnitsPath,
		SupplyPath: o.SupplyPath,
		POIPath:    o.POIPath,
		Categories: o.Categories,
		Threshold:  o.Weights.Threshold,
		Metric:     string(o.Weights.Metric),
		Kernel:     string(o.Weights.Kernel),
		Profile:    o.Profile,
	}
}

// Run executes one analysis. Schema and configuration errors abort the run;
// when a store is configured the run record is marked failed with the
// error text.
func (p *Pipeline) Run(ctx context.Context, opts Options) (*Result, error) {
	log := zap.L().With(zap.String("run", opts.Name))
	start := time.Now()

	if opts.Profile == nil {
		opts.Profile = demand.DefaultProfile()
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}

	result := &Result{}
	if p.store != nil {
		run, err := p.store.CreateRun(ctx, opts.params())
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: create run")
		}
		result.RunID = run.ID
		log = log.With(zap.String("run_id", run.ID))
	}

	setStatus := func(status model.RunStatus) {
		if p.store == nil {
			return
		}
		if err := p.store.UpdateRunStatus(ctx, result.RunID, status); err != nil {
			log.Warn("pipeline: failed to update status", zap.Error(err))
		}
	}
	fail := func(err error) (*Result, error) {
		log.Error("pipeline: run failed", zap.Error(err))
		if p.store != nil {
			if ferr := p.store.FailRun(context.WithoutCancel(ctx), result.RunID, err.Error()); ferr != nil {
				log.Warn("pipeline: failed to record failure", zap.Error(ferr))
			}
		}
		return result, err
	}
	trackStage := func(name string, fn func() error) error {
		t := time.Now()
		err := fn()
		d := time.Since(t).Milliseconds()
		result.Stages = append(result.Stages, Stage{Name: name, DurationMs: d})
		if err != nil {
			log.Error("pipeline: stage failed", zap.String("stage", name), zap.Int64("duration_ms", d), zap.Error(err))
			return err
		}
		log.Info("pipeline: stage complete", zap.String("stage", name), zap.Int64("duration_ms", d))
		return nil
	}

	setStatus(model.RunStatusRunning)

	// Units and supply sources load concurrently.
	var unitTable *frame.Table
	var supplyTable *frame.Table
	var pois []model.POI
	err := trackStage("load", func() error {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			result.Units, unitTable, err = p.loader.LoadUnits(gctx, opts.UnitsPath, opts.Units)
			return err
		})
		g.Go(func() error {
			var err error
			if opts.SupplyPath != "" {
				supplyTable, err = p.loader.LoadTable(gctx, opts.SupplyPath, category.SupplyTable, opts.Units.IDColumn, opts.Units.Sheet)
				return err
			}
			pois, err = p.loader.LoadPOIs(gctx, opts.POIPath, opts.POIs)
			return err
		})
		return g.Wait()
	})
	if err != nil {
		return fail(err)
	}

	if err := trackStage("supply", func() error {
		if supplyTable != nil {
			if len(opts.Categories) == 0 {
				result.Supply = supplyTable
				return nil
			}
			var err error
			result.Supply, err = supplyTable.Select(opts.Categories...)
			return err
		}
		var err error
		result.Supply, err = CountSupply(result.Units, pois, opts)
		return err
	}); err != nil {
		return fail(err)
	}

	if err := trackStage("weights", func() error {
		var err error
		if opts.WeightsPath != "" {
			if result.Weights, err = p.loader.LoadMatrix(ctx, opts.WeightsPath); err != nil {
				return err
			}
			log.Debug("pipeline: precomputed matrix",
				zap.Int("units", result.Weights.Len()),
				zap.Bool("symmetric", result.Weights.Symmetric(1e-9)),
			)
			return nil
		}
		wc := opts.Weights
		if wc.Workers == 0 {
			wc.Workers = opts.Workers
		}
		result.Weights, err = weights.Build(ctx, result.Units, wc)
		return err
	}); err != nil {
		return fail(err)
	}

	if err := trackStage("demand", func() error {
		aligned, err := unitTable.Align(result.Weights.Keys())
		if err != nil {
			return err
		}
		if result.DemandTable, err = demand.AsTable(aligned, opts.Profile); err != nil {
			return err
		}
		result.Demand, _ = result.DemandTable.Column(demand.Column)
		return nil
	}); err != nil {
		return fail(err)
	}

	if err := trackStage("accessibility", func() error {
		var err error
		result.Access, err = accessibility.Compute(ctx, result.Weights, result.Supply, result.Demand, accessibility.Options{
			Categories: opts.Categories,
			Workers:    opts.Workers,
		})
		return err
	}); err != nil {
		return fail(err)
	}

	result.Summary, err = Summarize(result.Access, result.Supply)
	if err != nil {
		return fail(err)
	}

	if p.store != nil {
		if err := trackStage("persist", func() error { return p.persist(ctx, result, opts) }); err != nil {
			return fail(err)
		}
	}

	if opts.OutputPath != "" || opts.MatrixOutputPath != "" || opts.DemandOutputPath != "" {
		if err := trackStage("export", func() error { return writeOutputs(result, opts) }); err != nil {
			return fail(err)
		}
	}

	result.Summary.DurationMs = time.Since(start).Milliseconds()
	if p.store != nil {
		if err := p.store.CompleteRun(ctx, result.RunID, result.Summary); err != nil {
			return result, eris.Wrap(err, "pipeline: complete run")
		}
	}

	log.Info("pipeline: run complete",
		zap.Int("units", result.Summary.Units),
		zap.Int("categories", len(result.Summary.Categories)),
		zap.Int("degenerate", len(result.Summary.Degenerate)),
		zap.Int64("duration_ms", result.Summary.DurationMs),
	)
	return result, nil
}

// CountSupply attributes POIs to units with the catalog, restricted to the
// requested categories.
func CountSupply(units []model.SpatialUnit, pois []model.POI, opts Options) (*frame.Table, error) {
	cat := opts.Catalog
	if len(cat.Categories) == 0 {
		cat = category.DefaultCatalog()
	}
	if names := categoryNames(opts.Categories); len(names) > 0 {
		var err error
		if cat, err = cat.Subset(names); err != nil {
			return nil, err
		}
	}
	countOpts := category.CountOptions{Total: opts.Total}

	if opts.Attribution == AttributionNearest {
		return category.CountNearest(units, pois, cat, opts.NearestDistance, opts.Weights.Metric, countOpts)
	}
	regions := model.Regions(units)
	if len(regions) != len(units) {
		return nil, model.NewConfigurationError("attribution",
			"%d of %d units have no polygon geometry; use nearest attribution for point units",
			len(units)-len(regions), len(units))
	}
	return category.Count(regions, pois, cat, countOpts)
}

// categoryNames drops the total column, which is derived rather than a
// catalog category.
func categoryNames(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n != category.TotalColumn {
			out = append(out, n)
		}
	}
	return out
}

func (p *Pipeline) persist(ctx context.Context, result *Result, opts Options) error {
	if opts.SaveUnits {
		if _, err := p.store.SaveUnits(ctx, result.Units); err != nil {
			return eris.Wrap(err, "pipeline: save units")
		}
	}
	if _, err := p.store.SaveScores(ctx, result.RunID, export.Scores(result.RunID, result.Access.Scores)); err != nil {
		return eris.Wrap(err, "pipeline: save scores")
	}
	return nil
}

func writeOutputs(result *Result, opts Options) error {
	if opts.OutputPath != "" {
		if err := export.WriteFile(opts.OutputPath, result.Access.Scores); err != nil {
			return err
		}
	}
	if opts.DemandOutputPath != "" {
		if err := export.WriteFile(opts.DemandOutputPath, result.DemandTable); err != nil {
			return err
		}
	}
	if opts.MatrixOutputPath != "" {
		f, err := os.Create(opts.MatrixOutputPath) //nolint:gosec // caller-chosen output path
		if err != nil {
			return eris.Wrap(err, "pipeline: create matrix output")
		}
		if err := export.WriteMatrixCSV(f, result.Weights, ','); err != nil {
			_ = f.Close()
			return err
		}
		return eris.Wrap(f.Close(), "pipeline: close matrix output")
	}
	return nil
}
