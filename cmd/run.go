package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/access-cli/internal/config"
	"github.com/sells-group/access-cli/internal/export"
	"github.com/sells-group/access-cli/internal/pipeline"
	"github.com/sells-group/access-cli/internal/store"
)

var runFlags struct {
	name        string
	units       string
	supply      string
	pois        string
	weights     string
	categories  []string
	attribution string
	threshold   float64
	out         string
	matrixOut   string
	demandOut   string
	format      string
	noStore     bool
	saveUnits   bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Compute 2SFCA accessibility scores for a set of spatial units",
	Long: "Loads units and supply (a supply table or a POI file counted by category), builds or loads " +
		"the weight matrix, aggregates demand and writes one accessibility score per unit and category.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		applyRunFlags(cmd, cfg)
		if err := cfg.Validate("run"); err != nil {
			return err
		}
		opts, err := runOptions(cfg)
		if err != nil {
			return err
		}

		var st store.Store
		if !runFlags.noStore {
			if st, err = initStore(ctx); err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck
		}

		loader := newLoader()
		defer loader.Close() //nolint:errcheck

		res, err := pipeline.New(loader, st).Run(ctx, opts)
		if err != nil {
			return eris.Wrap(err, "run")
		}

		if runFlags.out == "" {
			f, err := export.ParseFormat(runFlags.format)
			if err != nil {
				return err
			}
			if err := export.Write(os.Stdout, res.Access.Scores, f); err != nil {
				return err
			}
		}
		printRunResult(os.Stderr, res)
		return nil
	},
}

// applyRunFlags copies explicitly set flags over the loaded configuration.
func applyRunFlags(cmd *cobra.Command, c *config.Config) {
	if cmd.Flags().Changed("threshold") {
		c.Weights.Threshold = runFlags.threshold
	}
	if cmd.Flags().Changed("attribution") {
		c.Categories.Attribution = runFlags.attribution
	}
	if cmd.Flags().Changed("save-units") {
		c.Pipeline.SaveUnits = runFlags.saveUnits
	}
}

// runOptions assembles pipeline options from configuration and flags.
func runOptions(c *config.Config) (pipeline.Options, error) {
	wc, err := c.WeightConfig(c.Pipeline.Workers)
	if err != nil {
		return pipeline.Options{}, err
	}
	profile, err := c.Profile()
	if err != nil {
		return pipeline.Options{}, err
	}
	cat, err := c.Catalog()
	if err != nil {
		return pipeline.Options{}, err
	}
	return pipeline.Options{
		Name:             runFlags.name,
		UnitsPath:        runFlags.units,
		Units:            c.Input.Units,
		SupplyPath:       runFlags.supply,
		POIPath:          runFlags.pois,
		POIs:             c.Input.POIs,
		Catalog:          cat,
		Attribution:      pipeline.Attribution(c.Categories.Attribution),
		NearestDistance:  c.Categories.NearestDistance,
		Total:            c.Categories.Total,
		Categories:       runFlags.categories,
		WeightsPath:      runFlags.weights,
		Weights:          wc,
		Profile:          profile,
		Workers:          c.Pipeline.Workers,
		OutputPath:       runFlags.out,
		MatrixOutputPath: runFlags.matrixOut,
		DemandOutputPath: runFlags.demandOut,
		SaveUnits:        c.Pipeline.SaveUnits,
	}, nil
}

func printRunResult(w io.Writer, res *pipeline.Result) {
	if res.RunID != "" {
		_, _ = fmt.Fprintf(w, "Run %s complete\n", res.RunID)
	}
	_, _ = fmt.Fprintf(w, "Units: %d  Categories: %d  Degenerate cells: %d\n",
		res.Summary.Units, len(res.Summary.Categories), len(res.Summary.Degenerate))
	for _, d := range res.Summary.Degenerate {
		_, _ = fmt.Fprintf(w, "  %s\n", d)
	}
	for _, s := range res.Stages {
		_, _ = fmt.Fprintf(w, "  %-14s %6dms\n", s.Name, s.DurationMs)
	}
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runFlags.name, "name", "", "run name recorded in the store")
	f.StringVar(&runFlags.units, "units", "", "spatial units file or URL (csv, tsv, xlsx, geojson, shp, zip)")
	f.StringVar(&runFlags.supply, "supply", "", "supply table keyed by unit id")
	f.StringVar(&runFlags.pois, "pois", "", "POI file or URL counted into supply (csv, geojson, osm)")
	f.StringVar(&runFlags.weights, "weights", "", "precomputed weight matrix CSV")
	f.StringSliceVar(&runFlags.categories, "category", nil, "restrict scoring to these categories (repeatable)")
	f.StringVar(&runFlags.attribution, "attribution", "", "POI attribution: contain or nearest (default from config)")
	f.Float64Var(&runFlags.threshold, "threshold", 0, "catchment radius (default from config)")
	f.StringVarP(&runFlags.out, "out", "o", "", "output file (csv, tsv or xlsx by extension); stdout when empty")
	f.StringVar(&runFlags.matrixOut, "matrix-out", "", "also write the weight matrix to this CSV")
	f.StringVar(&runFlags.demandOut, "demand-out", "", "also write per-unit demand to this file (csv, tsv or xlsx)")
	f.StringVar(&runFlags.format, "format", "csv", "stdout format: csv, tsv or table")
	f.BoolVar(&runFlags.noStore, "no-store", false, "do not record the run in the store")
	f.BoolVar(&runFlags.saveUnits, "save-units", false, "persist unit geometries to the store")
	_ = runCmd.MarkFlagRequired("units")
	rootCmd.AddCommand(runCmd)
}
