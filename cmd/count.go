package main

import (
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/access-cli/internal/model"
	"github.com/sells-group/access-cli/internal/pipeline"
)

var countFlags struct {
	units       string
	pois        string
	categories  []string
	attribution string
	out         string
	format      string
}

var countCmd = &cobra.Command{
	Use:   "count",
	Short: "Count POIs per unit and category into a supply table",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if cmd.Flags().Changed("attribution") {
			cfg.Categories.Attribution = countFlags.attribution
		}
		cat, err := cfg.Catalog()
		if err != nil {
			return err
		}
		wc, err := cfg.WeightConfig(1)
		if err != nil {
			return err
		}

		loader := newLoader()
		defer loader.Close() //nolint:errcheck

		var units []model.SpatialUnit
		var pois []model.POI
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			units, _, err = loader.LoadUnits(gctx, countFlags.units, cfg.Input.Units)
			return err
		})
		g.Go(func() error {
			var err error
			pois, err = loader.LoadPOIs(gctx, countFlags.pois, cfg.Input.POIs)
			return err
		})
		if err := g.Wait(); err != nil {
			return err
		}

		supply, err := pipeline.CountSupply(units, pois, pipeline.Options{
			Catalog:         cat,
			Attribution:     pipeline.Attribution(cfg.Categories.Attribution),
			NearestDistance: cfg.Categories.NearestDistance,
			Total:           cfg.Categories.Total,
			Categories:      countFlags.categories,
			Weights:         wc,
		})
		if err != nil {
			return err
		}
		return writeOutput(os.Stdout, countFlags.out, supply, countFlags.format)
	},
}

func init() {
	f := countCmd.Flags()
	f.StringVar(&countFlags.units, "units", "", "spatial units file or URL")
	f.StringVar(&countFlags.pois, "pois", "", "POI file or URL (csv, geojson, osm)")
	f.StringSliceVar(&countFlags.categories, "category", nil, "restrict to these categories (repeatable)")
	f.StringVar(&countFlags.attribution, "attribution", "", "contain or nearest (default from config)")
	f.StringVarP(&countFlags.out, "out", "o", "", "output file; stdout when empty")
	f.StringVar(&countFlags.format, "format", "table", "stdout format: csv, tsv or table")
	_ = countCmd.MarkFlagRequired("units")
	_ = countCmd.MarkFlagRequired("pois")
	rootCmd.AddCommand(countCmd)
}
