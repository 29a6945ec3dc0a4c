package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/sells-group/access-cli/internal/category"
	"github.com/sells-group/access-cli/internal/export"
)

var tagsFlags struct {
	pois       string
	key        string
	categories bool
	format     string
}

var tagsCmd = &cobra.Command{
	Use:   "tags",
	Short: "Report tag value frequencies, or catalog category totals, across a POI file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		format, err := export.ParseFormat(tagsFlags.format)
		if err != nil {
			return err
		}
		cat, err := cfg.Catalog()
		if err != nil {
			return err
		}

		loader := newLoader()
		defer loader.Close() //nolint:errcheck

		pois, err := loader.LoadPOIs(ctx, tagsFlags.pois, cfg.Input.POIs)
		if err != nil {
			return err
		}

		var counts []category.TagCount
		if tagsFlags.categories {
			counts = category.CategoryTotals(pois, cat)
		} else {
			key := tagsFlags.key
			if key == "" {
				key = cat.Key
			}
			counts = category.Frequencies(pois, key, cat.Delimiter)
		}
		return export.WriteTagCounts(os.Stdout, counts, format)
	},
}

func init() {
	f := tagsCmd.Flags()
	f.StringVar(&tagsFlags.pois, "pois", "", "POI file or URL (csv, geojson, osm)")
	f.StringVar(&tagsFlags.key, "key", "", "tag key to tally (default: catalog key)")
	f.BoolVar(&tagsFlags.categories, "categories", false, "count POIs per catalog category instead of per tag value")
	f.StringVar(&tagsFlags.format, "format", "table", "output format: csv, tsv or table")
	_ = tagsCmd.MarkFlagRequired("pois")
	rootCmd.AddCommand(tagsCmd)
}
