package main

import (
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/access-cli/internal/export"
	"github.com/sells-group/access-cli/internal/geo"
	"github.com/sells-group/access-cli/internal/model"
)

var gridFlags struct {
	bbox string
	cell float64
	out  string
}

var gridCmd = &cobra.Command{
	Use:   "grid",
	Short: "Generate square grid cells over a bounding box as a units file",
	Example: "  access-cli grid --bbox 2.22,48.81,2.47,48.91 --cell 200 -o paris_200m.csv",
	RunE: func(_ *cobra.Command, _ []string) error {
		bound, err := parseBBox(gridFlags.bbox)
		if err != nil {
			return err
		}
		units, err := geo.SquareGrid(bound, gridFlags.cell)
		if err != nil {
			return err
		}

		out, err := createOutput(gridFlags.out)
		if err != nil {
			return err
		}
		defer out.Close() //nolint:errcheck

		delim := ','
		if export.FormatFor(gridFlags.out) == export.FormatTSV {
			delim = '\t'
		}
		if err := export.WriteUnitsCSV(out, units, delim); err != nil {
			return err
		}
		zap.L().Info("grid: cells written", zap.Int("cells", len(units)), zap.Float64("cell_meters", gridFlags.cell))
		return out.Close()
	},
}

// parseBBox reads "minlon,minlat,maxlon,maxlat".
func parseBBox(s string) (orb.Bound, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return orb.Bound{}, model.NewConfigurationError("bbox", "want minlon,minlat,maxlon,maxlat, got %q", s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return orb.Bound{}, model.NewConfigurationError("bbox", "invalid coordinate %q", p)
		}
		v[i] = f
	}
	return orb.Bound{Min: orb.Point{v[0], v[1]}, Max: orb.Point{v[2], v[3]}}, nil
}

func init() {
	f := gridCmd.Flags()
	f.StringVar(&gridFlags.bbox, "bbox", "", "bounding box minlon,minlat,maxlon,maxlat")
	f.Float64Var(&gridFlags.cell, "cell", 200, "cell size in meters")
	f.StringVarP(&gridFlags.out, "out", "o", "", "output CSV; stdout when empty")
	_ = gridCmd.MarkFlagRequired("bbox")
	rootCmd.AddCommand(gridCmd)
}
