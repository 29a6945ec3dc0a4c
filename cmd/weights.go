package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/access-cli/internal/export"
	"github.com/sells-group/access-cli/internal/weights"
)

var weightsFlags struct {
	units     string
	threshold float64
	out       string
	tsv       bool
	neighbors bool
}

var weightsCmd = &cobra.Command{
	Use:   "weights",
	Short: "Build the distance-decay weight matrix for a set of units",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if cmd.Flags().Changed("threshold") {
			cfg.Weights.Threshold = weightsFlags.threshold
		}
		wc, err := cfg.WeightConfig(cfg.Pipeline.Workers)
		if err != nil {
			return err
		}

		loader := newLoader()
		defer loader.Close() //nolint:errcheck

		units, _, err := loader.LoadUnits(ctx, weightsFlags.units, cfg.Input.Units)
		if err != nil {
			return err
		}
		m, err := weights.Build(ctx, units, wc)
		if err != nil {
			return err
		}

		out, err := createOutput(weightsFlags.out)
		if err != nil {
			return err
		}
		defer out.Close() //nolint:errcheck

		delim := ','
		if weightsFlags.tsv {
			delim = '\t'
		}
		write := export.WriteMatrixCSV
		if weightsFlags.neighbors {
			write = export.WriteNeighbors
		}
		if err := write(out, m, delim); err != nil {
			return err
		}
		zap.L().Info("weights: matrix written",
			zap.Int("units", m.Len()),
			zap.Int("non_zero", m.NonZero()),
			zap.Bool("symmetric", m.Symmetric(1e-9)),
			zap.Bool("neighbors", weightsFlags.neighbors),
			zap.String("out", weightsFlags.out),
		)
		return out.Close()
	},
}

func init() {
	f := weightsCmd.Flags()
	f.StringVar(&weightsFlags.units, "units", "", "spatial units file or URL")
	f.Float64Var(&weightsFlags.threshold, "threshold", 0, "catchment radius (default from config)")
	f.StringVarP(&weightsFlags.out, "out", "o", "", "output CSV; stdout when empty")
	f.BoolVar(&weightsFlags.tsv, "tsv", false, "tab-separated output")
	f.BoolVar(&weightsFlags.neighbors, "neighbors", false, "write each unit's catchment as id,neighbor,weight rows instead of the square matrix")
	_ = weightsCmd.MarkFlagRequired("units")
	rootCmd.AddCommand(weightsCmd)
}
