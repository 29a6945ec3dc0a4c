package weights

import (
	"context"
	"math"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/access-cli/internal/geo"
	"github.com/sells-group/access-cli/internal/model"
)

// Kernel selects the decay shape inside the threshold radius.
type Kernel string

const (
	// KernelInverse is continuous inverse-distance decay.
	KernelInverse Kernel = "inverse"
	// KernelBinary gives every pair inside the threshold the same weight.
	KernelBinary Kernel = "binary"
)

// ParseKernel maps a configuration string to a Kernel.
func ParseKernel(s string) (Kernel, error) {
	switch Kernel(strings.ToLower(strings.TrimSpace(s))) {
	case "", KernelInverse:
		return KernelInverse, nil
	case KernelBinary:
		return KernelBinary, nil
	default:
		return "", model.NewConfigurationError("kernel", "unknown kernel %q", s)
	}
}

// Config controls weight construction.
type Config struct {
	// Threshold is the catchment radius: meters for haversine, coordinate
	// units for euclidean.
	Threshold float64
	Metric    geo.Metric
	Kernel    Kernel
	// Power is the inverse-distance exponent.
	Power float64
	// Scale is the weight of a pair exactly at the threshold.
	Scale float64
	// SelfFactor sets the self-weight to SelfFactor*Scale. It is also the
	// cap for very close pairs and the normalization divisor.
	SelfFactor float64
	// Workers is the number of rows built concurrently. Values below 2 build
	// synchronously.
	Workers int
}

// DefaultConfig returns the reference settings: 1 km haversine radius,
// continuous inverse-distance decay, self-weight ten times the unit scale.
func DefaultConfig() Config {
	return Config{
		Threshold:  1000,
		Metric:     geo.MetricHaversine,
		Kernel:     KernelInverse,
		Power:      1,
		Scale:      1,
		SelfFactor: 10,
		Workers:    1,
	}
}

// Validate checks that the configuration defines a matrix.
func (c Config) Validate() error {
	if math.IsNaN(c.Threshold) || c.Threshold <= 0 {
		return model.NewConfigurationError("threshold", "must be positive, got %g", c.Threshold)
	}
	if c.Metric != geo.MetricHaversine && c.Metric != geo.MetricEuclidean {
		return model.NewConfigurationError("metric", "unknown distance metric %q", c.Metric)
	}
	if c.Kernel != KernelInverse && c.Kernel != KernelBinary {
		return model.NewConfigurationError("kernel", "unknown kernel %q", c.Kernel)
	}
	if c.Kernel == KernelInverse && (math.IsNaN(c.Power) || c.Power <= 0) {
		return model.NewConfigurationError("power", "must be positive, got %g", c.Power)
	}
	if math.IsNaN(c.Scale) || c.Scale <= 0 {
		return model.NewConfigurationError("scale", "must be positive, got %g", c.Scale)
	}
	if math.IsNaN(c.SelfFactor) || c.SelfFactor < 1 {
		return model.NewConfigurationError("self_factor", "must be at least 1, got %g", c.SelfFactor)
	}
	return nil
}

// MaxWeight is the self-weight and the normalization divisor.
func (c Config) MaxWeight() float64 { return c.SelfFactor * c.Scale }

// Raw returns the unnormalized weight between two distinct units at
// distance d.
func (c Config) Raw(d float64) float64 {
	if d > c.Threshold || math.IsNaN(d) {
		return 0
	}
	if c.Kernel == KernelBinary {
		return c.Scale
	}
	maxW := c.MaxWeight()
	if d <= 0 {
		return maxW
	}
	return math.Min(maxW, c.Scale*math.Pow(c.Threshold/d, c.Power))
}

// Build computes the normalized weight matrix between units. Units are kept
// in the order given. Fewer than two units, or duplicate identifiers, leave
// the matrix undefined and return a ConfigurationError.
func Build(ctx context.Context, units []model.SpatialUnit, cfg Config) (*Matrix, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(units) < 2 {
		return nil, model.NewConfigurationError("units", "need at least 2 spatial units, got %d", len(units))
	}

	keys := make([]string, len(units))
	seen := make(map[string]struct{}, len(units))
	for i, u := range units {
		if u.ID == "" {
			return nil, model.NewConfigurationError("units", "unit at position %d has no identifier", i)
		}
		if _, dup := seen[u.ID]; dup {
			return nil, model.NewConfigurationError("units", "duplicate unit identifier %q", u.ID)
		}
		if !geo.ValidPoint(u.Centroid) {
			return nil, &model.SchemaError{Table: "units", Unit: u.ID, Reason: "unit has no valid reference point"}
		}
		seen[u.ID] = struct{}{}
		keys[i] = u.ID
	}

	m, err := newEmpty(keys)
	if err != nil {
		return nil, err
	}

	n := len(units)
	maxW := cfg.MaxWeight()
	buildRow := func(i int) {
		row := m.dense.RawRowView(i)
		for j := range n {
			if i == j {
				row[j] = 1
				continue
			}
			d := geo.Distance(cfg.Metric, units[i].Centroid, units[j].Centroid)
			row[j] = cfg.Raw(d) / maxW
		}
	}

	if cfg.Workers < 2 {
		for i := range n {
			if i%256 == 0 && ctx.Err() != nil {
				return nil, eris.Wrap(ctx.Err(), "weights: build cancelled")
			}
			buildRow(i)
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(cfg.Workers)
		for i := range n {
			g.Go(func() error {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				buildRow(i)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, eris.Wrap(err, "weights: build cancelled")
		}
	}

	zap.L().Debug("weights: built matrix",
		zap.Int("units", n),
		zap.Int("non_zero", m.NonZero()),
		zap.Float64("threshold", cfg.Threshold),
		zap.String("metric", string(cfg.Metric)),
		zap.String("kernel", string(cfg.Kernel)),
	)
	return m, nil
}
