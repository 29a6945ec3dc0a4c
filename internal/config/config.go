package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/access-cli/internal/category"
	"github.com/sells-group/access-cli/internal/dataset"
	"github.com/sells-group/access-cli/internal/demand"
	"github.com/sells-group/access-cli/internal/geo"
	"github.com/sells-group/access-cli/internal/model"
	"github.com/sells-group/access-cli/internal/weights"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Weights    WeightsConfig    `yaml:"weights" mapstructure:"weights"`
	Demand     DemandConfig     `yaml:"demand" mapstructure:"demand"`
	Categories CategoriesConfig `yaml:"categories" mapstructure:"categories"`
	Input      InputConfig      `yaml:"input" mapstructure:"input"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Fetch      FetchConfig      `yaml:"fetch" mapstructure:"fetch"`
}

// StoreConfig configures the run store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ServerConfig configures the read API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// WeightsConfig configures the distance-decay weight matrix.
type WeightsConfig struct {
	Threshold  float64 `yaml:"threshold" mapstructure:"threshold"`
	Metric     string  `yaml:"metric" mapstructure:"metric"`
	Kernel     string  `yaml:"kernel" mapstructure:"kernel"`
	Power      float64 `yaml:"power" mapstructure:"power"`
	Scale      float64 `yaml:"scale" mapstructure:"scale"`
	SelfFactor float64 `yaml:"self_factor" mapstructure:"self_factor"`
}

// DemandConfig holds the per-bucket demand weights. An empty profile counts
// the raw population of every bucket. Overrides are applied on top of the
// profile, or of the default one when the profile is empty.
type DemandConfig struct {
	Profile   map[string]float64 `yaml:"profile" mapstructure:"profile"`
	Overrides map[string]float64 `yaml:"overrides" mapstructure:"overrides"`
}

// CategoriesConfig configures POI categorization and attribution.
type CategoriesConfig struct {
	// CatalogPath is a YAML category catalog; empty uses the built-in one.
	CatalogPath string `yaml:"catalog_path" mapstructure:"catalog_path"`
	Key         string `yaml:"key" mapstructure:"key"`
	Delimiter   string `yaml:"delimiter" mapstructure:"delimiter"`
	// Attribution is "contain" (POIs inside unit polygons) or "nearest".
	Attribution     string  `yaml:"attribution" mapstructure:"attribution"`
	NearestDistance float64 `yaml:"nearest_distance" mapstructure:"nearest_distance"`
	Total           bool    `yaml:"total" mapstructure:"total"`
}

// InputConfig names the columns input files are read from.
type InputConfig struct {
	Units dataset.UnitOptions `yaml:"units" mapstructure:"units"`
	POIs  dataset.POIOptions  `yaml:"pois" mapstructure:"pois"`
}

// PipelineConfig configures run execution.
type PipelineConfig struct {
	Workers   int    `yaml:"workers" mapstructure:"workers"`
	TempDir   string `yaml:"temp_dir" mapstructure:"temp_dir"`
	SaveUnits bool   `yaml:"save_units" mapstructure:"save_units"`
}

// FetchConfig configures remote input downloads.
type FetchConfig struct {
	UserAgent     string  `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs   int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries    int     `yaml:"max_retries" mapstructure:"max_retries"`
	RatePerSecond float64 `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	Burst         int     `yaml:"burst" mapstructure:"burst"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ACCESS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	w := weights.DefaultConfig()
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "access.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("weights.threshold", w.Threshold)
	v.SetDefault("weights.metric", string(w.Metric))
	v.SetDefault("weights.kernel", string(w.Kernel))
	v.SetDefault("weights.power", w.Power)
	v.SetDefault("weights.scale", w.Scale)
	v.SetDefault("weights.self_factor", w.SelfFactor)
	v.SetDefault("categories.key", category.DefaultKey)
	v.SetDefault("categories.delimiter", category.DefaultDelimiter)
	v.SetDefault("categories.attribution", "contain")
	v.SetDefault("categories.nearest_distance", 500)
	v.SetDefault("categories.total", true)
	v.SetDefault("input.units.id_column", "id")
	v.SetDefault("input.units.lon_column", "lon")
	v.SetDefault("input.units.lat_column", "lat")
	v.SetDefault("input.units.geometry_column", "geometry")
	v.SetDefault("input.pois.id_column", "id")
	v.SetDefault("input.pois.lon_column", "lon")
	v.SetDefault("input.pois.lat_column", "lat")
	v.SetDefault("pipeline.workers", 4)
	v.SetDefault("pipeline.temp_dir", "/tmp/access-cli")
	v.SetDefault("fetch.user_agent", "access-cli/1.0")
	v.SetDefault("fetch.timeout_secs", 120)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.rate_per_second", 2)
	v.SetDefault("fetch.burst", 1)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// WeightConfig converts the weights section, parsing metric and kernel.
// workers is carried through to the builder.
func (c *Config) WeightConfig(workers int) (weights.Config, error) {
	metric, err := geo.ParseMetric(c.Weights.Metric)
	if err != nil {
		return weights.Config{}, err
	}
	kernel, err := weights.ParseKernel(c.Weights.Kernel)
	if err != nil {
		return weights.Config{}, err
	}
	wc := weights.Config{
		Threshold:  c.Weights.Threshold,
		Metric:     metric,
		Kernel:     kernel,
		Power:      c.Weights.Power,
		Scale:      c.Weights.Scale,
		SelfFactor: c.Weights.SelfFactor,
		Workers:    workers,
	}
	return wc, wc.Validate()
}

// Profile returns the configured demand profile with overrides applied.
func (c *Config) Profile() (demand.Profile, error) {
	p := demand.DefaultProfile()
	if len(c.Demand.Profile) > 0 {
		p = demand.Profile(c.Demand.Profile)
	}
	if len(c.Demand.Overrides) > 0 {
		p = p.Merge(c.Demand.Overrides)
	}
	return p, p.Validate()
}

// Catalog loads the category catalog and applies the key and delimiter
// overrides.
func (c *Config) Catalog() (category.Catalog, error) {
	cat := category.DefaultCatalog()
	if c.Categories.CatalogPath != "" {
		var err error
		if cat, err = category.LoadCatalog(c.Categories.CatalogPath); err != nil {
			return category.Catalog{}, err
		}
	}
	if c.Categories.Key != "" {
		cat.Key = c.Categories.Key
	}
	if c.Categories.Delimiter != "" {
		cat.Delimiter = c.Categories.Delimiter
	}
	return cat, cat.Validate()
}

// Validate checks the settings a command mode depends on. Modes: "run",
// "store" (commands that read the run store) and "serve".
func (c *Config) Validate(mode string) error {
	var problems []string
	checkStore := func() {
		switch c.Store.Driver {
		case "sqlite", "postgres":
		case "":
			problems = append(problems, "store.driver is required")
		default:
			problems = append(problems, "store.driver must be sqlite or postgres")
		}
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required")
		}
	}

	switch mode {
	case "run":
		if _, err := c.WeightConfig(1); err != nil {
			problems = append(problems, err.Error())
		}
		if _, err := c.Profile(); err != nil {
			problems = append(problems, err.Error())
		}
		switch c.Categories.Attribution {
		case "contain", "nearest":
		default:
			problems = append(problems, "categories.attribution must be contain or nearest")
		}
		if c.Categories.Attribution == "nearest" && c.Categories.NearestDistance <= 0 {
			problems = append(problems, "categories.nearest_distance must be > 0")
		}
		if c.Pipeline.Workers < 0 {
			problems = append(problems, "pipeline.workers must be >= 0")
		}
	case "store":
		checkStore()
	case "serve":
		checkStore()
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
	default:
		return model.NewConfigurationError("mode", "unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return model.NewConfigurationError("config", "%s", strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
