package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/geobeat/gdi-cli/internal/composite"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Analysis   AnalysisConfig   `yaml:"analysis" mapstructure:"analysis"`
	Composite  composite.Config `yaml:"composite" mapstructure:"composite"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
}

// StoreConfig configures the run archive backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ServerConfig configures the HTTP API. The Max* fields cap what a single
// request may ask for.
type ServerConfig struct {
	Port             int      `yaml:"port" mapstructure:"port"`
	RateLimit        float64  `yaml:"rate_limit" mapstructure:"rate_limit"`
	RateBurst        int      `yaml:"rate_burst" mapstructure:"rate_burst"`
	AllowedOrigins   []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	MaxPoints        int      `yaml:"max_points" mapstructure:"max_points"`
	MaxPermutations  int      `yaml:"max_permutations" mapstructure:"max_permutations"`
	MaxThresholdKm   float64  `yaml:"max_threshold_km" mapstructure:"max_threshold_km"`
	MaxNeighborLinks int      `yaml:"max_neighbor_links" mapstructure:"max_neighbor_links"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// AnalysisConfig holds the default parameters of an analysis run.
type AnalysisConfig struct {
	ThresholdKm  float64 `yaml:"threshold_km" mapstructure:"threshold_km"`
	Resolution   int     `yaml:"resolution" mapstructure:"resolution"`
	Permutations int     `yaml:"permutations" mapstructure:"permutations"`
	Seed         uint64  `yaml:"seed" mapstructure:"seed"`
	Workers      int     `yaml:"workers" mapstructure:"workers"`
	DensityK     int     `yaml:"density_k" mapstructure:"density_k"`
}

// MonitoringConfig configures the background health checker.
type MonitoringConfig struct {
	Enabled              bool    `yaml:"enabled" mapstructure:"enabled"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	GDIFloor             float64 `yaml:"gdi_floor" mapstructure:"gdi_floor"`
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
}

// Load reads configuration from ./config.yaml, if present, and environment.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is Load with an explicit config file. An empty path falls back to
// ./config.yaml; a non-empty path must exist.
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	// Config file
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	// Environment
	v.SetEnvPrefix("GDI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "gdi.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.rate_limit", 5.0)
	v.SetDefault("server.rate_burst", 10)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.max_points", 250000)
	v.SetDefault("server.max_permutations", 9999)
	v.SetDefault("server.max_threshold_km", 5000.0)
	v.SetDefault("server.max_neighbor_links", 10000000)
	v.SetDefault("analysis.threshold_km", 500.0)
	v.SetDefault("analysis.resolution", 9)
	v.SetDefault("analysis.permutations", 999)
	v.SetDefault("analysis.seed", 42)
	v.SetDefault("analysis.workers", 0)
	v.SetDefault("analysis.density_k", 5)
	v.SetDefault("monitoring.enabled", false)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.gdi_floor", 40.0)

	def := composite.DefaultConfig()
	v.SetDefault("composite.pdi.moran_weight", def.PDI.MoranWeight)
	v.SetDefault("composite.pdi.enl_weight", def.PDI.ENLWeight)
	v.SetDefault("composite.pdi.hhi_weight", def.PDI.HHIWeight)
	v.SetDefault("composite.pdi.enl_cap", def.PDI.ENLCap)
	setDiversityDefaults(v, "composite.jdi", def.JDI)
	setDiversityDefaults(v, "composite.ihi", def.IHI)
	v.SetDefault("composite.gdi.pdi_weight", def.GDI.PDIWeight)
	v.SetDefault("composite.gdi.jdi_weight", def.GDI.JDIWeight)
	v.SetDefault("composite.gdi.ihi_weight", def.GDI.IHIWeight)
	v.SetDefault("composite.gdi.size_weight", def.GDI.SizeWeight)
	v.SetDefault("composite.gdi.size_reference", def.GDI.SizeReference)

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

func setDiversityDefaults(v *viper.Viper, prefix string, d composite.DiversityConfig) {
	v.SetDefault(prefix+".hhi_weight", d.HHIWeight)
	v.SetDefault(prefix+".diversity_weight", d.DiversityWeight)
	v.SetDefault(prefix+".log_divisor", d.LogDivisor)
	v.SetDefault(prefix+".penalty_weight", d.PenaltyWeight)
	v.SetDefault(prefix+".penalty_floor", d.PenaltyFloor)
	v.SetDefault(prefix+".penalty_ceiling", d.PenaltyCeiling)
}

// Validate checks the settings required by a command mode: "analyze" or
// "serve".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "analyze":
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be > 0 and <= 65535")
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server.rate_limit must be >= 0")
		}
		if c.Server.MaxPoints < 0 {
			errs = append(errs, "server.max_points must be >= 0")
		}
		if c.Server.MaxPermutations < 0 {
			errs = append(errs, "server.max_permutations must be >= 0")
		}
		if c.Server.MaxThresholdKm < 0 {
			errs = append(errs, "server.max_threshold_km must be >= 0")
		}
		if c.Server.MaxNeighborLinks < 0 {
			errs = append(errs, "server.max_neighbor_links must be >= 0")
		}
		if c.Monitoring.Enabled && c.Monitoring.CheckIntervalSecs <= 0 {
			errs = append(errs, "monitoring.check_interval_secs must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch c.Store.Driver {
	case "sqlite", "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required")
		}
	default:
		errs = append(errs, fmt.Sprintf("store.driver must be sqlite or postgres, got %q", c.Store.Driver))
	}

	if c.Analysis.ThresholdKm <= 0 {
		errs = append(errs, "analysis.threshold_km must be > 0")
	}
	if c.Analysis.Resolution < 0 || c.Analysis.Resolution > 30 {
		errs = append(errs, "analysis.resolution must be between 0 and 30")
	}
	if c.Analysis.Permutations < 0 {
		errs = append(errs, "analysis.permutations must be >= 0")
	}
	if c.Analysis.DensityK < 1 {
		errs = append(errs, "analysis.density_k must be >= 1")
	}
	if err := c.Composite.Validate(); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return eris.Errorf("config: invalid for %s: %s", mode, strings.Join(errs, "; "))
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
