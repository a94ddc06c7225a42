package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
	Server ServerConfig `yaml:"server" mapstructure:"server"`
	API    APIConfig    `yaml:"api" mapstructure:"api"`
	Map    MapConfig    `yaml:"map" mapstructure:"map"`
	View   ViewConfig   `yaml:"view" mapstructure:"view"`
	Cache  CacheConfig  `yaml:"cache" mapstructure:"cache"`
	Data   DataConfig   `yaml:"data" mapstructure:"data"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ServerConfig configures the HTTP map server.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// APIConfig holds the dashboard backend settings used as the data source.
type APIConfig struct {
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	MaxAttempts int     `yaml:"max_attempts" mapstructure:"max_attempts"`
}

// MapConfig configures the logical viewport and geometry decoding.
type MapConfig struct {
	Width             float64 `yaml:"width" mapstructure:"width"`
	Height            float64 `yaml:"height" mapstructure:"height"`
	Precision         int     `yaml:"precision" mapstructure:"precision"`
	SimplifyTolerance float64 `yaml:"simplify_tolerance" mapstructure:"simplify_tolerance"`
	CodeProperty      string  `yaml:"code_property" mapstructure:"code_property"`
	NameProperty      string  `yaml:"name_property" mapstructure:"name_property"`
	FallbackMessage   string  `yaml:"fallback_message" mapstructure:"fallback_message"`
}

// ViewConfig configures pan/zoom interaction.
type ViewConfig struct {
	ResetCancelsDrag bool `yaml:"reset_cancels_drag" mapstructure:"reset_cancels_drag"`
}

// CacheConfig configures the rendered scene cache.
type CacheConfig struct {
	MaxEntries int `yaml:"max_entries" mapstructure:"max_entries"`
	TTLSecs    int `yaml:"ttl_secs" mapstructure:"ttl_secs"`
}

// DataConfig selects the indicator shown on the map.
type DataConfig struct {
	Year   int    `yaml:"year" mapstructure:"year"`
	Metric string `yaml:"metric" mapstructure:"metric"`
}

// Load reads configuration from .env, config file and environment.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PETA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("api.base_url", "http://localhost:8000")
	v.SetDefault("api.timeout_secs", 30)
	v.SetDefault("api.rate_per_sec", 10)
	v.SetDefault("api.max_attempts", 3)
	v.SetDefault("map.width", 600)
	v.SetDefault("map.height", 360)
	v.SetDefault("map.precision", 3)
	v.SetDefault("map.simplify_tolerance", 0)
	v.SetDefault("map.code_property", "kode_kabupaten_kota")
	v.SetDefault("map.name_property", "nama_kabupaten_kota")
	v.SetDefault("map.fallback_message", "Peta belum tersedia. Pastikan data geojson tersedia.")
	v.SetDefault("view.reset_cancels_drag", false)
	v.SetDefault("cache.max_entries", 256)
	v.SetDefault("cache.ttl_secs", 600)
	v.SetDefault("data.year", 2024)
	v.SetDefault("data.metric", "kemiskinan")

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

// Validate checks the configuration for the given mode ("serve" or "render").
func (c *Config) Validate(mode string) error {
	var errs []string

	if c.Map.Width <= 0 || c.Map.Height <= 0 {
		errs = append(errs, "map.width and map.height must be > 0")
	}
	if c.Map.Precision < 0 || c.Map.Precision > 8 {
		errs = append(errs, "map.precision must be between 0 and 8")
	}
	if c.Map.SimplifyTolerance < 0 {
		errs = append(errs, "map.simplify_tolerance must be >= 0")
	}
	if c.Map.CodeProperty == "" || c.Map.NameProperty == "" {
		errs = append(errs, "map.code_property and map.name_property are required")
	}

	switch mode {
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		if c.API.BaseURL == "" {
			errs = append(errs, "api.base_url is required")
		}
		if c.Cache.MaxEntries <= 0 {
			errs = append(errs, "cache.max_entries must be > 0")
		}
	case "render":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.New(fmt.Sprintf("config: %s", strings.Join(errs, "; ")))
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
