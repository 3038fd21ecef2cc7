package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Storage     StorageConfig     `yaml:"storage" mapstructure:"storage"`
	SentinelHub SentinelHubConfig `yaml:"sentinelhub" mapstructure:"sentinelhub"`
	Store       StoreConfig       `yaml:"store" mapstructure:"store"`
	Raster      RasterConfig      `yaml:"raster" mapstructure:"raster"`
	Scoring     ScoringConfig     `yaml:"scoring" mapstructure:"scoring"`
	Server      ServerConfig      `yaml:"server" mapstructure:"server"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
}

// StorageConfig configures blob store access.
type StorageConfig struct {
	S3Region   string `yaml:"s3_region" mapstructure:"s3_region"`
	S3Endpoint string `yaml:"s3_endpoint" mapstructure:"s3_endpoint"`
	CacheDir   string `yaml:"cache_dir" mapstructure:"cache_dir"`
	HTTPRate   int    `yaml:"http_rate" mapstructure:"http_rate"`
}

// SentinelHubConfig holds Sentinel Hub API credentials and batch settings.
type SentinelHubConfig struct {
	BaseURL          string `yaml:"base_url" mapstructure:"base_url"`
	OAuthID          string `yaml:"oauth_id" mapstructure:"oauth_id"`
	OAuthSecret      string `yaml:"oauth_secret" mapstructure:"oauth_secret"`
	BatchBucket      string `yaml:"batch_bucket" mapstructure:"batch_bucket"`
	BatchPrefix      string `yaml:"batch_prefix" mapstructure:"batch_prefix"`
	PollIntervalSecs int    `yaml:"poll_interval_secs" mapstructure:"poll_interval_secs"`
	PollAttempts     int    `yaml:"poll_attempts" mapstructure:"poll_attempts"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// RasterConfig configures raster alignment defaults.
type RasterConfig struct {
	Resampling string            `yaml:"resampling" mapstructure:"resampling"`
	GDALConfig map[string]string `yaml:"gdal_config" mapstructure:"gdal_config"`
}

// ScoringConfig configures accuracy scoring.
type ScoringConfig struct {
	UrbanMin float64   `yaml:"urban_min" mapstructure:"urban_min"`
	UrbanMax float64   `yaml:"urban_max" mapstructure:"urban_max"`
	Labels   []float64 `yaml:"labels" mapstructure:"labels"`
	MaskURI  string    `yaml:"mask_uri" mapstructure:"mask_uri"`
}

// ServerConfig configures the catalog browse server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("FLOODCAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("storage.s3_region", "us-east-1")
	v.SetDefault("storage.cache_dir", "/tmp/floodcat")
	v.SetDefault("storage.http_rate", 10)
	v.SetDefault("sentinelhub.base_url", "https://services.sentinel-hub.com")
	v.SetDefault("sentinelhub.batch_bucket", "noaafloodmapping-sentinelhub-batch-eu-central-1")
	v.SetDefault("sentinelhub.batch_prefix", "glofimr")
	v.SetDefault("sentinelhub.poll_interval_secs", 10)
	v.SetDefault("sentinelhub.poll_attempts", 100)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "floodcat.db")
	v.SetDefault("raster.resampling", "bilinear")
	v.SetDefault("scoring.urban_min", 21)
	v.SetDefault("scoring.urban_max", 24)
	v.SetDefault("scoring.labels", []float64{1})
	v.SetDefault("scoring.mask_uri", "s3://geotrellis-test/courage-services/nlcd/NLCD_2016_Land_Cover_L48_20190424.tif")
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Explicit bindings so credentials set only in the environment still unmarshal.
	_ = v.BindEnv("sentinelhub.oauth_id", "FLOODCAT_SENTINELHUB_OAUTH_ID", "SENTINELHUB_OAUTH_ID")
	_ = v.BindEnv("sentinelhub.oauth_secret", "FLOODCAT_SENTINELHUB_OAUTH_SECRET", "SENTINELHUB_OAUTH_SECRET")

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

// Validate checks the settings a command mode depends on. Every problem is
// reported in one error so a misconfigured run fails before doing any work.
func (c *Config) Validate(mode string) error {
	var problems []string

	switch mode {
	case "build", "mldata":
	case "ingest", "search":
		if c.SentinelHub.OAuthID == "" {
			problems = append(problems, "sentinelhub.oauth_id is required")
		}
		if c.SentinelHub.OAuthSecret == "" {
			problems = append(problems, "sentinelhub.oauth_secret is required")
		}
		if mode == "ingest" && c.SentinelHub.PollAttempts < 1 {
			problems = append(problems, "sentinelhub.poll_attempts must be >= 1")
		}
	case "score":
		if c.Scoring.UrbanMin > c.Scoring.UrbanMax {
			problems = append(problems, "scoring.urban_min must be <= scoring.urban_max")
		}
		if len(c.Scoring.Labels) == 0 {
			problems = append(problems, "scoring.labels must not be empty")
		}
	case "serve":
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		problems = append(problems, "store.driver must be sqlite or postgres")
	}

	if len(problems) > 0 {
		return eris.Errorf("config: invalid for %s: %s", mode, strings.Join(problems, "; "))
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
