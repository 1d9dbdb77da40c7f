// Package config loads fin-import settings from config.yaml, .env, and
// FINIMPORT_* environment variables, and initialises the global logger.
package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/fin-import/internal/blob"
	"github.com/sells-group/fin-import/internal/parser"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Storage    StorageConfig    `yaml:"storage" mapstructure:"storage"`
	Import     ImportConfig     `yaml:"import" mapstructure:"import"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// StorageConfig selects where uploaded files are downloaded from.
type StorageConfig struct {
	Provider       string  `yaml:"provider" mapstructure:"provider"`
	LocalRoot      string  `yaml:"local_root" mapstructure:"local_root"`
	SupabaseURL    string  `yaml:"supabase_url" mapstructure:"supabase_url"`
	SupabaseBucket string  `yaml:"supabase_bucket" mapstructure:"supabase_bucket"`
	SupabaseKey    string  `yaml:"supabase_key" mapstructure:"supabase_key"`
	SupabaseRate   float64 `yaml:"supabase_rate" mapstructure:"supabase_rate"`
	FTPHost        string  `yaml:"ftp_host" mapstructure:"ftp_host"`
	FTPUser        string  `yaml:"ftp_user" mapstructure:"ftp_user"`
	FTPPassword    string  `yaml:"ftp_password" mapstructure:"ftp_password"`
	TimeoutSecs    int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// ImportConfig tunes parsing and job execution.
type ImportConfig struct {
	Delimiter        string `yaml:"delimiter" mapstructure:"delimiter"`
	FallbackCharset  string `yaml:"fallback_charset" mapstructure:"fallback_charset"`
	MaxErrors        int    `yaml:"max_errors" mapstructure:"max_errors"`
	DrainConcurrency int    `yaml:"drain_concurrency" mapstructure:"drain_concurrency"`
	DrainLimit       int    `yaml:"drain_limit" mapstructure:"drain_limit"`
	DrainSchedule    string `yaml:"drain_schedule" mapstructure:"drain_schedule"`
}

// ServerConfig configures the HTTP invocation surface.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// MonitoringConfig configures the job queue health checker run by serve.
type MonitoringConfig struct {
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	StaleAfterMins       int     `yaml:"stale_after_mins" mapstructure:"stale_after_mins"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from .env, config.yaml, and the environment.
// Environment variables win over the file, which wins over defaults.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrap(err, "config: load .env")
	}

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("FINIMPORT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("storage.provider", blob.ProviderLocal)
	v.SetDefault("storage.local_root", ".")
	v.SetDefault("storage.supabase_url", "")
	v.SetDefault("storage.supabase_bucket", "")
	v.SetDefault("storage.supabase_key", "")
	v.SetDefault("storage.supabase_rate", 5.0)
	v.SetDefault("storage.ftp_host", "")
	v.SetDefault("storage.ftp_user", "")
	v.SetDefault("storage.ftp_password", "")
	v.SetDefault("storage.timeout_secs", 60)
	v.SetDefault("import.delimiter", ",")
	v.SetDefault("import.fallback_charset", "")
	v.SetDefault("import.max_errors", 1000)
	v.SetDefault("import.drain_concurrency", 4)
	v.SetDefault("import.drain_limit", 50)
	v.SetDefault("import.drain_schedule", "@every 1m")
	v.SetDefault("server.port", 8080)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.stale_after_mins", 30)
	v.SetDefault("monitoring.failure_rate_threshold", 0.5)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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

// Validate checks the keys required by a command mode: "run" and "jobs"
// need a store and a file source, "serve" additionally needs a port, and
// "migrate" and "catalog" only need a store.
func (c *Config) Validate(mode string) error {
	var missing []string
	require := func(ok bool, msg string) {
		if !ok {
			missing = append(missing, msg)
		}
	}

	switch c.Store.Driver {
	case "postgres":
		require(c.Store.DatabaseURL != "", "store.database_url is required")
	case "sqlite":
		require(c.Store.DatabaseURL != "", "store.database_url is required (path of the sqlite file)")
	default:
		missing = append(missing, "store.driver must be postgres or sqlite")
	}

	if mode == "run" || mode == "serve" || mode == "jobs" {
		switch c.Storage.Provider {
		case blob.ProviderLocal:
		case blob.ProviderSupabase:
			require(c.Storage.SupabaseURL != "", "storage.supabase_url is required")
			require(c.Storage.SupabaseBucket != "", "storage.supabase_bucket is required")
			require(c.Storage.SupabaseKey != "", "storage.supabase_key is required")
		case blob.ProviderFTP:
		default:
			missing = append(missing, "storage.provider must be local, supabase or ftp")
		}
		require(utf8.RuneCountInString(c.Import.Delimiter) <= 1, "import.delimiter must be a single character")
		require(c.Import.MaxErrors >= 0, "import.max_errors must be >= 0")
	}

	if mode == "serve" {
		require(c.Server.Port > 0 && c.Server.Port <= 65535, "server.port must be between 1 and 65535")
		require(c.Import.DrainConcurrency >= 0, "import.drain_concurrency must be >= 0")
	}

	if len(missing) > 0 {
		return eris.Errorf("config: %s", strings.Join(missing, "; "))
	}
	return nil
}

// ParserOptions returns the parser settings of the import section.
func (c *Config) ParserOptions() parser.Options {
	opts := parser.Options{FallbackCharset: c.Import.FallbackCharset}
	if r, _ := utf8.DecodeRuneInString(c.Import.Delimiter); r != utf8.RuneError {
		opts.Delimiter = r
	}
	return opts
}

// BlobOptions returns the storage settings as blob.Options.
func (c *Config) BlobOptions() blob.Options {
	return blob.Options{
		Provider:       c.Storage.Provider,
		LocalRoot:      c.Storage.LocalRoot,
		SupabaseURL:    c.Storage.SupabaseURL,
		SupabaseBucket: c.Storage.SupabaseBucket,
		SupabaseKey:    c.Storage.SupabaseKey,
		SupabaseRate:   c.Storage.SupabaseRate,
		FTPHost:        c.Storage.FTPHost,
		FTPUser:        c.Storage.FTPUser,
		FTPPassword:    c.Storage.FTPPassword,
		Timeout:        time.Duration(c.Storage.TimeoutSecs) * time.Second,
	}
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
