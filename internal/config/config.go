package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store  StoreConfig  `yaml:"store" mapstructure:"store"`
	Ingest IngestConfig `yaml:"ingest" mapstructure:"ingest"`
	Train  TrainConfig  `yaml:"train" mapstructure:"train"`
	Fetch  FetchConfig  `yaml:"fetch" mapstructure:"fetch"`
	Report ReportConfig `yaml:"report" mapstructure:"report"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the run store backend.
type StoreConfig struct {
	Driver      string     `yaml:"driver" mapstructure:"driver"`
	Path        string     `yaml:"path" mapstructure:"path"`
	DatabaseURL string     `yaml:"database_url" mapstructure:"database_url"`
	Pool        PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// PoolConfig tunes the postgres connection pool.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// IngestConfig configures export parsing.
type IngestConfig struct {
	SheetIndex  int      `yaml:"sheet_index" mapstructure:"sheet_index"`
	SheetName   string   `yaml:"sheet_name" mapstructure:"sheet_name"`
	Delimiter   string   `yaml:"delimiter" mapstructure:"delimiter"`
	Charset     string   `yaml:"charset" mapstructure:"charset"`
	TimeLayouts []string `yaml:"time_layouts" mapstructure:"time_layouts"`
}

// TrainConfig configures the training pipeline.
type TrainConfig struct {
	TestFraction float64 `yaml:"test_fraction" mapstructure:"test_fraction"`
	Seed         uint64  `yaml:"seed" mapstructure:"seed"`
	Folds        int     `yaml:"folds" mapstructure:"folds"`
	Candidates   int     `yaml:"candidates" mapstructure:"candidates"`
	Workers      int     `yaml:"workers" mapstructure:"workers"`
	Neighbors    int     `yaml:"neighbors" mapstructure:"neighbors"`
	SpaceFile    string  `yaml:"space_file" mapstructure:"space_file"`
	Archive      bool    `yaml:"archive" mapstructure:"archive"`
}

// FetchConfig configures remote export downloads.
type FetchConfig struct {
	UserAgent         string  `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs       int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries        int     `yaml:"max_retries" mapstructure:"max_retries"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int     `yaml:"burst" mapstructure:"burst"`
	FTPUser           string  `yaml:"ftp_user" mapstructure:"ftp_user"`
	FTPPassword       string  `yaml:"ftp_password" mapstructure:"ftp_password"`
}

// ReportConfig configures report output.
type ReportConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
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
	v.SetEnvPrefix("OUTAGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "outage.db")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.pool.max_conns", 10)
	v.SetDefault("store.pool.min_conns", 2)
	v.SetDefault("ingest.sheet_index", 0)
	v.SetDefault("ingest.sheet_name", "")
	v.SetDefault("ingest.delimiter", ",")
	v.SetDefault("ingest.charset", "")
	v.SetDefault("train.test_fraction", 0.2)
	v.SetDefault("train.seed", 42)
	v.SetDefault("train.folds", 5)
	v.SetDefault("train.candidates", 20)
	v.SetDefault("train.workers", 0)
	v.SetDefault("train.neighbors", 5)
	v.SetDefault("train.space_file", "")
	v.SetDefault("train.archive", false)
	v.SetDefault("fetch.user_agent", "outage-cli/1.0")
	v.SetDefault("fetch.timeout_secs", 30)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.requests_per_second", 5)
	v.SetDefault("fetch.burst", 5)
	v.SetDefault("fetch.ftp_user", "")
	v.SetDefault("fetch.ftp_password", "")
	v.SetDefault("report.dir", "reports")
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

// Validate checks the configuration for the given command mode and
// reports every problem at once.
func (c *Config) Validate(mode string) error {
	var problems []string

	switch mode {
	case "train":
		problems = append(problems, c.validateStore()...)
		problems = append(problems, c.validateTrain()...)
	case "fetch":
		problems = append(problems, c.validateFetch()...)
	case "runs", "report":
		problems = append(problems, c.validateStore()...)
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) validateStore() []string {
	var problems []string
	switch c.Store.Driver {
	case "sqlite":
		if c.Store.Path == "" {
			problems = append(problems, "store.path is required for the sqlite driver")
		}
	case "postgres":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required for the postgres driver")
		}
	default:
		problems = append(problems, fmt.Sprintf("store.driver %q is not supported (sqlite or postgres)", c.Store.Driver))
	}
	return problems
}

func (c *Config) validateTrain() []string {
	var problems []string
	if c.Train.TestFraction <= 0 || c.Train.TestFraction >= 1 {
		problems = append(problems, "train.test_fraction must be between 0 and 1 exclusive")
	}
	if c.Train.Folds < 2 {
		problems = append(problems, "train.folds must be at least 2")
	}
	if c.Train.Candidates < 1 {
		problems = append(problems, "train.candidates must be at least 1")
	}
	if c.Train.Neighbors < 1 {
		problems = append(problems, "train.neighbors must be at least 1")
	}
	return problems
}

func (c *Config) validateFetch() []string {
	var problems []string
	if c.Fetch.TimeoutSecs < 1 {
		problems = append(problems, "fetch.timeout_secs must be at least 1")
	}
	if c.Fetch.MaxRetries < 1 {
		problems = append(problems, "fetch.max_retries must be at least 1")
	}
	if c.Fetch.RequestsPerSecond <= 0 {
		problems = append(problems, "fetch.requests_per_second must be positive")
	}
	if c.Fetch.Burst < 1 {
		problems = append(problems, "fetch.burst must be at least 1")
	}
	return problems
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
