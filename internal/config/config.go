package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Upload     UploadConfig     `yaml:"upload" mapstructure:"upload"`
	Download   DownloadConfig   `yaml:"download" mapstructure:"download"`
	Extraction ExtractionConfig `yaml:"extraction" mapstructure:"extraction"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Tasks      TasksConfig      `yaml:"tasks" mapstructure:"tasks"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Client     ClientConfig     `yaml:"client" mapstructure:"client"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// UploadConfig bounds incoming documents and their temp staging.
type UploadConfig struct {
	MaxSizeBytes     int64    `yaml:"max_size_bytes" mapstructure:"max_size_bytes"`
	AllowedMIMETypes []string `yaml:"allowed_mime_types" mapstructure:"allowed_mime_types"`
	TempDir          string   `yaml:"temp_dir" mapstructure:"temp_dir"`
	TempMaxAgeSecs   int      `yaml:"temp_max_age_secs" mapstructure:"temp_max_age_secs"`
}

// DownloadConfig configures remote document retrieval.
type DownloadConfig struct {
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries  int     `yaml:"max_retries" mapstructure:"max_retries"`
	RatePerHost float64 `yaml:"rate_per_host" mapstructure:"rate_per_host"`
	Burst       int     `yaml:"burst" mapstructure:"burst"`
	UserAgent   string  `yaml:"user_agent" mapstructure:"user_agent"`
}

// ExtractionConfig configures the model extraction stage.
type ExtractionConfig struct {
	TimeoutSecs         int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxAttempts         int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	RateRPS             float64 `yaml:"rate_rps" mapstructure:"rate_rps"`
	RateBurst           int     `yaml:"rate_burst" mapstructure:"rate_burst"`
	BreakerThreshold    int     `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerCooldownSecs int     `yaml:"breaker_cooldown_secs" mapstructure:"breaker_cooldown_secs"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key         string  `yaml:"key" mapstructure:"key"`
	Model       string  `yaml:"model" mapstructure:"model"`
	MaxTokens   int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature float64 `yaml:"temperature" mapstructure:"temperature"`
}

// TasksConfig configures the in-memory task registry and worker pool.
type TasksConfig struct {
	RetentionSecs     int `yaml:"retention_secs" mapstructure:"retention_secs"`
	SweepIntervalSecs int `yaml:"sweep_interval_secs" mapstructure:"sweep_interval_secs"`
	Workers           int `yaml:"workers" mapstructure:"workers"`
	QueueCapacity     int `yaml:"queue_capacity" mapstructure:"queue_capacity"`
}

// BatchConfig configures batch extraction over URL lists.
type BatchConfig struct {
	MaxConcurrent int `yaml:"max_concurrent" mapstructure:"max_concurrent"`
}

// ClientConfig configures the CLI client side of the upload/poll flow.
type ClientConfig struct {
	BaseURL         string `yaml:"base_url" mapstructure:"base_url"`
	PollIntervalMS  int    `yaml:"poll_interval_ms" mapstructure:"poll_interval_ms"`
	MaxPollAttempts int    `yaml:"max_poll_attempts" mapstructure:"max_poll_attempts"`
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
	v.SetEnvPrefix("EXTRACT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	applyDefaults(v)

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

// Default returns the built-in configuration, untouched by any config file
// or environment. `config init` materializes this.
func Default() (*Config, error) {
	v := viper.New()
	applyDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal defaults")
	}
	return &cfg, nil
}

func applyDefaults(v *viper.Viper) {
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "process_extract.db")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("upload.max_size_bytes", 14680064)
	v.SetDefault("upload.allowed_mime_types", []string{"application/pdf"})
	v.SetDefault("upload.temp_dir", filepath.Join(os.TempDir(), "process-extract"))
	v.SetDefault("upload.temp_max_age_secs", 3600)
	v.SetDefault("download.timeout_secs", 30)
	v.SetDefault("download.max_retries", 3)
	v.SetDefault("download.rate_per_host", 2.0)
	v.SetDefault("download.burst", 4)
	v.SetDefault("download.user_agent", "process-extract/1.0")
	v.SetDefault("extraction.timeout_secs", 120)
	v.SetDefault("extraction.max_attempts", 2)
	v.SetDefault("extraction.rate_rps", 1.0)
	v.SetDefault("extraction.rate_burst", 2)
	v.SetDefault("extraction.breaker_threshold", 5)
	v.SetDefault("extraction.breaker_cooldown_secs", 60)
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 8192)
	v.SetDefault("anthropic.temperature", 0.1)
	v.SetDefault("tasks.retention_secs", 3600)
	v.SetDefault("tasks.sweep_interval_secs", 300)
	v.SetDefault("tasks.workers", 4)
	v.SetDefault("tasks.queue_capacity", 64)
	v.SetDefault("batch.max_concurrent", 4)
	v.SetDefault("client.base_url", "http://localhost:8000")
	v.SetDefault("client.poll_interval_ms", 1500)
	v.SetDefault("client.max_poll_attempts", 80)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Validate checks that the configuration is usable for the given mode.
// Modes: "serve" (HTTP server), "extract" (one-shot extraction, needs the
// model key), "export" (store access only), "client" (talks to a running
// server only). All problems are reported at once.
func (c *Config) Validate(mode string) error {
	var problems []string

	switch mode {
	case "serve":
		problems = append(problems, c.structuralProblems()...)
		problems = append(problems, c.storeProblems()...)
	case "extract":
		problems = append(problems, c.structuralProblems()...)
		problems = append(problems, c.storeProblems()...)
		if c.Anthropic.Key == "" {
			problems = append(problems, "anthropic.key is required")
		}
	case "export":
		problems = append(problems, c.storeProblems()...)
	case "client":
		if c.Client.BaseURL == "" {
			problems = append(problems, "client.base_url is required")
		}
		if c.Client.PollIntervalMS < 100 {
			problems = append(problems, "client.poll_interval_ms must be >= 100")
		}
		if c.Client.MaxPollAttempts < 1 || c.Client.MaxPollAttempts > 1000 {
			problems = append(problems, "client.max_poll_attempts must be between 1 and 1000")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: invalid for mode %s: %s", mode, strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) structuralProblems() []string {
	var problems []string
	if c.Server.Port <= 0 {
		problems = append(problems, "server.port must be > 0")
	}
	if c.Upload.MaxSizeBytes <= 0 {
		problems = append(problems, "upload.max_size_bytes must be > 0")
	}
	if c.Tasks.Workers < 1 || c.Tasks.Workers > 32 {
		problems = append(problems, "tasks.workers must be between 1 and 32")
	}
	if c.Tasks.QueueCapacity < 1 || c.Tasks.QueueCapacity > 1024 {
		problems = append(problems, "tasks.queue_capacity must be between 1 and 1024")
	}
	if c.Extraction.MaxAttempts < 1 || c.Extraction.MaxAttempts > 5 {
		problems = append(problems, "extraction.max_attempts must be between 1 and 5")
	}
	if c.Download.TimeoutSecs <= 0 {
		problems = append(problems, "download.timeout_secs must be > 0")
	}
	if c.Extraction.TimeoutSecs <= 0 {
		problems = append(problems, "extraction.timeout_secs must be > 0")
	}
	if c.Batch.MaxConcurrent < 1 || c.Batch.MaxConcurrent > 50 {
		problems = append(problems, "batch.max_concurrent must be between 1 and 50")
	}
	return problems
}

func (c *Config) storeProblems() []string {
	var problems []string
	if c.Store.DatabaseURL == "" {
		problems = append(problems, "store.database_url is required")
	}
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		problems = append(problems, "store.driver must be sqlite or postgres")
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
