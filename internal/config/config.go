// Package config loads server settings from defaults, an optional YAML file
// and CLINSIGHT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. CLINSIGHT_DATABASE_DSN.
const EnvPrefix = "CLINSIGHT"

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	HealthAddr      string        `mapstructure:"health_addr"` // empty disables the gRPC health listener
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

type SessionConfig struct {
	Backend       string        `mapstructure:"backend"`        // memory | redis
	TTL           time.Duration `mapstructure:"ttl"`            // 0 = never expires
	SweepInterval time.Duration `mapstructure:"sweep_interval"` // memory backend only
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

type StorageConfig struct {
	Backend        string        `mapstructure:"backend"` // local | minio
	LocalDir       string        `mapstructure:"local_dir"`
	MaxUploadBytes int64         `mapstructure:"max_upload_bytes"`
	LinkKey        string        `mapstructure:"link_key"`
	LinkTTL        time.Duration `mapstructure:"link_ttl"`
}

type MinIOConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

type LLMConfig struct {
	Disabled        bool          `mapstructure:"disabled"`
	APIKey          string        `mapstructure:"api_key"`
	Model           string        `mapstructure:"model"`
	BaseURL         string        `mapstructure:"base_url"`
	MaxTokens       int           `mapstructure:"max_tokens"`
	Timeout         time.Duration `mapstructure:"timeout"`
	MaxPromptTokens int           `mapstructure:"max_prompt_tokens"`
}

type LimiterConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Window   time.Duration `mapstructure:"window"`
	MaxFails int           `mapstructure:"max_fails"`
	BlockFor time.Duration `mapstructure:"block_for"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// Config is the full server configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Session  SessionConfig  `mapstructure:"session"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Storage  StorageConfig  `mapstructure:"storage"`
	MinIO    MinIOConfig    `mapstructure:"minio"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Limiter  LimiterConfig  `mapstructure:"limiter"`
	Log      LogConfig      `mapstructure:"log"`
}

// SetDefaults registers every key so that environment overrides are seen by Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8001")
	v.SetDefault("server.health_addr", ":8002")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 180*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("database.dsn", "")

	v.SetDefault("session.backend", "memory")
	v.SetDefault("session.ttl", time.Duration(0))
	v.SetDefault("session.sweep_interval", time.Minute)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "clinsight:session")

	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.local_dir", "uploads")
	v.SetDefault("storage.max_upload_bytes", int64(20<<20))
	v.SetDefault("storage.link_key", "")
	v.SetDefault("storage.link_ttl", 15*time.Minute)

	v.SetDefault("minio.endpoint", "localhost:9000")
	v.SetDefault("minio.access_key", "")
	v.SetDefault("minio.secret_key", "")
	v.SetDefault("minio.bucket", "clinical-insight")
	v.SetDefault("minio.use_ssl", false)

	v.SetDefault("llm.disabled", false)
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "gemini-2.5-pro")
	v.SetDefault("llm.base_url", "https://generativelanguage.googleapis.com")
	v.SetDefault("llm.max_tokens", 8192)
	v.SetDefault("llm.timeout", 120*time.Second)
	v.SetDefault("llm.max_prompt_tokens", 6000)

	v.SetDefault("limiter.enabled", true)
	v.SetDefault("limiter.window", 15*time.Minute)
	v.SetDefault("limiter.max_fails", 5)
	v.SetDefault("limiter.block_for", 15*time.Minute)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 10)
	v.SetDefault("log.max_age_days", 30)
}

// Load is Read followed by Validate.
func Load(v *viper.Viper, path string) (*Config, error) {
	c, err := Read(v, path)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Read loads configuration into v without validating it. path may be empty;
// a missing default config.yaml is not an error, a missing explicit path is.
func Read(v *viper.Viper, path string) (*Config, error) {
	SetDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &nf) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &c, nil
}

// Validate checks required settings and enumerations.
func (c *Config) Validate() error {
	var problems []error
	if c.Database.DSN == "" {
		problems = append(problems, errors.New("database.dsn is required"))
	}
	if !c.LLM.Disabled && c.LLM.APIKey == "" {
		problems = append(problems, errors.New("llm.api_key is required unless llm.disabled is set"))
	}
	if c.Storage.LinkKey == "" {
		problems = append(problems, errors.New("storage.link_key is required"))
	}
	switch c.Session.Backend {
	case "memory", "redis":
	default:
		problems = append(problems, fmt.Errorf("session.backend %q: want memory or redis", c.Session.Backend))
	}
	switch c.Storage.Backend {
	case "local":
	case "minio":
		if c.MinIO.Endpoint == "" || c.MinIO.Bucket == "" {
			problems = append(problems, errors.New("minio.endpoint and minio.bucket are required for the minio backend"))
		}
	default:
		problems = append(problems, fmt.Errorf("storage.backend %q: want local or minio", c.Storage.Backend))
	}
	if c.Storage.MaxUploadBytes <= 0 {
		problems = append(problems, errors.New("storage.max_upload_bytes must be positive"))
	}
	if c.Session.TTL < 0 {
		problems = append(problems, errors.New("session.ttl must not be negative"))
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(problems...))
	}
	return nil
}
