package config

import (
	"context"
	"encoding/json"
	"time"
)

// Config represents the complete configuration for an ETL run.
// It provides type-safe access to all configuration values with validation.
type Config struct {
	Database DatabaseConfig `koanf:"database" validate:"required"`
	Source   SourceConfig   `koanf:"source"   validate:"required"`
	Notify   NotifyConfig   `koanf:"notify"`
	Runtime  RuntimeConfig  `koanf:"runtime"  validate:"required"`
	Metrics  MetricsConfig  `koanf:"metrics"`
	Lock     LockConfig     `koanf:"lock"`
}

// DatabaseConfig contains database connection configuration.
type DatabaseConfig struct {
	Driver          string          `koanf:"driver"            validate:"oneof=postgres sqlite" env:"DB_DRIVER"`
	ConnString      string          `koanf:"conn_string"                                       env:"DB_CONN_STRING"`
	Host            string          `koanf:"host"                                              env:"DB_HOST"`
	Port            string          `koanf:"port"                                              env:"DB_PORT"`
	User            string          `koanf:"user"                                              env:"DB_USER"`
	Password        SensitiveString `koanf:"password"                                          env:"DB_PASSWORD"         sensitive:"true"`
	DBName          string          `koanf:"name"                                              env:"DB_NAME"`
	SSLMode         string          `koanf:"ssl_mode"                                          env:"DB_SSL_MODE"`
	SQLitePath      string          `koanf:"sqlite_path"                                       env:"DB_SQLITE_PATH"`
	MaxOpenConns    int             `koanf:"max_open_conns"    validate:"min=1"                env:"DB_MAX_OPEN_CONNS"`
	ConnectTimeout  time.Duration   `koanf:"connect_timeout"                                   env:"DB_CONNECT_TIMEOUT"`
	BusyTimeout     time.Duration   `koanf:"busy_timeout"                                      env:"DB_BUSY_TIMEOUT"`
	ConnMaxLifetime time.Duration   `koanf:"conn_max_lifetime"                                 env:"DB_CONN_MAX_LIFETIME"`
}

// SourceConfig selects where order documents are read from.
type SourceConfig struct {
	Driver  string         `koanf:"driver"  validate:"oneof=fs s3" env:"SOURCE_DRIVER"`
	Dir     string         `koanf:"dir"                            env:"SOURCE_DIR"`
	Pattern string         `koanf:"pattern" validate:"required"    env:"SOURCE_PATTERN"`
	S3      S3SourceConfig `koanf:"s3"`
}

// S3SourceConfig contains object storage settings for the s3 source driver.
type S3SourceConfig struct {
	Bucket          string          `koanf:"bucket"            env:"SOURCE_S3_BUCKET"            validate:"s3_bucket"`
	Prefix          string          `koanf:"prefix"            env:"SOURCE_S3_PREFIX"`
	Region          string          `koanf:"region"            env:"SOURCE_S3_REGION"`
	Endpoint        string          `koanf:"endpoint"          env:"SOURCE_S3_ENDPOINT"`
	UsePathStyle    bool            `koanf:"use_path_style"    env:"SOURCE_S3_USE_PATH_STYLE"`
	AccessKeyID     string          `koanf:"access_key_id"     env:"SOURCE_S3_ACCESS_KEY_ID"`
	SecretAccessKey SensitiveString `koanf:"secret_access_key" env:"SOURCE_S3_SECRET_ACCESS_KEY" sensitive:"true"`
}

// NotifyConfig selects the sink that receives the run outcome.
type NotifyConfig struct {
	Driver  string        `koanf:"driver"  validate:"oneof=smtp webhook log none" env:"NOTIFY_DRIVER"`
	SMTP    SMTPConfig    `koanf:"smtp"`
	Webhook WebhookConfig `koanf:"webhook"`
}

// SMTPConfig contains mail relay settings.
type SMTPConfig struct {
	Host      string          `koanf:"host"      env:"EMAIL_HOST"`
	Port      int             `koanf:"port"      env:"EMAIL_PORT"      validate:"min=0,max=65535"`
	User      string          `koanf:"user"      env:"EMAIL_USER"`
	Password  SensitiveString `koanf:"password"  env:"EMAIL_PASS"      sensitive:"true"`
	Recipient string          `koanf:"recipient" env:"ALERT_RECIPIENT"`
}

// WebhookConfig contains settings for the HTTP notification sink.
type WebhookConfig struct {
	URL     string        `koanf:"url"     env:"NOTIFY_WEBHOOK_URL"`
	Timeout time.Duration `koanf:"timeout" env:"NOTIFY_WEBHOOK_TIMEOUT"`
}

// RuntimeConfig contains runtime behavior configuration.
type RuntimeConfig struct {
	LogLevel        string        `koanf:"log_level"         validate:"oneof=debug info warn error" env:"RUNTIME_LOG_LEVEL"`
	LogJSON         bool          `koanf:"log_json"                                                 env:"RUNTIME_LOG_JSON"`
	LogDir          string        `koanf:"log_dir"                                                  env:"RUNTIME_LOG_DIR"`
	LoadRetries     int           `koanf:"load_retries"      validate:"min=0,max=10"                env:"RUNTIME_LOAD_RETRIES"`
	RetryBackoff    time.Duration `koanf:"retry_backoff"                                            env:"RUNTIME_RETRY_BACKOFF"`
	MaxRetryBackoff time.Duration `koanf:"max_retry_backoff"                                        env:"RUNTIME_MAX_RETRY_BACKOFF"`
}

// MetricsConfig controls the Prometheus textfile export.
type MetricsConfig struct {
	Enabled      bool   `koanf:"enabled"       env:"METRICS_ENABLED"`
	TextfilePath string `koanf:"textfile_path" env:"METRICS_TEXTFILE_PATH"`
}

// LockConfig enables a Redis lock that keeps runs from overlapping across
// processes.
type LockConfig struct {
	Driver string        `koanf:"driver" validate:"oneof=none redis" env:"RUN_LOCK_DRIVER"`
	Key    string        `koanf:"key"                                env:"RUN_LOCK_KEY"`
	TTL    time.Duration `koanf:"ttl"                                env:"RUN_LOCK_TTL"`
	Redis  RedisConfig   `koanf:"redis"`
}

// RedisConfig locates the Redis server. URL takes precedence over host/port.
type RedisConfig struct {
	URL      string          `koanf:"url"      env:"REDIS_URL"`
	Host     string          `koanf:"host"     env:"REDIS_HOST"`
	Port     string          `koanf:"port"     env:"REDIS_PORT"`
	Password SensitiveString `koanf:"password" env:"REDIS_PASSWORD" sensitive:"true"`
	DB       int             `koanf:"db"       env:"REDIS_DB"`
	TLS      bool            `koanf:"tls"      env:"REDIS_TLS"`
}

// Service defines the configuration loading service interface.
type Service interface {
	// Load loads configuration from the specified sources with precedence order.
	Load(ctx context.Context, sources ...Source) (*Config, error)
	// Validate checks if the configuration meets all validation requirements.
	Validate(config *Config) error
	// GetSource returns the source type for a specific configuration key.
	GetSource(key string) SourceType
}

// Source defines the interface for configuration sources.
type Source interface {
	// Load reads configuration from the source.
	Load() (map[string]any, error)
	// Type returns the source type identifier.
	Type() SourceType
	// Close releases any resources held by the source.
	Close() error
}

// SourceType identifies the type of configuration source.
type SourceType string

const (
	SourceCLI     SourceType = "cli"
	SourceYAML    SourceType = "yaml"
	SourceEnv     SourceType = "env"
	SourceDefault SourceType = "default"
)

// Metadata contains metadata about configuration sources.
type Metadata struct {
	Sources  map[string]SourceType `json:"sources"`
	LoadedAt time.Time             `json:"loaded_at"`
}

// Load loads configuration using the default service.
func Load(ctx context.Context, sources ...Source) (*Config, error) {
	return NewService().Load(ctx, sources...)
}

// Default returns a Config with default values for local runs.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:          "postgres",
			Host:            "localhost",
			Port:            "5432",
			SSLMode:         "disable",
			SQLitePath:      "orderetl.db",
			MaxOpenConns:    4,
			ConnectTimeout:  10 * time.Second,
			BusyTimeout:     5 * time.Second,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Source: SourceConfig{
			Driver:  "fs",
			Dir:     "data",
			Pattern: "*.json",
		},
		Notify: NotifyConfig{
			Driver: "log",
			SMTP: SMTPConfig{
				Port: 587,
			},
			Webhook: WebhookConfig{
				Timeout: 10 * time.Second,
			},
		},
		Runtime: RuntimeConfig{
			LogLevel:        "info",
			LogDir:          "logs",
			LoadRetries:     0,
			RetryBackoff:    500 * time.Millisecond,
			MaxRetryBackoff: 10 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Lock: LockConfig{
			Driver: "none",
			Key:    "orderetl:run",
			TTL:    30 * time.Minute,
			Redis: RedisConfig{
				Host: "localhost",
				Port: "6379",
			},
		},
	}
}

const redacted = "[REDACTED]"

// SensitiveString holds a secret that must never be printed or serialized.
type SensitiveString string

func (s SensitiveString) String() string {
	if s == "" {
		return ""
	}
	return redacted
}

// Value returns the underlying secret.
func (s SensitiveString) Value() string {
	return string(s)
}

func (s SensitiveString) MarshalYAML() (any, error) {
	return s.String(), nil
}

func (s SensitiveString) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *SensitiveString) UnmarshalJSON(data []byte) error {
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*s = SensitiveString(v)
	return nil
}
