package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the full server configuration, parsed from the process environment.
type Config struct {
	Port        string   `env:"PORT" envDefault:"8787"`
	Environment string   `env:"ENVIRONMENT" envDefault:"development"`
	BaseURL     string   `env:"BASE_URL" envDefault:"http://localhost:3000"`
	APIBaseURL  string   `env:"API_BASE_URL" envDefault:"http://localhost:8787"`
	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`

	Database DatabaseConfig
	Auth     AuthConfig
	OAuth    OAuthEnv
	Storage  StorageConfig
	Redis    RedisConfig
	Search   SearchConfig
	Email    EmailConfig
	Tracing  TracingConfig
	Log      LogConfig
	Audio    AudioConfig

	RequireServices []string `env:"REQUIRE_SERVICES" envSeparator:","`
}

type DatabaseConfig struct {
	Driver   string `env:"DB_DRIVER" envDefault:"postgres"`
	URL      string `env:"DATABASE_URL"`
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     string `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"postgres"`
	Password string `env:"DB_PASSWORD"`
	Name     string `env:"DB_NAME" envDefault:"soundbay"`
	SSLMode  string `env:"DB_SSLMODE" envDefault:"disable"`
	// SQLitePath is used when Driver is sqlite
	SQLitePath   string `env:"DB_SQLITE_PATH" envDefault:"soundbay.db"`
	MaxOpenConns int    `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns int    `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
}

// DSN builds a Postgres connection string, preferring DATABASE_URL.
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

type AuthConfig struct {
	JWTSecret  string        `env:"JWT_SECRET"`
	TokenTTL   time.Duration `env:"JWT_TTL" envDefault:"24h"`
	TOTPIssuer string        `env:"TOTP_ISSUER" envDefault:"Soundbay"`
}

type OAuthEnv struct {
	RedirectURL         string `env:"OAUTH_REDIRECT_URL"`
	GoogleClientID      string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret  string `env:"GOOGLE_CLIENT_SECRET"`
	DiscordClientID     string `env:"DISCORD_CLIENT_ID"`
	DiscordClientSecret string `env:"DISCORD_CLIENT_SECRET"`
}

type StorageConfig struct {
	Driver     string        `env:"STORAGE_DRIVER" envDefault:"local"`
	Region     string        `env:"AWS_REGION" envDefault:"us-east-1"`
	Bucket     string        `env:"AWS_BUCKET"`
	Endpoint   string        `env:"AWS_ENDPOINT_URL"`
	CDNBaseURL string        `env:"CDN_BASE_URL"`
	LocalDir   string        `env:"LOCAL_STORAGE_DIR" envDefault:"./data/objects"`
	SignedTTL  time.Duration `env:"STREAM_URL_TTL" envDefault:"15m"`
}

type RedisConfig struct {
	Host     string `env:"REDIS_HOST"`
	Port     string `env:"REDIS_PORT" envDefault:"6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

// Enabled reports whether a Redis host was configured
func (r RedisConfig) Enabled() bool { return r.Host != "" }

type SearchConfig struct {
	ElasticsearchURL string `env:"ELASTICSEARCH_URL"`
	Username         string `env:"ELASTICSEARCH_USERNAME"`
	Password         string `env:"ELASTICSEARCH_PASSWORD"`
	// Zero disables periodic reconciliation
	ReconcileInterval time.Duration `env:"SEARCH_RECONCILE_INTERVAL" envDefault:"6h"`
	CacheTTL          time.Duration `env:"SEARCH_CACHE_TTL" envDefault:"5m"`
}

// Enabled reports whether an Elasticsearch URL was configured
func (s SearchConfig) Enabled() bool { return s.ElasticsearchURL != "" }

type EmailConfig struct {
	Region    string `env:"SES_REGION"`
	FromEmail string `env:"SES_FROM_EMAIL"`
	FromName  string `env:"SES_FROM_NAME" envDefault:"Soundbay"`
}

// Enabled reports whether SES delivery is configured
func (e EmailConfig) Enabled() bool { return e.FromEmail != "" }

type TracingConfig struct {
	Enabled      bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTLPEndpoint string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	SamplingRate float64 `env:"OTEL_SAMPLING_RATE" envDefault:"0.1"`
	ServiceName  string  `env:"OTEL_SERVICE_NAME" envDefault:"soundbay-backend"`
}

type LogConfig struct {
	Level string `env:"LOG_LEVEL" envDefault:"info"`
	File  string `env:"LOG_FILE" envDefault:"server.log"`
}

type AudioConfig struct {
	Workers      int           `env:"TRANSCODE_WORKERS"`
	QueueSize    int           `env:"TRANSCODE_QUEUE_SIZE" envDefault:"100"`
	Timeout      time.Duration `env:"TRANSCODE_TIMEOUT" envDefault:"5m"`
	MaxUploadMB  int64         `env:"MAX_UPLOAD_MB" envDefault:"100"`
	AutoApprove  bool          `env:"AUTO_APPROVE_TRACKS" envDefault:"false"`
	TempDir      string        `env:"TRANSCODE_TEMP_DIR"`
	WaveformBars int           `env:"WAVEFORM_BARS" envDefault:"200"`
}

// Load reads .env (if present) and parses the environment into a Config.
func Load() (*Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.Audio.Workers == 0 {
		cfg.Audio.Workers = DefaultWorkers()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultWorkers is min(NumCPU, 8)
func DefaultWorkers() int {
	n := runtime.NumCPU()
	if n > 8 {
		return 8
	}
	if n < 1 {
		return 1
	}
	return n
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// Validate checks settings that cannot be defaulted.
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		if c.IsProduction() {
			return fmt.Errorf("JWT_SECRET is required in production")
		}
		c.Auth.JWTSecret = "dev-secret-change-me"
	}
	if c.Audio.Workers <= 0 {
		return fmt.Errorf("TRANSCODE_WORKERS must be positive, got %d", c.Audio.Workers)
	}
	if c.Audio.QueueSize <= 0 {
		return fmt.Errorf("TRANSCODE_QUEUE_SIZE must be positive, got %d", c.Audio.QueueSize)
	}
	if c.Audio.MaxUploadMB <= 0 {
		return fmt.Errorf("MAX_UPLOAD_MB must be positive, got %d", c.Audio.MaxUploadMB)
	}
	switch c.Storage.Driver {
	case "local":
	case "s3":
		if c.Storage.Bucket == "" {
			return fmt.Errorf("AWS_BUCKET is required when STORAGE_DRIVER=s3")
		}
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.Storage.Driver)
	}
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unknown DB_DRIVER %q", c.Database.Driver)
	}
	return nil
}

// Requires reports whether the named backing service must be reachable at boot
func (c *Config) Requires(service string) bool {
	for _, s := range c.RequireServices {
		if strings.EqualFold(strings.TrimSpace(s), service) {
			return true
		}
	}
	return false
}
