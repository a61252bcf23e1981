package infra

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Config holds all application configuration parsed from environment variables.
type Config struct {
	// Database
	DatabaseURL string `env:"DATABASE_URL"`
	PGHost      string `env:"PGHOST" envDefault:"localhost"`
	PGPort      int    `env:"PGPORT" envDefault:"5432"`
	PGUser      string `env:"PGUSER" envDefault:"betlink"`
	PGPassword  string `env:"PGPASSWORD" envDefault:"betlink"`
	PGDatabase  string `env:"PGDATABASE" envDefault:"betlink"`

	// Redis
	RedisURL string `env:"REDIS_URL" envDefault:"redis://localhost:6379"`

	// Server
	APIPort            int    `env:"API_PORT" envDefault:"8080"`
	RequestTimeout     string `env:"REQUEST_TIMEOUT" envDefault:"30s"`
	MaxRequestBodyMB   int    `env:"MAX_REQUEST_BODY_MB" envDefault:"10"`
	MaxConcurrentReqs  int    `env:"MAX_CONCURRENT_REQUESTS" envDefault:"512"`
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*"`

	// Secrets
	EncryptionKey     string `env:"ENCRYPTION_KEY"`
	InternalJWTKey    string `env:"INTERNAL_JWT_KEY"`
	InternalJWTExpiry string `env:"INTERNAL_JWT_EXPIRY" envDefault:"8h"`

	// Admission
	EnableIPWhitelist  bool `env:"ENABLE_IP_WHITELIST" envDefault:"false"`
	EnableRateLimiting bool `env:"ENABLE_RATE_LIMITING" envDefault:"true"`
	DefaultRateLimit   int  `env:"DEFAULT_RATE_LIMIT" envDefault:"300"`
	APIKeyCacheTTLSecs int  `env:"API_KEY_CACHE_TTL_SECS" envDefault:"300"`

	// Providers
	ProviderTimeout  string `env:"PROVIDER_TIMEOUT" envDefault:"10s"`
	CallbackSkewSecs int    `env:"CALLBACK_SKEW_SECS" envDefault:"300"`
	NonceTTLSecs     int    `env:"NONCE_TTL_SECS" envDefault:"600"`
	SessionTTLHours  int    `env:"SESSION_TTL_HOURS" envDefault:"24"`
	IframeHost       string `env:"IFRAME_HOST" envDefault:"https://games.betlink.io"`

	// AML
	AMLThresholdOverrides string `env:"AML_THRESHOLD_OVERRIDES"` // "EUR=9500,GBP=8000"

	// Reporting
	ReportStoragePath string `env:"REPORT_STORAGE_PATH" envDefault:"/var/lib/betlink/reports"`
	ReportWorkers     int    `env:"REPORT_WORKERS" envDefault:"5"`
	ReportQueueSize   int    `env:"REPORT_QUEUE_SIZE" envDefault:"256"`

	// Kafka
	KafkaBrokers string `env:"KAFKA_BROKERS" envDefault:"localhost:9092"`
	KafkaEnabled bool   `env:"KAFKA_ENABLED" envDefault:"false"`

	// Dev
	AllowInsecureDefaults bool `env:"ALLOW_INSECURE_DEFAULTS" envDefault:"false"`
	Debug                 bool `env:"DEBUG" envDefault:"false"`
}

// LoadConfig parses environment variables into a Config struct.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Validate checks for insecure configuration that must not run in production.
// Set ALLOW_INSECURE_DEFAULTS=true to bypass (local dev only).
func (c *Config) Validate() error {
	if c.AllowInsecureDefaults {
		return nil
	}
	if len(c.EncryptionKey) != 64 {
		return fmt.Errorf("ENCRYPTION_KEY must be 32 bytes hex-encoded (64 chars), got %d chars", len(c.EncryptionKey))
	}
	if len(c.InternalJWTKey) < 32 {
		return fmt.Errorf("INTERNAL_JWT_KEY is too short (%d chars); minimum 32 characters required", len(c.InternalJWTKey))
	}
	return nil
}

// DSN returns the PostgreSQL connection string, preferring DATABASE_URL if set.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.PGUser, c.PGPassword, c.PGHost, c.PGPort, c.PGDatabase)
}

// AMLThresholds parses AML_THRESHOLD_OVERRIDES into a currency → amount map.
// Malformed entries are skipped.
func (c *Config) AMLThresholds() map[string]string {
	out := make(map[string]string)
	for _, pair := range strings.Split(c.AMLThresholdOverrides, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || k == "" || v == "" {
			continue
		}
		out[strings.ToUpper(k)] = v
	}
	return out
}
