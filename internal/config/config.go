package config

import (
	"context"
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

const devJWTSecret = "dev-secret-change-me-before-deploying"

// Config is the full runtime configuration, loaded from environment
// variables. Defaults are tuned for local development; Load rejects weak
// secrets outside the development profile.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	HTTPPort int `env:"HTTP_PORT" envDefault:"8080"`

	PostgresHost string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"coinwatch"`
	PostgresPass string `env:"POSTGRES_PASSWORD" envDefault:"coinwatch_secret"`
	PostgresDB   string `env:"POSTGRES_DB" envDefault:"coinwatch"`
	PostgresSSL  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`

	RedisAddr string `env:"REDIS_ADDR"`

	JWTSecret       string        `env:"JWT_SECRET" envDefault:"dev-secret-change-me-before-deploying"`
	JWTIssuer       string        `env:"JWT_ISSUER" envDefault:"coinwatch"`
	JWTAudience     string        `env:"JWT_AUDIENCE" envDefault:"coinwatch-api"`
	AccessTokenTTL  time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"15m"`
	RefreshTokenTTL time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"720h"`
	TokenPepper     string        `env:"TOKEN_PEPPER"`

	PasswordResetTTL time.Duration `env:"PASSWORD_RESET_TTL" envDefault:"15m"`
	PublicBaseURL    string        `env:"PUBLIC_BASE_URL" envDefault:"http://127.0.0.1:8080"`

	SMTPHost string `env:"SMTP_HOST"`
	SMTPPort int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser string `env:"SMTP_USER"`
	SMTPPass string `env:"SMTP_PASSWORD"`
	SMTPFrom string `env:"SMTP_FROM" envDefault:"no-reply@coinwatch.local"`

	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`

	AuthRateLimitRPM int `env:"AUTH_RATE_LIMIT_RPM" envDefault:"60"`
	APIRateLimitRPM  int `env:"API_RATE_LIMIT_RPM" envDefault:"600"`

	MarketUpstreamBaseURL string        `env:"MARKET_UPSTREAM_BASE_URL" envDefault:"http://localhost:9100"`
	MarketCacheTTL        time.Duration `env:"MARKET_CACHE_TTL" envDefault:"30s"`

	OTELMetricsEnabled        bool          `env:"OTEL_METRICS_ENABLED" envDefault:"false"`
	OTELTracingEnabled        bool          `env:"OTEL_TRACING_ENABLED" envDefault:"false"`
	OTELExporterOTLPEndpoint  string        `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4317"`
	OTELExporterOTLPInsecure  bool          `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"true"`
	OTELServiceName           string        `env:"OTEL_SERVICE_NAME" envDefault:"coinwatch"`
	OTELMetricsExportInterval time.Duration `env:"OTEL_METRICS_EXPORT_INTERVAL" envDefault:"30s"`
	EnableOTelHTTP            bool          `env:"OTEL_HTTP_ENABLED" envDefault:"false"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		err = fmt.Errorf("parse config: %w", err)
		recordConfigValidationEvent(context.Background(), cfg.Environment, "failure", classifyConfigLoadError(err))
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		err = fmt.Errorf("validate config: %w", err)
		recordConfigValidationEvent(context.Background(), cfg.Environment, "failure", classifyConfigLoadError(err))
		return nil, err
	}
	recordConfigValidationEvent(context.Background(), cfg.Environment, "success", "none")
	return cfg, nil
}

func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 {
		return fmt.Errorf("token TTLs must be positive")
	}
	if c.RefreshTokenTTL <= c.AccessTokenTTL {
		return fmt.Errorf("REFRESH_TOKEN_TTL must exceed ACCESS_TOKEN_TTL")
	}
	if c.Environment != "development" {
		if c.JWTSecret == devJWTSecret {
			return fmt.Errorf("JWT_SECRET must be explicitly set in %q mode", c.Environment)
		}
		if len(c.JWTSecret) < 32 {
			return fmt.Errorf("JWT_SECRET must be at least 32 characters, got %d", len(c.JWTSecret))
		}
	}
	return nil
}

// PostgresDSN returns the connection string for gorm's postgres driver.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.PostgresHost, c.PostgresPort, c.PostgresUser, c.PostgresPass, c.PostgresDB, c.PostgresSSL,
	)
}
