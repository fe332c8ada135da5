// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, database selection, rate limiting, webhook
// delivery limits, and observability.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-article-webhooks/internal/sysutil"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "article-webhooks")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// WebhookConfig bounds outbound webhook dispatch.
type WebhookConfig struct {
	Timeout     time.Duration // WEBHOOK_TIMEOUT, per delivery attempt
	MaxInFlight int           // WEBHOOK_MAX_IN_FLIGHT, concurrent deliveries before dropping
	UserAgent   string        // WEBHOOK_USER_AGENT
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	ShutdownTimeout   time.Duration // graceful drain of requests and webhooks
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	LogRedact      bool   // use the PII-scrubbing access logger
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// Database
	DBDriver    string // sqlite|postgres
	DBPath      string // SQLite path
	DatabaseURL string // Postgres DSN

	// Webhooks
	Webhook WebhookConfig

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

	// Observability
	OTEL OTELConfig
}

// MustLoad is Load for process start-up: it panics on any error.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads the environment, applies defaults and validates the result.
// Malformed values are errors rather than silent fallbacks; every problem
// found is reported in one joined error.
func Load() (Config, error) {
	e := &env{lookup: os.LookupEnv}

	cfg := Config{
		Port:              e.str("PORT", "8080"),
		ReadTimeout:       e.duration("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: e.duration("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      e.duration("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       e.duration("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    e.integer("MAX_HEADER_BYTES", 1<<20),
		ShutdownTimeout:   e.duration("SHUTDOWN_TIMEOUT", 10*time.Second),
		GinMode:           strings.ToLower(e.str("GIN_MODE", "release")),

		LogLevel:       strings.ToLower(e.str("LOG_LEVEL", "info")),
		LogPretty:      e.flag("LOG_PRETTY", false),
		LogRedact:      e.flag("LOG_REDACT", true),
		SwaggerEnabled: e.flag("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(e.str("API_BASE_PATH", "/api")),

		DBDriver:    strings.ToLower(e.str("DB_DRIVER", "sqlite")),
		DBPath:      e.str("DB_PATH", "app.db"),
		DatabaseURL: e.str("DATABASE_URL", ""),

		Webhook: WebhookConfig{
			Timeout:     e.duration("WEBHOOK_TIMEOUT", 5*time.Second),
			MaxInFlight: e.integer("WEBHOOK_MAX_IN_FLIGHT", 64),
			UserAgent:   e.str("WEBHOOK_USER_AGENT", "article-webhooks/1.0"),
		},

		RateRPS:   e.number("RATE_RPS", 5.0),
		RateBurst: e.integer("RATE_BURST", 10),

		CORS: CORSConfig{AllowedOrigins: splitCSV(e.str("CORS_ALLOWED_ORIGINS", ""))},
		Security: SecurityConfig{
			EnableHSTS: e.flag("ENABLE_HSTS", false),
			HSTSMaxAge: e.duration("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		IdempotencyTTL: e.duration("IDEMPOTENCY_TTL", 24*time.Hour),

		OTEL: OTELConfig{
			Enabled:     e.flag("OTEL_ENABLED", false),
			Endpoint:    e.str("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    e.flag("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: e.str("OTEL_SERVICE_NAME", "article-webhooks"),
			SampleRatio: e.number("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}
	if e.err != nil {
		return cfg, e.err
	}

	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case gin.DebugMode, gin.ReleaseMode, gin.TestMode:
	default:
		cfg.GinMode = gin.ReleaseMode
	}

	return cfg, cfg.validate()
}

func (c Config) validate() error {
	var errs []error
	check := func(ok bool, msg string) {
		if !ok {
			errs = append(errs, errors.New(msg))
		}
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		errs = append(errs, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic"))
	}
	check(strings.TrimSpace(c.Port) != "", "PORT must not be empty")
	check(c.ReadTimeout > 0 && c.ReadHeaderTimeout > 0 && c.WriteTimeout > 0 && c.IdleTimeout > 0 && c.ShutdownTimeout > 0,
		"timeouts must be positive durations")
	check(c.MaxHeaderBytes > 0, "MAX_HEADER_BYTES must be > 0")

	switch c.DBDriver {
	case "sqlite":
		check(strings.TrimSpace(c.DBPath) != "", "DB_PATH must not be empty")
	case "postgres":
		check(strings.TrimSpace(c.DatabaseURL) != "", "DATABASE_URL must be set when DB_DRIVER=postgres")
	default:
		errs = append(errs, errors.New("DB_DRIVER must be one of: sqlite, postgres"))
	}

	check(c.Webhook.Timeout > 0, "WEBHOOK_TIMEOUT must be a positive duration")
	check(c.Webhook.MaxInFlight >= 1, "WEBHOOK_MAX_IN_FLIGHT must be >= 1")
	check(c.RateRPS >= 0, "RATE_RPS must be >= 0")
	check(c.RateBurst >= 1, "RATE_BURST must be >= 1")
	check(c.Security.HSTSMaxAge >= 0, "HSTS_MAX_AGE must be >= 0")
	check(c.IdempotencyTTL > 0, "IDEMPOTENCY_TTL must be > 0")
	check(c.OTEL.SampleRatio >= 0 && c.OTEL.SampleRatio <= 1, "OTEL_TRACES_SAMPLER_ARG must be in [0,1]")

	return errors.Join(errs...)
}

// DSN returns the connection string for the configured driver.
func (c Config) DSN() string {
	if c.DBDriver == "postgres" {
		return c.DatabaseURL
	}
	return sysutil.FirstNonEmpty(c.DBPath, "app.db")
}

// env reads typed variables, remembering every parse failure. Unset or
// empty variables take the default.
type env struct {
	lookup func(string) (string, bool)
	err    error
}

func (e *env) raw(k string) (string, bool) {
	v, ok := e.lookup(k)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (e *env) fail(k, v, want string) {
	e.err = errors.Join(e.err, fmt.Errorf("%s=%q: expected %s", k, v, want))
}

func (e *env) str(k, def string) string {
	if v, ok := e.raw(k); ok {
		return v
	}
	return def
}

func (e *env) integer(k string, def int) int {
	v, ok := e.raw(k)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(k, v, "an integer")
		return def
	}
	return n
}

func (e *env) number(k string, def float64) float64 {
	v, ok := e.raw(k)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.fail(k, v, "a number")
		return def
	}
	return f
}

func (e *env) duration(k string, def time.Duration) time.Duration {
	v, ok := e.raw(k)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(k, v, "a duration such as 5s")
		return def
	}
	return d
}

func (e *env) flag(k string, def bool) bool {
	v, ok := e.raw(k)
	if !ok {
		return def
	}
	switch {
	case sysutil.IsTruthy(v):
		return true
	case sysutil.IsFalsy(v):
		return false
	}
	e.fail(k, v, "a boolean")
	return def
}

// splitCSV splits on commas, dropping blanks.
func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures a leading '/' and strips trailing ones; blank is root.
func normalizeBasePath(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	return "/" + p
}
