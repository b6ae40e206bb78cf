// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, database paths, WhatsApp session
// lifecycle knobs, extraction, rate limiting, and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
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
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// SessionConfig defines WhatsApp session lifecycle settings.
type SessionConfig struct {
	StoreDir             string        // WA_STORE_DIR, per-tenant device store files
	ReconnectDelay       time.Duration // WA_RECONNECT_DELAY
	MaxReconnectAttempts int           // WA_MAX_RECONNECT_ATTEMPTS
	SweepInterval        time.Duration // WA_SWEEP_INTERVAL
	IdleTimeout          time.Duration // WA_IDLE_TIMEOUT
	HardIdleTimeout      time.Duration // WA_HARD_IDLE_TIMEOUT
}

// ExtractionConfig defines LLM extraction settings.
type ExtractionConfig struct {
	OpenAIAPIKey  string        // OPENAI_API_KEY
	Model         string        // OPENAI_MODEL
	Interval      time.Duration // EXTRACTION_INTERVAL
	BatchSize     int           // EXTRACTION_BATCH_SIZE
	MinConfidence float64       // EXTRACTION_MIN_CONFIDENCE
	AutoStart     bool          // EXTRACTION_AUTOSTART
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	GinMode           string // debug|release|test

	// Logging
	LogLevel    string // debug|info|warn|error|fatal|panic
	LogPretty   bool   // pretty console logs in dev
	APIBasePath string // base path for API routes

	// App
	DBPath string // SQLite path

	// Domain
	Session    SessionConfig
	Extraction ExtractionConfig

	// Rate limiting
	RateRPS   float64
	RateBurst int

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables, applies defaults,
// normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging
		LogLevel:    strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:   getbool("LOG_PRETTY", false),
		APIBasePath: normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// App
		DBPath: getenv("DB_PATH", "listings.db"),

		// Session lifecycle
		Session: SessionConfig{
			StoreDir:             getenv("WA_STORE_DIR", "wa-store"),
			ReconnectDelay:       getdur("WA_RECONNECT_DELAY", 15*time.Second),
			MaxReconnectAttempts: getint("WA_MAX_RECONNECT_ATTEMPTS", 5),
			SweepInterval:        getdur("WA_SWEEP_INTERVAL", time.Minute),
			IdleTimeout:          getdur("WA_IDLE_TIMEOUT", 10*time.Minute),
			HardIdleTimeout:      getdur("WA_HARD_IDLE_TIMEOUT", 6*time.Hour),
		},

		// Extraction
		Extraction: ExtractionConfig{
			OpenAIAPIKey:  getenv("OPENAI_API_KEY", ""),
			Model:         getenv("OPENAI_MODEL", ""),
			Interval:      getdur("EXTRACTION_INTERVAL", 5*time.Minute),
			BatchSize:     getint("EXTRACTION_BATCH_SIZE", 10),
			MinConfidence: getfloat("EXTRACTION_MIN_CONFIDENCE", 0.3),
			AutoStart:     getbool("EXTRACTION_AUTOSTART", true),
		},

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "whatsapp-listings"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if strings.TrimSpace(cfg.Session.StoreDir) == "" {
		return cfg, errors.New("WA_STORE_DIR must not be empty")
	}
	if cfg.Session.ReconnectDelay <= 0 {
		return cfg, errors.New("WA_RECONNECT_DELAY must be > 0")
	}
	if cfg.Session.MaxReconnectAttempts < 0 {
		return cfg, errors.New("WA_MAX_RECONNECT_ATTEMPTS must be >= 0")
	}
	if cfg.Session.SweepInterval <= 0 || cfg.Session.IdleTimeout <= 0 || cfg.Session.HardIdleTimeout <= 0 {
		return cfg, errors.New("session sweep and idle timeouts must be positive durations")
	}
	if cfg.Session.HardIdleTimeout < cfg.Session.IdleTimeout {
		return cfg, errors.New("WA_HARD_IDLE_TIMEOUT must be >= WA_IDLE_TIMEOUT")
	}
	if cfg.Extraction.BatchSize < 1 {
		return cfg, errors.New("EXTRACTION_BATCH_SIZE must be >= 1")
	}
	if cfg.Extraction.MinConfidence < 0 || cfg.Extraction.MinConfidence > 1 {
		return cfg, errors.New("EXTRACTION_MIN_CONFIDENCE must be in [0,1]")
	}
	if cfg.Extraction.Interval <= 0 {
		return cfg, errors.New("EXTRACTION_INTERVAL must be > 0")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

// getdur parses a Go duration ("15s", "2m"). Bare integers are treated as
// seconds for convenience.
func getdur(k string, def time.Duration) time.Duration {
	v, ok := os.LookupEnv(k)
	if !ok || v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return def
}

// splitCSV splits a comma-separated list, trimming whitespace and dropping
// empty entries.
func splitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures a leading slash and trims trailing slashes so
// route joining stays predictable. "/" collapses to empty (mount at root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	for len(p) > 1 && strings.HasSuffix(p, "/") {
		p = p[:len(p)-1]
	}
	if p == "" || p == "/" {
		return ""
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}
