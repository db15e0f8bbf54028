// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes worker settings
// such as the detector cadence, similarity thresholds, external service
// endpoints, logging, and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings for the ops
// endpoints.
type CORSConfig struct {
	AllowedOrigins []string
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// Config holds all configuration values for the worker.
type Config struct {
	// Ops HTTP server (healthz + metrics)
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	GinMode           string        // debug|release|test

	// Logging
	LogLevel  string // debug|info|warn|error|fatal|panic
	LogPretty bool   // pretty console logs in dev

	// Store
	DBPath string // SQLite path

	// Change detector
	PollInterval time.Duration // time between detection cycles
	BatchSize    int           // max items fetched per cycle

	// Similarity gate
	TextThreshold  float64 // min text score [0,1]
	ImageThreshold float64 // min image score [0,1]

	// Scorer endpoints
	TextScorerURL  string
	ImageScorerURL string
	ScorerTimeout  time.Duration
	ScorerRPS      float64 // scorer calls per second (0 disables limiting)
	ScorerBurst    int

	// Live message feed
	FeedURL string // websocket endpoint

	// Push gateway
	PushGatewayURL string
	PushTimeout    time.Duration

	// Web protection (ops endpoints)
	CORS CORSConfig

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

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Ops server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging
		LogLevel:  strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty: getbool("LOG_PRETTY", false),

		// Store
		DBPath: getenv("DB_PATH", "worker.db"),

		// Detector
		PollInterval: getdur("POLL_INTERVAL", 2*time.Minute),
		BatchSize:    getint("BATCH_SIZE", 50),

		// Gate
		TextThreshold:  getfloat("TEXT_THRESHOLD", 0.7),
		ImageThreshold: getfloat("IMAGE_THRESHOLD", 0.85),

		// Scorers
		TextScorerURL:  getenv("TEXT_SCORER_URL", "http://127.0.0.1:5000/similarity"),
		ImageScorerURL: getenv("IMAGE_SCORER_URL", "http://127.0.0.1:5001/image_similarity"),
		ScorerTimeout:  getdur("SCORER_TIMEOUT", 10*time.Second),
		ScorerRPS:      getfloat("SCORER_RPS", 10.0),
		ScorerBurst:    getint("SCORER_BURST", 5),

		// Feed
		FeedURL: getenv("FEED_URL", "ws://127.0.0.1:9000/feed/messages"),

		// Push gateway
		PushGatewayURL: getenv("PUSH_GATEWAY_URL", "http://127.0.0.1:9100"),
		PushTimeout:    getdur("PUSH_TIMEOUT", 10*time.Second),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "lostfound-worker"),
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
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if cfg.PollInterval <= 0 {
		return cfg, errors.New("POLL_INTERVAL must be > 0")
	}
	if cfg.BatchSize < 1 {
		return cfg, errors.New("BATCH_SIZE must be >= 1")
	}
	if cfg.TextThreshold < 0 || cfg.TextThreshold > 1 {
		return cfg, errors.New("TEXT_THRESHOLD must be between 0 and 1")
	}
	if cfg.ImageThreshold < 0 || cfg.ImageThreshold > 1 {
		return cfg, errors.New("IMAGE_THRESHOLD must be between 0 and 1")
	}
	if strings.TrimSpace(cfg.TextScorerURL) == "" || strings.TrimSpace(cfg.ImageScorerURL) == "" {
		return cfg, errors.New("scorer URLs must not be empty")
	}
	if cfg.ScorerTimeout <= 0 || cfg.PushTimeout <= 0 {
		return cfg, errors.New("SCORER_TIMEOUT and PUSH_TIMEOUT must be > 0")
	}
	if cfg.ScorerRPS < 0 {
		return cfg, errors.New("SCORER_RPS must be >= 0")
	}
	if cfg.ScorerBurst < 1 {
		return cfg, errors.New("SCORER_BURST must be >= 1")
	}
	if strings.TrimSpace(cfg.FeedURL) == "" {
		return cfg, errors.New("FEED_URL must not be empty")
	}
	if strings.TrimSpace(cfg.PushGatewayURL) == "" {
		return cfg, errors.New("PUSH_GATEWAY_URL must not be empty")
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
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

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
