// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes settings for the
// HTTP server, logging, the ledger store, billing, the recognition pipeline,
// operator auth, queue ingestion, rate limiting, and observability.
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
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "parking-alpr")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// DBConfig selects and tunes the ledger store.
type DBConfig struct {
	Driver       string        // DB_DRIVER: sqlite|postgres
	Path         string        // DB_PATH: SQLite file
	DSN          string        // DB_DSN: Postgres URL
	MaxOpen      int           // DB_MAX_OPEN
	BusyTimeout  time.Duration // DB_BUSY_TIMEOUT (SQLite)
	StoreTimeout time.Duration // STORE_TIMEOUT: per ledger operation
	SeedDev      bool          // DB_SEED_DEV: write TEST rows at startup
}

// BillingConfig is the tariff.
type BillingConfig struct {
	UnitSeconds int64 // FEE_UNIT_SECONDS
	UnitPrice   int64 // FEE_UNIT_PRICE (PLN)
}

// VisionConfig configures detection and recognition.
type VisionConfig struct {
	DetectorURL     string        // DETECTOR_URL; empty means whole-frame detection
	RecognizerURL   string        // RECOGNIZER_URL (OCR_ENGINE=http)
	OCREngine       string        // OCR_ENGINE: http|tesseract|rekognition
	OCRLanguages    []string      // OCR_LANGUAGES
	EngineTimeout   time.Duration // ENGINE_TIMEOUT
	MinDetConf      float64       // DETECTOR_MIN_CONF
	CropPadding     int           // CROP_PADDING
	Fallback        bool          // OCR_FALLBACK
	FallbackMinLen  int           // OCR_FALLBACK_MIN_LEN
	FallbackMinConf float64       // OCR_FALLBACK_MIN_CONF
	MaxImageBytes   int64         // MAX_IMAGE_BYTES
	AWSRegion       string        // AWS_REGION (rekognition, sqs)
}

// AuthConfig protects operator routes with HS256 bearer tokens.
type AuthConfig struct {
	JWTSecret string // OPERATOR_JWT_SECRET; empty disables operator auth
	JWTIssuer string // OPERATOR_JWT_ISSUER; checked when set
}

// IngestConfig configures the gate event queue consumer.
type IngestConfig struct {
	SQSQueueURL string        // SQS_QUEUE_URL; empty disables the consumer
	WaitTime    time.Duration // SQS_WAIT_TIME (long poll, max 20s)
	MaxMessages int           // SQS_MAX_MESSAGES (1..10)
	Visibility  time.Duration // SQS_VISIBILITY_TIMEOUT
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
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	LogRedact      bool   // LOG_REDACT: mask plates and tokens in access logs
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// Ledger
	DB      DBConfig
	Billing BillingConfig

	// Recognition
	Vision VisionConfig

	// Operators and gate feeds
	Auth     AuthConfig
	Ingest   IngestConfig
	LiveFeed bool // LIVE_FEED_ENABLED: websocket decision stream

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
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		LogRedact:      getbool("LOG_REDACT", true),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// Ledger
		DB: DBConfig{
			Driver:       strings.ToLower(getenv("DB_DRIVER", "sqlite")),
			Path:         getenv("DB_PATH", "parking.db"),
			DSN:          getenv("DB_DSN", ""),
			MaxOpen:      getint("DB_MAX_OPEN", 10),
			BusyTimeout:  getdur("DB_BUSY_TIMEOUT", 5*time.Second),
			StoreTimeout: getdur("STORE_TIMEOUT", 5*time.Second),
			SeedDev:      getbool("DB_SEED_DEV", false),
		},
		Billing: BillingConfig{
			UnitSeconds: int64(getint("FEE_UNIT_SECONDS", 2)),
			UnitPrice:   int64(getint("FEE_UNIT_PRICE", 5)),
		},

		// Recognition
		Vision: VisionConfig{
			DetectorURL:     getenv("DETECTOR_URL", ""),
			RecognizerURL:   getenv("RECOGNIZER_URL", ""),
			OCREngine:       strings.ToLower(getenv("OCR_ENGINE", "http")),
			OCRLanguages:    splitCSV(getenv("OCR_LANGUAGES", "eng")),
			EngineTimeout:   getdur("ENGINE_TIMEOUT", 10*time.Second),
			MinDetConf:      getfloat("DETECTOR_MIN_CONF", 0.35),
			CropPadding:     getint("CROP_PADDING", 30),
			Fallback:        getbool("OCR_FALLBACK", true),
			FallbackMinLen:  getint("OCR_FALLBACK_MIN_LEN", 6),
			FallbackMinConf: getfloat("OCR_FALLBACK_MIN_CONF", 0.40),
			MaxImageBytes:   int64(getint("MAX_IMAGE_BYTES", 10<<20)),
			AWSRegion:       getenv("AWS_REGION", ""),
		},

		// Operators and gate feeds
		Auth: AuthConfig{
			JWTSecret: getenv("OPERATOR_JWT_SECRET", ""),
			JWTIssuer: getenv("OPERATOR_JWT_ISSUER", ""),
		},
		Ingest: IngestConfig{
			SQSQueueURL: getenv("SQS_QUEUE_URL", ""),
			WaitTime:    getdur("SQS_WAIT_TIME", 20*time.Second),
			MaxMessages: getint("SQS_MAX_MESSAGES", 10),
			Visibility:  getdur("SQS_VISIBILITY_TIMEOUT", 60*time.Second),
		},
		LiveFeed: getbool("LIVE_FEED_ENABLED", true),

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

		// Idempotency
		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "parking-alpr"),
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
	switch cfg.DB.Driver {
	case "sqlite":
		if strings.TrimSpace(cfg.DB.Path) == "" {
			return cfg, errors.New("DB_PATH must not be empty")
		}
	case "postgres":
		if strings.TrimSpace(cfg.DB.DSN) == "" {
			return cfg, errors.New("DB_DSN is required when DB_DRIVER=postgres")
		}
	default:
		return cfg, errors.New("DB_DRIVER must be one of: sqlite, postgres")
	}
	if cfg.DB.StoreTimeout <= 0 || cfg.DB.BusyTimeout <= 0 {
		return cfg, errors.New("STORE_TIMEOUT and DB_BUSY_TIMEOUT must be positive durations")
	}
	if cfg.Billing.UnitSeconds <= 0 || cfg.Billing.UnitPrice <= 0 {
		return cfg, errors.New("FEE_UNIT_SECONDS and FEE_UNIT_PRICE must be > 0")
	}
	if cfg.Vision.MinDetConf < 0 || cfg.Vision.MinDetConf > 1 {
		return cfg, errors.New("DETECTOR_MIN_CONF must be between 0 and 1")
	}
	if cfg.Vision.FallbackMinConf < 0 || cfg.Vision.FallbackMinConf > 1 {
		return cfg, errors.New("OCR_FALLBACK_MIN_CONF must be between 0 and 1")
	}
	if cfg.Vision.CropPadding < 0 {
		return cfg, errors.New("CROP_PADDING must be >= 0")
	}
	if cfg.Vision.EngineTimeout <= 0 {
		return cfg, errors.New("ENGINE_TIMEOUT must be a positive duration")
	}
	if cfg.Vision.MaxImageBytes <= 0 {
		return cfg, errors.New("MAX_IMAGE_BYTES must be > 0")
	}
	if cfg.Vision.OCREngine == "" {
		return cfg, errors.New("OCR_ENGINE must not be empty")
	}
	if cfg.Ingest.MaxMessages < 1 || cfg.Ingest.MaxMessages > 10 {
		return cfg, errors.New("SQS_MAX_MESSAGES must be between 1 and 10")
	}
	if cfg.Ingest.WaitTime < 0 || cfg.Ingest.WaitTime > 20*time.Second {
		return cfg, errors.New("SQS_WAIT_TIME must be between 0s and 20s")
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
	if cfg.IdempotencyTTL <= 0 {
		return cfg, errors.New("IDEMPOTENCY_TTL must be > 0")
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
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
