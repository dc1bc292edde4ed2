package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Application
	AppName string
	AppEnv  string
	AppURL  string // Base URI for rendered temporary links
	Port    string

	// Database (optional driver switch via ENV, default: sqlite)
	DBDriver     string
	DBConnection string
	AutoMigrate  bool // Run pending migrations on boot

	// Security
	JWTSecret string
	JWTExpiry time.Duration

	// Observability (optional)
	LogLevel  string // debug|info|warn|error
	SentryDSN string

	// Storage: "local" (default) or "s3" (AWS S3, MinIO, R2, DO Spaces, ...)
	StorageDriver string
	StoragePath   string
	S3Region      string
	S3Bucket      string
	S3AccessKey   string
	S3SecretKey   string
	S3Endpoint    string // Optional: for S3-compatible services

	// Images
	MaxUploadSize    int64
	ThumbnailQuality int
	DefaultPlanID    int64
	PlansFile        string // Optional: plan catalog synced on startup

	// Expirable links
	LinkMinDuration time.Duration
	LinkMaxDuration time.Duration
	LinkRateLimit   float64 // requests per second per IP on /l/{id}
	LinkRateBurst   int

	// HTTP
	UploadConcurrency  int64
	UploadQueueTimeout time.Duration
	CORSAllowedOrigins []string
}

func Load() *Config {
	// Load .env file if it exists
	err := godotenv.Load()
	if err != nil {
		slog.Info("no .env file found, using environment variables")
	}

	cfg := &Config{
		// Application
		AppName: envString("APP_NAME", "pixelplan"),
		AppEnv:  envRequired("APP_ENV"), // Required: 'development' or 'production'
		AppURL:  envRequired("APP_URL"), // Required: base URL for temporary links
		Port:    envString("PORT", "8090"),

		// Database
		DBDriver:     envString("DB_DRIVER", "sqlite"),
		DBConnection: envString("DB_CONNECTION", "./data/pixelplan.db?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"),
		AutoMigrate:  envBool("AUTO_MIGRATE", true),

		// Security
		JWTSecret: envRequired("JWT_SECRET"),
		JWTExpiry: envDuration("JWT_EXPIRY", 168*time.Hour), // 7 days

		// Observability
		LogLevel:  envString("LOG_LEVEL", ""),
		SentryDSN: envString("SENTRY_DSN", ""),

		// Storage
		StorageDriver: envString("STORAGE_DRIVER", "local"),
		StoragePath:   envString("STORAGE_PATH", "./data/media"),
		S3Region:      envString("S3_REGION", ""),
		S3Bucket:      envString("S3_BUCKET", ""),
		S3AccessKey:   envString("S3_ACCESS_KEY", ""),
		S3SecretKey:   envString("S3_SECRET_KEY", ""),
		S3Endpoint:    envString("S3_ENDPOINT", ""),

		// Images
		MaxUploadSize:    int64(envInt("MAX_UPLOAD_SIZE", 10<<20)), // 10MB
		ThumbnailQuality: envInt("THUMBNAIL_QUALITY", 85),
		DefaultPlanID:    int64(envInt("DEFAULT_PLAN_ID", 1)),
		PlansFile:        envString("PLANS_FILE", ""),

		// Expirable links
		LinkMinDuration: envDuration("LINK_MIN_DURATION", 300*time.Second),
		LinkMaxDuration: envDuration("LINK_MAX_DURATION", 30000*time.Second),
		LinkRateLimit:   envFloat("LINK_RATE_LIMIT", 5),
		LinkRateBurst:   envInt("LINK_RATE_BURST", 20),

		// HTTP
		UploadConcurrency:  int64(envInt("UPLOAD_CONCURRENCY", 4)),
		UploadQueueTimeout: envDuration("UPLOAD_QUEUE_TIMEOUT", 10*time.Second),
		CORSAllowedOrigins: envList("CORS_ALLOWED_ORIGINS", []string{"*"}),
	}

	if cfg.IsProduction() {
		validateProduction(cfg)
	}

	return cfg
}

// validateProduction refuses to boot production with development-only fallbacks.
func validateProduction(cfg *Config) {
	if len(cfg.JWTSecret) < 32 {
		slog.Error("production deployment requires JWT_SECRET of at least 32 characters")
		os.Exit(1)
	}
	if cfg.StorageDriver == "s3" && cfg.S3Bucket == "" {
		slog.Error("production deployment with STORAGE_DRIVER=s3 requires S3_BUCKET")
		os.Exit(1)
	}
}

func envString(key, def string) string {
	value := os.Getenv(key)
	if value == "" {
		value = def
	}
	return value
}

func envInt(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("config invalid int, using default", "key", key, "value", v, "default", def)
		return def
	}
	return i
}

func envFloat(key string, def float64) float64 {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		slog.Warn("config invalid float, using default", "key", key, "value", v, "default", def)
		return def
	}
	return f
}

func envBool(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		slog.Warn("config invalid bool, using default", "key", key, "value", v, "default", def)
		return def
	}
	return b
}

func envDuration(key string, def time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("config invalid duration, using default", "key", key, "value", v, "default", def)
		return def
	}
	return d
}

func envList(key string, def []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}

func envRequired(key string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	slog.Error("config required env var missing", "key", key)
	os.Exit(1)
	return ""
}

func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// Sanitized returns a copy of the config without secrets or credentials.
// Safe to log at startup.
func (c *Config) Sanitized() *Config {
	return &Config{
		AppName:            c.AppName,
		AppEnv:             c.AppEnv,
		AppURL:             c.AppURL,
		Port:               c.Port,
		DBDriver:           c.DBDriver,
		AutoMigrate:        c.AutoMigrate,
		LogLevel:           c.LogLevel,
		StorageDriver:      c.StorageDriver,
		StoragePath:        c.StoragePath,
		S3Region:           c.S3Region,
		S3Bucket:           c.S3Bucket,
		S3Endpoint:         c.S3Endpoint,
		MaxUploadSize:      c.MaxUploadSize,
		ThumbnailQuality:   c.ThumbnailQuality,
		DefaultPlanID:      c.DefaultPlanID,
		PlansFile:          c.PlansFile,
		LinkMinDuration:    c.LinkMinDuration,
		LinkMaxDuration:    c.LinkMaxDuration,
		LinkRateLimit:      c.LinkRateLimit,
		LinkRateBurst:      c.LinkRateBurst,
		UploadConcurrency:  c.UploadConcurrency,
		UploadQueueTimeout: c.UploadQueueTimeout,
		CORSAllowedOrigins: c.CORSAllowedOrigins,
	}
}
