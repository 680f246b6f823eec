// Package config loads application configuration from environment variables.
package config

import (
	"errors"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage backends understood by the gateway.
const (
	BackendHTTP  = "http"
	BackendMinio = "minio"
	BackendS3    = "s3"
)

// Config holds all runtime configuration for the asset gateway.
// It is built once at startup and passed to every component that needs it.
type Config struct {
	Port        string
	AppEnv      string
	LogLevel    string
	LogFormat   string
	CORSOrigins []string

	// Upstream object store
	StorageBackend   string
	UpstreamBaseURL  string
	UpstreamReadKey  string // read-only credential, embedded in direct URLs
	UpstreamWriteKey string // write-capable credential, never leaves the server
	UpstreamTimeout  time.Duration

	// Addressing and fallback
	ProxyBasePath     string // path prefix served by the retrieval gateway, e.g. "/files"
	FallbackAssetPath string
	FallbackCache     bool

	// Uploads
	UploadMaxBytes      int64
	UploadSource        string
	UploadJWTSecret     string
	UploadRatePerMinute int
	UploadRateBurst     int

	// MinIO (S3-compatible)
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	// AWS S3
	AWSRegion   string
	S3Bucket    string
	S3Prefix    string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
}

// Load reads configuration from a .env file (if present) and environment variables.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, reading from environment")
	}

	return &Config{
		Port:        getEnv("PORT", "8080"),
		AppEnv:      getEnv("APP_ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFormat:   getEnv("LOG_FORMAT", "text"),
		CORSOrigins: splitAndTrim(getEnv("CORS_ALLOWED_ORIGINS", "*")),

		StorageBackend:   strings.ToLower(getEnv("STORAGE_BACKEND", BackendHTTP)),
		UpstreamBaseURL:  strings.TrimRight(getEnv("UPSTREAM_BASE_URL", "http://localhost:9090"), "/"),
		UpstreamReadKey:  getEnv("UPSTREAM_READ_KEY", ""),
		UpstreamWriteKey: getEnv("UPSTREAM_WRITE_KEY", ""),
		UpstreamTimeout:  getDuration("UPSTREAM_TIMEOUT", 10*time.Second),

		ProxyBasePath:     normalizeBasePath(getEnv("PROXY_BASE_PATH", "/files")),
		FallbackAssetPath: getEnv("FALLBACK_ASSET_PATH", "assets/fallback.jpg"),
		FallbackCache:     getBool("FALLBACK_CACHE", true),

		UploadMaxBytes:      getInt64("UPLOAD_MAX_BYTES", 50<<20),
		UploadSource:        getEnv("UPLOAD_SOURCE", "dashboard"),
		UploadJWTSecret:     getEnv("UPLOAD_JWT_SECRET", ""),
		UploadRatePerMinute: int(getInt64("UPLOAD_RATE_PER_MINUTE", 0)),
		UploadRateBurst:     int(getInt64("UPLOAD_RATE_BURST", 5)),

		MinioEndpoint:  getEnv("STORAGE_ENDPOINT", "localhost:9000"),
		MinioAccessKey: getEnv("STORAGE_ACCESS_KEY", "minioadmin"),
		MinioSecretKey: getEnv("STORAGE_SECRET_KEY", "minioadmin"),
		MinioBucket:    getEnv("STORAGE_BUCKET", "media"),
		MinioUseSSL:    getBool("STORAGE_USE_SSL", false),

		AWSRegion:   getEnv("AWS_REGION", "us-east-1"),
		S3Bucket:    getEnv("S3_BUCKET", ""),
		S3Prefix:    getEnv("S3_PREFIX", ""),
		S3Endpoint:  getEnv("S3_ENDPOINT", ""),
		S3AccessKey: getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey: getEnv("S3_SECRET_KEY", ""),
	}
}

// Validate reports settings that the selected storage backend cannot run without.
func (c *Config) Validate() error {
	var errs []error
	switch c.StorageBackend {
	case BackendHTTP:
		if c.UpstreamBaseURL == "" {
			errs = append(errs, errors.New("UPSTREAM_BASE_URL is required for the http backend"))
		}
		if c.UpstreamReadKey == "" {
			errs = append(errs, errors.New("UPSTREAM_READ_KEY is required for the http backend"))
		}
		if c.UpstreamWriteKey == "" {
			errs = append(errs, errors.New("UPSTREAM_WRITE_KEY is required for the http backend"))
		}
	case BackendMinio:
		if c.MinioEndpoint == "" || c.MinioBucket == "" {
			errs = append(errs, errors.New("STORAGE_ENDPOINT and STORAGE_BUCKET are required for the minio backend"))
		}
	case BackendS3:
		if c.S3Bucket == "" {
			errs = append(errs, errors.New("S3_BUCKET is required for the s3 backend"))
		}
	default:
		errs = append(errs, errors.New("unknown STORAGE_BACKEND "+strconv.Quote(c.StorageBackend)))
	}
	if c.UploadMaxBytes <= 0 {
		errs = append(errs, errors.New("UPLOAD_MAX_BYTES must be positive"))
	}
	return errors.Join(errs...)
}

// IsProduction returns true when the app is running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(getEnv(key, ""))
	if err != nil {
		return fallback
	}
	return v
}

func getInt64(key string, fallback int64) int64 {
	v, err := strconv.ParseInt(getEnv(key, ""), 10, 64)
	if err != nil {
		return fallback
	}
	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(getEnv(key, ""))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func splitAndTrim(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// normalizeBasePath turns "files/", "/files" and "files" into "/files".
func normalizeBasePath(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	if p == "" {
		return "/files"
	}
	return "/" + p
}
