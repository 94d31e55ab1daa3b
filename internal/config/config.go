package config

import (
	"os"
	"runtime"
	"strconv"
)

// DatabaseConfig holds PostgreSQL connection settings for the audit trail.
// An empty Host disables the audit trail.
type DatabaseConfig struct {
	Host               string
	Port               string
	User               string
	Password           string
	Name               string
	SSLMode            string
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetimeSec int
}

// Enabled reports whether a database host was configured.
func (c DatabaseConfig) Enabled() bool { return c.Host != "" }

// MinIOConfig holds object storage settings for the stego image archive.
// An empty Endpoint disables archiving.
type MinIOConfig struct {
	Endpoint         string
	AccessKey        string
	SecretKey        string
	Bucket           string
	UseSSL           bool
	URLExpirySeconds int
}

// Enabled reports whether an object storage endpoint was configured.
func (c MinIOConfig) Enabled() bool { return c.Endpoint != "" }

// KDFConfig holds Argon2id cost settings and the number of derivations allowed to run at once.
type KDFConfig struct {
	Time      int
	MemoryKiB int
	Threads   int
	Workers   int
}

// StegoConfig holds limits and defaults for the hide/extract engine.
type StegoConfig struct {
	MaxImageBytes        int
	MaxImagePixels       int
	GeofenceRadiusMeters float64
	KDF                  KDFConfig
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level       string
	Development bool
}

// AppConfig is the centralized configuration struct for the application.
// It is populated from environment variables. Sensitive values are not hardcoded.
type AppConfig struct {
	AppHost         string
	Port            string
	ReadTimeoutSec  int
	WriteTimeoutSec int
	Log             LogConfig
	Stego           StegoConfig
	Database        DatabaseConfig
	MinIO           MinIOConfig
}

// Load reads configuration from environment variables.
// A .env file can be auto-loaded by importing: _ "github.com/joho/godotenv/autoload"
// This function does not require a .env file; real environment variables take precedence.
func Load() *AppConfig {
	return &AppConfig{
		AppHost:         getEnv("APP_HOST", "localhost:8080"),
		Port:            getEnv("PORT", "8080"),
		ReadTimeoutSec:  getEnvInt("READ_TIMEOUT_SEC", 30),
		WriteTimeoutSec: getEnvInt("WRITE_TIMEOUT_SEC", 60),
		Log: LogConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Development: getEnvBool("LOG_DEVELOPMENT", false),
		},
		Stego: StegoConfig{
			MaxImageBytes:        getEnvInt("MAX_IMAGE_BYTES", 8*1024*1024),
			MaxImagePixels:       getEnvInt("MAX_IMAGE_PIXELS", 40_000_000),
			GeofenceRadiusMeters: getEnvFloat("GEOFENCE_RADIUS_METERS", 1000),
			KDF: KDFConfig{
				Time:      getEnvInt("KDF_TIME", 3),
				MemoryKiB: getEnvInt("KDF_MEMORY_KIB", 64*1024),
				Threads:   getEnvInt("KDF_THREADS", 4),
				Workers:   getEnvInt("KDF_WORKERS", runtime.GOMAXPROCS(0)),
			},
		},
		Database: DatabaseConfig{
			Host:               getEnv("DB_HOST", ""),
			Port:               getEnv("DB_PORT", "5432"),
			User:               getEnv("DB_USER", ""),
			Password:           getEnv("DB_PASSWORD", ""),
			Name:               getEnv("DB_NAME", ""),
			SSLMode:            getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:       getEnvInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:       getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetimeSec: getEnvInt("DB_CONN_MAX_LIFETIME_SEC", 300),
		},
		MinIO: MinIOConfig{
			Endpoint:         getEnv("MINIO_ENDPOINT", ""),
			AccessKey:        getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey:        getEnv("MINIO_SECRET_KEY", ""),
			Bucket:           getEnv("MINIO_BUCKET", ""),
			UseSSL:           getEnvBool("MINIO_USE_SSL", false),
			URLExpirySeconds: getEnvInt("ARCHIVE_URL_EXPIRY_SEC", 3600),
		},
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err == nil {
			return f
		}
	}
	return def
}
