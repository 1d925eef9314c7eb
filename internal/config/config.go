package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	HTTPAddr string

	// Default quota applied when a credential carries none of its own.
	DefaultPerMinute int64
	DefaultPerHour   int64
	DefaultPerDay    int64
	DefaultBurst     int

	// Input guard limits.
	MaxPayloadLength int

	// Audit buffer flushing.
	AuditFlushSize     int
	AuditFlushInterval time.Duration

	// Audit retention per severity band.
	AuditRetentionDefault  time.Duration
	AuditRetentionHigh     time.Duration
	AuditRetentionCritical time.Duration
	AuditPurgeSchedule     string
}

// Module provides configuration to the fx graph.
var Module = fx.Provide(Load)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:     getenv("APP_SERVICE", "sentra"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "sentra"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", "postgres"),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),

		RedisAddr:     getenv("REDIS_ADDR", ""),
		RedisPassword: getenv("REDIS_PASSWORD", ""),
		RedisDB:       getenvInt("REDIS_DB", 0),

		HTTPAddr: getenv("HTTP_ADDR", ":8080"),

		DefaultPerMinute: getenvInt64("QUOTA_PER_MINUTE", 60),
		DefaultPerHour:   getenvInt64("QUOTA_PER_HOUR", 1000),
		DefaultPerDay:    getenvInt64("QUOTA_PER_DAY", 10000),
		DefaultBurst:     getenvInt("QUOTA_BURST", 10),

		MaxPayloadLength: getenvInt("GUARD_MAX_PAYLOAD_LENGTH", 10000),

		AuditFlushSize:     getenvInt("AUDIT_FLUSH_SIZE", 100),
		AuditFlushInterval: getenvDuration("AUDIT_FLUSH_INTERVAL", 5*time.Second),

		AuditRetentionDefault:  getenvDuration("AUDIT_RETENTION_DEFAULT", 90*24*time.Hour),
		AuditRetentionHigh:     getenvDuration("AUDIT_RETENTION_HIGH", 365*24*time.Hour),
		AuditRetentionCritical: getenvDuration("AUDIT_RETENTION_CRITICAL", 2*365*24*time.Hour),
		AuditPurgeSchedule:     getenv("AUDIT_PURGE_SCHEDULE", "0 3 * * *"),
	}
}

func getenv(key, def string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return def
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}
