package config

import (
	"os"
	"strconv"
	"time"
)

// DatabaseConfig holds PostgreSQL database connection settings.
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

// MinIOConfig holds object storage settings for raw uploads.
type MinIOConfig struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	Bucket        string
	UseSSL        bool
	PresignExpiry time.Duration
}

// RedisConfig holds the event stream broker connection.
type RedisConfig struct {
	URL string
}

// AuthConfig holds bearer token settings.
type AuthConfig struct {
	JWTSecret string
}

// LogConfig selects zap level and encoding ("json" or "console").
type LogConfig struct {
	Level  string
	Format string
}

// RetryConfig bounds retries against the database and the broker.
type RetryConfig struct {
	MaxAttempts     int
	InitialInterval time.Duration
}

// RecoveryConfig drives the sweep that resumes documents stuck in ingested.
type RecoveryConfig struct {
	Schedule    string
	StaleAfter  time.Duration
	MaxAttempts int
	BatchSize   int
}

// PolicyConfig controls periodic policy reload for writes made by other processes.
// An empty schedule disables it.
type PolicyConfig struct {
	ReloadSchedule string
}

// ReviewConfig configures the review queue consumer.
type ReviewConfig struct {
	ConsumerName string
	BatchSize    int
	Block        time.Duration
	ClaimIdle    time.Duration
}

// TracingConfig configures the OTLP exporter.
type TracingConfig struct {
	Enabled     bool
	ServiceName string
}

// AppConfig is the centralized configuration struct for the application.
// It is populated from environment variables. Sensitive values are not hardcoded.
type AppConfig struct {
	Port         string
	ReviewerPort string
	Database     DatabaseConfig
	MinIO        MinIOConfig
	Redis        RedisConfig
	Auth         AuthConfig
	Log          LogConfig
	Retry        RetryConfig
	Recovery     RecoveryConfig
	Policy       PolicyConfig
	Review       ReviewConfig
	Tracing      TracingConfig
}

// Load reads configuration from environment variables.
// A .env file can be auto-loaded by importing: _ "github.com/joho/godotenv/autoload"
// This function does not require a .env file; real environment variables take precedence.
func Load() *AppConfig {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "reviewer"
	}

	return &AppConfig{
		Port:         getEnv("PORT", "8080"),
		ReviewerPort: getEnv("REVIEWER_PORT", "8081"),
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
			Endpoint:      getEnv("MINIO_ENDPOINT", ""),
			AccessKey:     getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey:     getEnv("MINIO_SECRET_KEY", ""),
			Bucket:        getEnv("MINIO_BUCKET", ""),
			UseSSL:        getEnvBool("MINIO_USE_SSL", false),
			PresignExpiry: getEnvDuration("MINIO_PRESIGN_EXPIRY", 15*time.Minute),
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", "redis://localhost:6379/0"),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Retry: RetryConfig{
			MaxAttempts:     getEnvInt("RETRY_MAX_ATTEMPTS", 3),
			InitialInterval: getEnvDuration("RETRY_INITIAL_INTERVAL", 100*time.Millisecond),
		},
		Recovery: RecoveryConfig{
			Schedule:    getEnv("RECOVERY_SCHEDULE", "@every 1m"),
			StaleAfter:  getEnvDuration("RECOVERY_STALE_AFTER", 2*time.Minute),
			MaxAttempts: getEnvInt("RECOVERY_MAX_ATTEMPTS", 5),
			BatchSize:   getEnvInt("RECOVERY_BATCH_SIZE", 50),
		},
		Policy: PolicyConfig{
			ReloadSchedule: getEnv("POLICY_RELOAD_SCHEDULE", "@every 30s"),
		},
		Review: ReviewConfig{
			ConsumerName: getEnv("REVIEW_CONSUMER_NAME", hostname),
			BatchSize:    getEnvInt("REVIEW_BATCH_SIZE", 10),
			Block:        getEnvDuration("REVIEW_BLOCK", 5*time.Second),
			ClaimIdle:    getEnvDuration("REVIEW_CLAIM_IDLE", time.Minute),
		},
		Tracing: TracingConfig{
			Enabled:     getEnvBool("OTEL_ENABLED", true),
			ServiceName: getEnv("OTEL_SERVICE_NAME", "docgov"),
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

// getEnvDuration accepts Go duration strings ("250ms", "2m").
func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err == nil && d > 0 {
			return d
		}
	}
	return def
}
