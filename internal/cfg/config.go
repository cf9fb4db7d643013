package cfg

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env      string
	HTTPPort string
	GRPCPort string
	// порт /metrics и /health воркера
	WorkerHTTPPort string
	// адрес CaptureService для notification и capturectl
	CaptureGRPCAddr string

	LogLevel  string
	LogFormat string

	APIKey             string
	AllowedCORSOrigins []string
	RateLimitRequests  int
	RateLimitWindow    time.Duration

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	QueueName        string
	QueueConcurrency int
	QueueAttempts    int
	QueueBackoff     time.Duration
	QueueRetention   int64
	QueueLease       time.Duration
	QueuePoll        time.Duration
	QueueReap        time.Duration

	StorageDriver        string
	StorageLocalPath     string
	StorageEncryptionKey string
	S3Endpoint           string
	S3Region             string
	S3Bucket             string
	S3AccessKey          string
	S3SecretKey          string
	S3UseSSL             bool

	OCRAdapter string
	OCRLang    string
	OCRTimeout time.Duration
	OCRBinary  string

	MaxUploadBytes int64
	MaxUploadFiles int

	StreamInterval time.Duration

	ShareStageDriver string
	ShareStageTTL    time.Duration
	ShareTokenSecret string

	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroupID string

	MongoURI        string
	MongoDatabase   string
	MongoCollection string

	ShutdownGracePeriod time.Duration
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	IdleTimeout         time.Duration
}

// LoadConfig читает окружение и проверяет конфигурацию API и воркера.
func LoadConfig() (Config, error) {
	cfg := Load()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Load читает окружение без проверки; вспомогательным процессам нужна лишь часть полей.
func Load() Config {
	// .env необязателен
	_ = godotenv.Load(".env")

	cfg := Config{
		Env:            getEnv("APP_ENV", "development"),
		HTTPPort:       getEnv("HTTP_PORT", "4000"),
		GRPCPort:       getEnv("GRPC_PORT", "9090"),
		WorkerHTTPPort: getEnv("WORKER_HTTP_PORT", "9100"),

		CaptureGRPCAddr: getEnv("CAPTURE_GRPC_ADDR", "localhost:9090"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		APIKey:             os.Getenv("API_KEY"),
		AllowedCORSOrigins: parseCSVEnv("ALLOWED_ORIGINS"),
		RateLimitRequests:  getEnvInt("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow:    getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     getEnv("DB_NAME", "capture_inbox"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		QueueName:        getEnv("QUEUE_NAME", "capture-jobs"),
		QueueConcurrency: getEnvInt("QUEUE_CONCURRENCY", 2),
		QueueAttempts:    getEnvInt("QUEUE_ATTEMPTS", 3),
		QueueBackoff:     getEnvDuration("QUEUE_BACKOFF", 2*time.Second),
		QueueRetention:   getEnvInt64("QUEUE_RETENTION", 1000),
		QueueLease:       getEnvDuration("QUEUE_LEASE", 2*time.Minute),
		QueuePoll:        getEnvDuration("QUEUE_POLL_INTERVAL", time.Second),
		QueueReap:        getEnvDuration("QUEUE_REAP_INTERVAL", 15*time.Second),

		StorageDriver:        strings.ToLower(getEnv("STORAGE_DRIVER", "local")),
		StorageLocalPath:     getEnv("STORAGE_LOCAL_PATH", "./data/uploads"),
		StorageEncryptionKey: os.Getenv("STORAGE_ENCRYPTION_KEY"),
		S3Endpoint:           os.Getenv("S3_ENDPOINT"),
		S3Region:             getEnv("S3_REGION", "us-east-1"),
		S3Bucket:             os.Getenv("S3_BUCKET"),
		S3AccessKey:          os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:          os.Getenv("S3_SECRET_KEY"),
		S3UseSSL:             getEnvBool("S3_USE_SSL", true),

		OCRAdapter: strings.ToLower(getEnv("OCR_ADAPTER", "placeholder")),
		OCRLang:    getEnv("OCR_LANG", "eng"),
		OCRTimeout: getEnvDuration("OCR_TIMEOUT", 20*time.Second),
		OCRBinary:  getEnv("OCR_BINARY", "tesseract"),

		MaxUploadBytes: getEnvInt64("MAX_UPLOAD_BYTES", 10*1024*1024),
		MaxUploadFiles: getEnvInt("MAX_UPLOAD_FILES", 10),

		StreamInterval: getEnvDuration("STREAM_INTERVAL", 3*time.Second),

		ShareStageDriver: strings.ToLower(getEnv("SHARE_STAGE_DRIVER", "memory")),
		ShareStageTTL:    getEnvDuration("SHARE_STAGE_TTL", 20*time.Minute),
		ShareTokenSecret: os.Getenv("SHARE_TOKEN_SECRET"),

		KafkaBrokers: parseCSVEnv("KAFKA_BROKERS"),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "capture-events"),
		KafkaGroupID: getEnv("KAFKA_GROUP_ID", "capture-notification"),

		MongoURI:        os.Getenv("MONGO_URI"),
		MongoDatabase:   getEnv("MONGO_DATABASE", "capture_inbox"),
		MongoCollection: getEnv("MONGO_COLLECTION", "capture_failures"),

		ShutdownGracePeriod: getEnvDuration("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		ReadTimeout:         getEnvDuration("READ_TIMEOUT", 15*time.Second),
		WriteTimeout:        getEnvDuration("WRITE_TIMEOUT", 0),
		IdleTimeout:         getEnvDuration("IDLE_TIMEOUT", 60*time.Second),
	}

	// токены шаринга по умолчанию подписываются API-ключом
	if cfg.ShareTokenSecret == "" {
		cfg.ShareTokenSecret = cfg.APIKey
	}
	return cfg
}

// Validate проверяет обязательные параметры и имена драйверов.
func (c Config) Validate() error {
	var errs []error

	if len(c.APIKey) < 6 {
		errs = append(errs, errors.New("API_KEY must be at least 6 characters"))
	}
	if key, err := hex.DecodeString(c.StorageEncryptionKey); err != nil || len(key) != 32 {
		errs = append(errs, errors.New("STORAGE_ENCRYPTION_KEY must be 64 hex characters"))
	}

	switch c.StorageDriver {
	case "local":
		if c.StorageLocalPath == "" {
			errs = append(errs, errors.New("STORAGE_LOCAL_PATH is required for local storage"))
		}
	case "s3":
		if c.S3Bucket == "" || c.S3AccessKey == "" || c.S3SecretKey == "" {
			errs = append(errs, errors.New("S3_BUCKET, S3_ACCESS_KEY and S3_SECRET_KEY are required for s3 storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver))
	}

	switch c.OCRAdapter {
	case "placeholder", "tesseract":
	default:
		errs = append(errs, fmt.Errorf("unknown OCR_ADAPTER %q", c.OCRAdapter))
	}

	switch c.ShareStageDriver {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("unknown SHARE_STAGE_DRIVER %q", c.ShareStageDriver))
	}

	if c.MaxUploadBytes <= 0 || c.MaxUploadFiles <= 0 {
		errs = append(errs, errors.New("MAX_UPLOAD_BYTES and MAX_UPLOAD_FILES must be positive"))
	}
	if c.QueueConcurrency <= 0 || c.QueueAttempts <= 0 {
		errs = append(errs, errors.New("QUEUE_CONCURRENCY and QUEUE_ATTEMPTS must be positive"))
	}

	return errors.Join(errs...)
}

// PostgresDSN собирает DSN в формате pgx.
func (c Config) PostgresDSN() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort, c.DBSSLMode,
	)
}

func getEnv(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		if parsed, err := strconv.ParseInt(val, 10, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return fallback
}

// getEnvDuration принимает "20s" или число миллисекунд.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	if parsed, err := time.ParseDuration(val); err == nil {
		return parsed
	}
	if msec, err := strconv.ParseInt(val, 10, 64); err == nil {
		return time.Duration(msec) * time.Millisecond
	}
	return fallback
}

func parseCSVEnv(key string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
