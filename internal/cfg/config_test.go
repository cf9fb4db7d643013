package cfg

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testEncryptionKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("API_KEY", "secret-key")
	t.Setenv("STORAGE_ENCRYPTION_KEY", testEncryptionKey)
}

func TestLoadConfig_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "4000", cfg.HTTPPort)
	assert.Equal(t, "9090", cfg.GRPCPort)
	assert.Equal(t, "9100", cfg.WorkerHTTPPort)
	assert.Equal(t, "local", cfg.StorageDriver)
	assert.Equal(t, "placeholder", cfg.OCRAdapter)
	assert.Equal(t, 20*time.Second, cfg.OCRTimeout)
	assert.Equal(t, int64(10*1024*1024), cfg.MaxUploadBytes)
	assert.Equal(t, 10, cfg.MaxUploadFiles)
	assert.Equal(t, 2, cfg.QueueConcurrency)
	assert.Equal(t, 3, cfg.QueueAttempts)
	assert.Equal(t, 2*time.Second, cfg.QueueBackoff)
	assert.Equal(t, int64(1000), cfg.QueueRetention)
	assert.Equal(t, 3*time.Second, cfg.StreamInterval)
	assert.Equal(t, 20*time.Minute, cfg.ShareStageTTL)
	assert.Equal(t, "secret-key", cfg.ShareTokenSecret)
	assert.Equal(t, 60, cfg.RateLimitRequests)
	assert.Empty(t, cfg.KafkaBrokers)
}

func TestLoadConfig_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("OCR_ADAPTER", "Tesseract")
	t.Setenv("OCR_TIMEOUT", "1500")
	t.Setenv("QUEUE_BACKOFF", "5s")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("S3_USE_SSL", "false")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "tesseract", cfg.OCRAdapter)
	assert.Equal(t, 1500*time.Millisecond, cfg.OCRTimeout)
	assert.Equal(t, 5*time.Second, cfg.QueueBackoff)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	assert.False(t, cfg.S3UseSSL)
}

func TestLoadConfig_ValidationErrors(t *testing.T) {
	t.Setenv("API_KEY", "abc")
	t.Setenv("STORAGE_ENCRYPTION_KEY", "not-hex")
	t.Setenv("STORAGE_DRIVER", "ftp")
	t.Setenv("OCR_ADAPTER", "cloud")
	t.Setenv("SHARE_STAGE_DRIVER", "disk")

	_, err := LoadConfig()
	require.Error(t, err)

	msg := err.Error()
	for _, want := range []string{"API_KEY", "STORAGE_ENCRYPTION_KEY", "STORAGE_DRIVER", "OCR_ADAPTER", "SHARE_STAGE_DRIVER"} {
		assert.True(t, strings.Contains(msg, want), "missing %s in %q", want, msg)
	}
}

func TestValidate_S3RequiresCredentials(t *testing.T) {
	setRequired(t)
	t.Setenv("STORAGE_DRIVER", "s3")
	t.Setenv("S3_BUCKET", "captures")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "S3_ACCESS_KEY")

	t.Setenv("S3_ACCESS_KEY", "minio")
	t.Setenv("S3_SECRET_KEY", "minio123")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "s3", cfg.StorageDriver)
}

func TestPostgresDSN(t *testing.T) {
	cfg := Config{DBHost: "db", DBUser: "u", DBPassword: "p", DBName: "n", DBPort: "5432", DBSSLMode: "disable"}
	assert.Equal(t, "host=db user=u password=p dbname=n port=5432 sslmode=disable TimeZone=UTC", cfg.PostgresDSN())
}

func TestLoad_SkipsValidation(t *testing.T) {
	t.Setenv("API_KEY", "")
	t.Setenv("STORAGE_ENCRYPTION_KEY", "")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092")
	t.Setenv("CAPTURE_GRPC_ADDR", "api:9090")

	cfg := Load()
	assert.Equal(t, []string{"kafka-1:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "api:9090", cfg.CaptureGRPCAddr)
	assert.Error(t, cfg.Validate())
}
