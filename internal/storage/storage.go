package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path"
	"regexp"

	"github.com/spf13/afero"
)

const (
	DriverLocal = "local"
	DriverS3    = "s3"
)

var (
	ErrNotFound      = errors.New("stored object not found")
	ErrUnknownDriver = errors.New("unknown storage driver")
	ErrEmptyKey      = errors.New("storage key required")
)

// Adapter - хранилище байтов по непрозрачному ключу.
// Remove отсутствующего ключа не считается ошибкой.
type Adapter interface {
	Save(ctx context.Context, key string, data []byte) error
	Read(ctx context.Context, key string) ([]byte, error)
	Remove(ctx context.Context, key string) error
}

type Config struct {
	Driver        string
	LocalPath     string
	EncryptionKey string

	S3Endpoint  string
	S3Region    string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string
	S3UseSSL    bool
}

// New собирает драйвер по конфигурации и оборачивает его шифрованием.
func New(ctx context.Context, cfg Config) (Adapter, error) {
	cipher, err := NewCipher(cfg.EncryptionKey)
	if err != nil {
		return nil, err
	}

	var backend Adapter
	switch cfg.Driver {
	case DriverLocal, "":
		backend = NewLocalStorage(afero.NewOsFs(), cfg.LocalPath)
	case DriverS3:
		backend, err = NewMinioStorage(ctx, MinioConfig{
			Endpoint:  cfg.S3Endpoint,
			Region:    cfg.S3Region,
			Bucket:    cfg.S3Bucket,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			UseSSL:    cfg.S3UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("init s3 storage: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}

	return NewEncrypted(backend, cipher), nil
}

func HashSHA256(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// SanitizeFilename заменяет всё, кроме [a-zA-Z0-9._-], на '_'.
func SanitizeFilename(filename string) string {
	if filename == "" {
		return "upload"
	}
	return unsafeFilenameChars.ReplaceAllString(filename, "_")
}

// CaptureKey строит ключ вида captures/{id}/{name}.
func CaptureKey(captureID, filename string) string {
	return path.Join("captures", captureID, SanitizeFilename(filename))
}
