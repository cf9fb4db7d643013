package ocr

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	DriverPlaceholder = "placeholder"
	DriverTesseract   = "tesseract"
)

var ErrUnknownDriver = errors.New("unknown OCR driver")

// Adapter извлекает текст из изображения. Никогда не возвращает ошибку:
// при сбое отдаёт помеченный fallback-текст.
type Adapter interface {
	Extract(ctx context.Context, data []byte, filename string) string
}

type Config struct {
	Driver  string
	Lang    string
	Timeout time.Duration
	Binary  string
}

// New выбирает драйвер один раз при старте.
func New(cfg Config) (Adapter, error) {
	switch cfg.Driver {
	case DriverPlaceholder, "":
		return NewPlaceholder(), nil
	case DriverTesseract:
		return NewTesseract(cfg.Binary, cfg.Lang, cfg.Timeout), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}

type placeholderAdapter struct{}

func NewPlaceholder() Adapter {
	return placeholderAdapter{}
}

func (placeholderAdapter) Extract(_ context.Context, _ []byte, filename string) string {
	return fmt.Sprintf("OCR placeholder output for %s.", filename)
}

// IsFallback сообщает, что текст - результат сбоя OCR.
func IsFallback(text string) bool {
	return len(text) >= len(fallbackPrefix) && text[:len(fallbackPrefix)] == fallbackPrefix
}
