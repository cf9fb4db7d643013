package capture

import (
	"fmt"
	"mime"
	"path/filepath"
	"strings"
)

// допустимые расширения по MIME типу
var allowedExtensions = map[string][]string{
	"image/png":  {".png"},
	"image/jpeg": {".jpg", ".jpeg"},
	"image/webp": {".webp"},
}

// FileError - ошибка проверки конкретного файла.
type FileError struct {
	Err      error
	Filename string
	MimeType string
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s: %s (%s)", e.Err, e.Filename, e.MimeType)
}

func (e *FileError) Unwrap() error {
	return e.Err
}

// NormalizeMime убирает параметры из Content-Type.
func NormalizeMime(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return mediaType
}

// ValidateType проверяет MIME тип и соответствие расширения.
func ValidateType(filename, mimeType string) error {
	exts, ok := allowedExtensions[mimeType]
	if !ok {
		return &FileError{Err: ErrUnsupportedMime, Filename: filename, MimeType: mimeType}
	}
	ext := strings.ToLower(filepath.Ext(filename))
	for _, allowed := range exts {
		if ext == allowed {
			return nil
		}
	}
	return &FileError{Err: ErrUnsupportedExt, Filename: filename, MimeType: mimeType}
}

func ValidateSize(filename string, size, maxBytes int64) error {
	if size > maxBytes {
		return &FileError{Err: ErrFileTooLarge, Filename: filename}
	}
	return nil
}
