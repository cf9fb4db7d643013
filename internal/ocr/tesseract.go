package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const (
	fallbackPrefix   = "OCR fallback output for "
	defaultTimeout   = 20 * time.Second
	defaultLang      = "eng"
	defaultTesseract = "tesseract"
)

type tesseractAdapter struct {
	binary  string
	lang    string
	timeout time.Duration
}

// NewTesseract вызывает CLI tesseract: изображение через stdin, текст из stdout.
func NewTesseract(binary, lang string, timeout time.Duration) Adapter {
	if binary == "" {
		binary = defaultTesseract
	}
	if lang == "" {
		lang = defaultLang
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &tesseractAdapter{binary: binary, lang: lang, timeout: timeout}
}

func (a *tesseractAdapter) Extract(ctx context.Context, data []byte, filename string) string {
	text, err := a.run(ctx, data)
	if err != nil {
		return fmt.Sprintf("%s%s. Tesseract failed: %s", fallbackPrefix, filename, err.Error())
	}
	return text
}

func (a *tesseractAdapter) run(ctx context.Context, data []byte) (string, error) {
	runCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, a.binary, "stdin", "stdout", "-l", a.lang)
	cmd.Stdin = bytes.NewReader(data)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return "", fmt.Errorf("OCR timed out after %dms", a.timeout.Milliseconds())
	}
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("%v: %s", err, msg)
		}
		return "", err
	}
	return stdout.String(), nil
}
