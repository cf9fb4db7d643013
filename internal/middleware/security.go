package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/FJFJ0400/capture-ai/internal/apperr"
)

const (
	APIKeyHeader = "x-api-key"
	APIKeyQuery  = "apiKey"
)

// SecurityHeaders добавляет security headers ко всем ответам
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		w.Header().Set("Referrer-Policy", "no-referrer")

		if r.TLS != nil {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}

// RequestSizeLimit ограничивает размер тела запроса
func RequestSizeLimit(maxSize int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, maxSize)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// APIKey пропускает запросы с ключом в заголовке x-api-key или параметре apiKey.
// Параметр нужен EventSource, который не умеет ставить заголовки.
func APIKey(key string) func(http.Handler) http.Handler {
	expected := []byte(key)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided := r.Header.Get(APIKeyHeader)
			if provided == "" {
				provided = r.URL.Query().Get(APIKeyQuery)
			}
			if provided == "" || subtle.ConstantTimeCompare([]byte(provided), expected) != 1 {
				apperr.Write(w, apperr.Unauthorized("Invalid API key."))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
