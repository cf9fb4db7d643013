package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// CORSOptions; пустой AllowedOrigins разрешает любой Origin.
type CORSOptions struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposeHeaders    []string
	AllowCredentials bool
	MaxAge           time.Duration
}

var (
	defaultCORSMethods = []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete}
	defaultCORSHeaders = []string{"Content-Type", APIKeyHeader, "Last-Event-ID"}
	defaultCORSExpose  = []string{"Content-Disposition", "Retry-After", "X-Request-Id"}
)

type cors struct {
	origins     map[string]struct{}
	anyOrigin   bool
	credentials bool
	methods     string
	headers     string
	expose      string
	maxAge      string
}

// NewCORS отвечает на preflight сам, остальные запросы только помечает заголовками.
func NewCORS(opts CORSOptions) func(http.Handler) http.Handler {
	c := &cors{
		origins:     make(map[string]struct{}),
		credentials: opts.AllowCredentials,
		methods:     strings.Join(orDefault(opts.AllowedMethods, defaultCORSMethods), ", "),
		headers:     strings.Join(orDefault(opts.AllowedHeaders, defaultCORSHeaders), ", "),
		expose:      strings.Join(orDefault(opts.ExposeHeaders, defaultCORSExpose), ", "),
	}
	for _, origin := range opts.AllowedOrigins {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			c.origins[trimmed] = struct{}{}
		}
	}
	c.anyOrigin = len(c.origins) == 0
	if opts.MaxAge > 0 {
		c.maxAge = strconv.Itoa(int(opts.MaxAge / time.Second))
	}
	return c.wrap
}

func (c *cors) wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Add("Vary", "Origin")

		origin := r.Header.Get("Origin")
		allowed := c.allowed(origin)
		if allowed {
			h.Set("Access-Control-Allow-Origin", origin)
			if c.credentials {
				h.Set("Access-Control-Allow-Credentials", "true")
			}
		}

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			h.Add("Vary", "Access-Control-Request-Method")
			h.Add("Vary", "Access-Control-Request-Headers")
			if allowed {
				h.Set("Access-Control-Allow-Methods", c.methods)
				h.Set("Access-Control-Allow-Headers", c.headers)
				if c.maxAge != "" {
					h.Set("Access-Control-Max-Age", c.maxAge)
				}
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}

		if allowed {
			h.Set("Access-Control-Expose-Headers", c.expose)
		}
		next.ServeHTTP(w, r)
	})
}

func (c *cors) allowed(origin string) bool {
	if origin == "" {
		return false
	}
	if c.anyOrigin {
		return true
	}
	_, ok := c.origins[origin]
	return ok
}

func orDefault(values, fallback []string) []string {
	if len(values) == 0 {
		return fallback
	}
	return values
}
