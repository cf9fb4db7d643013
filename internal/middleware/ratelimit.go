package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/FJFJ0400/capture-ai/internal/apperr"
)

var errRateLimited = apperr.New(http.StatusTooManyRequests, apperr.CodeRateLimited, "Too many requests.")

// RateLimiter - фиксированное окно на клиента (IP).
type RateLimiter struct {
	limit   int
	window  time.Duration
	mu      sync.Mutex
	clients map[string]*clientWindow
	now     func() time.Time
}

type clientWindow struct {
	used    int
	resetAt time.Time
}

type decision struct {
	allowed   bool
	remaining int
	resetIn   time.Duration
}

// NewRateLimiter; limit <= 0 или window <= 0 выключает ограничение.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 || window <= 0 {
		return &RateLimiter{}
	}
	return &RateLimiter{
		limit:   limit,
		window:  window,
		clients: make(map[string]*clientWindow),
		now:     time.Now,
	}
}

func (r *RateLimiter) Middleware(next http.Handler) http.Handler {
	if r == nil || r.limit == 0 {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		d := r.take(clientKey(req))

		h := w.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(r.limit))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(d.remaining))
		if !d.allowed {
			// секунды округляются вверх
			h.Set("Retry-After", strconv.Itoa(int(d.resetIn/time.Second)+1))
			apperr.Write(w, errRateLimited)
			return
		}
		next.ServeHTTP(w, req)
	})
}

func (r *RateLimiter) take(key string) decision {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	win, ok := r.clients[key]
	if !ok || !now.Before(win.resetAt) {
		r.evictExpired(now)
		win = &clientWindow{resetAt: now.Add(r.window)}
		r.clients[key] = win
	}

	if win.used >= r.limit {
		return decision{resetIn: win.resetAt.Sub(now)}
	}
	win.used++
	return decision{allowed: true, remaining: r.limit - win.used, resetIn: win.resetAt.Sub(now)}
}

func (r *RateLimiter) evictExpired(now time.Time) {
	for key, win := range r.clients {
		if !now.Before(win.resetAt) {
			delete(r.clients, key)
		}
	}
}

// clientKey: первый адрес X-Forwarded-For, иначе хост RemoteAddr.
func clientKey(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
