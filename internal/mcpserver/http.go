package mcpserver

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// HTTPOptions configures the streamable HTTP transport wrapper.
type HTTPOptions struct {
	// AuthToken, when set, is required as a Bearer token on every request.
	AuthToken string
	// RateLimitPerMin caps requests per client IP. Zero disables limiting.
	RateLimitPerMin int
}

// NewHTTPHandler wraps the streamable HTTP transport with bearer-token auth
// and a fixed-window per-IP rate limit.
func NewHTTPHandler(server *mcp.Server, opts HTTPOptions) http.Handler {
	inner := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return server
	}, nil)

	limiter := newRateLimiter(opts.RateLimitPerMin)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if opts.AuthToken != "" {
			token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if subtle.ConstantTimeCompare([]byte(token), []byte(opts.AuthToken)) != 1 {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		if !limiter.allow(clientIP(r)) {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		inner.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host := r.RemoteAddr
	if i := strings.LastIndex(host, ":"); i >= 0 {
		host = host[:i]
	}
	return host
}

// rateLimiter is a fixed one-minute window counter per key.
type rateLimiter struct {
	mu      sync.Mutex
	perMin  int
	window  time.Time
	counts  map[string]int
	nowFunc func() time.Time
}

func newRateLimiter(perMin int) *rateLimiter {
	return &rateLimiter{
		perMin:  perMin,
		counts:  map[string]int{},
		nowFunc: time.Now,
	}
}

func (l *rateLimiter) allow(key string) bool {
	if l.perMin <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFunc().Truncate(time.Minute)
	if !now.Equal(l.window) {
		l.window = now
		l.counts = map[string]int{}
	}
	l.counts[key]++
	return l.counts[key] <= l.perMin
}
