package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"flashcards-backend/internal/apperr"
	"flashcards-backend/internal/logger"
)

// Limiter counts requests per key inside a fixed window.
type Limiter interface {
	// Allow records one request for key and reports whether it is within the
	// limit, plus the time left in the current window.
	Allow(ctx context.Context, key string) (bool, time.Duration, error)
}

type visitor struct {
	count       int
	windowStart time.Time
}

// MemoryLimiter keeps windows in process memory.
type MemoryLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    int
	window   time.Duration
	now      func() time.Time
}

func NewMemoryLimiter(limit int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		visitors: make(map[string]*visitor),
		limit:    limit,
		window:   window,
		now:      time.Now,
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	v, ok := l.visitors[key]
	if !ok || now.Sub(v.windowStart) >= l.window {
		v = &visitor{windowStart: now}
		l.visitors[key] = v
	}
	v.count++
	return v.count <= l.limit, l.window - now.Sub(v.windowStart), nil
}

// Cleanup drops expired windows until ctx is done.
func (l *MemoryLimiter) Cleanup(ctx context.Context) {
	ticker := time.NewTicker(l.window)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.mu.Lock()
			now := l.now()
			for key, v := range l.visitors {
				if now.Sub(v.windowStart) >= l.window {
					delete(l.visitors, key)
				}
			}
			l.mu.Unlock()
		}
	}
}

// RedisLimiter shares windows between instances with INCR and EXPIRE.
type RedisLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
	prefix string
}

func NewRedisLimiter(client *redis.Client, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{client: client, limit: limit, window: window, prefix: "ratelimit:"}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	k := l.prefix + key
	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.ExpireNX(ctx, k, l.window)
	ttl := pipe.PTTL(ctx, k)
	if _, err := pipe.Exec(ctx); err != nil {
		return true, 0, fmt.Errorf("rate limit pipeline: %w", err)
	}
	left := ttl.Val()
	if left < 0 {
		left = l.window
	}
	return incr.Val() <= int64(l.limit), left, nil
}

// RateLimit rejects requests over the limit with 429. Limiter errors are
// logged and the request is let through.
func RateLimit(limiter Limiter, log *logger.Logger, onLimited func()) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, retryAfter, err := limiter.Allow(r.Context(), clientIP(r))
			if err != nil {
				log.Warn("rate limiter unavailable", "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if !ok {
				if onLimited != nil {
					onLimited()
				}
				w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Round(time.Second).Seconds())))
				limited := apperr.RateLimited()
				writeError(w, limited.Kind.Status(), limited.Message)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
