package middleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/aiox-platform/agentmemory/internal/metrics"
)

const rateLimitPrefix = "ratelimit:memory:"

// RateLimiter allows at most limit requests per client IP within a sliding
// window, tracked in one Redis sorted set per IP.
type RateLimiter struct {
	client redis.Cmdable
	limit  int
	window time.Duration
	now    func() time.Time
	logger *zap.Logger
}

// NewRateLimiter creates a rate limiter that allows limit requests per window.
func NewRateLimiter(client redis.Cmdable, limit int, window time.Duration, logger *zap.Logger) *RateLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{
		client: client,
		limit:  limit,
		window: window,
		now:    time.Now,
		logger: logger.With(zap.String("component", "ratelimit")),
	}
}

// Middleware enforces the limit. Redis errors let the request through: the
// memory API keeps serving from its fallback tier when Redis is down, and
// throttling must not turn that into an outage.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)

		used, err := rl.record(r.Context(), rateLimitPrefix+ip)
		if err != nil {
			rl.logger.Warn("rate limit check failed, allowing request", zap.String("ip", ip), zap.Error(err))
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(max(rl.limit-used-1, 0)))

		if used >= rl.limit {
			metrics.RateLimitedTotal.Inc()
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", strconv.Itoa(int(rl.window.Seconds())))
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":"too many requests"}`))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// record drops entries older than the window, adds this request and returns
// how many requests were already inside the window.
func (rl *RateLimiter) record(ctx context.Context, key string) (int, error) {
	now := rl.now()
	windowStart := now.Add(-rl.window).UnixMilli()

	pipe := rl.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(windowStart, 10))
	count := pipe.ZCard(ctx, key)
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixMilli()), Member: strconv.FormatInt(now.UnixNano(), 10)})
	pipe.Expire(ctx, key, rl.window+time.Second)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return int(count.Val()), nil
}

// clientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the
// connection's remote address.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
