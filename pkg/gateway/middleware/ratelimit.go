package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rxlocator/platform/pkg/common/logger"
	"github.com/rxlocator/platform/pkg/gateway/auth"
	"github.com/rxlocator/platform/pkg/observability/metrics"
)

// RateLimiter is a fixed-window counter per caller shared by every replica
// through Redis. It fails open when Redis is unreachable.
type RateLimiter struct {
	client redis.Cmdable
	limit  int
	window time.Duration
	prefix string
	now    func() time.Time
}

func NewRateLimiter(client redis.Cmdable, limit int, window time.Duration) *RateLimiter {
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{client: client, limit: limit, window: window, prefix: "ratelimit:", now: time.Now}
}

// RateLimit allows perMinute requests per caller per minute.
func RateLimit(client redis.Cmdable, perMinute int) func(http.Handler) http.Handler {
	return NewRateLimiter(client, perMinute, time.Minute).Middleware
}

// Allow counts one request for key and reports whether it fits the window.
func (l *RateLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	now := l.now()
	bucket := now.UnixNano() / int64(l.window)
	redisKey := fmt.Sprintf("%s%s:%d", l.prefix, key, bucket)
	retryAfter := time.Duration((bucket+1)*int64(l.window) - now.UnixNano())

	var incr *redis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, redisKey)
		pipe.Expire(ctx, redisKey, l.window)
		return nil
	})
	if err != nil {
		return true, 0, err
	}
	return incr.Val() <= int64(l.limit), retryAfter, nil
}

func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	if l.client == nil || l.limit <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := callerKey(r)
		ok, retryAfter, err := l.Allow(r.Context(), key)
		if err != nil {
			logger.FromContext(r.Context()).WithError(err).Warn("rate limiter unavailable, allowing request")
			next.ServeHTTP(w, r)
			return
		}
		if !ok {
			metrics.ObserveRateLimited()
			secs := int(retryAfter.Seconds()) + 1
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			writeError(w, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func callerKey(r *http.Request) string {
	if id, ok := auth.IdentityFrom(r.Context()); ok {
		return "user:" + id.UserID
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}
