// pkg/middleware/ratelimit.go
package middleware

import (
	"fmt"
	"net"
	"net/http"
	"time"

	"stead/pkg/problems"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RateLimit applies a fixed-window counter (INCR + EXPIRE) per caller to the
// wrapped routes. A nil client or non-positive max disables limiting.
func RateLimit(rdb *redis.Client, max int, window time.Duration, log *zap.SugaredLogger) func(http.Handler) http.Handler {
	if rdb == nil || max <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			winStart := time.Now().UTC().Truncate(window)
			redisKey := fmt.Sprintf("ratelimit:%s:%d", limiterKey(r), winStart.Unix())

			pipe := rdb.TxPipeline()
			incr := pipe.Incr(r.Context(), redisKey)
			ttl := pipe.TTL(r.Context(), redisKey)
			if _, err := pipe.Exec(r.Context()); err != nil {
				// Redis trouble must not take the claim path down.
				log.Warnw("rate limit check failed", "err", err)
				next.ServeHTTP(w, r)
				return
			}
			// set expiry on first hit
			if incr.Val() == 1 {
				_ = rdb.Expire(r.Context(), redisKey, window).Err()
			}
			if incr.Val() > int64(max) {
				retry := ttl.Val()
				if retry <= 0 {
					retry = window
				}
				w.Header().Set("Retry-After", fmt.Sprintf("%d", int(retry.Seconds())))
				problems.Write(w, problems.Problem{
					Type:   problems.Type("rate-limited"),
					Title:  "Too Many Requests",
					Status: http.StatusTooManyRequests,
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// limiterKey prefers the authenticated subject and falls back to the peer IP.
func limiterKey(r *http.Request) string {
	if p, ok := PrincipalFrom(r.Context()); ok && p.Subject != "" {
		return p.Subject
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
