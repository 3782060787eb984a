package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"qc-standards/internal/handlers/common"
	"qc-standards/internal/ratelimit"
)

// Throttle counts one hit for key. It writes a 429 and returns false once the
// window is exhausted. A limiter failure lets the request through.
type Throttle struct {
	Limiter ratelimit.Limiter
	Limit   int
	Window  time.Duration
	Log     zerolog.Logger
}

func (t *Throttle) Allow(c *gin.Context, key string) bool {
	if t == nil || t.Limiter == nil || t.Limit <= 0 {
		return true
	}
	decision, err := t.Limiter.Allow(c.Request.Context(), key, t.Limit, t.Window)
	if err != nil {
		t.Log.Warn().Err(err).Str("key", key).Msg("rate limiter unavailable")
		return true
	}
	writeRateLimitHeaders(c, decision)
	if !decision.Allowed {
		common.WriteErrorCode(c, http.StatusTooManyRequests, "RATE_LIMITED", "too many attempts, try again later")
		return false
	}
	return true
}

func writeRateLimitHeaders(c *gin.Context, d ratelimit.Decision) {
	if d.Limit > 0 {
		c.Header("RateLimit-Limit", strconv.Itoa(d.Limit))
	}
	if d.Remaining >= 0 {
		c.Header("RateLimit-Remaining", strconv.Itoa(d.Remaining))
	}
	if !d.ResetAt.IsZero() {
		c.Header("RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
		if !d.Allowed {
			retry := int64(time.Until(d.ResetAt).Seconds())
			if retry < 0 {
				retry = 0
			}
			c.Header("Retry-After", strconv.FormatInt(retry, 10))
		}
	}
}
