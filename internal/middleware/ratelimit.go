package middleware

import (
	"math"
	"strconv"

	"github.com/GoPolymarket/apiaudit/internal/pkg/apperrors"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// ThrottleMiddleware shares one token bucket across every caller of the
// route it guards. Used for expensive admin triggers.
func ThrottleMiddleware(perMinute float64) gin.HandlerFunc {
	if perMinute <= 0 {
		perMinute = 2
	}
	limiter := rate.NewLimiter(rate.Limit(perMinute/60), 1)
	retryAfter := strconv.Itoa(int(math.Ceil(60 / perMinute)))

	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.Header("Retry-After", retryAfter)
			_ = c.Error(apperrors.New(apperrors.ErrRateLimited, "triggered too recently", nil))
			c.Abort()
			return
		}
		c.Next()
	}
}
