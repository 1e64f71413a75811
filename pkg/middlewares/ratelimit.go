package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/nimeshabuddhika/shopsphere-orders/pkg"
	"go.uber.org/zap"
)

// CheckoutRateLimit rejects checkouts once the caller exceeds the limiter budget.
// It must run after RequireUser.
func CheckoutRateLimit(logger *zap.Logger, limiter *pkg.CheckoutLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetInt64(pkg.UserId)
		if !limiter.Allow(c.Request.Context(), userID) {
			err := pkg.NewAppError(pkg.ErrRateLimitedCode, pkg.ErrRateLimitedCode.Message, pkg.ErrRateLimitExceeded)
			resp := pkg.ToErrorResponse(logger, c.GetString(pkg.TraceId), err)
			c.AbortWithStatusJSON(resp.Status, resp)
			return
		}
		c.Next()
	}
}
