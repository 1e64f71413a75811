package middleware

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/nimeshabuddhika/shopsphere-orders/pkg"
	"github.com/nimeshabuddhika/shopsphere-orders/pkg/utils"
	"go.uber.org/zap"
)

// RequireUser reads the caller id the gateway forwards in X-User-Id.
// Authentication happens at the gateway; this only rejects requests that skipped it.
func RequireUser(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetString(pkg.TraceId)
		userID, err := utils.ParseUserID(c.GetHeader(pkg.HeaderUserId))
		if err != nil {
			code := pkg.ErrInvalidInputCode
			if errors.Is(err, utils.ErrMissingUserID) {
				code = pkg.ErrUnauthorizedCode
			}
			resp := pkg.ToErrorResponse(logger, traceID, pkg.NewAppError(code, code.Message, err))
			c.AbortWithStatusJSON(resp.Status, resp)
			return
		}
		c.Set(pkg.UserId, userID)
		c.Next()
	}
}
