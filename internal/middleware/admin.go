package middleware

import (
	"github.com/GoPolymarket/apiaudit/internal/pkg/apperrors"
	"github.com/gin-gonic/gin"
)

// AdminMiddleware only lets principals holding role through.
func AdminMiddleware(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		p := PrincipalFrom(c)
		if p.IsGuest() || !p.HasRole(role) {
			_ = c.Error(apperrors.NewForbidden("only " + role + " can manage API audit"))
			c.Abort()
			return
		}
		c.Next()
	}
}
