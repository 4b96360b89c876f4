package middleware

import (
	"net/http"

	"github.com/GoPolymarket/apiaudit/internal/pkg/apperrors"
	"github.com/gin-gonic/gin"
)

// ReadOnlyMiddleware freezes the admin surface: reads pass, changes are
// rejected.
func ReadOnlyMiddleware(enabled bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !enabled {
			c.Next()
			return
		}

		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
		default:
			_ = c.Error(apperrors.New(apperrors.ErrReadOnly, "audit admin is in read-only mode", nil))
			c.Abort()
		}
	}
}
