package middleware

import (
	"errors"
	"strings"

	"github.com/GoPolymarket/apiaudit/internal/pkg/apperrors"
	"github.com/GoPolymarket/apiaudit/internal/pkg/logger"
	"github.com/gin-gonic/gin"
)

// ErrorHandler renders the last c.Error as an AppError envelope. A handler
// that already wrote its response keeps it.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		appErr := asAppError(c.Errors.Last().Err)
		fields := errorLogFields(c, appErr)
		if appErr.HTTPStatus >= 500 {
			logger.LogError(c.Request.Context(), appErr, "request failed", fields...)
		} else {
			logger.Warn(appErr.Message, fields...)
		}

		c.JSON(appErr.HTTPStatus, appErr)
	}
}

func asAppError(err error) *apperrors.AppError {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return apperrors.New(apperrors.ErrInternal, err.Error(), err)
}

func errorLogFields(c *gin.Context, appErr *apperrors.AppError) []any {
	route := c.FullPath()
	if route == "" {
		route = "unmatched"
	}
	fields := []any{
		"http_method", c.Request.Method,
		"route", route,
		"code", appErr.Type,
		"user", PrincipalFrom(c).User,
		"client_ip", c.ClientIP(),
	}
	if id := c.Writer.Header().Get("X-Request-ID"); id != "" {
		fields = append(fields, "request_id", id)
	}
	if method := strings.Trim(c.Param("method"), " /"); method != "" {
		fields = append(fields, "api_method", method)
	}
	if n := len(c.Errors); n > 1 {
		fields = append(fields, "errors", n)
	}
	return fields
}
