package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/GoPolymarket/apiaudit/internal/pkg/apperrors"
	"github.com/GoPolymarket/apiaudit/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// bodyLogWriter 包装 ResponseWriter 以捕获响应体
type bodyLogWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w bodyLogWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w bodyLogWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// AuditMiddleware runs the rest of the chain through the audit interceptor.
// Expects IdentityMiddleware earlier in the chain and ErrorHandler outside it.
func AuditMiddleware(ic *service.Interceptor) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Request-ID", uuid.New().String())

		fields := Fields(c)
		call := &service.Call{
			Path:       c.Request.URL.Path,
			HTTPMethod: c.Request.Method,
			ClientIP:   c.ClientIP(),
			Headers:    c.Request.Header,
			Form:       fields.Form,
			Payload:    fields.Payload,
			Principal:  PrincipalFrom(c),
		}

		blw := &bodyLogWriter{body: bytes.NewBuffer(nil), ResponseWriter: c.Writer}
		c.Writer = blw

		ran := false
		_, err := ic.Intercept(c.Request.Context(), call, func(ctx context.Context) service.Outcome {
			ran = true
			c.Request = c.Request.WithContext(ctx)
			c.Next()
			return outcomeOf(c, blw)
		})
		if err != nil && !ran {
			_ = c.Error(err)
			c.Abort()
		}
	}
}

// outcomeOf reads what the handler produced. Errors pushed to c.Errors are
// rendered later by ErrorHandler, so their status and body are derived here.
func outcomeOf(c *gin.Context, blw *bodyLogWriter) service.Outcome {
	out := service.Outcome{StatusCode: c.Writer.Status(), Response: blw.body.Bytes()}
	if len(c.Errors) == 0 {
		if out.StatusCode == 0 {
			out.StatusCode = http.StatusOK
		}
		return out
	}

	err := c.Errors.Last().Err
	out.Err = err
	if !c.Writer.Written() {
		appErr := apperrors.Wrap(err)
		out.StatusCode = appErr.HTTPStatus
		if rendered, mErr := json.Marshal(appErr); mErr == nil {
			out.Response = rendered
		}
	}
	return out
}
