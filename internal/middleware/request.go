package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"mime"
	"net/url"

	"github.com/gin-gonic/gin"
)

const (
	ContextRequestFields = "request_fields"
	maxCapturedBody      = 1 << 20
)

// RequestFields is the submitted data of a request, read once and cached on
// the gin context.
type RequestFields struct {
	// Form merges query parameters with urlencoded or JSON object bodies.
	Form map[string]any
	// Payload is what the caller sent; a non-object JSON body is kept as-is.
	Payload any
}

// Fields returns the cached request fields, reading the body on first use.
// The body is restored so handlers can still bind it.
func Fields(c *gin.Context) *RequestFields {
	if v, ok := c.Get(ContextRequestFields); ok {
		if f, ok := v.(*RequestFields); ok {
			return f
		}
	}
	f := readFields(c)
	c.Set(ContextRequestFields, f)
	return f
}

func readFields(c *gin.Context) *RequestFields {
	form := make(map[string]any)
	addValues(form, c.Request.URL.Query())
	f := &RequestFields{Form: form, Payload: form}

	if c.Request.Body == nil {
		return f
	}
	// 读取请求体 (并写回以便后续 Bind 使用)
	body, _ := io.ReadAll(io.LimitReader(c.Request.Body, maxCapturedBody))
	c.Request.Body = io.NopCloser(bytes.NewReader(body))
	if len(body) == 0 {
		return f
	}

	mediaType, _, _ := mime.ParseMediaType(c.GetHeader("Content-Type"))
	switch mediaType {
	case "application/x-www-form-urlencoded":
		if values, err := url.ParseQuery(string(body)); err == nil {
			addValues(form, values)
		}
	case "application/json", "":
		var decoded any
		if err := json.Unmarshal(body, &decoded); err != nil {
			if mediaType == "" {
				return f
			}
			f.Payload = string(body)
			return f
		}
		if obj, ok := decoded.(map[string]any); ok {
			for k, v := range obj {
				form[k] = v
			}
			return f
		}
		f.Payload = decoded
	default:
		f.Payload = string(body)
	}
	return f
}

func addValues(dst map[string]any, values url.Values) {
	for k, v := range values {
		if len(v) == 1 {
			dst[k] = v[0]
			continue
		}
		dst[k] = append([]string(nil), v...)
	}
}
