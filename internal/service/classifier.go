package service

import (
	"net/http"
	"strings"
)

const DefaultAPIPrefix = "/api/method/"

// Classifier 判断一次调用是否属于需要审计的外部 API 流量
type Classifier struct {
	prefix   string
	reserved []string
}

func NewClassifier(prefix string, reservedNamespaces []string) *Classifier {
	if prefix == "" {
		prefix = DefaultAPIPrefix
	}
	reserved := make([]string, 0, len(reservedNamespaces))
	for _, ns := range reservedNamespaces {
		if ns = strings.TrimSpace(ns); ns != "" {
			reserved = append(reserved, ns)
		}
	}
	return &Classifier{prefix: prefix, reserved: reserved}
}

// ResolveMethod extracts the target method name from an API path. ok is
// false for paths outside the API namespace or with an empty method.
func (c *Classifier) ResolveMethod(path string) (string, bool) {
	if !strings.HasPrefix(path, c.prefix) {
		return "", false
	}
	method := strings.Trim(strings.TrimPrefix(path, c.prefix), " /")
	if method == "" {
		return "", false
	}
	return method, true
}

// IsReserved reports whether method lives in a framework-internal namespace.
func (c *Classifier) IsReserved(method string) bool {
	for _, ns := range c.reserved {
		if strings.HasPrefix(method, ns) {
			return true
		}
	}
	return false
}

// IsExternalCall applies the machine-traffic rules in order:
// Authorization header, api key + secret/token pair, missing session.
func IsExternalCall(headers http.Header, form map[string]any, sessionID string) bool {
	if headers.Get("Authorization") != "" {
		return true
	}
	if formString(form, "api_key") != "" &&
		(formString(form, "api_secret") != "" || formString(form, "api_token") != "") {
		return true
	}
	return sessionID == ""
}

func formString(form map[string]any, key string) string {
	v, ok := form[key]
	if !ok || v == nil {
		return ""
	}
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case []string:
		if len(val) > 0 {
			return strings.TrimSpace(val[0])
		}
		return ""
	default:
		return "set"
	}
}
