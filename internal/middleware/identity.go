package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/GoPolymarket/apiaudit/internal/config"
	"github.com/GoPolymarket/apiaudit/internal/model"
	"github.com/GoPolymarket/apiaudit/internal/pkg/apperrors"
	"github.com/gin-gonic/gin"
)

const (
	ContextPrincipalKey = "principal"
	SessionCookie       = "sid"
)

// IdentityMiddleware resolves the acting user. Machine clients authenticate
// with key/secret (header or form), browsers with the sid cookie. Anyone
// else is Guest. Bad credentials are rejected with 401.
func IdentityMiddleware(cfg config.AuthConfig) gin.HandlerFunc {
	clients := make(map[string]config.ClientConfig, len(cfg.Clients))
	for _, cl := range cfg.Clients {
		clients[cl.APIKey] = cl
	}
	sessions := make(map[string]config.SessionConfig, len(cfg.Sessions))
	for _, s := range cfg.Sessions {
		sessions[s.SID] = s
	}

	return func(c *gin.Context) {
		sid, _ := c.Cookie(SessionCookie)
		principal := &model.Principal{User: model.GuestUser, SessionID: sid}

		key, secret, presented := credentials(c)
		if presented {
			client, ok := clients[key]
			if !ok || key == "" || subtle.ConstantTimeCompare([]byte(client.APISecret), []byte(secret)) != 1 {
				_ = c.Error(apperrors.NewUnauthorized("invalid api key or secret"))
				c.Abort()
				return
			}
			principal.User = client.User
			principal.Roles = append([]string(nil), client.Roles...)
		} else if s, ok := sessions[sid]; ok && sid != "" {
			principal.User = s.User
			principal.Roles = append([]string(nil), s.Roles...)
		}

		c.Set(ContextPrincipalKey, principal)
		c.Next()
	}
}

// PrincipalFrom returns the resolved principal, Guest when none was set.
func PrincipalFrom(c *gin.Context) *model.Principal {
	if v, ok := c.Get(ContextPrincipalKey); ok {
		if p, ok := v.(*model.Principal); ok && p != nil {
			return p
		}
	}
	return &model.Principal{User: model.GuestUser}
}

// credentials extracts key/secret from "token key:secret", "Bearer key:secret"
// or the api_key / api_secret form fields (api_token is accepted for api_secret).
func credentials(c *gin.Context) (string, string, bool) {
	if auth := strings.TrimSpace(c.GetHeader("Authorization")); auth != "" {
		scheme, value, _ := strings.Cut(auth, " ")
		switch strings.ToLower(scheme) {
		case "token", "bearer":
			key, secret, _ := strings.Cut(strings.TrimSpace(value), ":")
			return key, secret, true
		}
		return "", "", true
	}
	form := Fields(c).Form
	key, _ := form["api_key"].(string)
	secret, _ := form["api_secret"].(string)
	if secret == "" {
		secret, _ = form["api_token"].(string)
	}
	if key == "" {
		return "", "", false
	}
	return key, secret, true
}
