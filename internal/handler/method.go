package handler

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/GoPolymarket/apiaudit/internal/middleware"
	"github.com/GoPolymarket/apiaudit/internal/model"
	"github.com/GoPolymarket/apiaudit/internal/pkg/apperrors"
	"github.com/gin-gonic/gin"
)

// MethodRequest is what a whitelisted API method receives.
type MethodRequest struct {
	Principal *model.Principal
	Args      map[string]any
}

// MethodFunc implements one API method. The result is rendered as
// {"message": result}.
type MethodFunc func(ctx context.Context, req *MethodRequest) (any, error)

// MethodRegistry maps dotted method names to their implementation.
type MethodRegistry struct {
	mu      sync.RWMutex
	methods map[string]MethodFunc
}

func NewMethodRegistry() *MethodRegistry {
	r := &MethodRegistry{methods: make(map[string]MethodFunc)}
	r.Register("ping", func(context.Context, *MethodRequest) (any, error) {
		return "pong", nil
	})
	r.Register("auth.get_logged_user", func(_ context.Context, req *MethodRequest) (any, error) {
		return req.Principal.User, nil
	})
	return r
}

func (r *MethodRegistry) Register(name string, fn MethodFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.methods[name] = fn
}

func (r *MethodRegistry) Lookup(name string) (MethodFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.methods[name]
	return fn, ok
}

func (r *MethodRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.methods))
	for name := range r.methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type MethodHandler struct {
	registry *MethodRegistry
}

func NewMethodHandler(registry *MethodRegistry) *MethodHandler {
	return &MethodHandler{registry: registry}
}

// Call serves /api/method/*method.
func (h *MethodHandler) Call(c *gin.Context) {
	name := strings.Trim(c.Param("method"), " /")
	fn, ok := h.registry.Lookup(name)
	if !ok {
		_ = c.Error(apperrors.NewNotFound("method " + name + " not found"))
		return
	}

	result, err := fn(c.Request.Context(), &MethodRequest{
		Principal: middleware.PrincipalFrom(c),
		Args:      middleware.Fields(c).Form,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": result})
}
