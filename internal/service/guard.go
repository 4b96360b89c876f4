package service

import "context"

type auditGuardKey struct{}

// withAuditGuard marks ctx as "audit logging in progress". Calls entering the
// interceptor with this context run unaudited.
func withAuditGuard(ctx context.Context) context.Context {
	return context.WithValue(ctx, auditGuardKey{}, true)
}

// InAuditLogging reports whether ctx is inside the audit persistence branch.
func InAuditLogging(ctx context.Context) bool {
	v, _ := ctx.Value(auditGuardKey{}).(bool)
	return v
}
