package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/GoPolymarket/apiaudit/internal/model"
	"github.com/GoPolymarket/apiaudit/internal/pkg/apperrors"
	"github.com/GoPolymarket/apiaudit/internal/pkg/clock"
	"github.com/GoPolymarket/apiaudit/internal/pkg/metrics"
	"github.com/google/uuid"
)

// Call describes one inbound API call as seen by the interceptor.
type Call struct {
	Path       string
	HTTPMethod string
	ClientIP   string
	Headers    http.Header
	// Form holds the submitted fields (query + body) used for classification.
	Form map[string]any
	// Payload is what gets recorded; Form is used when nil.
	Payload   any
	Principal *model.Principal
}

// Outcome is what the wrapped business logic produced.
type Outcome struct {
	StatusCode int
	Response   []byte
	Err        error
	// Trace overrides Err.Error() as the recorded error trace.
	Trace string
}

// Invocation runs the wrapped business logic.
type Invocation func(ctx context.Context) Outcome

// Recorder persists a finished audit record.
type Recorder interface {
	Record(ctx context.Context, entry *model.AuditLog) error
}

// SettingsProvider yields a fresh settings snapshot per call.
type SettingsProvider interface {
	Load(ctx context.Context) (*model.AuditSettings, error)
}

// Interceptor 是审计流水线的核心：准入、限流、执行、记录
type Interceptor struct {
	classifier *Classifier
	settings   SettingsProvider
	limiter    RateLimiter
	recorder   Recorder
	reporter   ErrorReporter
	clock      clock.Clock
	newID      func() string
}

type InterceptorOption func(*Interceptor)

func WithClock(c clock.Clock) InterceptorOption {
	return func(i *Interceptor) { i.clock = clock.OrReal(c) }
}

func WithReporter(r ErrorReporter) InterceptorOption {
	return func(i *Interceptor) {
		if r != nil {
			i.reporter = r
		}
	}
}

func WithIDGenerator(fn func() string) InterceptorOption {
	return func(i *Interceptor) {
		if fn != nil {
			i.newID = fn
		}
	}
}

func NewInterceptor(classifier *Classifier, settings SettingsProvider, limiter RateLimiter, recorder Recorder, opts ...InterceptorOption) *Interceptor {
	i := &Interceptor{
		classifier: classifier,
		settings:   settings,
		limiter:    limiter,
		recorder:   recorder,
		reporter:   NewLogReporter(),
		clock:      clock.RealClock{},
		newID:      func() string { return uuid.New().String() },
	}
	if i.classifier == nil {
		i.classifier = NewClassifier("", nil)
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// admission is the per-call plan once a call is accepted for audit.
type admission struct {
	method   string
	settings *model.AuditSettings
}

// Intercept runs next with audit side effects. The returned error is non-nil
// only when the rate limiter rejected the call, in which case next never ran.
// Business failures travel in Outcome.Err untouched.
func (i *Interceptor) Intercept(ctx context.Context, call *Call, next Invocation) (Outcome, error) {
	if InAuditLogging(ctx) {
		return next(ctx), nil
	}

	plan, reason := i.admit(ctx, call)
	if plan == nil {
		metrics.SuppressedTotal.WithLabelValues(reason).Inc()
		return next(ctx), nil
	}

	if i.limiter != nil {
		if err := i.limiter.Allow(ctx, principalOf(call).User, plan.settings.RateLimitPerMinute); err != nil {
			if IsRateLimited(err) {
				metrics.RateLimited.Inc()
				return Outcome{StatusCode: http.StatusTooManyRequests, Err: err}, err
			}
			// 限流后端故障不能阻塞业务调用
			i.reporter.Report(ctx, "rate_limit", err, "user", principalOf(call).User)
		}
	}

	createdAt := i.clock.Now()
	start := time.Now()

	finished := false
	defer func() {
		if finished {
			return
		}
		rec := recover()
		if rec == nil {
			// runtime.Goexit
			return
		}
		out := Outcome{
			StatusCode: http.StatusInternalServerError,
			Err:        fmt.Errorf("panic: %v", rec),
			Trace:      fmt.Sprintf("panic: %v\n%s", rec, debug.Stack()),
		}
		i.persist(ctx, call, plan, out, createdAt, time.Since(start))
		panic(rec)
	}()

	out := next(ctx)
	finished = true
	i.persist(ctx, call, plan, out, createdAt, time.Since(start))
	return out, nil
}

// Wrap intercepts an in-process call. The result is JSON encoded for the
// response preview; fn's error is returned as-is.
func (i *Interceptor) Wrap(ctx context.Context, call *Call, fn func(ctx context.Context) (any, error)) (any, error) {
	var (
		result  any
		callErr error
	)
	_, err := i.Intercept(ctx, call, func(ctx context.Context) Outcome {
		result, callErr = fn(ctx)
		out := Outcome{StatusCode: http.StatusOK, Err: callErr}
		if callErr != nil {
			out.StatusCode = apperrors.StatusOf(callErr)
		}
		if result != nil {
			out.Response = encodeLoose(result)
		}
		return out
	})
	if err != nil {
		return nil, err
	}
	return result, callErr
}

func (i *Interceptor) admit(ctx context.Context, call *Call) (*admission, string) {
	if call == nil {
		return nil, "no_request"
	}
	method, ok := i.classifier.ResolveMethod(call.Path)
	if !ok {
		return nil, "path"
	}
	if i.settings == nil {
		return nil, "settings_unavailable"
	}
	settings, err := i.settings.Load(ctx)
	if err != nil || settings == nil {
		if err == nil {
			err = ErrSettingsUnavailable
		}
		i.reporter.Report(ctx, "settings", fmt.Errorf("%w: %v", ErrSettingsUnavailable, err))
		return nil, "settings_unavailable"
	}
	if !settings.Enabled {
		return nil, "disabled"
	}

	p := principalOf(call)
	if !IsExternalCall(call.Headers, call.Form, p.SessionID) {
		return nil, "internal"
	}
	if i.classifier.IsReserved(method) {
		return nil, "reserved"
	}
	if p.IsGuest() && !settings.LogGuest {
		return nil, "guest"
	}
	if len(settings.AllowedRoles) > 0 && !intersects(settings.AllowedRoles, p.Roles) {
		return nil, "role"
	}
	return &admission{method: method, settings: settings}, ""
}

func (i *Interceptor) persist(ctx context.Context, call *Call, plan *admission, out Outcome, createdAt time.Time, elapsed time.Duration) {
	ctx = withAuditGuard(ctx)
	defer func() {
		if rec := recover(); rec != nil {
			i.reporter.Report(ctx, "persist", fmt.Errorf("panic: %v", rec), "method", plan.method)
		}
	}()

	entry := i.buildRecord(call, plan, out, createdAt, elapsed)
	if err := i.recorder.Record(ctx, entry); err != nil {
		i.reporter.Report(ctx, "persist", err, "method", plan.method, "user", entry.User)
		return
	}
	metrics.RecordsTotal.WithLabelValues(entry.Status).Inc()
}

func (i *Interceptor) buildRecord(call *Call, plan *admission, out Outcome, createdAt time.Time, elapsed time.Duration) *model.AuditLog {
	status := out.StatusCode
	if status == 0 {
		status = http.StatusOK
		if out.Err != nil {
			status = apperrors.StatusOf(out.Err)
		}
	}

	failed := out.Err != nil || status >= http.StatusBadRequest
	trace := ""
	if out.Err != nil {
		trace = out.Trace
		if trace == "" {
			trace = out.Err.Error()
		}
	} else if failed {
		trace = out.Trace
	}

	payload := call.Payload
	if payload == nil {
		payload = call.Form
	}
	masked := Mask(payload, MaskFieldSet(plan.settings.MaskFields))

	p := principalOf(call)
	ms := elapsed.Milliseconds()
	if ms < 0 {
		ms = 0
	}

	entry := &model.AuditLog{
		ID:                i.newID(),
		CreatedAt:         createdAt,
		Method:            plan.method,
		User:              p.User,
		IPAddress:         call.ClientIP,
		HTTPMethod:        call.HTTPMethod,
		Status:            model.StatusSuccess,
		StatusCode:        status,
		ExecutionTimeMs:   ms,
		ResponseSizeBytes: int64(len(out.Response)),
		RequestPayload:    string(encodeLoose(masked)),
		ResponsePreview:   TruncateUTF8(out.Response, plan.settings.PreviewLimitBytes()),
		ErrorTrace:        trace,
		AppName:           strings.SplitN(plan.method, ".", 2)[0],
		RoleSnapshot:      strings.Join(p.Roles, ", "),
	}
	if failed {
		entry.Status = model.StatusFailed
	}
	return entry
}

// TruncateUTF8 returns the longest prefix of b that is at most limit bytes
// and does not split a UTF-8 sequence.
func TruncateUTF8(b []byte, limit int) string {
	if limit <= 0 || len(b) == 0 {
		return ""
	}
	if len(b) <= limit {
		return string(b)
	}
	cut := limit
	for cut > 0 && cut > limit-utf8.UTFMax && !utf8.RuneStart(b[cut]) {
		cut--
	}
	if !utf8.RuneStart(b[cut]) {
		cut = limit
	}
	return string(b[:cut])
}

// encodeLoose marshals v to JSON, falling back to its %v string form for
// values encoding/json cannot represent.
func encodeLoose(v any) []byte {
	if v == nil {
		return []byte("{}")
	}
	if raw, ok := v.([]byte); ok {
		return raw
	}
	data, err := json.Marshal(v)
	if err != nil {
		data, _ = json.Marshal(fmt.Sprintf("%v", v))
	}
	return data
}

func principalOf(call *Call) *model.Principal {
	if call == nil || call.Principal == nil {
		return &model.Principal{User: model.GuestUser}
	}
	return call.Principal
}

func intersects(allowed, roles []string) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, r := range allowed {
		set[r] = struct{}{}
	}
	for _, r := range roles {
		if _, ok := set[r]; ok {
			return true
		}
	}
	return false
}
