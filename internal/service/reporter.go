package service

import (
	"context"
	"log/slog"

	"github.com/GoPolymarket/apiaudit/internal/pkg/logger"
	"github.com/GoPolymarket/apiaudit/internal/pkg/metrics"
)

// ErrorReporter receives audit-path failures that are swallowed so the
// business call is unaffected.
type ErrorReporter interface {
	Report(ctx context.Context, stage string, err error, attrs ...any)
}

// LogReporter logs and counts every reported failure.
type LogReporter struct {
	log *slog.Logger
}

func NewLogReporter() *LogReporter {
	return &LogReporter{log: logger.Component("audit")}
}

func (r *LogReporter) Report(ctx context.Context, stage string, err error, attrs ...any) {
	if err == nil {
		return
	}
	metrics.PipelineErrors.WithLabelValues(stage).Inc()
	args := append([]any{"stage", stage, "error", err.Error()}, attrs...)
	r.log.ErrorContext(ctx, "audit pipeline degraded", args...)
}
