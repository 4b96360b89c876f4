package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	mu           sync.RWMutex
	globalLogger *slog.Logger
	once         sync.Once
)

// Init installs the process JSON logger. Later calls are no-ops.
func Init(level string) {
	once.Do(func() {
		install(os.Stdout, level)
	})
}

// SetOutput replaces the global logger, mainly so tests can capture output.
func SetOutput(w io.Writer, level string) {
	install(w, level)
}

func install(w io.Writer, level string) {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: parseLevel(level),
	})
	l := slog.New(handler)
	mu.Lock()
	globalLogger = l
	mu.Unlock()
	slog.SetDefault(l)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Get returns the global logger instance
func Get() *slog.Logger {
	mu.RLock()
	l := globalLogger
	mu.RUnlock()
	if l == nil {
		Init("info")
		mu.RLock()
		l = globalLogger
		mu.RUnlock()
	}
	return l
}

// Component returns a child logger tagged with the component name.
func Component(name string) *slog.Logger {
	return Get().With("component", name)
}

func Info(msg string, args ...any) {
	Get().Info(msg, args...)
}

func Error(msg string, args ...any) {
	Get().Error(msg, args...)
}

func Warn(msg string, args ...any) {
	Get().Warn(msg, args...)
}

func Debug(msg string, args ...any) {
	Get().Debug(msg, args...)
}

func LogError(ctx context.Context, err error, msg string, args ...any) {
	if err == nil {
		return
	}
	args = append(args, slog.String("error", err.Error()))
	Get().ErrorContext(ctx, msg, args...)
}
