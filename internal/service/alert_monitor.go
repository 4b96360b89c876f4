package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/GoPolymarket/apiaudit/internal/model"
	"github.com/GoPolymarket/apiaudit/internal/pkg/clock"
	"github.com/GoPolymarket/apiaudit/internal/pkg/logger"
	"github.com/GoPolymarket/apiaudit/internal/pkg/metrics"
)

// Notifier is the notification sender collaborator.
type Notifier interface {
	Send(ctx context.Context, recipients []string, subject, body string) error
}

// CooldownStore keeps the "last alert sent" timestamp.
type CooldownStore interface {
	LastAlert(ctx context.Context) (time.Time, bool, error)
	SetLastAlert(ctx context.Context, t time.Time) error
}

type AlertResult string

const (
	AlertDisabled       AlertResult = "disabled"
	AlertBelowThreshold AlertResult = "below_threshold"
	AlertCooldown       AlertResult = "cooldown"
	AlertSent           AlertResult = "sent"
	AlertNoRecipients   AlertResult = "no_recipients"
	AlertSendFailed     AlertResult = "send_failed"
)

const AlertSubject = "API Failure Spike Detected"

// MemoryCooldownStore is the process-local CooldownStore.
type MemoryCooldownStore struct {
	mu   sync.Mutex
	last time.Time
	set  bool
}

func NewMemoryCooldownStore() *MemoryCooldownStore {
	return &MemoryCooldownStore{}
}

func (s *MemoryCooldownStore) LastAlert(context.Context) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.set, nil
}

func (s *MemoryCooldownStore) SetLastAlert(_ context.Context, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last, s.set = t, true
	return nil
}

// AlertMonitor 定期统计失败调用数，超过阈值且不在冷却期时发送告警
type AlertMonitor struct {
	store    LogStore
	settings SettingsProvider
	cooldown CooldownStore
	notifier Notifier
	clock    clock.Clock
	log      *slog.Logger
}

func NewAlertMonitor(store LogStore, settings SettingsProvider, cooldown CooldownStore, notifier Notifier, c clock.Clock) *AlertMonitor {
	if cooldown == nil {
		cooldown = NewMemoryCooldownStore()
	}
	return &AlertMonitor{
		store:    store,
		settings: settings,
		cooldown: cooldown,
		notifier: notifier,
		clock:    clock.OrReal(c),
		log:      logger.Component("alert_monitor"),
	}
}

// Check runs one poll. A dispatch failure keeps the new cooldown timestamp.
func (m *AlertMonitor) Check(ctx context.Context) (AlertResult, error) {
	result, err := m.check(ctx)
	if err != nil && result == "" {
		metrics.Alerts.WithLabelValues("error").Inc()
		return result, err
	}
	metrics.Alerts.WithLabelValues(string(result)).Inc()
	return result, err
}

func (m *AlertMonitor) check(ctx context.Context) (AlertResult, error) {
	settings, err := m.settings.Load(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSettingsUnavailable, err)
	}
	if !settings.Enabled {
		return AlertDisabled, nil
	}

	now := m.clock.Now()
	window := settings.FailureWindow()
	count, err := m.store.Count(ctx, model.LogFilter{
		From:   now.Add(-window),
		Status: model.StatusFailed,
	})
	if err != nil {
		return "", fmt.Errorf("count failures: %w", err)
	}
	if count < int64(settings.Threshold()) {
		return AlertBelowThreshold, nil
	}

	last, ok, err := m.cooldown.LastAlert(ctx)
	if err != nil {
		return "", fmt.Errorf("read alert cooldown: %w", err)
	}
	if ok && now.Sub(last) < settings.AlertCooldown() {
		return AlertCooldown, nil
	}

	// 先写冷却时间，避免并发重复发送
	if err := m.cooldown.SetLastAlert(ctx, now); err != nil {
		return "", fmt.Errorf("write alert cooldown: %w", err)
	}

	minutes := int(window / time.Minute)
	body := fmt.Sprintf("%d failures detected in last %d minutes", count, minutes)
	recipients := settings.Recipients()
	if m.notifier == nil || len(recipients) == 0 {
		m.log.WarnContext(ctx, "failure spike detected but no alert recipients configured", "count", count)
		return AlertNoRecipients, nil
	}
	if err := m.notifier.Send(ctx, recipients, AlertSubject, body); err != nil {
		m.log.ErrorContext(ctx, "failure spike alert not delivered", "count", count, "error", err)
		return AlertSendFailed, fmt.Errorf("%w: %v", ErrAlertDispatch, err)
	}
	m.log.InfoContext(ctx, "failure spike alert sent", "count", count, "recipients", len(recipients))
	return AlertSent, nil
}
