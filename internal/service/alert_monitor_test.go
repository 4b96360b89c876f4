package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/GoPolymarket/apiaudit/internal/model"
	"github.com/GoPolymarket/apiaudit/internal/pkg/clock"
	"github.com/GoPolymarket/apiaudit/internal/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedFailures(store LogStore, prefix string, n int, at time.Time) {
	for i := 0; i < n; i++ {
		seedLog(store, fmt.Sprintf("%s-%d", prefix, i), at, model.StatusFailed)
	}
}

func TestAlertMonitorCooldownSequence(t *testing.T) {
	c := clock.NewMockClock(testNow)
	store := NewMemoryLogStore()
	notifier := &countingNotifier{}
	m := NewAlertMonitor(store, NewMemorySettingsStore(enabledSettings()), nil, notifier, c)
	ctx := context.Background()

	seedFailures(store, "t0", 10, testNow.Add(-time.Minute))
	res, err := m.Check(ctx)
	require.NoError(t, err)
	assert.Equal(t, AlertSent, res)

	c.Set(testNow.Add(10 * time.Minute))
	seedFailures(store, "t10", 10, c.Now().Add(-time.Minute))
	res, err = m.Check(ctx)
	require.NoError(t, err)
	assert.Equal(t, AlertCooldown, res)

	c.Set(testNow.Add(31 * time.Minute))
	seedFailures(store, "t31", 10, c.Now().Add(-time.Minute))
	res, err = m.Check(ctx)
	require.NoError(t, err)
	assert.Equal(t, AlertSent, res)

	assert.Equal(t, 2, notifier.sent)
	assert.Equal(t, AlertSubject, notifier.subjects[0])
	assert.Equal(t, "10 failures detected in last 5 minutes", notifier.bodies[0])
}

func TestAlertMonitorBelowThreshold(t *testing.T) {
	store := NewMemoryLogStore()
	notifier := &countingNotifier{}
	m := NewAlertMonitor(store, NewMemorySettingsStore(enabledSettings()), nil, notifier, clock.NewMockClock(testNow))

	seedFailures(store, "recent", 9, testNow.Add(-time.Minute))
	// outside the window
	seedFailures(store, "stale", 5, testNow.Add(-10*time.Minute))
	for i := 0; i < 5; i++ {
		seedLog(store, fmt.Sprintf("ok-%d", i), testNow.Add(-time.Minute), model.StatusSuccess)
	}

	res, err := m.Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, AlertBelowThreshold, res)
	assert.Equal(t, 0, notifier.sent)
}

func TestAlertMonitorDisabled(t *testing.T) {
	s := enabledSettings()
	s.Enabled = false
	store := NewMemoryLogStore()
	seedFailures(store, "f", 20, testNow.Add(-time.Minute))
	m := NewAlertMonitor(store, NewMemorySettingsStore(s), nil, &countingNotifier{}, clock.NewMockClock(testNow))

	res, err := m.Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, AlertDisabled, res)
}

func TestAlertMonitorSendFailureKeepsCooldown(t *testing.T) {
	c := clock.NewMockClock(testNow)
	store := NewMemoryLogStore()
	cooldown := NewMemoryCooldownStore()
	notifier := &countingNotifier{err: errBackendDown}
	m := NewAlertMonitor(store, NewMemorySettingsStore(enabledSettings()), cooldown, notifier, c)
	seedFailures(store, "f", 12, testNow.Add(-time.Minute))

	res, err := m.Check(context.Background())
	require.ErrorIs(t, err, ErrAlertDispatch)
	assert.Equal(t, AlertSendFailed, res)

	last, ok, err := cooldown.LastAlert(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, testNow, last)

	c.Advance(time.Minute)
	res, err = m.Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, AlertCooldown, res)
	assert.Equal(t, 1, notifier.sent)
}

func TestAlertMonitorWithoutRecipients(t *testing.T) {
	s := enabledSettings()
	s.AlertEmails = " , "
	store := NewMemoryLogStore()
	notifier := &countingNotifier{}
	m := NewAlertMonitor(store, NewMemorySettingsStore(s), nil, notifier, clock.NewMockClock(testNow))
	seedFailures(store, "f", 10, testNow.Add(-time.Minute))

	sent := testutil.ToFloat64(metrics.Alerts.WithLabelValues(string(AlertSent)))
	empty := testutil.ToFloat64(metrics.Alerts.WithLabelValues(string(AlertNoRecipients)))

	res, err := m.Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, AlertNoRecipients, res)
	assert.Equal(t, 0, notifier.sent)
	assert.Equal(t, sent, testutil.ToFloat64(metrics.Alerts.WithLabelValues(string(AlertSent))))
	assert.Equal(t, empty+1, testutil.ToFloat64(metrics.Alerts.WithLabelValues(string(AlertNoRecipients))))

	// no notifier at all
	m = NewAlertMonitor(store, NewMemorySettingsStore(enabledSettings()), nil, nil, clock.NewMockClock(testNow))
	res, err = m.Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, AlertNoRecipients, res)
}

func TestAlertMonitorSettingsUnavailable(t *testing.T) {
	settings := NewMemorySettingsStore(enabledSettings())
	settings.FailWith(errBackendDown)
	m := NewAlertMonitor(NewMemoryLogStore(), settings, nil, &countingNotifier{}, clock.NewMockClock(testNow))

	_, err := m.Check(context.Background())
	require.ErrorIs(t, err, ErrSettingsUnavailable)
}
