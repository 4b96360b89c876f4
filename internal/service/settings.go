package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/GoPolymarket/apiaudit/internal/config"
	"github.com/GoPolymarket/apiaudit/internal/model"
	"github.com/GoPolymarket/apiaudit/internal/pkg/apperrors"
)

// SettingsStore persists the singleton AuditSettings row.
// Load must return a fresh snapshot on every call.
type SettingsStore interface {
	Load(ctx context.Context) (*model.AuditSettings, error)
	Save(ctx context.Context, s *model.AuditSettings) error
}

// DefaultSettings builds the seed settings from static config.
func DefaultSettings(cfg config.AuditConfig) *model.AuditSettings {
	return &model.AuditSettings{
		ID:                   1,
		Enabled:              cfg.Enabled,
		LogGuest:             cfg.LogGuest,
		AllowedRoles:         append([]string(nil), cfg.AllowedRoles...),
		MaskFields:           append([]string(nil), cfg.MaskFields...),
		MaxResponsePreviewKB: cfg.MaxResponsePreviewKB,
		RateLimitPerMinute:   cfg.RateLimitPerMinute,
		RetainLogsDays:       cfg.RetainLogsDays,
		ArchiveBatchSize:     cfg.ArchiveBatchSize,
		ArchivePolicy:        cfg.ArchivePolicy,
		S3Prefix:             cfg.S3Prefix,
		FailureWindowMinutes: cfg.FailureWindowMinutes,
		FailureThreshold:     cfg.FailureThreshold,
		AlertCooldownMinutes: cfg.AlertCooldownMinutes,
		AlertEmails:          cfg.AlertEmails,
	}
}

// MemorySettingsStore 用于测试及无数据库部署
type MemorySettingsStore struct {
	mu       sync.RWMutex
	settings *model.AuditSettings
	err      error
}

func NewMemorySettingsStore(s *model.AuditSettings) *MemorySettingsStore {
	if s == nil {
		s = &model.AuditSettings{ID: 1}
	}
	return &MemorySettingsStore{settings: s.Clone()}
}

func (m *MemorySettingsStore) Load(context.Context) (*model.AuditSettings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	return m.settings.Clone(), nil
}

func (m *MemorySettingsStore) Save(_ context.Context, s *model.AuditSettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = s.Clone()
	return nil
}

// FailWith makes subsequent loads fail, simulating an unreachable store.
func (m *MemorySettingsStore) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// SettingsService is the administrator-facing settings surface.
type SettingsService struct {
	store SettingsStore
}

func NewSettingsService(store SettingsStore) *SettingsService {
	return &SettingsService{store: store}
}

func (s *SettingsService) Get(ctx context.Context) (*model.AuditSettings, error) {
	settings, err := s.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSettingsUnavailable, err)
	}
	return settings, nil
}

func (s *SettingsService) Update(ctx context.Context, next *model.AuditSettings) (*model.AuditSettings, error) {
	if next == nil {
		return nil, apperrors.NewInvalidRequest("settings body is required")
	}
	if err := validateSettings(next); err != nil {
		return nil, err
	}
	next = next.Clone()
	next.ID = 1
	next.ArchivePolicy = next.Policy()
	next.UpdatedAt = time.Now().UTC()
	if err := s.store.Save(ctx, next); err != nil {
		return nil, err
	}
	return next, nil
}

func (s *SettingsService) SetEnabled(ctx context.Context, enabled bool) (*model.AuditSettings, error) {
	current, err := s.Get(ctx)
	if err != nil {
		return nil, err
	}
	current.Enabled = enabled
	return s.Update(ctx, current)
}

func validateSettings(s *model.AuditSettings) error {
	negatives := map[string]int{
		"max_response_preview_kb": s.MaxResponsePreviewKB,
		"rate_limit_per_minute":   s.RateLimitPerMinute,
		"retain_logs_days":        s.RetainLogsDays,
		"archive_batch_size":      s.ArchiveBatchSize,
		"failure_window_minutes":  s.FailureWindowMinutes,
		"failure_threshold":       s.FailureThreshold,
		"alert_cooldown_minutes":  s.AlertCooldownMinutes,
	}
	for name, v := range negatives {
		if v < 0 {
			return apperrors.NewInvalidRequest(name + " must not be negative")
		}
	}
	policy := strings.ToLower(strings.TrimSpace(s.ArchivePolicy))
	if policy != "" && policy != model.ArchivePolicyDelete && policy != model.ArchivePolicyFlag {
		return apperrors.NewInvalidRequest("archive_policy must be delete or flag")
	}
	return nil
}
