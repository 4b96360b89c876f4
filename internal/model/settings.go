package model

import (
	"strings"
	"time"
)

const (
	ArchivePolicyDelete = "delete"
	ArchivePolicyFlag   = "flag"
)

// AuditSettings 是单例配置，由管理员修改，每次调用都重新读取
type AuditSettings struct {
	ID                   uint      `json:"-" gorm:"primaryKey"`
	Enabled              bool      `json:"enabled"`
	LogGuest             bool      `json:"log_guest"`
	AllowedRoles         []string  `json:"allowed_roles" gorm:"serializer:json"`
	MaskFields           []string  `json:"mask_fields" gorm:"serializer:json"`
	MaxResponsePreviewKB int       `json:"max_response_preview_kb"`
	RateLimitPerMinute   int       `json:"rate_limit_per_minute"`
	RetainLogsDays       int       `json:"retain_logs_days"`
	ArchiveBatchSize     int       `json:"archive_batch_size"`
	ArchivePolicy        string    `json:"archive_policy" gorm:"type:varchar(16)"`
	S3Prefix             string    `json:"s3_prefix"`
	FailureWindowMinutes int       `json:"failure_window_minutes"`
	FailureThreshold     int       `json:"failure_threshold"`
	AlertCooldownMinutes int       `json:"alert_cooldown_minutes"`
	AlertEmails          string    `json:"alert_emails"`
	UpdatedAt            time.Time `json:"updated_at"`
}

func (AuditSettings) TableName() string {
	return "api_audit_settings"
}

// PreviewLimitBytes is the response preview budget, 4KB when unset.
func (s *AuditSettings) PreviewLimitBytes() int {
	kb := s.MaxResponsePreviewKB
	if kb <= 0 {
		kb = 4
	}
	return kb * 1024
}

func (s *AuditSettings) RetentionDays() int {
	if s.RetainLogsDays <= 0 {
		return 30
	}
	return s.RetainLogsDays
}

func (s *AuditSettings) BatchSize() int {
	if s.ArchiveBatchSize <= 0 {
		return 5000
	}
	return s.ArchiveBatchSize
}

// StoragePrefix returns the blob prefix without surrounding slashes.
func (s *AuditSettings) StoragePrefix() string {
	prefix := strings.Trim(strings.TrimSpace(s.S3Prefix), "/")
	if prefix == "" {
		return "api-logs"
	}
	return prefix
}

func (s *AuditSettings) Policy() string {
	if strings.EqualFold(s.ArchivePolicy, ArchivePolicyFlag) {
		return ArchivePolicyFlag
	}
	return ArchivePolicyDelete
}

func (s *AuditSettings) FailureWindow() time.Duration {
	m := s.FailureWindowMinutes
	if m <= 0 {
		m = 5
	}
	return time.Duration(m) * time.Minute
}

func (s *AuditSettings) Threshold() int {
	if s.FailureThreshold <= 0 {
		return 10
	}
	return s.FailureThreshold
}

func (s *AuditSettings) AlertCooldown() time.Duration {
	m := s.AlertCooldownMinutes
	if m <= 0 {
		m = 30
	}
	return time.Duration(m) * time.Minute
}

// Recipients splits the comma separated alert address list.
func (s *AuditSettings) Recipients() []string {
	var out []string
	for _, addr := range strings.Split(s.AlertEmails, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			out = append(out, addr)
		}
	}
	return out
}

// Clone returns a deep copy so callers can mutate a snapshot freely.
func (s *AuditSettings) Clone() *AuditSettings {
	if s == nil {
		return nil
	}
	c := *s
	c.AllowedRoles = append([]string(nil), s.AllowedRoles...)
	c.MaskFields = append([]string(nil), s.MaskFields...)
	return &c
}
