package model

import (
	"time"
)

const (
	StatusSuccess = "Success"
	StatusFailed  = "Failed"
)

// AuditLog 代表一次被审计的外部 API 调用
type AuditLog struct {
	ID                string    `json:"id" gorm:"primaryKey;type:varchar(64)"`
	CreatedAt         time.Time `json:"creation" gorm:"column:creation;index:idx_api_log_creation;index:idx_api_log_status_creation,priority:2;not null"`
	Method            string    `json:"method" gorm:"type:varchar(255);index"`
	User              string    `json:"user" gorm:"column:user_id;type:varchar(255);index"`
	IPAddress         string    `json:"ip_address" gorm:"type:varchar(64)"`
	HTTPMethod        string    `json:"http_method" gorm:"type:varchar(16)"`
	Status            string    `json:"status" gorm:"type:varchar(16);index:idx_api_log_status_creation,priority:1"`
	StatusCode        int       `json:"status_code"`
	ExecutionTimeMs   int64     `json:"execution_time_ms"`
	ResponseSizeBytes int64     `json:"response_size_bytes"`
	RequestPayload    string    `json:"request_payload" gorm:"type:text"` // 脱敏后的请求体
	ResponsePreview   string    `json:"response_preview" gorm:"type:text"`
	ErrorTrace        string    `json:"error_trace,omitempty" gorm:"type:text"`
	AppName           string    `json:"app_name" gorm:"type:varchar(128)"`
	RoleSnapshot      string    `json:"role_snapshot" gorm:"type:text"`

	Archived    bool   `json:"archived" gorm:"not null;default:false;index"`
	ArchiveFile string `json:"archive_file,omitempty" gorm:"type:text"`
}

func (AuditLog) TableName() string {
	return "api_access_logs"
}

// Failed reports whether the record describes a failed call.
func (l *AuditLog) Failed() bool {
	return l.Status == StatusFailed
}

// LogFilter selects audit records. Zero values mean "no constraint".
type LogFilter struct {
	From   time.Time // creation >= From
	To     time.Time // creation < To
	User   string
	Status string
	// OnlyUnarchived skips rows already flagged as archived.
	OnlyUnarchived bool
	Limit          int
	// Desc orders newest first; the default is oldest first.
	Desc bool
}
