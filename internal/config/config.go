package config

import (
	"log"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Admin     AdminConfig     `mapstructure:"admin"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Audit     AuditConfig     `mapstructure:"audit"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // gin mode: debug / release / test
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// ClientConfig is a machine client allowed to call the API with key/secret.
type ClientConfig struct {
	User      string   `mapstructure:"user"`
	APIKey    string   `mapstructure:"api_key"`
	APISecret string   `mapstructure:"api_secret"`
	Roles     []string `mapstructure:"roles"`
}

// SessionConfig is a browser session, keyed by the sid cookie.
type SessionConfig struct {
	SID   string   `mapstructure:"sid"`
	User  string   `mapstructure:"user"`
	Roles []string `mapstructure:"roles"`
}

type AuthConfig struct {
	AdminRole string          `mapstructure:"admin_role"`
	Clients   []ClientConfig  `mapstructure:"clients"`
	Sessions  []SessionConfig `mapstructure:"sessions"`
}

type AdminConfig struct {
	// Manual archive triggers allowed per minute (x/time/rate).
	ArchiveTriggersPerMinute float64 `mapstructure:"archive_triggers_per_minute"`
	ReadOnly                 bool    `mapstructure:"read_only"`
}

type DatabaseConfig struct {
	Driver          string `mapstructure:"driver"` // postgres / sqlite
	DSN             string `mapstructure:"dsn"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifeMins int    `mapstructure:"conn_max_life_minutes"`
}

type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

type StorageConfig struct {
	Driver   string   `mapstructure:"driver"` // local / s3
	LocalDir string   `mapstructure:"local_dir"`
	S3       S3Config `mapstructure:"s3"`
}

type S3Config struct {
	Bucket       string `mapstructure:"bucket"`
	Region       string `mapstructure:"region"`
	Endpoint     string `mapstructure:"endpoint"`
	AccessKey    string `mapstructure:"access_key"`
	SecretKey    string `mapstructure:"secret_key"`
	UsePathStyle bool   `mapstructure:"use_path_style"`
}

type NotifyConfig struct {
	TimeoutSeconds int           `mapstructure:"timeout_seconds"`
	SMTP           SMTPConfig    `mapstructure:"smtp"`
	Webhook        WebhookConfig `mapstructure:"webhook"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

type WebhookConfig struct {
	URL string `mapstructure:"url"`
}

// AuditConfig holds the static pipeline wiring plus the seed for the
// runtime settings row (only used when the row does not exist yet).
type AuditConfig struct {
	APIPrefix          string   `mapstructure:"api_prefix"`
	ReservedNamespaces []string `mapstructure:"reserved_namespaces"`
	PersistTimeoutMs   int      `mapstructure:"persist_timeout_ms"`
	UploadTimeoutSecs  int      `mapstructure:"upload_timeout_seconds"`

	Enabled              bool     `mapstructure:"enabled"`
	LogGuest             bool     `mapstructure:"log_guest"`
	AllowedRoles         []string `mapstructure:"allowed_roles"`
	MaskFields           []string `mapstructure:"mask_fields"`
	MaxResponsePreviewKB int      `mapstructure:"max_response_preview_kb"`
	RateLimitPerMinute   int      `mapstructure:"rate_limit_per_minute"`
	RetainLogsDays       int      `mapstructure:"retain_logs_days"`
	ArchiveBatchSize     int      `mapstructure:"archive_batch_size"`
	ArchivePolicy        string   `mapstructure:"archive_policy"`
	S3Prefix             string   `mapstructure:"s3_prefix"`
	FailureWindowMinutes int      `mapstructure:"failure_window_minutes"`
	FailureThreshold     int      `mapstructure:"failure_threshold"`
	AlertCooldownMinutes int      `mapstructure:"alert_cooldown_minutes"`
	AlertEmails          string   `mapstructure:"alert_emails"`
}

type SchedulerConfig struct {
	ArchiveIntervalMinutes int `mapstructure:"archive_interval_minutes"`
	AlertIntervalSeconds   int `mapstructure:"alert_interval_seconds"`
	SweepIntervalSeconds   int `mapstructure:"sweep_interval_seconds"`
	TaskTimeoutSeconds     int `mapstructure:"task_timeout_seconds"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")

	// e.g. APIAUDIT_DATABASE_DSN
	v.SetEnvPrefix("apiaudit")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("No config file found, using defaults and env vars")
		} else {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults registers every default on v. Exported so tests can build a
// Config without touching the filesystem.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("log.level", "info")

	v.SetDefault("auth.admin_role", "System Manager")
	v.SetDefault("admin.archive_triggers_per_minute", 2)
	v.SetDefault("admin.read_only", false)

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.max_open_conns", 50)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.conn_max_life_minutes", 60)

	v.SetDefault("redis.key_prefix", "apiaudit")

	v.SetDefault("storage.driver", "local")
	v.SetDefault("storage.local_dir", "./archive")
	v.SetDefault("storage.s3.region", "us-east-1")

	v.SetDefault("notify.timeout_seconds", 10)
	v.SetDefault("notify.smtp.port", 587)

	v.SetDefault("audit.api_prefix", "/api/method/")
	v.SetDefault("audit.reserved_namespaces", []string{"audit.", "system."})
	v.SetDefault("audit.persist_timeout_ms", 2000)
	v.SetDefault("audit.upload_timeout_seconds", 60)
	v.SetDefault("audit.enabled", true)
	v.SetDefault("audit.log_guest", false)
	v.SetDefault("audit.mask_fields", []string{"password", "api_secret", "api_token", "token", "secret"})
	v.SetDefault("audit.max_response_preview_kb", 4)
	v.SetDefault("audit.rate_limit_per_minute", 0)
	v.SetDefault("audit.retain_logs_days", 30)
	v.SetDefault("audit.archive_batch_size", 5000)
	v.SetDefault("audit.archive_policy", "delete")
	v.SetDefault("audit.s3_prefix", "api-logs")
	v.SetDefault("audit.failure_window_minutes", 5)
	v.SetDefault("audit.failure_threshold", 10)
	v.SetDefault("audit.alert_cooldown_minutes", 30)

	v.SetDefault("scheduler.archive_interval_minutes", 60)
	v.SetDefault("scheduler.alert_interval_seconds", 60)
	v.SetDefault("scheduler.sweep_interval_seconds", 60)
	v.SetDefault("scheduler.task_timeout_seconds", 300)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}
