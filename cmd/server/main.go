package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/GoPolymarket/apiaudit/internal/config"
	"github.com/GoPolymarket/apiaudit/internal/handler"
	"github.com/GoPolymarket/apiaudit/internal/notify"
	"github.com/GoPolymarket/apiaudit/internal/pkg/logger"
	"github.com/GoPolymarket/apiaudit/internal/repository"
	"github.com/GoPolymarket/apiaudit/internal/scheduler"
	"github.com/GoPolymarket/apiaudit/internal/service"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

func main() {
	// 1. Load Configuration & Logger
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.Init(cfg.Log.Level)
	gin.SetMode(cfg.Server.Mode)

	// 2. Initialize Persistence
	// Audit log + settings (Database > Memory)
	seed := service.DefaultSettings(cfg.Audit)
	var (
		db            *gorm.DB
		logStore      service.LogStore
		settingsStore service.SettingsStore
	)
	if cfg.Database.DSN != "" {
		db, err = repository.NewDB(cfg.Database)
		if err == nil {
			logger.Info("✅ Connected to database", "driver", cfg.Database.Driver)
			settingsRepo := repository.NewGormSettingsRepo(db, seed)
			if err := settingsRepo.EnsureSeed(context.Background()); err != nil {
				logger.Error("⚠️ Failed to seed audit settings", "error", err)
			}
			logStore = repository.NewGormAuditRepo(db)
			settingsStore = settingsRepo
		} else {
			logger.Error("⚠️ Failed to connect to DB, audit logs will be memory-only", "error", err)
		}
	}
	if logStore == nil {
		logStore = service.NewMemoryLogStore()
		settingsStore = service.NewMemorySettingsStore(seed)
	}

	// Rate limit + alert cooldown (Redis > Memory)
	var (
		redisClient *repository.RedisClient
		limiter     service.RateLimiter
		cooldown    service.CooldownStore
	)
	memLimiter := service.NewFixedWindowLimiter(nil)
	if cfg.Redis.Addr != "" {
		redisClient, err = repository.NewRedisClient(cfg.Redis)
		if err == nil {
			logger.Info("✅ Connected to Redis")
			limiter = repository.NewRedisRateLimiter(redisClient, nil)
			cooldown = repository.NewRedisCooldownStore(redisClient)
		} else {
			logger.Error("⚠️ Failed to connect to Redis, falling back to memory", "error", err)
		}
	}
	if limiter == nil {
		limiter = memLimiter
		cooldown = service.NewMemoryCooldownStore()
	}

	// Archive blobs (S3 > Local)
	var blobs service.BlobStore
	if cfg.Storage.Driver == "s3" {
		s3Store, err := repository.NewS3BlobStore(context.Background(), cfg.Storage.S3)
		if err != nil {
			log.Fatalf("Failed to initialize S3 storage: %v", err)
		}
		blobs = s3Store
	} else {
		localStore, err := repository.NewLocalBlobStore(cfg.Storage.LocalDir)
		if err != nil {
			log.Fatalf("Failed to initialize archive dir: %v", err)
		}
		blobs = localStore
	}

	// 3. Initialize Core Services
	auditSvc := service.NewAuditService(logStore, time.Duration(cfg.Audit.PersistTimeoutMs)*time.Millisecond)
	interceptor := service.NewInterceptor(
		service.NewClassifier(cfg.Audit.APIPrefix, cfg.Audit.ReservedNamespaces),
		settingsStore,
		limiter,
		auditSvc,
	)
	archiver := service.NewArchiver(logStore, blobs, settingsStore, nil,
		time.Duration(cfg.Audit.UploadTimeoutSecs)*time.Second)
	alerts := service.NewAlertMonitor(logStore, settingsStore, cooldown, notify.FromConfig(cfg.Notify), nil)

	// 4. Background Jobs
	taskTimeout := time.Duration(cfg.Scheduler.TaskTimeoutSeconds) * time.Second
	sched := scheduler.New(time.Second)
	tasks := []*scheduler.Task{
		{
			ID:       "archive",
			Name:     "Archive expired API logs",
			Schedule: scheduler.Every(time.Duration(cfg.Scheduler.ArchiveIntervalMinutes) * time.Minute),
			Timeout:  taskTimeout,
			Func: func(ctx context.Context) error {
				_, err := archiver.ArchiveExpired(ctx)
				return err
			},
		},
		{
			ID:       "alert",
			Name:     "Check API failure spike",
			Schedule: scheduler.Every(time.Duration(cfg.Scheduler.AlertIntervalSeconds) * time.Second),
			Timeout:  taskTimeout,
			Func: func(ctx context.Context) error {
				_, err := alerts.Check(ctx)
				return err
			},
		},
		{
			ID:       "limiter_sweep",
			Name:     "Sweep stale rate-limit windows",
			Schedule: scheduler.Every(time.Duration(cfg.Scheduler.SweepIntervalSeconds) * time.Second),
			Func: func(context.Context) error {
				memLimiter.Sweep()
				return nil
			},
		},
	}
	for _, task := range tasks {
		if err := sched.AddTask(task); err != nil {
			log.Fatalf("Failed to register task %s: %v", task.ID, err)
		}
	}
	sched.Start()

	// 5. Setup Router
	r := handler.NewRouter(handler.Deps{
		Config:      cfg,
		Interceptor: interceptor,
		Methods:     handler.NewMethodRegistry(),
		Settings:    service.NewSettingsService(settingsStore),
		Archiver:    archiver,
		Logs:        auditSvc,
	})

	// 6. Start Server with Graceful Shutdown
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}

	go func() {
		logger.Info("🚀 API audit started", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server listen failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("🛑 Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}
	sched.Stop()
	if redisClient != nil {
		_ = redisClient.Close()
	}
	if db != nil {
		_ = repository.CloseDB(db)
	}

	logger.Info("Server exiting")
}
