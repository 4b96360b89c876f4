package handler

import (
	"net/http"

	"github.com/GoPolymarket/apiaudit/internal/config"
	"github.com/GoPolymarket/apiaudit/internal/middleware"
	"github.com/GoPolymarket/apiaudit/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Deps is everything the HTTP surface needs.
type Deps struct {
	Config      *config.Config
	Interceptor *service.Interceptor
	Methods     *MethodRegistry
	Settings    *service.SettingsService
	Archiver    *service.Archiver
	Logs        *service.AuditService
}

// NewRouter builds the gin engine. ErrorHandler sits outside the audit
// middleware so rendered errors are seen by the recorder.
func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.MetricsMiddleware())
	r.Use(middleware.ErrorHandler())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "apiaudit"})
	})
	if d.Config.Metrics.Enabled {
		r.GET(d.Config.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	methods := NewMethodHandler(d.Methods)
	api := r.Group("/api/method")
	api.Use(middleware.IdentityMiddleware(d.Config.Auth))
	api.Use(middleware.AuditMiddleware(d.Interceptor))
	{
		api.GET("/*method", methods.Call)
		api.POST("/*method", methods.Call)
	}

	admin := NewAdminHandler(d.Settings, d.Archiver, d.Logs)
	stream := NewStreamHandler(d.Logs)
	adm := r.Group("/admin/audit")
	adm.Use(middleware.IdentityMiddleware(d.Config.Auth))
	adm.Use(middleware.AdminMiddleware(d.Config.Auth.AdminRole))
	adm.Use(middleware.ReadOnlyMiddleware(d.Config.Admin.ReadOnly))
	{
		adm.GET("/settings", admin.GetSettings)
		adm.PUT("/settings", admin.UpdateSettings)
		adm.POST("/enable", admin.Enable)
		adm.POST("/disable", admin.Disable)
		adm.POST("/archive", middleware.ThrottleMiddleware(d.Config.Admin.ArchiveTriggersPerMinute), admin.Archive)
		adm.GET("/logs", admin.ListLogs)
		adm.GET("/stream", stream.Stream)
	}
	return r
}
