package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/GoPolymarket/apiaudit/internal/model"
	"github.com/GoPolymarket/apiaudit/internal/pkg/apperrors"
	"github.com/GoPolymarket/apiaudit/internal/service"
	"github.com/gin-gonic/gin"
)

// AdminHandler serves the administrator surface under /admin/audit.
type AdminHandler struct {
	settings *service.SettingsService
	archiver *service.Archiver
	logs     *service.AuditService
}

func NewAdminHandler(settings *service.SettingsService, archiver *service.Archiver, logs *service.AuditService) *AdminHandler {
	return &AdminHandler{settings: settings, archiver: archiver, logs: logs}
}

func (h *AdminHandler) GetSettings(c *gin.Context) {
	s, err := h.settings.Get(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *AdminHandler) UpdateSettings(c *gin.Context) {
	var req model.AuditSettings
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.NewInvalidRequest("invalid settings body: " + err.Error()))
		return
	}
	s, err := h.settings.Update(c.Request.Context(), &req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *AdminHandler) Enable(c *gin.Context) {
	h.setEnabled(c, true)
}

func (h *AdminHandler) Disable(c *gin.Context) {
	h.setEnabled(c, false)
}

func (h *AdminHandler) setEnabled(c *gin.Context, enabled bool) {
	s, err := h.settings.SetEnabled(c.Request.Context(), enabled)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"enabled": s.Enabled})
}

// Archive runs an immediate archive of everything in [from, to). Without
// from/to it archives every unarchived record.
func (h *AdminHandler) Archive(c *gin.Context) {
	var from, to time.Time
	if raw := c.Query("from"); raw != "" {
		t, err := parseTime(raw)
		if err != nil {
			_ = c.Error(apperrors.NewInvalidRequest(err.Error()))
			return
		}
		from = t
	}
	if raw := c.Query("to"); raw != "" {
		t, err := parseTime(raw)
		if err != nil {
			_ = c.Error(apperrors.NewInvalidRequest(err.Error()))
			return
		}
		to = t
	}

	res, err := h.archiver.ArchiveRange(c.Request.Context(), from, to)
	if err != nil {
		if errors.Is(err, service.ErrArchiveUpload) {
			err = apperrors.New(apperrors.ErrArchiveFailed, "archive upload failed", err)
		}
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *AdminHandler) ListLogs(c *gin.Context) {
	filter := model.LogFilter{
		User:   c.Query("user"),
		Status: c.Query("status"),
		Desc:   true,
	}
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			filter.Limit = parsed
		}
	}
	if raw := c.Query("from"); raw != "" {
		t, err := parseTime(raw)
		if err != nil {
			_ = c.Error(apperrors.NewInvalidRequest(err.Error()))
			return
		}
		filter.From = t
	}
	if raw := c.Query("to"); raw != "" {
		t, err := parseTime(raw)
		if err != nil {
			_ = c.Error(apperrors.NewInvalidRequest(err.Error()))
			return
		}
		filter.To = t
	}

	records, err := h.logs.List(c.Request.Context(), filter)
	if err != nil {
		_ = c.Error(apperrors.New(apperrors.ErrInternal, err.Error(), err))
		return
	}
	c.JSON(http.StatusOK, records)
}

func parseTime(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	if unix, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("invalid time format")
}
