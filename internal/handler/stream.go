package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/GoPolymarket/apiaudit/internal/pkg/logger"
	"github.com/GoPolymarket/apiaudit/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = 50 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// 只接受同源或无 Origin 的连接
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, host, ok := strings.Cut(origin, "://")
		return ok && host == r.Host
	},
}

// StreamHandler pushes newly persisted audit records over a websocket.
type StreamHandler struct {
	logs *service.AuditService
}

func NewStreamHandler(logs *service.AuditService) *StreamHandler {
	return &StreamHandler{logs: logs}
}

// Stream serves GET /admin/audit/stream. ?status= filters by outcome.
func (h *StreamHandler) Stream(c *gin.Context) {
	status := c.Query("status")
	// 升级前订阅，握手完成后的记录不会丢
	entries, unsubscribe := h.logs.Subscribe(64)
	defer unsubscribe()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("audit stream upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	// reader: only needed to observe pongs and the close frame
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(streamPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(streamPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			return
		case <-c.Request.Context().Done():
			return
		case entry, ok := <-entries:
			if !ok {
				return
			}
			if status != "" && entry.Status != status {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteJSON(entry); err != nil {
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
