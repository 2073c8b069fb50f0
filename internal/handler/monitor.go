package handler

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"market_call/internal/domain"
	"market_call/internal/service"
	"market_call/pkg/logger"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
	wsSendBuffer   = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// MonitorHandler stream events of a room over websocket so that
// marketplace backends can observe calls without joining them.
type MonitorHandler struct {
	bus      *service.EventBus
	registry *service.SessionRegistry
	log      logger.Logger
}

func NewMonitorHandler(bus *service.EventBus, registry *service.SessionRegistry, log logger.Logger) *MonitorHandler {
	return &MonitorHandler{bus: bus, registry: registry, log: log}
}

type monitorEvent struct {
	RoomID   string                     `json:"room_id"`
	Envelope domain.CustomEventEnvelope `json:"envelope"`
}

func (h *MonitorHandler) StreamEvents(c *gin.Context) {
	roomID := c.Param("id")
	session := h.registry.GetSession(roomID)
	if session == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "room_id", roomID, "error", err)
		return
	}

	send := make(chan monitorEvent, wsSendBuffer)
	var closeOnce sync.Once
	done := make(chan struct{})
	closeConn := func() {
		closeOnce.Do(func() {
			close(done)
			conn.Close()
		})
	}

	unsubscribe := h.bus.SubscribeAll(func(s *domain.Session, env domain.CustomEventEnvelope) {
		if s != session {
			return
		}
		select {
		case send <- monitorEvent{RoomID: roomID, Envelope: env}:
		default:
			// медленный наблюдатель не должен тормозить шину
			h.log.Warn("monitor client is slow, dropping event", "room_id", roomID, "type", env.Type)
		}
	})
	defer unsubscribe()
	defer closeConn()

	// читаем только ради close-фреймов
	go func() {
		defer closeConn()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case ev := <-send:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				h.log.Debug("monitor write failed", "room_id", roomID, "error", err)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
