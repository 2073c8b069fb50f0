package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"market_call/internal/config"
)

type HealthHandler struct {
	liveKitURL string
}

func NewHealthHandler(cfg *config.Config) *HealthHandler {
	return &HealthHandler{liveKitURL: cfg.LiveKit.URL}
}

func (h *HealthHandler) Check(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "market-call",
	})
}

// ServerInfo возвращает настройки подключения для клиентов
func (h *HealthHandler) ServerInfo(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"livekit_url": h.liveKitURL,
		"api_base":    "/api/v1",
	})
}
