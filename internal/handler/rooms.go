package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"market_call/internal/config"
	"market_call/internal/domain"
	"market_call/internal/service"
	"market_call/internal/transport"
	"market_call/pkg/logger"
)

type RoomHandler struct {
	registry *service.SessionRegistry
	cfg      *config.Config
	log      logger.Logger
}

func NewRoomHandler(registry *service.SessionRegistry, cfg *config.Config, log logger.Logger) *RoomHandler {
	return &RoomHandler{registry: registry, cfg: cfg, log: log}
}

type createRoomRequest struct {
	MarketplaceID   string                   `json:"marketplace_id" binding:"required"`
	Category        string                   `json:"category"`
	EmptyTimeout    int                      `json:"empty_timeout_seconds"`
	MaxParticipants int                      `json:"max_participants"`
	Moderation      *domain.ModerationConfig `json:"moderation"`
}

func (h *RoomHandler) Create(c *gin.Context) {
	var req createRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	moderation := req.Moderation
	if moderation == nil {
		moderation = h.cfg.DefaultModeration()
	}

	roomID, err := h.registry.CreateRoom(c.Request.Context(), domain.SessionMetadata{
		MarketplaceID: req.MarketplaceID,
		Category:      req.Category,
		Moderation:    moderation,
	}, transport.RoomOptions{
		EmptyTimeout:    time.Duration(req.EmptyTimeout) * time.Second,
		MaxParticipants: req.MaxParticipants,
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"room_id": roomID})
}

func (h *RoomHandler) List(c *gin.Context) {
	rooms, err := h.registry.ListRooms(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}

	out := make([]gin.H, 0, len(rooms))
	for _, room := range rooms {
		out = append(out, gin.H{
			"room_id":          room.Name,
			"num_participants": room.NumParticipants,
			"metadata":         room.Metadata,
		})
	}
	c.JSON(http.StatusOK, gin.H{"rooms": out})
}

func (h *RoomHandler) UpdateMetadata(c *gin.Context) {
	var patch domain.MetadataPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.registry.UpdateRoomMetadata(c.Request.Context(), c.Param("id"), patch); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

type endRoomRequest struct {
	Reason string `json:"reason"`
}

func (h *RoomHandler) End(c *gin.Context) {
	var req endRoomRequest
	_ = c.ShouldBindJSON(&req)

	if err := h.registry.EndRoom(c.Request.Context(), c.Param("id"), req.Reason); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ended"})
}

type tokenRequest struct {
	UserID     string         `json:"user_id" binding:"required"`
	Name       string         `json:"name"`
	Role       string         `json:"role" binding:"required"`
	TTLSeconds int            `json:"ttl_seconds"`
	Metadata   map[string]any `json:"metadata"`
}

func (h *RoomHandler) CreateToken(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	role, err := domain.ParseRole(req.Role)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	token, err := h.registry.CreateToken(service.TokenOptions{
		UserID:   req.UserID,
		Name:     req.Name,
		Role:     role,
		RoomID:   c.Param("id"),
		TTL:      time.Duration(req.TTLSeconds) * time.Second,
		Metadata: req.Metadata,
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token": token,
		"url":   h.cfg.LiveKit.URL,
	})
}
