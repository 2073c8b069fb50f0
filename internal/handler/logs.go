package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"market_call/internal/repository"
	"market_call/internal/service"
	"market_call/pkg/logger"
)

type LogHandler struct {
	logs service.SessionLog
	log  logger.Logger
}

func NewLogHandler(logs service.SessionLog, log logger.Logger) *LogHandler {
	return &LogHandler{logs: logs, log: log}
}

func (h *LogHandler) GetByRoom(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	entries, err := h.logs.GetLogsByRoom(c.Request.Context(), c.Param("id"), repository.LogQueryOptions{
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"room_id": c.Param("id"),
		"count":   len(entries),
		"logs":    entries,
	})
}
