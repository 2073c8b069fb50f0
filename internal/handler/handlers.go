package handler

import (
	"market_call/internal/config"
	"market_call/internal/service"
	"market_call/pkg/logger"
)

type Handlers struct {
	Health  *HealthHandler
	Rooms   *RoomHandler
	Logs    *LogHandler
	Monitor *MonitorHandler
}

func NewHandlers(services *service.Services, cfg *config.Config, log logger.Logger) *Handlers {
	return &Handlers{
		Health:  NewHealthHandler(cfg),
		Rooms:   NewRoomHandler(services.Registry, cfg, log),
		Logs:    NewLogHandler(services.SessionLog, log),
		Monitor: NewMonitorHandler(services.Events, services.Registry, log),
	}
}
