package service

import (
	"context"

	"market_call/internal/config"
	"market_call/internal/domain"
	"market_call/internal/repository"
	"market_call/internal/transport"
	"market_call/pkg/logger"
)

type Services struct {
	SessionLog   SessionLog
	Registry     *SessionRegistry
	Participants *ParticipantManager
	Events       *EventBus
	Moderation   *ModerationPipeline
}

func NewServices(repos *repository.Repositories, cfg *config.Config, transportSvc transport.RoomService, log logger.Logger) *Services {
	sessionLog := NewSessionLog(repos.Logs, log)
	participants := NewParticipantManager(sessionLog, log)
	bus := NewEventBus(sessionLog, log)
	moderation := NewModerationPipeline(participants, bus, sessionLog, log)

	services := &Services{
		SessionLog:   sessionLog,
		Registry:     NewSessionRegistry(transportSvc, cfg.LiveKit, sessionLog, log),
		Participants: participants,
		Events:       bus,
		Moderation:   moderation,
	}

	services.Moderation.SampleInterval = cfg.Moderation.SampleInterval

	// Бан в звонке — бан на всей площадке.
	if repos.Bans != nil {
		participants.OnParticipantBanned(func(session *domain.Session, p *domain.Participant, reason string) {
			marketplaceID := session.Metadata().MarketplaceID
			if err := repos.Bans.Ban(context.Background(), marketplaceID, p.ID, reason); err != nil {
				log.Error("Failed to persist marketplace ban", "user_id", p.ID, "error", err)
			}
		})
	}

	if len(cfg.Moderation.Keywords) > 0 {
		provider, err := NewKeywordProvider("keywords", cfg.Moderation.Keywords, domain.ActionWarning, 0.5)
		if err != nil {
			log.Error("Failed to build keyword provider", "error", err)
		} else if err := moderation.RegisterProvider(provider); err != nil {
			log.Error("Failed to register keyword provider", "error", err)
		} else {
			log.Info("Keyword moderation provider registered", "keywords", len(cfg.Moderation.Keywords))
		}
	}

	return services
}
