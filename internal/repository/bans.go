package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"market_call/pkg/logger"
)

// BanStore records marketplace-wide bans issued during calls. Consumers of
// the banned notification write through here so enforcement outlives the
// session.
type BanStore interface {
	Ban(ctx context.Context, marketplaceID, userID, reason string) error
	IsBanned(ctx context.Context, marketplaceID, userID string) (bool, error)
}

type redisBanStore struct {
	redis *redis.Client
	log   logger.Logger
}

func NewRedisBanStore(rdb *redis.Client, log logger.Logger) BanStore {
	return &redisBanStore{redis: rdb, log: log}
}

func banKey(marketplaceID, userID string) string {
	return fmt.Sprintf("ban:%s:%s", marketplaceID, userID)
}

func (s *redisBanStore) Ban(ctx context.Context, marketplaceID, userID, reason string) error {
	entry := fmt.Sprintf("%s|%s", time.Now().UTC().Format(time.RFC3339), reason)
	if err := s.redis.Set(ctx, banKey(marketplaceID, userID), entry, 0).Err(); err != nil {
		s.log.Error("Failed to persist ban", "marketplace_id", marketplaceID, "user_id", userID, "error", err)
		return err
	}
	return nil
}

func (s *redisBanStore) IsBanned(ctx context.Context, marketplaceID, userID string) (bool, error) {
	count, err := s.redis.Exists(ctx, banKey(marketplaceID, userID)).Result()
	if err != nil {
		s.log.Error("Failed to check ban", "marketplace_id", marketplaceID, "user_id", userID, "error", err)
		return false, err
	}
	return count > 0, nil
}
