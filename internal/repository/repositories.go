package repository

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"market_call/pkg/logger"
)

type Repositories struct {
	Logs LogBackend
	Bans BanStore
}

// NewRepositories wires the storage backends. Postgres and Redis are both
// optional: without a database the log backend falls back to the in-memory
// ring, without Redis bans are not persisted.
func NewRepositories(db *pgxpool.Pool, rdb *redis.Client, log logger.Logger) *Repositories {
	repos := &Repositories{}

	if db != nil {
		repos.Logs = NewPostgresLogBackend(db, log)
		log.Info("Session log backend: postgres")
	} else {
		repos.Logs = NewMemoryLogBackend(0)
		log.Warn("Session log backend: in-memory ring buffer")
	}

	if rdb != nil {
		repos.Bans = NewRedisBanStore(rdb, log)
		log.Info("Ban store initialized")
	} else {
		log.Warn("Redis not configured, bans will not be persisted")
	}

	return repos
}
