package main

import (
	"fmt"
	"log/slog"

	"github.com/studyhall/attempts/internal/adapters/memory"
	"github.com/studyhall/attempts/internal/adapters/postgres"
	redisadapter "github.com/studyhall/attempts/internal/adapters/redis"
	"github.com/studyhall/attempts/internal/adapters/sqlite"
	"github.com/studyhall/attempts/internal/config"
	"github.com/studyhall/attempts/internal/observability"
	"github.com/studyhall/attempts/pkg/ports"
	"github.com/studyhall/attempts/pkg/session"
)

// buildStore opens the configured durable store.
func buildStore(cfg config.StoreConfig) (ports.AttemptStore, error) {
	switch cfg.Driver {
	case "postgres":
		return postgres.NewStore(cfg.DSN)
	case "sqlite":
		return sqlite.NewStore(cfg.DSN)
	case "memory":
		return memory.NewStore(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// buildManager assembles the session manager with its collaborators.
func buildManager(cfg config.Config, store ports.AttemptStore, metrics *observability.Metrics, logger *slog.Logger) *session.Manager {
	opts := []session.Option{
		session.WithLogger(logger),
		session.WithCacheTTL(cfg.Session.CacheTTL),
		session.WithKeepAliveInterval(cfg.Session.KeepAliveInterval),
	}
	if metrics != nil {
		opts = append(opts, session.WithMetrics(metrics))
	}
	if cfg.Cache.Enabled {
		cache := redisadapter.New(cfg.Cache.Addr, cfg.Cache.Password, cfg.Cache.DB)
		opts = append(opts, session.WithCache(cache))
		logger.Info("Cache enabled", "addr", cfg.Cache.Addr)
	}

	return session.NewManager(store, opts...)
}
