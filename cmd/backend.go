package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadgate/internal/backend"
	"github.com/sells-group/leadgate/internal/config"
	"github.com/sells-group/leadgate/internal/dashboard"
	"github.com/sells-group/leadgate/internal/resilience"
)

// store is what the concrete backends provide: the dashboard contracts
// plus the seeding helpers.
type store interface {
	backend.Backend
	backend.Seeder
}

func openStore(ctx context.Context, sc config.StoreConfig) (store, error) {
	switch sc.Driver {
	case "sqlite":
		dsn := sc.DatabaseURL
		if dsn == "" {
			dsn = "leadgate.db"
		}
		s, err := backend.NewSQLite(dsn)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "postgres":
		p, err := backend.NewPostgres(ctx, sc.DatabaseURL, &backend.PoolConfig{
			MaxConns: sc.MaxConns,
			MinConns: sc.MinConns,
		})
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, eris.Errorf("unsupported store driver: %s", sc.Driver)
	}
}

// initBackend opens the configured store with retried reads.
func initBackend(ctx context.Context) (backend.Backend, error) {
	s, err := openStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	rc := resilience.FromMillis(cfg.Retry.MaxAttempts, cfg.Retry.InitialBackoffMs, cfg.Retry.MaxBackoffMs)
	return backend.WithRetry(s, rc), nil
}

func dashboardConfig(dc config.DashboardConfig) dashboard.Config {
	return dashboard.Config{
		PageSize:        dc.PageSize,
		UnlockTimeout:   dc.UnlockTimeout(),
		SettleDelay:     dc.SettleDelay(),
		NotificationTTL: dc.NotificationTTL(),
		IdleTTL:         dc.IdleTTL(),
	}
}
