package store

import (
	"context"
	"fmt"

	"github.com/cicconel11/TeamMeet/internal/config"
	"github.com/cicconel11/TeamMeet/internal/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Store is what a backend must provide: attempt persistence plus the
// organization and event lookups.
type Store interface {
	domain.AttemptStore
	domain.Directory
}

// Open connects the configured backend. Postgres is migrated before use.
func Open(ctx context.Context, cfg *config.Config) (Store, func() error, error) {
	switch cfg.StoreDriver {
	case config.DriverSQLite:
		s, err := NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case config.DriverPostgres:
		s, err := NewPostgresStore(ctx, cfg.DBSource)
		if err != nil {
			return nil, nil, err
		}
		if err := Migrate(s.Db); err != nil {
			s.Close()
			return nil, nil, err
		}
		return s, func() error { s.Close(); return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unsupported store driver %q", cfg.StoreDriver)
	}
}

func provideStore(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) (Store, error) {
	s, closeFn, err := Open(context.Background(), cfg)
	if err != nil {
		return nil, err
	}
	log.Info("store ready", zap.String("driver", cfg.StoreDriver))
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return closeFn()
		},
	})
	return s, nil
}

var Module = fx.Module("store",
	fx.Provide(
		provideStore,
		func(s Store) domain.AttemptStore { return s },
		func(s Store) domain.Directory { return s },
	),
)
