package app

import (
	"context"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/kart-storefront/internal/kv"
	"github.com/xenking/kart-storefront/internal/storage/postgres"
	"github.com/xenking/kart-storefront/internal/storage/redis"
	"github.com/xenking/kart-storefront/internal/storage/sqlite"
	"github.com/xenking/kart-storefront/pkg/health"
)

// Store is the opened key-value backend.
type Store struct {
	kv.Store
	// Pinger is nil for backends without a remote connection.
	Pinger health.Pinger
	close  func()
}

// Close releases the backend connection.
func (s *Store) Close() {
	if s.close != nil {
		s.close()
	}
}

// OpenStore connects the backend selected by cfg.Driver.
func OpenStore(ctx context.Context, lg *zap.Logger, cfg StoreConfig) (*Store, error) {
	lg = lg.With(zap.String("driver", cfg.Driver))

	switch cfg.Driver {
	case DriverMemory:
		lg.Warn("Using in-memory store, cart and favorites will not survive restarts")
		return &Store{Store: kv.NewMemoryStore()}, nil

	case DriverSQLite:
		s, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, errors.Wrap(err, "open sqlite")
		}
		lg.Info("Store opened", zap.String("path", cfg.SQLitePath))
		return &Store{Store: s, Pinger: s, close: func() {
			if err := s.Close(); err != nil {
				lg.Error("Close store", zap.Error(err))
			}
		}}, nil

	case DriverPostgres:
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, errors.Wrap(err, "create db pool")
		}
		if err := postgres.RunMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, errors.Wrap(err, "run migrations")
		}
		s := postgres.NewStore(pool)
		lg.Info("Store opened")
		return &Store{Store: s, Pinger: s, close: pool.Close}, nil

	case DriverRedis:
		s, err := redis.Open(ctx, cfg.RedisURL)
		if err != nil {
			return nil, errors.Wrap(err, "open redis")
		}
		lg.Info("Store opened")
		return &Store{Store: s, Pinger: s, close: func() {
			if err := s.Close(); err != nil {
				lg.Error("Close store", zap.Error(err))
			}
		}}, nil
	}
	return nil, errors.Errorf("unknown store driver %q", cfg.Driver)
}
