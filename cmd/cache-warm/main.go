// Command cache-warm fills the product cache of the configured store from the
// catalog so a storefront started afterwards can serve offline.
package main

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"

	appkg "github.com/xenking/kart-storefront/internal/app"
)

func main() {
	app.Run(func(ctx context.Context, lg *zap.Logger, m *app.Telemetry) error {
		cfg, err := appkg.LoadConfig()
		if err != nil {
			return err
		}
		if cfg.Store.Driver == appkg.DriverMemory {
			return errors.New("warming an in-memory store has no lasting effect, choose a persistent driver")
		}

		svc, err := appkg.NewServices(ctx, lg, m.TracerProvider(), m.MeterProvider(), cfg)
		if err != nil {
			return err
		}
		defer svc.Close()

		if err := svc.Repository.ClearCache(ctx); err != nil {
			return errors.Wrap(err, "clear cache")
		}
		n, err := svc.Repository.Warm(ctx, cfg.Cache.WarmConcurrency)
		if err != nil {
			return errors.Wrap(err, "warm cache")
		}
		lg.Info("Cache warm completed", zap.Int("partitions", n), zap.String("store", cfg.Store.Driver))
		return nil
	})
}
