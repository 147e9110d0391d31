package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/kart-storefront/internal/catalogapi"
	"github.com/xenking/kart-storefront/internal/domain/cart"
	"github.com/xenking/kart-storefront/internal/domain/favorite"
	"github.com/xenking/kart-storefront/internal/handler"
	"github.com/xenking/kart-storefront/internal/imagecache"
	"github.com/xenking/kart-storefront/internal/repository"
	"github.com/xenking/kart-storefront/internal/ttlcache"
	"github.com/xenking/kart-storefront/pkg/health"
	"github.com/xenking/kart-storefront/pkg/httpclient"
	"github.com/xenking/kart-storefront/pkg/httpmiddleware"
)

// Services is the wired object graph. Every component is created once here
// and handed to its consumers.
type Services struct {
	Store      *Store
	Catalog    *catalogapi.Client
	Repository *repository.ProductRepository
	Cart       *cart.Manager
	Favorites  *favorite.Manager
	Images     *imagecache.Cache
}

// Close releases the store.
func (s *Services) Close() {
	s.Store.Close()
}

// NewServices opens the store and builds every component on top of it.
func NewServices(ctx context.Context, lg *zap.Logger, tp trace.TracerProvider, mp metric.MeterProvider, cfg *Config) (*Services, error) {
	store, err := OpenStore(ctx, lg, cfg.Store)
	if err != nil {
		return nil, err
	}

	catalogHTTP := httpclient.DefaultConfig()
	catalogHTTP.Timeout = cfg.Catalog.ResourceTimeout
	catalogHTTP.WaitForConnectivity = cfg.Catalog.WaitForConnectivity
	catalogHTTP.TracerProvider = tp
	catalogHTTP.MeterProvider = mp

	catalog, err := catalogapi.New(httpclient.New(catalogHTTP), catalogapi.Config{
		BaseURL:        cfg.Catalog.BaseURL,
		RequestTimeout: cfg.Catalog.RequestTimeout,
		MaxAttempts:    cfg.Catalog.MaxAttempts,
		BaseDelay:      cfg.Catalog.BaseDelay,
	},
		catalogapi.WithLogger(lg.Named("catalog")),
		catalogapi.WithTracerProvider(tp),
		catalogapi.WithMeterProvider(mp),
	)
	if err != nil {
		store.Close()
		return nil, errors.Wrap(err, "create catalog client")
	}

	cache := repository.NewKVCache(store, cfg.Cache.TTL, ttlcache.WithLogger(lg.Named("cache")))
	repo, err := repository.NewProductRepository(catalog, cache,
		repository.WithLogger(lg.Named("repository")),
		repository.WithMeterProvider(mp),
	)
	if err != nil {
		store.Close()
		return nil, errors.Wrap(err, "create product repository")
	}

	imageHTTP := httpclient.DefaultConfig()
	imageHTTP.Timeout = cfg.Images.FetchTimeout
	imageHTTP.WaitForConnectivity = false
	imageHTTP.TracerProvider = tp
	imageHTTP.MeterProvider = mp

	images, err := imagecache.New(
		imagecache.NewHTTPFetcher(httpclient.New(imageHTTP), cfg.Images.MaxSize),
		imagecache.Config{
			MaxEntries:   cfg.Images.MaxEntries,
			MaxCost:      cfg.Images.MaxCost,
			MaxDecode:    cfg.Images.MaxDecode,
			FetchTimeout: cfg.Images.FetchTimeout,
		},
		imagecache.WithLogger(lg.Named("images")),
		imagecache.WithMeterProvider(mp),
	)
	if err != nil {
		store.Close()
		return nil, errors.Wrap(err, "create image cache")
	}

	return &Services{
		Store:      store,
		Catalog:    catalog,
		Repository: repo,
		Cart:       cart.NewManager(store, lg),
		Favorites:  favorite.NewManager(store, lg),
		Images:     images,
	}, nil
}

// newMux registers the health endpoints and the API routes.
func newMux(svc *Services, healthSvc *health.Health, cfg *Config) (*http.ServeMux, *handler.Handler) {
	h := handler.New(handler.Config{ImageMaxAge: cfg.Cache.TTL},
		svc.Repository, svc.Cart, svc.Favorites, svc.Images,
	)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("GET /readyz", healthSvc.ReadyEndpoint)
	h.Register(mux)
	return mux, h
}

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("store", cfg.Store.Driver),
		zap.String("catalog", cfg.Catalog.BaseURL),
	)

	svc, err := NewServices(ctx, lg, m.TracerProvider(), m.MeterProvider(), cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	if cfg.Cache.WarmOnStart {
		if _, err := svc.Repository.Warm(ctx, cfg.Cache.WarmConcurrency); err != nil {
			lg.Warn("Cache warm-up failed, starting with a partial cache", zap.Error(err))
		}
	}

	// Health check service. The catalog check only degrades readiness: the
	// repository keeps serving cached data while the catalog is down.
	healthSvc := health.New(lg.Named("health"))
	if svc.Store.Pinger != nil {
		healthSvc.AddReadinessCheck("store", 5*time.Second, health.PingCheck(svc.Store.Pinger))
	}
	healthSvc.AddReadinessCheck("catalog", 10*time.Second, health.PingCheck(svc.Catalog), health.Degraded())
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.AddLivenessCheck("gc", time.Second, health.GCMaxPauseCheck(time.Second))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	mux, h := newMux(svc, healthSvc, cfg)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: otelhttp.NewHandler(
			httpmiddleware.Wrap(mux,
				httpmiddleware.InjectLogger(zctx.From(ctx)),
				httpmiddleware.RequestID(),
				httpmiddleware.LogRequests("/livez", "/readyz"),
				httpmiddleware.Recovery(),
			),
			"storefront",
			otelhttp.WithTracerProvider(m.TracerProvider()),
			otelhttp.WithMeterProvider(m.MeterProvider()),
		),
	}
	server.RegisterOnShutdown(h.Close)

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		svc.Images.CancelAll()
		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}
