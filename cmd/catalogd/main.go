package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"storefront/internal/api"
	"storefront/internal/app"
	"storefront/internal/catalog"
	"storefront/internal/config"
	"storefront/internal/ingest"
	"storefront/internal/metrics"
	"storefront/internal/tracer"
	"storefront/internal/transform"
)

func main() {
	var configDir string
	flag.StringVar(&configDir, "config", ".", "directory holding config.yaml")
	flag.Parse()

	_ = godotenv.Load()
	cfg, err := config.Load(configDir)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := app.Logger(cfg, cfg.Service.Name)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("catalogd failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Tracing.Enabled {
		tp, err := tracer.Init(ctx, cfg.Service.Name, cfg.Service.Env, cfg.Tracing.Endpoint)
		if err != nil {
			return err
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = tp.Shutdown(sctx)
		}()
	}

	store, err := app.OpenStore(cfg.Store)
	if err != nil {
		return err
	}
	defer store.Close()
	indexes, err := cfg.Store.ParseIndexes()
	if err != nil {
		return err
	}
	events, _, err := app.Changelog(cfg)
	if err != nil {
		return err
	}

	reg := metrics.NewRegistry()
	opts := []catalog.Option{
		catalog.WithCollection(cfg.Store.Collection),
		catalog.WithIndexes(indexes...),
		catalog.WithChangelog(events),
		catalog.WithLogger(logger),
		catalog.WithMetrics(reg),
	}
	lc, err := app.ListCache(ctx, cfg)
	if err != nil {
		return err
	}
	var routerOpts []api.RouterOption
	if lc != nil {
		defer lc.Close()
		opts = append(opts, catalog.WithCache(lc))
		routerOpts = append(routerOpts, api.WithCacheStatus(lc))
		logger.Info("list cache enabled", zap.String("redis", cfg.Redis.Address))
	}
	cat := catalog.New(store, opts...)

	tr := transform.New()
	up := ingest.New(store,
		ingest.WithCollection(cfg.Store.Collection),
		ingest.WithTransformer(tr),
		ingest.WithDelay(cfg.Ingest.Delay),
		ingest.WithBatchSize(cfg.Ingest.BatchSize),
		ingest.WithChangelog(events),
		ingest.WithLogger(logger),
		ingest.WithMetrics(reg),
	)

	router := api.NewRouter(cfg.Service.Name, api.NewHandler(cat, up, tr, logger), reg, logger, routerOpts...)
	srv := &http.Server{Addr: cfg.Service.Addr, Handler: router, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("catalogd listening", zap.String("addr", cfg.Service.Addr), zap.String("engine", cfg.Store.Engine))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(sctx)
}
