package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"storefront/internal/app"
	"storefront/internal/changelog"
	"storefront/internal/config"
	"storefront/internal/docstore"
	"storefront/internal/metrics"
	"storefront/internal/restore"
	"storefront/internal/snapshot"
)

func main() {
	var (
		configDir       string
		changelogSource string
		httpAddr        string
		poll            time.Duration
	)
	flag.StringVar(&configDir, "config", ".", "directory holding config.yaml")
	flag.StringVar(&changelogSource, "changelog-source", "file", "file|kafka")
	flag.StringVar(&httpAddr, "http", "", "listen address for /metrics (empty = off)")
	flag.DurationVar(&poll, "poll", 0, "rehearse recovery into memory every poll (0 = restore once into the configured store)")
	flag.Parse()

	_ = godotenv.Load()
	cfg, err := config.Load(configDir)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := app.Logger(cfg, "recover")
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	mreg := metrics.NewRegistry()
	if httpAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", mreg.Handler())
			_ = http.ListenAndServe(httpAddr, mux)
		}()
	}

	if poll <= 0 {
		store, err := app.OpenStore(cfg.Store)
		if err != nil {
			logger.Fatal("open store", zap.Error(err))
		}
		defer store.Close()
		if err := recoverOnce(context.Background(), cfg, store, changelogSource, mreg, logger); err != nil {
			logger.Fatal("recovery failed", zap.Error(err))
		}
		return
	}

	// rehearsal: each cycle restores into a fresh in-memory store
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		store := docstore.New(docstore.NewMemoryEngine(), docstore.WithMaxBatchSize(cfg.Store.MaxBatch))
		if err := recoverOnce(context.Background(), cfg, store, changelogSource, mreg, logger); err != nil {
			logger.Error("recovery cycle failed", zap.Error(err))
		}
		<-ticker.C
	}
}

func recoverOnce(ctx context.Context, cfg *config.Config, store *docstore.Store, changelogSource string,
	mreg *metrics.Registry, logger *zap.Logger) error {
	start := time.Now()
	_, mReader := app.Manifests(cfg)
	r := restore.NewRestorer(store, mReader, snapshot.NewFilesystemSnapshotter(cfg.Snapshot.Dir),
		restore.WithCollection(cfg.Store.Collection),
		restore.WithLogger(logger),
		restore.WithMetrics(mreg),
	)

	m, err := mReader.ReadLatest(ctx)
	if err != nil {
		return fmt.Errorf("read manifest: %w", err)
	}
	docs, err := r.RestoreFromSnapshot(ctx, m.SnapshotID)
	if err != nil {
		return err
	}

	var res restore.Result
	switch changelogSource {
	case "file":
		res, err = r.ReplayFile(ctx, filepath.Join(cfg.Changelog.Dir, cfg.Changelog.File), m.LastChangelogOffset)
		if err != nil {
			return err
		}
	case "kafka":
		res, err = r.ReplayKafka(ctx, changelog.SplitBrokers(cfg.Kafka.Bootstrap), cfg.Kafka.ChangelogTopic, m.LastChangelogOffset)
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown changelog source %q", changelogSource)
	}
	r.Observe(m, docs, start)

	logger.Info("recovery cycle",
		zap.String("snapshot", m.SnapshotID),
		zap.Int("documents", docs),
		zap.Int("applied", res.Applied),
		zap.Int("skipped", res.Skipped),
		zap.Int64("last_offset", res.LastOffset),
		zap.Duration("ttr", time.Since(start)),
	)
	return nil
}
