package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"storefront/internal/app"
	"storefront/internal/config"
	"storefront/internal/ingest"
	"storefront/internal/source"
)

type flags struct {
	configDir string
	file      string
	url       string
	kafka     bool
	sample    bool
	batched   bool
	max       int
}

func main() {
	var f flags
	flag.StringVar(&f.configDir, "config", ".", "directory holding config.yaml")
	flag.StringVar(&f.file, "file", "", "read records from a JSON array or JSON-lines file")
	flag.StringVar(&f.url, "url", "", "fetch records from a URL serving JSON")
	flag.BoolVar(&f.kafka, "kafka", false, "drain the raw-records topic")
	flag.BoolVar(&f.sample, "sample", false, "load the built-in sample catalog")
	flag.BoolVar(&f.batched, "batched", false, "group writes into atomic batch commits")
	flag.IntVar(&f.max, "max", 0, "stop the kafka source after this many records (0 = until idle)")
	flag.Parse()

	_ = godotenv.Load()
	cfg, err := config.Load(f.configDir)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := app.Logger(cfg, "ingest")
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, f, logger); err != nil {
		logger.Fatal("ingest failed", zap.Error(err))
	}
}

func pickSource(cfg *config.Config, f flags, logger *zap.Logger) (source.Source, func(), error) {
	noop := func() {}
	switch {
	case f.file != "":
		return source.File{Path: f.file}, noop, nil
	case f.url != "":
		return source.HTTP{URL: f.url}, noop, nil
	case f.kafka:
		k, err := source.NewKafka(cfg.Kafka.Bootstrap, cfg.Kafka.GroupID, cfg.Kafka.RecordsTopic)
		if err != nil {
			return nil, noop, err
		}
		k.Max = f.max
		k.Log = logger
		return k, func() { _ = k.Close() }, nil
	case f.sample:
		return source.Sample(), noop, nil
	}
	return nil, noop, errors.New("one of -file, -url, -kafka or -sample is required")
}

func run(cfg *config.Config, f flags, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	src, closeSrc, err := pickSource(cfg, f, logger)
	if err != nil {
		return err
	}
	defer closeSrc()
	records, err := src.Records(ctx)
	if err != nil {
		return fmt.Errorf("read records: %w", err)
	}

	store, err := app.OpenStore(cfg.Store)
	if err != nil {
		return err
	}
	defer store.Close()
	events, _, err := app.Changelog(cfg)
	if err != nil {
		return err
	}

	up := ingest.New(store,
		ingest.WithCollection(cfg.Store.Collection),
		ingest.WithDelay(cfg.Ingest.Delay),
		ingest.WithBatchSize(cfg.Ingest.BatchSize),
		ingest.WithChangelog(events),
		ingest.WithLogger(logger),
	)
	progress := func(p ingest.Progress) {
		fmt.Fprintf(os.Stderr, "\r[%d/%d] uploaded=%d skipped=%d errors=%d  %-40.40s",
			p.Uploaded+p.Skipped+p.Errors, p.Total, p.Uploaded, p.Skipped, p.Errors, p.Current)
	}
	upload := up.Upload
	if f.batched {
		upload = up.UploadBatched
	}
	sum, err := upload(ctx, records, progress)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return err
	}

	for _, r := range sum.Results {
		if !r.Success && !r.Skipped {
			logger.Warn("record failed", zap.String("name", r.Name), zap.String("sku", r.SKU), zap.String("error", r.Error))
		}
	}
	logger.Info("ingest finished",
		zap.Int("total", sum.Total),
		zap.Int("uploaded", sum.Uploaded),
		zap.Int("skipped", sum.Skipped),
		zap.Int("errors", sum.Errors),
	)
	if sum.Uploaded > 0 {
		invalidateListings(ctx, cfg, logger)
	}
	if sum.Errors > 0 {
		return fmt.Errorf("%d of %d records failed", sum.Errors, sum.Total)
	}
	return nil
}

// invalidateListings drops listing pages a running catalogd cached before
// this run wrote to the collection.
func invalidateListings(ctx context.Context, cfg *config.Config, logger *zap.Logger) {
	lc, err := app.ListCache(ctx, cfg)
	if err != nil {
		logger.Warn("list cache unavailable, listings stay cached until ttl", zap.Error(err))
		return
	}
	if lc == nil {
		return
	}
	defer lc.Close()
	if err := lc.Invalidate(ctx); err != nil {
		logger.Warn("list cache invalidation failed", zap.Error(err))
		return
	}
	logger.Info("list cache invalidated", zap.Uint64("invalidations", lc.GetStats().Invalidations))
}
