// Package app assembles the components shared by the catalog binaries from
// a loaded configuration.
package app

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"storefront/internal/cache"
	"storefront/internal/changelog"
	"storefront/internal/config"
	"storefront/internal/docstore"
	"storefront/internal/logging"
	"storefront/internal/manifest"
)

// Logger builds the service logger for binary name.
func Logger(cfg *config.Config, name string) (*zap.Logger, error) {
	return logging.New(logging.Config{
		Level:       cfg.Log.Level,
		Environment: cfg.Service.Env,
		ServiceName: name,
	})
}

// OpenStore opens the configured document engine.
func OpenStore(cfg config.StoreConfig) (*docstore.Store, error) {
	var (
		engine docstore.Engine
		err    error
	)
	switch cfg.Engine {
	case "memory":
		engine = docstore.NewMemoryEngine()
	case "pebble":
		engine, err = docstore.NewPebbleEngine(filepath.Join(cfg.Dir, "pebble"))
	case "badger":
		engine, err = docstore.NewBadgerEngine(filepath.Join(cfg.Dir, "badger"))
	default:
		return nil, fmt.Errorf("unknown store engine %q", cfg.Engine)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s engine: %w", cfg.Engine, err)
	}
	return docstore.New(engine, docstore.WithMaxBatchSize(cfg.MaxBatch)), nil
}

// CacheConfig maps the redis section onto the list cache defaults.
func CacheConfig(cfg config.RedisConfig) cache.Config {
	cc := cache.DefaultConfig()
	cc.RedisAddr, cc.Password, cc.DB = cfg.Address, cfg.Password, cfg.DB
	if cfg.Prefix != "" {
		cc.Prefix = cfg.Prefix
	}
	if cfg.TTL > 0 {
		cc.TTL = cfg.TTL
	}
	return cc
}

// ListCache dials the listing cache. It returns nil when redis is disabled.
func ListCache(ctx context.Context, cfg *config.Config) (*cache.ListCache, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	return cache.Dial(ctx, CacheConfig(cfg.Redis))
}

// Changelog builds the configured event sink. The file writer is returned
// separately (nil when the sink has no file) because snapshots read its
// offset. A nil Writer means events are not recorded.
func Changelog(cfg *config.Config) (changelog.Writer, *changelog.FileWriter, error) {
	var (
		fw      *changelog.FileWriter
		writers []changelog.Writer
	)
	sink := cfg.Changelog.Sink
	if sink == "file" || sink == "both" {
		w, err := changelog.NewFileWriter(cfg.Changelog.Dir, cfg.Changelog.File)
		if err != nil {
			return nil, nil, fmt.Errorf("changelog file: %w", err)
		}
		fw = w
		writers = append(writers, w)
	}
	if sink == "kafka" || sink == "both" {
		writers = append(writers, changelog.NewKafkaWriter(cfg.Kafka.Bootstrap, cfg.Kafka.ChangelogTopic))
	}
	switch len(writers) {
	case 0:
		return nil, nil, nil
	case 1:
		return writers[0], fw, nil
	default:
		return changelog.NewMultiWriter(writers...), fw, nil
	}
}

// Manifests returns where snapshots publish the latest manifest and where
// recovery reads it back. With both targets the file copy is read.
func Manifests(cfg *config.Config) (manifest.Publisher, manifest.Reader) {
	file := manifest.NewFilesystemManifest(cfg.Snapshot.Dir)
	kafka := func() *manifest.KafkaManifest {
		return manifest.NewKafkaManifest(changelog.SplitBrokers(cfg.Kafka.Bootstrap), cfg.Kafka.ManifestTopic, manifest.DefaultKey)
	}
	switch cfg.Snapshot.Publish {
	case "kafka":
		k := kafka()
		return k, k
	case "both":
		return manifest.MultiPublisher(file, kafka()), file
	default:
		return file, file
	}
}
