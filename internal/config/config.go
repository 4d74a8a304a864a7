// Package config loads service settings. CATALOG_* environment variables
// override config.yaml, which overrides the defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"storefront/internal/docstore"
)

type Config struct {
	Service   ServiceConfig   `mapstructure:"service"`
	Store     StoreConfig     `mapstructure:"store"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Changelog ChangelogConfig `mapstructure:"changelog"`
	Snapshot  SnapshotConfig  `mapstructure:"snapshot"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
	Log       LogConfig       `mapstructure:"log"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
}

type ServiceConfig struct {
	Name string `mapstructure:"name"`
	Addr string `mapstructure:"addr"`
	Env  string `mapstructure:"env"`
}

// StoreConfig selects the document engine: memory, pebble or badger.
type StoreConfig struct {
	Engine     string `mapstructure:"engine"`
	Dir        string `mapstructure:"dir"`
	Collection string `mapstructure:"collection"`
	MaxBatch   int    `mapstructure:"max_batch"`
	// Indexes lists composite indexes as "field+field|orderBy".
	Indexes []string `mapstructure:"indexes"`
}

type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Address  string        `mapstructure:"address"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Prefix   string        `mapstructure:"prefix"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type KafkaConfig struct {
	Bootstrap      string `mapstructure:"bootstrap"`
	ChangelogTopic string `mapstructure:"changelog_topic"`
	ManifestTopic  string `mapstructure:"manifest_topic"`
	RecordsTopic   string `mapstructure:"records_topic"`
	GroupID        string `mapstructure:"group_id"`
}

// ChangelogConfig sink is file, kafka, both or none.
type ChangelogConfig struct {
	Sink string `mapstructure:"sink"`
	Dir  string `mapstructure:"dir"`
	File string `mapstructure:"file"`
}

// SnapshotConfig publish is file, kafka or both.
type SnapshotConfig struct {
	Dir     string `mapstructure:"dir"`
	Publish string `mapstructure:"publish"`
}

type IngestConfig struct {
	Delay     time.Duration `mapstructure:"delay"`
	BatchSize int           `mapstructure:"batch_size"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type TracingConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service.name", "catalogd")
	v.SetDefault("service.addr", ":8080")
	v.SetDefault("service.env", "development")

	v.SetDefault("store.engine", "pebble")
	v.SetDefault("store.dir", "./data/store")
	v.SetDefault("store.collection", "products")
	v.SetDefault("store.max_batch", 500)
	v.SetDefault("store.indexes", []string{"featured|createdAt", "featured|popularity"})

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.prefix", "catalog:list:")
	v.SetDefault("redis.ttl", 5*time.Minute)

	v.SetDefault("kafka.bootstrap", "localhost:9092")
	v.SetDefault("kafka.changelog_topic", "catalog.changelog")
	v.SetDefault("kafka.manifest_topic", "catalog.manifest")
	v.SetDefault("kafka.records_topic", "catalog.raw-records")
	v.SetDefault("kafka.group_id", "catalog-ingest")

	v.SetDefault("changelog.sink", "file")
	v.SetDefault("changelog.dir", "./data/changelog")
	v.SetDefault("changelog.file", "catalog.jsonl")

	v.SetDefault("snapshot.dir", "./data/snapshots")
	v.SetDefault("snapshot.publish", "file")

	v.SetDefault("ingest.delay", 100*time.Millisecond)
	v.SetDefault("ingest.batch_size", 0)

	v.SetDefault("log.level", "info")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "localhost:4318")
}

// Load reads config.yaml from path when present. A missing file is not an
// error; every key has a default.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if path != "" {
		v.AddConfigPath(path)
	}
	v.SetEnvPrefix("CATALOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Store.Engine {
	case "memory", "pebble", "badger":
	default:
		return fmt.Errorf("config: unknown store engine %q", c.Store.Engine)
	}
	switch c.Changelog.Sink {
	case "file", "kafka", "both", "none":
	default:
		return fmt.Errorf("config: unknown changelog sink %q", c.Changelog.Sink)
	}
	switch c.Snapshot.Publish {
	case "file", "kafka", "both":
	default:
		return fmt.Errorf("config: unknown manifest publish target %q", c.Snapshot.Publish)
	}
	if c.Store.MaxBatch <= 0 {
		return fmt.Errorf("config: store.max_batch must be positive")
	}
	_, err := c.Store.ParseIndexes()
	return err
}

// ParseIndexes turns the configured index strings into store indexes.
func (c StoreConfig) ParseIndexes() ([]docstore.Index, error) {
	out := make([]docstore.Index, 0, len(c.Indexes))
	for _, raw := range c.Indexes {
		fields, orderBy, ok := strings.Cut(strings.TrimSpace(raw), "|")
		if !ok || fields == "" || orderBy == "" {
			return nil, fmt.Errorf("config: bad index %q, want field+field|orderBy", raw)
		}
		idx := docstore.Index{OrderBy: strings.TrimSpace(orderBy)}
		for _, f := range strings.Split(fields, "+") {
			if f = strings.TrimSpace(f); f != "" {
				idx.Fields = append(idx.Fields, f)
			}
		}
		out = append(out, idx)
	}
	return out, nil
}
