// Package manifest publishes and reads the pointer to the latest catalog
// snapshot together with the change-log offset it covers.
package manifest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/segmentio/kafka-go"
)

const (
	FileName   = "manifest.latest.json"
	DefaultKey = "catalog-manifest-latest"
)

var ErrNoManifest = errors.New("no manifest published")

type Manifest struct {
	SnapshotID           string `json:"snapshotId"`
	Collection           string `json:"collection"`
	Documents            int    `json:"documents"`
	LastChangelogOffset  int64  `json:"lastChangelogOffset"`
	CreatedAtEpochSecond int64  `json:"createdAt"`
}

// Age reports how long ago the manifest was published.
func (m Manifest) Age(now time.Time) time.Duration {
	return now.Sub(time.Unix(m.CreatedAtEpochSecond, 0))
}

type Publisher interface {
	PublishLatest(ctx context.Context, m Manifest) error
}

type Reader interface {
	ReadLatest(ctx context.Context) (Manifest, error)
}

type multiPublisher []Publisher

// MultiPublisher writes to every publisher in order, stopping at the first error.
func MultiPublisher(pubs ...Publisher) Publisher {
	return multiPublisher(pubs)
}

func (m multiPublisher) PublishLatest(ctx context.Context, man Manifest) error {
	for _, p := range m {
		if err := p.PublishLatest(ctx, man); err != nil {
			return err
		}
	}
	return nil
}

func stamp(m Manifest) Manifest {
	if m.CreatedAtEpochSecond == 0 {
		m.CreatedAtEpochSecond = time.Now().UTC().Unix()
	}
	return m
}

type FilesystemManifest struct {
	baseDir string
}

func NewFilesystemManifest(baseDir string) *FilesystemManifest {
	return &FilesystemManifest{baseDir: baseDir}
}

func (f *FilesystemManifest) PublishLatest(_ context.Context, m Manifest) error {
	if err := os.MkdirAll(f.baseDir, 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	m = stamp(m)
	b, err := json.MarshalIndent(&m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	// write then rename so readers never see a partial manifest
	tmp := filepath.Join(f.baseDir, FileName+".tmp")
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(f.baseDir, FileName)); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

func (f *FilesystemManifest) ReadLatest(_ context.Context) (Manifest, error) {
	data, err := os.ReadFile(filepath.Join(f.baseDir, FileName))
	if err != nil {
		if os.IsNotExist(err) {
			return Manifest{}, ErrNoManifest
		}
		return Manifest{}, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("unmarshal manifest: %w", err)
	}
	return m, nil
}

// kafkaMessageWriter abstracts kafka.Writer for testability.
type kafkaMessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// kafkaMessageReader abstracts kafka.Reader for testability.
type kafkaMessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// KafkaManifest keeps the manifest as a keyed record on a compacted topic.
type KafkaManifest struct {
	writer    kafkaMessageWriter
	newReader func() kafkaMessageReader
	key       []byte
	readWait  time.Duration
}

func NewKafkaManifest(brokers []string, topic string, key string) *KafkaManifest {
	return &KafkaManifest{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
		},
		newReader: func() kafkaMessageReader {
			return kafka.NewReader(kafka.ReaderConfig{
				Brokers:   brokers,
				Topic:     topic,
				Partition: 0,
				MinBytes:  1,
				MaxBytes:  10e6,
			})
		},
		key:      []byte(key),
		readWait: 10 * time.Second,
	}
}

// NewKafkaManifestWith is only for tests to inject fakes.
func NewKafkaManifestWith(w kafkaMessageWriter, r func() kafkaMessageReader, key string) *KafkaManifest {
	return &KafkaManifest{writer: w, newReader: r, key: []byte(key), readWait: time.Second}
}

func (k *KafkaManifest) PublishLatest(ctx context.Context, m Manifest) error {
	m = stamp(m)
	b, err := json.Marshal(&m)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	return k.writer.WriteMessages(ctx, kafka.Message{Key: k.key, Value: b})
}

// ReadLatest scans the topic from the start and keeps the last record for
// the key. The scan ends when no message arrives within the read window.
func (k *KafkaManifest) ReadLatest(ctx context.Context) (Manifest, error) {
	r := k.newReader()
	defer r.Close()

	var (
		last  Manifest
		found bool
	)
	for {
		rctx, cancel := context.WithTimeout(ctx, k.readWait)
		msg, err := r.ReadMessage(rctx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return Manifest{}, ctx.Err()
			}
			if errors.Is(err, context.DeadlineExceeded) {
				break
			}
			return Manifest{}, fmt.Errorf("read kafka: %w", err)
		}
		if string(msg.Key) != string(k.key) {
			continue
		}
		var m Manifest
		if err := json.Unmarshal(msg.Value, &m); err != nil {
			return Manifest{}, fmt.Errorf("unmarshal kafka manifest: %w", err)
		}
		last, found = m, true
	}
	if !found {
		return Manifest{}, ErrNoManifest
	}
	return last, nil
}
