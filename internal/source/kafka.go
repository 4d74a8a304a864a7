package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	ck "github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.uber.org/zap"

	"storefront/internal/model"
)

// recordConsumer is the part of *ck.Consumer the Kafka source uses.
type recordConsumer interface {
	ReadMessage(timeout time.Duration) (*ck.Message, error)
	Commit() ([]ck.TopicPartition, error)
	Close() error
}

// Kafka drains a raw-record topic. Records arrive one JSON object per
// message; undecodable messages are logged and dropped. Reading stops when
// the topic is idle for Idle or Max records have been read.
type Kafka struct {
	consumer recordConsumer
	Idle     time.Duration
	Max      int
	Log      *zap.Logger
}

// NewKafka subscribes a consumer in groupID to topic. Offsets are committed
// only after the records have been handed to the caller.
func NewKafka(bootstrap, groupID, topic string) (*Kafka, error) {
	c, err := ck.NewConsumer(&ck.ConfigMap{
		"bootstrap.servers":  bootstrap,
		"group.id":           groupID,
		"enable.auto.commit": false,
		"isolation.level":    "read_committed",
		"auto.offset.reset":  "earliest",
	})
	if err != nil {
		return nil, fmt.Errorf("consumer: %w", err)
	}
	if err := c.SubscribeTopics([]string{topic}, nil); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return NewKafkaWith(c), nil
}

func NewKafkaWith(c recordConsumer) *Kafka {
	return &Kafka{consumer: c, Idle: 5 * time.Second, Log: zap.NewNop()}
}

func (k *Kafka) Records(ctx context.Context) ([]model.RawRecord, error) {
	var recs []model.RawRecord
	for k.Max <= 0 || len(recs) < k.Max {
		if err := ctx.Err(); err != nil {
			return recs, err
		}
		msg, err := k.consumer.ReadMessage(k.Idle)
		if err != nil {
			var kerr ck.Error
			if errors.As(err, &kerr) && kerr.Code() == ck.ErrTimedOut {
				break
			}
			return recs, fmt.Errorf("read records: %w", err)
		}
		var rec model.RawRecord
		if err := json.Unmarshal(msg.Value, &rec); err != nil {
			k.Log.Warn("dropping undecodable record", zap.String("key", string(msg.Key)), zap.Error(err))
			continue
		}
		recs = append(recs, rec)
	}
	if len(recs) > 0 {
		if _, err := k.consumer.Commit(); err != nil {
			return recs, fmt.Errorf("commit offsets: %w", err)
		}
	}
	return recs, nil
}

func (k *Kafka) Close() error { return k.consumer.Close() }

// recordProducer is the part of *ck.Producer the publisher uses.
type recordProducer interface {
	Produce(msg *ck.Message, deliveryChan chan ck.Event) error
	Flush(timeoutMs int) int
	Close()
}

// Publisher writes raw records to a topic, keyed by SKU when present.
type Publisher struct {
	producer recordProducer
	topic    string
}

func NewPublisher(bootstrap, topic string) (*Publisher, error) {
	p, err := ck.NewProducer(&ck.ConfigMap{
		"bootstrap.servers":  bootstrap,
		"enable.idempotence": true,
		"acks":               "all",
	})
	if err != nil {
		return nil, fmt.Errorf("producer: %w", err)
	}
	return NewPublisherWith(p, topic), nil
}

func NewPublisherWith(p recordProducer, topic string) *Publisher {
	return &Publisher{producer: p, topic: topic}
}

func (p *Publisher) Publish(rec model.RawRecord) error {
	val, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	msg := &ck.Message{
		TopicPartition: ck.TopicPartition{Topic: &p.topic, Partition: ck.PartitionAny},
		Value:          val,
	}
	if sku := rec.SKU.String(); sku != "" {
		msg.Key = []byte(sku)
	}
	return p.producer.Produce(msg, nil)
}

// Close flushes pending deliveries. It returns the number still undelivered.
func (p *Publisher) Close(timeout time.Duration) int {
	left := p.producer.Flush(int(timeout.Milliseconds()))
	p.producer.Close()
	return left
}
