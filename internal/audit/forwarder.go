package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Producer publishes one committed audit event to an external sink.
type Producer interface {
	Produce(ctx context.Context, event *Event) error
	Close()
}

// Forwarder drains committed audit events from an inbox channel into a
// Producer. The database row written in the mutation's transaction is the
// source of truth; forwarding is best-effort and never blocks the engine.
type Forwarder struct {
	producer Producer
	inbox    chan *Event
	logger   *slog.Logger
}

// NewForwarder builds a forwarder with a bounded inbox. Events offered while
// the inbox is full are dropped and counted against the caller's logs rather
// than stalling a request.
func NewForwarder(producer Producer, buffer int, logger *slog.Logger) *Forwarder {
	if buffer <= 0 {
		buffer = 256
	}
	return &Forwarder{
		producer: producer,
		inbox:    make(chan *Event, buffer),
		logger:   logger,
	}
}

// Offer hands a committed event to the forwarder without blocking.
func (f *Forwarder) Offer(event *Event) {
	select {
	case f.inbox <- event:
	default:
		f.logger.Warn("audit forwarder inbox full, dropping event",
			"action", event.Action,
			"entity_id", event.EntityID,
		)
	}
}

// Run drains the inbox until the context is cancelled.
func (f *Forwarder) Run(ctx context.Context) error {
	defer f.producer.Close()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-f.inbox:
			if err := f.producer.Produce(ctx, event); err != nil {
				f.logger.ErrorContext(ctx, "audit forward failed",
					"action", event.Action,
					"entity_id", event.EntityID,
					"error", err.Error(),
				)
			}
		}
	}
}

// kafkaPayload is the wire shape published to the audit topic.
type kafkaPayload struct {
	At         string          `json:"at"`
	ActorID    *int64          `json:"actor_id"`
	Action     string          `json:"action"`
	EntityType string          `json:"entity_type"`
	EntityID   int64           `json:"entity_id"`
	Old        json.RawMessage `json:"old,omitempty"`
	New        json.RawMessage `json:"new,omitempty"`
}

// KafkaProducer publishes audit events to a Kafka topic keyed by entity id so
// per-exception ordering is preserved within a partition.
type KafkaProducer struct {
	client *kgo.Client
	topic  string
}

// NewKafkaProducer connects to the brokers and makes sure the topic exists.
func NewKafkaProducer(ctx context.Context, brokers []string, topic string) (*KafkaProducer, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	admin := kadm.NewClient(client)
	resp, err := admin.CreateTopic(ctx, 1, 1, nil, topic)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("ensure audit topic: %w", err)
	}
	// kadm reports per-topic errors in the response; an existing topic is fine.
	if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
		client.Close()
		return nil, fmt.Errorf("ensure audit topic %q: %w", topic, resp.Err)
	}

	return &KafkaProducer{client: client, topic: topic}, nil
}

// Produce publishes a single event synchronously.
func (p *KafkaProducer) Produce(ctx context.Context, event *Event) error {
	payload := kafkaPayload{
		At:         event.At.Format(time.RFC3339Nano),
		ActorID:    event.ActorID,
		Action:     event.Action,
		EntityType: event.EntityType,
		EntityID:   event.EntityID,
		Old:        event.Old,
		New:        event.New,
	}
	value, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}
	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(fmt.Sprintf("%s:%d", event.EntityType, event.EntityID)),
		Value: value,
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce audit event: %w", err)
	}
	return nil
}

// Close flushes and releases the Kafka client.
func (p *KafkaProducer) Close() {
	p.client.Close()
}
