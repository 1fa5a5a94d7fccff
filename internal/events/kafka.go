package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/CosmoTheDev/ctrlnotify/internal/config"
	"github.com/CosmoTheDev/ctrlnotify/models"
)

// Envelope is the JSON shape of an event on the Kafka topic.
type Envelope struct {
	EventType string         `json:"event_type"`
	Data      map[string]any `json:"data"`
	EventID   string         `json:"event_id,omitempty"`
}

// messageReader is the subset of *kafka.Reader the consumer uses.
type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Kafka consumes event envelopes from a topic.
type Kafka struct {
	reader messageReader
	topic  string
}

// NewKafkaReader builds a consumer-group reader for cfg.
func NewKafkaReader(cfg config.KafkaConfig) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  250 * time.Millisecond,
	})
}

// NewKafka returns a consumer for cfg. cfg.Brokers must be non-empty.
func NewKafka(cfg config.KafkaConfig) (*Kafka, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka: no brokers configured")
	}
	return &Kafka{reader: NewKafkaReader(cfg), topic: cfg.Topic}, nil
}

func (k *Kafka) Name() string { return "kafka" }

// Consume reads messages until ctx is cancelled, handing each decoded event to
// handle. Malformed messages are logged and skipped.
func (k *Kafka) Consume(ctx context.Context, handle Handler) error {
	slog.Info("kafka: consumer started", "topic", k.topic)
	for {
		m, err := k.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("%w: kafka read: %v", ErrSource, err)
		}
		evt, err := DecodeMessage(m.Value)
		if err != nil {
			slog.Warn("kafka: bad message", "topic", m.Topic, "partition", m.Partition, "offset", m.Offset, "error", err)
			continue
		}
		handle(ctx, []models.NotificationEvent{evt})
	}
}

// Close releases the reader.
func (k *Kafka) Close() error { return k.reader.Close() }

// DecodeMessage parses one envelope into an event.
func DecodeMessage(value []byte) (models.NotificationEvent, error) {
	var env Envelope
	if err := json.Unmarshal(value, &env); err != nil {
		return models.NotificationEvent{}, fmt.Errorf("decoding envelope: %w", err)
	}
	if env.EventType == "" {
		return models.NotificationEvent{}, fmt.Errorf("envelope has no event_type")
	}
	return models.NewEvent(env.EventType, env.Data, env.EventID, "kafka"), nil
}

// Publisher writes event envelopes to a topic.
type Publisher struct {
	writer *kafka.Writer
}

// NewPublisher returns a publisher for cfg.
func NewPublisher(cfg config.KafkaConfig) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka: no brokers configured")
	}
	return &Publisher{writer: &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 5 * time.Millisecond,
	}}, nil
}

// Publish writes evts keyed by event type.
func (p *Publisher) Publish(ctx context.Context, evts []models.NotificationEvent) error {
	msgs := make([]kafka.Message, 0, len(evts))
	for _, e := range evts {
		b, err := json.Marshal(Envelope{EventType: e.EventType, Data: e.Data, EventID: e.EventID})
		if err != nil {
			return fmt.Errorf("encoding event %s: %w", e.EventID, err)
		}
		msgs = append(msgs, kafka.Message{Key: []byte(e.EventType), Value: b})
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("kafka publish: %w", err)
	}
	return nil
}

func (p *Publisher) Close() error { return p.writer.Close() }
