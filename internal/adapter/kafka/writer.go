package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/trace-alert-service/internal/config"
	"github.com/couchcryptid/trace-alert-service/internal/domain"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher produces Sent dispatch entries and share texts to Kafka.
// It implements domain.DeliverySink and domain.Sharer.
type Publisher struct {
	dispatches messageWriter
	shares     messageWriter
	clock      clockwork.Clock
	logger     *slog.Logger
}

// NewPublisher creates Kafka producers for the dispatch and share topics.
func NewPublisher(cfg *config.Config, clock clockwork.Clock, logger *slog.Logger) *Publisher {
	return &Publisher{
		dispatches: newWriter(cfg.KafkaBrokers, cfg.KafkaDispatchTopic),
		shares:     newWriter(cfg.KafkaBrokers, cfg.KafkaShareTopic),
		clock:      clock,
		logger:     logger,
	}
}

func newWriter(brokers []string, topic string) *kafkago.Writer {
	return &kafkago.Writer{
		Addr:                   kafkago.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafkago.LeastBytes{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
}

// Deliver publishes a Sent dispatch entry keyed by its ID.
func (p *Publisher) Deliver(ctx context.Context, entry domain.DispatchLogEntry) error {
	msg, err := serializeEntry(entry, p.clock.Now())
	if err != nil {
		return err
	}
	if err := p.dispatches.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish dispatch %s: %w", entry.ID, err)
	}
	p.logger.Debug("dispatch delivered", "entry_id", entry.ID, "agent", entry.AgentName)
	return nil
}

// Share publishes a composed share text.
func (p *Publisher) Share(ctx context.Context, text string) error {
	msg, err := serializeShare(uuid.NewString(), text, p.clock.Now())
	if err != nil {
		return err
	}
	if err := p.shares.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish share: %w", err)
	}
	return nil
}

// Close flushes and closes both producers.
func (p *Publisher) Close() error {
	dErr := p.dispatches.Close()
	sErr := p.shares.Close()
	if dErr != nil {
		return dErr
	}
	return sErr
}

type sharePayload struct {
	ID       string    `json:"id"`
	Text     string    `json:"text"`
	SharedAt time.Time `json:"shared_at"`
}

// serializeEntry marshals a dispatch entry into a Kafka message.
func serializeEntry(entry domain.DispatchLogEntry, now time.Time) (kafkago.Message, error) {
	data, err := json.Marshal(entry)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize dispatch entry: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(entry.ID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "agent", Value: []byte(entry.AgentName)},
			{Key: "delivered_at", Value: []byte(now.UTC().Format(time.RFC3339))},
		},
	}, nil
}

func serializeShare(id, text string, now time.Time) (kafkago.Message, error) {
	data, err := json.Marshal(sharePayload{ID: id, Text: text, SharedAt: now.UTC()})
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize share: %w", err)
	}
	return kafkago.Message{Key: []byte(id), Value: data}, nil
}
