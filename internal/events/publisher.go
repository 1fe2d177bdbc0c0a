package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"vantage/internal/config"
	"vantage/internal/models"
)

// Event types
const (
	TypeItemCreated       = "marketplace.item.created"
	TypePurchaseCompleted = "marketplace.purchase.completed"
	TypeScoreCalculated   = "trust.score.calculated"
)

// Publisher emits domain events after the state they describe is committed
type Publisher interface {
	ItemCreated(ctx context.Context, item *models.MarketplaceItem) error
	PurchaseCompleted(ctx context.Context, purchase *models.MarketplacePurchase) error
	ScoreCalculated(ctx context.Context, score *models.TrustScoreHistory) error
	Close() error
}

// Envelope wraps every event payload
type Envelope struct {
	ID         string      `json:"id"`
	Type       string      `json:"type"`
	OccurredAt time.Time   `json:"occurredAt"`
	Data       interface{} `json:"data"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events to one kafka topic per event type
type KafkaPublisher struct {
	writers map[string]messageWriter
	topics  config.KafkaTopicsConfig
	timeout time.Duration
	logger  *zap.Logger
}

// NewKafkaPublisher creates a writer for each configured topic
func NewKafkaPublisher(cfg config.KafkaConfig, logger *zap.Logger) *KafkaPublisher {
	p := &KafkaPublisher{
		writers: make(map[string]messageWriter),
		topics:  cfg.Topics,
		timeout: cfg.WriteTimeout,
		logger:  logger.Named("events"),
	}

	for _, topic := range []string{cfg.Topics.ItemCreated, cfg.Topics.PurchaseCompleted, cfg.Topics.ScoreCalculated} {
		p.writers[topic] = &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			BatchTimeout:           cfg.BatchTimeout,
			WriteTimeout:           cfg.WriteTimeout,
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
		}
	}

	return p
}

// ItemCreated publishes a listing creation keyed by item id
func (p *KafkaPublisher) ItemCreated(ctx context.Context, item *models.MarketplaceItem) error {
	return p.publish(ctx, p.topics.ItemCreated, TypeItemCreated, item.ID, item)
}

// PurchaseCompleted publishes a purchase keyed by item id so an item's sales stay ordered
func (p *KafkaPublisher) PurchaseCompleted(ctx context.Context, purchase *models.MarketplacePurchase) error {
	return p.publish(ctx, p.topics.PurchaseCompleted, TypePurchaseCompleted, purchase.ItemID, purchase)
}

// ScoreCalculated publishes a resolved score keyed by user id
func (p *KafkaPublisher) ScoreCalculated(ctx context.Context, score *models.TrustScoreHistory) error {
	return p.publish(ctx, p.topics.ScoreCalculated, TypeScoreCalculated, score.UserID, score)
}

func (p *KafkaPublisher) publish(ctx context.Context, topic, eventType, key string, data interface{}) error {
	writer, ok := p.writers[topic]
	if !ok {
		return fmt.Errorf("no writer configured for topic: %s", topic)
	}

	envelope := Envelope{
		ID:         uuid.New().String(),
		Type:       eventType,
		OccurredAt: time.Now().UTC(),
		Data:       data,
	}

	value, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to serialize event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: value,
		Time:  envelope.OccurredAt,
		Headers: []kafka.Header{
			{Key: "content-type", Value: []byte("application/json")},
			{Key: "event-type", Value: []byte(eventType)},
			{Key: "source-service", Value: []byte("vantage")},
		},
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	if err := writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("Failed to publish event",
			zap.String("topic", topic),
			zap.String("key", key),
			zap.Error(err))
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Debug("Event published", zap.String("topic", topic), zap.String("key", key))
	return nil
}

// Close flushes and closes every writer
func (p *KafkaPublisher) Close() error {
	var firstErr error
	for topic, w := range p.writers {
		if err := w.Close(); err != nil {
			p.logger.Error("Failed to close kafka writer", zap.String("topic", topic), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// NoopPublisher discards events when kafka is disabled
type NoopPublisher struct{}

func (NoopPublisher) ItemCreated(context.Context, *models.MarketplaceItem) error {
	return nil
}

func (NoopPublisher) PurchaseCompleted(context.Context, *models.MarketplacePurchase) error {
	return nil
}

func (NoopPublisher) ScoreCalculated(context.Context, *models.TrustScoreHistory) error {
	return nil
}

func (NoopPublisher) Close() error {
	return nil
}

// New returns a kafka publisher when enabled, otherwise a no-op
func New(cfg config.KafkaConfig, logger *zap.Logger) Publisher {
	if !cfg.Enabled {
		logger.Info("Kafka disabled, domain events will not be published")
		return NoopPublisher{}
	}
	return NewKafkaPublisher(cfg, logger)
}
