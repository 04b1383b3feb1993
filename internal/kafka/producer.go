package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/quantrail/price-sync/internal/models"
)

// Producer handles publishing sync lifecycle events to Kafka
type Producer struct {
	writer *kafka.Writer
	topic  string
}

// NewProducer creates a new Kafka producer
func NewProducer(brokers []string, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
	}

	return &Producer{
		writer: writer,
		topic:  topic,
	}
}

// PublishSyncCompleted publishes the outcome of one symbol sync
func (p *Producer) PublishSyncCompleted(ctx context.Context, result *models.SyncResult) error {
	event := models.SyncEvent{
		EventType: "SYNC_COMPLETED",
		Symbol:    result.Symbol,
		Result:    result,
		Timestamp: time.Now(),
	}
	return p.publish(ctx, result.Symbol, event)
}

// PublishSymbolDeleted publishes a symbol deletion event
func (p *Producer) PublishSymbolDeleted(ctx context.Context, symbol string) error {
	event := models.SyncEvent{
		EventType: "SYMBOL_DELETED",
		Symbol:    symbol,
		Timestamp: time.Now(),
	}
	return p.publish(ctx, symbol, event)
}

// PublishMappingsRefreshed publishes a mapping refresh event carrying
// the refreshed mapping count
func (p *Producer) PublishMappingsRefreshed(ctx context.Context, count int) error {
	event := models.SyncEvent{
		EventType: "MAPPINGS_REFRESHED",
		Count:     count,
		Timestamp: time.Now(),
	}
	return p.publish(ctx, "mappings", event)
}

func (p *Producer) publish(ctx context.Context, key string, event models.SyncEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: data,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message to kafka: %w", err)
	}

	return nil
}

// Close closes the Kafka producer
func (p *Producer) Close() error {
	return p.writer.Close()
}
