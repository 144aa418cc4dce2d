package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kodexArg/dj-indoor-monitor/internal/models"
	"github.com/segmentio/kafka-go"
)

// Producer wraps a Kafka producer
type Producer struct {
	writer *kafka.Writer
}

// NewProducer creates a new Kafka producer
func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{}, // Partition by key (sensor)
			RequiredAcks: kafka.RequireOne,
			Async:        false,
		},
	}
}

// Publish sends a message to Kafka
func (p *Producer) Publish(ctx context.Context, key string, value []byte) error {
	msg := kafka.Message{
		Key:   []byte(key),
		Value: value,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}

	return nil
}

// PublishReadings sends one message per sensor, keyed by sensor so a
// sensor's readings stay ordered within a partition
func (p *Producer) PublishReadings(ctx context.Context, readings []models.Reading) error {
	bySensor := make(map[string][]models.Reading)
	var order []string
	for _, r := range readings {
		if _, ok := bySensor[r.Sensor]; !ok {
			order = append(order, r.Sensor)
		}
		bySensor[r.Sensor] = append(bySensor[r.Sensor], r)
	}

	messages := make([]kafka.Message, 0, len(order))
	for _, sensor := range order {
		value, err := json.Marshal(bySensor[sensor])
		if err != nil {
			return fmt.Errorf("failed to encode readings of %s: %w", sensor, err)
		}
		messages = append(messages, kafka.Message{Key: []byte(sensor), Value: value})
	}
	return p.PublishBatch(ctx, messages)
}

// PublishBatch sends multiple messages to Kafka
func (p *Producer) PublishBatch(ctx context.Context, messages []kafka.Message) error {
	if err := p.writer.WriteMessages(ctx, messages...); err != nil {
		return fmt.Errorf("failed to write batch: %w", err)
	}
	return nil
}

// Close closes the producer
func (p *Producer) Close() error {
	return p.writer.Close()
}

// Consumer wraps a Kafka consumer
type Consumer struct {
	reader *kafka.Reader
}

// NewConsumer creates a new Kafka consumer
func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:        brokers,
			Topic:          topic,
			GroupID:        groupID,
			MinBytes:       1,
			MaxBytes:       10e6, // 10MB
			CommitInterval: 0,    // Manual commit after the store write
			StartOffset:    kafka.LastOffset,
		}),
	}
}

// Consume reads the next message without committing it
func (c *Consumer) Consume(ctx context.Context) (kafka.Message, error) {
	msg, err := c.reader.FetchMessage(ctx)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to fetch message: %w", err)
	}
	return msg, nil
}

// Commit commits the message offset
func (c *Consumer) Commit(ctx context.Context, msg kafka.Message) error {
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to commit message: %w", err)
	}
	return nil
}

// Close closes the consumer
func (c *Consumer) Close() error {
	return c.reader.Close()
}

// Stats returns consumer statistics
func (c *Consumer) Stats() kafka.ReaderStats {
	return c.reader.Stats()
}
