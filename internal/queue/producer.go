// Package queue provides the Kafka-backed work queue carrying event
// processing tasks from the ingestion path to the worker pool.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"camera-alert-service/internal/models"
)

// writeTimeout is the maximum time to wait for a Kafka write operation.
const writeTimeout = 10 * time.Second

// ParseBrokers splits a comma-separated broker list and trims whitespace.
func ParseBrokers(brokers string) []string {
	if brokers == "" {
		return nil
	}
	list := strings.Split(brokers, ",")
	for i := range list {
		list[i] = strings.TrimSpace(list[i])
	}
	return list
}

// Producer publishes tasks to a topic with at-least-once semantics:
// synchronous writes acknowledged by the partition leader.
type Producer struct {
	writer *kafka.Writer
	topic  string
}

// NewProducer creates a Kafka producer for the given brokers and topic.
func NewProducer(brokers, topic string) (*Producer, error) {
	if brokers == "" {
		return nil, fmt.Errorf("brokers cannot be empty")
	}
	if topic == "" {
		return nil, fmt.Errorf("topic cannot be empty")
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(ParseBrokers(brokers)...),
		Topic:        topic,
		Balancer:     &kafka.Hash{}, // key-based partitioning by event id
		WriteTimeout: writeTimeout,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}

	return &Producer{writer: writer, topic: topic}, nil
}

// Enqueue serializes a task and publishes it, keyed by event id so redelivery
// of one task never runs concurrently with another delivery of the same task.
func (p *Producer) Enqueue(ctx context.Context, task models.Task) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task for event %d: %w", task.EventID, err)
	}

	msg := kafka.Message{
		Key:   []byte(strconv.FormatInt(task.EventID, 10)),
		Value: payload,
		Time:  time.Now(),
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write task for event %d to %s: %w", task.EventID, p.topic, err)
	}
	return nil
}

// Close releases the underlying writer.
func (p *Producer) Close() error {
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close producer for %s: %w", p.topic, err)
	}
	return nil
}
