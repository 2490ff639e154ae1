package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"camera-alert-service/internal/models"
)

// ErrBadTask marks a fetched message whose payload could not be decoded.
// The message accompanying the error is still valid and can be committed to
// skip the poison payload.
var ErrBadTask = errors.New("malformed task payload")

// Consumer reads tasks from the work topic as part of a consumer group.
// Offsets are committed explicitly so a task is only acknowledged once its
// processing has completed; an uncommitted task is redelivered after a crash.
type Consumer struct {
	reader *kafka.Reader
	topic  string
}

// NewConsumer creates a Kafka consumer for the given brokers, topic, and
// consumer group.
func NewConsumer(brokers, topic, groupID string) (*Consumer, error) {
	if brokers == "" {
		return nil, fmt.Errorf("brokers cannot be empty")
	}
	if topic == "" {
		return nil, fmt.Errorf("topic cannot be empty")
	}
	if groupID == "" {
		return nil, fmt.Errorf("groupID cannot be empty")
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     ParseBrokers(brokers),
		Topic:       topic,
		GroupID:     groupID,
		MinBytes:    1,
		MaxBytes:    10e6, // 10MB
		MaxWait:     500 * time.Millisecond,
		StartOffset: kafka.FirstOffset, // read everything when no committed offset exists
	})

	return &Consumer{reader: reader, topic: topic}, nil
}

// Fetch blocks for the next task. The returned message must be passed to
// Commit once the task has been fully processed.
func (c *Consumer) Fetch(ctx context.Context) (models.Task, kafka.Message, error) {
	msg, err := c.reader.FetchMessage(ctx)
	if err != nil {
		return models.Task{}, kafka.Message{}, fmt.Errorf("failed to fetch task from %s: %w", c.topic, err)
	}

	var task models.Task
	if err := json.Unmarshal(msg.Value, &task); err != nil {
		return models.Task{}, msg, fmt.Errorf("%w: %v", ErrBadTask, err)
	}
	return task, msg, nil
}

// Commit acknowledges a processed task.
func (c *Consumer) Commit(ctx context.Context, msg kafka.Message) error {
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to commit task offset: %w", err)
	}
	return nil
}

// Close releases the underlying reader.
func (c *Consumer) Close() error {
	if err := c.reader.Close(); err != nil {
		return fmt.Errorf("failed to close consumer for %s: %w", c.topic, err)
	}
	return nil
}
