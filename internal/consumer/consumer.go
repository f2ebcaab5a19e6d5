// Package consumer provides Kafka consumer functionality for the
// alerts.raw occurrence topic.
package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/WilBtc/InsaAutomationCorp-sub010/internal/events"
	kafkautil "github.com/WilBtc/InsaAutomationCorp-sub010/pkg/kafka"
)

// Consumer wraps a Kafka reader and provides a simple interface for
// consuming raw occurrences with at-least-once semantics.
type Consumer struct {
	reader *kafka.Reader
	topic  string
}

// NewConsumer creates a new Kafka consumer with the specified brokers,
// topic, and group ID.
func NewConsumer(brokers, topic, groupID string) (*Consumer, error) {
	if err := kafkautil.ValidateConsumerParams(brokers, topic, groupID); err != nil {
		return nil, err
	}

	brokerList := kafkautil.ParseBrokers(brokers)

	slog.Info("Initializing Kafka consumer",
		"brokers", brokerList,
		"topic", topic,
		"group_id", groupID,
	)

	reader := kafka.NewReader(kafkautil.NewReaderConfig(brokerList, topic, groupID))
	kafkautil.LogReaderConfig()

	return &Consumer{
		reader: reader,
		topic:  topic,
	}, nil
}

// ReadMessage reads the next message from Kafka and deserializes it as a
// RawOccurrence. The raw message is returned for offset tracking; commit
// it only after the occurrence has been fully processed.
func (c *Consumer) ReadMessage(ctx context.Context) (*events.RawOccurrence, *kafka.Message, error) {
	msg, err := c.reader.FetchMessage(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read message from Kafka: %w", err)
	}

	var occ events.RawOccurrence
	if err := json.Unmarshal(msg.Value, &occ); err != nil {
		return nil, &msg, fmt.Errorf("failed to unmarshal raw occurrence: %w", err)
	}
	if err := occ.Validate(); err != nil {
		return nil, &msg, fmt.Errorf("invalid raw occurrence: %w", err)
	}

	return &occ, &msg, nil
}

// CommitMessage commits the offset for the given message.
func (c *Consumer) CommitMessage(ctx context.Context, msg *kafka.Message) error {
	if err := c.reader.CommitMessages(ctx, *msg); err != nil {
		return fmt.Errorf("failed to commit offset: %w", err)
	}
	return nil
}

// Close closes the reader and releases resources.
func (c *Consumer) Close() error {
	slog.Info("Closing Kafka consumer", "topic", c.topic)
	return c.reader.Close()
}
