package queue

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/segmentio/kafka-go"

	"traffic-aqi-pipeline/internal/retry"
)

// maxMessageBytes is the payload size bound; larger publishes fail
// permanently instead of being retried.
const maxMessageBytes = 1048576

// ErrMessageTooLarge marks a permanent publish failure: the caller
// should drop the message and log, not retry.
var ErrMessageTooLarge = errors.New("message exceeds size bound")

// Producer wraps a Kafka producer keyed by location.
type Producer struct {
	writer *kafka.Writer
}

// NewProducer creates a new Kafka producer. Messages are partitioned
// by key so per-location ordering is preserved.
func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{}, // Partition by key (location)
			RequiredAcks: kafka.RequireOne,
			Async:        false, // Synchronous for reliability
		},
	}
}

// Publish sends one message keyed by location. Errors other than
// ErrMessageTooLarge are transient and may be retried by the caller.
func (p *Producer) Publish(ctx context.Context, key string, value []byte) error {
	if len(key)+len(value) > maxMessageBytes {
		return fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, len(key)+len(value))
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: value,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		var tooLarge kafka.MessageTooLargeError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("%w: %v", ErrMessageTooLarge, err)
		}
		return fmt.Errorf("failed to write message: %w", err)
	}

	return nil
}

// Close closes the producer.
func (p *Producer) Close() error {
	return p.writer.Close()
}

// Handler processes one consumed record. Returning nil acknowledges
// the record; returning an error leaves it unacknowledged so it is
// retried after a backoff delay.
type Handler func(ctx context.Context, msg kafka.Message) error

// Consumer wraps a Kafka consumer with manual offset commits.
type Consumer struct {
	reader *kafka.Reader
}

// NewConsumer creates a new Kafka consumer in the given group.
func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:        brokers,
			Topic:          topic,
			GroupID:        groupID,
			MinBytes:       1,    // 1 byte
			MaxBytes:       10e6, // 10MB
			CommitInterval: 0,    // Manual commit for at-least-once
			StartOffset:    kafka.LastOffset,
		}),
	}
}

// Consume reads the next message without committing it.
func (c *Consumer) Consume(ctx context.Context) (kafka.Message, error) {
	msg, err := c.reader.FetchMessage(ctx)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to fetch message: %w", err)
	}
	return msg, nil
}

// Commit commits the message offset.
func (c *Consumer) Commit(ctx context.Context, msg kafka.Message) error {
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to commit message: %w", err)
	}
	return nil
}

// Run consumes until ctx is cancelled. Records are handled strictly
// sequentially and committed only after the handler succeeds; a failed
// record is retried in place with backoff rather than skipped, which
// keeps per-partition order and bounds buffering to a single record.
func (c *Consumer) Run(ctx context.Context, handler Handler) error {
	fetchFailures := 0
	for {
		msg, err := c.Consume(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Printf("Consumer fetch error: %v", err)
			if !retry.Sleep(ctx, retry.Backoff(time.Second, fetchFailures)) {
				return nil
			}
			fetchFailures++
			continue
		}
		fetchFailures = 0

		for attempt := 0; ; attempt++ {
			err := handler(ctx, msg)
			if err == nil {
				break
			}
			if ctx.Err() != nil {
				return nil
			}
			log.Printf("Failed to process record (partition=%d, offset=%d): %v",
				msg.Partition, msg.Offset, err)
			if !retry.Sleep(ctx, retry.Backoff(time.Second, attempt)) {
				return nil
			}
		}

		// A failed commit is tolerated: the record is redelivered after
		// a restart and absorbed by the idempotent sinks.
		if err := c.Commit(ctx, msg); err != nil {
			log.Printf("Failed to commit offset (partition=%d, offset=%d): %v",
				msg.Partition, msg.Offset, err)
		}
	}
}

// Close closes the consumer.
func (c *Consumer) Close() error {
	return c.reader.Close()
}

// Stats returns consumer statistics.
func (c *Consumer) Stats() kafka.ReaderStats {
	return c.reader.Stats()
}

// Ping dials the first broker to verify connectivity.
func Ping(ctx context.Context, brokers []string) error {
	if len(brokers) == 0 {
		return fmt.Errorf("no brokers configured")
	}
	conn, err := kafka.DialContext(ctx, "tcp", brokers[0])
	if err != nil {
		return fmt.Errorf("failed to dial broker: %w", err)
	}
	return conn.Close()
}

// CreateTopic creates a Kafka topic with the specified number of partitions.
func CreateTopic(brokers []string, topic string, numPartitions int, replicationFactor int) error {
	conn, err := kafka.Dial("tcp", brokers[0])
	if err != nil {
		return fmt.Errorf("failed to dial broker: %w", err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("failed to get controller: %w", err)
	}

	controllerConn, err := kafka.Dial("tcp", fmt.Sprintf("%s:%d", controller.Host, controller.Port))
	if err != nil {
		return fmt.Errorf("failed to dial controller: %w", err)
	}
	defer controllerConn.Close()

	topicConfigs := []kafka.TopicConfig{
		{
			Topic:             topic,
			NumPartitions:     numPartitions,
			ReplicationFactor: replicationFactor,
		},
	}

	err = controllerConn.CreateTopics(topicConfigs...)
	if err != nil {
		return fmt.Errorf("failed to create topic: %w", err)
	}

	fmt.Printf("Created topic %s with %d partitions\n", topic, numPartitions)
	return nil
}
