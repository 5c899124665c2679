package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/scribehub/scribe/internal/logger"
	kafka "github.com/segmentio/kafka-go"
)

// Producer publishes ingestion tasks to one topic.
type Producer struct {
	writer *kafka.Writer
	topic  string
}

// NewProducer builds a producer for the given brokers and topic.
func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			BatchTimeout: 10 * time.Millisecond,
		},
		topic: topic,
	}
}

// Enqueue publishes one task, keyed by file fingerprint so retries of the
// same file land on the same partition.
func (p *Producer) Enqueue(ctx context.Context, task *ProcessTask) error {
	payload, err := task.Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal task for %s: %w", task.FileMD5, err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(task.FileMD5),
		Value: payload,
	})
	if err != nil {
		return fmt.Errorf("failed to enqueue task for %s: %w", task.FileMD5, err)
	}

	logger.InfoCtx(ctx, "ingestion task enqueued",
		logger.KeyTopic, p.topic,
		logger.KeyFileMD5, task.FileMD5,
		logger.KeyFileName, task.FileName)
	return nil
}

// Close flushes and closes the underlying writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}
