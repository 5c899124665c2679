package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/scribehub/scribe/internal/logger"
	kafka "github.com/segmentio/kafka-go"
)

// Handler processes one task. Returning an error leaves the message
// uncommitted so the broker redelivers it; returning nil commits it.
type Handler func(ctx context.Context, task *ProcessTask) error

// handlerRetryDelay paces in-place retries of a failed task.
const handlerRetryDelay = 5 * time.Second

// messageReader is the subset of kafka.Reader the run loop uses.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads ingestion tasks under a consumer group and dispatches them
// to a handler. Offsets are committed only after the handler succeeds, so a
// crash mid-task redelivers rather than loses work.
type Consumer struct {
	reader     messageReader
	topic      string
	retryDelay time.Duration
}

// NewConsumer builds a group consumer for the given brokers, topic and group.
func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:        brokers,
			Topic:          topic,
			GroupID:        groupID,
			MinBytes:       1,
			MaxBytes:       10 << 20,
			CommitInterval: 0, // synchronous commits
			StartOffset:    kafka.FirstOffset,
			MaxWait:        time.Second,
		}),
		topic:      topic,
		retryDelay: handlerRetryDelay,
	}
}

// Run fetches and dispatches tasks until the context is cancelled. A failed
// task is retried in place: committing any later offset on the partition
// would raise the watermark past the failure and acknowledge it implicitly,
// so the loop never moves on from a message the handler has not completed.
// Only malformed payloads, which can never succeed, are committed and
// skipped.
func (c *Consumer) Run(ctx context.Context, handle Handler) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return fmt.Errorf("failed to fetch message from %s: %w", c.topic, err)
		}

		task, err := UnmarshalTask(msg.Value)
		if err != nil {
			logger.Error("dropping malformed ingestion task",
				logger.KeyTopic, c.topic,
				logger.KeyPartition, msg.Partition,
				logger.KeyError, err)
			if commitErr := c.reader.CommitMessages(ctx, msg); commitErr != nil {
				return fmt.Errorf("failed to commit malformed message: %w", commitErr)
			}
			continue
		}

		for {
			err := handle(ctx, task)
			if err == nil {
				break
			}
			logger.Error("ingestion task failed, retrying in place",
				logger.KeyTopic, c.topic,
				logger.KeyPartition, msg.Partition,
				logger.KeyFileMD5, task.FileMD5,
				logger.KeyError, err)

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.retryDelay):
			}
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			return fmt.Errorf("failed to commit message for %s: %w", task.FileMD5, err)
		}
	}
}

// Close shuts down the underlying reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
