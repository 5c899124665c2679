package ingest

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/scribehub/scribe/internal/logger"
	"github.com/scribehub/scribe/pkg/queue"
)

// Pool runs N parallel consumers in one broker consumer group, so each task
// is handled by exactly one worker at a time.
type Pool struct {
	consumers []*queue.Consumer
	worker    *Worker
}

// NewPool builds the worker pool.
func NewPool(brokers []string, topic, groupID string, size int, worker *Worker) *Pool {
	if size <= 0 {
		size = 1
	}
	consumers := make([]*queue.Consumer, size)
	for i := range consumers {
		consumers[i] = queue.NewConsumer(brokers, topic, groupID)
	}
	return &Pool{consumers: consumers, worker: worker}
}

// Run blocks until the context is cancelled or a consumer fails fatally.
func (p *Pool) Run(ctx context.Context) error {
	logger.Info("ingestion pool started", logger.KeyCount, len(p.consumers))

	g, ctx := errgroup.WithContext(ctx)
	for _, c := range p.consumers {
		consumer := c
		g.Go(func() error {
			return consumer.Run(ctx, p.worker.Handle)
		})
	}
	return g.Wait()
}

// Close shuts down all consumers.
func (p *Pool) Close() error {
	var firstErr error
	for _, c := range p.consumers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
