package llm

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// MaxWorkerConcurrency is the upper bound on parallel work items.
// Gateways are rate limited; more parallelism only buys throttling.
const MaxWorkerConcurrency = 5

// WorkerPoolConfig configures the worker pool.
type WorkerPoolConfig struct {
	MaxConcurrent int // 1 = sequential, clamped to MaxWorkerConcurrency
}

// DefaultWorkerPoolConfig processes one item at a time.
func DefaultWorkerPoolConfig() WorkerPoolConfig {
	return WorkerPoolConfig{MaxConcurrent: 1}
}

// WorkerPool runs work items with bounded parallelism.
type WorkerPool struct {
	config WorkerPoolConfig
	logger *zap.Logger
}

// NewWorkerPool creates a worker pool.
func NewWorkerPool(config WorkerPoolConfig, logger *zap.Logger) *WorkerPool {
	if config.MaxConcurrent < 1 {
		config.MaxConcurrent = 1
	}
	if config.MaxConcurrent > MaxWorkerConcurrency {
		config.MaxConcurrent = MaxWorkerConcurrency
	}
	return &WorkerPool{
		config: config,
		logger: logger.Named("worker-pool"),
	}
}

// MaxConcurrent returns the effective concurrency.
func (p *WorkerPool) MaxConcurrent() int {
	return p.config.MaxConcurrent
}

// WorkItem is a unit of work.
type WorkItem[T any] struct {
	ID      string
	Execute func(ctx context.Context) (T, error)
}

// WorkResult is the outcome of one work item.
type WorkResult[T any] struct {
	ID     string
	Result T
	Err    error
}

// Process executes items with bounded parallelism and calls onResult for each
// finished item from a single goroutine, in completion order. With
// MaxConcurrent 1 the order is submission order. Item errors never cancel
// siblings. Once ctx is done, items that have not started are skipped.
// Returns the number of items that ran.
func Process[T any](
	ctx context.Context,
	pool *WorkerPool,
	items []WorkItem[T],
	onResult func(WorkResult[T]),
) int {
	if len(items) == 0 {
		return 0
	}

	resultsChan := make(chan WorkResult[T], len(items))

	// Plain Group, not WithContext: a failing item must not cancel its siblings.
	var g errgroup.Group
	g.SetLimit(pool.config.MaxConcurrent)

	go func() {
		for _, item := range items {
			if ctx.Err() != nil {
				break
			}
			g.Go(func() error {
				if ctx.Err() != nil {
					return nil
				}
				result, err := item.Execute(ctx)
				resultsChan <- WorkResult[T]{ID: item.ID, Result: result, Err: err}
				return nil
			})
		}
		_ = g.Wait()
		close(resultsChan)
	}()

	ran := 0
	for result := range resultsChan {
		ran++
		if onResult != nil {
			onResult(result)
		}
	}

	pool.logger.Debug("Worker pool finished",
		zap.Int("submitted", len(items)),
		zap.Int("ran", ran),
		zap.Int("max_concurrent", pool.config.MaxConcurrent))
	return ran
}
