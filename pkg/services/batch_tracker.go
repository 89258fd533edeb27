package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const batchCancelChannel = "crm:batch-cancel"

// BatchTracker registers running batches so they can be cancelled, and keeps
// a second run off a table that is already busy.
type BatchTracker struct {
	mu     sync.Mutex
	runs   map[uuid.UUID]context.CancelFunc
	locker TableLocker
	// rdb is optional; with it Cancel reaches runs on other instances.
	rdb    *redis.Client
	logger *zap.Logger
}

// NewBatchTracker creates a tracker. rdb may be nil.
func NewBatchTracker(locker TableLocker, rdb *redis.Client, logger *zap.Logger) *BatchTracker {
	return &BatchTracker{
		runs:   make(map[uuid.UUID]context.CancelFunc),
		locker: locker,
		rdb:    rdb,
		logger: logger.Named("batch-tracker"),
	}
}

// Begin locks the table and returns a cancellable context for the run. The
// caller must call finish when the run ends. A busy table yields
// apperrors.ErrConflict.
func (t *BatchTracker) Begin(ctx context.Context, tableID uuid.UUID) (context.Context, func(), error) {
	release, err := t.locker.Acquire(ctx, tableID)
	if err != nil {
		return nil, nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	t.mu.Lock()
	t.runs[tableID] = cancel
	t.mu.Unlock()

	t.logger.Debug("Batch started", zap.String("table_id", tableID.String()))

	var once sync.Once
	finish := func() {
		once.Do(func() {
			cancel()
			t.mu.Lock()
			delete(t.runs, tableID)
			t.mu.Unlock()
			release()
			t.logger.Debug("Batch finished", zap.String("table_id", tableID.String()))
		})
	}
	return runCtx, finish, nil
}

// IsRunning reports whether this instance is running a batch on the table.
func (t *BatchTracker) IsRunning(tableID uuid.UUID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.runs[tableID]
	return ok
}

// Cancel stops the table's run. Rows already merged stay merged. Returns true
// if a local run was cancelled; with Redis the request is also broadcast.
func (t *BatchTracker) Cancel(ctx context.Context, tableID uuid.UUID) (bool, error) {
	cancelled := t.cancelLocal(tableID)

	if t.rdb != nil {
		if err := t.rdb.Publish(ctx, batchCancelChannel, tableID.String()).Err(); err != nil {
			return cancelled, fmt.Errorf("broadcast batch cancel: %w", err)
		}
	}
	return cancelled, nil
}

func (t *BatchTracker) cancelLocal(tableID uuid.UUID) bool {
	t.mu.Lock()
	cancel, ok := t.runs[tableID]
	t.mu.Unlock()

	if ok {
		cancel()
		t.logger.Info("Batch cancelled", zap.String("table_id", tableID.String()))
	}
	return ok
}

// StartCancelListener applies cancel requests broadcast by other instances
// until ctx is done. It is a no-op without Redis.
func (t *BatchTracker) StartCancelListener(ctx context.Context) error {
	if t.rdb == nil {
		return nil
	}

	sub := t.rdb.Subscribe(ctx, batchCancelChannel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribe to batch cancel: %w", err)
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok {
					return
				}
				id, err := uuid.Parse(m.Payload)
				if err != nil {
					t.logger.Warn("Bad batch cancel payload", zap.String("payload", m.Payload))
					continue
				}
				t.cancelLocal(id)
			}
		}
	}()
	return nil
}
