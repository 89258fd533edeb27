package llm

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestProcess_SequentialKeepsOrder(t *testing.T) {
	pool := NewWorkerPool(DefaultWorkerPoolConfig(), zap.NewNop())

	items := make([]WorkItem[string], 0, 4)
	for _, id := range []string{"a", "b", "c", "d"} {
		items = append(items, WorkItem[string]{ID: id, Execute: func(ctx context.Context) (string, error) {
			return id + "!", nil
		}})
	}

	var order []string
	ran := Process(context.Background(), pool, items, func(r WorkResult[string]) {
		order = append(order, r.Result)
	})

	if ran != 4 {
		t.Fatalf("expected 4 items to run, got %d", ran)
	}
	expected := []string{"a!", "b!", "c!", "d!"}
	for i := range expected {
		if order[i] != expected[i] {
			t.Errorf("position %d: expected %s, got %s", i, expected[i], order[i])
		}
	}
}

func TestProcess_ErrorsDoNotCancelSiblings(t *testing.T) {
	pool := NewWorkerPool(WorkerPoolConfig{MaxConcurrent: 3}, zap.NewNop())
	boom := errors.New("boom")

	items := []WorkItem[int]{
		{ID: "1", Execute: func(ctx context.Context) (int, error) { return 1, nil }},
		{ID: "2", Execute: func(ctx context.Context) (int, error) { return 0, boom }},
		{ID: "3", Execute: func(ctx context.Context) (int, error) {
			time.Sleep(5 * time.Millisecond)
			if ctx.Err() != nil {
				return 0, ctx.Err()
			}
			return 3, nil
		}},
	}

	results := map[string]WorkResult[int]{}
	Process(context.Background(), pool, items, func(r WorkResult[int]) {
		results[r.ID] = r
	})

	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if !errors.Is(results["2"].Err, boom) {
		t.Errorf("expected item 2 to fail with boom, got %v", results["2"].Err)
	}
	if results["3"].Err != nil || results["3"].Result != 3 {
		t.Errorf("expected item 3 to succeed, got %+v", results["3"])
	}
}

func TestProcess_BoundsConcurrency(t *testing.T) {
	pool := NewWorkerPool(WorkerPoolConfig{MaxConcurrent: 50}, zap.NewNop())
	if pool.MaxConcurrent() != MaxWorkerConcurrency {
		t.Fatalf("expected concurrency clamped to %d, got %d", MaxWorkerConcurrency, pool.MaxConcurrent())
	}

	var current, peak int32
	var mu sync.Mutex
	items := make([]WorkItem[struct{}], 20)
	for i := range items {
		items[i] = WorkItem[struct{}]{Execute: func(ctx context.Context) (struct{}, error) {
			n := atomic.AddInt32(&current, 1)
			mu.Lock()
			if n > peak {
				peak = n
			}
			mu.Unlock()
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&current, -1)
			return struct{}{}, nil
		}}
	}

	Process(context.Background(), pool, items, nil)

	if peak > MaxWorkerConcurrency {
		t.Errorf("peak concurrency %d exceeded limit %d", peak, MaxWorkerConcurrency)
	}
}

func TestProcess_CancellationSkipsRemaining(t *testing.T) {
	pool := NewWorkerPool(DefaultWorkerPoolConfig(), zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	items := []WorkItem[int]{
		{ID: "1", Execute: func(ctx context.Context) (int, error) {
			cancel()
			return 1, nil
		}},
		{ID: "2", Execute: func(ctx context.Context) (int, error) { return 2, nil }},
		{ID: "3", Execute: func(ctx context.Context) (int, error) { return 3, nil }},
	}

	var seen []string
	ran := Process(ctx, pool, items, func(r WorkResult[int]) {
		seen = append(seen, r.ID)
	})

	if ran != 1 || len(seen) != 1 || seen[0] != "1" {
		t.Errorf("expected only item 1 to run, got ran=%d seen=%v", ran, seen)
	}
}

func TestProcess_Empty(t *testing.T) {
	pool := NewWorkerPool(WorkerPoolConfig{MaxConcurrent: 0}, zap.NewNop())
	if pool.MaxConcurrent() != 1 {
		t.Errorf("expected concurrency 1, got %d", pool.MaxConcurrent())
	}
	if ran := Process[int](context.Background(), pool, nil, nil); ran != 0 {
		t.Errorf("expected 0, got %d", ran)
	}
}
