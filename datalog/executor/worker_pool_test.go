package executor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestWorkerPool_AllTasksRun(t *testing.T) {
	pool := NewWorkerPool(4)

	results := make([]int, 100)
	err := pool.Execute(context.Background(), len(results), func(ctx context.Context, i int) error {
		results[i] = i * 2
		return nil
	})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	for i, result := range results {
		if result != i*2 {
			t.Errorf("Result %d: expected %d, got %d", i, i*2, result)
		}
	}
}

func TestWorkerPool_ErrorHandling(t *testing.T) {
	for _, workers := range []int{1, 4} {
		pool := NewWorkerPool(workers)
		boom := errors.New("intentional error")

		err := pool.Execute(context.Background(), 10, func(ctx context.Context, i int) error {
			if i == 5 {
				return boom
			}
			return nil
		})

		if !errors.Is(err, boom) {
			t.Fatalf("workers=%d: expected wrapped intentional error, got %v", workers, err)
		}
		if err.Error() != "task 5: intentional error" {
			t.Errorf("workers=%d: unexpected error message: %v", workers, err)
		}
	}
}

func TestWorkerPool_EmptyInput(t *testing.T) {
	pool := NewWorkerPool(4)

	called := false
	err := pool.Execute(context.Background(), 0, func(ctx context.Context, i int) error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("Expected no error for empty input, got %v", err)
	}
	if called {
		t.Error("task called for empty input")
	}
}

func TestWorkerPool_WorkerCount(t *testing.T) {
	tests := []struct {
		name          string
		workerCount   int
		expectedCount int
	}{
		{
			name:          "explicit_count",
			workerCount:   8,
			expectedCount: 8,
		},
		{
			name:          "zero_is_sequential",
			workerCount:   0,
			expectedCount: 1,
		},
		{
			name:          "negative_is_sequential",
			workerCount:   -5,
			expectedCount: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool := NewWorkerPool(tt.workerCount)
			if pool.WorkerCount() != tt.expectedCount {
				t.Errorf("Expected %d workers, got %d", tt.expectedCount, pool.WorkerCount())
			}
		})
	}
}

func TestWorkerPool_ConcurrentExecution(t *testing.T) {
	pool := NewWorkerPool(8)

	var maxConcurrent int32
	var currentConcurrent int32

	err := pool.Execute(context.Background(), 20, func(ctx context.Context, i int) error {
		current := atomic.AddInt32(&currentConcurrent, 1)
		for {
			max := atomic.LoadInt32(&maxConcurrent)
			if current <= max || atomic.CompareAndSwapInt32(&maxConcurrent, max, current) {
				break
			}
		}

		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&currentConcurrent, -1)
		return nil
	})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	max := atomic.LoadInt32(&maxConcurrent)
	if max < 2 {
		t.Errorf("Expected concurrent execution (max >= 2), got max = %d", max)
	}
	if max > 8 {
		t.Errorf("Expected at most 8 concurrent tasks, got %d", max)
	}
}

func TestWorkerPool_ContextCancellation(t *testing.T) {
	for _, workers := range []int{1, 4} {
		pool := NewWorkerPool(workers)
		ctx, cancel := context.WithCancel(context.Background())

		var processed int32
		err := pool.Execute(ctx, 100, func(ctx context.Context, i int) error {
			if atomic.AddInt32(&processed, 1) == 3 {
				cancel()
			}
			return nil
		})

		if !errors.Is(err, context.Canceled) {
			t.Errorf("workers=%d: expected context.Canceled, got %v", workers, err)
		}
		if n := atomic.LoadInt32(&processed); n == 100 {
			t.Errorf("workers=%d: expected cancellation to skip tasks", workers)
		}
	}
}
