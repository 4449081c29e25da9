package core

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestSchedulerRunsSubmittedWork(t *testing.T) {
	t.Parallel()
	s := NewScheduler(context.Background(), 3)

	var done atomic.Int64
	for i := 0; i < 50; i++ {
		domain := "d" + string(rune('a'+i%26)) + ".com"
		if err := s.SubmitWork(context.Background(), domain, func(context.Context, string) { done.Add(1) }); err != nil {
			t.Fatalf("SubmitWork: %v", err)
		}
	}
	s.Shutdown()
	if done.Load() != 50 {
		t.Fatalf("expected 50 completions, got %d", done.Load())
	}
}

func TestSchedulerClampsWorkers(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in, want int
	}{
		{0, DefaultWorkers},
		{-3, 1},
		{MaxWorkers + 10, MaxWorkers},
		{5, 5},
	}
	for _, tt := range tests {
		s := NewScheduler(context.Background(), tt.in)
		if got := len(s.workers); got != tt.want {
			t.Errorf("NewScheduler(%d) started %d workers, want %d", tt.in, got, tt.want)
		}
		s.Shutdown()
	}
}

func TestSchedulerSameDomainSameWorker(t *testing.T) {
	t.Parallel()
	s := NewScheduler(context.Background(), 8)
	defer s.Shutdown()

	// One worker serializes a domain, so these never overlap.
	var inFlight, maxInFlight atomic.Int64
	for i := 0; i < 20; i++ {
		err := s.SubmitWork(context.Background(), "same.example", func(context.Context, string) {
			n := inFlight.Add(1)
			for {
				m := maxInFlight.Load()
				if n <= m || maxInFlight.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			inFlight.Add(-1)
		})
		if err != nil {
			t.Fatalf("SubmitWork: %v", err)
		}
	}
	s.Shutdown()
	if maxInFlight.Load() != 1 {
		t.Fatalf("expected serialized execution, saw %d concurrent", maxInFlight.Load())
	}
}

func TestSchedulerQueueFull(t *testing.T) {
	t.Parallel()
	s := NewScheduler(context.Background(), 1)
	defer s.Shutdown()

	release := make(chan struct{})
	block := func(context.Context, string) { <-release }

	// The first item occupies the worker; the rest fill the queue.
	var err error
	for i := 0; i <= WorkerQueueCapacity+1 && err == nil; i++ {
		err = s.SubmitWork(context.Background(), "x.com", block)
	}
	close(release)
	if !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	if !IsRetryable(err) {
		t.Fatalf("queue full should be retryable")
	}
	s.Shutdown()
}

func TestSchedulerShutdownRejectsAndDrains(t *testing.T) {
	t.Parallel()
	s := NewScheduler(context.Background(), 2)

	var (
		mu        sync.Mutex
		cancelled int
	)
	started := make(chan struct{})
	var once sync.Once
	for i := 0; i < 10; i++ {
		err := s.SubmitWork(context.Background(), "slow.example", func(ctx context.Context, _ string) {
			once.Do(func() { close(started) })
			select {
			case <-ctx.Done():
				mu.Lock()
				cancelled++
				mu.Unlock()
			case <-time.After(5 * time.Second):
			}
		})
		if err != nil {
			t.Fatalf("SubmitWork: %v", err)
		}
	}
	<-started
	s.Shutdown()

	if err := s.SubmitWork(context.Background(), "late.example", func(context.Context, string) {}); !errors.Is(err, ErrWorkerShutdown) {
		t.Fatalf("expected ErrWorkerShutdown, got %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if cancelled != 10 {
		t.Fatalf("expected every queued item to see cancellation, got %d", cancelled)
	}
	s.Shutdown()
}

func TestSchedulerStopsWithParentContext(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	s := NewScheduler(ctx, 2)
	cancel()
	s.Shutdown()

	if err := s.SubmitWork(context.Background(), "a.com", func(context.Context, string) {}); !errors.Is(err, ErrWorkerShutdown) {
		t.Fatalf("expected ErrWorkerShutdown after parent cancel, got %v", err)
	}
}

func TestIsRetryable(t *testing.T) {
	t.Parallel()
	if IsRetryable(nil) {
		t.Fatalf("nil is not retryable")
	}
	if IsRetryable(errors.New("plain")) {
		t.Fatalf("plain errors are not retryable")
	}
	if IsRetryable(ErrWorkerShutdown) || IsRetryable(ErrNoDomains) {
		t.Fatalf("shutdown and empty input are not retryable")
	}
	if !IsRetryable(NewError("try again", true)) {
		t.Fatalf("expected retryable")
	}
}
