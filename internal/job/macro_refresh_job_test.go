package job

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"probable-pancake/internal/domain"

	"go.opentelemetry.io/otel/trace"
)

func TestMacroRefreshJobRunsAtLeastOnce(t *testing.T) {
	var calls int32
	refresher := &macroRefresherStub{calls: &calls}
	job := NewMacroRefreshJob(trace.NewNoopTracerProvider().Tracer("test"), refresher, 50*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		job.Start(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	<-done

	if atomic.LoadInt32(&calls) == 0 {
		t.Fatal("expected at least one macro refresh")
	}
}

func TestMacroRefreshJobNilRefresherBlocksQuietly(t *testing.T) {
	t.Parallel()

	job := NewMacroRefreshJob(trace.NewNoopTracerProvider().Tracer("test"), nil, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		job.Start(ctx)
		close(done)
	}()
	cancel()
	<-done
}

func TestNextRunUTC(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 4, 10, 30, 0, 0, time.UTC)
	next := nextRunUTC(now, 12)
	if next != time.Date(2025, 3, 4, 12, 0, 0, 0, time.UTC) {
		t.Fatalf("expected same-day run, got %v", next)
	}
	next = nextRunUTC(now, 9)
	if next != time.Date(2025, 3, 5, 9, 0, 0, 0, time.UTC) {
		t.Fatalf("expected next-day run, got %v", next)
	}
}

type macroRefresherStub struct {
	calls *int32
}

func (s *macroRefresherStub) Refresh(ctx context.Context, now time.Time) (*domain.MacroSnapshot, error) {
	atomic.AddInt32(s.calls, 1)
	return &domain.MacroSnapshot{Bias: domain.MacroBiasNeutral, RefreshedAt: now}, nil
}
