package job

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"go.opentelemetry.io/otel/trace"
)

func TestNewDecisionPollerInterval(t *testing.T) {
	tracer := trace.NewNoopTracerProvider().Tracer("test")
	poller := NewDecisionPoller(tracer, &decisionRunnerStub{}, 2)
	if poller.pollInterval != 2*time.Second {
		t.Fatalf("expected 2s interval, got %v", poller.pollInterval)
	}
}

func TestNewDecisionPollerDefaultInterval(t *testing.T) {
	tracer := trace.NewNoopTracerProvider().Tracer("test")
	poller := NewDecisionPoller(tracer, &decisionRunnerStub{}, 0)
	if poller.pollInterval != 60*time.Second {
		t.Fatalf("expected 60s default, got %v", poller.pollInterval)
	}
}

func TestDecisionPollerRunsCycleOnStart(t *testing.T) {
	t.Parallel()

	tracer := trace.NewNoopTracerProvider().Tracer("test")
	stub := &decisionRunnerStub{}
	poller := NewDecisionPoller(tracer, stub, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		poller.Start(ctx)
		close(done)
	}()

	eventually(t, func() bool { return atomic.LoadInt32(&stub.cycles) > 0 })
	cancel()
	<-done
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met")
}

type decisionRunnerStub struct {
	cycles     int32
	heartbeats int32
}

func (s *decisionRunnerStub) RunCycle(ctx context.Context) error {
	atomic.AddInt32(&s.cycles, 1)
	return nil
}

func (s *decisionRunnerStub) CacheStatus(ctx context.Context) {
	atomic.AddInt32(&s.heartbeats, 1)
}
