package job

import (
	"context"
	"log"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// DecisionPoller drives the live loop: one decision cycle per poll tick,
// plus a slower heartbeat that re-caches the status snapshot so dashboards
// stay live between completed bars.
type DecisionPoller struct {
	tracer       trace.Tracer
	service      DecisionRunner
	pollInterval time.Duration
}

type DecisionRunner interface {
	RunCycle(ctx context.Context) error
	CacheStatus(ctx context.Context)
}

func NewDecisionPoller(tracer trace.Tracer, service DecisionRunner, pollIntervalSecs int) *DecisionPoller {
	if pollIntervalSecs <= 0 {
		pollIntervalSecs = 60
	}
	return &DecisionPoller{
		tracer:       tracer,
		service:      service,
		pollInterval: time.Duration(pollIntervalSecs) * time.Second,
	}
}

// Start launches the cycle and heartbeat loops. Blocks until ctx is
// cancelled.
func (p *DecisionPoller) Start(ctx context.Context) {
	log.Println("Decision poller starting...")

	go p.pollLoop(ctx, "decision-cycle", p.pollInterval, func(ctx context.Context) error {
		return p.service.RunCycle(ctx)
	})

	go p.heartbeat(ctx)

	<-ctx.Done()
	log.Println("Decision poller stopped")
}

func (p *DecisionPoller) pollLoop(ctx context.Context, name string, interval time.Duration, fn func(context.Context) error) {
	// Run immediately on start
	if err := fn(ctx); err != nil {
		log.Printf("poller %s initial run error: %v", name, err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := fn(ctx); err != nil {
				log.Printf("poller %s error: %v", name, err)
			}
		}
	}
}

func (p *DecisionPoller) heartbeat(ctx context.Context) {
	// Stagger behind the first cycle so the snapshot it writes is fresh.
	select {
	case <-ctx.Done():
		return
	case <-time.After(30 * time.Second):
	}

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.service.CacheStatus(ctx)
		}
	}
}
