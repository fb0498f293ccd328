package job

import (
	"context"
	"log"
	"time"

	"probable-pancake/internal/domain"

	"go.opentelemetry.io/otel/trace"
)

type MacroRefresher interface {
	Refresh(ctx context.Context, now time.Time) (*domain.MacroSnapshot, error)
}

type MacroRefreshJob struct {
	tracer       trace.Tracer
	refresher    MacroRefresher
	pollInterval time.Duration
}

func NewMacroRefreshJob(tracer trace.Tracer, refresher MacroRefresher, pollInterval time.Duration) *MacroRefreshJob {
	if pollInterval <= 0 {
		pollInterval = time.Hour
	}
	return &MacroRefreshJob{tracer: tracer, refresher: refresher, pollInterval: pollInterval}
}

func (j *MacroRefreshJob) Start(ctx context.Context) {
	if j.refresher == nil {
		log.Println("Macro refresh job disabled: no refresher")
		<-ctx.Done()
		return
	}

	j.runOnce(ctx)
	ticker := time.NewTicker(j.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.runOnce(ctx)
		}
	}
}

func (j *MacroRefreshJob) runOnce(ctx context.Context) {
	_, span := j.tracer.Start(ctx, "macro-refresh-job.run-once")
	defer span.End()

	snapshot, err := j.refresher.Refresh(ctx, time.Now().UTC())
	if err != nil {
		log.Printf("Macro refresh error: %v", err)
		return
	}
	if snapshot != nil {
		log.Printf("Macro refresh complete bias=%s confidence=%s score=%.2f",
			snapshot.Bias, snapshot.Confidence, snapshot.Score)
	}
}
