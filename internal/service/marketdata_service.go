package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"probable-pancake/internal/domain"

	"go.opentelemetry.io/otel/trace"
)

// MarketDataService keeps the bar history in Postgres current against the
// broker REST API and serves read paths for the API and replay layers.
type BarProvider interface {
	FetchBars(ctx context.Context, pair, granularity string, count int) ([]domain.Bar, error)
}

type BarStore interface {
	UpsertBars(ctx context.Context, bars []domain.Bar) error
	GetBars(ctx context.Context, pair, granularity string, limit int) ([]domain.Bar, error)
	GetBarsInRange(ctx context.Context, pair, granularity string, from, to time.Time) ([]domain.Bar, error)
	LatestOpenTime(ctx context.Context, pair, granularity string) (time.Time, error)
}

type MarketDataService struct {
	tracer      trace.Tracer
	provider    BarProvider
	repo        BarStore
	pair        string
	granularity string
}

func NewMarketDataService(
	tracer trace.Tracer,
	provider BarProvider,
	repo BarStore,
	pair, granularity string,
) *MarketDataService {
	if pair == "" {
		pair = domain.DefaultPair
	}
	if granularity == "" {
		granularity = domain.DefaultGranularity
	}
	return &MarketDataService{
		tracer:      tracer,
		provider:    provider,
		repo:        repo,
		pair:        pair,
		granularity: granularity,
	}
}

// RefreshBars fetches the newest completed bars and upserts them. The fetch
// count covers restarts: enough bars to bridge a gap since the last stored
// open time, capped at the provider page size.
func (s *MarketDataService) RefreshBars(ctx context.Context, count int) ([]domain.Bar, error) {
	ctx, span := s.tracer.Start(ctx, "marketdata.refresh-bars")
	defer span.End()

	if count <= 0 {
		count = s.fetchCount(ctx)
	}
	bars, err := s.provider.FetchBars(ctx, s.pair, s.granularity, count)
	if err != nil {
		return nil, fmt.Errorf("fetch bars: %w", err)
	}
	if len(bars) == 0 {
		return nil, nil
	}
	if err := s.repo.UpsertBars(ctx, bars); err != nil {
		return nil, fmt.Errorf("upsert bars: %w", err)
	}
	return bars, nil
}

// GetBars returns the most recent stored bars in ascending open-time order.
func (s *MarketDataService) GetBars(ctx context.Context, limit int) ([]domain.Bar, error) {
	return s.repo.GetBars(ctx, s.pair, s.granularity, limit)
}

func (s *MarketDataService) GetBarsInRange(ctx context.Context, from, to time.Time) ([]domain.Bar, error) {
	return s.repo.GetBarsInRange(ctx, s.pair, s.granularity, from, to)
}

func (s *MarketDataService) Pair() string        { return s.pair }
func (s *MarketDataService) Granularity() string { return s.granularity }

// fetchCount sizes the fetch to the gap since the newest stored bar. A cold
// database asks for a full warmup page.
func (s *MarketDataService) fetchCount(ctx context.Context) int {
	const (
		minFetch = 5
		maxFetch = 2000
	)
	latest, err := s.repo.LatestOpenTime(ctx, s.pair, s.granularity)
	if err != nil {
		log.Printf("marketdata: latest open time lookup: %v", err)
		return maxFetch
	}
	if latest.IsZero() {
		return maxFetch
	}
	step := domain.GranularityDuration[s.granularity]
	if step <= 0 {
		return maxFetch
	}
	missing := int(time.Since(latest)/step) + 2
	if missing < minFetch {
		return minFetch
	}
	if missing > maxFetch {
		return maxFetch
	}
	return missing
}
