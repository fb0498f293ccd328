package macro

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"probable-pancake/internal/domain"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
)

const snapshotCacheKey = "macro:snapshot"

// DefaultTTL is how long a snapshot stays fresh before the gate treats it
// as absent.
const DefaultTTL = time.Hour

// Source hands the decision loop its macro view. The live service implements
// it; replays use NoopSource so results never depend on external data.
type Source interface {
	Snapshot(ctx context.Context, now time.Time) (*domain.MacroSnapshot, error)
}

// NoopSource always reports no macro view.
type NoopSource struct{}

func (NoopSource) Snapshot(context.Context, time.Time) (*domain.MacroSnapshot, error) {
	return nil, nil
}

type SeriesReader interface {
	FetchSeries(ctx context.Context, seriesID string, limit int) ([]domain.MacroSeriesPoint, error)
}

type Store interface {
	UpsertSeriesPoints(ctx context.Context, points []domain.MacroSeriesPoint) error
	RecentSeries(ctx context.Context, seriesID string, limit int) ([]domain.MacroSeriesPoint, error)
	InsertSnapshot(ctx context.Context, snapshot domain.MacroSnapshot) error
	LatestSnapshot(ctx context.Context) (*domain.MacroSnapshot, error)
}

type RedisClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
}

type Service struct {
	tracer trace.Tracer
	fred   SeriesReader
	repo   Store
	redis  RedisClient
	ttl    time.Duration
}

func NewService(tracer trace.Tracer, fred SeriesReader, repo Store, redisClient RedisClient, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{
		tracer: tracer,
		fred:   fred,
		repo:   repo,
		redis:  redisClient,
		ttl:    ttl,
	}
}

// TTL returns the snapshot freshness window.
func (s *Service) TTL() time.Duration { return s.ttl }

// Refresh pulls every configured FRED series, persists the observations,
// rebuilds the composite snapshot and caches it. Individual series failures
// are tolerated: the scorer answers "no data" for what is missing.
func (s *Service) Refresh(ctx context.Context, now time.Time) (*domain.MacroSnapshot, error) {
	ctx, span := s.tracer.Start(ctx, "macro.refresh")
	defer span.End()

	if s.fred == nil {
		return nil, fmt.Errorf("macro service has no series reader")
	}

	series := make(map[string][]domain.MacroSeriesPoint, len(AllSeries))
	for _, id := range AllSeries {
		points, err := s.fred.FetchSeries(ctx, id, yieldHistoryObs+5)
		if err != nil {
			log.Printf("macro refresh: fetch %s: %v", id, err)
			continue
		}
		series[id] = points
		if s.repo != nil {
			if err := s.repo.UpsertSeriesPoints(ctx, points); err != nil {
				log.Printf("macro refresh: persist %s: %v", id, err)
			}
		}
	}

	snapshot := Score(series, now)
	if s.repo != nil {
		if err := s.repo.InsertSnapshot(ctx, snapshot); err != nil {
			log.Printf("macro refresh: persist snapshot: %v", err)
		}
	}
	if err := s.cacheSnapshot(ctx, snapshot); err != nil {
		log.Printf("macro refresh: cache snapshot: %v", err)
	}
	return &snapshot, nil
}

// Snapshot returns the current macro view: the Redis cache when fresh,
// falling back to the latest persisted snapshot. A nil snapshot with a nil
// error means no view is available; the gate treats that as permissive.
func (s *Service) Snapshot(ctx context.Context, now time.Time) (*domain.MacroSnapshot, error) {
	ctx, span := s.tracer.Start(ctx, "macro.snapshot")
	defer span.End()

	if s.redis != nil {
		data, err := s.redis.Get(ctx, snapshotCacheKey).Bytes()
		if err == nil {
			var snapshot domain.MacroSnapshot
			if err := json.Unmarshal(data, &snapshot); err == nil && !snapshot.Stale(now, s.ttl) {
				return &snapshot, nil
			}
		} else if err != redis.Nil {
			log.Printf("macro snapshot: cache read: %v", err)
		}
	}

	if s.repo == nil {
		return nil, nil
	}
	snapshot, err := s.repo.LatestSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	if snapshot == nil || snapshot.Stale(now, s.ttl) {
		return nil, nil
	}
	return snapshot, nil
}

func (s *Service) cacheSnapshot(ctx context.Context, snapshot domain.MacroSnapshot) error {
	if s.redis == nil {
		return nil
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, snapshotCacheKey, data, s.ttl).Err()
}
