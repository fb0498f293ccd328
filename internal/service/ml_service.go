package service

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"probable-pancake/internal/domain"
	"probable-pancake/internal/ml/features"
	"probable-pancake/internal/ml/inference"
	"probable-pancake/internal/ml/training"

	"go.opentelemetry.io/otel/trace"
)

// holdReturnBand bounds the realized return treated as confirming a hold.
const holdReturnBand = 0.001

type FeatureWriter interface {
	UpsertRows(ctx context.Context, rows []domain.MLFeatureRow) error
}

type PredictionResolver interface {
	ListRecent(ctx context.Context, pair string, limit int) ([]domain.MLPrediction, error)
	ListUnresolvedDue(ctx context.Context, cutoff time.Time, limit int) ([]domain.MLPrediction, error)
	ResolvePrediction(ctx context.Context, predictionID int64, actualUp bool, isCorrect bool, realizedReturn float64) error
}

type Trainer interface {
	TrainAll(ctx context.Context, now time.Time) ([]training.ModelTrainResult, error)
}

type Inferrer interface {
	RunLatest(ctx context.Context, now time.Time) (inference.RunResult, error)
}

// MLService drives the auxiliary classifier lane end to end: feature
// extraction from stored bars, training, inference, and resolving
// predictions whose horizon has elapsed. It never touches the
// deterministic decision path.
type MLService struct {
	tracer      trace.Tracer
	market      *MarketDataService
	engine      *features.Engine
	writer      FeatureWriter
	predictions PredictionResolver
	trainer     Trainer
	inferrer    Inferrer

	pair        string
	granularity string
	targetBars  int
	windowBars  int
}

func NewMLService(
	tracer trace.Tracer,
	market *MarketDataService,
	engine *features.Engine,
	writer FeatureWriter,
	predictions PredictionResolver,
	trainer Trainer,
	inferrer Inferrer,
	pair, granularity string,
	targetBars int,
) *MLService {
	if pair == "" {
		pair = domain.DefaultPair
	}
	if granularity == "" {
		granularity = domain.DefaultGranularity
	}
	return &MLService{
		tracer:      tracer,
		market:      market,
		engine:      engine,
		writer:      writer,
		predictions: predictions,
		trainer:     trainer,
		inferrer:    inferrer,
		pair:        pair,
		granularity: granularity,
		targetBars:  targetBars,
		windowBars:  2000,
	}
}

// RefreshFeatures recomputes feature rows over the recent bar window and
// upserts them. Rows whose label horizon has elapsed get their target
// backfilled by the upsert.
func (s *MLService) RefreshFeatures(ctx context.Context) (int, error) {
	ctx, span := s.tracer.Start(ctx, "ml-service.refresh-features")
	defer span.End()

	bars, err := s.market.GetBars(ctx, s.windowBars)
	if err != nil {
		return 0, fmt.Errorf("load bars: %w", err)
	}
	rows := s.engine.BuildRows(bars, s.targetBars)
	if len(rows) == 0 {
		return 0, nil
	}
	if err := s.writer.UpsertRows(ctx, rows); err != nil {
		return 0, fmt.Errorf("upsert feature rows: %w", err)
	}
	return len(rows), nil
}

// RunInference scores the newest feature row with the active models.
func (s *MLService) RunInference(ctx context.Context, now time.Time) (inference.RunResult, error) {
	return s.inferrer.RunLatest(ctx, now)
}

// RunTraining retrains all model keys on the labeled history.
func (s *MLService) RunTraining(ctx context.Context, now time.Time) ([]training.ModelTrainResult, error) {
	return s.trainer.TrainAll(ctx, now)
}

// Predictions returns recent predictions for the API surface.
func (s *MLService) Predictions(ctx context.Context, limit int) ([]domain.MLPrediction, error) {
	return s.predictions.ListRecent(ctx, s.pair, limit)
}

// ResolveOutcomes marks predictions whose target time has passed with the
// realized outcome. A prediction stays unresolved if its target bar has
// not been stored yet.
func (s *MLService) ResolveOutcomes(ctx context.Context, now time.Time) (int, error) {
	ctx, span := s.tracer.Start(ctx, "ml-service.resolve-outcomes")
	defer span.End()

	due, err := s.predictions.ListUnresolvedDue(ctx, now, 200)
	if err != nil {
		return 0, fmt.Errorf("list unresolved: %w", err)
	}

	resolved := 0
	for _, p := range due {
		entryClose, targetClose, ok, err := s.resolutionCloses(ctx, p)
		if err != nil {
			return resolved, err
		}
		if !ok {
			continue
		}
		realized := (targetClose - entryClose) / entryClose
		actualUp := targetClose > entryClose
		if err := s.predictions.ResolvePrediction(ctx, p.ID, actualUp, predictionCorrect(p.Direction, actualUp, realized), realized); err != nil {
			log.Printf("ml: resolve prediction %d: %v", p.ID, err)
			continue
		}
		resolved++
	}
	return resolved, nil
}

// resolutionCloses returns the close at the prediction's open bar and at
// the first bar at or after its target time.
func (s *MLService) resolutionCloses(ctx context.Context, p domain.MLPrediction) (entry, target float64, ok bool, err error) {
	step := domain.GranularityDuration[p.Granularity]
	if step <= 0 {
		step = domain.GranularityDuration[domain.DefaultGranularity]
	}
	bars, err := s.market.GetBarsInRange(ctx, p.OpenTime, p.TargetTime.Add(4*step))
	if err != nil {
		return 0, 0, false, fmt.Errorf("load resolution bars: %w", err)
	}
	for _, b := range bars {
		if b.OpenTime.Equal(p.OpenTime) {
			entry = b.Close
		}
		if target == 0 && !b.OpenTime.Before(p.TargetTime) {
			target = b.Close
		}
	}
	if entry == 0 || target == 0 {
		return 0, 0, false, nil
	}
	return entry, target, true, nil
}

func predictionCorrect(dir domain.Direction, actualUp bool, realized float64) bool {
	switch dir {
	case domain.DirectionBuy:
		return actualUp
	case domain.DirectionSell:
		return !actualUp
	default:
		return math.Abs(realized) < holdReturnBand
	}
}
