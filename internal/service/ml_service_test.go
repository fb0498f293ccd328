package service

import (
	"context"
	"testing"
	"time"

	"probable-pancake/internal/domain"
	"probable-pancake/internal/ml/features"
	"probable-pancake/internal/ml/inference"
	"probable-pancake/internal/ml/training"
)

type fakeFeatureWriter struct {
	rows []domain.MLFeatureRow
}

func (f *fakeFeatureWriter) UpsertRows(ctx context.Context, rows []domain.MLFeatureRow) error {
	f.rows = append(f.rows, rows...)
	return nil
}

type fakePredictionResolver struct {
	recent     []domain.MLPrediction
	unresolved []domain.MLPrediction
	resolved   map[int64]bool
	correct    map[int64]bool
}

func (f *fakePredictionResolver) ListRecent(ctx context.Context, pair string, limit int) ([]domain.MLPrediction, error) {
	return f.recent, nil
}

func (f *fakePredictionResolver) ListUnresolvedDue(ctx context.Context, cutoff time.Time, limit int) ([]domain.MLPrediction, error) {
	return f.unresolved, nil
}

func (f *fakePredictionResolver) ResolvePrediction(ctx context.Context, predictionID int64, actualUp bool, isCorrect bool, realizedReturn float64) error {
	if f.resolved == nil {
		f.resolved = make(map[int64]bool)
		f.correct = make(map[int64]bool)
	}
	f.resolved[predictionID] = actualUp
	f.correct[predictionID] = isCorrect
	return nil
}

type fakeTrainer struct{ calls int }

func (f *fakeTrainer) TrainAll(ctx context.Context, now time.Time) ([]training.ModelTrainResult, error) {
	f.calls++
	return nil, nil
}

type fakeInferrer struct{ calls int }

func (f *fakeInferrer) RunLatest(ctx context.Context, now time.Time) (inference.RunResult, error) {
	f.calls++
	return inference.RunResult{}, nil
}

func mlFixture(bars []domain.Bar) (*MLService, *fakeFeatureWriter, *fakePredictionResolver) {
	store := &fakeBarStore{bars: bars}
	market := NewMarketDataService(testTracer, &fakeBarProvider{}, store, "USD_JPY", "M15")
	writer := &fakeFeatureWriter{}
	resolver := &fakePredictionResolver{}
	engine := features.NewEngine(time.Now)
	svc := NewMLService(testTracer, market, engine, writer, resolver, &fakeTrainer{}, &fakeInferrer{}, "USD_JPY", "M15", 16)
	return svc, writer, resolver
}

func TestMLService_RefreshFeaturesWritesRows(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	svc, writer, _ := mlFixture(testBars(200, start))

	n, err := svc.RefreshFeatures(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n == 0 || len(writer.rows) != n {
		t.Fatalf("expected rows written, got n=%d stored=%d", n, len(writer.rows))
	}
}

func TestMLService_RefreshFeaturesShortHistory(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	svc, writer, _ := mlFixture(testBars(30, start))

	n, err := svc.RefreshFeatures(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 0 || len(writer.rows) != 0 {
		t.Fatalf("expected no rows before warmup, got %d", n)
	}
}

func TestMLService_ResolveOutcomesMarksRealizedDirection(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	bars := testBars(60, start) // closes rise monotonically
	svc, _, resolver := mlFixture(bars)

	resolver.unresolved = []domain.MLPrediction{
		{
			ID:          7,
			Pair:        "USD_JPY",
			Granularity: "M15",
			OpenTime:    bars[10].OpenTime,
			TargetTime:  bars[26].OpenTime,
			Direction:   domain.DirectionBuy,
		},
		{
			ID:          8,
			Pair:        "USD_JPY",
			Granularity: "M15",
			OpenTime:    bars[12].OpenTime,
			TargetTime:  bars[28].OpenTime,
			Direction:   domain.DirectionSell,
		},
	}

	resolved, err := svc.ResolveOutcomes(context.Background(), time.Now().UTC())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved != 2 {
		t.Fatalf("expected 2 resolutions, got %d", resolved)
	}
	if up, ok := resolver.resolved[7]; !ok || !up {
		t.Fatal("rising market should resolve actual_up=true")
	}
	if !resolver.correct[7] {
		t.Fatal("buy into a rising market should be correct")
	}
	if resolver.correct[8] {
		t.Fatal("sell into a rising market should be incorrect")
	}
}

func TestMLService_ResolveOutcomesWaitsForTargetBar(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	bars := testBars(20, start)
	svc, _, resolver := mlFixture(bars)

	resolver.unresolved = []domain.MLPrediction{{
		ID:          9,
		Pair:        "USD_JPY",
		Granularity: "M15",
		OpenTime:    bars[10].OpenTime,
		TargetTime:  bars[19].OpenTime.Add(4 * time.Hour), // beyond stored bars
		Direction:   domain.DirectionBuy,
	}}

	resolved, err := svc.ResolveOutcomes(context.Background(), time.Now().UTC())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved != 0 {
		t.Fatalf("expected no resolution without target bar, got %d", resolved)
	}
	if len(resolver.resolved) != 0 {
		t.Fatal("prediction should remain unresolved")
	}
}
