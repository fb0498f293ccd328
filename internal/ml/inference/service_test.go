package inference

import (
	"context"
	"testing"
	"time"

	"probable-pancake/internal/domain"
	"probable-pancake/internal/ml/common"
	"probable-pancake/internal/ml/models/logreg"
	"probable-pancake/internal/ml/models/xgboost"

	"go.opentelemetry.io/otel/trace"
)

var testTracer = trace.NewNoopTracerProvider().Tracer("test")

type fakeFeatureReader struct {
	latest  *domain.MLFeatureRow
	history []domain.MLFeatureRow
}

func (f *fakeFeatureReader) LatestRow(context.Context, string, string) (*domain.MLFeatureRow, error) {
	return f.latest, nil
}

func (f *fakeFeatureReader) ListRows(context.Context, string, string, time.Time, time.Time) ([]domain.MLFeatureRow, error) {
	return f.history, nil
}

type fakeRegistry struct {
	models map[string]*domain.MLModelVersion
}

func (f *fakeRegistry) GetActiveModel(_ context.Context, modelKey, _ string) (*domain.MLModelVersion, error) {
	return f.models[modelKey], nil
}

type fakePredictionStore struct {
	upserts []domain.MLPrediction
}

func (f *fakePredictionStore) UpsertPrediction(_ context.Context, p domain.MLPrediction) (*domain.MLPrediction, error) {
	p.ID = int64(len(f.upserts) + 1)
	f.upserts = append(f.upserts, p)
	return &p, nil
}

type fakeDecisionReader struct {
	decision *domain.Decision
}

func (f *fakeDecisionReader) LatestDecision(context.Context, string) (*domain.Decision, error) {
	return f.decision, nil
}

func trainedArtifacts(t *testing.T) (logregBlob, xgbBlob []byte) {
	t.Helper()

	// trivially separable data: label follows the first feature's sign
	n := 400
	x := make([][]float64, 0, n)
	y := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		v := make([]float64, len(common.FeatureNames))
		if i%2 == 0 {
			v[0] = 1
			y = append(y, 1)
		} else {
			v[0] = -1
			y = append(y, 0)
		}
		x = append(x, v)
	}

	lr, err := logreg.Train(x, y, common.FeatureNames, logreg.DefaultTrainOptions())
	if err != nil {
		t.Fatalf("train logreg: %v", err)
	}
	lrBlob, err := lr.MarshalBinary()
	if err != nil {
		t.Fatalf("marshal logreg: %v", err)
	}

	xgb, err := xgboost.Train(x, y, common.FeatureNames, xgboost.DefaultTrainOptions())
	if err != nil {
		t.Fatalf("train xgboost: %v", err)
	}
	xBlob, err := xgb.MarshalBinary()
	if err != nil {
		t.Fatalf("marshal xgboost: %v", err)
	}
	return lrBlob, xBlob
}

func featureRow(openTime time.Time) *domain.MLFeatureRow {
	return &domain.MLFeatureRow{
		Pair:        domain.DefaultPair,
		Granularity: domain.DefaultGranularity,
		OpenTime:    openTime,
		Ret1:        1, // first feature drives the toy models
		RSI14:       55,
		BBPos:       0.6,
		ATRRatio:    1.1,
		ADX14:       25,
	}
}

func TestRunLatestPersistsModelAndEnsemblePredictions(t *testing.T) {
	lrBlob, xgbBlob := trainedArtifacts(t)
	now := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	openTime := now.Add(-15 * time.Minute)

	reader := &fakeFeatureReader{latest: featureRow(openTime)}
	registry := &fakeRegistry{models: map[string]*domain.MLModelVersion{
		common.ModelKeyLogReg:  {ModelKey: common.ModelKeyLogReg, Pair: domain.DefaultPair, Version: 3, ArtifactBlob: lrBlob},
		common.ModelKeyXGBoost: {ModelKey: common.ModelKeyXGBoost, Pair: domain.DefaultPair, Version: 2, ArtifactBlob: xgbBlob},
	}}
	store := &fakePredictionStore{}
	decisions := &fakeDecisionReader{decision: &domain.Decision{
		Pair:       domain.DefaultPair,
		Time:       openTime,
		Action:     domain.DirectionBuy,
		Confluence: 7,
	}}

	svc := NewService(testTracer, reader, registry, store, decisions, nil, Config{})
	result, err := svc.RunLatest(context.Background(), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Predictions != 3 {
		t.Fatalf("expected 3 predictions (two models + ensemble), got %d", result.Predictions)
	}

	byKey := map[string]domain.MLPrediction{}
	for _, p := range store.upserts {
		byKey[p.ModelKey] = p
	}
	lr, ok := byKey[common.ModelKeyLogReg]
	if !ok {
		t.Fatal("expected logreg prediction persisted")
	}
	if lr.ProbUp <= 0.5 {
		t.Fatalf("expected bullish probability for positive first feature, got %f", lr.ProbUp)
	}
	ens, ok := byKey[common.ModelKeyEnsembleV1]
	if !ok {
		t.Fatal("expected ensemble prediction persisted")
	}
	if ens.Direction != domain.DirectionBuy {
		t.Fatalf("expected buy from aligned components, got %s", ens.Direction)
	}
	wantTarget := openTime.Add(16 * 15 * time.Minute)
	if !ens.TargetTime.Equal(wantTarget) {
		t.Fatalf("expected target time %v, got %v", wantTarget, ens.TargetTime)
	}
}

func TestRunLatestNoActiveModelsIsNoop(t *testing.T) {
	svc := NewService(testTracer, &fakeFeatureReader{latest: featureRow(time.Now())},
		&fakeRegistry{models: map[string]*domain.MLModelVersion{}}, &fakePredictionStore{}, nil, nil, Config{})
	result, err := svc.RunLatest(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Predictions != 0 {
		t.Fatalf("expected no predictions without active models, got %d", result.Predictions)
	}
}

func TestClassicScoreIgnoresStaleDecision(t *testing.T) {
	svc := NewService(testTracer, nil, nil, nil, &fakeDecisionReader{decision: &domain.Decision{
		Pair:       domain.DefaultPair,
		Time:       time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		Action:     domain.DirectionBuy,
		Confluence: 7,
	}}, nil, Config{})

	row := featureRow(time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC))
	if got := svc.classicScore(context.Background(), *row); got != 0 {
		t.Fatalf("expected stale decision to contribute nothing, got %f", got)
	}

	fresh := featureRow(time.Date(2025, 6, 1, 0, 15, 0, 0, time.UTC))
	if got := svc.classicScore(context.Background(), *fresh); got != 1 {
		t.Fatalf("expected full-confluence buy to score 1, got %f", got)
	}
}
