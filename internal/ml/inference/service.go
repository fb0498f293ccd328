package inference

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"time"

	"probable-pancake/internal/domain"
	"probable-pancake/internal/ml/anomaly"
	"probable-pancake/internal/ml/common"
	"probable-pancake/internal/ml/ensemble"
	"probable-pancake/internal/ml/models/logreg"
	"probable-pancake/internal/ml/models/xgboost"

	"go.opentelemetry.io/otel/trace"
)

type FeatureReader interface {
	LatestRow(ctx context.Context, pair, granularity string) (*domain.MLFeatureRow, error)
	ListRows(ctx context.Context, pair, granularity string, from, to time.Time) ([]domain.MLFeatureRow, error)
}

type ModelRegistry interface {
	GetActiveModel(ctx context.Context, modelKey, pair string) (*domain.MLModelVersion, error)
}

type PredictionStore interface {
	UpsertPrediction(ctx context.Context, prediction domain.MLPrediction) (*domain.MLPrediction, error)
}

// DecisionReader supplies the deterministic engine's latest read. It feeds
// the classic component of the ensemble; the two lanes never share state
// beyond this.
type DecisionReader interface {
	LatestDecision(ctx context.Context, pair string) (*domain.Decision, error)
}

type Config struct {
	Pair           string
	Granularity    string
	TargetBars     int
	LongThreshold  float64
	ShortThreshold float64
	AnomalyWindow  time.Duration
}

type Service struct {
	tracer      trace.Tracer
	features    FeatureReader
	registry    ModelRegistry
	predictions PredictionStore
	decisions   DecisionReader
	ensemble    *ensemble.Service
	cfg         Config
}

type RunResult struct {
	Predictions int
}

func NewService(
	tracer trace.Tracer,
	features FeatureReader,
	registry ModelRegistry,
	predictions PredictionStore,
	decisions DecisionReader,
	ensembleSvc *ensemble.Service,
	cfg Config,
) *Service {
	if cfg.Pair == "" {
		cfg.Pair = domain.DefaultPair
	}
	if cfg.Granularity == "" {
		cfg.Granularity = domain.DefaultGranularity
	}
	if cfg.TargetBars <= 0 {
		cfg.TargetBars = common.TargetBars
	}
	if cfg.LongThreshold <= 0 || cfg.LongThreshold >= 1 {
		cfg.LongThreshold = 0.65
	}
	if cfg.ShortThreshold <= 0 || cfg.ShortThreshold >= 1 {
		cfg.ShortThreshold = 0.35
	}
	if cfg.AnomalyWindow <= 0 {
		cfg.AnomalyWindow = 14 * 24 * time.Hour
	}
	if ensembleSvc == nil {
		ensembleSvc = ensemble.NewService()
	}
	return &Service{
		tracer:      tracer,
		features:    features,
		registry:    registry,
		predictions: predictions,
		decisions:   decisions,
		ensemble:    ensembleSvc,
		cfg:         cfg,
	}
}

// RunLatest scores the newest feature row with every active model, blends
// the ensemble and persists one prediction per model key.
func (s *Service) RunLatest(ctx context.Context, now time.Time) (RunResult, error) {
	ctx, span := s.tracer.Start(ctx, "ml-inference.run-latest")
	defer span.End()

	if s.features == nil || s.registry == nil || s.predictions == nil {
		return RunResult{}, fmt.Errorf("ml inference service is not fully initialized")
	}

	logVersion, logPredict, err := s.loadLogReg(ctx)
	if err != nil {
		return RunResult{}, err
	}
	xgbVersion, xgbPredict, err := s.loadXGBoost(ctx)
	if err != nil {
		return RunResult{}, err
	}
	if logPredict == nil && xgbPredict == nil {
		return RunResult{}, nil
	}

	row, err := s.features.LatestRow(ctx, s.cfg.Pair, s.cfg.Granularity)
	if err != nil {
		return RunResult{}, err
	}
	if row == nil {
		return RunResult{}, nil
	}

	barDuration := domain.GranularityDuration[s.cfg.Granularity]
	targetTime := row.OpenTime.UTC().Add(time.Duration(s.cfg.TargetBars) * barDuration)
	vector := common.FeatureVector(*row)
	anomalyScore := s.anomalyScore(ctx, *row, now)

	result := RunResult{}
	classicScore := s.classicScore(ctx, *row)
	logProb := 0.5
	xgbProb := 0.5

	if logPredict != nil {
		logProb = common.Clamp01(logPredict(vector))
		if err := s.persistPrediction(ctx, *row, common.ModelKeyLogReg, logVersion, logProb, targetTime, 0, anomalyScore); err != nil {
			return result, err
		}
		result.Predictions++
	}
	if xgbPredict != nil {
		xgbProb = common.Clamp01(xgbPredict(vector))
		if err := s.persistPrediction(ctx, *row, common.ModelKeyXGBoost, xgbVersion, xgbProb, targetTime, 0, anomalyScore); err != nil {
			return result, err
		}
		result.Predictions++
	}

	ensembleScore := s.ensemble.Score(ensemble.Components{
		ClassicScore: classicScore,
		LogRegProb:   logProb,
		XGBoostProb:  xgbProb,
	})
	if ensembleScore > 1 {
		ensembleScore = 1
	}
	if ensembleScore < -1 {
		ensembleScore = -1
	}
	ensembleProb := common.Clamp01((ensembleScore + 1) / 2)
	version := maxInt(logVersion, xgbVersion)
	if version <= 0 {
		version = 1
	}
	if err := s.persistPrediction(ctx, *row, common.ModelKeyEnsembleV1, version, ensembleProb, targetTime, ensembleScore, anomalyScore); err != nil {
		return result, err
	}
	result.Predictions++
	return result, nil
}

func (s *Service) persistPrediction(
	ctx context.Context,
	row domain.MLFeatureRow,
	modelKey string,
	modelVersion int,
	probUp float64,
	targetTime time.Time,
	ensembleScore float64,
	anomalyScore *float64,
) error {
	confidence := common.Confidence(probUp)
	direction := common.DirectionFromProb(probUp, s.cfg.LongThreshold, s.cfg.ShortThreshold)
	if modelKey == common.ModelKeyEnsembleV1 {
		direction = ensemble.Direction(ensembleScore)
	}

	_, err := s.predictions.UpsertPrediction(ctx, domain.MLPrediction{
		Pair:         row.Pair,
		Granularity:  row.Granularity,
		OpenTime:     row.OpenTime.UTC(),
		TargetTime:   targetTime.UTC(),
		ModelKey:     modelKey,
		ModelVersion: modelVersion,
		ProbUp:       probUp,
		Confidence:   confidence,
		Direction:    direction,
		AnomalyScore: anomalyScore,
		DetailsJSON:  s.buildDetailsJSON(modelKey, modelVersion, probUp, confidence, ensembleScore),
	})
	return err
}

func (s *Service) loadLogReg(ctx context.Context) (int, func([]float64) float64, error) {
	active, err := s.registry.GetActiveModel(ctx, common.ModelKeyLogReg, s.cfg.Pair)
	if err != nil || active == nil {
		return 0, nil, err
	}
	model, err := logreg.UnmarshalBinary(active.ArtifactBlob)
	if err != nil {
		return 0, nil, err
	}
	return active.Version, model.PredictProb, nil
}

func (s *Service) loadXGBoost(ctx context.Context) (int, func([]float64) float64, error) {
	active, err := s.registry.GetActiveModel(ctx, common.ModelKeyXGBoost, s.cfg.Pair)
	if err != nil || active == nil {
		return 0, nil, err
	}
	model, err := xgboost.UnmarshalBinary(active.ArtifactBlob)
	if err != nil {
		return 0, nil, err
	}
	return active.Version, model.PredictProb, nil
}

// classicScore condenses the deterministic engine's latest decision into
// [-1, 1]: direction sign scaled by confluence out of the seven directional
// gates. A stale or missing decision contributes nothing.
func (s *Service) classicScore(ctx context.Context, row domain.MLFeatureRow) float64 {
	if s.decisions == nil {
		return 0
	}
	decision, err := s.decisions.LatestDecision(ctx, row.Pair)
	if err != nil || decision == nil {
		return 0
	}
	barDuration := domain.GranularityDuration[row.Granularity]
	if barDuration <= 0 {
		barDuration = 15 * time.Minute
	}
	age := row.OpenTime.UTC().Sub(decision.Time.UTC())
	if age < 0 {
		age = -age
	}
	if age > 4*barDuration {
		return 0
	}

	sign := 0.0
	switch decision.Action {
	case domain.DirectionBuy:
		sign = 1
	case domain.DirectionSell:
		sign = -1
	default:
		return 0
	}
	score := sign * float64(decision.Confluence) / 7.0
	if score > 1 {
		return 1
	}
	if score < -1 {
		return -1
	}
	return score
}

// anomalyScore fits an isolation forest on the recent window and scores the
// row against it. Failures degrade to no score.
func (s *Service) anomalyScore(ctx context.Context, row domain.MLFeatureRow, now time.Time) *float64 {
	from := now.UTC().Add(-s.cfg.AnomalyWindow)
	history, err := s.features.ListRows(ctx, s.cfg.Pair, s.cfg.Granularity, from, now.UTC())
	if err != nil {
		log.Printf("ml inference: anomaly history: %v", err)
		return nil
	}
	detector, err := anomaly.Fit(history)
	if err != nil {
		return nil
	}
	score := detector.Score(row)
	return &score
}

func (s *Service) buildDetailsJSON(modelKey string, version int, probUp, confidence, ensembleScore float64) string {
	payload := map[string]any{
		"model_key":     modelKey,
		"model_version": version,
		"prob_up":       roundFloat(probUp),
		"confidence":    roundFloat(confidence),
		"target_bars":   s.cfg.TargetBars,
	}
	if modelKey == common.ModelKeyEnsembleV1 {
		payload["ensemble_score"] = roundFloat(ensembleScore)
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func roundFloat(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return math.Round(v*10000) / 10000
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
