package handler

import (
	"context"
	"strconv"
	"time"

	"probable-pancake/internal/domain"
	"probable-pancake/internal/ml/training"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
)

type StatusReporter interface {
	Status(ctx context.Context) domain.StatusSnapshot
}

type DecisionReader interface {
	LatestDecision(ctx context.Context, pair string) (*domain.Decision, error)
	RecentDecisions(ctx context.Context, pair string, limit int) ([]domain.Decision, error)
}

type TradeReader interface {
	RecentTrades(ctx context.Context, pair string, limit int) ([]domain.TradeRecord, error)
}

type BacktestReader interface {
	ListRuns(ctx context.Context, pair string, limit int) ([]domain.BacktestRun, error)
	GetRun(ctx context.Context, id int64) (*domain.BacktestRun, error)
	EquityCurve(ctx context.Context, runID int64) ([]domain.EquityPoint, error)
}

type BarReader interface {
	GetBars(ctx context.Context, limit int) ([]domain.Bar, error)
}

type MacroSnapshotReader interface {
	Snapshot(ctx context.Context, now time.Time) (*domain.MacroSnapshot, error)
}

type PredictionReader interface {
	Predictions(ctx context.Context, limit int) ([]domain.MLPrediction, error)
}

type MLTrainingRunner interface {
	RunTraining(ctx context.Context, now time.Time) ([]training.ModelTrainResult, error)
}

type Handler struct {
	tracer    trace.Tracer
	pair      string
	status    StatusReporter
	decisions DecisionReader
	trades    TradeReader
	backtests BacktestReader
	bars      BarReader
	macro     MacroSnapshotReader

	predictions PredictionReader
	mlTrainer   MLTrainingRunner
	apiKey      string
}

func New(
	tracer trace.Tracer,
	pair string,
	status StatusReporter,
	decisions DecisionReader,
	trades TradeReader,
	backtests BacktestReader,
	bars BarReader,
	macro MacroSnapshotReader,
) *Handler {
	if pair == "" {
		pair = domain.DefaultPair
	}
	return &Handler{
		tracer:    tracer,
		pair:      pair,
		status:    status,
		decisions: decisions,
		trades:    trades,
		backtests: backtests,
		bars:      bars,
		macro:     macro,
	}
}

// SetPredictionReader enables the ML prediction endpoints.
func (h *Handler) SetPredictionReader(r PredictionReader) { h.predictions = r }

// SetMLTrainingRunner enables the manual training trigger.
func (h *Handler) SetMLTrainingRunner(r MLTrainingRunner) { h.mlTrainer = r }

// SetAPIKey guards the /api group with X-API-Key auth. An empty key leaves
// the API open.
func (h *Handler) SetAPIKey(key string) { h.apiKey = key }

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.Health)

	api := r.Group("/api")
	api.Use(APIKeyAuth(h.apiKey))
	api.GET("/status", h.GetStatus)
	api.GET("/decisions", h.GetDecisions)
	api.GET("/decisions/latest", h.GetLatestDecision)
	api.GET("/trades", h.GetTrades)
	api.GET("/bars", h.GetBars)
	api.GET("/macro", h.GetMacroSnapshot)
	api.GET("/backtests", h.ListBacktests)
	api.GET("/backtests/:id", h.GetBacktest)
	api.GET("/backtests/:id/equity", h.GetBacktestEquity)
	api.GET("/ml/predictions", h.GetMLPredictions)
	api.POST("/ml/train", h.TriggerMLTraining)
}

// limitQuery parses a bounded ?limit= value.
func limitQuery(c *gin.Context, def, max int) int {
	limit := def
	if l := c.Query("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= max {
			limit = n
		}
	}
	return limit
}
