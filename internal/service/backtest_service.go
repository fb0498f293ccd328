package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"probable-pancake/internal/backtest"
	"probable-pancake/internal/dataset"
	"probable-pancake/internal/domain"

	"go.opentelemetry.io/otel/trace"
)

type BacktestStore interface {
	InsertRun(ctx context.Context, run domain.BacktestRun, equity []domain.EquityPoint) (int64, error)
	ListRuns(ctx context.Context, pair string, limit int) ([]domain.BacktestRun, error)
	GetRun(ctx context.Context, id int64) (*domain.BacktestRun, error)
	EquityCurve(ctx context.Context, runID int64) ([]domain.EquityPoint, error)
}

// BacktestRequest selects the bar source and output options for one run.
// Exactly one of CSVPath or the stored-bar range is used: a non-empty
// CSVPath wins.
type BacktestRequest struct {
	CSVPath    string
	From       time.Time
	To         time.Time
	Persist    bool
	ParquetDir string
}

// BacktestReport bundles the replay result with persistence outcomes.
type BacktestReport struct {
	Run            domain.BacktestRun
	Trades         []domain.TradeRecord
	Equity         []domain.EquityPoint
	Warnings       []string
	TradesParquet  string
	EquityCurveOut string
}

// BacktestService runs replays over stored or CSV bars and persists runs.
type BacktestService struct {
	tracer trace.Tracer
	market *MarketDataService
	repo   BacktestStore
	cfg    backtest.Config
}

func NewBacktestService(
	tracer trace.Tracer,
	market *MarketDataService,
	repo BacktestStore,
	cfg backtest.Config,
) *BacktestService {
	return &BacktestService{
		tracer: tracer,
		market: market,
		repo:   repo,
		cfg:    cfg,
	}
}

// Run loads bars per the request, replays them, and optionally persists
// the run and exports parquet artifacts.
func (s *BacktestService) Run(ctx context.Context, req BacktestRequest) (*BacktestReport, error) {
	ctx, span := s.tracer.Start(ctx, "backtest-service.run")
	defer span.End()

	startedAt := time.Now().UTC()
	bars, warnings, err := s.loadBars(ctx, req)
	if err != nil {
		return nil, err
	}

	result, err := backtest.New(s.cfg).Run(bars)
	if err != nil {
		return nil, err
	}

	run := domain.BacktestRun{
		Pair:          result.Pair,
		Granularity:   result.Granularity,
		Profile:       result.Profile,
		StartedAt:     startedAt,
		FinishedAt:    time.Now().UTC(),
		BarCount:      result.BarCount,
		WarmupBars:    result.WarmupBars,
		InitialEquity: result.InitialEquity,
		ConfigJSON:    s.configJSON(),
		Stats:         result.Stats,
	}

	report := &BacktestReport{
		Run:      run,
		Trades:   result.Trades,
		Equity:   result.Equity,
		Warnings: warnings,
	}

	if req.Persist && s.repo != nil {
		id, err := s.repo.InsertRun(ctx, run, result.Equity)
		if err != nil {
			return nil, fmt.Errorf("persist run: %w", err)
		}
		report.Run.ID = id
	}

	if req.ParquetDir != "" {
		tradesPath, equityPath, err := dataset.ExportParquet(req.ParquetDir, report.Run, result.Trades, result.Equity)
		if err != nil {
			log.Printf("backtest: parquet export: %v", err)
		} else {
			report.TradesParquet = tradesPath
			report.EquityCurveOut = equityPath
		}
	}

	return report, nil
}

func (s *BacktestService) ListRuns(ctx context.Context, pair string, limit int) ([]domain.BacktestRun, error) {
	return s.repo.ListRuns(ctx, pair, limit)
}

func (s *BacktestService) GetRun(ctx context.Context, id int64) (*domain.BacktestRun, error) {
	return s.repo.GetRun(ctx, id)
}

func (s *BacktestService) EquityCurve(ctx context.Context, runID int64) ([]domain.EquityPoint, error) {
	return s.repo.EquityCurve(ctx, runID)
}

func (s *BacktestService) loadBars(ctx context.Context, req BacktestRequest) ([]domain.Bar, []string, error) {
	if req.CSVPath != "" {
		res, err := dataset.LoadCSV(req.CSVPath, s.cfg.Pair, s.cfg.Granularity)
		if err != nil {
			return nil, nil, fmt.Errorf("load csv: %w", err)
		}
		for _, w := range res.Warnings {
			log.Printf("backtest: dataset: %s", w)
		}
		return res.Bars, res.Warnings, nil
	}

	if s.market == nil {
		return nil, nil, fmt.Errorf("no bar source: csv path empty and no market data store")
	}
	from, to := req.From, req.To
	if to.IsZero() {
		to = time.Now().UTC()
	}
	if from.IsZero() {
		bars, err := s.market.GetBars(ctx, 20000)
		return bars, nil, err
	}
	bars, err := s.market.GetBarsInRange(ctx, from, to)
	return bars, nil, err
}

func (s *BacktestService) configJSON() string {
	data, err := json.Marshal(s.cfg)
	if err != nil {
		return ""
	}
	return string(data)
}
