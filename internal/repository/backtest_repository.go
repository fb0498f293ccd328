package repository

import (
	"context"
	"errors"

	"probable-pancake/internal/domain"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/trace"
)

const createBacktestTables = `
CREATE TABLE IF NOT EXISTS backtest_runs (
    id             BIGSERIAL   PRIMARY KEY,
    pair           TEXT        NOT NULL,
    granularity    TEXT        NOT NULL,
    profile        TEXT        NOT NULL,
    started_at     TIMESTAMPTZ NOT NULL,
    finished_at    TIMESTAMPTZ NOT NULL,
    bar_count      INT         NOT NULL,
    warmup_bars    INT         NOT NULL,
    initial_equity DOUBLE PRECISION NOT NULL,
    config_json    JSONB       NOT NULL DEFAULT '{}',
    total_pnl      DOUBLE PRECISION NOT NULL,
    total_return   DOUBLE PRECISION NOT NULL,
    win_rate       DOUBLE PRECISION NOT NULL,
    profit_factor  DOUBLE PRECISION NOT NULL,
    max_drawdown   DOUBLE PRECISION NOT NULL,
    sharpe_ratio   DOUBLE PRECISION NOT NULL,
    trade_count    INT         NOT NULL,
    win_count      INT         NOT NULL,
    loss_count     INT         NOT NULL,
    final_equity   DOUBLE PRECISION NOT NULL,
    created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS backtest_equity_points (
    run_id    BIGINT      NOT NULL REFERENCES backtest_runs(id) ON DELETE CASCADE,
    bar_time  TIMESTAMPTZ NOT NULL,
    equity    DOUBLE PRECISION NOT NULL,
    PRIMARY KEY (run_id, bar_time)
);
`

type BacktestRepository struct {
	pool   PgxPool
	tracer trace.Tracer
}

func NewBacktestRepository(pool PgxPool, tracer trace.Tracer) *BacktestRepository {
	return &BacktestRepository{pool: pool, tracer: tracer}
}

func (r *BacktestRepository) RunMigrations(ctx context.Context) error {
	_, span := r.tracer.Start(ctx, "backtest-repo.run-migrations")
	defer span.End()

	_, err := r.pool.Exec(ctx, createBacktestTables)
	return err
}

// InsertRun persists the run summary and its equity curve, returning the
// assigned run ID.
func (r *BacktestRepository) InsertRun(ctx context.Context, run domain.BacktestRun, equity []domain.EquityPoint) (int64, error) {
	_, span := r.tracer.Start(ctx, "backtest-repo.insert-run")
	defer span.End()

	configJSON := run.ConfigJSON
	if configJSON == "" {
		configJSON = "{}"
	}

	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO backtest_runs (
		     pair, granularity, profile, started_at, finished_at,
		     bar_count, warmup_bars, initial_equity, config_json,
		     total_pnl, total_return, win_rate, profit_factor, max_drawdown,
		     sharpe_ratio, trade_count, win_count, loss_count, final_equity
		 ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		 RETURNING id`,
		run.Pair, run.Granularity, run.Profile, run.StartedAt.UTC(), run.FinishedAt.UTC(),
		run.BarCount, run.WarmupBars, run.InitialEquity, configJSON,
		run.Stats.TotalPnL, run.Stats.TotalReturn, run.Stats.WinRate, run.Stats.ProfitFactor,
		run.Stats.MaxDrawdown, run.Stats.SharpeRatio, run.Stats.TradeCount,
		run.Stats.WinCount, run.Stats.LossCount, run.Stats.FinalEquity,
	).Scan(&id)
	if err != nil {
		return 0, err
	}

	if len(equity) == 0 {
		return id, nil
	}
	batch := &pgx.Batch{}
	for _, p := range equity {
		batch.Queue(
			`INSERT INTO backtest_equity_points (run_id, bar_time, equity) VALUES ($1, $2, $3)
			 ON CONFLICT (run_id, bar_time) DO UPDATE SET equity = EXCLUDED.equity`,
			id, p.Time.UTC(), p.Equity,
		)
	}
	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range equity {
		if _, err := br.Exec(); err != nil {
			return id, err
		}
	}
	return id, nil
}

func (r *BacktestRepository) ListRuns(ctx context.Context, pair string, limit int) ([]domain.BacktestRun, error) {
	_, span := r.tracer.Start(ctx, "backtest-repo.list-runs")
	defer span.End()

	if limit <= 0 {
		limit = 20
	}
	rows, err := r.pool.Query(ctx,
		`SELECT id, pair, granularity, profile, started_at, finished_at,
		        bar_count, warmup_bars, initial_equity, config_json,
		        total_pnl, total_return, win_rate, profit_factor, max_drawdown,
		        sharpe_ratio, trade_count, win_count, loss_count, final_equity
		 FROM backtest_runs
		 WHERE pair = $1
		 ORDER BY finished_at DESC
		 LIMIT $2`,
		pair, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []domain.BacktestRun
	for rows.Next() {
		run, err := scanBacktestRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

func (r *BacktestRepository) GetRun(ctx context.Context, id int64) (*domain.BacktestRun, error) {
	_, span := r.tracer.Start(ctx, "backtest-repo.get-run")
	defer span.End()

	row := r.pool.QueryRow(ctx,
		`SELECT id, pair, granularity, profile, started_at, finished_at,
		        bar_count, warmup_bars, initial_equity, config_json,
		        total_pnl, total_return, win_rate, profit_factor, max_drawdown,
		        sharpe_ratio, trade_count, win_count, loss_count, final_equity
		 FROM backtest_runs
		 WHERE id = $1`,
		id,
	)
	run, err := scanBacktestRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

func (r *BacktestRepository) EquityCurve(ctx context.Context, runID int64) ([]domain.EquityPoint, error) {
	_, span := r.tracer.Start(ctx, "backtest-repo.equity-curve")
	defer span.End()

	rows, err := r.pool.Query(ctx,
		`SELECT bar_time, equity FROM backtest_equity_points WHERE run_id = $1 ORDER BY bar_time ASC`,
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []domain.EquityPoint
	for rows.Next() {
		var p domain.EquityPoint
		if err := rows.Scan(&p.Time, &p.Equity); err != nil {
			return nil, err
		}
		p.Time = p.Time.UTC()
		points = append(points, p)
	}
	return points, rows.Err()
}

func scanBacktestRun(s rowScanner) (*domain.BacktestRun, error) {
	var run domain.BacktestRun
	if err := s.Scan(
		&run.ID, &run.Pair, &run.Granularity, &run.Profile, &run.StartedAt, &run.FinishedAt,
		&run.BarCount, &run.WarmupBars, &run.InitialEquity, &run.ConfigJSON,
		&run.Stats.TotalPnL, &run.Stats.TotalReturn, &run.Stats.WinRate, &run.Stats.ProfitFactor,
		&run.Stats.MaxDrawdown, &run.Stats.SharpeRatio, &run.Stats.TradeCount,
		&run.Stats.WinCount, &run.Stats.LossCount, &run.Stats.FinalEquity,
	); err != nil {
		return nil, err
	}
	run.StartedAt = run.StartedAt.UTC()
	run.FinishedAt = run.FinishedAt.UTC()
	return &run, nil
}
