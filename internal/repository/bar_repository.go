package repository

import (
	"context"
	"errors"
	"time"

	"probable-pancake/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/trace"
)

const createBarsTable = `
CREATE TABLE IF NOT EXISTS bars (
    pair        TEXT        NOT NULL,
    granularity TEXT        NOT NULL,
    open_time   TIMESTAMPTZ NOT NULL,
    open        DOUBLE PRECISION NOT NULL,
    high        DOUBLE PRECISION NOT NULL,
    low         DOUBLE PRECISION NOT NULL,
    close       DOUBLE PRECISION NOT NULL,
    volume      DOUBLE PRECISION NOT NULL,
    PRIMARY KEY (pair, granularity, open_time)
);

CREATE INDEX IF NOT EXISTS idx_bars_pair_granularity_time
    ON bars (pair, granularity, open_time DESC);
`

type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type BarRepository struct {
	pool   PgxPool
	tracer trace.Tracer
}

func NewBarRepository(pool PgxPool, tracer trace.Tracer) *BarRepository {
	return &BarRepository{pool: pool, tracer: tracer}
}

func (r *BarRepository) RunMigrations(ctx context.Context) error {
	_, span := r.tracer.Start(ctx, "bar-repo.run-migrations")
	defer span.End()

	_, err := r.pool.Exec(ctx, createBarsTable)
	return err
}

func (r *BarRepository) UpsertBars(ctx context.Context, bars []domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	_, span := r.tracer.Start(ctx, "bar-repo.upsert-bars")
	defer span.End()

	batch := &pgx.Batch{}
	for _, b := range bars {
		batch.Queue(
			`INSERT INTO bars (pair, granularity, open_time, open, high, low, close, volume)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 ON CONFLICT (pair, granularity, open_time) DO UPDATE SET
			     open = EXCLUDED.open,
			     high = EXCLUDED.high,
			     low = EXCLUDED.low,
			     close = EXCLUDED.close,
			     volume = EXCLUDED.volume`,
			b.Pair, b.Granularity, b.OpenTime.UTC(), b.Open, b.High, b.Low, b.Close, b.Volume,
		)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range bars {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// GetBars returns the most recent bars, oldest first, ready for the
// indicator engine.
func (r *BarRepository) GetBars(ctx context.Context, pair, granularity string, limit int) ([]domain.Bar, error) {
	_, span := r.tracer.Start(ctx, "bar-repo.get-bars")
	defer span.End()

	rows, err := r.pool.Query(ctx,
		`SELECT pair, granularity, open_time, open, high, low, close, volume
		 FROM (
		     SELECT pair, granularity, open_time, open, high, low, close, volume
		     FROM bars
		     WHERE pair = $1 AND granularity = $2
		     ORDER BY open_time DESC
		     LIMIT $3
		 ) recent
		 ORDER BY open_time ASC`,
		pair, granularity, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanBars(rows)
}

func (r *BarRepository) GetBarsInRange(ctx context.Context, pair, granularity string, from, to time.Time) ([]domain.Bar, error) {
	_, span := r.tracer.Start(ctx, "bar-repo.get-bars-in-range")
	defer span.End()

	rows, err := r.pool.Query(ctx,
		`SELECT pair, granularity, open_time, open, high, low, close, volume
		 FROM bars
		 WHERE pair = $1 AND granularity = $2 AND open_time >= $3 AND open_time <= $4
		 ORDER BY open_time ASC`,
		pair, granularity, from.UTC(), to.UTC(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanBars(rows)
}

// LatestOpenTime returns the zero time when no bars are stored yet.
func (r *BarRepository) LatestOpenTime(ctx context.Context, pair, granularity string) (time.Time, error) {
	_, span := r.tracer.Start(ctx, "bar-repo.latest-open-time")
	defer span.End()

	var ts time.Time
	err := r.pool.QueryRow(ctx,
		`SELECT open_time FROM bars WHERE pair = $1 AND granularity = $2 ORDER BY open_time DESC LIMIT 1`,
		pair, granularity,
	).Scan(&ts)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return ts.UTC(), nil
}

func scanBars(rows pgx.Rows) ([]domain.Bar, error) {
	var bars []domain.Bar
	for rows.Next() {
		var b domain.Bar
		if err := rows.Scan(&b.Pair, &b.Granularity, &b.OpenTime, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, err
		}
		b.OpenTime = b.OpenTime.UTC()
		bars = append(bars, b)
	}
	return bars, rows.Err()
}
