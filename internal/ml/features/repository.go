package features

import (
	"context"
	"time"

	"probable-pancake/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"go.opentelemetry.io/otel/trace"
)

const createFeatureTable = `
CREATE TABLE IF NOT EXISTS ml_feature_rows (
    pair          TEXT        NOT NULL,
    granularity   TEXT        NOT NULL,
    open_time     TIMESTAMPTZ NOT NULL,
    ret_1         DOUBLE PRECISION NOT NULL,
    ret_4         DOUBLE PRECISION NOT NULL,
    ret_16        DOUBLE PRECISION NOT NULL,
    ret_96        DOUBLE PRECISION NOT NULL,
    volatility_24 DOUBLE PRECISION NOT NULL,
    volatility_96 DOUBLE PRECISION NOT NULL,
    volume_z_96   DOUBLE PRECISION NOT NULL,
    rsi_14        DOUBLE PRECISION NOT NULL,
    macd_line     DOUBLE PRECISION NOT NULL,
    macd_signal   DOUBLE PRECISION NOT NULL,
    macd_hist     DOUBLE PRECISION NOT NULL,
    bb_pos        DOUBLE PRECISION NOT NULL,
    bb_width      DOUBLE PRECISION NOT NULL,
    atr_ratio     DOUBLE PRECISION NOT NULL,
    adx_14        DOUBLE PRECISION NOT NULL,
    target_up     BOOLEAN,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (pair, granularity, open_time)
);
`

type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type Repository struct {
	pool   pool
	tracer trace.Tracer
}

func NewRepository(pool pool, tracer trace.Tracer) *Repository {
	return &Repository{pool: pool, tracer: tracer}
}

func (r *Repository) RunMigrations(ctx context.Context) error {
	_, span := r.tracer.Start(ctx, "ml-feature-repo.run-migrations")
	defer span.End()

	_, err := r.pool.Exec(ctx, createFeatureTable)
	return err
}

func (r *Repository) UpsertRows(ctx context.Context, rows []domain.MLFeatureRow) error {
	if len(rows) == 0 {
		return nil
	}
	_, span := r.tracer.Start(ctx, "ml-feature-repo.upsert")
	defer span.End()

	for i := range rows {
		row := rows[i]
		_, err := r.pool.Exec(ctx, `
INSERT INTO ml_feature_rows (
    pair, granularity, open_time,
    ret_1, ret_4, ret_16, ret_96,
    volatility_24, volatility_96, volume_z_96,
    rsi_14, macd_line, macd_signal, macd_hist,
    bb_pos, bb_width, atr_ratio, adx_14,
    target_up, updated_at
) VALUES (
    $1, $2, $3,
    $4, $5, $6, $7,
    $8, $9, $10,
    $11, $12, $13, $14,
    $15, $16, $17, $18,
    $19, NOW()
)
ON CONFLICT (pair, granularity, open_time) DO UPDATE SET
    ret_1 = EXCLUDED.ret_1,
    ret_4 = EXCLUDED.ret_4,
    ret_16 = EXCLUDED.ret_16,
    ret_96 = EXCLUDED.ret_96,
    volatility_24 = EXCLUDED.volatility_24,
    volatility_96 = EXCLUDED.volatility_96,
    volume_z_96 = EXCLUDED.volume_z_96,
    rsi_14 = EXCLUDED.rsi_14,
    macd_line = EXCLUDED.macd_line,
    macd_signal = EXCLUDED.macd_signal,
    macd_hist = EXCLUDED.macd_hist,
    bb_pos = EXCLUDED.bb_pos,
    bb_width = EXCLUDED.bb_width,
    atr_ratio = EXCLUDED.atr_ratio,
    adx_14 = EXCLUDED.adx_14,
    target_up = COALESCE(EXCLUDED.target_up, ml_feature_rows.target_up),
    updated_at = NOW()`,
			row.Pair,
			row.Granularity,
			row.OpenTime.UTC(),
			row.Ret1,
			row.Ret4,
			row.Ret16,
			row.Ret96,
			row.Volatility24,
			row.Volatility96,
			row.VolumeZ96,
			row.RSI14,
			row.MACDLine,
			row.MACDSignal,
			row.MACDHist,
			row.BBPos,
			row.BBWidth,
			row.ATRRatio,
			row.ADX14,
			row.TargetUp,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) ListLabeledRows(ctx context.Context, pair, granularity string, from, to time.Time) ([]domain.MLFeatureRow, error) {
	_, span := r.tracer.Start(ctx, "ml-feature-repo.list-labeled")
	defer span.End()

	rows, err := r.pool.Query(ctx, `
SELECT pair, granularity, open_time,
       ret_1, ret_4, ret_16, ret_96,
       volatility_24, volatility_96, volume_z_96,
       rsi_14, macd_line, macd_signal, macd_hist,
       bb_pos, bb_width, atr_ratio, adx_14,
       target_up, created_at, updated_at
FROM ml_feature_rows
WHERE pair = $1
  AND granularity = $2
  AND open_time >= $3
  AND open_time <= $4
  AND target_up IS NOT NULL
ORDER BY open_time ASC`, pair, granularity, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanFeatureRows(rows)
}

func (r *Repository) ListRows(ctx context.Context, pair, granularity string, from, to time.Time) ([]domain.MLFeatureRow, error) {
	_, span := r.tracer.Start(ctx, "ml-feature-repo.list")
	defer span.End()

	rows, err := r.pool.Query(ctx, `
SELECT pair, granularity, open_time,
       ret_1, ret_4, ret_16, ret_96,
       volatility_24, volatility_96, volume_z_96,
       rsi_14, macd_line, macd_signal, macd_hist,
       bb_pos, bb_width, atr_ratio, adx_14,
       target_up, created_at, updated_at
FROM ml_feature_rows
WHERE pair = $1
  AND granularity = $2
  AND open_time >= $3
  AND open_time <= $4
ORDER BY open_time ASC`, pair, granularity, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanFeatureRows(rows)
}

// LatestRow returns the newest feature row for the pair, nil when the table
// is still empty.
func (r *Repository) LatestRow(ctx context.Context, pair, granularity string) (*domain.MLFeatureRow, error) {
	_, span := r.tracer.Start(ctx, "ml-feature-repo.latest")
	defer span.End()

	rows, err := r.pool.Query(ctx, `
SELECT pair, granularity, open_time,
       ret_1, ret_4, ret_16, ret_96,
       volatility_24, volatility_96, volume_z_96,
       rsi_14, macd_line, macd_signal, macd_hist,
       bb_pos, bb_width, atr_ratio, adx_14,
       target_up, created_at, updated_at
FROM ml_feature_rows
WHERE pair = $1 AND granularity = $2
ORDER BY open_time DESC
LIMIT 1`, pair, granularity)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out, err := scanFeatureRows(rows)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return &out[0], nil
}

func scanFeatureRows(rows pgx.Rows) ([]domain.MLFeatureRow, error) {
	result := make([]domain.MLFeatureRow, 0)
	for rows.Next() {
		var row domain.MLFeatureRow
		var target pgtype.Bool
		if err := rows.Scan(
			&row.Pair,
			&row.Granularity,
			&row.OpenTime,
			&row.Ret1,
			&row.Ret4,
			&row.Ret16,
			&row.Ret96,
			&row.Volatility24,
			&row.Volatility96,
			&row.VolumeZ96,
			&row.RSI14,
			&row.MACDLine,
			&row.MACDSignal,
			&row.MACDHist,
			&row.BBPos,
			&row.BBWidth,
			&row.ATRRatio,
			&row.ADX14,
			&target,
			&row.CreatedAt,
			&row.UpdatedAt,
		); err != nil {
			return nil, err
		}
		row.OpenTime = row.OpenTime.UTC()
		row.CreatedAt = row.CreatedAt.UTC()
		row.UpdatedAt = row.UpdatedAt.UTC()
		if target.Valid {
			v := target.Bool
			row.TargetUp = &v
		}
		result = append(result, row)
	}
	return result, rows.Err()
}
