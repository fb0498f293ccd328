package macro

import (
	"context"
	"encoding/json"
	"errors"

	"probable-pancake/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/trace"
)

const createMacroTables = `
CREATE TABLE IF NOT EXISTS macro_series_points (
    series_id TEXT        NOT NULL,
    obs_date  TIMESTAMPTZ NOT NULL,
    value     DOUBLE PRECISION NOT NULL,
    PRIMARY KEY (series_id, obs_date)
);

CREATE TABLE IF NOT EXISTS macro_snapshots (
    id           BIGSERIAL PRIMARY KEY,
    bias         TEXT        NOT NULL,
    confidence   TEXT        NOT NULL,
    score        DOUBLE PRECISION NOT NULL,
    answers      JSONB       NOT NULL DEFAULT '{}',
    inputs       JSONB       NOT NULL DEFAULT '{}',
    refreshed_at TIMESTAMPTZ NOT NULL UNIQUE
);

CREATE INDEX IF NOT EXISTS idx_macro_snapshots_refreshed_at
    ON macro_snapshots (refreshed_at DESC);
`

type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Repository struct {
	pool   pool
	tracer trace.Tracer
}

func NewRepository(pool pool, tracer trace.Tracer) *Repository {
	return &Repository{pool: pool, tracer: tracer}
}

func (r *Repository) RunMigrations(ctx context.Context) error {
	_, span := r.tracer.Start(ctx, "macro-repo.run-migrations")
	defer span.End()

	_, err := r.pool.Exec(ctx, createMacroTables)
	return err
}

func (r *Repository) UpsertSeriesPoints(ctx context.Context, points []domain.MacroSeriesPoint) error {
	if len(points) == 0 {
		return nil
	}

	_, span := r.tracer.Start(ctx, "macro-repo.upsert-series-points")
	defer span.End()

	batch := &pgx.Batch{}
	for _, p := range points {
		batch.Queue(
			`INSERT INTO macro_series_points (series_id, obs_date, value)
			 VALUES ($1, $2, $3)
			 ON CONFLICT (series_id, obs_date) DO UPDATE SET value = EXCLUDED.value`,
			p.SeriesID, p.Date.UTC(), p.Value,
		)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range points {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// RecentSeries returns up to limit observations of a series, oldest first.
func (r *Repository) RecentSeries(ctx context.Context, seriesID string, limit int) ([]domain.MacroSeriesPoint, error) {
	_, span := r.tracer.Start(ctx, "macro-repo.recent-series")
	defer span.End()

	rows, err := r.pool.Query(ctx,
		`SELECT series_id, obs_date, value FROM (
		     SELECT series_id, obs_date, value
		     FROM macro_series_points
		     WHERE series_id = $1
		     ORDER BY obs_date DESC
		     LIMIT $2
		 ) sub ORDER BY obs_date ASC`,
		seriesID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []domain.MacroSeriesPoint
	for rows.Next() {
		var p domain.MacroSeriesPoint
		if err := rows.Scan(&p.SeriesID, &p.Date, &p.Value); err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

func (r *Repository) InsertSnapshot(ctx context.Context, snapshot domain.MacroSnapshot) error {
	_, span := r.tracer.Start(ctx, "macro-repo.insert-snapshot")
	defer span.End()

	answers, err := json.Marshal(snapshot.Answers)
	if err != nil {
		return err
	}
	inputs, err := json.Marshal(snapshot.Inputs)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO macro_snapshots (bias, confidence, score, answers, inputs, refreshed_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (refreshed_at) DO UPDATE SET
		     bias = EXCLUDED.bias,
		     confidence = EXCLUDED.confidence,
		     score = EXCLUDED.score,
		     answers = EXCLUDED.answers,
		     inputs = EXCLUDED.inputs`,
		string(snapshot.Bias), string(snapshot.Confidence), snapshot.Score,
		answers, inputs, snapshot.RefreshedAt.UTC(),
	)
	return err
}

// LatestSnapshot returns the most recent stored snapshot, or nil when none
// has been written yet.
func (r *Repository) LatestSnapshot(ctx context.Context) (*domain.MacroSnapshot, error) {
	_, span := r.tracer.Start(ctx, "macro-repo.latest-snapshot")
	defer span.End()

	row := r.pool.QueryRow(ctx,
		`SELECT bias, confidence, score, answers, inputs, refreshed_at
		 FROM macro_snapshots
		 ORDER BY refreshed_at DESC
		 LIMIT 1`,
	)

	var (
		snapshot domain.MacroSnapshot
		bias     string
		conf     string
		answers  []byte
		inputs   []byte
	)
	if err := row.Scan(&bias, &conf, &snapshot.Score, &answers, &inputs, &snapshot.RefreshedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	snapshot.Bias = domain.MacroBias(bias)
	snapshot.Confidence = domain.MacroConfidence(conf)
	if err := json.Unmarshal(answers, &snapshot.Answers); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(inputs, &snapshot.Inputs); err != nil {
		return nil, err
	}
	return &snapshot, nil
}
