package predictions

import (
	"context"
	"encoding/json"
	"time"

	"probable-pancake/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"go.opentelemetry.io/otel/trace"
)

const createPredictionsTable = `
CREATE TABLE IF NOT EXISTS ml_predictions (
    id              BIGSERIAL PRIMARY KEY,
    pair            TEXT        NOT NULL,
    granularity     TEXT        NOT NULL,
    open_time       TIMESTAMPTZ NOT NULL,
    target_time     TIMESTAMPTZ NOT NULL,
    model_key       TEXT        NOT NULL,
    model_version   INT         NOT NULL,
    prob_up         DOUBLE PRECISION NOT NULL,
    confidence      DOUBLE PRECISION NOT NULL,
    direction       TEXT        NOT NULL,
    anomaly_score   DOUBLE PRECISION,
    details_json    JSONB       NOT NULL DEFAULT '{}',
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    resolved_at     TIMESTAMPTZ,
    actual_up       BOOLEAN,
    is_correct      BOOLEAN,
    realized_return DOUBLE PRECISION,
    UNIQUE (pair, granularity, open_time, model_key, model_version)
);

CREATE INDEX IF NOT EXISTS idx_ml_predictions_unresolved
    ON ml_predictions (target_time) WHERE resolved_at IS NULL;
`

type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
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
	_, span := r.tracer.Start(ctx, "ml-predictions.run-migrations")
	defer span.End()

	_, err := r.pool.Exec(ctx, createPredictionsTable)
	return err
}

func (r *Repository) UpsertPrediction(ctx context.Context, prediction domain.MLPrediction) (*domain.MLPrediction, error) {
	_, span := r.tracer.Start(ctx, "ml-predictions.upsert")
	defer span.End()

	details := prediction.DetailsJSON
	if details == "" {
		details = "{}"
	}
	if !json.Valid([]byte(details)) {
		details = `{"raw":"invalid"}`
	}

	row := r.pool.QueryRow(ctx, `
INSERT INTO ml_predictions (
    pair, granularity, open_time, target_time,
    model_key, model_version,
    prob_up, confidence, direction, anomaly_score,
    details_json
) VALUES (
    $1, $2, $3, $4,
    $5, $6,
    $7, $8, $9, $10,
    $11
)
ON CONFLICT (pair, granularity, open_time, model_key, model_version) DO UPDATE SET
    prob_up = EXCLUDED.prob_up,
    confidence = EXCLUDED.confidence,
    direction = EXCLUDED.direction,
    anomaly_score = EXCLUDED.anomaly_score,
    details_json = EXCLUDED.details_json,
    target_time = EXCLUDED.target_time
RETURNING id, pair, granularity, open_time, target_time,
          model_key, model_version,
          prob_up, confidence, direction, anomaly_score,
          details_json,
          created_at, resolved_at, actual_up, is_correct, realized_return`,
		prediction.Pair,
		prediction.Granularity,
		prediction.OpenTime.UTC(),
		prediction.TargetTime.UTC(),
		prediction.ModelKey,
		prediction.ModelVersion,
		prediction.ProbUp,
		prediction.Confidence,
		string(prediction.Direction),
		prediction.AnomalyScore,
		details,
	)
	return scanPredictionRow(row)
}

func (r *Repository) ListRecent(ctx context.Context, pair string, limit int) ([]domain.MLPrediction, error) {
	_, span := r.tracer.Start(ctx, "ml-predictions.list-recent")
	defer span.End()

	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
SELECT id, pair, granularity, open_time, target_time,
       model_key, model_version,
       prob_up, confidence, direction, anomaly_score,
       details_json,
       created_at, resolved_at, actual_up, is_correct, realized_return
FROM ml_predictions
WHERE pair = $1
ORDER BY open_time DESC, model_key ASC
LIMIT $2`, pair, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.MLPrediction, 0, limit)
	for rows.Next() {
		p, err := scanPredictionRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (r *Repository) ListUnresolvedDue(ctx context.Context, cutoff time.Time, limit int) ([]domain.MLPrediction, error) {
	_, span := r.tracer.Start(ctx, "ml-predictions.list-unresolved-due")
	defer span.End()

	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `
SELECT id, pair, granularity, open_time, target_time,
       model_key, model_version,
       prob_up, confidence, direction, anomaly_score,
       details_json,
       created_at, resolved_at, actual_up, is_correct, realized_return
FROM ml_predictions
WHERE resolved_at IS NULL
  AND target_time <= $1
ORDER BY target_time ASC
LIMIT $2`, cutoff.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.MLPrediction, 0, limit)
	for rows.Next() {
		p, err := scanPredictionRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (r *Repository) ResolvePrediction(ctx context.Context, predictionID int64, actualUp bool, isCorrect bool, realizedReturn float64) error {
	_, span := r.tracer.Start(ctx, "ml-predictions.resolve")
	defer span.End()

	tag, err := r.pool.Exec(ctx, `
UPDATE ml_predictions
SET resolved_at = NOW(),
    actual_up = $2,
    is_correct = $3,
    realized_return = $4
WHERE id = $1
  AND resolved_at IS NULL`, predictionID, actualUp, isCorrect, realizedReturn)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPredictionRow(s scanner) (*domain.MLPrediction, error) {
	var out domain.MLPrediction
	var direction string
	var anomalyScore pgtype.Float8
	var resolvedAt pgtype.Timestamptz
	var actualUp pgtype.Bool
	var isCorrect pgtype.Bool
	var realizedReturn pgtype.Float8

	if err := s.Scan(
		&out.ID,
		&out.Pair,
		&out.Granularity,
		&out.OpenTime,
		&out.TargetTime,
		&out.ModelKey,
		&out.ModelVersion,
		&out.ProbUp,
		&out.Confidence,
		&direction,
		&anomalyScore,
		&out.DetailsJSON,
		&out.CreatedAt,
		&resolvedAt,
		&actualUp,
		&isCorrect,
		&realizedReturn,
	); err != nil {
		return nil, err
	}
	out.Direction = domain.Direction(direction)
	out.OpenTime = out.OpenTime.UTC()
	out.TargetTime = out.TargetTime.UTC()
	out.CreatedAt = out.CreatedAt.UTC()

	if anomalyScore.Valid {
		v := anomalyScore.Float64
		out.AnomalyScore = &v
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time.UTC()
		out.ResolvedAt = &t
	}
	if actualUp.Valid {
		v := actualUp.Bool
		out.ActualUp = &v
	}
	if isCorrect.Valid {
		v := isCorrect.Bool
		out.IsCorrect = &v
	}
	if realizedReturn.Valid {
		v := realizedReturn.Float64
		out.RealizedReturn = &v
	}
	return &out, nil
}
