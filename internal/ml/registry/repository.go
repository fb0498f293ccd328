package registry

import (
	"context"
	"errors"
	"time"

	"probable-pancake/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/trace"
)

const createModelVersionsTable = `
CREATE TABLE IF NOT EXISTS ml_model_versions (
    id                   BIGSERIAL PRIMARY KEY,
    model_key            TEXT        NOT NULL,
    version              INT         NOT NULL,
    feature_spec_version TEXT        NOT NULL,
    pair                 TEXT        NOT NULL,
    trained_from         TIMESTAMPTZ NOT NULL,
    trained_to           TIMESTAMPTZ NOT NULL,
    trained_at           TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    hyperparams_json     JSONB       NOT NULL DEFAULT '{}',
    metrics_json         JSONB       NOT NULL DEFAULT '{}',
    artifact_format      TEXT        NOT NULL,
    artifact_blob        BYTEA       NOT NULL,
    is_active            BOOLEAN     NOT NULL DEFAULT FALSE,
    activated_at         TIMESTAMPTZ,
    created_at           TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (model_key, pair, version)
);

CREATE INDEX IF NOT EXISTS idx_ml_model_versions_active
    ON ml_model_versions (model_key, pair) WHERE is_active;
`

type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

type Repository struct {
	pool   pool
	tracer trace.Tracer
}

func NewRepository(pool pool, tracer trace.Tracer) *Repository {
	return &Repository{pool: pool, tracer: tracer}
}

func (r *Repository) RunMigrations(ctx context.Context) error {
	_, span := r.tracer.Start(ctx, "ml-model-registry.run-migrations")
	defer span.End()

	_, err := r.pool.Exec(ctx, createModelVersionsTable)
	return err
}

func (r *Repository) NextVersion(ctx context.Context, modelKey, pair string) (int, error) {
	_, span := r.tracer.Start(ctx, "ml-model-registry.next-version")
	defer span.End()

	var version int
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(MAX(version), 0) + 1 FROM ml_model_versions WHERE model_key = $1 AND pair = $2`,
		modelKey, pair,
	).Scan(&version)
	return version, err
}

func (r *Repository) InsertModelVersion(ctx context.Context, model domain.MLModelVersion) (*domain.MLModelVersion, error) {
	_, span := r.tracer.Start(ctx, "ml-model-registry.insert")
	defer span.End()

	if model.ModelKey == "" || model.Pair == "" || model.Version <= 0 {
		return nil, errors.New("invalid model version payload")
	}
	var out domain.MLModelVersion
	err := r.pool.QueryRow(ctx, `
INSERT INTO ml_model_versions (
    model_key, version, feature_spec_version, pair,
    trained_from, trained_to, trained_at,
    hyperparams_json, metrics_json,
    artifact_format, artifact_blob,
    is_active, activated_at
) VALUES (
    $1, $2, $3, $4,
    $5, $6, COALESCE($7, NOW()),
    $8, $9,
    $10, $11,
    $12, $13
)
RETURNING id, model_key, version, feature_spec_version, pair,
          trained_from, trained_to, trained_at,
          hyperparams_json, metrics_json,
          artifact_format, artifact_blob,
          is_active, activated_at, created_at`,
		model.ModelKey,
		model.Version,
		model.FeatureSpecVersion,
		model.Pair,
		model.TrainedFrom.UTC(),
		model.TrainedTo.UTC(),
		nullIfZeroTime(model.TrainedAt),
		fallbackJSON(model.HyperparamsJSON),
		fallbackJSON(model.MetricsJSON),
		model.ArtifactFormat,
		model.ArtifactBlob,
		model.IsActive,
		nullTime(model.ActivatedAt),
	).Scan(
		&out.ID,
		&out.ModelKey,
		&out.Version,
		&out.FeatureSpecVersion,
		&out.Pair,
		&out.TrainedFrom,
		&out.TrainedTo,
		&out.TrainedAt,
		&out.HyperparamsJSON,
		&out.MetricsJSON,
		&out.ArtifactFormat,
		&out.ArtifactBlob,
		&out.IsActive,
		&out.ActivatedAt,
		&out.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	normalizeModelTimes(&out)
	return &out, nil
}

func (r *Repository) GetActiveModel(ctx context.Context, modelKey, pair string) (*domain.MLModelVersion, error) {
	_, span := r.tracer.Start(ctx, "ml-model-registry.get-active")
	defer span.End()

	return r.getOne(ctx, `
SELECT id, model_key, version, feature_spec_version, pair,
       trained_from, trained_to, trained_at,
       hyperparams_json, metrics_json,
       artifact_format, artifact_blob,
       is_active, activated_at, created_at
FROM ml_model_versions
WHERE model_key = $1 AND pair = $2 AND is_active = TRUE
ORDER BY version DESC
LIMIT 1`, modelKey, pair)
}

func (r *Repository) GetLatestModel(ctx context.Context, modelKey, pair string) (*domain.MLModelVersion, error) {
	_, span := r.tracer.Start(ctx, "ml-model-registry.get-latest")
	defer span.End()

	return r.getOne(ctx, `
SELECT id, model_key, version, feature_spec_version, pair,
       trained_from, trained_to, trained_at,
       hyperparams_json, metrics_json,
       artifact_format, artifact_blob,
       is_active, activated_at, created_at
FROM ml_model_versions
WHERE model_key = $1 AND pair = $2
ORDER BY version DESC
LIMIT 1`, modelKey, pair)
}

func (r *Repository) ActivateModel(ctx context.Context, modelKey, pair string, version int) error {
	_, span := r.tracer.Start(ctx, "ml-model-registry.activate")
	defer span.End()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`UPDATE ml_model_versions SET is_active = FALSE, activated_at = NULL WHERE model_key = $1 AND pair = $2`,
		modelKey, pair); err != nil {
		return err
	}
	tag, err := tx.Exec(ctx,
		`UPDATE ml_model_versions SET is_active = TRUE, activated_at = NOW() WHERE model_key = $1 AND pair = $2 AND version = $3`,
		modelKey, pair, version)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return tx.Commit(ctx)
}

func (r *Repository) getOne(ctx context.Context, query string, args ...any) (*domain.MLModelVersion, error) {
	var out domain.MLModelVersion
	err := r.pool.QueryRow(ctx, query, args...).Scan(
		&out.ID,
		&out.ModelKey,
		&out.Version,
		&out.FeatureSpecVersion,
		&out.Pair,
		&out.TrainedFrom,
		&out.TrainedTo,
		&out.TrainedAt,
		&out.HyperparamsJSON,
		&out.MetricsJSON,
		&out.ArtifactFormat,
		&out.ArtifactBlob,
		&out.IsActive,
		&out.ActivatedAt,
		&out.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	normalizeModelTimes(&out)
	return &out, nil
}

func normalizeModelTimes(model *domain.MLModelVersion) {
	model.TrainedFrom = model.TrainedFrom.UTC()
	model.TrainedTo = model.TrainedTo.UTC()
	model.TrainedAt = model.TrainedAt.UTC()
	model.CreatedAt = model.CreatedAt.UTC()
	if model.ActivatedAt != nil {
		t := model.ActivatedAt.UTC()
		model.ActivatedAt = &t
	}
}

func fallbackJSON(v string) string {
	if v == "" {
		return "{}"
	}
	return v
}

func nullIfZeroTime(v time.Time) any {
	if v.IsZero() {
		return nil
	}
	return v.UTC()
}

func nullTime(v *time.Time) any {
	if v == nil || v.IsZero() {
		return nil
	}
	t := v.UTC()
	return t
}
