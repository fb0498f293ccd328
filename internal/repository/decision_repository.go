package repository

import (
	"context"
	"encoding/json"
	"errors"

	"probable-pancake/internal/domain"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/trace"
)

const createDecisionsTable = `
CREATE TABLE IF NOT EXISTS decisions (
    id          BIGSERIAL   PRIMARY KEY,
    pair        TEXT        NOT NULL,
    decided_at  TIMESTAMPTZ NOT NULL,
    action      TEXT        NOT NULL,
    entry       DOUBLE PRECISION NOT NULL DEFAULT 0,
    stop        DOUBLE PRECISION NOT NULL DEFAULT 0,
    target      DOUBLE PRECISION NOT NULL DEFAULT 0,
    confluence  INT         NOT NULL DEFAULT 0,
    grade       TEXT        NOT NULL DEFAULT '',
    factors     JSONB       NOT NULL DEFAULT '[]',
    reason      TEXT        NOT NULL DEFAULT '',
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (pair, decided_at)
);

CREATE INDEX IF NOT EXISTS idx_decisions_pair_decided_at
    ON decisions (pair, decided_at DESC);
`

type DecisionRepository struct {
	pool   PgxPool
	tracer trace.Tracer
}

func NewDecisionRepository(pool PgxPool, tracer trace.Tracer) *DecisionRepository {
	return &DecisionRepository{pool: pool, tracer: tracer}
}

func (r *DecisionRepository) RunMigrations(ctx context.Context) error {
	_, span := r.tracer.Start(ctx, "decision-repo.run-migrations")
	defer span.End()

	_, err := r.pool.Exec(ctx, createDecisionsTable)
	return err
}

func (r *DecisionRepository) InsertDecision(ctx context.Context, d domain.Decision) error {
	_, span := r.tracer.Start(ctx, "decision-repo.insert-decision")
	defer span.End()

	factors, err := json.Marshal(d.Factors)
	if err != nil {
		factors = []byte("[]")
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO decisions (pair, decided_at, action, entry, stop, target, confluence, grade, factors, reason)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (pair, decided_at) DO UPDATE SET
		     action = EXCLUDED.action,
		     entry = EXCLUDED.entry,
		     stop = EXCLUDED.stop,
		     target = EXCLUDED.target,
		     confluence = EXCLUDED.confluence,
		     grade = EXCLUDED.grade,
		     factors = EXCLUDED.factors,
		     reason = EXCLUDED.reason`,
		d.Pair, d.Time.UTC(), string(d.Action), d.Entry, d.Stop, d.Target,
		d.Confluence, string(d.Grade), factors, d.Reason,
	)
	return err
}

func (r *DecisionRepository) LatestDecision(ctx context.Context, pair string) (*domain.Decision, error) {
	_, span := r.tracer.Start(ctx, "decision-repo.latest-decision")
	defer span.End()

	row := r.pool.QueryRow(ctx,
		`SELECT pair, decided_at, action, entry, stop, target, confluence, grade, factors, reason
		 FROM decisions
		 WHERE pair = $1
		 ORDER BY decided_at DESC
		 LIMIT 1`,
		pair,
	)
	d, err := scanDecision(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (r *DecisionRepository) RecentDecisions(ctx context.Context, pair string, limit int) ([]domain.Decision, error) {
	_, span := r.tracer.Start(ctx, "decision-repo.recent-decisions")
	defer span.End()

	if limit <= 0 {
		limit = 20
	}
	rows, err := r.pool.Query(ctx,
		`SELECT pair, decided_at, action, entry, stop, target, confluence, grade, factors, reason
		 FROM decisions
		 WHERE pair = $1
		 ORDER BY decided_at DESC
		 LIMIT $2`,
		pair, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var decisions []domain.Decision
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, err
		}
		decisions = append(decisions, *d)
	}
	return decisions, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDecision(s rowScanner) (*domain.Decision, error) {
	var d domain.Decision
	var action, grade string
	var factors []byte
	if err := s.Scan(&d.Pair, &d.Time, &action, &d.Entry, &d.Stop, &d.Target,
		&d.Confluence, &grade, &factors, &d.Reason); err != nil {
		return nil, err
	}
	d.Action = domain.Direction(action)
	d.Grade = domain.Grade(grade)
	d.Time = d.Time.UTC()
	if len(factors) > 0 {
		_ = json.Unmarshal(factors, &d.Factors)
	}
	return &d, nil
}
