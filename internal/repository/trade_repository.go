package repository

import (
	"context"
	"time"

	"probable-pancake/internal/domain"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/trace"
)

const createTradesTable = `
CREATE TABLE IF NOT EXISTS trades (
    id          BIGSERIAL   PRIMARY KEY,
    pair        TEXT        NOT NULL,
    direction   TEXT        NOT NULL,
    entry_time  TIMESTAMPTZ NOT NULL,
    exit_time   TIMESTAMPTZ NOT NULL,
    entry_price DOUBLE PRECISION NOT NULL,
    exit_price  DOUBLE PRECISION NOT NULL,
    units       DOUBLE PRECISION NOT NULL,
    pnl         DOUBLE PRECISION NOT NULL,
    exit_reason TEXT        NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_trades_pair_exit_time
    ON trades (pair, exit_time DESC);
`

type TradeRepository struct {
	pool   PgxPool
	tracer trace.Tracer
}

func NewTradeRepository(pool PgxPool, tracer trace.Tracer) *TradeRepository {
	return &TradeRepository{pool: pool, tracer: tracer}
}

func (r *TradeRepository) RunMigrations(ctx context.Context) error {
	_, span := r.tracer.Start(ctx, "trade-repo.run-migrations")
	defer span.End()

	_, err := r.pool.Exec(ctx, createTradesTable)
	return err
}

func (r *TradeRepository) InsertTrade(ctx context.Context, t domain.TradeRecord) (int64, error) {
	_, span := r.tracer.Start(ctx, "trade-repo.insert-trade")
	defer span.End()

	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO trades (pair, direction, entry_time, exit_time, entry_price, exit_price, units, pnl, exit_reason)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id`,
		t.Pair, string(t.Direction), t.EntryTime.UTC(), t.ExitTime.UTC(),
		t.EntryPrice, t.ExitPrice, t.Units, t.PnL, t.ExitReason,
	).Scan(&id)
	return id, err
}

func (r *TradeRepository) RecentTrades(ctx context.Context, pair string, limit int) ([]domain.TradeRecord, error) {
	_, span := r.tracer.Start(ctx, "trade-repo.recent-trades")
	defer span.End()

	if limit <= 0 {
		limit = 20
	}
	rows, err := r.pool.Query(ctx,
		`SELECT id, pair, direction, entry_time, exit_time, entry_price, exit_price, units, pnl, exit_reason
		 FROM trades
		 WHERE pair = $1
		 ORDER BY exit_time DESC
		 LIMIT $2`,
		pair, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTrades(rows)
}

func (r *TradeRepository) TradesInRange(ctx context.Context, pair string, from, to time.Time) ([]domain.TradeRecord, error) {
	_, span := r.tracer.Start(ctx, "trade-repo.trades-in-range")
	defer span.End()

	rows, err := r.pool.Query(ctx,
		`SELECT id, pair, direction, entry_time, exit_time, entry_price, exit_price, units, pnl, exit_reason
		 FROM trades
		 WHERE pair = $1 AND exit_time >= $2 AND exit_time <= $3
		 ORDER BY exit_time ASC`,
		pair, from.UTC(), to.UTC(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTrades(rows)
}

func scanTrades(rows pgx.Rows) ([]domain.TradeRecord, error) {
	var trades []domain.TradeRecord
	for rows.Next() {
		var t domain.TradeRecord
		var direction string
		if err := rows.Scan(&t.ID, &t.Pair, &direction, &t.EntryTime, &t.ExitTime,
			&t.EntryPrice, &t.ExitPrice, &t.Units, &t.PnL, &t.ExitReason); err != nil {
			return nil, err
		}
		t.Direction = domain.Direction(direction)
		t.EntryTime = t.EntryTime.UTC()
		t.ExitTime = t.ExitTime.UTC()
		trades = append(trades, t)
	}
	return trades, rows.Err()
}
