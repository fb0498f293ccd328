package dataset

import (
	"testing"
	"time"

	"probable-pancake/internal/domain"

	"github.com/parquet-go/parquet-go"
)

func TestExportParquetRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	started := time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)
	run := domain.BacktestRun{
		Pair:        "USD_JPY",
		Granularity: "M15",
		StartedAt:   started,
	}
	trades := []domain.TradeRecord{
		{
			Pair:       "USD_JPY",
			Direction:  domain.DirectionBuy,
			EntryTime:  started,
			ExitTime:   started.Add(2 * time.Hour),
			EntryPrice: 150.10,
			ExitPrice:  150.70,
			Units:      1000,
			PnL:        600,
			ExitReason: domain.ExitTakeProfit,
		},
	}
	equity := []domain.EquityPoint{
		{Time: started, Equity: 10000},
		{Time: started.Add(15 * time.Minute), Equity: 10600},
	}

	tradesPath, equityPath, err := ExportParquet(dir, run, trades, equity)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	gotTrades, err := parquet.ReadFile[tradeRow](tradesPath)
	if err != nil {
		t.Fatalf("read trades parquet: %v", err)
	}
	if len(gotTrades) != 1 {
		t.Fatalf("expected 1 trade row, got %d", len(gotTrades))
	}
	if gotTrades[0].Direction != string(domain.DirectionBuy) || gotTrades[0].PnL != 600 {
		t.Fatalf("unexpected trade row: %+v", gotTrades[0])
	}

	gotEquity, err := parquet.ReadFile[equityRow](equityPath)
	if err != nil {
		t.Fatalf("read equity parquet: %v", err)
	}
	if len(gotEquity) != 2 {
		t.Fatalf("expected 2 equity rows, got %d", len(gotEquity))
	}
	if gotEquity[1].Equity != 10600 {
		t.Fatalf("unexpected equity row: %+v", gotEquity[1])
	}
}
