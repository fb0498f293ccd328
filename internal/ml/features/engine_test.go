package features

import (
	"math"
	"testing"
	"time"

	"probable-pancake/internal/domain"
)

func TestEngineBuildRowsDeterministic(t *testing.T) {
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	engine := NewEngine(func() time.Time { return now })
	bars := makeBars(200)

	rowsA := engine.BuildRows(bars, 16)
	rowsB := engine.BuildRows(bars, 16)
	if len(rowsA) == 0 {
		t.Fatal("expected non-empty feature rows")
	}
	if len(rowsA) != len(rowsB) {
		t.Fatalf("expected deterministic row count, got %d vs %d", len(rowsA), len(rowsB))
	}
	if rowsA[0].Ret1 != rowsB[0].Ret1 || rowsA[0].RSI14 != rowsB[0].RSI14 {
		t.Fatalf("expected deterministic features, got %+v vs %+v", rowsA[0], rowsB[0])
	}
	if !rowsA[0].CreatedAt.Equal(now) {
		t.Fatalf("expected created_at from injected clock, got %s", rowsA[0].CreatedAt)
	}

	hasLabeled := false
	hasUnlabeled := false
	for _, row := range rowsA {
		if row.TargetUp != nil {
			hasLabeled = true
		} else {
			hasUnlabeled = true
		}
	}
	if !hasLabeled || !hasUnlabeled {
		t.Fatalf("expected both labeled and unlabeled rows, got labeled=%v unlabeled=%v", hasLabeled, hasUnlabeled)
	}
}

func TestEngineBuildRowsLabelsUptrend(t *testing.T) {
	engine := NewEngine(nil)
	rows := engine.BuildRows(makeBars(200), 16)
	for _, row := range rows {
		if row.TargetUp != nil && !*row.TargetUp {
			t.Fatalf("monotone uptrend should label every row up, got %+v", row)
		}
		if row.Pair != domain.DefaultPair || row.Granularity != domain.DefaultGranularity {
			t.Fatalf("expected pair and granularity carried through, got %+v", row)
		}
		if math.IsNaN(row.ATRRatio) || math.IsNaN(row.ADX14) {
			t.Fatalf("expected finite regime features, got %+v", row)
		}
	}
}

func TestEngineBuildRowsRespectsWarmup(t *testing.T) {
	engine := NewEngine(nil)
	if rows := engine.BuildRows(makeBars(50), 16); len(rows) != 0 {
		t.Fatalf("expected no rows before warmup, got %d", len(rows))
	}
}

func makeBars(n int) []domain.Bar {
	out := make([]domain.Bar, 0, n)
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	price := 150.0
	for i := 0; i < n; i++ {
		price += 0.05
		out = append(out, domain.Bar{
			Pair:        domain.DefaultPair,
			Granularity: domain.DefaultGranularity,
			OpenTime:    start.Add(time.Duration(i) * 15 * time.Minute),
			Open:        price - 0.02,
			High:        price + 0.04,
			Low:         price - 0.06,
			Close:       price,
			Volume:      1000 + float64(i*10),
		})
	}
	return out
}
