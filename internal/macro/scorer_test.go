package macro

import (
	"testing"
	"time"

	"probable-pancake/internal/domain"
)

func seriesOf(id string, values ...float64) []domain.MacroSeriesPoint {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	points := make([]domain.MacroSeriesPoint, 0, len(values))
	for i, v := range values {
		points = append(points, domain.MacroSeriesPoint{
			SeriesID: id,
			Date:     base.AddDate(0, 0, i),
			Value:    v,
		})
	}
	return points
}

func flatSeries(id string, value float64, n int) []domain.MacroSeriesPoint {
	values := make([]float64, n)
	for i := range values {
		values[i] = value
	}
	return seriesOf(id, values...)
}

func TestScoreAllBullishIsHighConfidence(t *testing.T) {
	t.Parallel()

	series := map[string][]domain.MacroSeriesPoint{
		SeriesUS10Y: append(flatSeries(SeriesUS10Y, 4.0, 20), seriesOf(SeriesUS10Y, 4.30)...),
		SeriesVIX:   seriesOf(SeriesVIX, 13.5),
		SeriesJPCPI: append(flatSeries(SeriesJPCPI, 102.0, 6), seriesOf(SeriesJPCPI, 101.2)...),
	}

	snap := Score(series, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	if snap.Bias != domain.MacroBiasBullish {
		t.Fatalf("expected bullish bias, got %s", snap.Bias)
	}
	if snap.Confidence != domain.MacroConfidenceHigh {
		t.Fatalf("expected high confidence, got %s", snap.Confidence)
	}
	if snap.Score != 1.0 {
		t.Fatalf("expected score 1.0, got %f", snap.Score)
	}
}

func TestScoreRiskOffIsBearish(t *testing.T) {
	t.Parallel()

	series := map[string][]domain.MacroSeriesPoint{
		SeriesUS10Y: append(flatSeries(SeriesUS10Y, 4.0, 20), seriesOf(SeriesUS10Y, 3.70)...),
		SeriesVIX:   seriesOf(SeriesVIX, 31.0),
	}

	snap := Score(series, time.Now())
	if snap.Bias != domain.MacroBiasBearish {
		t.Fatalf("expected bearish bias, got %s", snap.Bias)
	}
	if snap.Confidence != domain.MacroConfidenceMedium {
		t.Fatalf("expected medium confidence with two of three answers, got %s", snap.Confidence)
	}
}

func TestScoreFlatYieldsAreNeutral(t *testing.T) {
	t.Parallel()

	series := map[string][]domain.MacroSeriesPoint{
		SeriesUS10Y: flatSeries(SeriesUS10Y, 4.2, 21),
		SeriesVIX:   seriesOf(SeriesVIX, 19.0),
	}

	snap := Score(series, time.Now())
	if snap.Bias != domain.MacroBiasNeutral {
		t.Fatalf("expected neutral bias, got %s", snap.Bias)
	}
	if snap.Confidence != domain.MacroConfidenceLow {
		t.Fatalf("expected low confidence, got %s", snap.Confidence)
	}
}

func TestScoreNoData(t *testing.T) {
	t.Parallel()

	snap := Score(map[string][]domain.MacroSeriesPoint{}, time.Now())
	if snap.Bias != domain.MacroBiasNeutral || snap.Score != 0 {
		t.Fatalf("expected neutral empty snapshot, got %+v", snap)
	}
	if snap.Answers["yields"] != "no data" {
		t.Fatalf("expected no-data answer, got %q", snap.Answers["yields"])
	}
}
