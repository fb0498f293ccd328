package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"probable-pancake/internal/domain"
)

// timestampLayouts are tried in order when the timestamp column is not a
// unix epoch. Feeds disagree on this constantly.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006.01.02 15:04",
	"2006-01-02",
}

// LoadResult carries the parsed bars plus data-quality findings the caller
// can surface without failing the load.
type LoadResult struct {
	Bars     []domain.Bar
	Cadence  time.Duration
	Warnings []string
	Dropped  int
}

// LoadCSV reads an OHLCV dataset. The header is matched case-insensitively;
// a timestamp column (timestamp, time, time_utc, date or t) and the four
// price columns are required, volume is optional. Rows are deduplicated on
// timestamp (last one wins) and returned oldest first.
func LoadCSV(path, pair, granularity string) (*LoadResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadCSV(f, pair, granularity)
}

func ReadCSV(r io.Reader, pair, granularity string) (*LoadResult, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}

	for _, required := range []string{"open", "high", "low", "close"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("missing column %q", required)
		}
	}
	tsIdx := -1
	for _, name := range []string{"timestamp", "time", "time_utc", "date", "t"} {
		if idx, ok := cols[name]; ok {
			tsIdx = idx
			break
		}
	}
	if tsIdx == -1 {
		return nil, errors.New("missing timestamp column")
	}
	volIdx, hasVolume := cols["volume"]
	if !hasVolume {
		volIdx, hasVolume = cols["v"]
	}

	result := &LoadResult{}
	byTime := make(map[time.Time]domain.Bar)

	for line := 2; ; line++ {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if len(rec) <= tsIdx {
			result.Dropped++
			continue
		}

		ts, err := parseTimestamp(rec[tsIdx])
		if err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("line %d: %v", line, err))
			result.Dropped++
			continue
		}

		bar := domain.Bar{Pair: pair, Granularity: granularity, OpenTime: ts, Volume: 1}
		fields := []struct {
			idx int
			dst *float64
		}{
			{cols["open"], &bar.Open},
			{cols["high"], &bar.High},
			{cols["low"], &bar.Low},
			{cols["close"], &bar.Close},
		}
		bad := false
		for _, fld := range fields {
			if len(rec) <= fld.idx {
				bad = true
				break
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(rec[fld.idx]), 64)
			if err != nil {
				bad = true
				break
			}
			*fld.dst = v
		}
		if bad {
			result.Warnings = append(result.Warnings, fmt.Sprintf("line %d: unparseable price", line))
			result.Dropped++
			continue
		}
		if hasVolume && len(rec) > volIdx {
			if v, err := strconv.ParseFloat(strings.TrimSpace(rec[volIdx]), 64); err == nil && v > 0 {
				bar.Volume = v
			}
		}

		if _, dup := byTime[ts]; dup {
			result.Warnings = append(result.Warnings, fmt.Sprintf("line %d: duplicate timestamp %s", line, ts.Format(time.RFC3339)))
		}
		byTime[ts] = bar
	}

	bars := make([]domain.Bar, 0, len(byTime))
	for _, b := range byTime {
		bars = append(bars, b)
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].OpenTime.Before(bars[j].OpenTime) })
	result.Bars = bars

	result.Cadence = estimateCadence(bars)
	if expected, ok := domain.GranularityDuration[granularity]; ok && result.Cadence > 0 && result.Cadence != expected {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("cadence %s does not match granularity %s", result.Cadence, granularity))
	}
	result.Warnings = append(result.Warnings, gapWarnings(bars, result.Cadence)...)
	return result, nil
}

func parseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		// heuristics: seconds vs milliseconds epoch
		if n > 1e12 {
			return time.UnixMilli(n).UTC(), nil
		}
		return time.Unix(n, 0).UTC(), nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", raw)
}

// estimateCadence picks the most common positive gap between consecutive
// bars.
func estimateCadence(bars []domain.Bar) time.Duration {
	if len(bars) < 2 {
		return 0
	}
	counts := make(map[time.Duration]int)
	for i := 1; i < len(bars); i++ {
		gap := bars[i].OpenTime.Sub(bars[i-1].OpenTime)
		if gap > 0 {
			counts[gap]++
		}
	}
	var best time.Duration
	bestCount := 0
	for gap, count := range counts {
		if count > bestCount || (count == bestCount && gap < best) {
			best, bestCount = gap, count
		}
	}
	return best
}

// gapWarnings flags stretches longer than three cadences, ignoring the
// weekend close which is normal for FX data.
func gapWarnings(bars []domain.Bar, cadence time.Duration) []string {
	if cadence <= 0 {
		return nil
	}
	var warnings []string
	for i := 1; i < len(bars); i++ {
		gap := bars[i].OpenTime.Sub(bars[i-1].OpenTime)
		if gap <= 3*cadence {
			continue
		}
		if isWeekendGap(bars[i-1].OpenTime, bars[i].OpenTime) {
			continue
		}
		warnings = append(warnings, fmt.Sprintf("gap of %s before %s",
			gap, bars[i].OpenTime.Format(time.RFC3339)))
	}
	return warnings
}

func isWeekendGap(from, to time.Time) bool {
	if to.Sub(from) > 72*time.Hour {
		return false
	}
	return from.Weekday() == time.Friday || from.Weekday() == time.Saturday ||
		to.Weekday() == time.Sunday || to.Weekday() == time.Monday && from.Weekday() != time.Monday
}
