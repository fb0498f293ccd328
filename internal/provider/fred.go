package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"probable-pancake/internal/domain"

	"go.opentelemetry.io/otel/trace"
)

const fredBaseURL = "https://api.stlouisfed.org"

// FredProvider fetches macro series observations from the FRED API.
type FredProvider struct {
	client  *http.Client
	baseURL string
	apiKey  string
	tracer  trace.Tracer
	limiter *RateLimiter
}

// NewFredProvider creates a provider rate limited to one request per second.
func NewFredProvider(tracer trace.Tracer, apiKey string) *FredProvider {
	return &FredProvider{
		client:  &http.Client{Timeout: 15 * time.Second},
		baseURL: fredBaseURL,
		apiKey:  apiKey,
		tracer:  tracer,
		limiter: NewRateLimiter(1, time.Second),
	}
}

// FetchSeries returns up to limit recent observations, oldest first.
// Missing observations (FRED reports them as ".") are skipped.
func (p *FredProvider) FetchSeries(ctx context.Context, seriesID string, limit int) ([]domain.MacroSeriesPoint, error) {
	_, span := p.tracer.Start(ctx, "fred.fetch-series")
	defer span.End()

	if limit <= 0 {
		limit = 40
	}
	url := fmt.Sprintf(
		"%s/fred/series/observations?series_id=%s&api_key=%s&file_type=json&sort_order=desc&limit=%d",
		p.baseURL, seriesID, p.apiKey, limit)

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("FRED API error %d: %s", resp.StatusCode, string(body))
	}

	var payload struct {
		Observations []struct {
			Date  string `json:"date"`
			Value string `json:"value"`
		} `json:"observations"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode FRED response for %s: %w", seriesID, err)
	}

	points := make([]domain.MacroSeriesPoint, 0, len(payload.Observations))
	for _, obs := range payload.Observations {
		value := strings.TrimSpace(obs.Value)
		if value == "" || value == "." {
			continue
		}
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			continue
		}
		date, err := time.Parse("2006-01-02", strings.TrimSpace(obs.Date))
		if err != nil {
			continue
		}
		points = append(points, domain.MacroSeriesPoint{
			SeriesID: seriesID,
			Date:     date.UTC(),
			Value:    v,
		})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Date.Before(points[j].Date) })
	return points, nil
}
