package provider

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel/trace"
)

const observationsPayload = `{
  "observations": [
    {"date": "2025-03-05", "value": "4.28"},
    {"date": "2025-03-04", "value": "."},
    {"date": "2025-03-03", "value": "4.21"}
  ]
}`

func TestFredProviderFetchSeries(t *testing.T) {
	t.Parallel()

	provider := NewFredProvider(trace.NewNoopTracerProvider().Tracer("test"), "key")
	provider.baseURL = "http://example"
	provider.client = &http.Client{
		Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
			if !strings.Contains(req.URL.Path, "/fred/series/observations") {
				t.Fatalf("unexpected path: %s", req.URL.Path)
			}
			q := req.URL.Query()
			if q.Get("series_id") != "DGS10" {
				t.Fatalf("unexpected series_id: %s", q.Get("series_id"))
			}
			if q.Get("api_key") != "key" {
				t.Fatalf("unexpected api_key: %s", q.Get("api_key"))
			}
			return &http.Response{
				StatusCode: http.StatusOK,
				Body:       io.NopCloser(bytes.NewReader([]byte(observationsPayload))),
				Header:     make(http.Header),
			}, nil
		}),
	}
	provider.limiter = NewRateLimiter(10, time.Millisecond)

	points, err := provider.FetchSeries(context.Background(), "DGS10", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("expected 2 points after skipping missing value, got %d", len(points))
	}
	if !points[0].Date.Before(points[1].Date) {
		t.Fatal("expected points in ascending date order")
	}
	if points[0].Value != 4.21 || points[1].Value != 4.28 {
		t.Fatalf("unexpected values: %+v", points)
	}
	if !points[1].Date.Equal(time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected date: %v", points[1].Date)
	}
}

func TestFredProviderErrorStatus(t *testing.T) {
	t.Parallel()

	provider := NewFredProvider(trace.NewNoopTracerProvider().Tracer("test"), "key")
	provider.client = &http.Client{
		Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
			return &http.Response{
				StatusCode: http.StatusTooManyRequests,
				Body:       io.NopCloser(strings.NewReader(`{"error_message":"rate limit"}`)),
				Header:     make(http.Header),
			}, nil
		}),
	}
	provider.limiter = NewRateLimiter(10, time.Millisecond)

	if _, err := provider.FetchSeries(context.Background(), "VIXCLS", 20); err == nil {
		t.Fatal("expected error on 429")
	}
}
