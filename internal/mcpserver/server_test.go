package mcpserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"probable-pancake/internal/domain"

	"go.opentelemetry.io/otel/trace"
)

var testTracer = trace.NewNoopTracerProvider().Tracer("test")

type stubStatus struct{}

func (s *stubStatus) Status(ctx context.Context) domain.StatusSnapshot {
	return domain.StatusSnapshot{Pair: "USD_JPY", Equity: 1000}
}

type stubBacktests struct{}

func (s *stubBacktests) ListRuns(ctx context.Context, pair string, limit int) ([]domain.BacktestRun, error) {
	return nil, nil
}

func (s *stubBacktests) GetRun(ctx context.Context, id int64) (*domain.BacktestRun, error) {
	return nil, nil
}

func (s *stubBacktests) EquityCurve(ctx context.Context, runID int64) ([]domain.EquityPoint, error) {
	return nil, nil
}

func TestNewServerRegistersWithPartialDeps(t *testing.T) {
	server := NewServer(testTracer, Deps{
		Status:    &stubStatus{},
		Backtests: &stubBacktests{},
	})
	if server == nil {
		t.Fatal("expected a server")
	}
}

func TestNewServerNoDeps(t *testing.T) {
	if NewServer(testTracer, Deps{}) == nil {
		t.Fatal("expected a server even with no read models")
	}
}

func TestClampLimit(t *testing.T) {
	if got := clampLimit(0, 20, 200); got != 20 {
		t.Fatalf("expected default 20, got %d", got)
	}
	if got := clampLimit(500, 20, 200); got != 200 {
		t.Fatalf("expected cap 200, got %d", got)
	}
	if got := clampLimit(7, 20, 200); got != 7 {
		t.Fatalf("expected passthrough 7, got %d", got)
	}
}

func TestHTTPHandlerRejectsBadToken(t *testing.T) {
	server := NewServer(testTracer, Deps{Status: &stubStatus{}})
	handler := NewHTTPHandler(server, HTTPOptions{AuthToken: "secret"})

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong token, got %d", rec.Code)
	}
}

func TestHTTPHandlerAcceptsToken(t *testing.T) {
	server := NewServer(testTracer, Deps{Status: &stubStatus{}})
	handler := NewHTTPHandler(server, HTTPOptions{AuthToken: "secret"})

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code == http.StatusUnauthorized || rec.Code == http.StatusTooManyRequests {
		t.Fatalf("expected request to pass auth and rate limit, got %d", rec.Code)
	}
}

func TestRateLimiterFixedWindow(t *testing.T) {
	l := newRateLimiter(2)
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	now := base
	l.nowFunc = func() time.Time { return now }

	if !l.allow("a") || !l.allow("a") {
		t.Fatal("first two requests should pass")
	}
	if l.allow("a") {
		t.Fatal("third request in the window should be limited")
	}
	// Different key has its own budget.
	if !l.allow("b") {
		t.Fatal("other clients should not share the budget")
	}
	// Next window resets.
	now = base.Add(time.Minute)
	if !l.allow("a") {
		t.Fatal("new window should reset the counter")
	}
}

func TestRateLimiterDisabled(t *testing.T) {
	l := newRateLimiter(0)
	for i := 0; i < 100; i++ {
		if !l.allow("a") {
			t.Fatal("disabled limiter should always allow")
		}
	}
}
