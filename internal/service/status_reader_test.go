package service

import (
	"context"
	"testing"
)

func TestCachedStatusReaderNilClient(t *testing.T) {
	reader := NewCachedStatusReader(nil, "")
	snap := reader.Status(context.Background())
	if snap.Pair != "USD_JPY" {
		t.Fatalf("expected default pair, got %q", snap.Pair)
	}
	if snap.Equity != 0 {
		t.Fatalf("expected empty snapshot, got equity %.2f", snap.Equity)
	}
}
