package cache

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
)

func stubRedis(t *testing.T) *string {
	t.Helper()
	origNewClient := newRedisClient
	origPing := pingRedis
	t.Cleanup(func() {
		newRedisClient = origNewClient
		pingRedis = origPing
		Client = nil
	})

	var capturedAddr string
	newRedisClient = func(opts *redis.Options) *redis.Client {
		capturedAddr = opts.Addr
		return redis.NewClient(opts)
	}
	pingRedis = func(ctx context.Context, client *redis.Client) error { return nil }
	return &capturedAddr
}

func TestInitRedisWithCustomAddr(t *testing.T) {
	t.Setenv("REDIS_URL", "redis:9999")
	addr := stubRedis(t)

	InitRedis(context.Background())
	if *addr != "redis:9999" {
		t.Fatalf("expected custom addr, got %s", *addr)
	}
	if Client == nil {
		t.Fatal("expected package client to be set")
	}
}

func TestInitRedisDefaults(t *testing.T) {
	t.Setenv("REDIS_URL", "")
	addr := stubRedis(t)

	InitRedis(context.Background())
	if *addr != "localhost:6379" {
		t.Fatalf("expected default addr, got %s", *addr)
	}
}

func TestInitRedisParsesURLScheme(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://user:pw@cache.internal:6380/2")
	addr := stubRedis(t)

	InitRedis(context.Background())
	if *addr != "cache.internal:6380" {
		t.Fatalf("expected parsed addr, got %s", *addr)
	}
}
