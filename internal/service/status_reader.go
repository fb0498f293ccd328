package service

import (
	"context"
	"encoding/json"
	"log"

	"probable-pancake/internal/domain"

	"github.com/redis/go-redis/v9"
)

// CachedStatusReader serves the live loop's Redis heartbeat to processes
// that do not run the decision loop themselves (SSH dashboard, MCP server).
type CachedStatusReader struct {
	client *redis.Client
	pair   string
}

func NewCachedStatusReader(client *redis.Client, pair string) *CachedStatusReader {
	if pair == "" {
		pair = domain.DefaultPair
	}
	return &CachedStatusReader{client: client, pair: pair}
}

func (r *CachedStatusReader) Status(ctx context.Context) domain.StatusSnapshot {
	snap := domain.StatusSnapshot{Pair: r.pair}
	if r.client == nil {
		return snap
	}
	raw, err := r.client.Get(ctx, "status:"+r.pair).Bytes()
	if err != nil {
		return snap
	}
	if err := json.Unmarshal(raw, &snap); err != nil {
		log.Printf("corrupt status cache for %s: %v", r.pair, err)
		return domain.StatusSnapshot{Pair: r.pair}
	}
	return snap
}
