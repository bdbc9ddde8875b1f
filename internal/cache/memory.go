package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Memory is an in-process LRU with per-entry TTL. Size bounds keep a burst of
// distinct prompts from growing the process without bound.
type Memory struct {
	lru *expirable.LRU[string, []byte]
}

// NewMemory creates a bounded in-memory cache.
func NewMemory(size int, ttl time.Duration) *Memory {
	return &Memory{lru: expirable.NewLRU[string, []byte](size, nil, ttl)}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool) {
	return m.lru.Get(key)
}

func (m *Memory) Set(_ context.Context, key string, value []byte) {
	m.lru.Add(key, value)
}
