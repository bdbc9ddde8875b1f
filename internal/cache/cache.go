// Package cache provides a small byte cache for serialized chat responses,
// keyed by exact prompt string.
package cache

import "context"

// Cache stores serialized responses. Implementations are best-effort: a
// failed Set must not fail the request that produced the value.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte)
}
