// Package ratelimit implements a two-tier sliding-window request throttle.
package ratelimit

import (
	"errors"
	"sync"
	"time"
)

// ErrRateLimited is returned when an identity has exhausted its window.
var ErrRateLimited = errors.New("too many requests, please try again later")

// Tier is a limit/window pair.
type Tier struct {
	Limit  int
	Window time.Duration
}

// Limiter tracks admission timestamps per identity in process memory. The
// anonymous shared identity gets the stricter tier; any named identity gets
// the permissive one. State is lost on restart, which is acceptable for a
// soft throttle.
type Limiter struct {
	mu      sync.Mutex
	windows map[string][]time.Time

	anonTier Tier
	authTier Tier
	anonID   string

	now func() time.Time // injectable for tests
}

// New creates a Limiter. anonID is the identity string that selects the
// anonymous tier.
func New(anon, auth Tier, anonID string) *Limiter {
	return &Limiter{
		windows:  make(map[string][]time.Time),
		anonTier: anon,
		authTier: auth,
		anonID:   anonID,
		now:      time.Now,
	}
}

// Allow admits or rejects a request for the given identity. Prune, count and
// append happen under one lock so two concurrent requests from the same
// identity cannot both observe a stale count and double-admit past the limit.
func (l *Limiter) Allow(identity string) error {
	tier := l.authTier
	if identity == l.anonID {
		tier = l.anonTier
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-tier.Window)

	window := l.windows[identity]
	kept := window[:0]
	for _, t := range window {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= tier.Limit {
		l.windows[identity] = kept
		return ErrRateLimited
	}

	l.windows[identity] = append(kept, now)
	return nil
}
