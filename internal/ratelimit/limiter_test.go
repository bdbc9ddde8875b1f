package ratelimit

import (
	"errors"
	"sync"
	"testing"
	"time"
)

const anonID = "anonymous"

func newTestLimiter() (*Limiter, *time.Time) {
	l := New(Tier{Limit: 3, Window: time.Minute}, Tier{Limit: 5, Window: time.Minute}, anonID)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	return l, &now
}

func TestAllow_AnonymousTier(t *testing.T) {
	l, _ := newTestLimiter()

	for i := 0; i < 3; i++ {
		if err := l.Allow(anonID); err != nil {
			t.Fatalf("request %d rejected, want admitted: %v", i+1, err)
		}
	}
	if err := l.Allow(anonID); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("request 4 = %v, want ErrRateLimited", err)
	}
}

func TestAllow_AuthenticatedTierIsMorePermissive(t *testing.T) {
	l, _ := newTestLimiter()

	for i := 0; i < 5; i++ {
		if err := l.Allow("alice"); err != nil {
			t.Fatalf("request %d rejected, want admitted: %v", i+1, err)
		}
	}
	if err := l.Allow("alice"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("request 6 = %v, want ErrRateLimited", err)
	}
}

func TestAllow_IdentitiesAreIndependent(t *testing.T) {
	l, _ := newTestLimiter()

	for i := 0; i < 5; i++ {
		if err := l.Allow("alice"); err != nil {
			t.Fatalf("alice request %d rejected: %v", i+1, err)
		}
	}
	if err := l.Allow("bob"); err != nil {
		t.Fatalf("bob rejected after alice exhausted her window: %v", err)
	}
}

func TestAllow_WindowSlides(t *testing.T) {
	l, now := newTestLimiter()

	for i := 0; i < 3; i++ {
		if err := l.Allow(anonID); err != nil {
			t.Fatalf("request %d rejected: %v", i+1, err)
		}
	}
	if err := l.Allow(anonID); !errors.Is(err, ErrRateLimited) {
		t.Fatal("expected rejection at limit")
	}

	// Rejected checks do not consume quota; once the window passes, the
	// identity is admitted again.
	*now = now.Add(61 * time.Second)
	if err := l.Allow(anonID); err != nil {
		t.Fatalf("request after window rejected: %v", err)
	}
}

func TestAllow_RejectionDoesNotConsumeQuota(t *testing.T) {
	l, now := newTestLimiter()

	for i := 0; i < 3; i++ {
		l.Allow(anonID)
	}
	for i := 0; i < 10; i++ {
		l.Allow(anonID) // all rejected
	}

	// Only the 3 admitted timestamps should age out.
	*now = now.Add(61 * time.Second)
	for i := 0; i < 3; i++ {
		if err := l.Allow(anonID); err != nil {
			t.Fatalf("request %d after window rejected: %v", i+1, err)
		}
	}
}

func TestAllow_ConcurrentSameIdentityNeverExceedsLimit(t *testing.T) {
	l := New(Tier{Limit: 5, Window: time.Minute}, Tier{Limit: 5, Window: time.Minute}, anonID)

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Allow("alice"); err == nil {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if admitted != 5 {
		t.Errorf("admitted %d concurrent requests, want exactly 5", admitted)
	}
}
