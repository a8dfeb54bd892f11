package gateway

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// maxTrackedKeys caps the number of identities tracked at once so a
	// client rotating identities cannot grow the map without bound.
	maxTrackedKeys = 4096

	// idleEviction drops limiters not used for this long.
	idleEviction = 10 * time.Minute
)

type limiterEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// RateLimiter applies a per-identity token bucket to message sends.
// rpm <= 0 disables it. Safe for concurrent use; a nil *RateLimiter allows
// everything.
type RateLimiter struct {
	mu      sync.Mutex
	rpm     int
	burst   int
	entries map[string]*limiterEntry
}

func NewRateLimiter(rpm, burst int) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{rpm: rpm, burst: burst, entries: make(map[string]*limiterEntry)}
}

// Enabled reports whether sends are being limited.
func (r *RateLimiter) Enabled() bool {
	if r == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rpm > 0
}

// SetRPM changes the rate. Existing buckets are dropped so the new rate
// applies immediately.
func (r *RateLimiter) SetRPM(rpm int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rpm == r.rpm {
		return
	}
	r.rpm = rpm
	r.entries = make(map[string]*limiterEntry)
}

// Allow reports whether key may send now.
func (r *RateLimiter) Allow(key string) bool {
	if r == nil {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rpm <= 0 {
		return true
	}

	now := time.Now()
	e, ok := r.entries[key]
	if !ok {
		if len(r.entries) >= maxTrackedKeys {
			r.evictLocked(now)
		}
		e = &limiterEntry{lim: rate.NewLimiter(rate.Limit(float64(r.rpm)/60.0), r.burst)}
		r.entries[key] = e
	}
	e.lastSeen = now
	return e.lim.AllowN(now, 1)
}

func (r *RateLimiter) evictLocked(now time.Time) {
	for k, e := range r.entries {
		if now.Sub(e.lastSeen) >= idleEviction {
			delete(r.entries, k)
		}
	}
	// Hard eviction if still at cap (FIFO-ish via map iteration)
	for len(r.entries) >= maxTrackedKeys {
		for k := range r.entries {
			delete(r.entries, k)
			break
		}
	}
}
