package gateway

import (
	"fmt"
	"testing"
)

func TestRateLimiter_Burst(t *testing.T) {
	r := NewRateLimiter(60, 3)
	for i := 0; i < 3; i++ {
		if !r.Allow("cust-1") {
			t.Fatalf("send %d denied within burst", i)
		}
	}
	if r.Allow("cust-1") {
		t.Error("send beyond burst allowed")
	}
	if !r.Allow("cust-2") {
		t.Error("identities share a bucket")
	}
}

func TestRateLimiter_Disabled(t *testing.T) {
	for _, r := range []*RateLimiter{nil, NewRateLimiter(0, 1), NewRateLimiter(-1, 1)} {
		for i := 0; i < 100; i++ {
			if !r.Allow("x") {
				t.Fatal("disabled limiter denied")
			}
		}
		if r.Enabled() {
			t.Error("Enabled() = true")
		}
	}
}

func TestRateLimiter_SetRPM(t *testing.T) {
	r := NewRateLimiter(0, 1)
	r.SetRPM(1)
	if !r.Allow("a") || r.Allow("a") {
		t.Fatal("new rate not applied")
	}
	r.SetRPM(0)
	if !r.Allow("a") {
		t.Error("disabling did not take effect")
	}
}

func TestRateLimiter_BoundedKeys(t *testing.T) {
	r := NewRateLimiter(60, 1)
	for i := 0; i < maxTrackedKeys+100; i++ {
		r.Allow(fmt.Sprintf("id-%d", i))
	}
	if n := len(r.entries); n > maxTrackedKeys {
		t.Errorf("tracked %d keys", n)
	}
}
