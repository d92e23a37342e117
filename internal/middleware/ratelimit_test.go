package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func hit(h http.Handler, remote string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.RemoteAddr = remote
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimiterAllowsUnderLimit(t *testing.T) {
	handler := NewRateLimiter(10, 10).Handler(okHandler())

	for i := range 10 {
		if rec := hit(handler, "192.168.1.1:5000"); rec.Code != http.StatusOK {
			t.Errorf("request %d: expected 200, got %d", i+1, rec.Code)
		}
	}
}

func TestRateLimiterRejectsOverLimit(t *testing.T) {
	handler := NewRateLimiter(10, 5).Handler(okHandler())

	for range 5 {
		hit(handler, "192.168.1.1:5000")
	}

	rec := hit(handler, "192.168.1.1:5001")
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "1" {
		t.Errorf("expected Retry-After 1, got %q", rec.Header().Get("Retry-After"))
	}
}

func TestRateLimiterSetsHeaders(t *testing.T) {
	rec := hit(NewRateLimiter(10, 10).Handler(okHandler()), "192.168.1.1:5000")

	if got := rec.Header().Get("X-RateLimit-Remaining"); got != "9" {
		t.Errorf("expected X-RateLimit-Remaining 9, got %q", got)
	}
	if got := rec.Header().Get("X-RateLimit-Limit"); got != "10" {
		t.Errorf("expected X-RateLimit-Limit 10, got %q", got)
	}
}

func TestRateLimiterPerIP(t *testing.T) {
	handler := NewRateLimiter(10, 2).Handler(okHandler())

	for range 2 {
		hit(handler, "10.0.0.1:1")
	}

	if rec := hit(handler, "10.0.0.1:1"); rec.Code != http.StatusTooManyRequests {
		t.Errorf("IP 10.0.0.1: expected 429, got %d", rec.Code)
	}
	if rec := hit(handler, "10.0.0.2:1"); rec.Code != http.StatusOK {
		t.Errorf("IP 10.0.0.2: expected 200, got %d", rec.Code)
	}
}

func TestRateLimiterRefills(t *testing.T) {
	now := time.Now()
	rl := NewRateLimiter(2, 1)
	rl.now = func() time.Time { return now }

	if _, _, ok := rl.allow("ip"); !ok {
		t.Fatal("first request should pass")
	}
	if _, _, ok := rl.allow("ip"); ok {
		t.Fatal("second request should be limited")
	}

	now = now.Add(500 * time.Millisecond)
	if _, _, ok := rl.allow("ip"); !ok {
		t.Fatal("request after refill should pass")
	}
}

func TestRateLimiterCleanup(t *testing.T) {
	now := time.Now()
	rl := NewRateLimiter(10, 10)
	rl.now = func() time.Time { return now }

	rl.allow("old")
	now = now.Add(time.Hour)
	rl.allow("fresh")

	rl.cleanup(time.Minute)
	if rl.Len() != 1 {
		t.Fatalf("expected 1 bucket after cleanup, got %d", rl.Len())
	}
}

func TestRateLimiterCapacity(t *testing.T) {
	rl := NewRateLimiter(10, 10)
	rl.maxBuckets = 1

	rl.allow("a")
	if _, _, ok := rl.allow("b"); ok {
		t.Fatal("new IP beyond capacity should be rejected")
	}
}

// Concurrent clients on one IP must never get more than the burst through
// while the clock is frozen.
func TestRateLimiterConcurrentBurst(t *testing.T) {
	rl := NewRateLimiter(10, 10)
	frozen := time.Now()
	rl.now = func() time.Time { return frozen }
	h := rl.Handler(okHandler())

	const goroutines = 10
	const perGoroutine = 50

	var ok, limited atomic.Int64
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for range goroutines {
		go func() {
			defer wg.Done()
			for range perGoroutine {
				switch hit(h, "10.0.0.1:1234").Code {
				case http.StatusOK:
					ok.Add(1)
				case http.StatusTooManyRequests:
					limited.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	if ok.Load() != 10 {
		t.Errorf("expected exactly 10 requests through, got %d", ok.Load())
	}
	if ok.Load()+limited.Load() != goroutines*perGoroutine {
		t.Errorf("unexpected total %d", ok.Load()+limited.Load())
	}
}
