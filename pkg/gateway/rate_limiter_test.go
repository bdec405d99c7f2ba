package gateway

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter(perMinute, burst int) (*RateLimiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	rl := NewRateLimiter(perMinute, burst)
	rl.now = clock.now
	return rl, clock
}

func TestRateLimiterBurstThenRefill(t *testing.T) {
	rl, clock := newTestLimiter(60, 3) // one token per second

	for i := 0; i < 3; i++ {
		ok, _ := rl.Allow("203.0.113.7")
		require.True(t, ok, "request %d is within the burst", i)
	}
	ok, wait := rl.Allow("203.0.113.7")
	require.False(t, ok)
	require.Equal(t, time.Second, wait)

	clock.advance(500 * time.Millisecond)
	ok, wait = rl.Allow("203.0.113.7")
	require.False(t, ok)
	require.Equal(t, 500*time.Millisecond, wait)

	clock.advance(500 * time.Millisecond)
	ok, _ = rl.Allow("203.0.113.7")
	require.True(t, ok)

	// refill never exceeds the burst
	clock.advance(time.Hour)
	for i := 0; i < 3; i++ {
		ok, _ = rl.Allow("203.0.113.7")
		require.True(t, ok)
	}
	ok, _ = rl.Allow("203.0.113.7")
	require.False(t, ok)
}

func TestRateLimiterIsolatesClients(t *testing.T) {
	rl, _ := newTestLimiter(60, 1)
	ok, _ := rl.Allow("198.51.100.1")
	require.True(t, ok)
	ok, _ = rl.Allow("198.51.100.1")
	require.False(t, ok)
	ok, _ = rl.Allow("198.51.100.2")
	require.True(t, ok)
}

func TestRateLimiterCleanup(t *testing.T) {
	rl, clock := newTestLimiter(60, 10)
	rl.Allow("idle")
	clock.advance(20 * time.Minute)
	rl.Allow("active")

	rl.Cleanup(10 * time.Minute)

	_, idle := rl.buckets.Load("idle")
	_, active := rl.buckets.Load("active")
	require.False(t, idle)
	require.True(t, active)
}

func TestRateLimiterConcurrentClients(t *testing.T) {
	rl := NewRateLimiter(60, 100)
	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				if ok, _ := rl.Allow("shared"); ok {
					mu.Lock()
					allowed++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()
	// 200 attempts against a burst of 100; refill during the test is negligible.
	require.InDelta(t, 100, allowed, 2)
}

func TestIsLoopback(t *testing.T) {
	tests := []struct {
		addr string
		want bool
	}{
		{"127.0.0.1", true},
		{"127.0.0.1:8080", true},
		{"::1", true},
		{"[::1]:5000", true},
		{"10.0.0.1", false},
		{"8.8.8.8", false},
		{"not-an-ip", false},
	}
	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			require.Equal(t, tt.want, isLoopback(tt.addr))
		})
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	rl, _ := newTestLimiter(60, 1)
	gw := &Gateway{rateLimiter: rl}
	handler := gw.rateLimitMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func(remote string, header ...string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/doctors", nil)
		req.RemoteAddr = remote
		for i := 0; i+1 < len(header); i += 2 {
			req.Header.Set(header[i], header[i+1])
		}
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w
	}

	require.Equal(t, http.StatusOK, send("8.8.8.8:1234").Code)
	w := send("8.8.8.8:1234")
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.Equal(t, "1", w.Header().Get("Retry-After"))
	require.Contains(t, w.Body.String(), `"success":false`)

	for i := 0; i < 5; i++ {
		require.Equal(t, http.StatusOK, send("127.0.0.1:1234").Code)
	}

	// Forwarding headers from an untrusted peer neither exempt nor rekey it.
	require.Equal(t, http.StatusTooManyRequests, send("8.8.8.8:1234", "X-Forwarded-For", "127.0.0.1").Code)
	require.Equal(t, http.StatusTooManyRequests, send("8.8.8.8:1234", "X-Real-IP", "9.9.9.9").Code)
}

func TestClientIPTrustedProxy(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/doctors", nil)
	req.RemoteAddr = "10.0.0.5:443"
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.5")

	untrusted := &Gateway{}
	require.Equal(t, "10.0.0.5", untrusted.clientIP(req))

	trusted := &Gateway{}
	trusted.cfg.TrustProxyHeaders = true
	require.Equal(t, "203.0.113.7", trusted.clientIP(req))

	req.Header.Del("X-Forwarded-For")
	req.Header.Set("X-Real-IP", "198.51.100.2")
	require.Equal(t, "198.51.100.2", trusted.clientIP(req))
}
