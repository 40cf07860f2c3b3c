package ratelimit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iconidentify/ytgrabba/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeClock is advanced manually by tests.
type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter(perMinute, perDay int) (*Limiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	counter := NewMemoryCounter()
	counter.now = clock.Now
	l := NewLimiter(config.RateLimitConfig{PerMinute: perMinute, PerDay: perDay}, counter, testLogger())
	l.now = clock.Now
	return l, clock
}

func TestLimiter_PerMinute(t *testing.T) {
	l, clock := newTestLimiter(3, 0)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if d := l.Allow(ctx, "download", "10.0.0.1"); !d.Allowed {
			t.Fatalf("request %d denied", i+1)
		}
	}

	d := l.Allow(ctx, "download", "10.0.0.1")
	if d.Allowed {
		t.Fatal("fourth request in the same minute should be denied")
	}
	if d.RetryAfter <= 0 || d.RetryAfter > 21*time.Second {
		t.Errorf("RetryAfter = %v, want about one token interval", d.RetryAfter)
	}

	if d := l.Allow(ctx, "download", "10.0.0.2"); !d.Allowed {
		t.Error("other clients have their own bucket")
	}
	if d := l.Allow(ctx, "convert", "10.0.0.1"); !d.Allowed {
		t.Error("other routes have their own bucket")
	}

	clock.Advance(21 * time.Second)
	if d := l.Allow(ctx, "download", "10.0.0.1"); !d.Allowed {
		t.Error("a token should be refilled after one interval")
	}
}

func TestLimiter_PerDay(t *testing.T) {
	l, clock := newTestLimiter(100, 2)
	ctx := context.Background()

	l.Allow(ctx, "download", "c")
	l.Allow(ctx, "download", "c")

	d := l.Allow(ctx, "download", "c")
	if d.Allowed {
		t.Fatal("third request of the day should be denied")
	}
	if d.Reason != "day" || d.RetryAfter != 12*time.Hour {
		t.Errorf("decision = %+v, want day window until midnight", d)
	}

	clock.Advance(12 * time.Hour)
	if d := l.Allow(ctx, "download", "c"); !d.Allowed {
		t.Error("quota should reset on the next UTC day")
	}
}

type brokenCounter struct{}

func (brokenCounter) Incr(context.Context, string, time.Duration) (int64, error) {
	return 0, errors.New("connection refused")
}

func TestLimiter_CounterFailureFailsOpen(t *testing.T) {
	l := NewLimiter(config.RateLimitConfig{PerMinute: 10, PerDay: 1}, brokenCounter{}, testLogger())

	for i := 0; i < 3; i++ {
		if d := l.Allow(context.Background(), "download", "c"); !d.Allowed {
			t.Fatalf("request %d denied by a broken counter", i+1)
		}
	}
}

func TestLimiter_Evict(t *testing.T) {
	l, clock := newTestLimiter(5, 5)
	l.Allow(context.Background(), "download", "a")
	clock.Advance(time.Minute)
	l.Allow(context.Background(), "download", "b")

	if removed := l.Evict(30 * time.Second); removed != 1 {
		t.Errorf("Evict removed %d, want 1", removed)
	}
	if _, ok := l.buckets["download|b"]; !ok {
		t.Error("recent bucket should survive")
	}
}

func TestMemoryCounter_Expiry(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	c := NewMemoryCounter()
	c.now = clock.Now
	ctx := context.Background()

	c.Incr(ctx, "k", time.Minute)
	if n, _ := c.Incr(ctx, "k", time.Minute); n != 2 {
		t.Errorf("n = %d, want 2", n)
	}

	clock.Advance(time.Minute)
	if n, _ := c.Incr(ctx, "k", time.Minute); n != 1 {
		t.Errorf("n after expiry = %d, want 1", n)
	}

	clock.Advance(2 * time.Minute)
	if removed := c.Evict(); removed != 1 {
		t.Errorf("Evict removed %d, want 1", removed)
	}
}

func TestMiddleware(t *testing.T) {
	l, _ := newTestLimiter(1, 0)
	handler := l.Middleware("download")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/download", nil)
	req.RemoteAddr = "192.0.2.1:1234"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("first request status = %d", rec.Code)
	}

	req.RemoteAddr = "192.0.2.1:5678"
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", rec.Code)
	}
	if secs, err := strconv.Atoi(rec.Header().Get("Retry-After")); err != nil || secs < 1 {
		t.Errorf("Retry-After = %q", rec.Header().Get("Retry-After"))
	}
	if body := rec.Body.String(); body != "{\"error\":\"rate limit exceeded\"}\n" {
		t.Errorf("body = %q", body)
	}
}

func TestConnect_FallsBackToMemory(t *testing.T) {
	if _, ok := Connect(context.Background(), config.RateLimitConfig{}, testLogger()).(*MemoryCounter); !ok {
		t.Error("no address should give a memory counter")
	}

	c := Connect(context.Background(), config.RateLimitConfig{RedisAddr: "127.0.0.1:1"}, testLogger())
	if _, ok := c.(*MemoryCounter); !ok {
		t.Errorf("unreachable redis should give a memory counter, got %T", c)
	}
}

func TestRedisCounter(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	c := NewRedisCounter(client)
	defer c.Close()

	ctx := context.Background()
	key := "ratelimit:test:" + strconv.FormatInt(time.Now().UnixNano(), 10)
	defer client.Del(ctx, key)

	for want := int64(1); want <= 3; want++ {
		n, err := c.Incr(ctx, key, time.Minute)
		if err != nil {
			t.Fatalf("Incr error = %v", err)
		}
		if n != want {
			t.Errorf("n = %d, want %d", n, want)
		}
	}
	if ttl := client.TTL(ctx, key).Val(); ttl <= 0 || ttl > time.Minute {
		t.Errorf("TTL = %v, want set on first increment", ttl)
	}
}
