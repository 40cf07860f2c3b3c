// Package ratelimit enforces per-client request quotas at the HTTP boundary.
package ratelimit

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/iconidentify/ytgrabba/internal/config"
)

// Limiter applies a per-minute token bucket and a per-day fixed window to
// each (route, client) pair.
type Limiter struct {
	perMinute int
	perDay    int
	counter   Counter
	logger    *slog.Logger
	now       func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Decision is the outcome of a quota check.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
	Reason     string
}

// NewLimiter creates a limiter. A zero PerDay disables the daily quota.
func NewLimiter(cfg config.RateLimitConfig, counter Counter, logger *slog.Logger) *Limiter {
	if counter == nil {
		counter = NewMemoryCounter()
	}
	return &Limiter{
		perMinute: cfg.PerMinute,
		perDay:    cfg.PerDay,
		counter:   counter,
		logger:    logger,
		now:       time.Now,
		buckets:   make(map[string]*bucket),
	}
}

// Allow records one request from client on route.
func (l *Limiter) Allow(ctx context.Context, route, client string) Decision {
	now := l.now()

	if l.perMinute > 0 {
		b := l.bucket(route, client, now)
		res := b.limiter.ReserveN(now, 1)
		if delay := res.DelayFrom(now); !res.OK() || delay > 0 {
			res.CancelAt(now)
			return Decision{RetryAfter: delay, Reason: "minute"}
		}
	}

	if l.perDay > 0 {
		day := now.UTC()
		key := "ratelimit:" + route + ":" + client + ":" + day.Format("20060102")
		untilMidnight := time.Date(day.Year(), day.Month(), day.Day()+1, 0, 0, 0, 0, time.UTC).Sub(day)

		n, err := l.counter.Incr(ctx, key, untilMidnight+time.Hour)
		if err != nil {
			// Fail open: a broken counter must not take the API down.
			l.logger.Warn("daily quota check failed", "route", route, "error", err)
			return Decision{Allowed: true}
		}
		if n > int64(l.perDay) {
			return Decision{RetryAfter: untilMidnight, Reason: "day"}
		}
	}

	return Decision{Allowed: true}
}

func (l *Limiter) bucket(route, client string, now time.Time) *bucket {
	key := route + "|" + client

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		every := rate.Every(time.Minute / time.Duration(l.perMinute))
		b = &bucket{limiter: rate.NewLimiter(every, l.perMinute)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	return b
}

// Evict drops buckets idle for longer than idle and expired daily counts
// held in memory. It returns the number of buckets removed.
func (l *Limiter) Evict(idle time.Duration) int {
	cutoff := l.now().Add(-idle)

	l.mu.Lock()
	removed := 0
	for key, b := range l.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(l.buckets, key)
			removed++
		}
	}
	l.mu.Unlock()

	if mc, ok := l.counter.(*MemoryCounter); ok {
		mc.Evict()
	}
	return removed
}

// Middleware limits requests to the named route. Denied requests get a
// 429 with a Retry-After header.
func (l *Limiter) Middleware(route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			client := clientKey(r)
			d := l.Allow(r.Context(), route, client)
			if !d.Allowed {
				l.logger.Info("rate limit exceeded",
					"route", route,
					"client", client,
					"window", d.Reason,
					"retry_after", d.RetryAfter.Round(time.Second),
				)
				secs := int(math.Ceil(d.RetryAfter.Seconds()))
				if secs < 1 {
					secs = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(map[string]string{"error": "rate limit exceeded"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientKey identifies the caller. RemoteAddr has already been rewritten
// by the RealIP middleware when a proxy header is present.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
