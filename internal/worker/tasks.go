package worker

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper removes artifacts older than a maximum age.
type Sweeper interface {
	Sweep(ctx context.Context, maxAge time.Duration) (int, error)
}

// Evicter drops idle per-client state.
type Evicter interface {
	Evict(idle time.Duration) int
}

// RetentionTask sweeps the managed directory every interval. A zero
// maxAge yields a task the janitor skips.
func RetentionTask(sweeper Sweeper, maxAge, interval time.Duration, logger *slog.Logger) Task {
	if maxAge <= 0 {
		return Task{Name: "retention"}
	}
	return Task{
		Name:     "retention",
		Interval: interval,
		Run: func(ctx context.Context) error {
			removed, err := sweeper.Sweep(ctx, maxAge)
			if removed > 0 {
				logger.Info("expired artifacts removed", "count", removed, "max_age", maxAge)
			}
			return err
		},
	}
}

// EvictionTask drops rate limit buckets idle for longer than idle.
func EvictionTask(evicter Evicter, idle time.Duration, logger *slog.Logger) Task {
	return Task{
		Name:     "ratelimit-eviction",
		Interval: idle,
		Run: func(ctx context.Context) error {
			if removed := evicter.Evict(idle); removed > 0 {
				logger.Debug("idle rate limit buckets evicted", "count", removed)
			}
			return nil
		},
	}
}
