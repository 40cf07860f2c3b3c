// Package worker runs periodic maintenance in the background.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrShutdownTimeout is returned when tasks don't stop within timeout.
var ErrShutdownTimeout = errors.New("janitor shutdown timed out")

// Task is a unit of periodic maintenance.
type Task struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Janitor runs each task on its own ticker until stopped.
type Janitor struct {
	tasks  []Task
	logger *slog.Logger

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewJanitor creates a janitor. Tasks with a non-positive interval or a
// nil Run are skipped.
func NewJanitor(logger *slog.Logger, tasks ...Task) *Janitor {
	ctx, cancel := context.WithCancel(context.Background())

	var active []Task
	for _, t := range tasks {
		if t.Interval > 0 && t.Run != nil {
			active = append(active, t)
		}
	}

	return &Janitor{
		tasks:  active,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start launches one goroutine per task.
func (j *Janitor) Start() {
	j.logger.Info("starting janitor", "tasks", len(j.tasks))

	for _, t := range j.tasks {
		j.wg.Add(1)
		go j.loop(t)
	}
}

// Stop cancels running tasks and waits for them to return.
func (j *Janitor) Stop(timeout time.Duration) error {
	j.logger.Info("stopping janitor")
	j.cancel()

	done := make(chan struct{})
	go func() {
		j.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		j.logger.Info("janitor stopped gracefully")
		return nil
	case <-time.After(timeout):
		return ErrShutdownTimeout
	}
}

func (j *Janitor) loop(t Task) {
	defer j.wg.Done()

	logger := j.logger.With("task", t.Name)
	logger.Debug("task started", "interval", t.Interval)

	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-j.ctx.Done():
			logger.Debug("task stopping")
			return
		case <-ticker.C:
			if err := t.Run(j.ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("task failed", "error", err)
			}
		}
	}
}
