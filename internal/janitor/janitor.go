// Package janitor runs periodic maintenance: purging expired refresh tokens and closing
// listings whose duration has run out.
package janitor

import (
	"context"
	"log/slog"
	"time"
)

// Task is one maintenance step. Run returns the number of rows it touched.
type Task struct {
	Name string
	Run  func(ctx context.Context) (int64, error)
}

// Janitor runs its tasks on a fixed interval until its context ends.
type Janitor struct {
	interval time.Duration
	tasks    []Task
	logger   *slog.Logger
}

// New creates a Janitor. A non-positive interval defaults to one hour.
func New(interval time.Duration, logger *slog.Logger, tasks ...Task) *Janitor {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Janitor{interval: interval, tasks: tasks, logger: logger}
}

// Run executes every task once immediately and then on each tick. It returns when ctx is done.
func (j *Janitor) Run(ctx context.Context) {
	j.RunOnce(ctx)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.RunOnce(ctx)
		}
	}
}

// RunOnce executes every task in order. A failing task is logged and does not stop the rest.
func (j *Janitor) RunOnce(ctx context.Context) {
	for _, task := range j.tasks {
		if ctx.Err() != nil {
			return
		}
		start := time.Now()
		affected, err := task.Run(ctx)
		if err != nil {
			j.logger.Error("janitor task failed", "task", task.Name, "error", err)
			continue
		}
		j.logger.Info("janitor task completed",
			slog.String("task", task.Name),
			slog.Int64("affected", affected),
			slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
		)
	}
}
