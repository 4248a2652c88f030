package store

import (
	"context"
	"log/slog"
	"time"
)

// Janitor purges runs older than Retention every Interval until ctx ends.
type Janitor struct {
	Runs      *RunRepo
	Retention time.Duration
	Interval  time.Duration
	Log       *slog.Logger
}

func (j *Janitor) Start(ctx context.Context) {
	if j.Retention <= 0 {
		return
	}
	interval := j.Interval
	if interval <= 0 {
		interval = time.Hour
	}
	j.sweep(ctx)

	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			j.sweep(ctx)
		}
	}
}

func (j *Janitor) sweep(ctx context.Context) {
	n, err := j.Runs.PurgeOlderThan(ctx, j.Retention)
	if err != nil {
		j.Log.Warn("run purge failed", "error", err)
		return
	}
	if n > 0 {
		j.Log.Info("old runs purged", "count", n, "retention", j.Retention)
	}
}
