package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/JonMunkholm/labelsync/internal/core"
)

// StartScheduler starts a run for each kind every interval until ctx is
// cancelled. A kind that is still busy from an earlier tick is skipped.
// It blocks; call it in a goroutine. A non-positive interval returns
// immediately.
func (r *Runner) StartScheduler(ctx context.Context, interval time.Duration, kinds []core.DatasetKind, opts Options) {
	if interval <= 0 {
		return
	}
	r.log.Info("scheduler started", "interval", interval.String(), "kinds", kinds)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info("scheduler stopped")
			return
		case <-ticker.C:
			r.tick(kinds, opts)
		}
	}
}

// tick performs one scheduling cycle.
func (r *Runner) tick(kinds []core.DatasetKind, opts Options) {
	for _, kind := range kinds {
		id, err := r.Start(kind, opts)
		switch {
		case errors.Is(err, ErrRunInProgress):
			r.log.Info("scheduled run skipped, previous run still active", "kind", kind)
		case err != nil:
			r.log.Error("scheduled run failed to start", "kind", kind, "error", err)
		default:
			r.log.Debug("scheduled run started", "kind", kind, "task_id", id)
		}
	}
}
