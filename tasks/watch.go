package tasks

import (
	"context"
	"time"
)

// Watch polls the task on the given interval and returns a lazy, finite
// sequence of status snapshots. The channel closes after the first
// terminal snapshot has been delivered, or when ctx is cancelled. Query
// failures are skipped; the sequence carries successful observations
// only.
func Watch(ctx context.Context, client StatusClient, taskID string, interval time.Duration) <-chan Snapshot {
	if interval <= 0 {
		interval = DefaultInterval
	}

	ch := make(chan Snapshot)
	go func() {
		defer close(ch)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			snap, err := client.TaskStatus(ctx, taskID)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				continue
			}

			select {
			case <-ctx.Done():
				return
			case ch <- *snap:
			}

			if snap.Status.Terminal() {
				return
			}
		}
	}()
	return ch
}
