package tasks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// WaitAll polls every task concurrently until each reaches a terminal
// status, returning the final snapshot per task id. It fails fast: the
// first watch ended by cancellation aborts the remaining ones.
func WaitAll(ctx context.Context, client StatusClient, interval time.Duration, taskIDs ...string) (map[string]*Snapshot, error) {
	g, gctx := errgroup.WithContext(ctx)

	var mu sync.Mutex
	finals := make(map[string]*Snapshot, len(taskIDs))

	for _, taskID := range taskIDs {
		g.Go(func() error {
			var last Snapshot
			observed := false
			for snap := range Watch(gctx, client, taskID, interval) {
				last = snap
				observed = true
			}

			if !observed || !last.Status.Terminal() {
				if err := gctx.Err(); err != nil {
					return err
				}
				return fmt.Errorf("watch for task %s ended without terminal status", taskID)
			}

			mu.Lock()
			finals[taskID] = &last
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return finals, nil
}
