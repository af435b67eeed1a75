package tasks

import (
	"context"
	"sync"
	"time"

	"github.com/muset-ai/muset-go/logger"
)

// DefaultInterval is the poll cadence used when Start receives a
// non-positive interval.
const DefaultInterval = 2 * time.Second

// Callbacks receive poll outcomes. Nil entries are skipped.
type Callbacks struct {
	// OnStatus fires on every successful status query, terminal included.
	OnStatus func(*Snapshot)
	// OnComplete fires once when the task reaches a terminal status.
	OnComplete func(*Snapshot)
	// OnError fires on query failures; the poll loop keeps running.
	OnError func(error)
}

// Poller repeatedly queries the status of one task on a fixed interval
// until the task reaches a terminal state or Stop is called.
//
// At most one poll loop is active per Poller: calling Start while running
// is a no-op. Queries run synchronously inside the loop, so a query that
// outlasts the interval delays the next tick instead of overlapping it —
// there is never more than one in-flight status query per Poller.
//
// Stop must not be called from within a callback; a terminal status stops
// the loop on its own.
type Poller struct {
	client    StatusClient
	taskID    string
	callbacks Callbacks
	log       logger.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	latest *Snapshot
}

// NewPoller creates an idle poller for the given task.
func NewPoller(client StatusClient, taskID string, callbacks Callbacks, log logger.Logger) *Poller {
	return &Poller{
		client:    client,
		taskID:    taskID,
		callbacks: callbacks,
		log:       log,
	}
}

// Start begins polling at the given interval. If the poller is already
// running this is a no-op, logged as a warning.
func (p *Poller) Start(interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}

	p.mu.Lock()
	if p.cancel != nil {
		p.mu.Unlock()
		p.log.Warn().
			Str("task_id", p.taskID).
			Msg("task poller already running, ignoring start")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	p.cancel = cancel
	p.done = done
	p.mu.Unlock()

	p.log.Debug().
		Str("task_id", p.taskID).
		Dur("interval", interval).
		Msg("task poller started")

	go p.loop(ctx, interval, done)
}

// Stop cancels the poll loop and waits for it to exit. After Stop
// returns, no callback will be invoked. Idempotent.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	done := p.done
	p.cancel = nil
	p.done = nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done

	p.log.Debug().
		Str("task_id", p.taskID).
		Msg("task poller stopped")
}

// Running reports whether the poll loop is active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}

// Latest returns the most recently observed snapshot, if any.
func (p *Poller) Latest() (*Snapshot, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.latest, p.latest != nil
}

func (p *Poller) loop(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if p.tick(ctx) {
				return
			}
		}
	}
}

// tick performs one status query. It returns true when the loop must
// exit (terminal status observed or poller stopped mid-query).
func (p *Poller) tick(ctx context.Context) bool {
	snap, err := p.client.TaskStatus(ctx, p.taskID)

	// Stopped while the query was in flight: suppress all callbacks.
	if ctx.Err() != nil {
		return true
	}

	if err != nil {
		p.log.Warn().
			Err(err).
			Str("task_id", p.taskID).
			Msg("task status query failed")
		if p.callbacks.OnError != nil {
			p.callbacks.OnError(err)
		}
		// Transient query failures never stop the loop.
		return false
	}

	p.mu.Lock()
	p.latest = snap
	p.mu.Unlock()

	if p.callbacks.OnStatus != nil {
		p.callbacks.OnStatus(snap)
	}

	if !snap.Status.Terminal() {
		return false
	}

	// Transition to idle before the completion callback so that
	// Running() observed from the callback already reports false.
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
		p.done = nil
	}
	p.mu.Unlock()

	if p.callbacks.OnComplete != nil {
		p.callbacks.OnComplete(snap)
	}
	return true
}
