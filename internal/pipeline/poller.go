package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// CheckFunc performs one status check against the backend. It returns the
// observed handle, or an error when the check itself could not complete.
type CheckFunc func(ctx context.Context) (JobHandle, error)

// Poller repeatedly invokes a CheckFunc on a fixed interval until the
// handle reaches a terminal status, the attempt budget is exhausted, or
// the poller is cancelled. The terminal callback fires at most once.
//
// Cancel is idempotent and blocks until the polling goroutine has exited,
// so no status check can be in flight once Cancel returns.
type Poller struct {
	check       CheckFunc
	interval    time.Duration
	maxAttempts int
	logger      *slog.Logger

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	started   atomic.Bool
	cancelled atomic.Bool
	startOnce sync.Once
	stopOnce  sync.Once
}

// NewPoller builds a poller that checks every interval. maxAttempts of
// zero means unbounded; a positive value caps the number of checks, after
// which the terminal callback fires with JobTimeout.
func NewPoller(check CheckFunc, interval time.Duration, maxAttempts int, logger *slog.Logger) *Poller {
	ctx, cancel := context.WithCancel(context.Background())
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		check:       check,
		interval:    interval,
		maxAttempts: maxAttempts,
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
}

// Start launches the polling loop. onTerminal is invoked exactly once,
// from the poller's goroutine, unless the poller is cancelled first.
// Subsequent calls are no-ops.
func (p *Poller) Start(onTerminal func(JobHandle)) {
	p.startOnce.Do(func() {
		p.started.Store(true)
		go p.run(onTerminal)
	})
}

// Cancel stops the poller and waits for its goroutine to exit. After
// Cancel returns, no further status checks will be made and the terminal
// callback will not fire. Safe to call multiple times and safe to call
// on a poller that was never started.
func (p *Poller) Cancel() {
	p.stopOnce.Do(func() {
		p.cancelled.Store(true)
		p.cancel()
	})
	if p.started.Load() {
		<-p.done
	}
}

func (p *Poller) run(onTerminal func(JobHandle)) {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	var lastID string
	for attempt := 1; ; attempt++ {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
		}

		handle, err := p.check(p.ctx)
		if p.cancelled.Load() {
			return
		}
		if err != nil {
			// Transient check failures are not terminal; keep polling
			// until the status resolves or the budget runs out.
			p.logger.Warn("status check failed", "attempt", attempt, "error", err)
		} else {
			lastID = handle.ID
			if handle.Status.Terminal() {
				onTerminal(handle)
				return
			}
		}

		if p.maxAttempts > 0 && attempt >= p.maxAttempts {
			p.logger.Warn("poll attempt budget exhausted", "attempts", attempt)
			onTerminal(JobHandle{ID: lastID, Status: JobTimeout})
			return
		}
	}
}
