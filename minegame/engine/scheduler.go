package engine

import (
	"context"
	"sync"
	"time"

	"log/slog"
)

// Pass is one independently scheduled batch job over the ledger. Passes
// have no ordering guarantee between each other; within a pass, TryLock
// keeps at most one instance running, so a fire that lands while the
// previous run is still going is skipped rather than stacked.
type Pass struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error

	mu sync.Mutex
}

// Trigger runs the pass once if it is not already running. A pass that
// overruns its interval is left to finish; partial application of accrual
// would corrupt per-unit time bookkeeping.
func (p *Pass) Trigger(ctx context.Context) {
	if !p.mu.TryLock() {
		slog.Warn("Pass still running, skipping fire",
			slog.String("type", "sched"),
			slog.String("pass", p.Name))
		return
	}
	defer p.mu.Unlock()

	start := time.Now()
	if err := p.Run(ctx); err != nil {
		slog.Error("Pass failed, will retry next interval",
			slog.String("type", "sched"),
			slog.String("pass", p.Name),
			slog.Duration("took", time.Since(start)),
			slog.Any("error", err))
		return
	}
	slog.Info("Pass completed",
		slog.String("type", "sched"),
		slog.String("pass", p.Name),
		slog.Duration("took", time.Since(start)))
}

// Scheduler drives the engine passes on their own tickers.
type Scheduler struct {
	passes []*Pass
	wg     sync.WaitGroup
}

func NewScheduler(passes ...*Pass) *Scheduler {
	return &Scheduler{passes: passes}
}

// Start launches one goroutine per pass and fires each immediately so a
// freshly booted process catches up without waiting a full interval. It
// returns without blocking; cancel ctx to stop, then Wait.
func (s *Scheduler) Start(ctx context.Context) {
	for _, pass := range s.passes {
		s.wg.Add(1)
		go func(p *Pass) {
			defer s.wg.Done()

			p.Trigger(ctx)

			ticker := time.NewTicker(p.Interval)
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					p.Trigger(ctx)
				}
			}
		}(pass)
	}

	slog.Info("Scheduler started",
		slog.String("type", "sched"),
		slog.Int("passes", len(s.passes)))
}

// Wait blocks until all pass goroutines have exited.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}
