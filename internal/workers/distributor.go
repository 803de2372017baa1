// Package workers spreads a fixed list of independent tasks over a bounded set of
// goroutines. Each task index is claimed exactly once; results are collected per worker
// and merged after every worker has joined.
package workers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"golang.org/x/sync/errgroup"

	"github.com/TheMichaelB/jcrypt/internal/events"
	"github.com/TheMichaelB/jcrypt/internal/models"
)

// TaskFunc processes the task at index and returns the number of bytes it handled.
type TaskFunc func(ctx context.Context, index int) (int64, error)

// Config selects the worker count and coordination strategy.
type Config struct {
	Workers  int
	Strategy Strategy
}

// Distributor runs batches of tasks.
type Distributor struct {
	workers  int
	strategy Strategy
	logger   *events.Logger
}

// New validates cfg and creates a distributor. An empty strategy selects DefaultStrategy.
func New(cfg Config, logger *events.Logger) (*Distributor, error) {
	if cfg.Workers <= 0 {
		return nil, models.NewError(models.KindInvalidConfiguration, "new distributor",
			fmt.Errorf("worker count must be positive, got %d", cfg.Workers))
	}

	strategy := cfg.Strategy
	if strategy == "" {
		strategy = DefaultStrategy
	}
	if !strategy.valid() {
		return nil, models.NewError(models.KindInvalidConfiguration, "new distributor",
			fmt.Errorf("unknown strategy %q", strategy))
	}

	if logger == nil {
		logger = events.NewNopLogger()
	}

	return &Distributor{
		workers:  cfg.Workers,
		strategy: strategy,
		logger: logger.WithFields(map[string]interface{}{
			"component": "distributor",
			"strategy":  string(strategy),
		}),
	}, nil
}

// Workers returns the configured worker count.
func (d *Distributor) Workers() int {
	return d.workers
}

// Strategy returns the configured strategy.
func (d *Distributor) Strategy() Strategy {
	return d.strategy
}

// Run processes task indices 0..n-1 and blocks until every started task has finished.
// Task failures are reported in the outcome, not as the returned error. Cancelling ctx
// stops further claims; tasks already running complete.
func (d *Distributor) Run(ctx context.Context, n int, fn TaskFunc) (*models.BatchOutcome, error) {
	if n <= 0 {
		return nil, models.NewError(models.KindInvalidConfiguration, "run",
			errors.New("no tasks to distribute"))
	}
	if fn == nil {
		return nil, models.NewError(models.KindInvalidConfiguration, "run", errors.New("nil task function"))
	}

	effective := d.workers
	if n < effective {
		effective = n
	}

	d.logger.WithFields(map[string]interface{}{
		"tasks":   n,
		"workers": effective,
	}).Debug("Distributing tasks")

	start := time.Now()

	var (
		ws  []*worker
		err error
	)
	switch d.strategy {
	case StrategyPerTask:
		ws = d.runPerTask(ctx, n, effective, fn)
	case StrategyAtomic:
		ws = d.runAtomic(ctx, n, effective, fn)
	case StrategyLatch:
		ws = d.runLatch(ctx, n, effective, fn)
	case StrategyBarrier:
		ws = d.runBarrier(ctx, n, effective, fn)
	case StrategyLock:
		ws = d.runLock(ctx, n, effective, fn)
	case StrategyPool:
		ws, err = d.runPool(ctx, n, effective, fn)
	}
	if err != nil {
		return nil, err
	}

	outcome := &models.BatchOutcome{Total: n}
	for _, w := range ws {
		outcome.Merge(w.completed, w.bytes, w.failures)
	}
	outcome.SortFailures()
	outcome.Cancelled = outcome.Processed() < n

	d.logger.WithFields(map[string]interface{}{
		"completed": outcome.Completed,
		"failed":    outcome.Failed(),
		"cancelled": outcome.Cancelled,
		"duration":  time.Since(start),
	}).Debug("Distribution finished")

	return outcome, nil
}

func (d *Distributor) newWorkers(count int) []*worker {
	ws := make([]*worker, count)
	for i := range ws {
		ws[i] = newWorker(i, d.logger)
	}
	return ws
}

// atomicCursor hands out indices 0..n-1 with a single atomic add per claim.
func atomicCursor(n int) func() (int, bool) {
	var next atomic.Int64
	return func() (int, bool) {
		i := next.Add(1) - 1
		if i >= int64(n) {
			return 0, false
		}
		return int(i), true
	}
}

// runPerTask starts one goroutine per task, never more than limit at a time.
func (d *Distributor) runPerTask(ctx context.Context, n, limit int, fn TaskFunc) []*worker {
	var g errgroup.Group
	g.SetLimit(limit)

	ws := make([]*worker, 0, n)
	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			break
		}

		w := newWorker(i, d.logger)
		ws = append(ws, w)

		// g.Go may block for a free slot, so cancellation is checked again once running.
		g.Go(func() error {
			defer w.setState(StateStopped)

			w.setState(StateClaiming)
			if ctx.Err() != nil {
				return nil
			}

			w.setState(StateProcessing)
			w.process(ctx, fn, i)
			return nil
		})
	}

	_ = g.Wait()
	return ws
}

func (d *Distributor) runAtomic(ctx context.Context, n, count int, fn TaskFunc) []*worker {
	claim := atomicCursor(n)
	ws := d.newWorkers(count)

	var wg sync.WaitGroup
	for _, w := range ws {
		wg.Add(1)
		go func(w *worker) {
			defer wg.Done()
			w.loop(ctx, claim, fn)
		}(w)
	}

	wg.Wait()
	return ws
}

func (d *Distributor) runLatch(ctx context.Context, n, count int, fn TaskFunc) []*worker {
	claim := atomicCursor(n)
	ws := d.newWorkers(count)
	done := newLatch(count)

	for _, w := range ws {
		go func(w *worker) {
			defer done.CountDown()
			w.loop(ctx, claim, fn)
		}(w)
	}

	done.Wait()
	return ws
}

func (d *Distributor) runBarrier(ctx context.Context, n, count int, fn TaskFunc) []*worker {
	claim := atomicCursor(n)
	ws := d.newWorkers(count)
	join := newBarrier(count + 1)

	for _, w := range ws {
		go func(w *worker) {
			defer join.Await()
			w.loop(ctx, claim, fn)
		}(w)
	}

	join.Await()
	return ws
}

func (d *Distributor) runLock(ctx context.Context, n, count int, fn TaskFunc) []*worker {
	var (
		mu   sync.Mutex
		next int
	)
	claim := func() (int, bool) {
		mu.Lock()
		defer mu.Unlock()

		if next >= n {
			return 0, false
		}
		i := next
		next++
		return i, true
	}

	ws := d.newWorkers(count)

	var wg sync.WaitGroup
	for _, w := range ws {
		wg.Add(1)
		go func(w *worker) {
			defer wg.Done()
			w.loop(ctx, claim, fn)
		}(w)
	}

	wg.Wait()
	return ws
}

// runPool submits one claim loop per worker to a pool sized to the worker count.
func (d *Distributor) runPool(ctx context.Context, n, count int, fn TaskFunc) ([]*worker, error) {
	pool, err := ants.NewPool(count, ants.WithPreAlloc(true))
	if err != nil {
		return nil, models.NewError(models.KindInvalidConfiguration, "create pool", err)
	}
	defer pool.Release()

	claim := atomicCursor(n)
	ws := d.newWorkers(count)

	var wg sync.WaitGroup
	for _, w := range ws {
		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			w.loop(ctx, claim, fn)
		}); err != nil {
			wg.Done()
			d.logger.WithError(err).WithField("worker", w.id).Warn("Pool rejected worker")
		}
	}

	wg.Wait()
	return ws, nil
}
