package workers

import (
	"context"
	"fmt"

	"github.com/TheMichaelB/jcrypt/internal/events"
	"github.com/TheMichaelB/jcrypt/internal/models"
)

// WorkerState is the lifecycle position of one worker.
type WorkerState int

const (
	StateIdle WorkerState = iota
	StateClaiming
	StateProcessing
	StateStopped
)

func (s WorkerState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateClaiming:
		return "claiming"
	case StateProcessing:
		return "processing"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("WorkerState(%d)", int(s))
	}
}

// worker owns its counters and failure list. Nothing else touches them until join.
type worker struct {
	id        int
	state     WorkerState
	completed int
	bytes     int64
	failures  []models.TaskFailure
	logger    *events.Logger
}

func newWorker(id int, logger *events.Logger) *worker {
	return &worker{
		id:     id,
		state:  StateIdle,
		logger: logger,
	}
}

func (w *worker) setState(s WorkerState) {
	if w.logger.Enabled(events.DebugLevel) {
		w.logger.WithFields(map[string]interface{}{
			"worker": w.id,
			"from":   w.state.String(),
			"to":     s.String(),
		}).Debug("Worker state")
	}
	w.state = s
}

// loop claims and processes tasks until claim reports exhaustion or ctx is done.
// Cancellation is observed only while claiming.
func (w *worker) loop(ctx context.Context, claim func() (int, bool), fn TaskFunc) {
	for {
		w.setState(StateClaiming)

		if ctx.Err() != nil {
			w.setState(StateStopped)
			return
		}

		index, ok := claim()
		if !ok {
			w.setState(StateStopped)
			return
		}

		w.setState(StateProcessing)
		w.process(ctx, fn, index)
		w.setState(StateIdle)
	}
}

// process runs one task, turning a panic into a failure of that task.
func (w *worker) process(ctx context.Context, fn TaskFunc, index int) {
	var (
		n   int64
		err error
	)

	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("task panicked: %v", r)
				w.logger.WithFields(map[string]interface{}{
					"worker": w.id,
					"task":   index,
				}).Error("Recovered task panic")
			}
		}()
		n, err = fn(ctx, index)
	}()

	if err != nil {
		w.failures = append(w.failures, models.TaskFailure{Index: index, Err: err})
		return
	}

	w.completed++
	w.bytes += n
}
