package batch

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/TheMichaelB/jcrypt/internal/crypto"
	"github.com/TheMichaelB/jcrypt/internal/events"
	"github.com/TheMichaelB/jcrypt/internal/models"
	"github.com/TheMichaelB/jcrypt/internal/state"
	"github.com/TheMichaelB/jcrypt/internal/storage"
	"github.com/TheMichaelB/jcrypt/internal/workers"
)

// ErrBatchInProgress is returned when Run is called while another run is active.
var ErrBatchInProgress = errors.New("batch already in progress")

// Engine runs batches of encrypt, decrypt and crack tasks.
type Engine struct {
	codec   crypto.Codec
	cracker crypto.Cracker
	store   storage.FileStore
	history state.Store // optional
	logger  *events.Logger

	// Results routed to stdout. Writes are serialized so files never interleave.
	outMu  sync.Mutex
	output io.Writer

	// Progress tracking
	progressMu sync.Mutex
	progress   atomic.Value // *Progress
	events     chan Event

	mu           sync.Mutex
	running      bool
	cancelFn     context.CancelFunc
	eventsClosed bool
}

// Progress is a snapshot of a running batch.
type Progress struct {
	Phase          string
	RunID          string
	TotalFiles     int
	ProcessedFiles int
	FailedFiles    int
	CurrentFile    string
	Bytes          int64
	StartTime      time.Time
}

// Event represents a batch event.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Task      *models.Task
	Error     error
	Progress  *Progress
}

// EventType defines batch event types.
type EventType string

const (
	EventStarted      EventType = "started"
	EventTaskStarted  EventType = "task_started"
	EventTaskComplete EventType = "task_complete"
	EventTaskFailed   EventType = "task_failed"
	EventCompleted    EventType = "completed"
	EventFailed       EventType = "failed"
)

// Report summarizes a finished batch.
type Report struct {
	RunID     string
	Mode      models.Operation
	Strategy  workers.Strategy
	Workers   int
	Tasks     []models.Task
	Outcome   *models.BatchOutcome
	StartedAt time.Time
	Elapsed   time.Duration
}

// NewEngine creates a batch engine. history may be nil.
func NewEngine(
	codec crypto.Codec,
	cracker crypto.Cracker,
	store storage.FileStore,
	history state.Store,
	output io.Writer,
	logger *events.Logger,
) *Engine {
	return &Engine{
		codec:        codec,
		cracker:      cracker,
		store:        store,
		history:      history,
		output:       output,
		logger:       logger.WithField("component", "batch_engine"),
		events:       make(chan Event, 100),
		eventsClosed: false,
	}
}

// Events returns the event channel of the current or next run. It is closed when the run ends.
func (e *Engine) Events() <-chan Event {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.events
}

// GetProgress returns current progress.
func (e *Engine) GetProgress() *Progress {
	if p := e.progress.Load(); p != nil {
		return p.(*Progress)
	}
	return nil
}

// Cancel stops claiming new tasks. Tasks already running finish.
func (e *Engine) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cancelFn != nil {
		e.logger.Info("Cancelling batch")
		e.cancelFn()
	}
}

// Run executes every task of req and returns once all started tasks have finished.
// Per-task failures are reported in Report.Outcome; the returned error is reserved for
// problems that prevent the batch from running. The events channel is closed on every
// return except ErrBatchInProgress.
func (e *Engine) Run(ctx context.Context, req *Request) (*Report, error) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		// The active run owns the channel and closes it when it ends.
		return nil, ErrBatchInProgress
	}
	e.running = true

	if e.eventsClosed {
		e.events = make(chan Event, 100)
		e.eventsClosed = false
	}

	ctx, cancel := context.WithCancel(ctx)
	e.cancelFn = cancel
	e.mu.Unlock()

	defer func() {
		cancel()
		e.mu.Lock()
		e.running = false
		e.cancelFn = nil
		if !e.eventsClosed {
			close(e.events)
			e.eventsClosed = true
		}
		e.mu.Unlock()
	}()

	tasks, err := BuildTasks(req)
	if err != nil {
		return nil, e.handleError(err)
	}
	mode, _ := req.Mode()

	dist, err := workers.New(workers.Config{Workers: req.Workers, Strategy: req.Strategy}, e.logger)
	if err != nil {
		return nil, e.handleError(err)
	}

	startedAt := time.Now()
	runID := newRunID(startedAt)
	ctx = events.WithRunID(events.WithLogger(ctx, e.logger), runID)
	logger := events.FromContext(ctx)

	progress := &Progress{
		Phase:      "running",
		RunID:      runID,
		TotalFiles: len(tasks),
		StartTime:  startedAt,
	}
	e.progress.Store(progress)

	logger.WithFields(map[string]interface{}{
		"mode":     string(mode),
		"files":    len(tasks),
		"workers":  dist.Workers(),
		"strategy": string(dist.Strategy()),
	}).Info("Starting batch")

	e.warnDuplicateOutputs(logger, tasks)

	e.emitEvent(Event{
		Type:      EventStarted,
		Timestamp: time.Now(),
		Progress:  progress,
	})

	outcome, err := dist.Run(ctx, len(tasks), func(ctx context.Context, index int) (int64, error) {
		return e.runTask(ctx, req, &tasks[index])
	})
	if err != nil {
		return nil, e.handleError(err)
	}
	elapsed := time.Since(startedAt)

	report := &Report{
		RunID:     runID,
		Mode:      mode,
		Strategy:  dist.Strategy(),
		Workers:   dist.Workers(),
		Tasks:     tasks,
		Outcome:   outcome,
		StartedAt: startedAt,
		Elapsed:   elapsed,
	}

	e.saveHistory(logger, report)

	final := e.updateProgress(func(p *Progress) {
		p.Phase = "completed"
		if outcome.Cancelled {
			p.Phase = "cancelled"
		}
		p.CurrentFile = ""
	})
	e.emitEvent(Event{
		Type:      EventCompleted,
		Timestamp: time.Now(),
		Progress:  final,
	})

	logger.WithFields(map[string]interface{}{
		"duration":  elapsed,
		"completed": outcome.Completed,
		"failed":    outcome.Failed(),
		"bytes":     outcome.Bytes,
		"cancelled": outcome.Cancelled,
	}).Info("Batch completed")

	return report, nil
}

// runTask reads, transforms and routes one file.
func (e *Engine) runTask(ctx context.Context, req *Request, task *models.Task) (int64, error) {
	ctx = events.WithTask(ctx, task.Index, task.Source)
	logger := events.FromContext(ctx)

	logger.Info(fmt.Sprintf("%s %s", task.Operation.Verb(), task.Source))

	e.updateProgress(func(p *Progress) { p.CurrentFile = task.Source })
	e.emitEvent(Event{Type: EventTaskStarted, Timestamp: time.Now(), Task: task})

	n, err := e.transform(ctx, req, task)
	if err != nil {
		err = models.WithPath(err, task.Source)
		logger.WithError(err).Error("Task failed")

		p := e.updateProgress(func(p *Progress) {
			p.ProcessedFiles++
			p.FailedFiles++
		})
		e.emitEvent(Event{Type: EventTaskFailed, Timestamp: time.Now(), Task: task, Error: err, Progress: p})
		return 0, err
	}

	p := e.updateProgress(func(p *Progress) {
		p.ProcessedFiles++
		p.Bytes += n
	})
	e.emitEvent(Event{Type: EventTaskComplete, Timestamp: time.Now(), Task: task, Progress: p})

	return n, nil
}

func (e *Engine) transform(ctx context.Context, req *Request, task *models.Task) (int64, error) {
	logger := events.FromContext(ctx)
	op := task.Operation

	var (
		clear []byte
		err   error
	)

	if op.ReadsRecord() {
		rec, err := e.store.ReadRecord(task.Source)
		if err != nil {
			return 0, err
		}

		if op.Cracks() {
			clear, err = e.cracker.Crack(ctx, rec)
		} else {
			clear, err = e.codec.Decrypt(req.DecryptPassword, rec)
		}
		if err != nil {
			return 0, err
		}
	} else {
		if clear, err = e.store.ReadRaw(task.Source); err != nil {
			return 0, err
		}
	}

	if !op.ProducesRecord() {
		return int64(len(clear)), e.deliver(logger, task, clear, nil)
	}

	if op.ReadsRecord() {
		if task.PlaintextOutput != "" {
			if err := e.store.WriteRaw(task.PlaintextOutput, clear); err != nil {
				return 0, err
			}
		}
		logger.Info("Encrypting text")
	}

	rec, err := e.codec.Encrypt(req.EncryptPassword, clear)
	if err != nil {
		return 0, err
	}

	return int64(len(clear)), e.deliver(logger, task, nil, rec)
}

// deliver writes clear or rec to the task's destination.
func (e *Engine) deliver(logger *events.Logger, task *models.Task, clear []byte, rec *models.EncryptedRecord) error {
	if task.Routing == models.RouteFile {
		if rec != nil {
			return e.store.WriteRecord(task.Output, rec)
		}
		return e.store.WriteRaw(task.Output, clear)
	}

	// Stdout gets the ciphertext without its checksum header.
	data := clear
	if rec != nil {
		data = rec.Content
	}

	if models.LooksBinary(data) {
		logger.Warn("Writing binary content to stdout")
	}

	e.outMu.Lock()
	defer e.outMu.Unlock()

	if _, err := e.output.Write(data); err != nil {
		return models.NewPathError(models.KindWriteFailed, "write", "stdout", err)
	}
	if _, err := io.WriteString(e.output, "\n"); err != nil {
		return models.NewPathError(models.KindWriteFailed, "write", "stdout", err)
	}

	return nil
}

func (e *Engine) saveHistory(logger *events.Logger, report *Report) {
	if e.history == nil {
		return
	}

	rec := models.NewRunRecord(report.RunID, report.Mode, string(report.Strategy), report.Workers,
		report.Tasks, report.Outcome, report.StartedAt, report.Elapsed)

	if err := e.history.Save(rec); err != nil {
		logger.WithError(err).Warn("Failed to save run history")
	}
}

// warnDuplicateOutputs flags tasks that would overwrite each other's output.
func (e *Engine) warnDuplicateOutputs(logger *events.Logger, tasks []models.Task) {
	seen := make(map[string]int, len(tasks))
	for _, t := range tasks {
		if t.Routing != models.RouteFile {
			continue
		}
		if prev, ok := seen[t.Output]; ok {
			logger.WithFields(map[string]interface{}{
				"output": t.Output,
				"first":  prev,
				"second": t.Index,
			}).Warn("Tasks share an output path; the last writer wins")
			continue
		}
		seen[t.Output] = t.Index
	}
}

// updateProgress applies fn to a copy of the current progress and publishes it.
func (e *Engine) updateProgress(fn func(*Progress)) *Progress {
	e.progressMu.Lock()
	defer e.progressMu.Unlock()

	updated := &Progress{}
	if cur := e.GetProgress(); cur != nil {
		*updated = *cur
	}
	fn(updated)
	e.progress.Store(updated)

	return updated
}

func (e *Engine) emitEvent(event Event) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.eventsClosed {
		return
	}

	select {
	case e.events <- event:
	default:
		// Channel full, drop event
		e.logger.Debug("Event channel full, dropping event")
	}
}

func (e *Engine) handleError(err error) error {
	e.emitEvent(Event{
		Type:      EventFailed,
		Timestamp: time.Now(),
		Error:     err,
	})
	return err
}

func newRunID(t time.Time) string {
	var b [3]byte
	_, _ = rand.Read(b[:])
	return t.UTC().Format("20060102-150405") + "-" + hex.EncodeToString(b[:])
}
