package models

import (
	"fmt"
	"strings"
	"time"
)

// RunRecord is the persisted summary of one batch invocation. Passwords are never stored.
type RunRecord struct {
	ID        string          `json:"id"`
	Mode      Operation       `json:"mode"`
	Strategy  string          `json:"strategy"`
	Workers   int             `json:"workers"`
	Files     []string        `json:"files"`
	Completed int             `json:"completed"`
	Failed    int             `json:"failed"`
	Bytes     int64           `json:"bytes"`
	Elapsed   time.Duration   `json:"elapsed"`
	StartedAt time.Time       `json:"started_at"`
	Cancelled bool            `json:"cancelled,omitempty"`
	Failures  []FailureRecord `json:"failures,omitempty"`
}

// FailureRecord is the persisted form of a TaskFailure.
type FailureRecord struct {
	Index   int    `json:"index"`
	Path    string `json:"path"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// NewRunRecord builds a record from a finished batch.
func NewRunRecord(id string, mode Operation, strategy string, workers int, tasks []Task,
	outcome *BatchOutcome, startedAt time.Time, elapsed time.Duration) *RunRecord {
	rec := &RunRecord{
		ID:        id,
		Mode:      mode,
		Strategy:  strategy,
		Workers:   workers,
		Files:     make([]string, len(tasks)),
		Completed: outcome.Completed,
		Failed:    outcome.Failed(),
		Bytes:     outcome.Bytes,
		Elapsed:   elapsed,
		StartedAt: startedAt,
		Cancelled: outcome.Cancelled,
	}

	for i, t := range tasks {
		rec.Files[i] = t.Source
	}

	for _, f := range outcome.Failures {
		fr := FailureRecord{
			Index:   f.Index,
			Kind:    KindOf(f.Err).String(),
			Message: f.Err.Error(),
		}
		if f.Index >= 0 && f.Index < len(tasks) {
			fr.Path = tasks[f.Index].Source
		}
		rec.Failures = append(rec.Failures, fr)
	}

	return rec
}

// Validate checks the record before it is persisted.
func (r *RunRecord) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("run ID is required")
	}

	if r.Completed < 0 || r.Failed < 0 {
		return fmt.Errorf("negative task counts")
	}

	if r.Completed+r.Failed > len(r.Files) {
		return fmt.Errorf("run %s reports %d results for %d files", r.ID, r.Completed+r.Failed, len(r.Files))
	}

	return nil
}
