package models

import (
	"fmt"
	"sort"

	"go.uber.org/multierr"
)

// TaskFailure records the error a single task ended with.
type TaskFailure struct {
	Index int
	Err   error
}

func (f TaskFailure) Error() string {
	return fmt.Sprintf("task %d: %v", f.Index, f.Err)
}

func (f TaskFailure) Unwrap() error {
	return f.Err
}

// BatchOutcome aggregates the results of one distributor run.
// It is only read after every worker has joined.
type BatchOutcome struct {
	Total     int
	Completed int
	Bytes     int64
	Failures  []TaskFailure
	Cancelled bool
}

// Processed returns how many tasks ran to an end, successful or not.
func (o *BatchOutcome) Processed() int {
	return o.Completed + len(o.Failures)
}

// Failed returns the number of failed tasks.
func (o *BatchOutcome) Failed() int {
	return len(o.Failures)
}

// AllFailed is true when at least one task ran and none succeeded.
func (o *BatchOutcome) AllFailed() bool {
	return o.Completed == 0 && len(o.Failures) > 0
}

// Merge folds a worker-local partial outcome into o.
func (o *BatchOutcome) Merge(completed int, bytes int64, failures []TaskFailure) {
	o.Completed += completed
	o.Bytes += bytes
	o.Failures = append(o.Failures, failures...)
}

// SortFailures orders failures by task index.
func (o *BatchOutcome) SortFailures() {
	sort.Slice(o.Failures, func(i, j int) bool {
		return o.Failures[i].Index < o.Failures[j].Index
	})
}

// Err combines all task failures into one error, or nil.
func (o *BatchOutcome) Err() error {
	var err error
	for _, f := range o.Failures {
		err = multierr.Append(err, f)
	}
	return err
}
