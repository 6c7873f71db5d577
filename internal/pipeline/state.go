// SPDX-License-Identifier: MPL-2.0

package pipeline

import (
	"errors"
	"fmt"
	"time"
)

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// ErrIllegalTransition is returned when a run is driven out of order.
var ErrIllegalTransition = errors.New("illegal state transition")

type (
	// Status is the state of a step or of a whole run.
	Status string

	// StepRecord is the state of one step within a run.
	StepRecord struct {
		Step     Step
		Ordinal  int
		Status   Status
		Started  time.Time
		Finished time.Time
		Err      error
	}

	// Run is the linear state machine of one pipeline execution.
	// Steps move pending → running → succeeded|failed strictly in plan order;
	// a step may only start when every earlier step has succeeded. The run
	// ends SUCCEEDED when the last step succeeds, or FAILED at the first
	// failing step, after which nothing else may start.
	Run struct {
		records []StepRecord
		current int
		status  Status
		now     func() time.Time
	}
)

// NewRun creates a run with every step of the plan pending.
func NewRun(plan *Plan) *Run {
	r := &Run{
		records: make([]StepRecord, len(plan.Steps)),
		status:  StatusPending,
		now:     time.Now,
	}
	for i, s := range plan.Steps {
		r.records[i] = StepRecord{Step: s, Ordinal: s.ID.Ordinal(), Status: StatusPending}
	}
	return r
}

// Status returns the status of the whole run.
func (r *Run) Status() Status { return r.status }

// Records returns a copy of the per-step records.
func (r *Run) Records() []StepRecord {
	out := make([]StepRecord, len(r.records))
	copy(out, r.records)
	return out
}

// Next returns the step that may start next, if any.
func (r *Run) Next() (Step, bool) {
	if r.status == StatusFailed || r.current >= len(r.records) {
		return Step{}, false
	}
	rec := r.records[r.current]
	if rec.Status != StatusPending {
		return Step{}, false
	}
	return rec.Step, true
}

// Start moves the next step to running.
func (r *Run) Start(id StepID) error {
	next, ok := r.Next()
	if !ok || next.ID != id {
		return fmt.Errorf("%w: cannot start %s in run state %s", ErrIllegalTransition, id, r.status)
	}
	r.records[r.current].Status = StatusRunning
	r.records[r.current].Started = r.now()
	r.status = StatusRunning
	return nil
}

// Succeed marks the running step as succeeded.
func (r *Run) Succeed(id StepID) error {
	rec, err := r.running(id)
	if err != nil {
		return err
	}
	rec.Status = StatusSucceeded
	rec.Finished = r.now()
	r.current++
	if r.current == len(r.records) {
		r.status = StatusSucceeded
	}
	return nil
}

// Fail marks the running step as failed and ends the run.
func (r *Run) Fail(id StepID, cause error) error {
	rec, err := r.running(id)
	if err != nil {
		return err
	}
	rec.Status = StatusFailed
	rec.Finished = r.now()
	rec.Err = cause
	r.status = StatusFailed
	return nil
}

// FailedStep returns the record of the failing step if the run failed.
func (r *Run) FailedStep() (StepRecord, bool) {
	if r.status != StatusFailed {
		return StepRecord{}, false
	}
	return r.records[r.current], true
}

func (r *Run) running(id StepID) (*StepRecord, error) {
	if r.current >= len(r.records) {
		return nil, fmt.Errorf("%w: no step is running", ErrIllegalTransition)
	}
	rec := &r.records[r.current]
	if rec.Step.ID != id || rec.Status != StatusRunning {
		return nil, fmt.Errorf("%w: %s is not running", ErrIllegalTransition, id)
	}
	return rec, nil
}
