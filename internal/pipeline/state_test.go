// SPDX-License-Identifier: MPL-2.0

package pipeline

import (
	"errors"
	"testing"
)

func TestRun_LinearTransitions(t *testing.T) {
	t.Parallel()
	run := NewRun(mustPlan(t, "minimal"))

	if run.Status() != StatusPending {
		t.Fatalf("initial status = %s", run.Status())
	}
	if err := run.Start(StepCompile); !errors.Is(err, ErrIllegalTransition) {
		t.Errorf("starting a later step = %v, want ErrIllegalTransition", err)
	}
	if err := run.Succeed(StepToolchain); !errors.Is(err, ErrIllegalTransition) {
		t.Errorf("succeeding a pending step = %v, want ErrIllegalTransition", err)
	}

	for {
		step, ok := run.Next()
		if !ok {
			break
		}
		if err := run.Start(step.ID); err != nil {
			t.Fatalf("Start(%s): %v", step.ID, err)
		}
		if run.Status() != StatusRunning {
			t.Errorf("status while running = %s", run.Status())
		}
		if err := run.Succeed(step.ID); err != nil {
			t.Fatalf("Succeed(%s): %v", step.ID, err)
		}
	}

	if run.Status() != StatusSucceeded {
		t.Errorf("final status = %s, want succeeded", run.Status())
	}
	if _, ok := run.FailedStep(); ok {
		t.Error("a succeeded run has no failed step")
	}
}

func TestRun_FailureIsTerminal(t *testing.T) {
	t.Parallel()
	run := NewRun(mustPlan(t, "full"))
	cause := errors.New("make: *** [all] Error 1")

	if err := run.Start(StepToolchain); err != nil {
		t.Fatal(err)
	}
	if err := run.Fail(StepToolchain, cause); err != nil {
		t.Fatal(err)
	}

	if run.Status() != StatusFailed {
		t.Errorf("status = %s, want failed", run.Status())
	}
	if _, ok := run.Next(); ok {
		t.Error("no step may be next after a failure")
	}
	if err := run.Start(StepFetchSource); !errors.Is(err, ErrIllegalTransition) {
		t.Errorf("Start after failure = %v, want ErrIllegalTransition", err)
	}
	rec, ok := run.FailedStep()
	if !ok || rec.Step.ID != StepToolchain || rec.Err != cause || rec.Ordinal != 1 {
		t.Errorf("FailedStep() = %+v, %v", rec, ok)
	}
}
