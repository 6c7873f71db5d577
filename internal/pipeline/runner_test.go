// SPDX-License-Identifier: MPL-2.0

package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"testing"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type recordingExecutor struct {
	failOn   StepID
	failErr  error
	beginErr error
	cancel   context.CancelFunc

	begun    bool
	executed []StepID
	finished []bool
}

func (e *recordingExecutor) Begin(context.Context, *Plan) error {
	e.begun = true
	return e.beginErr
}

func (e *recordingExecutor) Execute(_ context.Context, step Step) error {
	e.executed = append(e.executed, step.ID)
	if step.ID == e.failOn {
		if e.cancel != nil {
			e.cancel()
		}
		return e.failErr
	}
	return nil
}

func (e *recordingExecutor) Finish(_ context.Context, succeeded bool) error {
	e.finished = append(e.finished, succeeded)
	return nil
}

func quietRunner(exec StepExecutor) *Runner {
	return NewRunner(exec, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
}

func TestRunner_Success(t *testing.T) {
	t.Parallel()
	plan := mustPlan(t, "full")
	exec := &recordingExecutor{}

	res, err := quietRunner(exec).Run(context.Background(), plan)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if res.Status != StatusSucceeded {
		t.Errorf("status = %s, want succeeded", res.Status)
	}
	if !slices.Equal(exec.executed, planIDs(plan)) {
		t.Errorf("executed %v, want %v", exec.executed, planIDs(plan))
	}
	if !slices.Equal(exec.finished, []bool{true}) {
		t.Errorf("finished = %v, want [true]", exec.finished)
	}
	for _, rec := range res.Records {
		if rec.Status != StatusSucceeded {
			t.Errorf("%s status = %s", rec.Step.ID, rec.Status)
		}
	}
}

func TestRunner_UnreachableSourceStopsAtFetch(t *testing.T) {
	t.Parallel()
	plan := mustPlan(t, "full")
	cloneErr := errors.New("fatal: unable to access 'https://invalid.example/RMG-Py.git/': Could not resolve host: invalid.example")
	exec := &recordingExecutor{failOn: StepFetchSource, failErr: cloneErr}

	res, err := quietRunner(exec).Run(context.Background(), plan)
	if err == nil {
		t.Fatal("Run() should fail")
	}

	var stepErr *StepError
	if !errors.As(err, &stepErr) {
		t.Fatalf("error = %T, want *StepError", err)
	}
	if stepErr.Step != StepFetchSource || stepErr.Ordinal != 2 {
		t.Errorf("failed at %s (%d), want fetch-source (2)", stepErr.Step, stepErr.Ordinal)
	}
	if stepErr.Kind != FailureFetch {
		t.Errorf("kind = %s, want fetch", stepErr.Kind)
	}
	if !errors.Is(err, ErrStepFailed) || !errors.Is(err, cloneErr) {
		t.Error("StepError should wrap ErrStepFailed and the cause")
	}
	if slices.Contains(exec.executed, StepCompile) {
		t.Error("compile step must not be attempted after a fetch failure")
	}
	if !slices.Equal(exec.finished, []bool{false}) {
		t.Errorf("finished = %v, want [false]", exec.finished)
	}
	if res.Status != StatusFailed || res.Failed != stepErr {
		t.Errorf("result status = %s, failed = %v", res.Status, res.Failed)
	}

	for _, rec := range res.Records {
		switch {
		case rec.Ordinal < 2 && rec.Status != StatusSucceeded:
			t.Errorf("%s status = %s, want succeeded", rec.Step.ID, rec.Status)
		case rec.Ordinal == 2 && rec.Status != StatusFailed:
			t.Errorf("%s status = %s, want failed", rec.Step.ID, rec.Status)
		case rec.Ordinal > 2 && rec.Status != StatusPending:
			t.Errorf("%s status = %s, want pending", rec.Step.ID, rec.Status)
		}
	}
}

func TestRunner_BeginFailure(t *testing.T) {
	t.Parallel()
	plan := mustPlan(t, "minimal")
	exec := &recordingExecutor{beginErr: errors.New("no build context")}

	res, err := quietRunner(exec).Run(context.Background(), plan)
	if err == nil || res != nil {
		t.Fatalf("Run() = %v, %v; want nil result and error", res, err)
	}
	if len(exec.executed) != 0 || len(exec.finished) != 0 {
		t.Errorf("no step should run after Begin fails: executed=%v finished=%v", exec.executed, exec.finished)
	}
}

func TestRunner_CancellationFailsCurrentStep(t *testing.T) {
	t.Parallel()
	plan := mustPlan(t, "full")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	exec := &recordingExecutor{failOn: StepToolkitEnv, failErr: context.Canceled, cancel: cancel}

	_, err := quietRunner(exec).Run(ctx, plan)
	var stepErr *StepError
	if !errors.As(err, &stepErr) {
		t.Fatalf("error = %v, want *StepError", err)
	}
	if stepErr.Step != StepToolkitEnv || stepErr.Kind != FailureCanceled {
		t.Errorf("got %s/%s, want toolkit-env/canceled", stepErr.Step, stepErr.Kind)
	}
	if slices.Contains(exec.executed, StepCompile) {
		t.Error("no step may start after cancellation")
	}
}

func TestRunner_RejectsMisorderedPlan(t *testing.T) {
	t.Parallel()
	plan := mustPlan(t, "full")
	plan.Steps[0], plan.Steps[3] = plan.Steps[3], plan.Steps[0]
	exec := &recordingExecutor{}

	_, err := quietRunner(exec).Run(context.Background(), plan)
	if !errors.Is(err, ErrOrderViolation) {
		t.Fatalf("Run() error = %v, want ErrOrderViolation", err)
	}
	if exec.begun {
		t.Error("executor must not begin for a misordered plan")
	}
}

func TestRunner_EmptyPlan(t *testing.T) {
	t.Parallel()
	if _, err := quietRunner(&recordingExecutor{}).Run(context.Background(), &Plan{}); err == nil {
		t.Error("Run(empty plan) should fail")
	}
}

func TestRunner_Spans(t *testing.T) {
	t.Parallel()
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	plan := mustPlan(t, "full")
	exec := &recordingExecutor{failOn: StepFetchSource, failErr: errors.New("Could not resolve host: github.com")}
	runner := NewRunner(exec,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithTracer(provider.Tracer("test")),
	)
	if _, err := runner.Run(t.Context(), plan); err == nil {
		t.Fatal("expected failure")
	}

	spans := recorder.Ended()
	if len(spans) != 3 {
		t.Fatalf("ended spans = %d, want 3 (two steps and the run)", len(spans))
	}
	failed := spans[1]
	if failed.Name() != "pipeline.step" || failed.Status().Code != codes.Error {
		t.Errorf("second span = %s %v, want failed pipeline.step", failed.Name(), failed.Status())
	}
	var kind string
	for _, attr := range failed.Attributes() {
		if attr.Key == "failure.kind" {
			kind = attr.Value.AsString()
		}
	}
	if kind != string(FailureFetch) {
		t.Errorf("failure.kind = %q, want %q", kind, FailureFetch)
	}
	if run := spans[2]; run.Name() != "pipeline.run" || run.Status().Code != codes.Error {
		t.Errorf("run span = %s %v", run.Name(), run.Status())
	}
}
