// SPDX-License-Identifier: MPL-2.0

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/rmgprov/rmgprov/internal/pipeline"

// ErrStepFailed is the sentinel error wrapped by StepError.
var ErrStepFailed = errors.New("provisioning step failed")

type (
	// StepExecutor applies steps to a runtime image.
	//
	// Begin is called once before the first step. Execute is called for each
	// step in plan order and must leave the step's effect layered on top of
	// the previous step's. Finish is called exactly once after Begin
	// succeeded; when succeeded is false the executor must discard every
	// partial result.
	StepExecutor interface {
		Begin(ctx context.Context, plan *Plan) error
		Execute(ctx context.Context, step Step) error
		Finish(ctx context.Context, succeeded bool) error
	}

	// StepError is returned by Runner.Run when a step fails.
	StepError struct {
		Step    StepID
		Ordinal int
		Kind    FailureKind
		Err     error
	}

	// Result summarizes a run.
	Result struct {
		Plan     *Plan
		Status   Status
		Records  []StepRecord
		Duration time.Duration
		// Failed is set when Status is StatusFailed.
		Failed *StepError
	}

	// RunnerOption configures a Runner.
	RunnerOption func(*Runner)

	// Runner drives a StepExecutor through a plan, sequentially and fail-fast.
	Runner struct {
		executor StepExecutor
		logger   *slog.Logger
		tracer   trace.Tracer
		now      func() time.Time
	}
)

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (%s) failed: %v", e.Ordinal, e.Step, e.Err)
}

func (e *StepError) Unwrap() []error { return []error{ErrStepFailed, e.Err} }

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = l
	}
}

// WithTracer sets the tracer. The default is the global provider's tracer.
func WithTracer(t trace.Tracer) RunnerOption {
	return func(r *Runner) {
		r.tracer = t
	}
}

// NewRunner creates a runner for the executor.
func NewRunner(executor StepExecutor, opts ...RunnerOption) *Runner {
	r := &Runner{
		executor: executor,
		logger:   slog.Default(),
		tracer:   otel.Tracer(tracerName),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes the plan. On the first failing step it stops, tells the
// executor to discard partial results, and returns a *StepError alongside
// the result. Errors from Begin are returned as is with a nil result.
func (r *Runner) Run(ctx context.Context, plan *Plan) (res *Result, err error) {
	if plan == nil || len(plan.Steps) == 0 {
		return nil, errors.New("empty plan")
	}
	if err := ValidateOrder(plan.Steps); err != nil {
		return nil, err
	}

	ctx, span := r.tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("variant", plan.Variant.Name),
		attribute.String("target", string(plan.Variant.Target)),
		attribute.Int("steps", len(plan.Steps)),
	))
	defer span.End()

	started := r.now()
	if err := r.executor.Begin(ctx, plan); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "begin failed")
		return nil, fmt.Errorf("prepare pipeline: %w", err)
	}

	run := NewRun(plan)
	var stepErr *StepError
	for {
		step, ok := run.Next()
		if !ok {
			break
		}
		if err := r.runStep(ctx, run, step); err != nil {
			if !errors.As(err, &stepErr) {
				_ = r.executor.Finish(ctx, false) // State machine misuse; result is unusable either way
				return nil, err
			}
			break
		}
	}

	finishErr := r.executor.Finish(ctx, stepErr == nil)

	res = &Result{
		Plan:     plan,
		Status:   run.Status(),
		Records:  run.Records(),
		Duration: r.now().Sub(started),
		Failed:   stepErr,
	}

	if stepErr != nil {
		span.SetStatus(codes.Error, stepErr.Error())
		if finishErr != nil {
			r.logger.Warn("discarding partial image failed", "error", finishErr)
		}
		return res, stepErr
	}
	if finishErr != nil {
		span.SetStatus(codes.Error, "finish failed")
		return res, fmt.Errorf("finalize image: %w", finishErr)
	}

	r.logger.Info("pipeline succeeded", "variant", plan.Variant.Name, "duration", res.Duration.Round(time.Millisecond))
	return res, nil
}

func (r *Runner) runStep(ctx context.Context, run *Run, step Step) error {
	ordinal := step.ID.Ordinal()
	if err := run.Start(step.ID); err != nil {
		return err
	}

	ctx, span := r.tracer.Start(ctx, "pipeline.step", trace.WithAttributes(
		attribute.String("step", string(step.ID)),
		attribute.Int("ordinal", ordinal),
	))
	defer span.End()

	r.logger.Info("step started", "step", step.ID, "ordinal", ordinal, "title", step.Title)
	started := r.now()

	err := ctx.Err()
	if err == nil {
		err = r.executor.Execute(ctx, step)
	}
	if err != nil {
		kind := ClassifyFailure(step.ID, err)
		span.RecordError(err)
		span.SetAttributes(attribute.String("failure.kind", string(kind)))
		span.SetStatus(codes.Error, string(kind))
		if ferr := run.Fail(step.ID, err); ferr != nil {
			return ferr
		}
		r.logger.Error("step failed", "step", step.ID, "ordinal", ordinal, "kind", kind, "error", err)
		return &StepError{Step: step.ID, Ordinal: ordinal, Kind: kind, Err: err}
	}

	if err := run.Succeed(step.ID); err != nil {
		return err
	}
	r.logger.Info("step finished", "step", step.ID, "ordinal", ordinal, "duration", r.now().Sub(started).Round(time.Millisecond))
	return nil
}
