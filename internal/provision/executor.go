// SPDX-License-Identifier: MPL-2.0

package provision

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"github.com/google/uuid"

	"github.com/rmgprov/rmgprov/internal/container"
	"github.com/rmgprov/rmgprov/internal/manifest"
	"github.com/rmgprov/rmgprov/internal/pipeline"
)

const (
	// StageRepository is the image repository intermediate stages are tagged in.
	StageRepository = "rmgprov-stage"

	LabelRun     = "io.rmgprov.run"
	LabelVariant = "io.rmgprov.variant"
	LabelStep    = "io.rmgprov.step"
)

// ErrNotStarted is returned when Execute or Finish is called before Begin.
var ErrNotStarted = errors.New("layered executor not started")

var _ pipeline.StepExecutor = (*LayeredExecutor)(nil)

type (
	// ExecutorConfig configures a LayeredExecutor.
	ExecutorConfig struct {
		// ContextDir is the host application tree. Steps that read local
		// files take them from here.
		ContextDir string
		// Tag is applied to the final stage when every step succeeded.
		Tag container.ImageTag
		// KeepStages keeps intermediate stage tags after a successful run.
		KeepStages bool
		// NoCache disables the engine's build cache.
		NoCache bool
		// BuildRoot is the parent of temporary build directories.
		BuildRoot string
		// Stdout and Stderr receive build output; nil discards it.
		Stdout io.Writer
		Stderr io.Writer
		Logger *slog.Logger
	}

	// LayeredExecutor builds one stage image per step. Stage k is built FROM
	// stage k-1, so every step layers on the previous step's completed state.
	LayeredExecutor struct {
		engine   container.Engine
		cfg      ExecutorConfig
		logger   *slog.Logger
		plan     *pipeline.Plan
		renderer *Renderer
		runID    string
		current  string
		stages   []container.ImageTag
	}
)

// NewLayeredExecutor creates an executor that builds through engine.
func NewLayeredExecutor(engine container.Engine, cfg ExecutorConfig) *LayeredExecutor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Stdout == nil {
		cfg.Stdout = io.Discard
	}
	if cfg.Stderr == nil {
		cfg.Stderr = io.Discard
	}
	return &LayeredExecutor{engine: engine, cfg: cfg, logger: logger}
}

// RunID returns the identifier embedded in this run's stage tags.
func (e *LayeredExecutor) RunID() string { return e.runID }

// Stages returns the stage tags built so far.
func (e *LayeredExecutor) Stages() []container.ImageTag { return slices.Clone(e.stages) }

// Begin renders every step up front and checks local inputs, so malformed
// scripts and missing manifests fail before the first build.
func (e *LayeredExecutor) Begin(_ context.Context, plan *pipeline.Plan) error {
	if e.cfg.Tag == "" {
		return fmt.Errorf("%w: missing tag", container.ErrInvalidBuildOptions)
	}
	r, err := NewRenderer(plan)
	if err != nil {
		return err
	}
	for _, step := range plan.Steps {
		if _, err := r.Step(step); err != nil {
			return err
		}
	}
	if plan.Has(pipeline.StepAppEnv) {
		path := filepath.Join(e.cfg.ContextDir, filepath.FromSlash(plan.Settings.AppManifest))
		m, err := manifest.Load(path)
		if err != nil {
			return fmt.Errorf("application manifest: %w", err)
		}
		e.logger.Debug("application manifest loaded", "path", path, "requirements", len(m.Requirements))
	}
	if plan.Has(pipeline.StepCopySource) {
		info, err := os.Stat(e.cfg.ContextDir)
		if err != nil {
			return fmt.Errorf("application source: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("application source %s is not a directory", e.cfg.ContextDir)
		}
	}

	e.plan = plan
	e.renderer = r
	e.runID = uuid.NewString()
	e.current = plan.Settings.BaseImage
	e.stages = nil
	return nil
}

// StageTag returns the tag of the stage built for the step with the given ordinal.
func (e *LayeredExecutor) StageTag(ordinal int) container.ImageTag {
	return container.ImageTag(fmt.Sprintf("%s:%s-%d", StageRepository, e.runID, ordinal))
}

// Execute builds the stage image for step on top of the current stage.
func (e *LayeredExecutor) Execute(ctx context.Context, step pipeline.Step) error {
	if e.renderer == nil {
		return ErrNotStarted
	}
	dockerfile, err := e.renderer.Dockerfile(e.current, []pipeline.Step{step})
	if err != nil {
		return err
	}

	dir, err := newBuildDir(e.cfg.BuildRoot)
	if err != nil {
		return err
	}
	defer dir.Remove()

	if err := os.WriteFile(dir.Dockerfile(), []byte(dockerfile), 0o644); err != nil {
		return fmt.Errorf("failed to write Dockerfile: %w", err)
	}
	if err := dir.stage(e.cfg.ContextDir, e.renderer.ContextPaths(step.ID)); err != nil {
		return err
	}

	tag := e.StageTag(step.ID.Ordinal())
	tail := newTailBuffer(outputTailSize)
	opts := container.BuildOptions{
		ContextDir: dir.Context(),
		Dockerfile: dir.Dockerfile(),
		Tag:        tag,
		NoCache:    e.cfg.NoCache,
		Labels: map[string]string{
			LabelRun:     e.runID,
			LabelVariant: e.plan.Variant.Name,
			LabelStep:    string(step.ID),
		},
		Stdout: io.MultiWriter(e.cfg.Stdout, tail),
		Stderr: io.MultiWriter(e.cfg.Stderr, tail),
	}
	e.logger.Debug("building stage", "step", step.ID, "tag", tag, "from", e.current)
	if err := e.engine.Build(ctx, opts); err != nil {
		return &BuildOutputError{Step: step.ID, Output: tail.String(), Err: err}
	}

	e.stages = append(e.stages, tag)
	e.current = string(tag)
	return nil
}

// Finish tags the last stage when the run succeeded. Stage tags are removed
// after a failure, and after success unless KeepStages is set.
func (e *LayeredExecutor) Finish(ctx context.Context, succeeded bool) error {
	if e.plan == nil {
		return ErrNotStarted
	}
	var tagErr error
	if succeeded && len(e.stages) > 0 {
		final := e.stages[len(e.stages)-1]
		if err := e.engine.Tag(ctx, final, e.cfg.Tag); err != nil {
			tagErr = fmt.Errorf("tag %s as %s: %w", final, e.cfg.Tag, err)
		} else {
			e.logger.Info("image ready", "tag", e.cfg.Tag, "variant", e.plan.Variant.Name)
		}
	}
	if !succeeded || tagErr != nil || !e.cfg.KeepStages {
		e.removeStages(ctx)
	}
	return tagErr
}

// removeStages untags stages newest first; failures are logged, not returned.
func (e *LayeredExecutor) removeStages(ctx context.Context) {
	// Use a fresh context so cleanup still runs after cancellation.
	cleanupCtx := context.WithoutCancel(ctx)
	for _, tag := range slices.Backward(e.stages) {
		if err := e.engine.RemoveImage(cleanupCtx, tag, true); err != nil {
			e.logger.Warn("failed to remove stage image", "tag", tag, "error", err)
		}
	}
	e.stages = nil
}
