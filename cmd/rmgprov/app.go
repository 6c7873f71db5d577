// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/rmgprov/rmgprov/internal/config"
	"github.com/rmgprov/rmgprov/internal/container"
	"github.com/rmgprov/rmgprov/internal/pipeline"
	"github.com/rmgprov/rmgprov/internal/runenv"
	"github.com/rmgprov/rmgprov/internal/telemetry"
)

type (
	// EngineFactory returns a usable engine, preferring the given type.
	EngineFactory func(preferred container.EngineType) (container.Engine, error)

	// TelemetrySetup installs tracing for the configured endpoint.
	TelemetrySetup func(ctx context.Context, endpoint, version string) (telemetry.ShutdownFunc, error)

	// App wires CLI services and shared dependencies.
	App struct {
		Config    config.Provider
		NewEngine EngineFactory
		Environ   func() map[string]string
		Telemetry TelemetrySetup
		// BuildRoot is the parent of temporary build contexts; empty means
		// the default under the home directory.
		BuildRoot string
		stdin     *os.File
		stdout    io.Writer
		stderr    io.Writer

		// Set from global flags and the loaded configuration.
		configPath string
		verbose    bool
		cfg        *config.Config
		cfgSource  string
		shutdown   telemetry.ShutdownFunc
	}

	// Dependencies defines the injection points for building an App. Nil
	// fields are replaced with production defaults by NewApp.
	Dependencies struct {
		Config    config.Provider
		NewEngine EngineFactory
		Environ   func() map[string]string
		Telemetry TelemetrySetup
		BuildRoot string
		Stdin     *os.File
		Stdout    io.Writer
		Stderr    io.Writer
	}
)

// NewApp creates an App with defaults for omitted dependencies.
func NewApp(deps Dependencies) *App {
	if deps.Config == nil {
		deps.Config = config.NewProvider()
	}
	if deps.NewEngine == nil {
		deps.NewEngine = container.NewEngine
	}
	if deps.Telemetry == nil {
		deps.Telemetry = telemetry.Setup
	}
	if deps.Environ == nil {
		deps.Environ = runenv.HostEnviron
	}
	if deps.Stdin == nil {
		deps.Stdin = os.Stdin
	}
	if deps.Stdout == nil {
		deps.Stdout = os.Stdout
	}
	if deps.Stderr == nil {
		deps.Stderr = os.Stderr
	}
	return &App{
		Config:    deps.Config,
		NewEngine: deps.NewEngine,
		Environ:   deps.Environ,
		Telemetry: deps.Telemetry,
		BuildRoot: deps.BuildRoot,
		stdin:     deps.Stdin,
		stdout:    deps.Stdout,
		stderr:    deps.Stderr,
	}
}

// execute runs root through exec and flushes pending spans on every exit
// path, including failed commands, whose spans carry the failure kind.
func (a *App) execute(ctx context.Context, root *cobra.Command, exec func(context.Context, *cobra.Command) error) error {
	defer a.flushTelemetry(context.WithoutCancel(ctx))
	return exec(ctx, root)
}

func (a *App) flushTelemetry(ctx context.Context) {
	if a.shutdown == nil {
		return
	}
	if err := a.shutdown(ctx); err != nil {
		slog.Warn("flushing traces failed", "error", err)
	}
	a.shutdown = nil
}

// loadConfig loads the configuration once per invocation.
func (a *App) loadConfig(ctx context.Context) (*config.Config, error) {
	if a.cfg != nil {
		return a.cfg, nil
	}
	cfg, source, err := a.Config.Load(ctx, config.LoadOptions{ConfigFilePath: a.configPath})
	if err != nil {
		return nil, err
	}
	a.cfg, a.cfgSource = cfg, source
	return cfg, nil
}

// plan resolves the named variant (the default for "") and builds its plan.
func (a *App) plan(ctx context.Context, variantName string) (*pipeline.Plan, error) {
	cfg, err := a.loadConfig(ctx)
	if err != nil {
		return nil, err
	}
	variant, err := cfg.Variant(variantName)
	if err != nil {
		return nil, err
	}
	plan, err := pipeline.BuildPlan(cfg.Pipeline, variant)
	if err != nil {
		return nil, fmt.Errorf("plan variant %s: %w", variant.Name, err)
	}
	return plan, nil
}

// engine returns the container engine, preferring override over the configured one.
func (a *App) engine(ctx context.Context, override string) (container.Engine, error) {
	cfg, err := a.loadConfig(ctx)
	if err != nil {
		return nil, err
	}
	preferred := cfg.ContainerEngine
	if override != "" {
		preferred = container.EngineType(override)
		if err := preferred.Validate(); err != nil {
			return nil, err
		}
	}
	return a.NewEngine(preferred)
}

// imageTag returns the explicit tag, or the configured one for the variant.
func (a *App) imageTag(plan *pipeline.Plan, explicit string) container.ImageTag {
	if explicit != "" {
		return container.ImageTag(explicit)
	}
	return a.cfg.ImageFor(plan.Variant.Name)
}
