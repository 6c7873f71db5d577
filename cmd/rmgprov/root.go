// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

// configOptionalAnnotation marks commands that run even when the
// configuration cannot be loaded.
const configOptionalAnnotation = "rmgprov/config-optional"

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"
)

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// NewRootCommand builds the command tree around app.
func NewRootCommand(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:   "rmgprov",
		Short: "Provision container images for the RMG kinetics toolkit",
		Long: TitleStyle.Render("rmgprov") + SubtitleStyle.Render(" - provision container images for the RMG kinetics toolkit") + `

rmgprov builds a runnable image in eight ordered steps: system toolchain,
toolkit source, toolkit environment, compile, application environment,
rendering library, application source and default command. Any failing
step stops the build and no partial image is kept.

` + SubtitleStyle.Render("Examples:") + `
  rmgprov plan minimal       Show the steps of the minimal variant
  rmgprov build              Build the default variant
  rmgprov verify --import rmgpy
  rmgprov run                Run the image's default command`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := app.loadConfig(ctx)
			if err != nil {
				if cmd.Annotations[configOptionalAnnotation] == "" {
					return app.fail(err)
				}
				setupLogging(app.stderr, app.verbose)
				return nil
			}
			if !cmd.Flags().Changed("verbose") && cfg.UI.Verbose {
				app.verbose = true
			}
			setupLogging(app.stderr, app.verbose)

			app.shutdown, err = app.Telemetry(ctx, cfg.Telemetry.Endpoint, Version)
			if err != nil {
				slog.Warn("tracing disabled", "error", err)
			}
			slog.Debug("configuration loaded", "source", displaySource(app.cfgSource))
			return nil
		},
	}

	root.PersistentFlags().BoolVarP(&app.verbose, "verbose", "v", false, "enable verbose output")
	root.PersistentFlags().StringVar(&app.configPath, "config", "", "config file (default ./rmgprov.cue, then $XDG_CONFIG_HOME/rmgprov/config.cue)")

	root.SetOut(app.stdout)
	root.SetErr(app.stderr)
	root.SetIn(app.stdin)

	root.AddCommand(
		newBuildCommand(app),
		newPlanCommand(app),
		newRenderCommand(app),
		newRunCommand(app),
		newVerifyCommand(app),
		newLockCommand(app),
		newVariantsCommand(app),
		newConfigCommand(app),
	)
	return root
}

// setupLogging routes slog through a charmbracelet/log handler on w.
func setupLogging(w io.Writer, verbose bool) {
	level := log.InfoLevel
	if verbose {
		level = log.DebugLevel
	}
	handler := log.NewWithOptions(w, log.Options{
		Prefix:          "rmgprov",
		Level:           level,
		ReportTimestamp: verbose,
	})
	slog.SetDefault(slog.New(handler))
}

func displaySource(path string) string {
	if path == "" {
		return "(defaults)"
	}
	return path
}

// Execute runs the CLI. It is called by main.main.
func Execute() {
	app := NewApp(Dependencies{})
	err := app.execute(context.Background(), NewRootCommand(app), func(ctx context.Context, root *cobra.Command) error {
		return fang.Execute(ctx, root,
			fang.WithVersion(getVersionString()),
			fang.WithNotifySignal(os.Interrupt),
		)
	})
	if err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}
