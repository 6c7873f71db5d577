// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os/exec"
	"slices"

	"github.com/spf13/cobra"

	"github.com/rmgprov/rmgprov/internal/container"
	"github.com/rmgprov/rmgprov/internal/pipeline"
	"github.com/rmgprov/rmgprov/internal/runenv"
)

type runOptions struct {
	tag        string
	engine     string
	contextDir string
	envFiles   []string
	tty        bool
}

// appDotenv is the dotenv file the entry scripts load from their working
// directory.
const appDotenv = ".env"

func newRunCommand(app *App) *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run [variant]",
		Short: "Run the image's default command",
		Long: `Run the image's default command once, exactly as declared.

Variables the entry script needs are taken from the .env file copied with
the application tree, the environment and --env-file files, later sources
winning. The container does not start when a required variable is missing.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.run(cmd.Context(), variantArg(args), opts); err != nil {
				return app.fail(err)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&opts.tag, "tag", "t", "", "image tag (default from config, tagged with the variant name)")
	cmd.Flags().StringVar(&opts.engine, "engine", "", "container engine to prefer (podman|docker)")
	cmd.Flags().StringVar(&opts.contextDir, "context", ".", "application directory the image was built from")
	cmd.Flags().StringArrayVar(&opts.envFiles, "env-file", nil, "dotenv file with script variables (repeatable; suffix ? for optional)")
	cmd.Flags().BoolVar(&opts.tty, "tty", false, "attach the container to a pseudo terminal")
	return cmd
}

func (a *App) run(ctx context.Context, variantName string, opts runOptions) error {
	plan, err := a.plan(ctx, variantName)
	if err != nil {
		return err
	}

	environ := map[string]string{}
	if plan.Has(pipeline.StepCopySource) {
		// The scripts read the copy of this file inside the image themselves.
		if err := runenv.LoadDotenv(environ, appDotenv+"?", opts.contextDir); err != nil {
			return err
		}
	}
	maps.Copy(environ, a.Environ())
	for _, f := range opts.envFiles {
		if err := runenv.LoadDotenv(environ, f, ""); err != nil {
			return err
		}
	}
	scriptEnv, err := runenv.ResolveScriptEnv(plan.Variant.EntryScript, environ)
	if err != nil {
		return err
	}

	engine, err := a.engine(ctx, opts.engine)
	if err != nil {
		return err
	}

	ro := runOptionsFor(a.imageTag(plan, opts.tag), scriptEnv)
	forwarded := slices.Sorted(maps.Keys(ro.Env))
	slog.Info("running image", "image", ro.Image, "command", plan.Settings.EntryCommand(plan.Variant), "forwarded", forwarded)

	if opts.tty {
		return a.runTTY(ctx, engine, ro)
	}

	ro.Stdin = a.stdin
	ro.Stdout = a.stdout
	ro.Stderr = a.stderr
	res, err := engine.Run(ctx, ro)
	if err != nil {
		return err
	}
	if res.Error != nil {
		return res.Error
	}
	if res.ExitCode != 0 {
		return &ExitError{Code: int(res.ExitCode), Err: fmt.Errorf("entry command exited %d", res.ExitCode)}
	}
	return nil
}

// runOptionsFor leaves Command empty so the image's declared default
// command runs unmodified.
func runOptionsFor(image container.ImageTag, scriptEnv runenv.ScriptEnv) container.RunOptions {
	return container.RunOptions{
		Image:       image,
		Env:         scriptEnv.Forward(),
		Remove:      true,
		Interactive: true,
	}
}

func (a *App) runTTY(ctx context.Context, engine container.Engine, ro container.RunOptions) error {
	ce, ok := engine.(container.CommandEngine)
	if !ok {
		return fmt.Errorf("%s engine cannot attach a terminal", engine.Name())
	}
	ro.TTY = true
	err := runenv.RunWithTTY(ce.CreateCommand(ctx, ce.RunArgs(ro)...), a.stdin, a.stdout)
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &ExitError{Code: exitErr.ExitCode(), Err: fmt.Errorf("entry command exited %d", exitErr.ExitCode())}
	}
	return err
}
