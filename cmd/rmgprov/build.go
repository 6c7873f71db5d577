// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/rmgprov/rmgprov/internal/pipeline"
	"github.com/rmgprov/rmgprov/internal/provision"
)

type buildOptions struct {
	tag        string
	engine     string
	contextDir string
	noCache    bool
	keepStages bool
	dryRun     bool
}

func newBuildCommand(app *App) *cobra.Command {
	var opts buildOptions
	cmd := &cobra.Command{
		Use:   "build [variant]",
		Short: "Build the image for a variant",
		Long: `Build the image for a variant, one layer per provisioning step.

The first failing step stops the build; intermediate images are removed and
the failing tool's output is shown.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.build(cmd.Context(), variantArg(args), opts); err != nil {
				return app.fail(err)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&opts.tag, "tag", "t", "", "image tag (default from config, tagged with the variant name)")
	cmd.Flags().StringVar(&opts.engine, "engine", "", "container engine to prefer (podman|docker)")
	cmd.Flags().StringVar(&opts.contextDir, "context", ".", "application directory holding the manifest and source")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "do not use the engine's build cache")
	cmd.Flags().BoolVar(&opts.keepStages, "keep-stages", false, "keep the per-step stage images after a successful build")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "print the plan and Dockerfile without building")
	return cmd
}

func (a *App) build(ctx context.Context, variantName string, opts buildOptions) error {
	plan, err := a.plan(ctx, variantName)
	if err != nil {
		return err
	}
	tag := a.imageTag(plan, opts.tag)

	if opts.dryRun {
		fmt.Fprintln(a.stdout, TitleStyle.Render(fmt.Sprintf("Would build %s", tag)))
		writePlan(a.stdout, plan)
		dockerfile, err := provision.RenderDockerfile(plan)
		if err != nil {
			return err
		}
		fmt.Fprintln(a.stdout)
		fmt.Fprint(a.stdout, dockerfile)
		return nil
	}

	engine, err := a.engine(ctx, opts.engine)
	if err != nil {
		return err
	}

	output := io.Discard
	if a.verbose {
		output = a.stderr
	}
	executor := provision.NewLayeredExecutor(engine, provision.ExecutorConfig{
		ContextDir: opts.contextDir,
		Tag:        tag,
		KeepStages: opts.keepStages,
		NoCache:    opts.noCache,
		BuildRoot:  a.BuildRoot,
		Stdout:     output,
		Stderr:     output,
		Logger:     slog.Default(),
	})

	slog.Info("building image", "variant", plan.Variant.Name, "tag", tag, "engine", engine.Name(), "steps", len(plan.Steps))
	res, err := pipeline.NewRunner(executor).Run(ctx, plan)
	if res != nil {
		writeRecords(a.stdout, res)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "%s %s in %s\n", SuccessStyle.Render("Built"), CmdStyle.Render(string(tag)), res.Duration.Round(time.Second))
	return nil
}

// writeRecords prints one line per step with its final status.
func writeRecords(w io.Writer, res *pipeline.Result) {
	for _, rec := range res.Records {
		var mark string
		switch rec.Status {
		case pipeline.StatusSucceeded:
			mark = SuccessStyle.Render("✓")
		case pipeline.StatusFailed:
			mark = ErrorStyle.Render("✗")
		default:
			mark = SubtitleStyle.Render("·")
		}
		line := fmt.Sprintf("%s %d. %s", mark, rec.Ordinal, rec.Step.Title)
		if !rec.Finished.IsZero() {
			line += " " + VerboseStyle.Render(rec.Finished.Sub(rec.Started).Round(time.Millisecond).String())
		}
		fmt.Fprintln(w, line)
	}
}

func variantArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
