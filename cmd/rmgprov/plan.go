// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rmgprov/rmgprov/internal/pipeline"
	"github.com/rmgprov/rmgprov/internal/provision"
)

func newPlanCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "plan [variant]",
		Short: "Show the ordered provisioning steps of a variant",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			plan, err := app.plan(cmd.Context(), variantArg(args))
			if err != nil {
				return app.fail(err)
			}
			fmt.Fprintln(app.stdout, TitleStyle.Render(fmt.Sprintf("Variant %s (%s build)", plan.Variant.Name, plan.Variant.Target)))
			writePlan(app.stdout, plan)
			return nil
		},
	}
}

// writePlan lists every canonical step, marking the ones the variant skips.
func writePlan(w io.Writer, plan *pipeline.Plan) {
	for _, id := range pipeline.StepIDs() {
		step, ok := plan.Step(id)
		if !ok {
			fmt.Fprintf(w, "  %d. %s %s\n", id.Ordinal(), WarningStyle.Render(string(id)), SubtitleStyle.Render("(skipped)"))
			continue
		}
		fmt.Fprintf(w, "  %d. %s  %s\n", id.Ordinal(), CmdStyle.Render(string(id)), step.Title)
		if len(step.Requires) > 0 {
			fmt.Fprintf(w, "       %s %s\n", SubtitleStyle.Render("requires"), joinCaps(step.Requires))
		}
		if len(step.Provides) > 0 {
			fmt.Fprintf(w, "       %s %s\n", SubtitleStyle.Render("provides"), joinCaps(step.Provides))
		}
	}
	fmt.Fprintf(w, "  %s %s\n", SubtitleStyle.Render("default command:"), strings.Join(plan.Settings.EntryCommand(plan.Variant), " "))
}

func joinCaps(caps []pipeline.Capability) string {
	parts := make([]string, len(caps))
	for i, c := range caps {
		parts[i] = string(c)
	}
	return strings.Join(parts, ", ")
}

func newRenderCommand(app *App) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "render [variant]",
		Short: "Print the single-file Dockerfile for a variant",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			plan, err := app.plan(cmd.Context(), variantArg(args))
			if err != nil {
				return app.fail(err)
			}
			dockerfile, err := provision.RenderDockerfile(plan)
			if err != nil {
				return app.fail(err)
			}
			if output == "" || output == "-" {
				fmt.Fprint(app.stdout, dockerfile)
				return nil
			}
			if err := os.WriteFile(output, []byte(dockerfile), 0o644); err != nil {
				return app.fail(fmt.Errorf("write Dockerfile: %w", err))
			}
			fmt.Fprintf(app.stdout, "%s %s\n", SuccessStyle.Render("Wrote"), output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to file instead of stdout")
	return cmd
}

func newVariantsCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "variants",
		Short: "List configured variants",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := app.loadConfig(cmd.Context())
			if err != nil {
				return app.fail(err)
			}
			for _, name := range cfg.VariantNames() {
				v := cfg.Variants[name]
				marker := "  "
				if name == cfg.DefaultVariant {
					marker = SuccessStyle.Render("* ")
				}
				fmt.Fprintf(app.stdout, "%s%s  %s\n", marker, CmdStyle.Render(name), v.Description)
				fmt.Fprintf(app.stdout, "    %s\n", VerboseStyle.Render(fmt.Sprintf(
					"target=%s app_environment=%t extra_library=%t copy_source=%t entry_script=%s",
					v.Target, v.AppEnvironment, v.ExtraLibrary, v.CopySource, v.EntryScript)))
			}
			return nil
		},
	}
}
