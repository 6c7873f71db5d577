// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/rmgprov/rmgprov/internal/container"
	"github.com/rmgprov/rmgprov/internal/manifest"
	"github.com/rmgprov/rmgprov/internal/pipeline"
	"github.com/rmgprov/rmgprov/internal/provision"
	"github.com/rmgprov/rmgprov/internal/verify"
)

var (
	errVerificationFailed = errors.New("image verification failed")
	errLockfileDrift      = errors.New("installed packages differ from the lockfile")
)

type (
	inspectOptions struct {
		tag        string
		engine     string
		contextDir string
	}

	// inspection is a built image opened for checks.
	inspection struct {
		plan    *pipeline.Plan
		image   container.ImageTag
		checker *verify.Checker
	}
)

func (o *inspectOptions) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.tag, "tag", "t", "", "image tag (default from config, tagged with the variant name)")
	cmd.Flags().StringVar(&o.engine, "engine", "", "container engine to prefer (podman|docker)")
	cmd.Flags().StringVar(&o.contextDir, "context", ".", "application directory holding the manifest")
}

func (a *App) inspect(ctx context.Context, variantName string, opts inspectOptions) (*inspection, error) {
	plan, err := a.plan(ctx, variantName)
	if err != nil {
		return nil, err
	}
	engine, err := a.engine(ctx, opts.engine)
	if err != nil {
		return nil, err
	}
	image := a.imageTag(plan, opts.tag)
	exists, err := engine.ImageExists(ctx, image)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("image %s not found; run 'rmgprov build %s' first", image, plan.Variant.Name)
	}
	return &inspection{plan: plan, image: image, checker: verify.NewChecker(engine, plan.Settings)}, nil
}

// manifests returns the toolkit manifest shipped in the image and, when the
// variant installs one, the application manifest from the host.
func (in *inspection) manifests(ctx context.Context, contextDir string) ([]*manifest.Manifest, error) {
	toolkit, err := in.checker.ToolkitManifest(ctx, in.image)
	if err != nil {
		return nil, err
	}
	out := []*manifest.Manifest{toolkit}
	if in.plan.Has(pipeline.StepAppEnv) {
		app, err := manifest.Load(filepath.Join(contextDir, filepath.FromSlash(in.plan.Settings.AppManifest)))
		if err != nil {
			return nil, fmt.Errorf("application manifest: %w", err)
		}
		out = append(out, app)
	}
	return out, nil
}

func newVerifyCommand(app *App) *cobra.Command {
	var (
		opts    inspectOptions
		imports []string
	)
	cmd := &cobra.Command{
		Use:   "verify [variant]",
		Short: "Check a built image against its manifests and declared environment",
		Long: `Check a built image against its manifests and declared environment.

Every requirement of the toolkit and application manifests must be installed
at a version the constraint allows. The recorded environment, working
directory and default command must match the variant. Each --import module
(the toolkit module by default) must import cleanly.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.verify(cmd.Context(), variantArg(args), opts, imports, cmd.Flags().Changed("import")); err != nil {
				return app.fail(err)
			}
			return nil
		},
	}
	opts.bind(cmd)
	cmd.Flags().StringArrayVar(&imports, "import", nil, "module to import inside the image (repeatable)")
	return cmd
}

func (a *App) verify(ctx context.Context, variantName string, opts inspectOptions, imports []string, explicitImports bool) error {
	in, err := a.inspect(ctx, variantName, opts)
	if err != nil {
		return err
	}
	manifests, err := in.manifests(ctx, opts.contextDir)
	if err != nil {
		return err
	}
	if !explicitImports && in.plan.Settings.ToolkitModule != "" {
		imports = []string{in.plan.Settings.ToolkitModule}
	}

	report, err := in.checker.Verify(ctx, in.image, in.plan.Variant, manifests, imports...)
	if err != nil {
		return err
	}

	for _, m := range report.Manifests {
		if len(m.Problems) == 0 {
			fmt.Fprintf(a.stdout, "%s %s satisfied\n", SuccessStyle.Render("✓"), m.Source)
		}
	}
	for _, i := range report.Imports {
		if i.Err == nil {
			fmt.Fprintf(a.stdout, "%s import %s\n", SuccessStyle.Render("✓"), i.Module)
		}
	}
	for _, f := range report.Failures() {
		fmt.Fprintf(a.stdout, "%s %s\n", ErrorStyle.Render("✗"), f)
	}
	if !report.OK() {
		return fmt.Errorf("%w: %s has %d problem(s)", errVerificationFailed, in.image, len(report.Failures()))
	}
	fmt.Fprintln(a.stdout, SuccessStyle.Render(report.String()))
	return nil
}

func newLockCommand(app *App) *cobra.Command {
	var (
		opts  inspectOptions
		file  string
		check bool
	)
	cmd := &cobra.Command{
		Use:   "lock [variant]",
		Short: "Record or check the packages installed in a built image",
		Long: `Record the packages installed in a built image in a lockfile.

With --check, compare the image against an existing lockfile instead and
fail when any pin differs. Two builds of the same configuration are
expected to install the same packages.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.lock(cmd.Context(), variantArg(args), opts, file, check); err != nil {
				return app.fail(err)
			}
			return nil
		},
	}
	opts.bind(cmd)
	cmd.Flags().StringVarP(&file, "file", "f", "", "lockfile path (default rmgprov-<variant>.lock)")
	cmd.Flags().BoolVar(&check, "check", false, "compare with the lockfile instead of writing it")
	return cmd
}

func (a *App) lock(ctx context.Context, variantName string, opts inspectOptions, file string, check bool) error {
	in, err := a.inspect(ctx, variantName, opts)
	if err != nil {
		return err
	}
	if file == "" {
		file = fmt.Sprintf("rmgprov-%s.lock", in.plan.Variant.Name)
	}
	manifests, err := in.manifests(ctx, opts.contextDir)
	if err != nil {
		return err
	}
	installed, err := in.checker.Packages(ctx, in.image)
	if err != nil {
		return err
	}
	current := verify.NewLockfile(in.plan, string(in.image), installed, manifests...)
	if in.plan.Has(pipeline.StepCopySource) {
		var exclude []string
		if a.BuildRoot != "" {
			exclude = append(exclude, a.BuildRoot)
		}
		if current.AppDigest, err = provision.CalculateDirHash(opts.contextDir, exclude...); err != nil {
			return fmt.Errorf("hash application source: %w", err)
		}
	}

	if !check {
		if err := verify.WriteLockfile(file, current); err != nil {
			return err
		}
		fmt.Fprintf(a.stdout, "%s %s (%d packages)\n", SuccessStyle.Render("Wrote"), file, len(current.Packages))
		return nil
	}

	locked, err := verify.ReadLockfile(file)
	if err != nil {
		return err
	}
	for _, w := range manifestChanges(locked, current) {
		fmt.Fprintf(a.stdout, "%s %s\n", WarningStyle.Render("!"), w)
	}
	diffs := verify.CompareLockfiles(locked, current)
	for _, d := range diffs {
		fmt.Fprintf(a.stdout, "%s %s\n", ErrorStyle.Render("✗"), d)
	}
	if len(diffs) > 0 {
		return fmt.Errorf("%w: %d package(s) in %s", errLockfileDrift, len(diffs), file)
	}
	fmt.Fprintf(a.stdout, "%s %s matches %s\n", SuccessStyle.Render("✓"), in.image, file)
	return nil
}

// manifestChanges reports manifests and application sources whose content
// changed since locking.
func manifestChanges(locked, current *verify.Lockfile) []string {
	digests := make(map[string]string, len(locked.Manifests))
	for _, m := range locked.Manifests {
		digests[m.Source] = m.Digest
	}
	var out []string
	for _, m := range current.Manifests {
		if d, ok := digests[m.Source]; ok && d != m.Digest {
			out = append(out, fmt.Sprintf("%s changed since the lockfile was written", m.Source))
		}
	}
	if locked.AppDigest != "" && current.AppDigest != "" && locked.AppDigest != current.AppDigest {
		out = append(out, "application source changed since the lockfile was written")
	}
	return out
}
