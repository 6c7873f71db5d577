// SPDX-License-Identifier: MPL-2.0

package verify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strings"

	"github.com/rmgprov/rmgprov/internal/container"
	"github.com/rmgprov/rmgprov/internal/manifest"
	"github.com/rmgprov/rmgprov/internal/pipeline"
	"github.com/rmgprov/rmgprov/internal/provision"
	"github.com/rmgprov/rmgprov/internal/runenv"
)

var (
	// ErrImportFailed is the sentinel error wrapped by ImportError.
	ErrImportFailed = errors.New("module import failed")
	// ErrCommandFailed is returned when an inspection command exits non-zero.
	ErrCommandFailed = errors.New("inspection command failed")
	// ErrInvalidModule is returned for module names that are not dotted identifiers.
	ErrInvalidModule = errors.New("invalid module name")

	moduleName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)
)

type (
	// ImportError is returned when importing a module inside the image fails.
	ImportError struct {
		Module   string
		ExitCode container.ExitCode
		Output   string
		// Kind classifies the failure, e.g. a missing OS shared library.
		Kind pipeline.FailureKind
	}

	// CommandError is returned when an inspection command exits non-zero.
	CommandError struct {
		Command  []string
		ExitCode container.ExitCode
		Stderr   string
	}

	// Checker inspects images built for one set of pipeline settings.
	Checker struct {
		engine   container.Engine
		settings pipeline.Settings
		env      runenv.Environment
		logger   *slog.Logger
	}
)

func (e *ImportError) Error() string {
	return fmt.Sprintf("import %s failed (exit %d, %s): %s", e.Module, e.ExitCode, e.Kind, lastLine(e.Output))
}

func (e *ImportError) Unwrap() error { return ErrImportFailed }

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s exited %d: %s", strings.Join(e.Command, " "), e.ExitCode, lastLine(e.Stderr))
}

func (e *CommandError) Unwrap() error { return ErrCommandFailed }

// NewChecker creates a checker that runs containers through engine.
func NewChecker(engine container.Engine, settings pipeline.Settings) *Checker {
	return &Checker{
		engine:   engine,
		settings: settings,
		env:      runenv.FromSettings(settings),
		logger:   slog.Default(),
	}
}

// exec runs command in a throwaway container and returns its stdout.
func (c *Checker) exec(ctx context.Context, image container.ImageTag, command ...string) (string, error) {
	var stdout, stderr bytes.Buffer
	res, err := c.engine.Run(ctx, container.RunOptions{
		Image:   image,
		Command: command,
		Remove:  true,
		Stdout:  &stdout,
		Stderr:  &stderr,
	})
	if err != nil {
		return "", err
	}
	if res.Error != nil {
		return "", res.Error
	}
	if res.ExitCode != 0 {
		return stdout.String(), &CommandError{Command: command, ExitCode: res.ExitCode, Stderr: stderr.String()}
	}
	return stdout.String(), nil
}

// Packages lists the packages installed in the image's environment, from
// the conda export merged with pip's view.
func (c *Checker) Packages(ctx context.Context, image container.ImageTag) (manifest.Installed, error) {
	export, err := c.exec(ctx, image, "conda", "list", "-n", c.settings.EnvName, "--export")
	if err != nil {
		return nil, fmt.Errorf("list conda packages: %w", err)
	}
	installed, err := manifest.ParseCondaExport(strings.NewReader(export))
	if err != nil {
		return nil, err
	}

	freeze, err := c.exec(ctx, image, "conda", "run", "-n", c.settings.EnvName, c.settings.Python, "-m", "pip", "freeze")
	if err != nil {
		return nil, fmt.Errorf("list pip packages: %w", err)
	}
	pip, err := manifest.ParsePipFreeze(strings.NewReader(freeze))
	if err != nil {
		return nil, err
	}
	installed.Merge(pip)
	c.logger.Debug("installed packages listed", "image", image, "count", len(installed))
	return installed, nil
}

// ReadFile returns the contents of a file inside the image.
func (c *Checker) ReadFile(ctx context.Context, image container.ImageTag, path string) ([]byte, error) {
	out, err := c.exec(ctx, image, "cat", path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return []byte(out), nil
}

// ToolkitManifest reads the toolkit manifest shipped with the source tree in the image.
func (c *Checker) ToolkitManifest(ctx context.Context, image container.ImageTag) (*manifest.Manifest, error) {
	p := c.settings.SourcePath + "/" + strings.TrimPrefix(c.settings.ToolkitManifest, "/")
	format, err := manifest.DetectFormat(p)
	if err != nil {
		return nil, err
	}
	data, err := c.ReadFile(ctx, image, p)
	if err != nil {
		return nil, err
	}
	return manifest.Parse(data, p, format)
}

// ImportProbe imports module with the image's interpreter and default
// environment. The image's entry command is not run.
func (c *Checker) ImportProbe(ctx context.Context, image container.ImageTag, module string) error {
	if !moduleName.MatchString(module) {
		return fmt.Errorf("%w: %q", ErrInvalidModule, module)
	}
	var out bytes.Buffer
	res, err := c.engine.Run(ctx, container.RunOptions{
		Image:   image,
		Command: []string{c.settings.Python, "-c", "import " + module},
		WorkDir: c.settings.AppDir,
		Remove:  true,
		Stdout:  &out,
		Stderr:  &out,
	})
	if err != nil {
		return err
	}
	if res.Error != nil {
		return res.Error
	}
	if res.ExitCode != 0 {
		return &ImportError{
			Module:   module,
			ExitCode: res.ExitCode,
			Output:   out.String(),
			Kind:     pipeline.ClassifyOutput(out.String()),
		}
	}
	return nil
}

// CheckImage compares the image's recorded environment and default command
// with what the variant declares.
func (c *Checker) CheckImage(ctx context.Context, image container.ImageTag, variant pipeline.Variant) ([]string, error) {
	cfg, err := c.engine.ImageConfig(ctx, image)
	if err != nil {
		return nil, fmt.Errorf("inspect %s: %w", image, err)
	}
	problems := c.env.Mismatches(cfg.EnvValue)
	want := c.settings.EntryCommand(variant)
	if len(cfg.Entrypoint) > 0 {
		problems = append(problems, fmt.Sprintf("entrypoint %q would wrap the default command", cfg.Entrypoint))
	}
	if !slices.Equal(cfg.Cmd, want) {
		problems = append(problems, fmt.Sprintf("default command is %q, want %q", cfg.Cmd, want))
	}
	if cfg.WorkingDir != c.settings.AppDir {
		problems = append(problems, fmt.Sprintf("working directory is %q, want %q", cfg.WorkingDir, c.settings.AppDir))
	}
	if got := cfg.Labels[provision.LabelVariant]; got != "" && got != variant.Name {
		problems = append(problems, fmt.Sprintf("image was built for variant %q, not %q", got, variant.Name))
	}
	return problems, nil
}

// Verify checks the image against every manifest and its declared
// environment. Import probes run for each module in modules.
func (c *Checker) Verify(ctx context.Context, image container.ImageTag, variant pipeline.Variant, manifests []*manifest.Manifest, modules ...string) (*Report, error) {
	report := &Report{Image: image, Variant: variant.Name}

	installed, err := c.Packages(ctx, image)
	if err != nil {
		return nil, err
	}
	for _, m := range manifests {
		report.Manifests = append(report.Manifests, ManifestReport{
			Source:   m.Source,
			Problems: manifest.Check(m, installed),
		})
	}

	if report.ImageProblems, err = c.CheckImage(ctx, image, variant); err != nil {
		return nil, err
	}

	for _, module := range modules {
		probe := ImportResult{Module: module}
		if err := c.ImportProbe(ctx, image, module); err != nil {
			var ie *ImportError
			if !errors.As(err, &ie) {
				return nil, err
			}
			probe.Err = ie
		}
		report.Imports = append(report.Imports, probe)
	}
	return report, nil
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
