// SPDX-License-Identifier: MPL-2.0

package verify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/rmgprov/rmgprov/internal/container"
	"github.com/rmgprov/rmgprov/internal/manifest"
	"github.com/rmgprov/rmgprov/internal/pipeline"
)

type (
	cannedRun struct {
		stdout string
		stderr string
		exit   container.ExitCode
	}

	// imageEngine answers container runs from canned outputs keyed by the
	// joined command line.
	imageEngine struct {
		runs   map[string]cannedRun
		config *container.ImageConfig
		calls  []container.RunOptions
	}
)

var _ container.Engine = (*imageEngine)(nil)

func (e *imageEngine) Name() string                                        { return "fake" }
func (e *imageEngine) Available() bool                                     { return true }
func (e *imageEngine) Version(context.Context) (string, error)             { return "1.0", nil }
func (e *imageEngine) Build(context.Context, container.BuildOptions) error { return nil }
func (e *imageEngine) Tag(context.Context, container.ImageTag, container.ImageTag) error {
	return nil
}

func (e *imageEngine) ImageExists(context.Context, container.ImageTag) (bool, error) {
	return true, nil
}

func (e *imageEngine) RemoveImage(context.Context, container.ImageTag, bool) error { return nil }

func (e *imageEngine) ImageConfig(context.Context, container.ImageTag) (*container.ImageConfig, error) {
	return e.config, nil
}

func (e *imageEngine) Run(_ context.Context, opts container.RunOptions) (*container.RunResult, error) {
	e.calls = append(e.calls, opts)
	run, ok := e.runs[strings.Join(opts.Command, " ")]
	if !ok {
		return &container.RunResult{ExitCode: 127}, nil
	}
	if opts.Stdout != nil {
		fmt.Fprint(opts.Stdout, run.stdout)
	}
	if opts.Stderr != nil {
		fmt.Fprint(opts.Stderr, run.stderr)
	}
	return &container.RunResult{ExitCode: run.exit}, nil
}

const (
	toolkitManifest = "name: rmg_env\ndependencies:\n  - python=3.9\n  - numpy>=1.20\n  - cantera>=2.6\n"
	appManifest     = "requests>=2.31\nnumpy>=1.20\n"
)

func healthyEngine() *imageEngine {
	return &imageEngine{
		runs: map[string]cannedRun{
			"conda list -n base --export":            {stdout: "# platform: linux-64\nnumpy=1.26.4=py39_0\npython=3.9.18=h0\ncantera=2.6.0=py39_0\n"},
			"conda run -n base python -m pip freeze": {stdout: "requests==2.31.0\nnumpy @ file:///croot/numpy\n"},
			"cat /rmg/RMG-Py/environment.yml":        {stdout: toolkitManifest},
			"python -c import rmgpy":                 {},
			"python -c import rmgpy.molecule.draw": {
				stderr: "ImportError: libXrender.so.1: cannot open shared object file: No such file or directory\n",
				exit:   1,
			},
		},
		config: &container.ImageConfig{
			Env:        []string{"PATH=/opt/conda/bin", "PYTHONUNBUFFERED=1", "PYTHONPATH=/rmg/RMG-Py:"},
			Cmd:        []string{"python", "download_rmg_models.py"},
			WorkingDir: "/app",
			Labels:     map[string]string{"io.rmgprov.variant": "full"},
		},
	}
}

func fullVariant() pipeline.Variant { return pipeline.DefaultVariants()["full"] }

func TestChecker_Packages(t *testing.T) {
	t.Parallel()

	c := NewChecker(healthyEngine(), pipeline.DefaultSettings())
	inst, err := c.Packages(t.Context(), "rmgprov:full")
	if err != nil {
		t.Fatalf("Packages() error = %v", err)
	}
	if v, _ := inst.Version("numpy"); v != "1.26.4" {
		t.Errorf("numpy = %q", v)
	}
	if v, _ := inst.Version("requests"); v != "2.31.0" {
		t.Errorf("requests = %q", v)
	}
}

func TestChecker_PackagesCommandFailure(t *testing.T) {
	t.Parallel()

	engine := healthyEngine()
	engine.runs["conda list -n base --export"] = cannedRun{stderr: "conda: not found\n", exit: 127}
	c := NewChecker(engine, pipeline.DefaultSettings())

	_, err := c.Packages(t.Context(), "rmgprov:full")
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) || cmdErr.ExitCode != 127 {
		t.Fatalf("expected CommandError with exit 127, got %v", err)
	}
	if !errors.Is(err, ErrCommandFailed) {
		t.Error("expected errors.Is(err, ErrCommandFailed)")
	}
}

func TestChecker_ImportProbe(t *testing.T) {
	t.Parallel()

	engine := healthyEngine()
	c := NewChecker(engine, pipeline.DefaultSettings())

	if err := c.ImportProbe(t.Context(), "rmgprov:full", "rmgpy"); err != nil {
		t.Errorf("ImportProbe(rmgpy) error = %v", err)
	}
	last := engine.calls[len(engine.calls)-1]
	if !last.Remove || last.WorkDir != "/app" {
		t.Errorf("probe run options = %+v", last)
	}

	err := c.ImportProbe(t.Context(), "rmgprov:full", "rmgpy.molecule.draw")
	var ie *ImportError
	if !errors.As(err, &ie) {
		t.Fatalf("expected ImportError, got %v", err)
	}
	if ie.Kind != pipeline.FailureMissingLibrary {
		t.Errorf("Kind = %s, want %s", ie.Kind, pipeline.FailureMissingLibrary)
	}

	if err := c.ImportProbe(t.Context(), "rmgprov:full", "os; import shutil"); !errors.Is(err, ErrInvalidModule) {
		t.Errorf("expected ErrInvalidModule, got %v", err)
	}
}

func TestChecker_CheckImage(t *testing.T) {
	t.Parallel()

	engine := healthyEngine()
	c := NewChecker(engine, pipeline.DefaultSettings())

	problems, err := c.CheckImage(t.Context(), "rmgprov:full", fullVariant())
	if err != nil {
		t.Fatal(err)
	}
	if len(problems) != 0 {
		t.Errorf("healthy image problems = %v", problems)
	}

	engine.config.Cmd = []string{"python", "generate_schemas.py"}
	engine.config.Env = []string{"PYTHONPATH=/rmg/RMG-Py"}
	problems, _ = c.CheckImage(t.Context(), "rmgprov:full", fullVariant())
	if len(problems) != 2 {
		t.Errorf("problems = %v, want unbuffered flag and default command", problems)
	}
}

func TestChecker_Verify(t *testing.T) {
	t.Parallel()

	engine := healthyEngine()
	c := NewChecker(engine, pipeline.DefaultSettings())

	toolkit, err := c.ToolkitManifest(t.Context(), "rmgprov:full")
	if err != nil {
		t.Fatalf("ToolkitManifest() error = %v", err)
	}
	app, err := manifest.Parse([]byte(appManifest), "requirements.txt", manifest.FormatPipRequirements)
	if err != nil {
		t.Fatal(err)
	}

	report, err := c.Verify(t.Context(), "rmgprov:full", fullVariant(), []*manifest.Manifest{toolkit, app}, "rmgpy")
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if !report.OK() {
		t.Errorf("report should pass:\n%s", report)
	}

	report, err = c.Verify(t.Context(), "rmgprov:full", fullVariant(), []*manifest.Manifest{toolkit}, "rmgpy.molecule.draw")
	if err != nil {
		t.Fatal(err)
	}
	if report.OK() || len(report.Failures()) != 1 {
		t.Errorf("Failures() = %v, want the failed import only", report.Failures())
	}
}

func TestChecker_VerifyUnsatisfiedManifest(t *testing.T) {
	t.Parallel()

	engine := healthyEngine()
	engine.runs["conda list -n base --export"] = cannedRun{stdout: "numpy=1.19.5=py39_0\npython=3.9.18=h0\n"}
	c := NewChecker(engine, pipeline.DefaultSettings())

	toolkit, err := manifest.Parse([]byte(toolkitManifest), "environment.yml", manifest.FormatCondaEnvironment)
	if err != nil {
		t.Fatal(err)
	}
	report, err := c.Verify(t.Context(), "rmgprov:full", fullVariant(), []*manifest.Manifest{toolkit})
	if err != nil {
		t.Fatal(err)
	}
	failures := report.Failures()
	if len(failures) != 2 {
		t.Fatalf("Failures() = %v", failures)
	}
	if !strings.Contains(failures[0], "numpy>=1.20: installed 1.19.5") || !strings.Contains(failures[1], "cantera>=2.6: not installed") {
		t.Errorf("Failures() = %v", failures)
	}
}
