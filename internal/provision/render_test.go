// SPDX-License-Identifier: MPL-2.0

package provision

import (
	"errors"
	"strings"
	"testing"

	"github.com/rmgprov/rmgprov/internal/pipeline"
)

func mustPlan(t *testing.T, variant string, mutate ...func(*pipeline.Settings, *pipeline.Variant)) *pipeline.Plan {
	t.Helper()
	settings := pipeline.DefaultSettings()
	v := pipeline.DefaultVariants()[variant]
	for _, m := range mutate {
		m(&settings, &v)
	}
	plan, err := pipeline.BuildPlan(settings, v)
	if err != nil {
		t.Fatalf("BuildPlan(%s) error = %v", variant, err)
	}
	return plan
}

func TestRenderDockerfile_Full(t *testing.T) {
	t.Parallel()

	df, err := RenderDockerfile(mustPlan(t, "full"))
	if err != nil {
		t.Fatalf("RenderDockerfile() error = %v", err)
	}

	ordered := []string{
		"FROM continuumio/miniconda3:latest",
		"# 1. Install build toolchain",
		"apt-get install -y --no-install-recommends gcc g++ git make",
		"# 2. Fetch external source",
		"RUN git clone --depth 1 --branch main https://github.com/ReactionMechanismGenerator/RMG-Py.git /rmg/RMG-Py",
		"# 3. Install toolkit package environment",
		"conda env update -n base -f /rmg/RMG-Py/environment.yml && conda clean --all --yes",
		"# 4. Compile external source",
		"RUN conda run -n base --no-capture-output make -C /rmg/RMG-Py\n",
		"# 5. Install application package environment",
		`COPY ["environment.yml","/tmp/rmgprov/environment.yml"]`,
		"conda env update -n base -f /tmp/rmgprov/environment.yml",
		"# 6. Install extra OS shared library",
		"apt-get install -y --no-install-recommends libxrender1",
		"# 7. Copy application source",
		`COPY --chown=root:root [".","/app"]`,
		"# 8. Declare default command",
		"WORKDIR /app",
		`ENV PYTHONUNBUFFERED="1" PYTHONPATH="/rmg/RMG-Py:$PYTHONPATH"`,
		`CMD ["python","download_rmg_models.py"]`,
	}
	assertInOrder(t, df, ordered)

	if !strings.HasSuffix(df, "CMD [\"python\",\"download_rmg_models.py\"]\n") {
		t.Errorf("default command must be the last instruction:\n%s", df)
	}
}

func TestRenderDockerfile_MinimalLeavesOutFullOnlyExtras(t *testing.T) {
	t.Parallel()

	df, err := RenderDockerfile(mustPlan(t, "minimal"))
	if err != nil {
		t.Fatalf("RenderDockerfile() error = %v", err)
	}

	assertInOrder(t, df, []string{
		"RUN conda run -n base --no-capture-output make -C /rmg/RMG-Py minimal",
		`COPY --chown=root:root [".","/app"]`,
		`CMD ["python","generate_schemas.py"]`,
	})
	for _, absent := range []string{"libxrender1", "/tmp/rmgprov", "# 5.", "# 6."} {
		if strings.Contains(df, absent) {
			t.Errorf("minimal Dockerfile should not contain %q:\n%s", absent, df)
		}
	}
}

func TestRenderer_PipApplicationManifest(t *testing.T) {
	t.Parallel()

	plan := mustPlan(t, "full", func(s *pipeline.Settings, _ *pipeline.Variant) {
		s.AppManifest = "deps/requirements.txt"
		s.EnvName = "rmg_env"
	})
	r, err := NewRenderer(plan)
	if err != nil {
		t.Fatal(err)
	}
	step, _ := plan.Step(pipeline.StepAppEnv)
	instructions, err := r.Step(step)
	if err != nil {
		t.Fatalf("Step() error = %v", err)
	}
	if len(instructions) != 2 {
		t.Fatalf("instructions = %v", instructions)
	}
	if got := instructions[0].String(); got != `COPY ["deps/requirements.txt","/tmp/rmgprov/requirements.txt"]` {
		t.Errorf("COPY = %q", got)
	}
	if !strings.Contains(instructions[1].Args, "conda run -n rmg_env pip install --no-cache-dir -r /tmp/rmgprov/requirements.txt") {
		t.Errorf("RUN = %q", instructions[1].Args)
	}
	if got := r.ContextPaths(pipeline.StepAppEnv); len(got) != 1 || got[0] != "deps/requirements.txt" {
		t.Errorf("ContextPaths() = %v", got)
	}
}

func TestRenderer_QuotesInterpolatedValues(t *testing.T) {
	t.Parallel()

	plan := mustPlan(t, "full", func(s *pipeline.Settings, _ *pipeline.Variant) {
		s.SourceRef = "release; rm -rf /"
	})
	r, err := NewRenderer(plan)
	if err != nil {
		t.Fatal(err)
	}
	step, _ := plan.Step(pipeline.StepFetchSource)
	instructions, err := r.Step(step)
	if err != nil {
		t.Fatalf("Step() error = %v", err)
	}
	if !strings.Contains(instructions[0].Args, "--branch 'release; rm -rf /'") {
		t.Errorf("ref was not quoted: %q", instructions[0].Args)
	}
}

func TestRenderer_OwnerOptional(t *testing.T) {
	t.Parallel()

	plan := mustPlan(t, "full", func(s *pipeline.Settings, _ *pipeline.Variant) { s.Owner = "" })
	r, err := NewRenderer(plan)
	if err != nil {
		t.Fatal(err)
	}
	step, _ := plan.Step(pipeline.StepCopySource)
	instructions, _ := r.Step(step)
	if got := instructions[0].String(); got != `COPY [".","/app"]` {
		t.Errorf("COPY = %q", got)
	}
}

func TestRenderer_CopyPathsWithSpaces(t *testing.T) {
	t.Parallel()

	plan := mustPlan(t, "full", func(s *pipeline.Settings, _ *pipeline.Variant) {
		s.AppDir = "/srv/rmg app"
		s.AppManifest = "conda env/environment.yml"
	})
	r, err := NewRenderer(plan)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		step pipeline.StepID
		want string
	}{
		{pipeline.StepAppEnv, `COPY ["conda env/environment.yml","/tmp/rmgprov/environment.yml"]`},
		{pipeline.StepCopySource, `COPY --chown=root:root [".","/srv/rmg app"]`},
	}
	for _, tt := range tests {
		step, _ := plan.Step(tt.step)
		instructions, err := r.Step(step)
		if err != nil {
			t.Fatalf("Step(%s) error = %v", tt.step, err)
		}
		if got := instructions[0].String(); got != tt.want {
			t.Errorf("Step(%s) COPY = %q, want %q", tt.step, got, tt.want)
		}
	}
}

func TestNewRenderer_UnknownManifestFormat(t *testing.T) {
	t.Parallel()

	plan := mustPlan(t, "full", func(s *pipeline.Settings, _ *pipeline.Variant) { s.AppManifest = "Pipfile" })
	if _, err := NewRenderer(plan); err == nil {
		t.Error("expected error for unrecognized application manifest")
	}
}

func TestFormatScript(t *testing.T) {
	t.Parallel()

	got, err := formatScript("apt-get update &&   apt-get install -y gcc")
	if err != nil {
		t.Fatalf("formatScript() error = %v", err)
	}
	if got != "apt-get update && apt-get install -y gcc" {
		t.Errorf("formatScript() = %q", got)
	}

	if _, err := formatScript("echo 'unterminated"); err == nil {
		t.Error("expected parse error")
	}
}

func TestScriptError(t *testing.T) {
	t.Parallel()

	r := &Renderer{}
	_, err := r.run(pipeline.StepCompile, "make && (")
	if !errors.Is(err, ErrInvalidScript) {
		t.Fatalf("expected ErrInvalidScript, got %v", err)
	}
}

func assertInOrder(t *testing.T, text string, parts []string) {
	t.Helper()
	rest := text
	for _, p := range parts {
		idx := strings.Index(rest, p)
		if idx < 0 {
			t.Fatalf("missing or out of order %q in:\n%s", p, text)
		}
		rest = rest[idx+len(p):]
	}
}
