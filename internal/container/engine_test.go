// SPDX-License-Identifier: MPL-2.0

package container

import (
	"errors"
	"slices"
	"testing"
)

func TestEngineNotAvailableError(t *testing.T) {
	t.Parallel()

	err := &EngineNotAvailableError{Engine: "docker", Reason: "not installed"}
	if got := err.Error(); got != "container engine 'docker' is not available: not installed" {
		t.Errorf("Error() = %q", got)
	}
	if !errors.Is(err, ErrNoEngineAvailable) {
		t.Error("expected errors.Is(err, ErrNoEngineAvailable)")
	}
}

func TestNewEngine_UnknownType(t *testing.T) {
	t.Parallel()

	if _, err := NewEngine("containerd"); err == nil {
		t.Error("expected error for unknown engine type")
	}
}

func TestEngineType_Validate(t *testing.T) {
	t.Parallel()

	for _, typ := range []EngineType{EngineTypeDocker, EngineTypePodman} {
		if err := typ.Validate(); err != nil {
			t.Errorf("%s.Validate() = %v", typ, err)
		}
	}
	if err := EngineType("lxc").Validate(); err == nil {
		t.Error("expected error for lxc")
	}
}

func TestDockerEngine_AvailableWithNoPath(t *testing.T) {
	t.Parallel()

	e := NewDockerEngine(WithBinaryPath(""))
	if e.Available() {
		t.Error("engine without binary should not be available")
	}
}

func TestDockerEngine_Version(t *testing.T) {
	t.Parallel()

	rec := NewMockCommandRecorder()
	rec.Stdout = "27.3.1\n"
	e := newMockDocker(t, rec)

	v, err := e.Version(t.Context())
	if err != nil {
		t.Fatalf("Version() error = %v", err)
	}
	if v != "27.3.1" {
		t.Errorf("Version() = %q", v)
	}
	rec.AssertArgsContain(t, "{{.Server.Version}}")
}

func TestDockerEngine_ImageExists(t *testing.T) {
	t.Parallel()

	rec := NewMockCommandRecorder()
	e := newMockDocker(t, rec)
	if ok, _ := e.ImageExists(t.Context(), "img:1"); !ok {
		t.Error("expected image to exist")
	}

	rec.ExitCode = 1
	if ok, _ := e.ImageExists(t.Context(), "img:1"); ok {
		t.Error("expected image to be missing")
	}
}

func TestPodmanEngine_BuildUsesDockerFormat(t *testing.T) {
	t.Parallel()

	rec := NewMockCommandRecorder()
	e := newMockPodman(t, rec)

	if err := e.Build(t.Context(), BuildOptions{ContextDir: "/ctx", Tag: "img:1"}); err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	want := []string{"build", "--format", "docker", "-t", "img:1", "/ctx"}
	if got := rec.LastArgs(); !slices.Equal(got, want) {
		t.Errorf("args = %v, want %v", got, want)
	}
}

func TestPodmanEngine_ImageExists(t *testing.T) {
	t.Parallel()

	rec := NewMockCommandRecorder()
	rec.ExitCode = 1
	e := newMockPodman(t, rec)

	ok, err := e.ImageExists(t.Context(), "img:1")
	if err != nil || ok {
		t.Errorf("ImageExists() = %v, %v; want false, nil", ok, err)
	}

	rec.ExitCode = 125
	if _, err := e.ImageExists(t.Context(), "img:1"); err == nil {
		t.Error("expected error for engine failure")
	}
}

func TestParseImageConfig_Empty(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"", "null\n"} {
		cfg, err := ParseImageConfig([]byte(in))
		if err != nil || cfg == nil {
			t.Errorf("ParseImageConfig(%q) = %v, %v", in, cfg, err)
		}
	}
	if _, err := ParseImageConfig([]byte("{")); err == nil {
		t.Error("expected decode error")
	}
}
