// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

var _ CommandEngine = (*PodmanEngine)(nil)

// PodmanEngine implements the Engine interface using Podman CLI.
// Images are built in Docker format so CMD and ENV metadata survive export.
type PodmanEngine struct {
	*BaseCLIEngine
}

// NewPodmanEngine creates a new Podman engine.
func NewPodmanEngine(opts ...BaseCLIEngineOption) *PodmanEngine {
	path, _ := exec.LookPath("podman")
	allOpts := append([]BaseCLIEngineOption{
		WithName(string(EngineTypePodman)),
		WithBuildArgsTransformer(forceDockerFormat),
	}, opts...)
	return &PodmanEngine{
		BaseCLIEngine: NewBaseCLIEngine(path, allOpts...),
	}
}

// Name returns the engine name.
func (e *PodmanEngine) Name() string {
	return string(EngineTypePodman)
}

// Available checks if Podman is available.
func (e *PodmanEngine) Available() bool {
	if e.BinaryPath() == "" {
		return false
	}
	cmd := e.CreateCommand(context.Background(), "version", "--format", "{{.Version}}")
	return cmd.Run() == nil
}

// Version returns the Podman version.
func (e *PodmanEngine) Version(ctx context.Context) (string, error) {
	out, err := e.RunCommandWithOutput(ctx, "version", "--format", "{{.Version}}")
	if err != nil {
		return "", fmt.Errorf("failed to get podman version: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// ImageExists checks if an image exists using `podman image exists`, which
// exits 1 when the image is absent.
func (e *PodmanEngine) ImageExists(ctx context.Context, image ImageTag) (bool, error) {
	cmd := e.CreateCommand(ctx, "image", "exists", string(image))
	err := cmd.Run()
	if err == nil {
		return true, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
		return false, nil
	}
	return false, fmt.Errorf("check image %s: %w", image, err)
}

// forceDockerFormat inserts --format docker right after the build subcommand.
func forceDockerFormat(args []string) []string {
	if len(args) == 0 || args[0] != "build" {
		return args
	}
	out := make([]string, 0, len(args)+2)
	out = append(out, args[0], "--format", "docker")
	return append(out, args[1:]...)
}
