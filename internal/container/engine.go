// SPDX-License-Identifier: EPL-2.0

package container

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

const (
	EngineTypePodman EngineType = "podman"
	EngineTypeDocker EngineType = "docker"
)

var (
	// ErrNoEngineAvailable is the sentinel error wrapped by EngineNotAvailableError.
	ErrNoEngineAvailable = errors.New("no container engine available")
	// ErrInvalidBuildOptions is returned when BuildOptions are incomplete.
	ErrInvalidBuildOptions = errors.New("invalid build options")
	// ErrInvalidRunOptions is returned when RunOptions are incomplete.
	ErrInvalidRunOptions = errors.New("invalid run options")
)

type (
	// Engine defines the container operations used by provisioning.
	Engine interface {
		// Name returns the engine name (docker or podman).
		Name() string
		// Available checks if the engine is usable on this system.
		Available() bool
		// Version returns the engine version.
		Version(ctx context.Context) (string, error)
		// Build builds an image from a Dockerfile.
		Build(ctx context.Context, opts BuildOptions) error
		// Tag adds a tag to an existing image.
		Tag(ctx context.Context, source, target ImageTag) error
		// Run runs a command in a new container.
		Run(ctx context.Context, opts RunOptions) (*RunResult, error)
		// ImageExists checks if an image exists locally.
		ImageExists(ctx context.Context, image ImageTag) (bool, error)
		// RemoveImage removes an image.
		RemoveImage(ctx context.Context, image ImageTag, force bool) error
		// ImageConfig returns the runtime configuration recorded in an image.
		ImageConfig(ctx context.Context, image ImageTag) (*ImageConfig, error)
	}

	// CommandEngine is an Engine whose invocations can be handed to the
	// caller, e.g. to attach the container to a pseudo terminal.
	CommandEngine interface {
		Engine
		RunArgs(opts RunOptions) []string
		CreateCommand(ctx context.Context, args ...string) *exec.Cmd
	}

	// EngineType identifies the container engine type.
	EngineType string

	// ImageTag is an image reference such as "rmgprov:full".
	ImageTag string

	// ExitCode is a container process exit status.
	ExitCode int

	// BuildOptions contains options for building an image.
	BuildOptions struct {
		// ContextDir is the build context directory.
		ContextDir string
		// Dockerfile is the Dockerfile path, relative to ContextDir unless absolute.
		Dockerfile string
		// Tag is the image tag.
		Tag ImageTag
		// BuildArgs are build-time variables.
		BuildArgs map[string]string
		// Labels are image labels.
		Labels map[string]string
		// NoCache disables the build cache.
		NoCache bool
		// Stdout receives build output.
		Stdout io.Writer
		// Stderr receives build errors.
		Stderr io.Writer
	}

	// RunOptions contains options for running a container.
	RunOptions struct {
		// Image is the image to run.
		Image ImageTag
		// Command overrides the image's default command when non-empty.
		Command []string
		// WorkDir is the working directory inside the container.
		WorkDir string
		// Env contains environment variables.
		Env map[string]string
		// Remove automatically removes the container after exit.
		Remove bool
		// Name is the container name.
		Name string
		// Stdin is the standard input.
		Stdin io.Reader
		// Stdout receives standard output.
		Stdout io.Writer
		// Stderr receives standard error.
		Stderr io.Writer
		// Interactive keeps stdin open.
		Interactive bool
		// TTY allocates a pseudo-TTY.
		TTY bool
	}

	// RunResult contains the result of running a container.
	RunResult struct {
		// ExitCode is the container process exit code.
		ExitCode ExitCode
		// Error is set for infrastructure failures (binary not found, etc.).
		Error error
	}

	// EngineNotAvailableError is returned when a container engine is not available.
	EngineNotAvailableError struct {
		Engine string
		Reason string
	}
)

func (e *EngineNotAvailableError) Error() string {
	return fmt.Sprintf("container engine '%s' is not available: %s", e.Engine, e.Reason)
}

func (e *EngineNotAvailableError) Unwrap() error { return ErrNoEngineAvailable }

// Validate checks that the engine type is known.
func (t EngineType) Validate() error {
	switch t {
	case EngineTypePodman, EngineTypeDocker:
		return nil
	default:
		return fmt.Errorf("unknown container engine type: %s", t)
	}
}

// Validate checks that the options name a context directory and a tag.
func (o BuildOptions) Validate() error {
	var missing []string
	if strings.TrimSpace(o.ContextDir) == "" {
		missing = append(missing, "context directory")
	}
	if strings.TrimSpace(string(o.Tag)) == "" {
		missing = append(missing, "tag")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidBuildOptions, strings.Join(missing, ", "))
	}
	return nil
}

// Validate checks that the options name an image.
func (o RunOptions) Validate() error {
	if strings.TrimSpace(string(o.Image)) == "" {
		return fmt.Errorf("%w: missing image", ErrInvalidRunOptions)
	}
	return nil
}

// IsSuccess reports whether the container exited with status 0 and no infrastructure error.
func (r *RunResult) IsSuccess() bool {
	return r != nil && r.Error == nil && r.ExitCode == 0
}

// NewEngine creates a container engine based on preference, falling back to
// the other engine when the preferred one is unavailable.
func NewEngine(preferredType EngineType) (Engine, error) {
	switch preferredType {
	case EngineTypePodman:
		return pickEngine("podman", NewPodmanEngine(), NewDockerEngine())
	case EngineTypeDocker:
		return pickEngine("docker", NewDockerEngine(), NewPodmanEngine())
	default:
		return nil, preferredType.Validate()
	}
}

// AutoDetectEngine tries Podman first, then Docker.
func AutoDetectEngine() (Engine, error) {
	engine, err := pickEngine("any", NewPodmanEngine(), NewDockerEngine())
	if err != nil {
		return nil, &EngineNotAvailableError{
			Engine: "any",
			Reason: "no container engine (podman or docker) is available on this system",
		}
	}
	return engine, nil
}

func pickEngine(preferred string, candidates ...Engine) (Engine, error) {
	for _, e := range candidates {
		if e.Available() {
			return e, nil
		}
	}
	return nil, &EngineNotAvailableError{
		Engine: preferred,
		Reason: preferred + " is not installed or not accessible, and the fallback engine is also not available",
	}
}
