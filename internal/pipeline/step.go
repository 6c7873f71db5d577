// SPDX-License-Identifier: MPL-2.0

package pipeline

import (
	"errors"
	"fmt"
)

const (
	// StepToolchain installs the OS compiler, VCS client and build tool.
	StepToolchain StepID = "toolchain"
	// StepFetchSource clones the external source tree.
	StepFetchSource StepID = "fetch-source"
	// StepToolkitEnv installs the toolkit manifest into the base environment.
	StepToolkitEnv StepID = "toolkit-env"
	// StepCompile runs the external tree's own build.
	StepCompile StepID = "compile"
	// StepAppEnv installs the application manifest into the same environment.
	StepAppEnv StepID = "app-env"
	// StepExtraLibrary installs the graphics rendering shared library.
	StepExtraLibrary StepID = "extra-library"
	// StepCopySource copies the application tree into the working directory.
	StepCopySource StepID = "copy-source"
	// StepEntryCommand declares the runtime environment and default command.
	StepEntryCommand StepID = "entry-command"

	CapCompiler        Capability = "compiler"
	CapVCS             Capability = "vcs"
	CapBuildTool       Capability = "build-tool"
	CapSourceTree      Capability = "source-tree"
	CapToolkitEnv      Capability = "toolkit-env"
	CapCompiledToolkit Capability = "compiled-toolkit"
	CapAppEnv          Capability = "app-env"
	CapRenderLibrary   Capability = "render-library"
	CapAppSource       Capability = "app-source"
)

// ErrInvalidStepID is the sentinel error wrapped by InvalidStepIDError.
var ErrInvalidStepID = errors.New("invalid step id")

// canonicalOrder is the only order steps may appear in.
var canonicalOrder = []StepID{
	StepToolchain,
	StepFetchSource,
	StepToolkitEnv,
	StepCompile,
	StepAppEnv,
	StepExtraLibrary,
	StepCopySource,
	StepEntryCommand,
}

var stepTitles = map[StepID]string{
	StepToolchain:    "Install build toolchain",
	StepFetchSource:  "Fetch external source",
	StepToolkitEnv:   "Install toolkit package environment",
	StepCompile:      "Compile external source",
	StepAppEnv:       "Install application package environment",
	StepExtraLibrary: "Install extra OS shared library",
	StepCopySource:   "Copy application source",
	StepEntryCommand: "Declare default command",
}

type (
	// StepID names one of the eight pipeline steps.
	StepID string

	// InvalidStepIDError is returned when a StepID is not one of the known steps.
	InvalidStepIDError struct {
		Value StepID
	}

	// Capability names a piece of image state a step leaves behind
	// (an installed compiler, a compiled toolkit on the import path).
	Capability string

	// Step is one entry of a plan.
	Step struct {
		ID       StepID
		Title    string
		Requires []Capability
		Provides []Capability
	}
)

// StepIDs returns every step ID in canonical order.
func StepIDs() []StepID {
	out := make([]StepID, len(canonicalOrder))
	copy(out, canonicalOrder)
	return out
}

func (e *InvalidStepIDError) Error() string {
	return fmt.Sprintf("invalid step id %q", e.Value)
}

func (e *InvalidStepIDError) Unwrap() error { return ErrInvalidStepID }

// Validate returns an error if the step ID is unknown.
func (id StepID) Validate() error {
	if id.Ordinal() == 0 {
		return &InvalidStepIDError{Value: id}
	}
	return nil
}

// Ordinal returns the 1-based canonical position of the step, or 0 if unknown.
func (id StepID) Ordinal() int {
	for i, s := range canonicalOrder {
		if s == id {
			return i + 1
		}
	}
	return 0
}

// Optional reports whether a variant may leave the step out.
func (id StepID) Optional() bool {
	switch id {
	case StepAppEnv, StepExtraLibrary, StepCopySource:
		return true
	default:
		return false
	}
}

func (id StepID) String() string { return string(id) }

// NewStep returns the canonical definition of a step for the given variant.
// Only the entry-command step depends on the variant: it needs the
// application source only when the variant copies it into the image.
func NewStep(id StepID, v Variant) Step {
	s := Step{ID: id, Title: stepTitles[id]}
	switch id {
	case StepToolchain:
		s.Provides = []Capability{CapCompiler, CapVCS, CapBuildTool}
	case StepFetchSource:
		s.Requires = []Capability{CapVCS}
		s.Provides = []Capability{CapSourceTree}
	case StepToolkitEnv:
		s.Requires = []Capability{CapSourceTree}
		s.Provides = []Capability{CapToolkitEnv}
	case StepCompile:
		s.Requires = []Capability{CapCompiler, CapBuildTool, CapSourceTree, CapToolkitEnv}
		s.Provides = []Capability{CapCompiledToolkit}
	case StepAppEnv:
		s.Requires = []Capability{CapToolkitEnv, CapCompiledToolkit}
		s.Provides = []Capability{CapAppEnv}
	case StepExtraLibrary:
		s.Provides = []Capability{CapRenderLibrary}
	case StepCopySource:
		s.Provides = []Capability{CapAppSource}
	case StepEntryCommand:
		s.Requires = []Capability{CapCompiledToolkit}
		if v.CopySource {
			s.Requires = append(s.Requires, CapAppSource)
		}
	}
	return s
}
