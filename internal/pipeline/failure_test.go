// SPDX-License-Identifier: MPL-2.0

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

type outputErr struct {
	err    error
	output string
}

func (e *outputErr) Error() string      { return e.err.Error() }
func (e *outputErr) Unwrap() error      { return e.err }
func (e *outputErr) ToolOutput() string { return e.output }

func TestClassifyFailure(t *testing.T) {
	t.Parallel()
	exit := errors.New("exit status 100")

	tests := []struct {
		name string
		step StepID
		err  error
		want FailureKind
	}{
		{"nil", StepToolchain, nil, ""},
		{"canceled", StepCompile, fmt.Errorf("build: %w", context.Canceled), FailureCanceled},
		{"fetch step", StepFetchSource, exit, FailureFetch},
		{"compile step", StepCompile, exit, FailureCompile},
		{
			"apt index unreachable",
			StepToolchain,
			&outputErr{exit, "W: Failed to fetch http://deb.debian.org/debian/dists/bookworm/InRelease  Temporary failure resolving 'deb.debian.org'"},
			FailureNetwork,
		},
		{
			"missing apt package",
			StepExtraLibrary,
			&outputErr{exit, "E: Unable to locate package libxrender9"},
			FailureVersion,
		},
		{
			"conda unsatisfiable",
			StepToolkitEnv,
			&outputErr{exit, "PackagesNotFoundError: The following packages are not available from current channels"},
			FailureVersion,
		},
		{"no output", StepAppEnv, exit, FailureUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := ClassifyFailure(tt.step, tt.err); got != tt.want {
				t.Errorf("ClassifyFailure() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClassifyOutput_MissingLibrary(t *testing.T) {
	t.Parallel()
	out := "ImportError: libXrender.so.1: cannot open shared object file: No such file or directory"
	if got := ClassifyOutput(out); got != FailureMissingLibrary {
		t.Errorf("ClassifyOutput() = %q, want missing-library", got)
	}
}
