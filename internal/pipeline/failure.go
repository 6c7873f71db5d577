// SPDX-License-Identifier: MPL-2.0

package pipeline

import (
	"context"
	"errors"
	"strings"
)

const (
	// FailureNetwork is package-index or network unavailability.
	FailureNetwork FailureKind = "network"
	// FailureVersion is a missing or incompatible package version.
	FailureVersion FailureKind = "version"
	// FailureFetch is a source-fetch failure.
	FailureFetch FailureKind = "fetch"
	// FailureCompile is a compile failure in the external tree.
	FailureCompile FailureKind = "compile"
	// FailureMissingLibrary is a shared library missing at runtime.
	FailureMissingLibrary FailureKind = "missing-library"
	// FailureCanceled is an interrupted step.
	FailureCanceled FailureKind = "canceled"
	// FailureUnknown is anything else.
	FailureUnknown FailureKind = "unknown"
)

type (
	// FailureKind classifies why a step failed. It is informational: every
	// kind is fatal and none is retried.
	FailureKind string

	// ToolOutputError is implemented by executor errors that captured the
	// failing tool's output.
	ToolOutputError interface {
		error
		ToolOutput() string
	}
)

var (
	networkMarkers = []string{
		"Temporary failure resolving",
		"Could not resolve host",
		"Could not resolve hostname",
		"connection timed out",
		"Connection timed out",
		"connection refused",
		"Connection refused",
		"Network is unreachable",
		"CondaHTTPError",
		"Failed to fetch",
	}
	versionMarkers = []string{
		"PackagesNotFoundError",
		"ResolvePackageNotFound",
		"UnsatisfiableError",
		"Unable to locate package",
		"has no installation candidate",
		"No matching distribution found",
		"Could not find a version that satisfies",
		"LibMambaUnsatisfiableError",
	}
	libraryMarkers = []string{
		"error while loading shared libraries",
		"cannot open shared object file",
	}
)

// ClassifyFailure maps a step failure to the failure taxonomy.
func ClassifyFailure(step StepID, err error) FailureKind {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return FailureCanceled
	}

	switch step {
	case StepFetchSource:
		return FailureFetch
	case StepCompile:
		return FailureCompile
	}

	text := err.Error()
	var out ToolOutputError
	if errors.As(err, &out) {
		text += "\n" + out.ToolOutput()
	}
	return ClassifyOutput(text)
}

// ClassifyOutput classifies tool output without step context. It is used for
// runtime probes where the missing-library case is the interesting one.
func ClassifyOutput(text string) FailureKind {
	switch {
	case containsAny(text, libraryMarkers):
		return FailureMissingLibrary
	case containsAny(text, versionMarkers):
		return FailureVersion
	case containsAny(text, networkMarkers):
		return FailureNetwork
	default:
		return FailureUnknown
	}
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
