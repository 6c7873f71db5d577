// SPDX-License-Identifier: MPL-2.0

package verify

import (
	"fmt"
	"strings"

	"github.com/rmgprov/rmgprov/internal/container"
	"github.com/rmgprov/rmgprov/internal/manifest"
)

type (
	// ManifestReport lists the unmet requirements of one manifest.
	ManifestReport struct {
		Source   string
		Problems []manifest.Problem
	}

	// ImportResult is the outcome of one import probe.
	ImportResult struct {
		Module string
		Err    *ImportError
	}

	// Report is the outcome of verifying an image.
	Report struct {
		Image     container.ImageTag
		Variant   string
		Manifests []ManifestReport
		// ImageProblems are mismatches in the recorded environment,
		// working directory or default command.
		ImageProblems []string
		Imports       []ImportResult
	}
)

// OK reports whether every check passed.
func (r *Report) OK() bool {
	for _, m := range r.Manifests {
		if len(m.Problems) > 0 {
			return false
		}
	}
	for _, i := range r.Imports {
		if i.Err != nil {
			return false
		}
	}
	return len(r.ImageProblems) == 0
}

// Failures returns one line per failed check.
func (r *Report) Failures() []string {
	var out []string
	for _, m := range r.Manifests {
		for _, p := range m.Problems {
			out = append(out, fmt.Sprintf("%s: %s", m.Source, p))
		}
	}
	out = append(out, r.ImageProblems...)
	for _, i := range r.Imports {
		if i.Err != nil {
			out = append(out, i.Err.Error())
		}
	}
	return out
}

func (r *Report) String() string {
	if r.OK() {
		return fmt.Sprintf("%s (%s): all checks passed", r.Image, r.Variant)
	}
	return fmt.Sprintf("%s (%s): %d check(s) failed\n  %s", r.Image, r.Variant, len(r.Failures()), strings.Join(r.Failures(), "\n  "))
}
