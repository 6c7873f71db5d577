// SPDX-License-Identifier: MPL-2.0

package manifest

import "fmt"

const (
	ProblemMissing        ProblemKind = "missing"
	ProblemUnsatisfied    ProblemKind = "unsatisfied"
	ProblemUnknownVersion ProblemKind = "unknown-version"
)

type (
	// ProblemKind classifies why a requirement is not met.
	ProblemKind string

	// Problem is a requirement the installed package set does not meet.
	Problem struct {
		Requirement Requirement
		Kind        ProblemKind
		// Installed is the installed version, empty when missing or unknown.
		Installed string
		Detail    string
	}
)

func (p Problem) String() string {
	switch p.Kind {
	case ProblemMissing:
		return fmt.Sprintf("%s: not installed", p.Requirement.Raw)
	case ProblemUnsatisfied:
		return fmt.Sprintf("%s: installed %s", p.Requirement.Raw, p.Installed)
	default:
		return fmt.Sprintf("%s: %s", p.Requirement.Raw, p.Detail)
	}
}

// Check returns the requirements of m that inst does not satisfy, in
// manifest order.
func Check(m *Manifest, inst Installed) []Problem {
	var problems []Problem
	for _, req := range m.Requirements {
		if p, ok := checkRequirement(req, inst); !ok {
			problems = append(problems, p)
		}
	}
	return problems
}

func checkRequirement(req Requirement, inst Installed) (Problem, bool) {
	version, ok := inst.Version(req.Name)
	if !ok {
		return Problem{Requirement: req, Kind: ProblemMissing}, false
	}
	if req.Constraint.IsAny() {
		return Problem{}, true
	}
	if version == "" {
		return Problem{Requirement: req, Kind: ProblemUnknownVersion, Detail: "installed version is unknown"}, false
	}
	allowed, err := req.Constraint.Allows(version)
	if err != nil {
		return Problem{Requirement: req, Kind: ProblemUnknownVersion, Installed: version, Detail: err.Error()}, false
	}
	if !allowed {
		return Problem{Requirement: req, Kind: ProblemUnsatisfied, Installed: version}, false
	}
	return Problem{}, true
}
