// SPDX-License-Identifier: MPL-2.0

package manifest

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidRequirement is the sentinel error wrapped by InvalidRequirementError.
var ErrInvalidRequirement = errors.New("invalid requirement")

type (
	// Requirement is one (name, version-constraint) entry of a manifest.
	Requirement struct {
		// Name is the normalized package name.
		Name string
		// Constraint limits acceptable versions; the zero value accepts any.
		Constraint Constraint
		// Channel is the conda channel prefix ("conda-forge::rdkit"), if any.
		Channel string
		// Pip marks entries installed by pip rather than conda.
		Pip bool
		// Raw is the entry as written in the manifest.
		Raw string
	}

	// InvalidRequirementError is returned when a manifest entry cannot be parsed.
	InvalidRequirementError struct {
		Entry string
		Err   error
	}
)

func (e *InvalidRequirementError) Error() string {
	return fmt.Sprintf("invalid requirement %q: %v", e.Entry, e.Err)
}

func (e *InvalidRequirementError) Unwrap() []error { return []error{ErrInvalidRequirement, e.Err} }

// String returns the entry as written.
func (r Requirement) String() string { return r.Raw }

// ParseCondaSpec parses a conda match spec such as "numpy>=1.20",
// "python=3.9", "conda-forge::rdkit" or "cantera 2.6.*".
func ParseCondaSpec(spec string) (Requirement, error) {
	raw := strings.TrimSpace(spec)
	s := raw
	req := Requirement{Raw: raw}
	if channel, rest, ok := strings.Cut(s, "::"); ok {
		req.Channel, s = channel, rest
	}

	name, rest := s, ""
	if idx := strings.IndexAny(s, "<>=!~ \t"); idx >= 0 {
		name, rest = s[:idx], strings.TrimSpace(s[idx:])
	}
	return finishRequirement(req, name, condaConstraint(rest))
}

// condaConstraint joins the version tokens of a match spec, dropping the
// spaces conda allows around operators and commas. A token that neither
// follows nor starts an operator or separator is a build string and ends
// the constraint ("cantera 2.6.* py39_0").
func condaConstraint(s string) string {
	const joiners = "<>=!~,|"
	var b strings.Builder
	for i, tok := range strings.Fields(s) {
		if i > 0 {
			prev := b.String()
			if !strings.ContainsAny(prev[len(prev)-1:], joiners) && !strings.ContainsAny(tok[:1], joiners) {
				break
			}
		}
		b.WriteString(tok)
	}
	return b.String()
}

// ParsePipSpec parses a pip requirement line such as "numpy>=1.20",
// "requests[socks]==2.31; python_version>'3.8'" or "pkg @ https://...".
func ParsePipSpec(spec string) (Requirement, error) {
	raw := strings.TrimSpace(spec)
	req := Requirement{Raw: raw, Pip: true}

	s, _, _ := strings.Cut(raw, ";")
	s = strings.TrimSpace(s)
	if name, _, ok := strings.Cut(s, "@"); ok {
		return finishRequirement(req, strings.TrimSpace(name), "")
	}
	idx := strings.IndexAny(s, "<>=!~[ (")
	if idx < 0 {
		return finishRequirement(req, s, "")
	}
	name, rest := s[:idx], strings.TrimSpace(s[idx:])
	if strings.HasPrefix(rest, "[") {
		end := strings.Index(rest, "]")
		if end < 0 {
			return Requirement{}, &InvalidRequirementError{Entry: raw, Err: errors.New("unterminated extras")}
		}
		rest = strings.TrimSpace(rest[end+1:])
	}
	rest = strings.TrimSuffix(strings.TrimPrefix(rest, "("), ")")
	if rest != "" && strings.IndexAny(rest[:1], "<>=!~") < 0 {
		return Requirement{}, &InvalidRequirementError{Entry: raw, Err: fmt.Errorf("unexpected %q", rest)}
	}
	return finishRequirement(req, name, strings.ReplaceAll(rest, " ", ""))
}

func finishRequirement(req Requirement, name, constraint string) (Requirement, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Requirement{}, &InvalidRequirementError{Entry: req.Raw, Err: errors.New("missing package name")}
	}
	c, err := ParseConstraint(constraint)
	if err != nil {
		return Requirement{}, &InvalidRequirementError{Entry: req.Raw, Err: err}
	}
	req.Name = NormalizeName(name)
	req.Constraint = c
	return req, nil
}

// NormalizeName lowercases a package name and collapses runs of "-", "_"
// and "." into a single "-", so pip and conda spellings compare equal.
func NormalizeName(name string) string {
	var b strings.Builder
	sep := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		if r == '-' || r == '_' || r == '.' {
			sep = true
			continue
		}
		if sep && b.Len() > 0 {
			b.WriteByte('-')
		}
		sep = false
		b.WriteRune(r)
	}
	return b.String()
}
