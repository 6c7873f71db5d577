// SPDX-License-Identifier: MPL-2.0

package runenv

import (
	"fmt"
	"strings"

	"github.com/rmgprov/rmgprov/internal/pipeline"
)

const (
	// UnbufferedKey disables interpreter output buffering.
	UnbufferedKey = "PYTHONUNBUFFERED"
	// ModulePathKey is the interpreter's module search path.
	ModulePathKey = "PYTHONPATH"
)

type (
	// Var is one image environment variable. A Prepend variable puts Value in
	// front of whatever the variable held in the previous layer.
	Var struct {
		Key     string
		Value   string
		Prepend bool
	}

	// Environment is the fixed set of variables set before the entry command
	// runs. It is built once and never modified; accessors return copies.
	Environment struct {
		vars []Var
	}
)

// Render returns the Dockerfile form of the value, e.g. "/rmg/RMG-Py:$PYTHONPATH".
func (v Var) Render() string {
	if v.Prepend {
		return v.Value + ":$" + v.Key
	}
	return v.Value
}

// Satisfied reports whether an image's effective value meets the variable.
func (v Var) Satisfied(actual string) bool {
	if v.Prepend {
		return actual == v.Value || strings.HasPrefix(actual, v.Value+":")
	}
	return actual == v.Value
}

// FromSettings builds the entry-point environment: unbuffered output and the
// compiled source tree prepended to the module search path.
func FromSettings(s pipeline.Settings) Environment {
	return Environment{vars: []Var{
		{Key: UnbufferedKey, Value: "1"},
		{Key: ModulePathKey, Value: s.SourcePath, Prepend: true},
	}}
}

// Vars returns the variables in declaration order.
func (e Environment) Vars() []Var {
	out := make([]Var, len(e.vars))
	copy(out, e.vars)
	return out
}

// Lookup returns the variable with the given key.
func (e Environment) Lookup(key string) (Var, bool) {
	for _, v := range e.vars {
		if v.Key == key {
			return v, true
		}
	}
	return Var{}, false
}

// Dockerfile renders the variables as a single ENV instruction.
func (e Environment) Dockerfile() string {
	if len(e.vars) == 0 {
		return ""
	}
	parts := make([]string, len(e.vars))
	for i, v := range e.vars {
		parts[i] = fmt.Sprintf("%s=%s", v.Key, dockerfileQuote(v.Render()))
	}
	return "ENV " + strings.Join(parts, " ")
}

// Mismatches compares the environment recorded in an image against e and
// describes every variable that is missing or wrong.
func (e Environment) Mismatches(lookup func(key string) (string, bool)) []string {
	var out []string
	for _, v := range e.vars {
		actual, ok := lookup(v.Key)
		switch {
		case !ok:
			out = append(out, fmt.Sprintf("%s is not set", v.Key))
		case !v.Satisfied(actual):
			out = append(out, fmt.Sprintf("%s=%q, want %q", v.Key, actual, v.Render()))
		}
	}
	return out
}

// dockerfileQuote double-quotes a value for an ENV instruction, leaving
// variable references expandable.
func dockerfileQuote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(s) + `"`
}
