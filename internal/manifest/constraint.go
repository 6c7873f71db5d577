// SPDX-License-Identifier: MPL-2.0

package manifest

import (
	"errors"
	"fmt"
	"strings"
)

const (
	OpEqual        Operator = "=="
	OpNotEqual     Operator = "!="
	OpGreaterEqual Operator = ">="
	OpLessEqual    Operator = "<="
	OpGreater      Operator = ">"
	OpLess         Operator = "<"
	OpCompatible   Operator = "~="
	// OpFuzzy is conda's single "=": "=1.2" matches 1.2, 1.2.5 and 1.2rc1.
	OpFuzzy Operator = "="
)

// ErrInvalidConstraint is the sentinel error wrapped by InvalidConstraintError.
var ErrInvalidConstraint = errors.New("invalid version constraint")

type (
	// Operator is a version comparison operator.
	Operator string

	// Clause is a single operator/version pair. Wildcard clauses ("==1.2.*")
	// match on release prefix.
	Clause struct {
		Op       Operator
		Version  Version
		Wildcard bool
	}

	// Constraint is a disjunction of clause conjunctions: "|" separates
	// alternatives and "," joins clauses. The zero Constraint matches any version.
	Constraint struct {
		raw          string
		alternatives [][]Clause
	}

	// InvalidConstraintError is returned when a constraint cannot be parsed.
	InvalidConstraintError struct {
		Value  string
		Reason string
	}
)

func (e *InvalidConstraintError) Error() string {
	return fmt.Sprintf("invalid version constraint %q: %s", e.Value, e.Reason)
}

func (e *InvalidConstraintError) Unwrap() error { return ErrInvalidConstraint }

// operators is ordered so two-character operators are tried first.
var operators = []Operator{OpEqual, OpNotEqual, OpGreaterEqual, OpLessEqual, OpCompatible, OpGreater, OpLess, OpFuzzy}

// ParseConstraint parses pip and conda constraint syntax: ">=1.20,<2",
// "==1.2.*", "~=2.2", "=1.2", "1.2.*", "1.2" or "1.2|1.4". A bare version
// follows conda and matches on release prefix.
func ParseConstraint(s string) (Constraint, error) {
	c := Constraint{raw: strings.TrimSpace(s)}
	if c.raw == "" || c.raw == "*" {
		return c, nil
	}
	for alt := range strings.SplitSeq(c.raw, "|") {
		var clauses []Clause
		for part := range strings.SplitSeq(alt, ",") {
			cl, err := parseClause(strings.TrimSpace(part))
			if err != nil {
				return Constraint{}, &InvalidConstraintError{Value: c.raw, Reason: err.Error()}
			}
			clauses = append(clauses, cl)
		}
		c.alternatives = append(c.alternatives, clauses)
	}
	return c, nil
}

func parseClause(s string) (Clause, error) {
	if s == "" {
		return Clause{}, errors.New("empty clause")
	}
	// A bare version is conda's fuzzy match: "numpy 1.20" means 1.20.*.
	op := OpFuzzy
	for _, candidate := range operators {
		if rest, ok := strings.CutPrefix(s, string(candidate)); ok {
			op, s = candidate, strings.TrimSpace(rest)
			break
		}
	}
	wildcard := false
	if trimmed, ok := strings.CutSuffix(s, ".*"); ok {
		if op != OpEqual && op != OpNotEqual && op != OpFuzzy {
			return Clause{}, fmt.Errorf("wildcard not allowed with %s", op)
		}
		s, wildcard = trimmed, true
	}
	if op == OpFuzzy {
		// Conda's "=1.2=build" carries a build string after the version.
		s, _, _ = strings.Cut(s, "=")
		s, wildcard = strings.TrimSuffix(s, "*"), true
	}
	v, err := ParseVersion(s)
	if err != nil {
		return Clause{}, err
	}
	if op == OpCompatible && len(v.release) < 2 {
		return Clause{}, errors.New("~= needs at least two release components")
	}
	return Clause{Op: op, Version: v, Wildcard: wildcard}, nil
}

// String returns the constraint as written.
func (c Constraint) String() string { return c.raw }

// IsAny reports whether the constraint accepts every version.
func (c Constraint) IsAny() bool { return len(c.alternatives) == 0 }

// Allows reports whether version satisfies the constraint.
func (c Constraint) Allows(version string) (bool, error) {
	if c.IsAny() {
		return true, nil
	}
	v, err := ParseVersion(version)
	if err != nil {
		return false, err
	}
	for _, clauses := range c.alternatives {
		if allowsAll(clauses, v) {
			return true, nil
		}
	}
	return false, nil
}

func allowsAll(clauses []Clause, v Version) bool {
	for _, cl := range clauses {
		if !cl.Allows(v) {
			return false
		}
	}
	return true
}

// Allows reports whether v satisfies the clause.
func (cl Clause) Allows(v Version) bool {
	if cl.Wildcard {
		match := v.HasPrefix(cl.Version.release)
		if cl.Op == OpNotEqual {
			return !match
		}
		return match
	}
	cmp := v.Compare(cl.Version)
	switch cl.Op {
	case OpEqual:
		return cmp == 0
	case OpNotEqual:
		return cmp != 0
	case OpGreaterEqual:
		return cmp >= 0
	case OpLessEqual:
		return cmp <= 0
	case OpGreater:
		return cmp > 0
	case OpLess:
		return cmp < 0
	case OpCompatible:
		return cmp >= 0 && v.HasPrefix(cl.Version.release[:len(cl.Version.release)-1])
	default:
		return false
	}
}

// String renders the clause in pip syntax.
func (cl Clause) String() string {
	s := string(cl.Op) + cl.Version.String()
	if cl.Wildcard && cl.Op != OpFuzzy {
		s += ".*"
	}
	return s
}
