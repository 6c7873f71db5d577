// SPDX-License-Identifier: MPL-2.0

package pipeline

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrOrderViolation is the sentinel error wrapped by OrderError.
var ErrOrderViolation = errors.New("step order violation")

type (
	// Plan is the ordered list of steps for one variant.
	Plan struct {
		Settings Settings
		Variant  Variant
		Steps    []Step
	}

	// OrderViolation describes one step that cannot run where it is placed.
	OrderViolation struct {
		Step StepID
		// Missing lists required capabilities no earlier step provides.
		Missing []Capability
		// Reason is set for violations not about capabilities
		// (duplicate steps, steps out of canonical order, unknown steps).
		Reason string
	}

	// OrderError reports every step that cannot run where it is placed.
	OrderError struct {
		Violations []OrderViolation
	}
)

func (v OrderViolation) String() string {
	if v.Reason != "" {
		return fmt.Sprintf("%s: %s", v.Step, v.Reason)
	}
	missing := make([]string, len(v.Missing))
	for i, c := range v.Missing {
		missing[i] = string(c)
	}
	return fmt.Sprintf("%s: requires %s, not provided by any earlier step", v.Step, strings.Join(missing, ", "))
}

func (e *OrderError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.String()
	}
	return "invalid step order: " + strings.Join(parts, "; ")
}

func (e *OrderError) Unwrap() error { return ErrOrderViolation }

// Violates reports whether the given step is one of the violations.
func (e *OrderError) Violates(id StepID) bool {
	for _, v := range e.Violations {
		if v.Step == id {
			return true
		}
	}
	return false
}

// BuildPlan validates the settings and variant and returns the plan of
// enabled steps in canonical order.
func BuildPlan(settings Settings, variant Variant) (*Plan, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if err := variant.Validate(); err != nil {
		return nil, err
	}
	if err := settings.validateFor(variant); err != nil {
		return nil, err
	}

	ids := variant.Steps()
	steps := make([]Step, 0, len(ids))
	for _, id := range ids {
		steps = append(steps, NewStep(id, variant))
	}
	if err := ValidateOrder(steps); err != nil {
		return nil, err
	}

	return &Plan{Settings: settings, Variant: variant, Steps: steps}, nil
}

// ValidateOrder checks that the steps form a valid total order: known IDs,
// no duplicates, canonical relative order, and every required capability
// provided by an earlier step. All violations are reported, not only the
// first, so that a misplaced toolchain step shows up on every step that
// needed it.
func ValidateOrder(steps []Step) error {
	var violations []OrderViolation
	provided := make(map[Capability]bool)
	seen := make(map[StepID]bool)
	lastOrdinal := 0

	for _, s := range steps {
		if err := s.ID.Validate(); err != nil {
			violations = append(violations, OrderViolation{Step: s.ID, Reason: "unknown step"})
			continue
		}
		if seen[s.ID] {
			violations = append(violations, OrderViolation{Step: s.ID, Reason: "step appears more than once"})
			continue
		}
		seen[s.ID] = true

		if ord := s.ID.Ordinal(); ord < lastOrdinal {
			violations = append(violations, OrderViolation{
				Step:   s.ID,
				Reason: fmt.Sprintf("must run before %s", canonicalOrder[lastOrdinal-1]),
			})
		} else {
			lastOrdinal = ord
		}

		var missing []Capability
		for _, req := range s.Requires {
			if !provided[req] {
				missing = append(missing, req)
			}
		}
		if len(missing) > 0 {
			violations = append(violations, OrderViolation{Step: s.ID, Missing: missing})
		}

		for _, p := range s.Provides {
			provided[p] = true
		}
	}

	if len(violations) > 0 {
		return &OrderError{Violations: violations}
	}
	return nil
}

// Step returns the plan's step with the given ID.
func (p *Plan) Step(id StepID) (Step, bool) {
	i := slices.IndexFunc(p.Steps, func(s Step) bool { return s.ID == id })
	if i < 0 {
		return Step{}, false
	}
	return p.Steps[i], true
}

// Has reports whether the plan contains the step.
func (p *Plan) Has(id StepID) bool {
	_, ok := p.Step(id)
	return ok
}

// Provides reports whether any step in the plan leaves the capability behind.
func (p *Plan) Provides(c Capability) bool {
	for _, s := range p.Steps {
		if slices.Contains(s.Provides, c) {
			return true
		}
	}
	return false
}
