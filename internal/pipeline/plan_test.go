// SPDX-License-Identifier: MPL-2.0

package pipeline

import (
	"errors"
	"slices"
	"testing"
)

func mustPlan(t *testing.T, variant string) *Plan {
	t.Helper()
	v, ok := DefaultVariants()[variant]
	if !ok {
		t.Fatalf("no default variant %q", variant)
	}
	plan, err := BuildPlan(DefaultSettings(), v)
	if err != nil {
		t.Fatalf("BuildPlan(%s) error: %v", variant, err)
	}
	return plan
}

func planIDs(p *Plan) []StepID {
	ids := make([]StepID, len(p.Steps))
	for i, s := range p.Steps {
		ids[i] = s.ID
	}
	return ids
}

func TestBuildPlan_FullVariantHasAllSteps(t *testing.T) {
	t.Parallel()
	plan := mustPlan(t, "full")

	if got := planIDs(plan); !slices.Equal(got, StepIDs()) {
		t.Errorf("full plan steps = %v, want %v", got, StepIDs())
	}
	if !plan.Provides(CapRenderLibrary) {
		t.Error("full plan should provide the rendering library")
	}
}

func TestBuildPlan_MinimalVariantSkipsOptionalSteps(t *testing.T) {
	t.Parallel()
	plan := mustPlan(t, "minimal")

	want := []StepID{StepToolchain, StepFetchSource, StepToolkitEnv, StepCompile, StepCopySource, StepEntryCommand}
	if got := planIDs(plan); !slices.Equal(got, want) {
		t.Errorf("minimal plan steps = %v, want %v", got, want)
	}
	if plan.Has(StepAppEnv) || plan.Has(StepExtraLibrary) {
		t.Error("minimal plan must not contain app-env or extra-library")
	}
	if plan.Variant.Target != TargetMinimal {
		t.Errorf("target = %s, want minimal", plan.Variant.Target)
	}
}

func TestBuildPlan_MinimalCompileNeedsNoFullOnlyCapabilities(t *testing.T) {
	t.Parallel()
	plan := mustPlan(t, "minimal")

	compile, ok := plan.Step(StepCompile)
	if !ok {
		t.Fatal("minimal plan has no compile step")
	}
	for _, req := range compile.Requires {
		if req == CapAppEnv || req == CapRenderLibrary {
			t.Errorf("compile requires full-only capability %s", req)
		}
	}
}

func TestBuildPlan_RenderingLibraryIsAToggle(t *testing.T) {
	t.Parallel()
	v := DefaultVariants()["minimal"]
	v.ExtraLibrary = true

	plan, err := BuildPlan(DefaultSettings(), v)
	if err != nil {
		t.Fatalf("BuildPlan() error: %v", err)
	}
	if !plan.Has(StepExtraLibrary) {
		t.Error("enabling extra_library should add the extra-library step")
	}
}

func TestBuildPlan_InvalidInputs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		settings func(*Settings)
		variant  func(*Variant)
		sentinel error
	}{
		{
			name:     "empty base image",
			settings: func(s *Settings) { s.BaseImage = " " },
			sentinel: ErrInvalidSettings,
		},
		{
			name:     "relative source path",
			settings: func(s *Settings) { s.SourcePath = "rmg/RMG-Py" },
			sentinel: ErrInvalidSettings,
		},
		{
			name:     "no toolchain packages",
			settings: func(s *Settings) { s.ToolchainPackages = nil },
			sentinel: ErrInvalidSettings,
		},
		{
			name:     "unknown target",
			variant:  func(v *Variant) { v.Target = "debug" },
			sentinel: ErrInvalidVariant,
		},
		{
			name:     "empty entry script",
			variant:  func(v *Variant) { v.EntryScript = "" },
			sentinel: ErrInvalidVariant,
		},
		{
			name: "relative entry script without copy",
			variant: func(v *Variant) {
				v.CopySource = false
				v.EntryScript = "generate_schemas.py"
			},
			sentinel: ErrInvalidVariant,
		},
		{
			name:     "app environment without manifest",
			settings: func(s *Settings) { s.AppManifest = "" },
			sentinel: ErrInvalidSettings,
		},
		{
			name:     "extra library without package",
			settings: func(s *Settings) { s.ExtraLibraryPackage = "" },
			sentinel: ErrInvalidSettings,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := DefaultSettings()
			v := DefaultVariants()["full"]
			if tt.settings != nil {
				tt.settings(&s)
			}
			if tt.variant != nil {
				tt.variant(&v)
			}
			_, err := BuildPlan(s, v)
			if !errors.Is(err, tt.sentinel) {
				t.Errorf("BuildPlan() error = %v, want %v", err, tt.sentinel)
			}
		})
	}
}

func TestBuildPlan_AbsoluteEntryScriptWithoutCopy(t *testing.T) {
	t.Parallel()
	v := DefaultVariants()["minimal"]
	v.CopySource = false
	v.EntryScript = "/rmg/RMG-Py/rmg.py"

	plan, err := BuildPlan(DefaultSettings(), v)
	if err != nil {
		t.Fatalf("BuildPlan() error: %v", err)
	}
	entry, _ := plan.Step(StepEntryCommand)
	if slices.Contains(entry.Requires, CapAppSource) {
		t.Error("entry command should not require app source when the variant does not copy it")
	}
}

func TestValidateOrder_ToolchainSkippedFailsCompile(t *testing.T) {
	t.Parallel()
	v := DefaultVariants()["full"]
	var steps []Step
	for _, id := range v.Steps() {
		if id == StepToolchain {
			continue
		}
		steps = append(steps, NewStep(id, v))
	}

	err := ValidateOrder(steps)
	var orderErr *OrderError
	if !errors.As(err, &orderErr) {
		t.Fatalf("ValidateOrder() error = %v, want *OrderError", err)
	}
	if !orderErr.Violates(StepCompile) {
		t.Errorf("compile step should be a violation: %v", orderErr)
	}
	if !errors.Is(err, ErrOrderViolation) {
		t.Error("error should wrap ErrOrderViolation")
	}
}

func TestValidateOrder_ToolchainAfterCompileFailsCompile(t *testing.T) {
	t.Parallel()
	v := DefaultVariants()["full"]
	steps := []Step{
		NewStep(StepFetchSource, v),
		NewStep(StepToolkitEnv, v),
		NewStep(StepCompile, v),
		NewStep(StepToolchain, v),
	}

	err := ValidateOrder(steps)
	var orderErr *OrderError
	if !errors.As(err, &orderErr) {
		t.Fatalf("ValidateOrder() error = %v, want *OrderError", err)
	}
	if !orderErr.Violates(StepCompile) {
		t.Errorf("compile step should be a violation: %v", orderErr)
	}
	if !orderErr.Violates(StepToolchain) {
		t.Errorf("toolchain step should be reported as out of order: %v", orderErr)
	}
}

func TestValidateOrder_AppEnvBeforeCompile(t *testing.T) {
	t.Parallel()
	v := DefaultVariants()["full"]
	steps := []Step{
		NewStep(StepToolchain, v),
		NewStep(StepFetchSource, v),
		NewStep(StepToolkitEnv, v),
		NewStep(StepAppEnv, v),
		NewStep(StepCompile, v),
	}

	err := ValidateOrder(steps)
	var orderErr *OrderError
	if !errors.As(err, &orderErr) {
		t.Fatalf("ValidateOrder() error = %v, want *OrderError", err)
	}
	if !orderErr.Violates(StepAppEnv) {
		t.Errorf("app-env should be a violation: %v", orderErr)
	}
}

func TestValidateOrder_DuplicateAndUnknown(t *testing.T) {
	t.Parallel()
	v := DefaultVariants()["full"]
	steps := []Step{
		NewStep(StepToolchain, v),
		NewStep(StepToolchain, v),
		{ID: "bogus"},
	}

	err := ValidateOrder(steps)
	var orderErr *OrderError
	if !errors.As(err, &orderErr) {
		t.Fatalf("ValidateOrder() error = %v, want *OrderError", err)
	}
	if len(orderErr.Violations) != 2 {
		t.Errorf("got %d violations, want 2: %v", len(orderErr.Violations), orderErr)
	}
}

func TestStepID_Ordinal(t *testing.T) {
	t.Parallel()
	for i, id := range StepIDs() {
		if id.Ordinal() != i+1 {
			t.Errorf("%s.Ordinal() = %d, want %d", id, id.Ordinal(), i+1)
		}
		if err := id.Validate(); err != nil {
			t.Errorf("%s.Validate() error: %v", id, err)
		}
	}
	if err := StepID("nope").Validate(); !errors.Is(err, ErrInvalidStepID) {
		t.Errorf("Validate(nope) = %v, want ErrInvalidStepID", err)
	}
}

func TestSettings_EntryScriptPath(t *testing.T) {
	t.Parallel()
	s := DefaultSettings()

	if got := s.EntryScriptPath(Variant{EntryScript: "generate_schemas.py"}); got != "/app/generate_schemas.py" {
		t.Errorf("relative script resolved to %q", got)
	}
	if got := s.EntryScriptPath(Variant{EntryScript: "/opt/x.py"}); got != "/opt/x.py" {
		t.Errorf("absolute script resolved to %q", got)
	}
	cmd := s.EntryCommand(Variant{EntryScript: "generate_schemas.py"})
	if !slices.Equal(cmd, []string{"python", "generate_schemas.py"}) {
		t.Errorf("EntryCommand() = %v", cmd)
	}
}
