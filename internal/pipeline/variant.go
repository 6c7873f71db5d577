// SPDX-License-Identifier: MPL-2.0

package pipeline

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

const (
	// TargetFull builds every optional extension of the toolkit.
	TargetFull BuildTarget = "full"
	// TargetMinimal builds only what the toolkit core needs.
	TargetMinimal BuildTarget = "minimal"
)

var (
	// ErrInvalidBuildTarget is returned when a BuildTarget is not recognized.
	ErrInvalidBuildTarget = errors.New("invalid build target")
	// ErrInvalidVariant is the sentinel error wrapped by InvalidVariantError.
	ErrInvalidVariant = errors.New("invalid variant")
	// ErrInvalidSettings is the sentinel error wrapped by InvalidSettingsError.
	ErrInvalidSettings = errors.New("invalid pipeline settings")
)

type (
	// BuildTarget selects the external tree's build variant.
	BuildTarget string

	// InvalidBuildTargetError is returned when a BuildTarget is not recognized.
	InvalidBuildTargetError struct {
		Value BuildTarget
	}

	// Variant is a named configuration of the pipeline. It selects the build
	// target, which optional steps run, and the entry script.
	Variant struct {
		Name        string      `mapstructure:"name"`
		Description string      `mapstructure:"description"`
		Target      BuildTarget `mapstructure:"target"`
		// AppEnvironment enables the application package environment step.
		AppEnvironment bool `mapstructure:"app_environment"`
		// ExtraLibrary enables the rendering library step.
		ExtraLibrary bool `mapstructure:"extra_library"`
		// CopySource enables copying the application tree into the image.
		CopySource bool `mapstructure:"copy_source"`
		// EntryScript is run by the interpreter with no arguments. Relative
		// paths resolve against Settings.AppDir.
		EntryScript string `mapstructure:"entry_script"`
	}

	// InvalidVariantError is returned when a Variant has invalid fields.
	InvalidVariantError struct {
		Name      string
		FieldErrs []error
	}

	// Settings are the pipeline inputs shared by every variant.
	Settings struct {
		// BaseImage is the image the first step builds on.
		BaseImage string `mapstructure:"base_image"`
		// ToolchainPackages are the OS packages installed by the toolchain step.
		ToolchainPackages []string `mapstructure:"toolchain_packages"`
		// SourceRepo is the remote URL of the external source tree.
		SourceRepo string `mapstructure:"source_repo"`
		// SourceRef is the branch or tag to clone.
		SourceRef string `mapstructure:"source_ref"`
		// SourcePath is the absolute path the tree is cloned into.
		SourcePath string `mapstructure:"source_path"`
		// ToolkitManifest is the manifest path relative to SourcePath.
		ToolkitManifest string `mapstructure:"toolkit_manifest"`
		// AppManifest is the application manifest path relative to the build context.
		AppManifest string `mapstructure:"app_manifest"`
		// ExtraLibraryPackage is the OS package providing the rendering library.
		ExtraLibraryPackage string `mapstructure:"extra_library_package"`
		// AppDir is the working directory of the final image.
		AppDir string `mapstructure:"app_dir"`
		// EnvName is the package environment both manifests install into.
		EnvName string `mapstructure:"env_name"`
		// Python is the interpreter that runs the entry script.
		Python string `mapstructure:"python"`
		// Owner is the user:group the application tree is copied as.
		Owner string `mapstructure:"owner"`
		// ToolkitModule is the import name of the compiled toolkit, probed
		// by verification. Empty disables the default probe.
		ToolkitModule string `mapstructure:"toolkit_module"`
	}

	// InvalidSettingsError is returned when Settings have invalid fields.
	InvalidSettingsError struct {
		FieldErrs []error
	}
)

func (e *InvalidBuildTargetError) Error() string {
	return fmt.Sprintf("invalid build target %q (valid: full, minimal)", e.Value)
}

func (e *InvalidBuildTargetError) Unwrap() error { return ErrInvalidBuildTarget }

// Validate returns an error if the target is not full or minimal.
func (t BuildTarget) Validate() error {
	switch t {
	case TargetFull, TargetMinimal:
		return nil
	default:
		return &InvalidBuildTargetError{Value: t}
	}
}

// MakeTarget returns the make target for the build, empty for the default one.
func (t BuildTarget) MakeTarget() string {
	if t == TargetMinimal {
		return "minimal"
	}
	return ""
}

func (e *InvalidVariantError) Error() string {
	return fmt.Sprintf("invalid variant %q: %v", e.Name, errors.Join(e.FieldErrs...))
}

func (e *InvalidVariantError) Unwrap() error { return ErrInvalidVariant }

// Validate checks the variant fields.
func (v Variant) Validate() error {
	var errs []error
	if strings.TrimSpace(v.Name) == "" {
		errs = append(errs, errors.New("name must not be empty"))
	}
	if err := v.Target.Validate(); err != nil {
		errs = append(errs, err)
	}
	script := strings.TrimSpace(v.EntryScript)
	switch {
	case script == "":
		errs = append(errs, errors.New("entry_script must not be empty"))
	case !v.CopySource && !path.IsAbs(script):
		errs = append(errs, fmt.Errorf("entry_script %q must be absolute when copy_source is disabled", v.EntryScript))
	}
	if len(errs) > 0 {
		return &InvalidVariantError{Name: v.Name, FieldErrs: errs}
	}
	return nil
}

// Steps returns the IDs of the steps the variant enables, in canonical order.
func (v Variant) Steps() []StepID {
	ids := make([]StepID, 0, len(canonicalOrder))
	for _, id := range canonicalOrder {
		switch id {
		case StepAppEnv:
			if !v.AppEnvironment {
				continue
			}
		case StepExtraLibrary:
			if !v.ExtraLibrary {
				continue
			}
		case StepCopySource:
			if !v.CopySource {
				continue
			}
		}
		ids = append(ids, id)
	}
	return ids
}

func (e *InvalidSettingsError) Error() string {
	return fmt.Sprintf("invalid pipeline settings: %v", errors.Join(e.FieldErrs...))
}

func (e *InvalidSettingsError) Unwrap() error { return ErrInvalidSettings }

// Validate checks the settings fields.
func (s Settings) Validate() error {
	var errs []error
	required := []struct {
		name, value string
	}{
		{"base_image", s.BaseImage},
		{"source_repo", s.SourceRepo},
		{"source_path", s.SourcePath},
		{"toolkit_manifest", s.ToolkitManifest},
		{"app_dir", s.AppDir},
		{"env_name", s.EnvName},
		{"python", s.Python},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			errs = append(errs, fmt.Errorf("%s must not be empty", f.name))
		}
	}
	if len(s.ToolchainPackages) == 0 {
		errs = append(errs, errors.New("toolchain_packages must not be empty"))
	}
	if s.SourcePath != "" && !path.IsAbs(s.SourcePath) {
		errs = append(errs, fmt.Errorf("source_path %q must be absolute", s.SourcePath))
	}
	if s.AppDir != "" && !path.IsAbs(s.AppDir) {
		errs = append(errs, fmt.Errorf("app_dir %q must be absolute", s.AppDir))
	}
	if len(errs) > 0 {
		return &InvalidSettingsError{FieldErrs: errs}
	}
	return nil
}

// validateFor checks the settings that only some variants need.
func (s Settings) validateFor(v Variant) error {
	var errs []error
	if v.AppEnvironment && strings.TrimSpace(s.AppManifest) == "" {
		errs = append(errs, errors.New("app_manifest must not be empty when app_environment is enabled"))
	}
	if v.ExtraLibrary && strings.TrimSpace(s.ExtraLibraryPackage) == "" {
		errs = append(errs, errors.New("extra_library_package must not be empty when extra_library is enabled"))
	}
	if len(errs) > 0 {
		return &InvalidSettingsError{FieldErrs: errs}
	}
	return nil
}

// EntryScriptPath resolves the variant's entry script inside the image.
func (s Settings) EntryScriptPath(v Variant) string {
	if path.IsAbs(v.EntryScript) {
		return v.EntryScript
	}
	return path.Join(s.AppDir, v.EntryScript)
}

// EntryCommand is the image's default command for the variant.
func (s Settings) EntryCommand(v Variant) []string {
	return []string{s.Python, v.EntryScript}
}
