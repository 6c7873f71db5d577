// SPDX-License-Identifier: MPL-2.0

package pipeline

const (
	// DefaultVariantName is the variant used when none is named.
	DefaultVariantName = "full"

	// ModelsScript downloads the kinetic model collection.
	ModelsScript = "download_rmg_models.py"
	// SchemasScript generates data models from a remote schema.
	SchemasScript = "generate_schemas.py"
)

// DefaultSettings reproduces the inputs shared by the original images.
func DefaultSettings() Settings {
	return Settings{
		BaseImage:           "continuumio/miniconda3:latest",
		ToolchainPackages:   []string{"gcc", "g++", "git", "make"},
		SourceRepo:          "https://github.com/ReactionMechanismGenerator/RMG-Py.git",
		SourceRef:           "main",
		SourcePath:          "/rmg/RMG-Py",
		ToolkitManifest:     "environment.yml",
		AppManifest:         "environment.yml",
		ExtraLibraryPackage: "libxrender1",
		AppDir:              "/app",
		EnvName:             "base",
		Python:              "python",
		Owner:               "root:root",
		ToolkitModule:       "rmgpy",
	}
}

// DefaultVariants returns the full and minimal variants keyed by name.
// The minimal variant leaves the rendering library out, as the original
// minimal image did; it stays a toggle.
func DefaultVariants() map[string]Variant {
	return map[string]Variant{
		"full": {
			Name:           "full",
			Description:    "Full toolkit build with the application environment and rendering library",
			Target:         TargetFull,
			AppEnvironment: true,
			ExtraLibrary:   true,
			CopySource:     true,
			EntryScript:    ModelsScript,
		},
		"minimal": {
			Name:        "minimal",
			Description: "Minimal toolkit build for schema generation",
			Target:      TargetMinimal,
			CopySource:  true,
			EntryScript: SchemasScript,
		},
	}
}
