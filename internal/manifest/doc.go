// SPDX-License-Identifier: MPL-2.0

// Package manifest parses package manifests (conda environment.yml and pip
// requirements files), evaluates their version constraints, and compares them
// against the package set installed in a runtime image.
package manifest
