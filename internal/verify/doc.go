// SPDX-License-Identifier: MPL-2.0

// Package verify checks a built runtime image: its installed packages
// against both manifests, the importability of the compiled toolkit, the
// entry-point environment and default command, and the lockfile that makes
// reruns comparable.
package verify
