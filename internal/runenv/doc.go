// SPDX-License-Identifier: MPL-2.0

// Package runenv describes the environment the entry command runs in: the
// immutable variables baked into the image, the host variables each entry
// script needs, dotenv loading for those variables, and pseudo-terminal
// attachment for interactive runs.
package runenv
