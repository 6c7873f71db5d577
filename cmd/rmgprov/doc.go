// SPDX-License-Identifier: MPL-2.0

// Package cmd contains the rmgprov command line interface.
//
// Every command handler receives the App, which carries the configuration
// provider, the container engine factory and the output streams, so tests
// can run commands against fakes.
package cmd
