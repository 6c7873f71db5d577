// SPDX-License-Identifier: MPL-2.0

// Package issue provides actionable error handling with user-friendly messages.
//
// ActionableError carries the failed operation, the resource involved and
// remediation hints. Issue guides are Markdown documents rendered for the
// terminal when a failure has a well-known fix (no container engine, a
// provisioning step that failed, an unreadable configuration file).
package issue
