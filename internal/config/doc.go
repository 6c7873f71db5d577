// SPDX-License-Identifier: MPL-2.0

// Package config loads rmgprov configuration using Viper with CUE as the
// file format.
//
// The file is validated against an embedded CUE schema (config_schema.cue)
// and merged over built-in defaults that reproduce the full and minimal
// images. Environment variables prefixed with RMGPROV_ override file values.
package config
