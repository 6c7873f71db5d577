// SPDX-License-Identifier: MPL-2.0

// Package cueutil validates CUE documents against an embedded schema
// definition and decodes them into Go values.
//
// Every decode follows the same flow: compile the schema, compile the
// document and unify it with the schema's root definition, then validate
// and decode.
//
//	//go:embed config_schema.cue
//	var schema []byte
//
//	m, err := cueutil.DecodeMap(schema, data, "#Config", cueutil.WithFilename(path))
package cueutil
