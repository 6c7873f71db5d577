// SPDX-License-Identifier: MPL-2.0

package cueutil

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// DefaultMaxFileSize caps the size of a document accepted for decoding.
const DefaultMaxFileSize int64 = 1 << 20

type (
	options struct {
		maxFileSize int64
		concrete    bool
		filename    string
	}

	// Option configures decoding.
	Option func(*options)
)

// WithMaxFileSize overrides DefaultMaxFileSize.
func WithMaxFileSize(size int64) Option {
	return func(o *options) { o.maxFileSize = size }
}

// WithConcrete requires every field to be concrete after unification.
// Optional-heavy documents such as configuration leave this off.
func WithConcrete(concrete bool) Option {
	return func(o *options) { o.concrete = concrete }
}

// WithFilename names the document in error messages.
func WithFilename(name string) Option {
	return func(o *options) { o.filename = name }
}

// Decode validates data against the schema definition at defPath and
// decodes the unified value into T.
func Decode[T any](schema, data []byte, defPath string, opts ...Option) (*T, error) {
	unified, o, err := unify(schema, data, defPath, opts)
	if err != nil {
		return nil, err
	}
	var out T
	if err := unified.Decode(&out); err != nil {
		return nil, FormatError(err, o.filename)
	}
	return &out, nil
}

// DecodeMap is Decode into a generic map, the shape viper merges.
func DecodeMap(schema, data []byte, defPath string, opts ...Option) (map[string]any, error) {
	m, err := Decode[map[string]any](schema, data, defPath, opts...)
	if err != nil {
		return nil, err
	}
	if *m == nil {
		return map[string]any{}, nil
	}
	return *m, nil
}

func unify(schema, data []byte, defPath string, opts []Option) (cue.Value, options, error) {
	o := options{maxFileSize: DefaultMaxFileSize, filename: "<input>"}
	for _, opt := range opts {
		opt(&o)
	}

	if err := CheckFileSize(data, o.maxFileSize, o.filename); err != nil {
		return cue.Value{}, o, err
	}

	ctx := cuecontext.New()
	schemaValue := ctx.CompileBytes(schema)
	if err := schemaValue.Err(); err != nil {
		return cue.Value{}, o, fmt.Errorf("internal error: compile schema: %w", err)
	}
	root := schemaValue.LookupPath(cue.ParsePath(defPath))
	if err := root.Err(); err != nil {
		return cue.Value{}, o, fmt.Errorf("internal error: schema definition %s: %w", defPath, err)
	}

	doc := ctx.CompileBytes(data, cue.Filename(o.filename))
	if err := doc.Err(); err != nil {
		return cue.Value{}, o, FormatError(err, o.filename)
	}

	unified := root.Unify(doc)
	if err := unified.Validate(cue.Concrete(o.concrete)); err != nil {
		return cue.Value{}, o, FormatError(err, o.filename)
	}
	return unified, o, nil
}
