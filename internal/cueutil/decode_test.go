// SPDX-License-Identifier: MPL-2.0

package cueutil

import (
	"errors"
	"strings"
	"testing"
)

const testSchema = `
#Doc: {
	name:     string & !=""
	engine?:  "podman" | "docker"
	verbose?: bool
	packages?: [...string]
}
`

type testDoc struct {
	Name     string   `json:"name"`
	Engine   string   `json:"engine,omitempty"`
	Verbose  bool     `json:"verbose,omitempty"`
	Packages []string `json:"packages,omitempty"`
}

func TestDecode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		data    string
		opts    []Option
		wantErr string
	}{
		{name: "valid", data: `name: "rmg", engine: "docker", packages: ["gcc"]`},
		{name: "optional fields omitted", data: `name: "rmg"`},
		{name: "disallowed value", data: `name: "rmg", engine: "lxc"`, wantErr: "engine"},
		{name: "unknown field", data: `name: "rmg", colour: "red"`, wantErr: "colour"},
		{name: "syntax error", data: `name: "rmg`, wantErr: "doc.cue"},
		{name: "too large", data: `name: "rmg"`, opts: []Option{WithMaxFileSize(4)}, wantErr: "exceeds maximum"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			opts := append([]Option{WithFilename("doc.cue")}, tt.opts...)
			doc, err := Decode[testDoc]([]byte(testSchema), []byte(tt.data), "#Doc", opts...)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("Decode() error = %v, want containing %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if doc.Name != "rmg" {
				t.Errorf("Name = %q", doc.Name)
			}
		})
	}
}

func TestDecode_Concrete(t *testing.T) {
	t.Parallel()

	if _, err := Decode[testDoc]([]byte(testSchema), []byte(`name: string`), "#Doc", WithConcrete(true)); err == nil {
		t.Error("expected error for non-concrete name")
	}
}

func TestDecodeMap(t *testing.T) {
	t.Parallel()

	m, err := DecodeMap([]byte(testSchema), []byte(`name: "rmg", verbose: true`), "#Doc")
	if err != nil {
		t.Fatalf("DecodeMap() error = %v", err)
	}
	if m["name"] != "rmg" || m["verbose"] != true {
		t.Errorf("DecodeMap() = %v", m)
	}
}

func TestFormatError(t *testing.T) {
	t.Parallel()

	if FormatError(nil, "x.cue") != nil {
		t.Error("FormatError(nil) should be nil")
	}
	err := FormatError(errors.New("boom"), "x.cue")
	if err == nil || err.Error() != "x.cue: boom" {
		t.Errorf("FormatError() = %v", err)
	}
}

func TestFormatPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path []string
		want string
	}{
		{nil, ""},
		{[]string{"image"}, "image"},
		{[]string{"pipeline", "toolchain_packages", "2"}, "pipeline.toolchain_packages[2]"},
		{[]string{"variants", "full", "entry_script"}, "variants.full.entry_script"},
	}
	for _, tt := range tests {
		if got := formatPath(tt.path); got != tt.want {
			t.Errorf("formatPath(%v) = %q, want %q", tt.path, got, tt.want)
		}
	}
}
