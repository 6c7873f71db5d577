// SPDX-License-Identifier: MPL-2.0

package runenv

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseDotenv(t *testing.T) {
	t.Parallel()

	content := strings.Join([]string{
		"# secrets for the entry script",
		"",
		"export PAT=ghp_example",
		"SCHEMA_ENDPOINT=https://schemas.example.invalid/v1?fmt=json # remote",
		`QUOTED="line1\nline2 \"x\" \$HOME"`,
		"LITERAL='a\\nb'",
		"EMPTY=",
		"WINDOWS=crlf\r",
	}, "\n")

	env := map[string]string{"PAT": "old"}
	if err := ParseDotenv(env, []byte(content), "test.env"); err != nil {
		t.Fatalf("ParseDotenv() error = %v", err)
	}

	want := map[string]string{
		"PAT":             "ghp_example",
		"SCHEMA_ENDPOINT": "https://schemas.example.invalid/v1?fmt=json",
		"QUOTED":          "line1\nline2 \"x\" $HOME",
		"LITERAL":         `a\nb`,
		"EMPTY":           "",
		"WINDOWS":         "crlf",
	}
	for k, v := range want {
		if env[k] != v {
			t.Errorf("%s = %q, want %q", k, env[k], v)
		}
	}
}

func TestParseDotenv_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"missing equals", "NOPE", "test.env:1: expected KEY=value"},
		{"empty key", "=value", "test.env:1: empty variable name"},
		{"unterminated double", "\nA=\"open", "test.env:2: unterminated double quote"},
		{"unterminated single", "A='open", "test.env:1: unterminated single quote"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := ParseDotenv(map[string]string{}, []byte(tt.content), "test.env")
			if err == nil || err.Error() != tt.wantErr {
				t.Errorf("error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadDotenv(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "run.env"), []byte("PAT=abc\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	env := map[string]string{}
	if err := LoadDotenv(env, "run.env", dir); err != nil {
		t.Fatalf("LoadDotenv() error = %v", err)
	}
	if env["PAT"] != "abc" {
		t.Errorf("PAT = %q", env["PAT"])
	}

	if err := LoadDotenv(env, "missing.env?", dir); err != nil {
		t.Errorf("optional missing file: error = %v", err)
	}
	if err := LoadDotenv(env, "missing.env", dir); err == nil {
		t.Error("expected error for missing required file")
	}
}
