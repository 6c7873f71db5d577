// SPDX-License-Identifier: MPL-2.0

package runenv

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LoadDotenv reads a dotenv file and merges it into env; later files win.
// Relative paths resolve against dir (the working directory when empty).
// A trailing '?' marks the file optional: a missing optional file is not an error.
func LoadDotenv(env map[string]string, path, dir string) error {
	path, optional := strings.CutSuffix(path, "?")

	full := path
	if !filepath.IsAbs(path) {
		if dir == "" {
			wd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("resolve env file %q: %w", path, err)
			}
			dir = wd
		}
		full = filepath.Join(dir, filepath.FromSlash(path))
	}

	content, err := os.ReadFile(full)
	if err != nil {
		if optional && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read env file %q: %w", path, err)
	}
	return ParseDotenv(env, content, path)
}

// ParseDotenv parses dotenv content into env. It accepts blank lines,
// '#' comments, an optional "export " prefix, unquoted values with trailing
// " #" comments, single-quoted literals and double-quoted values with
// \n \r \t \\ \" \$ escapes. The filename is used in error messages.
func ParseDotenv(env map[string]string, content []byte, filename string) error {
	for i, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(strings.TrimSuffix(line, "\r"))
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))

		key, raw, ok := strings.Cut(line, "=")
		if !ok {
			return fmt.Errorf("%s:%d: expected KEY=value", filename, i+1)
		}
		key = strings.TrimSpace(key)
		if key == "" {
			return fmt.Errorf("%s:%d: empty variable name", filename, i+1)
		}
		value, err := dotenvValue(strings.TrimSpace(raw))
		if err != nil {
			return fmt.Errorf("%s:%d: %w", filename, i+1, err)
		}
		env[key] = value
	}
	return nil
}

func dotenvValue(raw string) (string, error) {
	if raw == "" {
		return "", nil
	}
	switch raw[0] {
	case '\'':
		if len(raw) < 2 || raw[len(raw)-1] != '\'' {
			return "", errors.New("unterminated single quote")
		}
		return raw[1 : len(raw)-1], nil
	case '"':
		if len(raw) < 2 || raw[len(raw)-1] != '"' {
			return "", errors.New("unterminated double quote")
		}
		return unescapeDouble(raw[1 : len(raw)-1]), nil
	}
	if before, _, found := strings.Cut(raw, " #"); found {
		raw = strings.TrimSpace(before)
	}
	return raw, nil
}

var doubleQuoteEscapes = map[byte]byte{'n': '\n', 'r': '\r', 't': '\t', '\\': '\\', '"': '"', '$': '$'}

func unescapeDouble(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			if c, ok := doubleQuoteEscapes[s[i+1]]; ok {
				b.WriteByte(c)
				i++
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
