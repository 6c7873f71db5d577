// SPDX-License-Identifier: MPL-2.0

package manifest

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	FormatCondaEnvironment Format = "conda"
	FormatPipRequirements  Format = "pip"
)

// ErrUnknownFormat is returned when a manifest path has no recognized extension.
var ErrUnknownFormat = errors.New("unknown manifest format")

type (
	// Format identifies the manifest file format.
	Format string

	// Manifest is a parsed package manifest.
	Manifest struct {
		// Name is the environment name declared by the manifest, if any.
		Name string
		// Source is the path the manifest was read from.
		Source string
		// Format is the file format.
		Format Format
		// Channels are the conda channels, in priority order.
		Channels []string
		// Requirements are the declared packages in file order.
		Requirements []Requirement
		// Digest is the hex sha256 of the manifest bytes.
		Digest string
	}

	environmentFile struct {
		Name         string        `yaml:"name"`
		Channels     []string      `yaml:"channels"`
		Dependencies []environDeps `yaml:"dependencies"`
	}

	// environDeps is one entry of an environment.yml dependency list: either
	// a conda match spec or a {pip: [...]} mapping.
	environDeps struct {
		conda string
		pip   []string
	}
)

func (d *environDeps) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		return node.Decode(&d.conda)
	case yaml.MappingNode:
		var m map[string][]string
		if err := node.Decode(&m); err != nil {
			return err
		}
		pip, ok := m["pip"]
		if !ok || len(m) != 1 {
			return fmt.Errorf("line %d: only a 'pip' mapping is allowed in dependencies", node.Line)
		}
		d.pip = pip
		return nil
	default:
		return fmt.Errorf("line %d: unexpected dependency entry", node.Line)
	}
}

// DetectFormat infers the manifest format from its file name.
func DetectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml":
		return FormatCondaEnvironment, nil
	case ".txt", ".in":
		return FormatPipRequirements, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownFormat, path)
	}
}

// Load reads and parses a manifest file. A missing file is an error: every
// manifest must be present before its install step runs.
func Load(path string) (*Manifest, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return Parse(data, path, format)
}

// Parse parses manifest bytes in the given format.
func Parse(data []byte, source string, format Format) (*Manifest, error) {
	var (
		m   *Manifest
		err error
	)
	switch format {
	case FormatCondaEnvironment:
		m, err = parseEnvironment(data)
	case FormatPipRequirements:
		m, err = parseRequirements(bytes.NewReader(data))
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, format)
	}
	if err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", source, err)
	}
	sum := sha256.Sum256(data)
	m.Source = source
	m.Format = format
	m.Digest = hex.EncodeToString(sum[:])
	return m, nil
}

func parseEnvironment(data []byte) (*Manifest, error) {
	var env environmentFile
	if err := yaml.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	m := &Manifest{Name: env.Name, Channels: env.Channels}
	for _, dep := range env.Dependencies {
		if dep.pip != nil {
			for _, spec := range dep.pip {
				if skipPipLine(spec) {
					continue
				}
				req, err := ParsePipSpec(spec)
				if err != nil {
					return nil, err
				}
				m.Requirements = append(m.Requirements, req)
			}
			continue
		}
		req, err := ParseCondaSpec(dep.conda)
		if err != nil {
			return nil, err
		}
		m.Requirements = append(m.Requirements, req)
	}
	return m, nil
}

func parseRequirements(r io.Reader) (*Manifest, error) {
	m := &Manifest{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line, _, _ := strings.Cut(scanner.Text(), " #")
		line = strings.TrimSpace(line)
		if skipPipLine(line) {
			continue
		}
		req, err := ParsePipSpec(line)
		if err != nil {
			return nil, err
		}
		m.Requirements = append(m.Requirements, req)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return m, nil
}

// skipPipLine drops blank lines, comments, options (-r, -e, --index-url) and
// bare VCS/URL references that carry no package name.
func skipPipLine(line string) bool {
	line = strings.TrimSpace(line)
	return line == "" ||
		strings.HasPrefix(line, "#") ||
		strings.HasPrefix(line, "-") ||
		strings.Contains(line, "://") && !strings.Contains(line, "@")
}

// Lookup returns the requirement for a package name.
func (m *Manifest) Lookup(name string) (Requirement, bool) {
	name = NormalizeName(name)
	for _, r := range m.Requirements {
		if r.Name == name {
			return r, true
		}
	}
	return Requirement{}, false
}

// Names returns the normalized package names in file order.
func (m *Manifest) Names() []string {
	names := make([]string, len(m.Requirements))
	for i, r := range m.Requirements {
		names[i] = r.Name
	}
	return names
}
