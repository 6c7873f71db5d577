// SPDX-License-Identifier: MPL-2.0

package manifest

import (
	"bufio"
	"io"
	"maps"
	"slices"
	"strings"
)

type (
	// Installed maps normalized package names to installed versions. An empty
	// version means the package is present but its version is unknown
	// (pip reports "name @ file://..." for conda-built packages).
	Installed map[string]string

	// Package is one installed package pin.
	Package struct {
		Name    string `toml:"name"`
		Version string `toml:"version"`
	}
)

// ParseCondaExport parses `conda list --export` output ("name=version=build").
func ParseCondaExport(r io.Reader) (Installed, error) {
	inst := Installed{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 3)
		version := ""
		if len(parts) > 1 {
			version = parts[1]
		}
		inst.add(parts[0], version)
	}
	return inst, scanner.Err()
}

// ParsePipFreeze parses `pip freeze` output ("name==version" or "name @ url").
func ParsePipFreeze(r io.Reader) (Installed, error) {
	inst := Installed{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if skipPipLine(line) {
			continue
		}
		if name, version, ok := strings.Cut(line, "=="); ok {
			inst.add(name, version)
			continue
		}
		if name, _, ok := strings.Cut(line, "@"); ok {
			inst.add(name, "")
		}
	}
	return inst, scanner.Err()
}

func (inst Installed) add(name, version string) {
	name = NormalizeName(name)
	if name == "" {
		return
	}
	version = strings.TrimSpace(version)
	if prev, ok := inst[name]; ok && version == "" {
		version = prev
	}
	inst[name] = version
}

// Merge adds every package of other; known versions win over unknown ones.
func (inst Installed) Merge(other Installed) {
	for name, version := range other {
		inst.add(name, version)
	}
}

// Version returns the installed version of a package.
func (inst Installed) Version(name string) (string, bool) {
	v, ok := inst[NormalizeName(name)]
	return v, ok
}

// Packages returns the installed packages sorted by name.
func (inst Installed) Packages() []Package {
	out := make([]Package, 0, len(inst))
	for _, name := range slices.Sorted(maps.Keys(inst)) {
		out = append(out, Package{Name: name, Version: inst[name]})
	}
	return out
}
