// SPDX-License-Identifier: MPL-2.0

package verify

import (
	"bytes"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/rmgprov/rmgprov/internal/manifest"
	"github.com/rmgprov/rmgprov/internal/pipeline"
)

// LockfileVersion is the current lockfile schema version.
const LockfileVersion = 1

type (
	// Lockfile records what a build installed so reruns can be compared.
	Lockfile struct {
		Version    int                `toml:"version"`
		Variant    string             `toml:"variant"`
		Image      string             `toml:"image"`
		SourceRepo string             `toml:"source_repo"`
		SourceRef  string             `toml:"source_ref"`
		// AppDigest is the hash of the application tree the image copied,
		// empty for variants that do not copy it.
		AppDigest string             `toml:"app_digest,omitempty"`
		Manifests []LockedManifest   `toml:"manifests"`
		Packages  []manifest.Package `toml:"packages"`
	}

	// LockedManifest is the digest of one manifest at lock time.
	LockedManifest struct {
		Source string `toml:"source"`
		Digest string `toml:"digest"`
	}

	// Difference is one package whose pin differs between two lockfiles.
	// An empty Old or New means the package is absent on that side.
	Difference struct {
		Name string
		Old  string
		New  string
	}
)

func (d Difference) String() string {
	switch {
	case d.Old == "":
		return fmt.Sprintf("%s: added %s", d.Name, d.New)
	case d.New == "":
		return fmt.Sprintf("%s: removed %s", d.Name, d.Old)
	default:
		return fmt.Sprintf("%s: %s -> %s", d.Name, d.Old, d.New)
	}
}

// NewLockfile records the installed package set of an image built from plan.
func NewLockfile(plan *pipeline.Plan, image string, installed manifest.Installed, manifests ...*manifest.Manifest) *Lockfile {
	lf := &Lockfile{
		Version:    LockfileVersion,
		Variant:    plan.Variant.Name,
		Image:      image,
		SourceRepo: plan.Settings.SourceRepo,
		SourceRef:  plan.Settings.SourceRef,
		Packages:   installed.Packages(),
	}
	for _, m := range manifests {
		lf.Manifests = append(lf.Manifests, LockedManifest{Source: m.Source, Digest: m.Digest})
	}
	return lf
}

// Marshal encodes the lockfile as TOML.
func (lf *Lockfile) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("# Generated by rmgprov lock. Do not edit.\n")
	enc := toml.NewEncoder(&buf)
	enc.SetIndentTables(true)
	if err := enc.Encode(lf); err != nil {
		return nil, fmt.Errorf("encode lockfile: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteLockfile writes lf to path.
func WriteLockfile(path string, lf *Lockfile) error {
	data, err := lf.Marshal()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write lockfile: %w", err)
	}
	return nil
}

// ReadLockfile reads a lockfile written by WriteLockfile.
func ReadLockfile(path string) (*Lockfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read lockfile: %w", err)
	}
	var lf Lockfile
	if err := toml.Unmarshal(data, &lf); err != nil {
		return nil, fmt.Errorf("decode lockfile %s: %w", path, err)
	}
	if lf.Version != LockfileVersion {
		return nil, fmt.Errorf("lockfile %s has version %d, want %d", path, lf.Version, LockfileVersion)
	}
	return &lf, nil
}

// CompareLockfiles returns the package pins that differ between prev and
// next, sorted by name. Two runs of the same configuration are expected to
// produce no differences.
func CompareLockfiles(prev, next *Lockfile) []Difference {
	oldPins := pins(prev.Packages)
	newPins := pins(next.Packages)

	var diffs []Difference
	for _, p := range prev.Packages {
		if v, ok := newPins[p.Name]; !ok || v != p.Version {
			diffs = append(diffs, Difference{Name: p.Name, Old: p.Version, New: v})
		}
	}
	for _, p := range next.Packages {
		if _, ok := oldPins[p.Name]; !ok {
			diffs = append(diffs, Difference{Name: p.Name, New: p.Version})
		}
	}
	sortDifferences(diffs)
	return diffs
}

func pins(pkgs []manifest.Package) map[string]string {
	m := make(map[string]string, len(pkgs))
	for _, p := range pkgs {
		m[p.Name] = p.Version
	}
	return m
}

func sortDifferences(diffs []Difference) {
	slices.SortFunc(diffs, func(a, b Difference) int { return strings.Compare(a.Name, b.Name) })
}
