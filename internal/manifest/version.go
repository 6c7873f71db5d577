// SPDX-License-Identifier: MPL-2.0

package manifest

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang.org/x/mod/semver"
)

// ErrInvalidVersion is the sentinel error wrapped by InvalidVersionError.
var ErrInvalidVersion = errors.New("invalid version")

type (
	// Version is a parsed package version. The first three release components
	// are held as a semver core so ordering goes through golang.org/x/mod/semver;
	// further components, then the pre, post and dev segments, are ordered
	// after it. A missing post or dev segment is -1.
	Version struct {
		raw     string
		release []int
		core    string
		pre     string
		post    int
		dev     int
	}

	// InvalidVersionError is returned when a version string cannot be parsed.
	InvalidVersionError struct {
		Value string
	}
)

func (e *InvalidVersionError) Error() string {
	return fmt.Sprintf("invalid version %q", e.Value)
}

func (e *InvalidVersionError) Unwrap() error { return ErrInvalidVersion }

// ParseVersion parses Python and conda style versions such as "1.26.4",
// "2.0rc1", "1!3.2", "1.2.3.post1" or "2023.09.1+cpu".
func ParseVersion(s string) (Version, error) {
	raw := s
	s = strings.ToLower(strings.TrimSpace(s))
	if _, rest, ok := strings.Cut(s, "!"); ok {
		s = rest
	}
	s, _, _ = strings.Cut(s, "+")
	s = strings.TrimPrefix(s, "v")

	end := 0
	for end < len(s) && (s[end] == '.' || (s[end] >= '0' && s[end] <= '9')) {
		end++
	}
	relPart := strings.TrimRight(s[:end], ".")
	suffix := strings.TrimLeft(s[len(relPart):], ".-_")
	if relPart == "" {
		return Version{}, &InvalidVersionError{Value: raw}
	}

	v := Version{raw: raw, post: -1, dev: -1}
	for _, p := range strings.Split(relPart, ".") {
		n, err := strconv.Atoi(p)
		if err != nil {
			return Version{}, &InvalidVersionError{Value: raw}
		}
		v.release = append(v.release, n)
	}

	for suffix != "" {
		label, num, rest := splitSuffix(suffix)
		switch label {
		case "post", "rev", "r":
			v.post = num
		case "dev":
			v.dev = num
		case "a", "alpha":
			v.pre = appendPre(v.pre, "a", num)
		case "b", "beta":
			v.pre = appendPre(v.pre, "b", num)
		case "rc", "c", "pre", "preview":
			v.pre = appendPre(v.pre, "rc", num)
		default:
			return Version{}, &InvalidVersionError{Value: raw}
		}
		suffix = strings.TrimLeft(rest, ".-_")
	}

	core := make([]int, 3)
	copy(core, v.release)
	v.core = fmt.Sprintf("v%d.%d.%d", core[0], core[1], core[2])
	if !semver.IsValid(v.core) {
		return Version{}, &InvalidVersionError{Value: raw}
	}
	return v, nil
}

// MustParseVersion is like ParseVersion but panics on error.
func MustParseVersion(s string) Version {
	v, err := ParseVersion(s)
	if err != nil {
		panic(err)
	}
	return v
}

// String returns the version as it was written.
func (v Version) String() string { return v.raw }

// Release returns a copy of the numeric release components.
func (v Version) Release() []int {
	out := make([]int, len(v.release))
	copy(out, v.release)
	return out
}

// Compare returns -1, 0 or +1 depending on whether v sorts before, equal to
// or after w.
func (v Version) Compare(w Version) int {
	if c := semver.Compare(v.core, w.core); c != 0 {
		return c
	}
	n := max(len(v.release), len(w.release))
	for i := 3; i < n; i++ {
		a, b := component(v.release, i), component(w.release, i)
		if a != b {
			if a < b {
				return -1
			}
			return 1
		}
	}
	if c := cmp.Compare(v.preRank(), w.preRank()); c != 0 {
		return c
	}
	if v.pre != w.pre {
		if c := semver.Compare("v0.0.0-"+v.pre, "v0.0.0-"+w.pre); c != 0 {
			return c
		}
	}
	if c := cmp.Compare(v.post, w.post); c != 0 {
		return c
	}
	// A release without a dev segment sorts after its dev releases.
	return cmp.Compare(devKey(v.dev), devKey(w.dev))
}

// preRank orders the pre-release segment: a bare dev release ("1.0.dev1")
// sorts before any pre-release of the same release, and a version without
// a pre-release after all of them.
func (v Version) preRank() int {
	switch {
	case v.pre != "":
		return 1
	case v.dev >= 0 && v.post < 0:
		return 0
	default:
		return 2
	}
}

func devKey(dev int) int {
	if dev < 0 {
		return math.MaxInt
	}
	return dev
}

// HasPrefix reports whether v's release components start with prefix.
// Trailing zero components of v are implied, so "1" has prefix [1, 0].
func (v Version) HasPrefix(prefix []int) bool {
	for i, p := range prefix {
		if component(v.release, i) != p {
			return false
		}
	}
	return true
}

func component(rel []int, i int) int {
	if i < len(rel) {
		return rel[i]
	}
	return 0
}

func appendPre(pre, label string, num int) string {
	id := label + "." + strconv.Itoa(max(num, 0))
	if pre == "" {
		return id
	}
	return pre + "." + id
}

// splitSuffix splits "rc1.post2" into ("rc", 1, ".post2").
func splitSuffix(s string) (label string, num int, rest string) {
	i := 0
	for i < len(s) && s[i] >= 'a' && s[i] <= 'z' {
		i++
	}
	label = s[:i]
	j := i
	for j < len(s) && (s[j] == '.' || s[j] == '-' || s[j] == '_') && j == i {
		j++
	}
	k := j
	for k < len(s) && s[k] >= '0' && s[k] <= '9' {
		k++
	}
	if k == j {
		return label, 0, s[i:]
	}
	num, _ = strconv.Atoi(s[j:k])
	return label, num, s[k:]
}
