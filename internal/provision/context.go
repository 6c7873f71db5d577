// SPDX-License-Identifier: MPL-2.0

package provision

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
)

// localBuildRoot is the build root used under the working directory when
// no home directory is available.
const localBuildRoot = ".rmgprov-build"

// skippedDirs are never copied into a build context.
var skippedDirs = []string{".git", "__pycache__", localBuildRoot}

// buildDir is a temporary directory holding a step's Dockerfile and, in its
// context subdirectory, the files the step reads.
type buildDir struct {
	parent string
	root   string
}

func (b buildDir) Dockerfile() string { return filepath.Join(b.root, "Dockerfile") }
func (b buildDir) Context() string    { return filepath.Join(b.root, "context") }
func (b buildDir) Remove()            { _ = os.RemoveAll(b.root) }

// newBuildDir creates a temporary build directory under parent, or under a
// default location when parent is empty. Docker installed via Snap cannot read
// /tmp or hidden home directories, so the default is a visible directory in
// $HOME with the working directory and the system temp dir as fallbacks.
func newBuildDir(parent string) (buildDir, error) {
	if parent == "" {
		parent = defaultBuildRoot()
	}
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return buildDir{}, fmt.Errorf("failed to create build context parent directory: %w", err)
	}
	root, err := os.MkdirTemp(parent, "ctx-*")
	if err != nil {
		return buildDir{}, fmt.Errorf("failed to create temp directory: %w", err)
	}
	b := buildDir{parent: parent, root: root}
	if err := os.Mkdir(b.Context(), 0o755); err != nil {
		b.Remove()
		return buildDir{}, fmt.Errorf("failed to create context directory: %w", err)
	}
	return b, nil
}

func defaultBuildRoot() string {
	if home, err := os.UserHomeDir(); err == nil {
		if _, statErr := os.Stat(home); statErr == nil {
			return filepath.Join(home, "rmgprov-build")
		}
	}
	if cwd, err := os.Getwd(); err == nil {
		return filepath.Join(cwd, localBuildRoot)
	}
	return filepath.Join(os.TempDir(), "rmgprov-build")
}

// stage copies the listed paths of srcRoot into the build context, keeping
// their relative layout. "." copies the whole tree. The build root is left
// out when it lies inside srcRoot.
func (b buildDir) stage(srcRoot string, paths []string) error {
	for _, rel := range paths {
		src := filepath.Join(srcRoot, filepath.FromSlash(rel))
		dst := filepath.Join(b.Context(), filepath.FromSlash(rel))
		info, err := os.Stat(src)
		if err != nil {
			return fmt.Errorf("build context: %w", err)
		}
		if info.IsDir() {
			err = CopyDir(src, dst, b.parent)
		} else {
			if err = os.MkdirAll(filepath.Dir(dst), 0o755); err == nil {
				err = CopyFile(src, dst)
			}
		}
		if err != nil {
			return fmt.Errorf("build context %s: %w", rel, err)
		}
	}
	return nil
}

// CopyFile copies a file from src to dst, preserving its mode.
func CopyFile(src, dst string) (err error) {
	srcFile, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source file: %w", err)
	}
	defer func() { _ = srcFile.Close() }()

	srcInfo, err := srcFile.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat source file: %w", err)
	}

	dstFile, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, srcInfo.Mode())
	if err != nil {
		return fmt.Errorf("failed to create destination file: %w", err)
	}
	defer func() {
		if closeErr := dstFile.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close destination file: %w", closeErr)
		}
	}()

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		return fmt.Errorf("failed to copy file contents: %w", err)
	}
	return nil
}

// CopyDir recursively copies a directory, skipping VCS metadata,
// interpreter caches and the directories in exclude. Symbolic links are
// copied as the files or directories they point to.
func CopyDir(src, dst string, exclude ...string) error {
	return walkTree(src, exclude, func(rel string, info os.FileInfo) error {
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			if err := os.MkdirAll(target, info.Mode().Perm()|0o700); err != nil {
				return fmt.Errorf("failed to create destination directory: %w", err)
			}
			return nil
		}
		return CopyFile(filepath.Join(src, rel), target)
	})
}

// CalculateDirHash hashes the relative paths and contents of every file
// CopyDir would copy from dir.
func CalculateDirHash(dir string, exclude ...string) (string, error) {
	h := sha256.New()
	err := walkTree(dir, exclude, func(rel string, info os.FileInfo) error {
		if info.IsDir() {
			return nil
		}
		f, err := os.Open(filepath.Join(dir, rel))
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()
		fmt.Fprintf(h, "%s\x00", filepath.ToSlash(rel))
		if _, err := io.Copy(h, f); err != nil {
			return err
		}
		h.Write([]byte{0})
		return nil
	})
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// treeWalker visits a directory tree in lexical order, following symbolic
// links. fn sees each directory before its entries and every regular file.
type treeWalker struct {
	exclude []os.FileInfo
	fn      func(rel string, info os.FileInfo) error
}

func walkTree(root string, exclude []string, fn func(rel string, info os.FileInfo) error) error {
	w := treeWalker{fn: fn}
	for _, p := range exclude {
		if info, err := os.Stat(p); err == nil {
			w.exclude = append(w.exclude, info)
		}
	}
	return w.walk(root, ".", nil)
}

func (w *treeWalker) walk(dir, rel string, parents []os.FileInfo) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("failed to stat source directory: %w", err)
	}
	if slices.ContainsFunc(parents, func(p os.FileInfo) bool { return os.SameFile(p, info) }) {
		return fmt.Errorf("symbolic link cycle at %s", dir)
	}
	if err := w.fn(rel, info); err != nil {
		return err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read source directory: %w", err)
	}
	parents = append(parents, info)
	for _, entry := range entries {
		p := filepath.Join(dir, entry.Name())
		r := filepath.Join(rel, entry.Name())
		target, err := os.Stat(p)
		if err != nil {
			return fmt.Errorf("failed to stat %s: %w", p, err)
		}
		switch {
		case target.IsDir() && w.skipped(entry.Name(), target):
			continue
		case target.IsDir():
			err = w.walk(p, r, parents)
		case target.Mode().IsRegular():
			err = w.fn(r, target)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (w *treeWalker) skipped(name string, info os.FileInfo) bool {
	return slices.Contains(skippedDirs, name) ||
		slices.ContainsFunc(w.exclude, func(e os.FileInfo) bool { return os.SameFile(e, info) })
}
