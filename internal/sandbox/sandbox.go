// Package sandbox writes files atomically inside a base directory and
// refuses any path that escapes it, including through symlinks. The file
// store persists its document through it and exports write their CSV
// output through it.
package sandbox

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ValidatePath resolves relPath against baseDir and fails if the result,
// after following symlinks, lies outside baseDir.
func ValidatePath(baseDir, relPath string) (string, error) {
	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		return "", fmt.Errorf("resolving base directory: %w", err)
	}
	realBase, err := filepath.EvalSymlinks(absBase)
	if err != nil {
		return "", fmt.Errorf("resolving base directory symlinks: %w", err)
	}

	candidate := filepath.Clean(filepath.Join(realBase, relPath))
	resolved, err := resolveExistingPath(candidate)
	if err != nil {
		return "", fmt.Errorf("resolving target path: %w", err)
	}

	basePrefix := realBase + string(filepath.Separator)
	if resolved != realBase && !strings.HasPrefix(resolved, basePrefix) {
		return "", fmt.Errorf("path '%s' resolves to '%s' which is outside the base directory '%s'", relPath, resolved, realBase)
	}
	return resolved, nil
}

// resolveExistingPath follows symlinks on the longest existing prefix of
// path and appends the part that does not exist yet.
func resolveExistingPath(path string) (string, error) {
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		return resolved, nil
	}
	dir, base := filepath.Dir(path), filepath.Base(path)
	if dir == path {
		return path, nil
	}
	resolvedDir, err := resolveExistingPath(dir)
	if err != nil {
		return "", err
	}
	return filepath.Join(resolvedDir, base), nil
}

// AtomicFile buffers writes in a temp file next to its destination and
// renames it into place on Commit. Close without Commit discards it.
type AtomicFile struct {
	tmp       *os.File
	dest      string
	perm      os.FileMode
	committed bool
}

// Create opens an AtomicFile for relPath under baseDir, creating parent
// directories as needed.
func Create(baseDir, relPath string, perm os.FileMode) (*AtomicFile, error) {
	resolved, err := ValidatePath(baseDir, relPath)
	if err != nil {
		return nil, err
	}
	if _, err := ValidatePath(baseDir, filepath.Dir(relPath)); err != nil {
		return nil, fmt.Errorf("parent directory escapes base directory: %w", err)
	}

	dir := filepath.Dir(resolved)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".vaultsync-*.tmp")
	if err != nil {
		return nil, fmt.Errorf("creating temp file: %w", err)
	}
	return &AtomicFile{tmp: tmp, dest: resolved, perm: perm}, nil
}

// CreateFile opens an AtomicFile at path, using its directory as the base.
// The directory is created first when missing.
func CreateFile(path string, perm os.FileMode) (*AtomicFile, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating directory %s: %w", dir, err)
	}
	return Create(dir, filepath.Base(abs), perm)
}

func (f *AtomicFile) Write(p []byte) (int, error) { return f.tmp.Write(p) }

// Path returns the resolved destination path.
func (f *AtomicFile) Path() string { return f.dest }

// Commit flushes the temp file and renames it over the destination.
func (f *AtomicFile) Commit() error {
	if err := f.tmp.Sync(); err != nil {
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := f.tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(f.tmp.Name(), f.perm); err != nil {
		_ = os.Remove(f.tmp.Name())
		return fmt.Errorf("setting permissions: %w", err)
	}
	if err := os.Rename(f.tmp.Name(), f.dest); err != nil {
		_ = os.Remove(f.tmp.Name())
		return fmt.Errorf("renaming temp file to %s: %w", f.dest, err)
	}
	f.committed = true
	return nil
}

// Close discards the temp file unless Commit succeeded.
func (f *AtomicFile) Close() error {
	if f.committed {
		return nil
	}
	_ = f.tmp.Close()
	return os.Remove(f.tmp.Name())
}

var _ io.WriteCloser = (*AtomicFile)(nil)

// SafeWrite atomically replaces relPath under baseDir with content.
func SafeWrite(baseDir, relPath string, content []byte, perm os.FileMode) error {
	f, err := Create(baseDir, relPath, perm)
	if err != nil {
		return err
	}
	return commit(f, content)
}

// WriteFile atomically replaces path with content, creating its directory
// when missing.
func WriteFile(path string, content []byte, perm os.FileMode) error {
	f, err := CreateFile(path, perm)
	if err != nil {
		return err
	}
	return commit(f, content)
}

func commit(f *AtomicFile, content []byte) error {
	defer f.Close()

	if _, err := f.Write(content); err != nil {
		return fmt.Errorf("writing temp file: %w", err)
	}
	return f.Commit()
}
