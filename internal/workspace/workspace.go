// Package workspace locates the station workspace root.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Marker is the executable, relative to the root, that identifies a workspace.
const Marker = "bin/station"

// SafeDirs are the top-level directories agents may touch.
var SafeDirs = []string{
	"config",
	"bin",
	"scripts",
	"data",
	"models",
	"outputs",
	"logs",
	"backups",
	"extensions",
	"docs",
}

// ErrRootNotFound is returned when no ancestor holds the marker executable.
var ErrRootNotFound = errors.New("workspace root not found")

// IsSafeDir reports whether name is one of SafeDirs.
func IsSafeDir(name string) bool {
	for _, d := range SafeDirs {
		if d == name {
			return true
		}
	}
	return false
}

// FindRoot walks upward from start until a directory holding Marker is found.
// The returned path is absolute with symlinks resolved.
func FindRoot(start string) (string, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", start, err)
	}
	if resolved, err := filepath.EvalSymlinks(dir); err == nil {
		dir = resolved
	}
	for {
		if HasMarker(dir) {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("%w (searched upward from %s for %s)", ErrRootNotFound, start, Marker)
		}
		dir = parent
	}
}

// HasMarker reports whether dir contains the marker executable.
func HasMarker(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, Marker))
	if err != nil {
		return false
	}
	return info.Mode().IsRegular() && info.Mode().Perm()&0o111 != 0
}

// Open validates an explicit root instead of searching for one.
func Open(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", dir, err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	if !HasMarker(abs) {
		return "", fmt.Errorf("%w: %s has no %s", ErrRootNotFound, abs, Marker)
	}
	return abs, nil
}
