// Package sandbox gates filesystem paths and shell commands before they
// reach the OS.
//
// Path checks confine every operation to the safe subdirectories of the
// workspace root. Command checks classify executables by name and, in
// dry-run mode, allow only a fixed read-only command set. The
// write-subcommand patterns are a best-effort layer on top of the
// executable allow-list, not a security boundary on their own.
package sandbox

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/vinayprograms/station/internal/workspace"
)

// Denial is a policy rejection. It is returned as a value, never panicked.
type Denial struct {
	Reason string
}

func (d *Denial) Error() string {
	return d.Reason
}

// IsDenial reports whether err is a policy denial.
func IsDenial(err error) bool {
	var d *Denial
	return errors.As(err, &d)
}

func deny(format string, args ...interface{}) error {
	return &Denial{Reason: fmt.Sprintf(format, args...)}
}

// IsPathAllowed reports whether target resolves to a path inside one of the
// safe subdirectories of root. The root itself is never allowed. Absolute
// targets are accepted when they resolve inside root.
func IsPathAllowed(root, target string) bool {
	_, err := checkSafe(root, target)
	return err == nil
}

// CheckPath validates a workspace-relative target and returns its absolute,
// resolved form. Absolute targets are denied before any filesystem call.
func CheckPath(root, target string) (string, error) {
	if err := relativeOnly(target); err != nil {
		return "", err
	}
	return checkSafe(root, target)
}

// CheckDir is CheckPath but also accepts the workspace root itself.
func CheckDir(root, target string) (string, error) {
	if err := relativeOnly(target); err != nil {
		return "", err
	}
	abs, rel, err := Resolve(root, target)
	if err != nil {
		return "", err
	}
	if rel == "." {
		return abs, nil
	}
	return checkSafe(root, target)
}

func relativeOnly(target string) error {
	if filepath.IsAbs(target) || strings.HasPrefix(target, "/") {
		return deny("path denied: %s is absolute; use a workspace-relative path", target)
	}
	return nil
}

func checkSafe(root, target string) (string, error) {
	abs, rel, err := Resolve(root, target)
	if err != nil {
		return "", err
	}
	if rel == "." {
		return "", deny("path denied: %s is the workspace root", target)
	}
	first := strings.SplitN(rel, string(filepath.Separator), 2)[0]
	if !workspace.IsSafeDir(first) {
		return "", deny("path denied: %s is outside the safe directories (%s)", target, strings.Join(workspace.SafeDirs, ", "))
	}
	return abs, nil
}

// Resolve makes target absolute, follows symlinks of its deepest existing
// ancestor and returns it together with its path relative to root. Paths
// escaping root are denied.
func Resolve(root, target string) (abs string, rel string, err error) {
	if strings.TrimSpace(target) == "" {
		return "", "", deny("path denied: empty path")
	}
	realRoot, err := filepath.Abs(root)
	if err != nil {
		return "", "", deny("path denied: cannot resolve root: %v", err)
	}
	realRoot, err = filepath.EvalSymlinks(realRoot)
	if err != nil {
		return "", "", deny("path denied: cannot resolve root: %v", err)
	}

	candidate := target
	if !filepath.IsAbs(candidate) {
		candidate = filepath.Join(realRoot, candidate)
	}
	candidate = filepath.Clean(candidate)

	resolved, err := resolveExisting(candidate)
	if err != nil {
		return "", "", deny("path denied: cannot resolve %s: %v", target, err)
	}

	rel, err = filepath.Rel(realRoot, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", "", deny("path denied: %s is outside the workspace", target)
	}
	return resolved, rel, nil
}

// resolveExisting evaluates symlinks on the longest existing prefix of p and
// re-attaches the non-existent remainder.
func resolveExisting(p string) (string, error) {
	var tail []string
	cur := p
	for {
		if _, err := os.Lstat(cur); err == nil {
			break
		} else if !os.IsNotExist(err) {
			return "", err
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return "", fmt.Errorf("no existing ancestor")
		}
		tail = append([]string{filepath.Base(cur)}, tail...)
		cur = parent
	}
	real, err := filepath.EvalSymlinks(cur)
	if err != nil {
		return "", err
	}
	return filepath.Join(append([]string{real}, tail...)...), nil
}
