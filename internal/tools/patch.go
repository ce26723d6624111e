package tools

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vinayprograms/station/internal/sandbox"
)

type patchTool struct {
	timeout time.Duration
}

func (t *patchTool) run(ctx context.Context, ec *ExecContext, args Args) Result {
	diff := args.StringOr("diff", args.StringOr("patch", ""))
	if strings.TrimSpace(diff) == "" {
		return fail("empty diff")
	}
	sum := sha256.Sum256([]byte(diff))
	ec.Touch("patch:" + hex.EncodeToString(sum[:])[:12])

	files := DiffFiles(diff)
	if len(files) == 0 {
		return fail("diff names no files")
	}
	for _, f := range files {
		if _, err := sandbox.CheckPath(ec.Root, f); err != nil {
			return denial(err.Error())
		}
	}

	if !ec.Apply {
		return Result{
			"ok":     true,
			"result": fmt.Sprintf("[dry-run] would apply patch touching: %s", strings.Join(files, ", ")),
			"files":  files,
		}
	}
	if !strings.HasSuffix(diff, "\n") {
		diff += "\n"
	}

	scratch := filepath.Join(ec.Root, ".station-patch-"+uuid.NewString()+".diff")
	if err := os.WriteFile(scratch, []byte(diff), 0600); err != nil {
		return fail("failed to write patch file: %v", err)
	}
	defer os.Remove(scratch)

	var argv []string
	if info, err := os.Stat(filepath.Join(ec.Root, ".git")); err == nil && info.IsDir() {
		argv = []string{"git", "apply", "--whitespace=nowarn", scratch}
	} else {
		argv = []string{"patch", "-p1", "--forward", "--batch", "-i", scratch}
	}

	out := runCommand(ctx, ec.Root, argv, t.timeout)
	if out.Code != 0 {
		return Result{
			"ok":     false,
			"code":   out.Code,
			"error":  fmt.Sprintf("%s failed", strings.Join(argv[:2], " ")),
			"output": out.Stdout + out.Stderr,
		}
	}
	return Result{
		"ok":     true,
		"result": "patch applied",
		"files":  files,
		"tool":   argv[0],
	}
}

// DiffFiles returns every workspace-relative path a diff can create, change
// or remove. It reads the ---/+++ headers and the git extended headers
// (diff --git, rename and copy lines), so sections without hunks such as
// mode changes or empty new files are included. Paths from prefixed headers
// have their first component stripped the way -p1 does.
func DiffFiles(diff string) []string {
	seen := make(map[string]bool)
	var files []string
	add := func(name string, strip bool) {
		name = unquotePath(name)
		if name == "" || name == "/dev/null" {
			return
		}
		if strip {
			if i := strings.IndexByte(name, '/'); i >= 0 {
				name = name[i+1:]
			}
		}
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		files = append(files, name)
	}

	for _, line := range strings.Split(diff, "\n") {
		line = strings.TrimRight(line, "\r")
		switch {
		case strings.HasPrefix(line, "--- "), strings.HasPrefix(line, "+++ "):
			name := strings.TrimSpace(line[4:])
			if i := strings.IndexByte(name, '\t'); i >= 0 {
				name = name[:i]
			}
			add(name, true)
		case strings.HasPrefix(line, "diff --git "):
			a, b := splitGitHeader(line[len("diff --git "):])
			add(a, true)
			add(b, true)
		default:
			for _, prefix := range []string{"rename from ", "rename to ", "copy from ", "copy to "} {
				if strings.HasPrefix(line, prefix) {
					add(strings.TrimSpace(line[len(prefix):]), false)
				}
			}
		}
	}
	return files
}

// splitGitHeader splits the "a/X b/Y" part of a diff --git line. Quoted
// names are handled; for unquoted names containing spaces the split where
// both sides name the same path is preferred.
func splitGitHeader(rest string) (string, string) {
	rest = strings.TrimSpace(rest)
	if strings.HasPrefix(rest, `"`) {
		if q, err := strconv.QuotedPrefix(rest); err == nil {
			return q, strings.TrimSpace(rest[len(q):])
		}
	}
	if i := strings.LastIndex(rest, ` "`); i >= 0 && strings.HasSuffix(rest, `"`) {
		return rest[:i], rest[i+1:]
	}
	first := -1
	for i := 0; i < len(rest); i++ {
		if rest[i] != ' ' {
			continue
		}
		if first < 0 {
			first = i
		}
		a, b := rest[:i], rest[i+1:]
		if stripFirst(a) == stripFirst(b) {
			return a, b
		}
	}
	if first < 0 {
		return rest, ""
	}
	return rest[:first], rest[first+1:]
}

func stripFirst(p string) string {
	if i := strings.IndexByte(p, '/'); i >= 0 {
		return p[i+1:]
	}
	return p
}

// unquotePath decodes a C-style quoted path as git writes it.
func unquotePath(name string) string {
	if len(name) >= 2 && strings.HasPrefix(name, `"`) && strings.HasSuffix(name, `"`) {
		if u, err := strconv.Unquote(name); err == nil {
			return u
		}
		return strings.Trim(name, `"`)
	}
	return name
}
