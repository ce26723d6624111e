package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vinayprograms/station/internal/sandbox"
)

const maxReadChars = 100000

// Entry is one fs_list child.
type Entry struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

func fsRead(ctx context.Context, ec *ExecContext, args Args) Result {
	path, ok := args.String("path")
	if !ok || path == "" {
		return fail("path is required")
	}
	ec.Touch(path)

	abs, err := sandbox.CheckPath(ec.Root, path)
	if err != nil {
		return denial(err.Error())
	}
	info, err := os.Stat(abs)
	if err != nil {
		return fail("file not found: %s", path)
	}
	if info.IsDir() {
		return fail("%s is a directory", path)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return fail("failed to read %s: %v", path, err)
	}

	content := string(data)
	res := Result{"ok": true, "path": path, "content": content}
	if len([]rune(content)) > maxReadChars {
		res["content"] = truncate(content, maxReadChars)
		res["truncated"] = true
	}
	return res
}

func fsWrite(ctx context.Context, ec *ExecContext, args Args) Result {
	path, ok := args.String("path")
	if !ok || path == "" {
		return fail("path is required")
	}
	content, ok := args.String("content")
	if !ok {
		return fail("content is required")
	}
	ec.Touch(path)

	abs, err := sandbox.CheckPath(ec.Root, path)
	if err != nil {
		return denial(err.Error())
	}
	if !ec.Apply {
		return Result{"ok": true, "result": fmt.Sprintf("[dry-run] would write %s", abs)}
	}
	if info, err := os.Stat(abs); err == nil && info.IsDir() {
		return fail("%s is a directory", path)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		return fail("failed to create directory: %v", err)
	}
	if err := os.WriteFile(abs, []byte(content), 0644); err != nil {
		return fail("failed to write %s: %v", path, err)
	}
	return Result{"ok": true, "result": fmt.Sprintf("wrote %d bytes to %s", len(content), abs)}
}

func fsList(ctx context.Context, ec *ExecContext, args Args) Result {
	path := args.StringOr("path", ".")

	abs, err := sandbox.CheckDir(ec.Root, path)
	if err != nil {
		return denial(err.Error())
	}
	dirEntries, err := os.ReadDir(abs)
	if err != nil {
		return fail("failed to read directory %s: %v", path, err)
	}

	entries := make([]Entry, 0, len(dirEntries))
	for _, e := range dirEntries {
		kind := "file"
		switch {
		case e.Type()&os.ModeSymlink != 0:
			kind = "symlink"
		case e.IsDir():
			kind = "dir"
		}
		entries = append(entries, Entry{Name: e.Name(), Type: kind})
	}
	return Result{"ok": true, "path": path, "entries": entries}
}
