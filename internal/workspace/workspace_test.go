package workspace

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func makeRoot(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "bin"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, Marker), []byte("#!/bin/sh\n"), 0755); err != nil {
		t.Fatal(err)
	}
	resolved, err := filepath.EvalSymlinks(root)
	if err != nil {
		t.Fatal(err)
	}
	return resolved
}

func TestFindRoot_FromNestedDir(t *testing.T) {
	root := makeRoot(t)
	nested := filepath.Join(root, "data", "a", "b")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}

	got, err := FindRoot(nested)
	if err != nil {
		t.Fatalf("FindRoot: %v", err)
	}
	if got != root {
		t.Errorf("FindRoot = %s, want %s", got, root)
	}
}

func TestFindRoot_NonExecutableMarker(t *testing.T) {
	root := t.TempDir()
	os.MkdirAll(filepath.Join(root, "bin"), 0755)
	os.WriteFile(filepath.Join(root, Marker), []byte("x"), 0644)

	_, err := FindRoot(root)
	if !errors.Is(err, ErrRootNotFound) {
		t.Fatalf("expected ErrRootNotFound, got %v", err)
	}
}

func TestOpen(t *testing.T) {
	root := makeRoot(t)
	if _, err := Open(root); err != nil {
		t.Errorf("Open(valid root): %v", err)
	}
	if _, err := Open(t.TempDir()); !errors.Is(err, ErrRootNotFound) {
		t.Errorf("Open(empty dir) = %v, want ErrRootNotFound", err)
	}
}

func TestIsSafeDir(t *testing.T) {
	for _, d := range []string{"config", "data", "docs", "extensions"} {
		if !IsSafeDir(d) {
			t.Errorf("%s should be safe", d)
		}
	}
	for _, d := range []string{"", ".git", "src", "home"} {
		if IsSafeDir(d) {
			t.Errorf("%s should not be safe", d)
		}
	}
}
