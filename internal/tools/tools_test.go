package tools

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

func newWorkspace(t *testing.T) string {
	t.Helper()
	root, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	for _, d := range []string{"config", "data", "src"} {
		if err := os.MkdirAll(filepath.Join(root, d), 0755); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func dispatch(t *testing.T, ec *ExecContext, name string, args Args) Result {
	t.Helper()
	return NewDefault(Options{}).Dispatch(context.Background(), ec, name, args)
}

func TestFsWrite_DryRun(t *testing.T) {
	root := newWorkspace(t)
	ec := NewExecContext(root, false, false)

	res := dispatch(t, ec, "fs_write", Args{"path": "config/x.txt", "content": "hi"})
	if !res.OK() {
		t.Fatalf("fs_write dry-run failed: %v", res)
	}
	want := "[dry-run] would write " + filepath.Join(root, "config", "x.txt")
	if res["result"] != want {
		t.Errorf("result = %v, want %s", res["result"], want)
	}
	if _, err := os.Stat(filepath.Join(root, "config", "x.txt")); !os.IsNotExist(err) {
		t.Error("dry-run must not create the file")
	}
	if got := ec.Touched(); len(got) != 1 || got[0] != "config/x.txt" {
		t.Errorf("touched = %v", got)
	}
}

func TestFsWrite_DryRunLeavesExistingFile(t *testing.T) {
	root := newWorkspace(t)
	target := filepath.Join(root, "data", "keep.txt")
	os.WriteFile(target, []byte("original"), 0644)

	ec := NewExecContext(root, false, false)
	for i := 0; i < 3; i++ {
		dispatch(t, ec, "fs_write", Args{"path": "data/keep.txt", "content": "changed"})
	}
	data, _ := os.ReadFile(target)
	if string(data) != "original" {
		t.Errorf("content = %q", data)
	}
}

func TestFsWrite_Apply(t *testing.T) {
	root := newWorkspace(t)
	ec := NewExecContext(root, true, false)

	res := dispatch(t, ec, "fs_write", Args{"path": "outputs/deep/x.txt", "content": "hello"})
	if !res.OK() {
		t.Fatalf("fs_write failed: %v", res)
	}
	data, err := os.ReadFile(filepath.Join(root, "outputs", "deep", "x.txt"))
	if err != nil || string(data) != "hello" {
		t.Errorf("file = %q, %v", data, err)
	}
}

func TestFsWrite_Denied(t *testing.T) {
	root := newWorkspace(t)
	ec := NewExecContext(root, true, false)

	for _, p := range []string{"src/main.go", "../escape.txt", "/etc/passwd", "x.txt"} {
		res := dispatch(t, ec, "fs_write", Args{"path": p, "content": "x"})
		if res.OK() || !res.Denied() {
			t.Errorf("fs_write(%s) = %v, want denial", p, res)
		}
	}
	if len(ec.Touched()) != 4 {
		t.Errorf("denied writes are still touched: %v", ec.Touched())
	}
}

func TestFsRead(t *testing.T) {
	root := newWorkspace(t)
	os.WriteFile(filepath.Join(root, "config", "a.toml"), []byte("k = 1\n"), 0644)
	ec := NewExecContext(root, false, false)

	res := dispatch(t, ec, "fs_read", Args{"path": "config/a.toml"})
	if !res.OK() || res["content"] != "k = 1\n" {
		t.Errorf("fs_read = %v", res)
	}

	res = dispatch(t, ec, "fs_read", Args{"path": "config/missing.toml"})
	if res.OK() || !strings.Contains(res.ErrorText(), "not found") {
		t.Errorf("missing file = %v", res)
	}

	res = dispatch(t, ec, "fs_read", Args{})
	if res.OK() || res.ErrorText() != "path is required" {
		t.Errorf("missing arg = %v", res)
	}

	touched := ec.Touched()
	if len(touched) != 2 || touched[0] != "config/a.toml" || touched[1] != "config/missing.toml" {
		t.Errorf("touched = %v", touched)
	}
}

func TestFsList(t *testing.T) {
	root := newWorkspace(t)
	os.WriteFile(filepath.Join(root, "data", "b.txt"), nil, 0644)
	os.MkdirAll(filepath.Join(root, "data", "a"), 0755)
	ec := NewExecContext(root, false, false)

	res := dispatch(t, ec, "fs_list", Args{"path": "data"})
	entries, _ := res["entries"].([]Entry)
	if len(entries) != 2 {
		t.Fatalf("entries = %v", res)
	}
	if entries[0] != (Entry{Name: "a", Type: "dir"}) || entries[1] != (Entry{Name: "b.txt", Type: "file"}) {
		t.Errorf("entries = %v", entries)
	}

	if res := dispatch(t, ec, "fs_list", Args{}); !res.OK() {
		t.Errorf("listing the root should be allowed: %v", res)
	}
	if res := dispatch(t, ec, "fs_list", Args{"path": ".."}); res.OK() {
		t.Error("listing outside the root must be denied")
	}
}

func TestGrep_Truncates(t *testing.T) {
	root := newWorkspace(t)
	var b strings.Builder
	for i := 0; i < 250; i++ {
		fmt.Fprintf(&b, "line %d TODO\n", i)
	}
	os.WriteFile(filepath.Join(root, "data", "todo.txt"), []byte(b.String()), 0644)

	res := dispatch(t, NewExecContext(root, false, false), "grep", Args{"pattern": "TODO", "path": "."})
	hits, _ := res["hits"].([]Hit)
	if len(hits) != 200 {
		t.Errorf("hits = %d, want 200", len(hits))
	}
	if res["truncated"] != true {
		t.Error("expected truncated")
	}
}

func TestGrep_SkipsHiddenAndUnsafe(t *testing.T) {
	root := newWorkspace(t)
	os.WriteFile(filepath.Join(root, "data", "ok.txt"), []byte("needle\n"), 0644)
	os.WriteFile(filepath.Join(root, "data", ".hidden"), []byte("needle\n"), 0644)
	os.MkdirAll(filepath.Join(root, "data", ".cache"), 0755)
	os.WriteFile(filepath.Join(root, "data", ".cache", "x"), []byte("needle\n"), 0644)
	os.WriteFile(filepath.Join(root, "src", "main.go"), []byte("needle\n"), 0644)
	os.WriteFile(filepath.Join(root, "README"), []byte("needle\n"), 0644)
	os.WriteFile(filepath.Join(root, "data", "long.txt"), []byte(strings.Repeat("x", 500)+"needle\n"), 0644)

	res := dispatch(t, NewExecContext(root, false, false), "grep", Args{"pattern": "needle"})
	hits, _ := res["hits"].([]Hit)
	if len(hits) != 2 {
		t.Fatalf("hits = %+v", hits)
	}
	for _, h := range hits {
		if !strings.HasPrefix(h.File, "data"+string(filepath.Separator)) {
			t.Errorf("unexpected file %s", h.File)
		}
		if len([]rune(h.Text)) > 240 {
			t.Errorf("text not truncated: %d", len(h.Text))
		}
	}
	if res["truncated"] != false {
		t.Error("should not be truncated")
	}
}

func TestGrep_InvalidPattern(t *testing.T) {
	root := newWorkspace(t)
	res := dispatch(t, NewExecContext(root, false, false), "grep", Args{"pattern": "([", "path": "data"})
	if res.OK() || !strings.HasPrefix(res.ErrorText(), "invalid pattern") {
		t.Errorf("result = %v", res)
	}
}

func TestShell_RiskyBlocked(t *testing.T) {
	root := newWorkspace(t)
	ec := NewExecContext(root, true, false)

	res := dispatch(t, ec, "shell", Args{"cmd": "rm -rf /ws/data"})
	if res.OK() {
		t.Fatal("risky command must be blocked")
	}
	if res["code"] != 2 {
		t.Errorf("code = %v", res["code"])
	}
	if res["stderr"] != "blocked risky command without --allow-destructive: rm -rf /ws/data" {
		t.Errorf("stderr = %v", res["stderr"])
	}
	if got := ec.Touched(); len(got) != 1 || got[0] != "rm -rf /ws/data" {
		t.Errorf("touched = %v", got)
	}
}

func TestShell_DryRunWriteSubcommand(t *testing.T) {
	root := newWorkspace(t)
	res := dispatch(t, NewExecContext(root, false, false), "shell", Args{"cmd": "git apply foo.diff"})
	if res.OK() || res["code"] != 2 {
		t.Errorf("result = %v", res)
	}
}

func TestShell_DryRunReadOnly(t *testing.T) {
	if _, err := exec.LookPath("ls"); err != nil {
		t.Skip("ls not available")
	}
	root := newWorkspace(t)
	os.WriteFile(filepath.Join(root, "data", "f.txt"), nil, 0644)

	res := dispatch(t, NewExecContext(root, false, false), "shell", Args{"cmd": []any{"ls", "data"}})
	if !res.OK() || res["code"] != 0 {
		t.Fatalf("result = %v", res)
	}
	if !strings.Contains(res["stdout"].(string), "f.txt") {
		t.Errorf("stdout = %q", res["stdout"])
	}
}

func TestShell_ExitCodes(t *testing.T) {
	if _, err := exec.LookPath("sleep"); err != nil {
		t.Skip("sleep not available")
	}
	root := newWorkspace(t)
	ec := NewExecContext(root, true, false)

	res := dispatch(t, ec, "shell", Args{"cmd": "station-no-such-binary-xyz"})
	if res["code"] != 127 {
		t.Errorf("missing binary code = %v", res["code"])
	}

	res = dispatch(t, ec, "shell", Args{"cmd": "sleep 5", "timeout": 1})
	if res["code"] != 124 || res.OK() {
		t.Errorf("timeout result = %v", res)
	}
}

func TestShell_OutputTail(t *testing.T) {
	if _, err := exec.LookPath("cat"); err != nil {
		t.Skip("cat not available")
	}
	root := newWorkspace(t)
	os.WriteFile(filepath.Join(root, "data", "big.txt"), []byte(strings.Repeat("a", 9000)), 0644)

	res := dispatch(t, NewExecContext(root, false, false), "shell", Args{"cmd": "cat data/big.txt"})
	if got := len(res["stdout"].(string)); got != 4000 {
		t.Errorf("stdout length = %d, want 4000", got)
	}
}

const helloDiff = `--- a/data/hello.txt
+++ b/data/hello.txt
@@ -1 +1 @@
-hello
+world
`

func TestPatch_DryRun(t *testing.T) {
	root := newWorkspace(t)
	target := filepath.Join(root, "data", "hello.txt")
	os.WriteFile(target, []byte("hello\n"), 0644)
	ec := NewExecContext(root, false, false)

	res := dispatch(t, ec, "patch", Args{"diff": helloDiff})
	if !res.OK() || !strings.HasPrefix(res["result"].(string), "[dry-run]") {
		t.Fatalf("result = %v", res)
	}
	data, _ := os.ReadFile(target)
	if string(data) != "hello\n" {
		t.Error("dry-run patch changed the file")
	}
	touched := ec.Touched()
	if len(touched) != 1 || !strings.HasPrefix(touched[0], "patch:") || len(touched[0]) != len("patch:")+12 {
		t.Errorf("touched = %v", touched)
	}
}

func TestPatch_Rejects(t *testing.T) {
	root := newWorkspace(t)
	ec := NewExecContext(root, true, false)

	if res := dispatch(t, ec, "patch", Args{"diff": "  \n"}); res.OK() || res.ErrorText() != "empty diff" {
		t.Errorf("empty diff = %v", res)
	}

	outside := strings.ReplaceAll(helloDiff, "data/hello.txt", "src/main.go")
	if res := dispatch(t, ec, "patch", Args{"diff": outside}); res.OK() || !res.Denied() {
		t.Errorf("unsafe path = %v", res)
	}
}

func TestPatch_Apply(t *testing.T) {
	if _, err := exec.LookPath("patch"); err != nil {
		t.Skip("patch not available")
	}
	root := newWorkspace(t)
	target := filepath.Join(root, "data", "hello.txt")
	os.WriteFile(target, []byte("hello\n"), 0644)

	res := dispatch(t, NewExecContext(root, true, false), "patch", Args{"diff": helloDiff})
	if !res.OK() {
		t.Fatalf("patch failed: %v", res)
	}
	data, _ := os.ReadFile(target)
	if string(data) != "world\n" {
		t.Errorf("content = %q", data)
	}

	matches, _ := filepath.Glob(filepath.Join(root, ".station-patch-*"))
	if len(matches) != 0 {
		t.Errorf("scratch files left behind: %v", matches)
	}

	res = dispatch(t, NewExecContext(root, true, false), "patch", Args{"diff": helloDiff})
	if res.OK() || res["output"] == "" {
		t.Errorf("re-applying should fail with output: %v", res)
	}
}

func TestDiffFiles(t *testing.T) {
	diff := "--- /dev/null\n+++ b/docs/new.md\t2024-01-01\n@@ -0,0 +1 @@\n+x\n--- a/data/x\n+++ b/data/x\n"
	got := DiffFiles(diff)
	if len(got) != 2 || got[0] != "docs/new.md" || got[1] != "data/x" {
		t.Errorf("DiffFiles = %v", got)
	}
}

func TestHTTPGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html><head><title> Station </title></head><body>"+strings.Repeat("x", 3000)+"</body></html>")
	}))
	defer srv.Close()

	ec := NewExecContext(t.TempDir(), false, false)
	res := dispatch(t, ec, "http_get", Args{"url": srv.URL})
	if !res.OK() || res["status"] != 200 {
		t.Fatalf("result = %v", res)
	}
	if res["title"] != "Station" {
		t.Errorf("title = %v", res["title"])
	}
	if got := len(res["text"].(string)); got != 2000 {
		t.Errorf("text length = %d", got)
	}

	res = dispatch(t, ec, "http_get", Args{"url": srv.URL + "/missing"})
	if res.OK() || res["status"] != 404 {
		t.Errorf("404 result = %v", res)
	}

	res = dispatch(t, ec, "http_get", Args{"url": "file:///etc/passwd"})
	if res.OK() {
		t.Error("non-http scheme must fail")
	}

	if len(ec.Touched()) != 3 {
		t.Errorf("touched = %v", ec.Touched())
	}
}

func TestHTTPGet_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	res := dispatch(t, NewExecContext(t.TempDir(), false, false), "http_get", Args{"url": url})
	if res.OK() || !strings.HasPrefix(res.ErrorText(), "request failed") {
		t.Errorf("result = %v", res)
	}
}

type fakeInvoker struct {
	code    int
	payload map[string]any
	got     []ToolRequest
}

func (f *fakeInvoker) Invoke(ctx context.Context, req ToolRequest) (int, map[string]any, error) {
	f.got = append(f.got, req)
	return f.code, f.payload, nil
}

func TestAIToolRun(t *testing.T) {
	inv := &fakeInvoker{code: 200, payload: map[string]any{"output": "done"}}
	r := NewDefault(Options{Invoker: inv})
	ctx := context.Background()

	dry := NewExecContext(t.TempDir(), false, false)
	res := r.Dispatch(ctx, dry, "ai_tool_run", Args{"name": "summarize", "mode": "run"})
	if res.OK() || !res.Denied() {
		t.Errorf("dry-run run mode = %v", res)
	}
	res = r.Dispatch(ctx, dry, "ai_tool_run", Args{"name": "summarize", "mode": "test", "args": map[string]any{"n": 1.0}})
	if !res.OK() {
		t.Errorf("dry-run test mode = %v", res)
	}
	if len(inv.got) != 1 || inv.got[0].Mode != "test" || inv.got[0].Args["n"] != 1.0 {
		t.Errorf("requests = %+v", inv.got)
	}

	inv.code = 500
	inv.payload = map[string]any{"error": "tool crashed"}
	res = r.Dispatch(ctx, NewExecContext(t.TempDir(), true, false), "ai_tool_run", Args{"name": "summarize"})
	if res.OK() || res.ErrorText() != "tool crashed" || res["code"] != 500 {
		t.Errorf("non-200 = %v", res)
	}

	if got := dry.Touched(); len(got) != 2 || got[0] != "tool:summarize" {
		t.Errorf("touched = %v", got)
	}
}

func TestHTTPInvoker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/tools/run" {
			http.Error(w, "bad route", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"status":"ok"}`)
	}))
	defer srv.Close()

	inv := NewHTTPInvoker(srv.URL+"/", 0)
	code, payload, err := inv.Invoke(context.Background(), ToolRequest{Name: "x", Mode: "test"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if code != 200 || payload["status"] != "ok" {
		t.Errorf("code=%d payload=%v", code, payload)
	}
}

func TestDiffFiles_GitExtendedHeaders(t *testing.T) {
	diff := "diff --git a/Makefile b/Makefile\n" +
		"old mode 100644\n" +
		"new mode 100755\n" +
		"diff --git a/rootfile b/rootfile\n" +
		"new file mode 100644\n" +
		"index 0000000..e69de29\n" +
		"diff --git a/data/x b/data/x\n" +
		"similarity index 100%\n" +
		"rename from data/x\n" +
		"rename to src/y\n" +
		"diff --git \"a/data/sp ace\" \"b/data/sp ace\"\n" +
		"copy from config/a\n" +
		"copy to docs/b\n"
	got := DiffFiles(diff)
	want := []string{"Makefile", "rootfile", "data/x", "src/y", "data/sp ace", "config/a", "docs/b"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("DiffFiles = %q, want %q", got, want)
	}
}

func TestPatch_RejectsHunklessSectionsOutsideSafeDirs(t *testing.T) {
	root := newWorkspace(t)
	os.WriteFile(filepath.Join(root, "config", "a.txt"), []byte("a\n"), 0644)
	makefile := filepath.Join(root, "Makefile")
	os.WriteFile(makefile, []byte("all:\n"), 0644)

	diff := "diff --git a/config/a.txt b/config/a.txt\n" +
		"--- a/config/a.txt\n" +
		"+++ b/config/a.txt\n" +
		"@@ -1 +1 @@\n" +
		"-a\n" +
		"+b\n" +
		"diff --git a/Makefile b/Makefile\n" +
		"old mode 100644\n" +
		"new mode 100755\n" +
		"diff --git a/rootfile b/rootfile\n" +
		"new file mode 100644\n" +
		"index 0000000..e69de29\n"

	res := dispatch(t, NewExecContext(root, true, false), "patch", Args{"diff": diff})
	if res.OK() || !res.Denied() {
		t.Fatalf("result = %v", res)
	}
	if info, _ := os.Stat(makefile); info.Mode().Perm()&0o111 != 0 {
		t.Error("Makefile mode changed")
	}
	if _, err := os.Stat(filepath.Join(root, "rootfile")); err == nil {
		t.Error("rootfile was created")
	}
	data, _ := os.ReadFile(filepath.Join(root, "config", "a.txt"))
	if string(data) != "a\n" {
		t.Error("config/a.txt changed although the patch was denied")
	}
}

func TestShell_DryRunPathQualifiedScript(t *testing.T) {
	root := newWorkspace(t)
	os.MkdirAll(filepath.Join(root, "scripts"), 0755)
	script := "#!/bin/sh\ntouch \"$(dirname \"$0\")/../data/mutated.txt\"\n"
	os.WriteFile(filepath.Join(root, "scripts", "deploy.sh"), []byte(script), 0755)
	os.WriteFile(filepath.Join(root, "scripts", "cat"), []byte(script), 0755)

	for _, cmd := range []string{"scripts/deploy.sh --version", "scripts/cat data/x", "./scripts/cat"} {
		res := dispatch(t, NewExecContext(root, false, false), "shell", Args{"cmd": cmd})
		if res.OK() || res["code"] != 2 {
			t.Errorf("%s: result = %v", cmd, res)
		}
	}
	if _, err := os.Stat(filepath.Join(root, "data", "mutated.txt")); err == nil {
		t.Error("dry-run executed a workspace script")
	}
}

func TestShell_DryRunGitGlobalOptions(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
	root := newWorkspace(t)

	for _, cmd := range []string{
		"git -c alias.x=!touch data/pwned x",
		"git -C . commit -m x",
		"git --git-dir .git init",
	} {
		res := dispatch(t, NewExecContext(root, false, false), "shell", Args{"cmd": cmd})
		if res.OK() || res["code"] != 2 {
			t.Errorf("%s: result = %v", cmd, res)
		}
	}
	if _, err := os.Stat(filepath.Join(root, "data", "pwned")); err == nil {
		t.Error("dry-run git ran an alias command")
	}
	if _, err := os.Stat(filepath.Join(root, ".git")); err == nil {
		t.Error("dry-run git created a repository")
	}
}

func TestFsRead_RejectsAbsolutePath(t *testing.T) {
	root := newWorkspace(t)
	target := filepath.Join(root, "data", "f.txt")
	os.WriteFile(target, []byte("x"), 0644)

	res := dispatch(t, NewExecContext(root, false, false), "fs_read", Args{"path": target})
	if res.OK() || !res.Denied() || !strings.Contains(res.ErrorText(), "absolute") {
		t.Errorf("fs_read(%s) = %v, want absolute-path denial", target, res)
	}
	res = dispatch(t, NewExecContext(root, false, false), "fs_read", Args{"path": "data/f.txt"})
	if !res.OK() {
		t.Errorf("relative read = %v", res)
	}
}
