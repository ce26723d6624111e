package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vinayprograms/station/internal/session"
	"github.com/vinayprograms/station/internal/setup"
	"github.com/vinayprograms/station/internal/tools"
)

func writePipeline(t *testing.T, dir, name, body string) {
	t.Helper()
	os.MkdirAll(dir, 0755)
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestWritePipelineList(t *testing.T) {
	dir := t.TempDir()
	writePipeline(t, dir, "review.yaml", "description: review flow\nphases:\n  - role: supervisor\n  - role: implementer\n    tool_loop: true\n")
	writePipeline(t, dir, "broken.yaml", "phases: []\n")

	var buf bytes.Buffer
	if code := writePipelineList(&buf, dir); code != exitOK {
		t.Fatalf("code = %d", code)
	}
	out := buf.String()
	if !strings.Contains(out, "review") || !strings.Contains(out, "[supervisor implementer]") {
		t.Errorf("list:\n%s", out)
	}
	if !strings.Contains(out, "broken") || !strings.Contains(out, "invalid") {
		t.Errorf("invalid pipelines should be flagged:\n%s", out)
	}
}

func TestWriteValidation(t *testing.T) {
	dir := t.TempDir()
	writePipeline(t, dir, "ok.yaml", "phases:\n  - role: auditor\n    tool_loop: true\n    apply: true\n  - role: docs\n")
	writePipeline(t, dir, "bad.yaml", "phases:\n  - role: supervisor\n    tool_loop: true\n")

	var buf bytes.Buffer
	if code := writeValidation(&buf, dir, "ok"); code != exitOK {
		t.Fatalf("code = %d: %s", code, buf.String())
	}
	if !strings.Contains(buf.String(), "auditor      tool_loop=true  apply(dry-run)=false apply(--apply)=false") {
		t.Errorf("auditor must never apply:\n%s", buf.String())
	}
	if !strings.Contains(buf.String(), "apply(--apply)=true") {
		t.Errorf("docs should apply with --apply:\n%s", buf.String())
	}

	buf.Reset()
	if code := writeValidation(&buf, dir, "bad"); code != exitFailure {
		t.Errorf("code = %d", code)
	}
	if !strings.Contains(buf.String(), "supervisor cannot run a tool loop") {
		t.Errorf("output:\n%s", buf.String())
	}
}

func TestWriteTools(t *testing.T) {
	reg := tools.NewDefault(tools.Options{})
	var buf bytes.Buffer
	writeTools(&buf, reg, false)
	for _, name := range []string{"fs_read", "fs_write", "fs_list", "grep", "shell", "patch", "http_get", "ai_tool_run"} {
		if !strings.Contains(buf.String(), "- "+name+"(") {
			t.Errorf("catalog missing %s", name)
		}
	}

	buf.Reset()
	writeTools(&buf, reg, true)
	var defs []tools.Definition
	if err := json.Unmarshal(buf.Bytes(), &defs); err != nil {
		t.Fatal(err)
	}
	if len(defs) != 8 {
		t.Errorf("definitions = %d", len(defs))
	}
}

func TestSessionPath(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "explicit.jsonl")
	os.WriteFile(file, []byte("{}\n"), 0644)
	if got := sessionPath(dir, file); got != file {
		t.Errorf("existing file: %s", got)
	}
	if got := sessionPath(dir, "abc"); got != filepath.Join(dir, "abc.jsonl") {
		t.Errorf("id: %s", got)
	}
}

func TestWriteInit(t *testing.T) {
	var buf bytes.Buffer
	writeInit(&buf, "/w", &setup.Result{Created: []string{"bin/station"}, Skipped: []string{"config/station.toml"}})
	out := buf.String()
	for _, want := range []string{"created bin/station", "kept    config/station.toml", "workspace ready at /w"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestShowSession_Plain(t *testing.T) {
	store, err := session.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	log, err := store.Start("agent", "count files", false)
	if err != nil {
		t.Fatal(err)
	}
	log.Record(session.Event{Type: session.EventToolCall, Step: 1, Tool: "fs_list"})
	if err := log.Finish(session.StatusFinal, "3 files", ""); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if code := showSession(&buf, log.Path(), true); code != exitOK {
		t.Fatalf("exit = %d", code)
	}
	out := buf.String()
	for _, want := range []string{"count files", "fs_list", "FINAL"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	if code := showSession(&buf, filepath.Join(t.TempDir(), "missing.jsonl"), true); code != exitFailure {
		t.Errorf("missing session exit = %d", code)
	}
}
