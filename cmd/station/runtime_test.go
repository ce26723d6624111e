package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vinayprograms/station/internal/config"
	"github.com/vinayprograms/station/internal/llm"
	"github.com/vinayprograms/station/internal/pipeline"
	"github.com/vinayprograms/station/internal/session"
	"github.com/vinayprograms/station/internal/state"
	"github.com/vinayprograms/station/internal/workspace"
)

// newWorkspace creates a root with the marker executable and a data dir.
func newWorkspace(t *testing.T) string {
	t.Helper()
	root, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	marker := filepath.Join(root, workspace.Marker)
	os.MkdirAll(filepath.Dir(marker), 0755)
	if err := os.WriteFile(marker, []byte("#!/bin/sh\n"), 0755); err != nil {
		t.Fatal(err)
	}
	os.MkdirAll(filepath.Join(root, "data"), 0755)
	return root
}

type testRuntime struct {
	*runtime
	provider *llm.MockProvider
	stdout   *bytes.Buffer
	stderr   *bytes.Buffer
}

func newTestRuntime(t *testing.T, root string, opts runOptions) *testRuntime {
	t.Helper()
	cfg := config.New()
	cfg.Logging.Level = "error"
	rt := newRuntime(&env{root: root, cfg: cfg}, opts)
	tr := &testRuntime{runtime: rt, provider: llm.NewMockProvider(), stdout: &bytes.Buffer{}, stderr: &bytes.Buffer{}}
	rt.provider = tr.provider
	rt.out = tr.stdout
	rt.errOut = tr.stderr
	if err := rt.setup(); err != nil {
		t.Fatalf("setup: %v", err)
	}
	t.Cleanup(rt.cleanup)
	return tr
}

const writeCall = `{"tool": "fs_write", "args": {"path": "data/out.txt", "content": "hi"}}`
const finalReply = "{\"final\": \"wrote data/out.txt\\nVerification:\\n- `cat data/out.txt`\"}"

func TestRunAgent_DryRun(t *testing.T) {
	root := newWorkspace(t)
	tr := newTestRuntime(t, root, runOptions{name: "agent", task: "write a file"})
	tr.provider.QueueResponses(writeCall, finalReply)

	if code := tr.runAgent(context.Background()); code != 0 {
		t.Fatalf("exit = %d\n%s", code, tr.stderr.String())
	}
	if _, err := os.Stat(filepath.Join(root, "data", "out.txt")); !os.IsNotExist(err) {
		t.Error("dry-run must not write")
	}
	if _, err := os.Stat(filepath.Join(root, "data", "station_state.json")); !os.IsNotExist(err) {
		t.Error("dry-run must not persist state")
	}
	out := tr.stdout.String()
	for _, want := range []string{"status: final", "data/out.txt", "$ cat data/out.txt", "dry-run"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRunAgent_ApplyPersists(t *testing.T) {
	root := newWorkspace(t)
	tr := newTestRuntime(t, root, runOptions{name: "agent", task: "write a file", apply: true, session: true})
	tr.provider.QueueResponses(writeCall, finalReply)

	if code := tr.runAgent(context.Background()); code != 0 {
		t.Fatalf("exit = %d\n%s", code, tr.stderr.String())
	}
	data, err := os.ReadFile(filepath.Join(root, "data", "out.txt"))
	if err != nil || string(data) != "hi" {
		t.Fatalf("file = %q, %v", data, err)
	}

	f := state.NewStore(filepath.Join(root, "data", "station_state.json"), 0).Load()
	if len(f.History) != 1 || f.LastRun == nil {
		t.Fatalf("state = %+v", f)
	}
	rec := f.History[0]
	if !rec.Apply || rec.Status != "final" || rec.Task != "write a file" || rec.Model != config.New().LLM.Model {
		t.Errorf("record = %+v", rec)
	}
	if len(rec.VerificationCommands) != 1 || rec.VerificationCommands[0] != "cat data/out.txt" {
		t.Errorf("verification = %v", rec.VerificationCommands)
	}

	sess, err := session.LoadFile(tr.sessLog.Path())
	if err != nil {
		t.Fatal(err)
	}
	if sess.Status != session.StatusFinal || len(sess.Events) == 0 {
		t.Errorf("session status=%s events=%d", sess.Status, len(sess.Events))
	}
}

func TestRunAgent_SaveStateInDryRun(t *testing.T) {
	root := newWorkspace(t)
	tr := newTestRuntime(t, root, runOptions{name: "agent", task: "look", saveState: true})
	tr.provider.SetResponse(`{"final": "nothing to do"}`)

	tr.runAgent(context.Background())
	f := state.NewStore(filepath.Join(root, "data", "station_state.json"), 0).Load()
	if len(f.History) != 1 || f.History[0].Apply {
		t.Errorf("state = %+v", f.History)
	}
}

func TestRunAgent_Exhausted(t *testing.T) {
	root := newWorkspace(t)
	tr := newTestRuntime(t, root, runOptions{name: "agent", task: "loop", maxSteps: 2})
	tr.provider.SetResponse(`{"tool": "fs_list", "args": {"path": "data"}}`)

	if code := tr.runAgent(context.Background()); code != 2 {
		t.Errorf("exit = %d, want 2", code)
	}
	if !strings.Contains(tr.stdout.String(), "status: exhausted") {
		t.Errorf("output:\n%s", tr.stdout.String())
	}
}

func TestRunPipeline_RecordsAggregate(t *testing.T) {
	root := newWorkspace(t)
	tr := newTestRuntime(t, root, runOptions{name: "pipeline:review", task: "add file", saveState: true})
	tr.provider.QueueResponses("1. write data/out.txt", writeCall, finalReply)

	yes := true
	def := &pipeline.Definition{Name: "review", Phases: []pipeline.Phase{
		{Role: pipeline.RoleSupervisor},
		{Role: pipeline.RoleImplementer, ToolLoop: true, Apply: &yes},
	}}
	if code := tr.runPipeline(context.Background(), def); code != 0 {
		t.Fatalf("exit = %d\n%s", code, tr.stderr.String())
	}
	if _, err := os.Stat(filepath.Join(root, "data", "out.txt")); err != nil {
		t.Error("implementer with forced apply should write")
	}
	out := tr.stdout.String()
	if !strings.Contains(out, "## supervisor\n1. write data/out.txt") || !strings.Contains(out, "## implementer\nwrote data/out.txt") {
		t.Errorf("transcript:\n%s", out)
	}

	f := state.NewStore(filepath.Join(root, "data", "station_state.json"), 0).Load()
	if len(f.History) != 1 || f.History[0].Pipeline != "review" || f.History[0].Apply {
		t.Errorf("record = %+v", f.History)
	}
}
