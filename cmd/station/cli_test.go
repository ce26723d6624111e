package main

import (
	"testing"

	"github.com/alecthomas/kong"
)

func parse(t *testing.T, args ...string) (*CLI, string) {
	t.Helper()
	var cli CLI
	parser, err := kong.New(&cli, kong.Vars(kongVars()))
	if err != nil {
		t.Fatal(err)
	}
	ctx, err := parser.Parse(args)
	if err != nil {
		t.Fatal(err)
	}
	return &cli, ctx.Command()
}

func TestAgentCmd_Flags(t *testing.T) {
	cli, cmd := parse(t, "agent", "--task", "tidy data", "--apply", "--allow-destructive",
		"--max-steps", "4", "--model", "qwen2", "--backend-url", "http://gpu:11434", "--save-state", "--session")
	if cmd != "agent" {
		t.Fatalf("command = %q", cmd)
	}
	a := cli.Agent
	if a.Task != "tidy data" || !a.Apply || !a.AllowDestructive || a.MaxSteps != 4 {
		t.Errorf("agent = %+v", a)
	}
	if a.Model != "qwen2" || a.BackendURL != "http://gpu:11434" || !a.SaveState || !a.Session {
		t.Errorf("agent = %+v", a)
	}
}

func TestAgentCmd_DefaultsToDryRun(t *testing.T) {
	cli, _ := parse(t, "agent", "--task", "x")
	if cli.Agent.Apply || cli.Agent.AllowDestructive || cli.Agent.SaveState {
		t.Errorf("flags should default off: %+v", cli.Agent)
	}
}

func TestAgentCmd_RequiresTask(t *testing.T) {
	var cli CLI
	parser, _ := kong.New(&cli, kong.Vars(kongVars()))
	if _, err := parser.Parse([]string{"agent"}); err == nil {
		t.Error("expected an error without --task")
	}
}

func TestPipelineCmds(t *testing.T) {
	cli, cmd := parse(t, "pipeline", "run", "review", "--task", "t", "--apply")
	if cmd != "pipeline run <name>" || cli.Pipeline.Run.Name != "review" || !cli.Pipeline.Run.Apply {
		t.Errorf("run: %q %+v", cmd, cli.Pipeline.Run)
	}
	if _, cmd := parse(t, "pipeline", "list"); cmd != "pipeline list" {
		t.Errorf("list: %q", cmd)
	}
	cli, cmd = parse(t, "pipeline", "validate", "docs")
	if cmd != "pipeline validate <name>" || cli.Pipeline.Validate.Name != "docs" {
		t.Errorf("validate: %q %+v", cmd, cli.Pipeline.Validate)
	}
}

func TestHistoryCmd(t *testing.T) {
	cli, _ := parse(t, "history")
	if cli.History.Limit != 20 || cli.History.JSON {
		t.Errorf("defaults = %+v", cli.History)
	}
	cli, _ = parse(t, "history", "-n", "5", "--json", "--live", "abc")
	if cli.History.Limit != 5 || !cli.History.JSON || cli.History.Live != "abc" {
		t.Errorf("history = %+v", cli.History)
	}
}

func TestGlobalFlags(t *testing.T) {
	cli, _ := parse(t, "--log-level", "debug", "tools")
	if cli.LogLevel != "debug" {
		t.Errorf("log level = %q", cli.LogLevel)
	}
}

func TestGlobalFlags_RootFromEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("STATION_ROOT", dir)
	cli, _ := parse(t, "tools")
	if cli.Root != dir {
		t.Errorf("root = %q, want %q", cli.Root, dir)
	}

	other := t.TempDir()
	cli, _ = parse(t, "--root", other, "tools")
	if cli.Root != other {
		t.Errorf("--root should win over STATION_ROOT: %q", cli.Root)
	}
}

func TestInitCmd_Args(t *testing.T) {
	dir := t.TempDir()
	cli, cmd := parse(t, "init", dir, "--model", "phi3", "--force")
	if cmd != "init <dir>" {
		t.Fatalf("command = %q", cmd)
	}
	if cli.Init.Dir != dir || cli.Init.Model != "phi3" || !cli.Init.Force {
		t.Errorf("init = %+v", cli.Init)
	}
}
