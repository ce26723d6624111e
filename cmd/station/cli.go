// Package main defines the CLI structure using kong.
package main

import "github.com/alecthomas/kong"

// CLI defines the command-line interface.
type CLI struct {
	Root     string `help:"Workspace root (default: search upward for bin/station)" type:"path" env:"STATION_ROOT"`
	LogLevel string `help:"Log level: debug, info, warn, error (overrides config)" placeholder:"LEVEL"`

	Init     InitCmd     `cmd:"" help:"Create a workspace: marker, safe dirs, config and a sample pipeline"`
	Agent    AgentCmd    `cmd:"" help:"Run one agent task"`
	Pipeline PipelineCmd `cmd:"" help:"Run, list and validate pipelines"`
	History  HistoryCmd  `cmd:"" help:"Show recent runs or follow a session"`
	Tools    ToolsCmd    `cmd:"" help:"List the agent tools"`
	Version  VersionCmd  `cmd:"" help:"Show version information"`
}

// RunFlags are shared by every command that starts a run.
type RunFlags struct {
	Apply            bool `help:"Let writes, patches and mutating commands take effect"`
	AllowDestructive bool `help:"Permit risky commands (rm, mv, chmod, ...)"`
	SaveState        bool `help:"Record the run in the state file even in dry-run mode"`
	Session          bool `help:"Write a JSONL session log under the sessions directory"`
}

// InitCmd scaffolds a workspace.
type InitCmd struct {
	Dir        string `arg:"" optional:"" default:"." type:"path" help:"Directory to initialize"`
	Model      string `help:"Model written to the config"`
	BackendURL string `help:"Chat backend base URL written to the config" name:"backend-url"`
	Force      bool   `help:"Overwrite existing files"`
}

// AgentCmd runs a single conversation loop.
type AgentCmd struct {
	Task       string `required:"" help:"Task for the agent"`
	MaxSteps   int    `help:"Step budget (default from config)"`
	Model      string `help:"Model name or profile (default from config)"`
	BackendURL string `help:"Chat backend base URL (default from config)" name:"backend-url"`

	RunFlags `embed:""`
}

// PipelineCmd groups the pipeline subcommands.
type PipelineCmd struct {
	Run      PipelineRunCmd      `cmd:"" help:"Run a pipeline"`
	List     PipelineListCmd     `cmd:"" help:"List declared pipelines"`
	Validate PipelineValidateCmd `cmd:"" help:"Validate a pipeline declaration"`
}

// PipelineRunCmd runs a declared pipeline.
type PipelineRunCmd struct {
	Name       string `arg:"" help:"Pipeline name"`
	Task       string `required:"" help:"Task passed to every phase"`
	BackendURL string `help:"Chat backend base URL (default from config)" name:"backend-url"`

	RunFlags `embed:""`
}

// PipelineListCmd lists pipelines.
type PipelineListCmd struct{}

// PipelineValidateCmd validates one pipeline.
type PipelineValidateCmd struct {
	Name string `arg:"" help:"Pipeline name"`
}

// HistoryCmd shows the run history.
type HistoryCmd struct {
	Limit   int    `short:"n" default:"20" help:"Number of runs to show"`
	JSON    bool   `name:"json" help:"Print JSON instead of a table"`
	Archive bool   `help:"Read from the SQLite archive instead of the state file"`
	Live    string `help:"Follow a session log (id or path) in a pager" placeholder:"SESSION"`
	Session string `help:"Show a recorded session (id or path)" placeholder:"SESSION"`
	Plain   bool   `help:"With --session, print to stdout instead of a pager"`
}

// ToolsCmd lists the tool registry.
type ToolsCmd struct {
	JSON bool `name:"json" help:"Print JSON definitions"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

// kongVars returns variables for kong (version info).
func kongVars() kong.Vars {
	return kong.Vars{
		"version": version,
	}
}
