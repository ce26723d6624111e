// Package main is the entry point for the station CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
)

// Build-time variables (set via ldflags)
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("station"),
		kong.Description("Local workspace agent: model-driven, sandboxed file and shell automation."),
		kong.UsageOnError(),
		kong.Vars(kongVars()),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := dispatch(ctx, kctx.Command(), &cli)
	stop()
	os.Exit(code)
}

// dispatch runs the selected command and returns the process exit code.
func dispatch(ctx context.Context, command string, cli *CLI) int {
	switch command {
	case "version":
		fmt.Printf("station version %s (commit: %s, built: %s)\n", version, commit, buildTime)
		return 0
	case "init", "init <dir>":
		return initWorkspace(cli)
	case "agent":
		return runAgent(ctx, cli)
	case "pipeline run <name>":
		return runPipeline(ctx, cli)
	case "pipeline list":
		return listPipelines(cli)
	case "pipeline validate <name>":
		return validatePipeline(cli)
	case "history":
		return showHistory(cli)
	case "tools":
		return listTools(cli)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", command)
		return exitUsage
	}
}
