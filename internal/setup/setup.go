// Package setup scaffolds a new station workspace.
package setup

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/vinayprograms/station/internal/config"
	"github.com/vinayprograms/station/internal/workspace"
)

// Options selects what goes into the generated configuration.
type Options struct {
	Model   string
	BaseURL string
	// Force overwrites files that already exist.
	Force bool
}

// Result lists what Init did, relative to the workspace.
type Result struct {
	Created []string
	Skipped []string
}

// markerScript makes bin/station forward to the installed binary, pinned to
// this workspace.
const markerScript = `#!/bin/sh
# Workspace marker for station. Runs the installed binary against this workspace.
here="$(cd "$(dirname "$0")/.." && pwd)"
exec station --root "$here" "$@"
`

const reviewPipeline = `name: review
description: Plan a change, make it, then audit it.
phases:
  - role: supervisor
    prompt: |
      Break the task into a short numbered plan. Name the files involved.
  - role: implementer
    tool_loop: true
    max_steps: 12
  - role: auditor
    tool_loop: true
    prompt: |
      Check the implementer's changes against the plan. Read files, do not change them.
`

// Init creates the safe directories, the marker executable, a commented
// config/station.toml and a sample pipeline under dir.
func Init(dir string, opts Options) (*Result, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", dir, err)
	}
	res := &Result{}

	for _, d := range append(append([]string{}, workspace.SafeDirs...), config.PipelinesDir) {
		if err := os.MkdirAll(filepath.Join(root, d), 0755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", d, err)
		}
	}

	files := []struct {
		rel  string
		body string
		mode os.FileMode
	}{
		{workspace.Marker, markerScript, 0755},
		{config.FilePath, generateStationTOML(opts), 0644},
		{filepath.Join(config.PipelinesDir, "review.yaml"), reviewPipeline, 0644},
	}
	for _, f := range files {
		path := filepath.Join(root, f.rel)
		if _, err := os.Stat(path); err == nil && !opts.Force {
			res.Skipped = append(res.Skipped, f.rel)
			continue
		}
		if err := os.WriteFile(path, []byte(f.body), f.mode); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", f.rel, err)
		}
		// WriteFile keeps the mode of an existing file.
		if err := os.Chmod(path, f.mode); err != nil {
			return nil, fmt.Errorf("failed to chmod %s: %w", f.rel, err)
		}
		res.Created = append(res.Created, f.rel)
	}
	return res, nil
}

func generateStationTOML(opts Options) string {
	def := config.New()
	model := opts.Model
	if model == "" {
		model = def.LLM.Model
	}
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = def.LLM.BaseURL
	}

	var sb strings.Builder
	sb.WriteString("# Station Configuration\n")
	sb.WriteString("# Generated by: station init\n\n")

	sb.WriteString("# Chat backend (Ollama)\n")
	sb.WriteString("[llm]\n")
	sb.WriteString(fmt.Sprintf("model = %q\n", model))
	sb.WriteString(fmt.Sprintf("base_url = %q\n", baseURL))
	sb.WriteString(fmt.Sprintf("temperature = %g\n", def.LLM.Temperature))
	sb.WriteString(fmt.Sprintf("timeout = %q\n", def.LLM.Timeout.String()))
	sb.WriteString("max_retries = 0\n\n")

	sb.WriteString("# Named models for pipeline phases (phase `model = \"fast\"`)\n")
	sb.WriteString("# [profiles.fast]\n")
	sb.WriteString("# model = \"phi3\"\n")
	sb.WriteString("# temperature = 0.0\n\n")

	sb.WriteString("[agent]\n")
	sb.WriteString(fmt.Sprintf("max_steps = %d\n", def.Agent.MaxSteps))
	sb.WriteString(fmt.Sprintf("shell_timeout = %q\n", def.Agent.ShellTimeout.String()))
	sb.WriteString(fmt.Sprintf("http_timeout = %q\n\n", def.Agent.HTTPTimeout.String()))

	sb.WriteString("[storage]\n")
	sb.WriteString(fmt.Sprintf("state_path = %q\n", def.Storage.StatePath))
	sb.WriteString(fmt.Sprintf("history_limit = %d\n", def.Storage.HistoryLimit))
	sb.WriteString("# archive = \"data/runs.db\"\n")
	sb.WriteString(fmt.Sprintf("sessions_dir = %q\n\n", def.Storage.SessionsDir))

	sb.WriteString("[tools]\n")
	sb.WriteString(fmt.Sprintf("dashboard_url = %q\n\n", def.Tools.DashboardURL))

	sb.WriteString("[logging]\n")
	sb.WriteString(fmt.Sprintf("level = %q\n", def.Logging.Level))
	sb.WriteString("# file = \"logs/station.jsonl\"\n")
	sb.WriteString(fmt.Sprintf("format = %q\n\n", def.Logging.Format))

	sb.WriteString("# Run lifecycle events\n")
	sb.WriteString("[events]\n")
	sb.WriteString("# nats_url = \"nats://127.0.0.1:4222\"\n")
	sb.WriteString(fmt.Sprintf("subject = %q\n", def.Events.Subject))

	return sb.String()
}
