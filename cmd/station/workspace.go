package main

import (
	"fmt"
	"os"

	"github.com/vinayprograms/station/internal/config"
	"github.com/vinayprograms/station/internal/workspace"
)

// Process exit codes.
const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

// env handles the configuration phase shared by every command.
type env struct {
	// Parsed from CLI
	rootFlag string
	logLevel string

	// Loaded artifacts
	root string
	cfg  *config.Config
}

func newEnv(cli *CLI) *env {
	return &env{rootFlag: cli.Root, logLevel: cli.LogLevel}
}

// load resolves the workspace root and reads its configuration.
func (e *env) load() error {
	if err := e.loadRoot(); err != nil {
		return fmt.Errorf("locating workspace: %w", err)
	}
	if err := e.loadConfig(); err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	return nil
}

func (e *env) loadRoot() error {
	var err error
	if e.rootFlag != "" {
		e.root, err = workspace.Open(e.rootFlag)
		return err
	}
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get current directory: %w", err)
	}
	e.root, err = workspace.FindRoot(cwd)
	return err
}

func (e *env) loadConfig() error {
	var err error
	e.cfg, err = config.Load(e.root)
	if err != nil {
		return err
	}
	if e.logLevel != "" {
		e.cfg.Logging.Level = e.logLevel
	}
	return nil
}

func (e *env) path(p string) string {
	return config.ResolvePath(e.root, p)
}

// loadEnv is the common prologue of every command; it reports failures on
// stderr.
func loadEnv(cli *CLI) (*env, bool) {
	e := newEnv(cli)
	if err := e.load(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return nil, false
	}
	return e, true
}
