package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/vinayprograms/station/internal/config"
	"github.com/vinayprograms/station/internal/history"
	"github.com/vinayprograms/station/internal/pipeline"
	"github.com/vinayprograms/station/internal/session"
	"github.com/vinayprograms/station/internal/setup"
	"github.com/vinayprograms/station/internal/state"
	"github.com/vinayprograms/station/internal/tools"
)

func initWorkspace(cli *CLI) int {
	c := cli.Init
	res, err := setup.Init(c.Dir, setup.Options{Model: c.Model, BaseURL: c.BackendURL, Force: c.Force})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitFailure
	}
	writeInit(os.Stdout, c.Dir, res)
	return exitOK
}

func writeInit(w io.Writer, dir string, res *setup.Result) {
	for _, f := range res.Created {
		fmt.Fprintf(w, "created %s\n", f)
	}
	for _, f := range res.Skipped {
		fmt.Fprintf(w, "kept    %s (exists, use --force to overwrite)\n", f)
	}
	fmt.Fprintf(w, "workspace ready at %s\n", dir)
}

func runAgent(ctx context.Context, cli *CLI) int {
	e, ok := loadEnv(cli)
	if !ok {
		return exitFailure
	}
	c := cli.Agent
	rt := newRuntime(e, runOptions{
		name:             "agent",
		task:             c.Task,
		apply:            c.Apply,
		allowDestructive: c.AllowDestructive,
		saveState:        c.SaveState,
		session:          c.Session,
		maxSteps:         c.MaxSteps,
		model:            c.Model,
		backendURL:       c.BackendURL,
	})
	defer rt.cleanup()
	if err := rt.setup(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitFailure
	}
	return rt.runAgent(ctx)
}

func runPipeline(ctx context.Context, cli *CLI) int {
	e, ok := loadEnv(cli)
	if !ok {
		return exitFailure
	}
	c := cli.Pipeline.Run
	def, err := pipeline.Load(e.path(config.PipelinesDir), c.Name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		if errors.Is(err, pipeline.ErrNotFound) {
			return exitUsage
		}
		return exitFailure
	}
	rt := newRuntime(e, runOptions{
		name:             "pipeline:" + def.Name,
		task:             c.Task,
		apply:            c.Apply,
		allowDestructive: c.AllowDestructive,
		saveState:        c.SaveState,
		session:          c.Session,
		backendURL:       c.BackendURL,
	})
	defer rt.cleanup()
	if err := rt.setup(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitFailure
	}
	return rt.runPipeline(ctx, def)
}

func listPipelines(cli *CLI) int {
	e, ok := loadEnv(cli)
	if !ok {
		return exitFailure
	}
	return writePipelineList(os.Stdout, e.path(config.PipelinesDir))
}

func writePipelineList(w io.Writer, dir string) int {
	names, err := pipeline.List(dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitFailure
	}
	if len(names) == 0 {
		fmt.Fprintf(w, "no pipelines in %s\n", dir)
		return exitOK
	}
	for _, name := range names {
		def, err := pipeline.Load(dir, name)
		if err != nil {
			fmt.Fprintf(w, "%-20s (invalid: %v)\n", name, err)
			continue
		}
		roles := make([]string, 0, len(def.Phases))
		for _, p := range def.Phases {
			roles = append(roles, p.Role)
		}
		fmt.Fprintf(w, "%-20s %d phases %v  %s\n", name, len(def.Phases), roles, def.Description)
	}
	return exitOK
}

func validatePipeline(cli *CLI) int {
	e, ok := loadEnv(cli)
	if !ok {
		return exitFailure
	}
	return writeValidation(os.Stdout, e.path(config.PipelinesDir), cli.Pipeline.Validate.Name)
}

func writeValidation(w io.Writer, dir, name string) int {
	def, err := pipeline.Load(dir, name)
	if err != nil {
		fmt.Fprintf(w, "✗ %s: %v\n", name, err)
		return exitFailure
	}
	fmt.Fprintf(w, "✓ %s is valid (%d phases)\n", def.Name, len(def.Phases))
	for i, p := range def.Phases {
		fmt.Fprintf(w, "  %d. %-12s tool_loop=%-5t apply(dry-run)=%-5t apply(--apply)=%t\n",
			i+1, p.Role, p.ToolLoop, pipeline.EffectiveApply(false, p), pipeline.EffectiveApply(true, p))
	}
	return exitOK
}

func showHistory(cli *CLI) int {
	e, ok := loadEnv(cli)
	if !ok {
		return exitFailure
	}
	c := cli.History
	if c.Live != "" {
		path := sessionPath(e.path(e.cfg.Storage.SessionsDir), c.Live)
		if err := history.Follow(path); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return exitFailure
		}
		return exitOK
	}
	if c.Session != "" {
		return showSession(os.Stdout, sessionPath(e.path(e.cfg.Storage.SessionsDir), c.Session), c.Plain)
	}

	var records []state.RunRecord
	if c.Archive {
		if e.cfg.Storage.Archive == "" {
			fmt.Fprintln(os.Stderr, "error: storage.archive is not configured")
			return exitUsage
		}
		archive, err := state.OpenSQLiteArchive(e.path(e.cfg.Storage.Archive))
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return exitFailure
		}
		defer archive.Close()
		if records, err = archive.Recent(c.Limit); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return exitFailure
		}
	} else {
		store := state.NewStore(e.path(e.cfg.Storage.StatePath), e.cfg.Storage.HistoryLimit)
		records = history.Recent(store.Load().History, c.Limit)
	}

	var err error
	if c.JSON {
		err = history.WriteJSON(os.Stdout, records)
	} else {
		err = history.WriteTable(os.Stdout, records)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitFailure
	}
	return exitOK
}

func showSession(w io.Writer, path string, plain bool) int {
	sess, err := session.LoadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitFailure
	}
	if plain {
		history.RenderSession(w, sess)
		return exitOK
	}
	var b strings.Builder
	history.RenderSession(&b, sess)
	if err := history.Show(sess.Name+" "+sess.ID, b.String()); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitFailure
	}
	return exitOK
}

func listTools(cli *CLI) int {
	return writeTools(os.Stdout, tools.NewDefault(tools.Options{}), cli.Tools.JSON)
}

func writeTools(w io.Writer, reg *tools.Registry, asJSON bool) int {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(reg.Definitions()); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return exitFailure
		}
		return exitOK
	}
	fmt.Fprint(w, reg.Catalog())
	return exitOK
}

// sessionPath resolves a session argument: an existing file or an id in dir.
func sessionPath(dir, arg string) string {
	if info, err := os.Stat(arg); err == nil && !info.IsDir() {
		return arg
	}
	return session.PathIn(dir, arg)
}
