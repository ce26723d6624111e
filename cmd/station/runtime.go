// Package main provides runtime execution for agent and pipeline runs.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vinayprograms/station/internal/config"
	"github.com/vinayprograms/station/internal/events"
	"github.com/vinayprograms/station/internal/executor"
	"github.com/vinayprograms/station/internal/llm"
	"github.com/vinayprograms/station/internal/logging"
	"github.com/vinayprograms/station/internal/pipeline"
	"github.com/vinayprograms/station/internal/session"
	"github.com/vinayprograms/station/internal/state"
	"github.com/vinayprograms/station/internal/tools"
)

// runOptions are the per-invocation flags of a run.
type runOptions struct {
	name             string // "agent" or "pipeline:<name>"
	task             string
	apply            bool
	allowDestructive bool
	saveState        bool
	session          bool
	maxSteps         int
	model            string
	backendURL       string
}

// runtime handles the execution phase of a run.
type runtime struct {
	root string
	cfg  *config.Config
	opts runOptions

	out    io.Writer
	errOut io.Writer

	// Components
	logger   *logging.Logger
	provider llm.Provider
	registry *tools.Registry
	exec     *executor.Executor
	store    *state.Store
	events   *events.Logged
	sessions *session.FileStore
	sessLog  *session.Log
	runID    string

	// Cleanup
	closers []func()
}

// newRuntime creates a runtime from a loaded environment.
func newRuntime(e *env, opts runOptions) *runtime {
	if opts.model == "" {
		opts.model = e.cfg.LLM.Model
	} else {
		opts.model, _ = e.cfg.GetProfile(opts.model)
	}
	if opts.backendURL == "" {
		opts.backendURL = e.cfg.LLM.BaseURL
	}
	if opts.maxSteps <= 0 {
		opts.maxSteps = e.cfg.Agent.MaxSteps
	}
	return &runtime{
		root:   e.root,
		cfg:    e.cfg,
		opts:   opts,
		out:    os.Stdout,
		errOut: os.Stderr,
		runID:  uuid.NewString(),
	}
}

func (rt *runtime) path(p string) string {
	return config.ResolvePath(rt.root, p)
}

// setup initializes all runtime components. Returns error on failure.
func (rt *runtime) setup() error {
	if err := rt.setupLogging(); err != nil {
		return err
	}
	rt.createProvider()
	rt.setupRegistry()
	rt.createExecutor()
	rt.setupState()
	rt.setupEvents()
	if err := rt.setupSession(); err != nil {
		return err
	}
	rt.setupCallbacks()
	return nil
}

// setupLogging writes text (or JSON) to stderr and, when configured, JSON
// to a log file.
func (rt *runtime) setupLogging() error {
	level := logging.ParseLevel(rt.cfg.Logging.Level)
	var text io.Writer = rt.errOut
	var jsonOuts []io.Writer
	if rt.cfg.Logging.Format == "json" {
		text = nil
		jsonOuts = append(jsonOuts, rt.errOut)
	}
	if rt.cfg.Logging.File != "" {
		path := rt.path(rt.cfg.Logging.File)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return fmt.Errorf("creating log directory: %w", err)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
		rt.addCloser(func() { f.Close() })
		jsonOuts = append(jsonOuts, f)
	}
	var jsonOut io.Writer
	if len(jsonOuts) > 0 {
		jsonOut = io.MultiWriter(jsonOuts...)
	}
	rt.logger = logging.NewWithWriters(level, text, jsonOut)
	return nil
}

// createProvider creates the chat backend unless one was injected.
func (rt *runtime) createProvider() {
	if rt.provider != nil {
		return
	}
	rt.provider = llm.NewOllamaClient(rt.opts.backendURL, rt.cfg.LLM.Timeout.Duration, llm.RetryConfig{
		MaxRetries: rt.cfg.LLM.MaxRetries,
	})
}

func (rt *runtime) setupRegistry() {
	rt.registry = tools.NewDefault(tools.Options{
		ShellTimeout: rt.cfg.Agent.ShellTimeout.Duration,
		HTTPTimeout:  rt.cfg.Agent.HTTPTimeout.Duration,
		Invoker:      tools.NewHTTPInvoker(rt.cfg.Tools.DashboardURL, rt.cfg.Agent.HTTPTimeout.Duration),
	})
}

func (rt *runtime) createExecutor() {
	rt.exec = executor.NewExecutor(rt.provider, rt.registry, rt.root)
	rt.exec.SetLogger(rt.logger)
	rt.exec.SetModel(rt.opts.model, rt.cfg.LLM.Temperature)
	rt.exec.SetMaxSteps(rt.opts.maxSteps)
}

// setupState opens the history store and, when configured, the archive. A
// broken archive is a warning, not a failed run.
func (rt *runtime) setupState() {
	rt.store = state.NewStore(rt.path(rt.cfg.Storage.StatePath), rt.cfg.Storage.HistoryLimit)
	rt.store.SetLogger(rt.logger)
	rt.store.Load()

	if rt.cfg.Storage.Archive == "" {
		return
	}
	path := rt.path(rt.cfg.Storage.Archive)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		rt.logger.Warn("archive_unavailable", map[string]interface{}{"error": err.Error()})
		return
	}
	archive, err := state.OpenSQLiteArchive(path)
	if err != nil {
		rt.logger.Warn("archive_unavailable", map[string]interface{}{"error": err.Error()})
		return
	}
	rt.store.SetArchive(archive)
	rt.addCloser(func() { archive.Close() })
}

func (rt *runtime) setupEvents() {
	var pub events.Publisher = events.Nop{}
	if url := rt.cfg.Events.NATSURL; url != "" {
		nats, err := events.DialNATS(url, rt.cfg.Events.Subject)
		if err != nil {
			rt.logger.Warn("events_unavailable", map[string]interface{}{"error": err.Error()})
		} else {
			pub = nats
		}
	}
	rt.events = events.NewLogged(pub, rt.logger)
	rt.addCloser(func() { rt.events.Close() })
}

func (rt *runtime) setupSession() error {
	if !rt.opts.session {
		return nil
	}
	var err error
	rt.sessions, err = session.NewFileStore(rt.path(rt.cfg.Storage.SessionsDir))
	if err != nil {
		return err
	}
	rt.sessLog, err = rt.sessions.Start(rt.opts.name, rt.opts.task, rt.opts.apply)
	if err != nil {
		return fmt.Errorf("starting session: %w", err)
	}
	rt.runID = rt.sessLog.Session().ID
	rt.exec.SetSession(rt.sessLog)
	fmt.Fprintf(rt.errOut, "session: %s\n", rt.sessLog.Path())
	return nil
}

// setupCallbacks wires progress output.
func (rt *runtime) setupCallbacks() {
	rt.exec.OnToolCall = func(step int, call executor.ToolCall) {
		fmt.Fprintf(rt.errOut, "  → [step %d] %s\n", step, call.Tool)
	}
	rt.exec.OnToolResult = func(step int, call executor.ToolCall, res tools.Result, d time.Duration) {
		if !res.OK() {
			fmt.Fprintf(rt.errOut, "  ✗ %s: %s\n", call.Tool, res.ErrorText())
		}
	}
	rt.exec.OnLLMError = func(err error) {
		fmt.Fprintf(rt.errOut, "  ✗ backend error: %v\n", err)
	}
}

// runAgent executes one conversation loop and returns the exit code.
func (rt *runtime) runAgent(ctx context.Context) int {
	rt.printBanner()
	rt.emit(ctx, events.Event{Type: events.TypeRunStarted})

	res := rt.exec.Run(ctx, executor.RunInput{
		Task:             rt.opts.task,
		Apply:            rt.opts.apply,
		AllowDestructive: rt.opts.allowDestructive,
		MaxSteps:         rt.opts.maxSteps,
		Model:            rt.opts.model,
	})

	rt.printOutcome(res.Status, res.Summary(), res.Touched, res.VerificationCommands)
	rt.finish(ctx, state.RunMeta{
		Result:               resultText(res.Status, res.Text, res.Error),
		Status:               string(res.Status),
		Steps:                res.Steps,
		VerificationCommands: res.VerificationCommands,
		Touched:              res.Touched,
	}, res.Error)
	return res.Status.ExitCode()
}

// runPipeline executes def phase by phase and returns the exit code.
func (rt *runtime) runPipeline(ctx context.Context, def *pipeline.Definition) int {
	rt.printBanner()
	rt.emit(ctx, events.Event{Type: events.TypeRunStarted})

	for i := range def.Phases {
		if m := def.Phases[i].Model; m != "" {
			def.Phases[i].Model, _ = rt.cfg.GetProfile(m)
		}
	}

	runner := pipeline.NewRunner(rt.exec)
	runner.SetLogger(rt.logger)
	runner.SetSession(rt.sessLog)
	runner.OnPhaseStart = func(index int, p pipeline.Phase, apply bool) {
		mode := "dry-run"
		if apply {
			mode = "apply"
		}
		fmt.Fprintf(rt.errOut, "▶ phase %d/%d: %s (%s)\n", index, len(def.Phases), p.Role, mode)
	}
	runner.OnPhaseEnd = func(po pipeline.PhaseOutcome) {
		fmt.Fprintf(rt.errOut, "  %s %s\n", po.Role, po.Status)
		rt.emit(ctx, events.Event{
			Type:    events.TypePhaseFinished,
			Phase:   po.Role,
			Status:  string(po.Status),
			Steps:   po.Steps,
			Touched: po.Touched,
			Error:   po.Error,
		})
	}

	out := runner.Run(ctx, def, pipeline.RunInput{
		Task:             rt.opts.task,
		Apply:            rt.opts.apply,
		AllowDestructive: rt.opts.allowDestructive,
	})

	fmt.Fprintln(rt.out, out.Transcript)
	rt.printOutcome(out.Status, "", out.Touched, out.VerificationCommands)
	var errMsg string
	if out.HaltedAt > 0 {
		errMsg = fmt.Sprintf("halted at phase %d (%s): %s", out.HaltedAt, out.Phases[out.HaltedAt-1].Role, out.Phases[out.HaltedAt-1].Error)
		fmt.Fprintln(rt.errOut, errMsg)
	}
	rt.finish(ctx, state.RunMeta{
		Pipeline:             def.Name,
		Result:               out.Transcript,
		Status:               string(out.Status),
		Steps:                out.Steps,
		VerificationCommands: out.VerificationCommands,
		Touched:              out.Touched,
	}, errMsg)
	return out.ExitCode
}

// finish records the run, closes the session log and publishes the result.
func (rt *runtime) finish(ctx context.Context, meta state.RunMeta, errMsg string) {
	meta.Model = rt.opts.model
	meta.BackendURL = rt.opts.backendURL
	meta.Apply = rt.opts.apply
	meta.AllowDestructive = rt.opts.allowDestructive
	meta.Task = rt.opts.task

	rec := rt.store.Record(meta)
	if err := rt.store.Save(rt.opts.apply, rt.opts.saveState); err != nil {
		if errors.Is(err, state.ErrNotPersisted) {
			rt.logger.Debug("state_not_saved", map[string]interface{}{"reason": "dry-run"})
		} else {
			rt.logger.Warn("state_save_failed", map[string]interface{}{"error": err.Error()})
		}
	}

	if rt.sessLog != nil {
		if err := rt.sessLog.Finish(meta.Status, meta.Result, errMsg); err != nil {
			rt.logger.Warn("session_finish_failed", map[string]interface{}{"error": err.Error()})
		}
	}

	rt.emit(ctx, events.Event{
		Type:    events.TypeRunFinished,
		Status:  rec.Status,
		Steps:   rec.Steps,
		Touched: rec.Touched,
		Error:   errMsg,
	})
}

func (rt *runtime) emit(ctx context.Context, ev events.Event) {
	ev.RunID = rt.runID
	ev.Name = rt.opts.name
	ev.Apply = rt.opts.apply
	rt.events.Emit(ctx, ev)
}

func (rt *runtime) printBanner() {
	mode := "DRY-RUN"
	if rt.opts.apply {
		mode = "APPLY"
	}
	fmt.Fprintf(rt.errOut, "Running %s [%s] model=%s workspace=%s\n\n", rt.opts.name, mode, rt.opts.model, rt.root)
}

// printOutcome writes the result summary to stdout.
func (rt *runtime) printOutcome(status executor.Status, summary string, touched, verify []string) {
	if summary != "" {
		fmt.Fprintln(rt.out, summary)
	}
	fmt.Fprintf(rt.out, "\nstatus: %s\n", status)
	if len(touched) > 0 {
		fmt.Fprintln(rt.out, "touched:")
		for _, t := range touched {
			fmt.Fprintf(rt.out, "  - %s\n", t)
		}
	}
	if len(verify) > 0 {
		fmt.Fprintln(rt.out, "verify:")
		for _, v := range verify {
			fmt.Fprintf(rt.out, "  $ %s\n", v)
		}
	}
	if !rt.opts.apply {
		fmt.Fprintln(rt.out, "(dry-run: re-run with --apply to make changes)")
	}
}

func resultText(status executor.Status, text, errMsg string) string {
	if status == executor.StatusFinal {
		return text
	}
	return strings.ToUpper(string(status)) + ": " + errMsg
}

// cleanup runs all registered cleanup functions.
func (rt *runtime) cleanup() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
}

// addCloser registers a cleanup function.
func (rt *runtime) addCloser(fn func()) {
	rt.closers = append(rt.closers, fn)
}
