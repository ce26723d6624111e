// Package executor runs the bounded conversation loop of one agent phase.
//
// Each step sends the whole conversation to the chat backend, parses the
// reply for JSON tool calls and executes them in order through the tool
// registry. The loop ends with a final answer, a backend failure, or when
// the step budget is used up.
package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vinayprograms/station/internal/llm"
	"github.com/vinayprograms/station/internal/logging"
	"github.com/vinayprograms/station/internal/session"
	"github.com/vinayprograms/station/internal/tools"
)

// DefaultMaxSteps bounds a loop when neither the caller nor the executor sets
// a budget.
const DefaultMaxSteps = 10

// Status is the terminal state of a loop.
type Status string

const (
	StatusRunning   Status = "running"
	StatusFinal     Status = "final"
	StatusFailed    Status = "failed"
	StatusExhausted Status = "exhausted"
)

// ExitCode maps a status to a process exit code.
func (s Status) ExitCode() int {
	switch s {
	case StatusFinal:
		return 0
	case StatusExhausted:
		return 2
	default:
		return 1
	}
}

// ErrExhausted describes a loop that ran out of steps.
var ErrExhausted = errors.New("step budget exhausted without a final answer")

// RunInput describes one loop invocation.
type RunInput struct {
	Task string
	// Plan is supervisor output threaded into the first user message.
	Plan string
	// Role and Instructions come from a pipeline phase.
	Role         string
	Instructions string

	Apply            bool
	AllowDestructive bool
	MaxSteps         int
	Model            string
}

// Result is the outcome of a loop.
type Result struct {
	Status               Status
	Text                 string
	Error                string
	Steps                int
	Touched              []string
	VerificationCommands []string
	Duration             time.Duration
}

// Summary renders the outcome for a terminal.
func (r *Result) Summary() string {
	switch r.Status {
	case StatusFinal:
		return r.Text
	case StatusExhausted:
		return fmt.Sprintf("EXHAUSTED after %d steps: %s", r.Steps, r.Error)
	default:
		return fmt.Sprintf("FAILED at step %d: %s", r.Steps, r.Error)
	}
}

// Executor drives conversation loops against one provider and registry.
type Executor struct {
	provider    llm.Provider
	registry    *tools.Registry
	root        string
	logger      *logging.Logger
	session     *session.Log
	model       string
	temperature float64
	maxSteps    int

	// Callbacks
	OnStep       func(step int)
	OnToolCall   func(step int, call ToolCall)
	OnToolResult func(step int, call ToolCall, res tools.Result, d time.Duration)
	OnFinal      func(text string)
	OnLLMError   func(err error)
}

// NewExecutor creates an executor for the workspace at root.
func NewExecutor(provider llm.Provider, registry *tools.Registry, root string) *Executor {
	return &Executor{
		provider: provider,
		registry: registry,
		root:     root,
		logger:   logging.Discard(),
		maxSteps: DefaultMaxSteps,
	}
}

// SetLogger sets the structured logger.
func (e *Executor) SetLogger(l *logging.Logger) {
	if l != nil {
		e.logger = l.WithComponent("executor")
	}
}

// SetSession attaches a session log that receives every event.
func (e *Executor) SetSession(l *session.Log) {
	e.session = l
}

// SetModel sets the default model and sampling temperature.
func (e *Executor) SetModel(model string, temperature float64) {
	e.model = model
	e.temperature = temperature
}

// SetMaxSteps sets the default step budget.
func (e *Executor) SetMaxSteps(n int) {
	if n > 0 {
		e.maxSteps = n
	}
}

// Run executes one conversation loop. It never returns nil.
func (e *Executor) Run(ctx context.Context, in RunInput) *Result {
	start := time.Now()
	maxSteps := in.MaxSteps
	if maxSteps <= 0 {
		maxSteps = e.maxSteps
	}
	model := in.Model
	if model == "" {
		model = e.model
	}

	ec := tools.NewExecContext(e.root, in.Apply, in.AllowDestructive)
	ctx, span := e.startRunSpan(ctx, in, model)

	system := e.systemPrompt(in)
	user := userPrompt(in.Task, in.Plan)
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: user},
	}
	e.record(session.Event{Type: session.EventSystem, Phase: in.Role, Content: system})
	e.record(session.Event{Type: session.EventUser, Phase: in.Role, Content: user})
	e.logger.Info("loop_start", map[string]interface{}{
		"role":      in.Role,
		"apply":     in.Apply,
		"max_steps": maxSteps,
		"model":     model,
	})

	res := &Result{Status: StatusRunning}
	for step := 1; step <= maxSteps; step++ {
		res.Steps = step
		if e.OnStep != nil {
			e.OnStep(step)
		}
		if done := e.step(ctx, ec, in, model, step, &messages, res); done {
			break
		}
	}
	if res.Status == StatusRunning {
		res.Status = StatusExhausted
		res.Error = fmt.Sprintf("%v (max %d steps)", ErrExhausted, maxSteps)
		e.record(session.Event{Type: session.EventExhausted, Phase: in.Role, Step: res.Steps, Error: res.Error})
	}

	res.Touched = ec.Touched()
	if res.Status == StatusFinal {
		res.VerificationCommands = ExtractVerification(res.Text)
	}
	res.Duration = time.Since(start)
	e.endRunSpan(span, res)
	e.logger.Info("loop_end", map[string]interface{}{
		"role":     in.Role,
		"status":   string(res.Status),
		"steps":    res.Steps,
		"touched":  len(res.Touched),
		"duration": res.Duration.String(),
	})
	return res
}

// step performs one backend call and reports whether the loop is done.
func (e *Executor) step(ctx context.Context, ec *tools.ExecContext, in RunInput, model string, step int, messages *[]llm.Message, res *Result) bool {
	ctx, span := e.startStepSpan(ctx, step)

	resp, err := e.provider.Chat(ctx, llm.ChatRequest{
		Model:       model,
		Messages:    *messages,
		Temperature: e.temperature,
	})
	if err != nil {
		endSpan(span, err)
		if e.OnLLMError != nil {
			e.OnLLMError(err)
		}
		e.logger.Error("backend_error", map[string]interface{}{"step": step, "error": err.Error()})
		res.Status = StatusFailed
		res.Error = err.Error()
		e.record(session.Event{Type: session.EventFailed, Phase: in.Role, Step: step, Error: res.Error})
		return true
	}
	defer endSpan(span, nil)

	*messages = append(*messages, llm.Message{Role: llm.RoleAssistant, Content: resp.Content})
	e.record(session.Event{Type: session.EventAssistant, Phase: in.Role, Step: step, Content: resp.Content})

	reply := ParseReply(resp.Content)
	if reply.Final != nil {
		res.Status = StatusFinal
		res.Text = *reply.Final
		e.record(session.Event{Type: session.EventFinal, Phase: in.Role, Step: step, Content: res.Text})
		if e.OnFinal != nil {
			e.OnFinal(res.Text)
		}
		return true
	}

	if len(reply.Calls) == 0 {
		e.logger.Debug("protocol_reminder", map[string]interface{}{"step": step})
		*messages = append(*messages, llm.Message{Role: llm.RoleUser, Content: reminderMessage})
		e.record(session.Event{Type: session.EventReminder, Phase: in.Role, Step: step, Content: reminderMessage})
		return false
	}

	results := make([]callResult, 0, len(reply.Calls))
	for _, call := range reply.Calls {
		results = append(results, callResult{
			Tool:   call.Tool,
			Args:   call.Args,
			Result: e.executeTool(ctx, ec, in.Role, step, call),
		})
	}
	msg := toolResultsMessage(step, results)
	*messages = append(*messages, llm.Message{Role: llm.RoleUser, Content: msg})
	return false
}

// ExchangeInput is a single non-looping backend call.
type ExchangeInput struct {
	Role         string
	Instructions string
	Task         string
	Plan         string
	Model        string
}

// Exchange performs one backend call without tool dispatch and returns the
// assistant text.
func (e *Executor) Exchange(ctx context.Context, in ExchangeInput) (string, error) {
	model := in.Model
	if model == "" {
		model = e.model
	}
	system := strings.TrimSpace(in.Instructions)
	if system == "" {
		system = fmt.Sprintf("You are the %s of a workspace automation pipeline. Answer in plain text.", in.Role)
	}
	user := userPrompt(in.Task, in.Plan)
	e.record(session.Event{Type: session.EventSystem, Phase: in.Role, Content: system})
	e.record(session.Event{Type: session.EventUser, Phase: in.Role, Content: user})

	ctx, span := e.startStepSpan(ctx, 1)
	resp, err := e.provider.Chat(ctx, llm.ChatRequest{
		Model: model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: system},
			{Role: llm.RoleUser, Content: user},
		},
		Temperature: e.temperature,
	})
	endSpan(span, err)
	if err != nil {
		if e.OnLLMError != nil {
			e.OnLLMError(err)
		}
		e.record(session.Event{Type: session.EventFailed, Phase: in.Role, Step: 1, Error: err.Error()})
		return "", err
	}
	e.record(session.Event{Type: session.EventAssistant, Phase: in.Role, Step: 1, Content: resp.Content})
	return resp.Content, nil
}

func (e *Executor) record(ev session.Event) {
	if e.session == nil {
		return
	}
	if _, err := e.session.Record(ev); err != nil {
		e.logger.Warn("session_write_failed", map[string]interface{}{"error": err.Error()})
	}
}
