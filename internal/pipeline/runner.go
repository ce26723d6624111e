package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/vinayprograms/station/internal/executor"
	"github.com/vinayprograms/station/internal/logging"
	"github.com/vinayprograms/station/internal/session"
)

// RunInput holds the global flags for one pipeline run.
type RunInput struct {
	Task             string
	Apply            bool
	AllowDestructive bool
}

// PhaseOutcome is the result of one phase.
type PhaseOutcome struct {
	Index    int
	Role     string
	ToolLoop bool
	Apply    bool
	Status   executor.Status
	Text     string
	Error    string
	Steps    int
	Touched  []string
	Duration time.Duration
}

// Outcome is the result of a whole pipeline.
type Outcome struct {
	Pipeline   string
	Status     executor.Status
	ExitCode   int
	Transcript string
	Plan       string
	Phases     []PhaseOutcome
	// Touched is the sorted union of every phase's touched list.
	Touched              []string
	VerificationCommands []string
	Steps                int
	// HaltedAt is the 1-based index of the phase that stopped the run, or 0.
	HaltedAt int
	Duration time.Duration
}

// Runner executes pipeline definitions phase by phase.
type Runner struct {
	exec    *executor.Executor
	logger  *logging.Logger
	session *session.Log

	// Callbacks
	OnPhaseStart func(index int, p Phase, apply bool)
	OnPhaseEnd   func(po PhaseOutcome)
}

// NewRunner creates a runner that drives phases through exec.
func NewRunner(exec *executor.Executor) *Runner {
	return &Runner{exec: exec, logger: logging.Discard()}
}

// SetLogger sets the structured logger.
func (r *Runner) SetLogger(l *logging.Logger) {
	if l != nil {
		r.logger = l.WithComponent("pipeline")
	}
}

// SetSession attaches a session log for phase boundaries.
func (r *Runner) SetSession(l *session.Log) {
	r.session = l
}

// Run executes def sequentially. It stops at the first failing phase unless
// that phase's role is non-blocking.
func (r *Runner) Run(ctx context.Context, def *Definition, in RunInput) *Outcome {
	start := time.Now()
	out := &Outcome{Pipeline: def.Name, Status: executor.StatusFinal}
	touched := make(map[string]bool)
	var sections []string

	r.logger.RunStart("pipeline:"+def.Name, in.Apply)

	for i, p := range def.Phases {
		apply := EffectiveApply(in.Apply, p)
		if r.OnPhaseStart != nil {
			r.OnPhaseStart(i+1, p, apply)
		}
		r.record(session.Event{Type: session.EventPhaseStart, Phase: p.Role, Content: fmt.Sprintf("phase %d apply=%t tool_loop=%t", i+1, apply, p.ToolLoop)})

		po := r.runPhase(ctx, p, in, out.Plan, apply)
		po.Index = i + 1
		out.Phases = append(out.Phases, po)
		out.Steps += po.Steps
		for _, t := range po.Touched {
			touched[t] = true
		}

		sections = append(sections, fmt.Sprintf("## %s\n%s", p.Role, po.sectionText()))
		if p.Role == RoleSupervisor && po.Status == executor.StatusFinal {
			out.Plan = po.Text
		}
		if po.Status == executor.StatusFinal && p.ToolLoop {
			out.VerificationCommands = appendUnique(out.VerificationCommands, executor.ExtractVerification(po.Text)...)
		}

		r.record(session.Event{Type: session.EventPhaseEnd, Phase: p.Role, Step: po.Steps, Content: string(po.Status), Error: po.Error, DurationMs: po.Duration.Milliseconds()})
		r.logger.Info("phase_end", map[string]interface{}{
			"index":    po.Index,
			"role":     po.Role,
			"status":   string(po.Status),
			"apply":    apply,
			"duration": po.Duration.String(),
		})
		if r.OnPhaseEnd != nil {
			r.OnPhaseEnd(po)
		}

		if po.Status != executor.StatusFinal {
			if p.ToolLoop && IsNonBlocking(p.Role) {
				r.logger.Warn("phase_failed_nonblocking", map[string]interface{}{"role": p.Role, "status": string(po.Status)})
				continue
			}
			out.Status = po.Status
			out.HaltedAt = po.Index
			break
		}
	}

	out.ExitCode = out.Status.ExitCode()
	out.Transcript = strings.Join(sections, "\n\n")
	for t := range touched {
		out.Touched = append(out.Touched, t)
	}
	sort.Strings(out.Touched)
	out.Duration = time.Since(start)
	r.logger.RunComplete("pipeline:"+def.Name, out.Duration, string(out.Status))
	return out
}

func (r *Runner) runPhase(ctx context.Context, p Phase, in RunInput, plan string, apply bool) PhaseOutcome {
	po := PhaseOutcome{Role: p.Role, ToolLoop: p.ToolLoop, Apply: apply}
	start := time.Now()

	if p.ToolLoop && p.Role != RoleSupervisor {
		res := r.exec.Run(ctx, executor.RunInput{
			Task:             in.Task,
			Plan:             plan,
			Role:             p.Role,
			Instructions:     p.Prompt,
			Apply:            apply,
			AllowDestructive: in.AllowDestructive,
			MaxSteps:         p.MaxSteps,
			Model:            p.Model,
		})
		po.Status = res.Status
		po.Text = res.Text
		po.Error = res.Error
		po.Steps = res.Steps
		po.Touched = res.Touched
		po.Duration = time.Since(start)
		return po
	}

	text, err := r.exec.Exchange(ctx, executor.ExchangeInput{
		Role:         p.Role,
		Instructions: p.Prompt,
		Task:         in.Task,
		Plan:         plan,
		Model:        p.Model,
	})
	po.Steps = 1
	if err != nil {
		po.Status = executor.StatusFailed
		po.Error = err.Error()
	} else {
		po.Status = executor.StatusFinal
		po.Text = text
	}
	po.Duration = time.Since(start)
	return po
}

func (po PhaseOutcome) sectionText() string {
	switch po.Status {
	case executor.StatusFinal:
		return strings.TrimRight(po.Text, "\n")
	case executor.StatusExhausted:
		return fmt.Sprintf("EXHAUSTED after %d steps: %s", po.Steps, po.Error)
	default:
		return fmt.Sprintf("FAILED: %s", po.Error)
	}
}

func (r *Runner) record(ev session.Event) {
	if r.session == nil {
		return
	}
	if _, err := r.session.Record(ev); err != nil {
		r.logger.Warn("session_write_failed", map[string]interface{}{"error": err.Error()})
	}
}

func appendUnique(dst []string, items ...string) []string {
	for _, it := range items {
		dup := false
		for _, d := range dst {
			if d == it {
				dup = true
				break
			}
		}
		if !dup {
			dst = append(dst, it)
		}
	}
	return dst
}
