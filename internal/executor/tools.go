package executor

import (
	"context"
	"errors"
	"time"

	"github.com/vinayprograms/station/internal/session"
	"github.com/vinayprograms/station/internal/tools"
)

// executeTool runs one call through the registry. Failures stay inside the
// returned result.
func (e *Executor) executeTool(ctx context.Context, ec *tools.ExecContext, role string, step int, call ToolCall) tools.Result {
	if e.OnToolCall != nil {
		e.OnToolCall(step, call)
	}
	e.logger.ToolCall(call.Tool, step)
	e.record(session.Event{
		Type:  session.EventToolCall,
		Phase: role,
		Step:  step,
		Tool:  call.Tool,
		Args:  call.Args,
	})

	ctx, span := e.startToolSpan(ctx, call.Tool)
	start := time.Now()
	res := e.registry.Dispatch(ctx, ec, call.Tool, call.Args)
	duration := time.Since(start)

	ok := res.OK()
	var spanErr error
	if !ok {
		msg := res.ErrorText()
		if msg == "" {
			msg = "tool reported failure"
		}
		spanErr = errors.New(msg)
	}
	endSpan(span, spanErr)

	if res.Denied() {
		e.logger.PolicyDenied(call.Tool, res.ErrorText())
	}
	e.logger.ToolResult(call.Tool, duration, ok, res.ErrorText())
	e.record(session.Event{
		Type:       session.EventToolResult,
		Phase:      role,
		Step:       step,
		Tool:       call.Tool,
		Content:    truncateForLog(marshalResult(res), 4000),
		Success:    &ok,
		Error:      res.ErrorText(),
		DurationMs: duration.Milliseconds(),
	})
	if e.OnToolResult != nil {
		e.OnToolResult(step, call, res, duration)
	}
	return res
}
