package executor

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/vinayprograms/station/internal/executor"

// startRunSpan starts a span for one conversation loop.
func (e *Executor) startRunSpan(ctx context.Context, in RunInput, model string) (context.Context, trace.Span) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "agent.run")
	span.SetAttributes(
		attribute.String("agent.model", model),
		attribute.String("agent.role", in.Role),
		attribute.Bool("agent.apply", in.Apply),
		attribute.Bool("agent.allow_destructive", in.AllowDestructive),
	)
	return ctx, span
}

// endRunSpan ends the loop span with the outcome.
func (e *Executor) endRunSpan(span trace.Span, res *Result) {
	span.SetAttributes(
		attribute.String("agent.status", string(res.Status)),
		attribute.Int("agent.steps", res.Steps),
		attribute.Int("agent.touched", len(res.Touched)),
	)
	if res.Status == StatusFailed {
		span.SetStatus(codes.Error, res.Error)
	}
	span.End()
}

// startStepSpan starts a span for one backend call and its tool executions.
func (e *Executor) startStepSpan(ctx context.Context, step int) (context.Context, trace.Span) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "agent.step")
	span.SetAttributes(attribute.Int("agent.step", step))
	return ctx, span
}

// startToolSpan starts a span for a tool call.
func (e *Executor) startToolSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "tool."+name)
	span.SetAttributes(attribute.String("tool.name", name))
	return ctx, span
}

// endSpan ends a span, recording err when set.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
