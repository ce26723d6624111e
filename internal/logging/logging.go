// Package logging provides structured logging for station components.
//
// Records go through log/slog. Multiple sinks (the terminal and an optional
// JSON log file) are fanned out with slog-multi.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	slogmulti "github.com/samber/slog-multi"
)

// Level represents log severity.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// ParseLevel maps a config string to a Level. Unknown values become INFO.
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	default:
		return LevelInfo
	}
}

func (l Level) slog() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Logger is a component-scoped structured logger.
type Logger struct {
	base      *slog.Logger
	level     *slog.LevelVar
	component string
}

// New creates a Logger writing text records to stderr at INFO.
func New() *Logger {
	return NewWithWriters(LevelInfo, os.Stderr, nil)
}

// NewWithWriters creates a Logger that writes text records to text and,
// when jsonOut is non-nil, JSON records to jsonOut as well.
func NewWithWriters(level Level, text io.Writer, jsonOut io.Writer) *Logger {
	lv := new(slog.LevelVar)
	lv.Set(level.slog())

	var handlers []slog.Handler
	if text != nil {
		handlers = append(handlers, slog.NewTextHandler(text, &slog.HandlerOptions{Level: lv}))
	}
	if jsonOut != nil {
		handlers = append(handlers, slog.NewJSONHandler(jsonOut, &slog.HandlerOptions{Level: lv}))
	}
	if len(handlers) == 0 {
		handlers = append(handlers, slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: lv}))
	}

	return &Logger{
		base:  slog.New(slogmulti.Fanout(handlers...)),
		level: lv,
	}
}

// Discard returns a Logger that drops everything.
func Discard() *Logger {
	return NewWithWriters(LevelError, nil, nil)
}

// WithComponent returns a new logger with the given component name.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		base:      l.base,
		level:     l.level,
		component: component,
	}
}

// SetLevel sets the minimum log level. It applies to every logger derived
// from the same root.
func (l *Logger) SetLevel(level Level) {
	l.level.Set(level.slog())
}

// Slog exposes the underlying slog logger.
func (l *Logger) Slog() *slog.Logger {
	return l.base
}

func (l *Logger) Debug(msg string, fields ...map[string]interface{}) {
	l.log(slog.LevelDebug, msg, fields...)
}

func (l *Logger) Info(msg string, fields ...map[string]interface{}) {
	l.log(slog.LevelInfo, msg, fields...)
}

func (l *Logger) Warn(msg string, fields ...map[string]interface{}) {
	l.log(slog.LevelWarn, msg, fields...)
}

func (l *Logger) Error(msg string, fields ...map[string]interface{}) {
	l.log(slog.LevelError, msg, fields...)
}

func (l *Logger) log(level slog.Level, msg string, fields ...map[string]interface{}) {
	ctx := context.Background()
	if !l.base.Enabled(ctx, level) {
		return
	}
	var attrs []slog.Attr
	if l.component != "" {
		attrs = append(attrs, slog.String("component", l.component))
	}
	if len(fields) > 0 && fields[0] != nil {
		keys := make([]string, 0, len(fields[0]))
		for k := range fields[0] {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			attrs = append(attrs, slog.Any(k, fields[0][k]))
		}
	}
	l.base.LogAttrs(ctx, level, msg, attrs...)
}

// ToolCall logs a tool invocation. Arguments are not logged.
func (l *Logger) ToolCall(tool string, step int) {
	l.Info("tool_call", map[string]interface{}{
		"tool": tool,
		"step": step,
	})
}

// ToolResult logs a tool result.
func (l *Logger) ToolResult(tool string, duration time.Duration, ok bool, errMsg string) {
	fields := map[string]interface{}{
		"tool":     tool,
		"duration": duration.String(),
		"ok":       ok,
	}
	if !ok {
		if errMsg != "" {
			fields["error"] = errMsg
		}
		l.Warn("tool_error", fields)
		return
	}
	l.Debug("tool_result", fields)
}

// PolicyDenied logs a sandbox denial.
func (l *Logger) PolicyDenied(tool, reason string) {
	l.Warn("policy_denied", map[string]interface{}{
		"tool":     tool,
		"reason":   reason,
		"security": true,
	})
}

// RunStart logs the start of an agent run or pipeline.
func (l *Logger) RunStart(name string, apply bool) {
	l.Info("run_start", map[string]interface{}{
		"run":   name,
		"apply": apply,
	})
}

// RunComplete logs the end of an agent run or pipeline.
func (l *Logger) RunComplete(name string, duration time.Duration, status string) {
	l.Info("run_complete", map[string]interface{}{
		"run":      name,
		"duration": duration.String(),
		"status":   status,
	})
}
