package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/vinayprograms/station/internal/sandbox"
)

const (
	DefaultShellTimeout = 60 * time.Second
	MaxShellTimeout     = 600 * time.Second
	maxOutputTail       = 4000

	codeDenied   = 2
	codeTimeout  = 124
	codeNotFound = 127
)

type shellTool struct {
	timeout time.Duration
}

func (t *shellTool) run(ctx context.Context, ec *ExecContext, args Args) Result {
	var argv []string
	var line string
	if cmd, ok := args.String("cmd"); ok {
		line = cmd
		split, err := sandbox.SplitCommand(cmd)
		if err != nil {
			ec.Touch(line)
			return Result{"ok": false, "code": codeDenied, "stdout": "", "stderr": err.Error()}
		}
		argv = split
	} else if list, ok := args.StringList("cmd"); ok {
		argv = list
		line = sandbox.CommandLine(list)
	} else {
		return fail("cmd is required")
	}
	ec.Touch(line)
	if len(argv) == 0 {
		return Result{"ok": false, "code": codeDenied, "stdout": "", "stderr": "empty command"}
	}

	if d := sandbox.Gate(argv, ec.Apply, ec.AllowDestructive); !d.Allowed {
		return Result{"ok": false, "code": codeDenied, "stdout": "", "stderr": d.Reason, "error": d.Reason, "denied": true}
	}

	timeout := args.Seconds("timeout", t.timeout, time.Second, MaxShellTimeout)
	out := runCommand(ctx, ec.Root, argv, timeout)
	return Result{
		"ok":     out.Code == 0,
		"code":   out.Code,
		"stdout": tail(out.Stdout, maxOutputTail),
		"stderr": tail(out.Stderr, maxOutputTail),
	}
}

// ExecResult is the outcome of one process execution.
type ExecResult struct {
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`
	Code   int    `json:"code"`
}

// runCommand executes argv in dir without a shell and bounds it by timeout.
func runCommand(ctx context.Context, dir string, argv []string, timeout time.Duration) ExecResult {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.WaitDelay = 2 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := ExecResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if err == nil {
		return res
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		res.Code = codeTimeout
		res.Stderr += fmt.Sprintf("\ncommand timed out after %s", timeout)
		return res
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.Code = exitErr.ExitCode()
		if res.Code < 0 {
			res.Code = 1
		}
		return res
	}
	if errors.Is(err, exec.ErrNotFound) {
		res.Code = codeNotFound
		res.Stderr += err.Error()
		return res
	}
	res.Code = 1
	res.Stderr += err.Error()
	return res
}
