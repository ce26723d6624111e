package executor

import (
	"fmt"
	"strings"

	"github.com/vinayprograms/station/internal/workspace"
)

const reminderMessage = `Your reply contained no tool calls and no final answer. Reply only with JSON lines:
{"tool": "<name>", "args": {...}} to use a tool, or
{"final": "<summary with verification commands and rollback notes>"} when the task is complete.`

const continueInstruction = `Continue. When the task is complete, reply with a single line {"final": "..."} whose text includes the verification commands to run and rollback notes.`

func (e *Executor) systemPrompt(in RunInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are station's workspace agent operating on the workspace at %s.\n", e.root)
	fmt.Fprintf(&b, "Only these top-level directories may be read or changed: %s.\n", strings.Join(workspace.SafeDirs, ", "))
	if in.Apply {
		b.WriteString("Mode: APPLY. File writes, patches and commands take effect.\n")
	} else {
		b.WriteString("Mode: DRY-RUN. Nothing is written; only read-only commands run. Describe the changes you would make.\n")
	}
	if in.AllowDestructive {
		b.WriteString("Destructive commands (rm, mv, chmod, ...) are permitted.\n")
	} else {
		b.WriteString("Destructive commands (rm, mv, chmod, ...) are blocked.\n")
	}
	b.WriteString(`
To use tools, reply with one JSON object per line, for example:
{"tool": "fs_read", "args": {"path": "config/station.toml"}}
Several tool lines may appear in one reply. They run in order and all results come back in the next message.
When the task is complete, reply with a single line:
{"final": "<summary, verification commands, rollback notes>"}

Tools:
`)
	b.WriteString(e.registry.Catalog())
	if in.Role != "" {
		fmt.Fprintf(&b, "\nYour role in this pipeline: %s.\n", in.Role)
	}
	if in.Instructions != "" {
		b.WriteString("\n")
		b.WriteString(strings.TrimSpace(in.Instructions))
		b.WriteString("\n")
	}
	return b.String()
}

func userPrompt(task, plan string) string {
	var b strings.Builder
	b.WriteString("Task:\n")
	b.WriteString(strings.TrimSpace(task))
	if strings.TrimSpace(plan) != "" {
		b.WriteString("\n\nPlan:\n")
		b.WriteString(strings.TrimSpace(plan))
	}
	return b.String()
}

func toolResultsMessage(step int, results []callResult) string {
	return fmt.Sprintf("Tool results (step %d):\n%s\n\n%s", step, marshalResults(results), continueInstruction)
}
