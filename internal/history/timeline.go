package history

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/vinayprograms/station/internal/session"
)

const maxContentLines = 12

// RenderSession writes a session as a timeline: one numbered row per event,
// with phase banners between pipeline phases.
func RenderSession(w io.Writer, sess *session.Session) {
	mode := "dry-run"
	if sess.Apply {
		mode = applyStyle.Render("apply")
	}
	fmt.Fprintf(w, "%s %s\n", headerStyle.Render(sess.Name), dimStyle.Render(sess.ID))
	fmt.Fprintf(w, "%s %s   %s %s\n", dimStyle.Render("mode:"), mode, dimStyle.Render("status:"), statusStyle(sess.Status).Render(sess.Status))
	fmt.Fprintf(w, "%s %s\n", dimStyle.Render("task:"), oneLine(sess.Task))
	fmt.Fprintln(w, divider)

	for _, ev := range sess.Events {
		if ev.Type == session.EventPhaseStart {
			fmt.Fprintf(w, "\n%s %s\n", phaseStyle.Render("▸ "+ev.Phase), dimStyle.Render(ev.Content))
			continue
		}
		line := describe(ev)
		if line == "" {
			continue
		}
		fmt.Fprintf(w, "%s %s %s %s\n",
			seqStyle.Render(fmt.Sprint(ev.SeqID)),
			dimStyle.Render("│"),
			dimStyle.Render(ev.Timestamp.Local().Format("15:04:05")),
			line)
		if body := eventBody(ev); body != "" {
			for _, l := range limitLines(body, maxContentLines) {
				fmt.Fprintf(w, "%s %s          %s\n", seqStyle.Render(""), dimStyle.Render("│"), l)
			}
		}
	}

	if sess.Status != session.StatusRunning {
		fmt.Fprintln(w, divider)
		switch sess.Status {
		case session.StatusFinal:
			fmt.Fprintln(w, successStyle.Render("FINAL"))
			fmt.Fprintln(w, sess.Result)
		default:
			fmt.Fprintln(w, statusStyle(sess.Status).Render(strings.ToUpper(sess.Status)+": "+sess.Error))
		}
	}
}

func describe(ev session.Event) string {
	step := ""
	if ev.Step > 0 {
		step = dimStyle.Render(fmt.Sprintf("[step %d] ", ev.Step))
	}
	switch ev.Type {
	case session.EventSystem:
		return ""
	case session.EventUser:
		return step + "user"
	case session.EventAssistant:
		return step + "assistant"
	case session.EventToolCall:
		return step + toolStyle.Render("→ "+ev.Tool) + " " + dimStyle.Render(argsHint(ev.Args))
	case session.EventToolResult:
		d := dimStyle.Render(fmt.Sprintf("(%dms)", ev.DurationMs))
		if ev.Success != nil && !*ev.Success {
			return step + errorStyle.Render("✗ "+ev.Tool) + " " + d + " " + errorStyle.Render(ev.Error)
		}
		return step + successStyle.Render("✓ "+ev.Tool) + " " + d
	case session.EventReminder:
		return step + warnStyle.Render("protocol reminder")
	case session.EventPhaseEnd:
		return phaseStyle.Render("◂ "+ev.Phase) + " " + statusStyle(ev.Content).Render(ev.Content)
	case session.EventFinal:
		return step + successStyle.Render("final")
	case session.EventFailed:
		return step + errorStyle.Render("failed: "+ev.Error)
	case session.EventExhausted:
		return step + warnStyle.Render("exhausted: "+ev.Error)
	default:
		return step + ev.Type
	}
}

func eventBody(ev session.Event) string {
	switch ev.Type {
	case session.EventAssistant, session.EventFinal:
		return strings.TrimSpace(ev.Content)
	}
	return ""
}

// argsHint shows the most telling argument of a tool call.
func argsHint(args map[string]interface{}) string {
	for _, k := range []string{"path", "cmd", "url", "pattern", "name"} {
		if v, ok := args[k]; ok {
			switch v := v.(type) {
			case string:
				return clip(oneLine(v), 60)
			case []interface{}:
				parts := make([]string, 0, len(v))
				for _, p := range v {
					parts = append(parts, fmt.Sprint(p))
				}
				return clip(strings.Join(parts, " "), 60)
			}
		}
	}
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return strings.Join(keys, ",")
}

func limitLines(s string, n int) []string {
	lines := strings.Split(s, "\n")
	if len(lines) <= n {
		return lines
	}
	rest := len(lines) - n
	return append(lines[:n], dimStyle.Render(fmt.Sprintf("… %d more lines", rest)))
}
