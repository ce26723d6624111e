package executor

import (
	"encoding/json"
	"strings"

	"github.com/vinayprograms/station/internal/tools"
)

// ToolCall is a tool invocation found in an assistant reply.
type ToolCall struct {
	Tool string     `json:"tool"`
	Args tools.Args `json:"args"`
}

// Reply is the structured content of one assistant message.
type Reply struct {
	Calls []ToolCall
	// Final is set when any object carries a "final" key.
	Final *string
}

// ParseReply extracts tool calls and a final answer from assistant text.
// Only lines that are a complete JSON object on their own count; everything
// else is prose and is ignored.
func ParseReply(text string) Reply {
	var r Reply
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if !strings.HasPrefix(line, "{") || !strings.HasSuffix(line, "}") {
			continue
		}
		var obj map[string]any
		if err := json.Unmarshal([]byte(line), &obj); err != nil {
			continue
		}
		if v, ok := obj["final"]; ok {
			if r.Final == nil {
				s := finalText(v)
				r.Final = &s
			}
			continue
		}
		name, ok := obj["tool"].(string)
		if !ok {
			continue
		}
		args, _ := obj["args"].(map[string]any)
		if args == nil {
			args = map[string]any{}
		}
		r.Calls = append(r.Calls, ToolCall{Tool: name, Args: tools.Args(args)})
	}
	return r
}

func finalText(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
