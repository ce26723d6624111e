package executor

import (
	"encoding/json"
	"fmt"

	"github.com/vinayprograms/station/internal/tools"
)

// callResult pairs a tool call with its result for the model.
type callResult struct {
	Tool   string       `json:"tool"`
	Args   tools.Args   `json:"args,omitempty"`
	Result tools.Result `json:"result"`
}

// truncateForLog truncates a string for logging purposes.
func truncateForLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

func marshalResults(results []callResult) string {
	data, err := json.Marshal(results)
	if err != nil {
		return fmt.Sprintf(`[{"ok": false, "error": %q}]`, "failed to encode tool results: "+err.Error())
	}
	return string(data)
}

func marshalResult(res tools.Result) string {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Sprintf("%v", map[string]any(res))
	}
	return string(data)
}
