package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ToolRequest asks the tool-invocation service to run an installed tool.
type ToolRequest struct {
	Name       string         `json:"name"`
	Mode       string         `json:"mode"`
	Entrypoint string         `json:"entrypoint,omitempty"`
	Args       map[string]any `json:"args,omitempty"`
}

// ToolInvoker runs externally installed tools and returns the service's
// status code and payload.
type ToolInvoker interface {
	Invoke(ctx context.Context, req ToolRequest) (int, map[string]any, error)
}

// HTTPInvoker posts tool requests to the dashboard API.
type HTTPInvoker struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPInvoker creates an invoker for the dashboard at baseURL.
func NewHTTPInvoker(baseURL string, timeout time.Duration) *HTTPInvoker {
	return &HTTPInvoker{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: timeout},
	}
}

func (h *HTTPInvoker) Invoke(ctx context.Context, req ToolRequest) (int, map[string]any, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.BaseURL+"/api/tools/run", bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := h.Client.Do(httpReq)
	if err != nil {
		return 0, nil, fmt.Errorf("tool service unreachable: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxHTTPBody))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response: %w", err)
	}
	payload := map[string]any{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		payload = map[string]any{"raw": string(raw)}
	}
	return resp.StatusCode, payload, nil
}

type aiToolRun struct {
	invoker ToolInvoker
}

func (t *aiToolRun) run(ctx context.Context, ec *ExecContext, args Args) Result {
	name, ok := args.String("name")
	if !ok || name == "" {
		return fail("name is required")
	}
	ec.Touch("tool:" + name)

	mode := args.StringOr("mode", "run")
	if mode != "run" && mode != "test" {
		return fail("mode must be \"run\" or \"test\", got %q", mode)
	}
	if !ec.Apply && mode != "test" {
		return denial(`dry-run: ai_tool_run only allows mode "test" without --apply`)
	}
	if t.invoker == nil {
		return fail("tool invocation is not configured")
	}

	req := ToolRequest{Name: name, Mode: mode, Entrypoint: args.StringOr("entrypoint", "")}
	if obj, ok := args.Object("args"); ok {
		req.Args = obj
	}

	code, payload, err := t.invoker.Invoke(ctx, req)
	if err != nil {
		return fail("%v", err)
	}
	if code != http.StatusOK {
		msg, _ := payload["error"].(string)
		if msg == "" {
			msg = fmt.Sprintf("tool %s failed with status %d", name, code)
		}
		return Result{"ok": false, "code": code, "error": msg, "payload": payload}
	}
	return Result{"ok": true, "code": code, "result": payload}
}
