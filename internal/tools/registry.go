// Package tools provides the tool registry and the built-in workspace tools.
//
// Every tool validates its input against the sandbox before touching a
// resource and reports failures inside its Result. Nothing a tool does
// escapes Dispatch as a panic or error.
package tools

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// Result is the JSON-serializable outcome of a tool call. Every result has
// an "ok" key; failed results carry "error".
type Result map[string]any

// OK reports the ok flag of the result.
func (r Result) OK() bool {
	ok, _ := r["ok"].(bool)
	return ok
}

// ErrorText returns the error text of a failed result. Result does not
// implement error.
func (r Result) ErrorText() string {
	s, _ := r["error"].(string)
	return s
}

// Denied reports whether the failure was a sandbox denial.
func (r Result) Denied() bool {
	d, _ := r["denied"].(bool)
	return d
}

func fail(format string, args ...any) Result {
	return Result{"ok": false, "error": fmt.Sprintf(format, args...)}
}

func denial(reason string) Result {
	return Result{"ok": false, "error": reason, "denied": true}
}

// ExecContext is the per-run state handed to every tool call. It belongs to
// a single conversation loop and must not be shared between runs.
type ExecContext struct {
	Root             string
	Apply            bool
	AllowDestructive bool

	touched []string
}

// NewExecContext creates a context for one run. The root is stored in its
// absolute, symlink-resolved form.
func NewExecContext(root string, apply, allowDestructive bool) *ExecContext {
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	if resolved, err := filepath.EvalSymlinks(root); err == nil {
		root = resolved
	}
	return &ExecContext{
		Root:             root,
		Apply:            apply,
		AllowDestructive: allowDestructive,
	}
}

// Touch appends a resource identifier to the touched log.
func (c *ExecContext) Touch(id string) {
	c.touched = append(c.touched, id)
}

// Touched returns a copy of the touched log in insertion order.
func (c *ExecContext) Touched() []string {
	out := make([]string, len(c.touched))
	copy(out, c.touched)
	return out
}

// Handler executes one tool call.
type Handler func(ctx context.Context, ec *ExecContext, args Args) Result

// Tool is a named capability exposed to the model.
type Tool struct {
	Name        string
	Description string
	// Parameters maps argument names to a short description.
	Parameters map[string]string
	Handler    Handler
}

// Definition is the model-facing description of a tool.
type Definition struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Parameters  map[string]string `json:"parameters"`
}

var toolNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Registry holds the registered tools.
type Registry struct {
	tools map[string]Tool
	order []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register validates and adds a tool.
func (r *Registry) Register(t Tool) error {
	if !toolNamePattern.MatchString(t.Name) {
		return fmt.Errorf("invalid tool name %q", t.Name)
	}
	if t.Handler == nil {
		return fmt.Errorf("tool %s has no handler", t.Name)
	}
	if _, exists := r.tools[t.Name]; exists {
		return fmt.Errorf("tool %s already registered", t.Name)
	}
	r.tools[t.Name] = t
	r.order = append(r.order, t.Name)
	return nil
}

// Has reports whether a tool is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.tools[name]
	return ok
}

// Names returns tool names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Dispatch runs the named tool. Unknown tools and handler panics become
// failed results.
func (r *Registry) Dispatch(ctx context.Context, ec *ExecContext, name string, args Args) (res Result) {
	t, ok := r.tools[name]
	if !ok {
		return fail("unknown tool: %s", name)
	}
	defer func() {
		if p := recover(); p != nil {
			res = fail("tool %s crashed: %v", name, p)
		}
	}()
	if args == nil {
		args = Args{}
	}
	res = t.Handler(ctx, ec, args)
	if res == nil {
		return fail("tool %s returned no result", name)
	}
	if _, ok := res["ok"].(bool); !ok {
		res["ok"] = false
	}
	return res
}

// Definitions returns the model-facing tool definitions in registration order.
func (r *Registry) Definitions() []Definition {
	defs := make([]Definition, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		defs = append(defs, Definition{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Parameters,
		})
	}
	return defs
}

// Catalog renders the tool list for a system prompt.
func (r *Registry) Catalog() string {
	var b strings.Builder
	for _, d := range r.Definitions() {
		params := make([]string, 0, len(d.Parameters))
		for p := range d.Parameters {
			params = append(params, p)
		}
		sort.Strings(params)
		fmt.Fprintf(&b, "- %s(%s): %s\n", d.Name, strings.Join(params, ", "), d.Description)
		for _, p := range params {
			fmt.Fprintf(&b, "    %s: %s\n", p, d.Parameters[p])
		}
	}
	return b.String()
}
