package tools

import (
	"net/http"
	"time"
)

// Options configures the built-in tools.
type Options struct {
	ShellTimeout time.Duration
	HTTPTimeout  time.Duration
	HTTPClient   *http.Client
	Invoker      ToolInvoker
}

// NewDefault creates a registry with every built-in tool.
func NewDefault(opts Options) *Registry {
	if opts.ShellTimeout <= 0 {
		opts.ShellTimeout = DefaultShellTimeout
	}
	if opts.HTTPTimeout <= 0 {
		opts.HTTPTimeout = DefaultHTTPTimeout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}

	shell := &shellTool{timeout: opts.ShellTimeout}
	patch := &patchTool{timeout: opts.ShellTimeout}
	get := &httpGetTool{client: opts.HTTPClient, timeout: opts.HTTPTimeout}
	invoke := &aiToolRun{invoker: opts.Invoker}

	r := NewRegistry()
	for _, t := range []Tool{
		{
			Name:        "fs_read",
			Description: "Read a text file inside the workspace.",
			Parameters:  map[string]string{"path": "workspace-relative file path"},
			Handler:     fsRead,
		},
		{
			Name:        "fs_write",
			Description: "Write a file inside the workspace (only with --apply). Parent directories are created.",
			Parameters: map[string]string{
				"path":    "workspace-relative file path",
				"content": "full file content",
			},
			Handler: fsWrite,
		},
		{
			Name:        "fs_list",
			Description: "List the entries of a workspace directory.",
			Parameters:  map[string]string{"path": "workspace-relative directory, default \".\""},
			Handler:     fsList,
		},
		{
			Name:        "grep",
			Description: "Search files for a regular expression. Returns up to 200 hits.",
			Parameters: map[string]string{
				"pattern": "RE2 regular expression",
				"path":    "file or directory to search, default \".\"",
			},
			Handler: grepTool,
		},
		{
			Name:        "shell",
			Description: "Run a command without a shell. Dry-run allows read-only commands only.",
			Parameters: map[string]string{
				"cmd":     "command line string or argument list",
				"timeout": "seconds, default 60, max 600",
			},
			Handler: shell.run,
		},
		{
			Name:        "patch",
			Description: "Apply a unified diff (paths relative to the workspace, -p1 style).",
			Parameters:  map[string]string{"diff": "unified diff text"},
			Handler:     patch.run,
		},
		{
			Name:        "http_get",
			Description: "Fetch a URL with GET and return status, headers and the start of the body.",
			Parameters: map[string]string{
				"url":     "http or https URL",
				"timeout": "seconds, default 20",
			},
			Handler: get.run,
		},
		{
			Name:        "ai_tool_run",
			Description: "Run an installed AI tool through the dashboard. Dry-run allows mode \"test\" only.",
			Parameters: map[string]string{
				"name":       "installed tool name",
				"mode":       "\"run\" or \"test\"",
				"entrypoint": "optional entrypoint",
				"args":       "optional object of tool arguments",
			},
			Handler: invoke.run,
		},
	} {
		if err := r.Register(t); err != nil {
			panic(err)
		}
	}
	return r
}
