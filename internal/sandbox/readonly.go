package sandbox

import (
	"strings"
)

// argvCheck inspects the arguments of one allow-listed executable in
// dry-run mode and returns a non-empty reason to deny.
type argvCheck func(args []string) string

var argvChecks = map[string]argvCheck{
	"git":    gitReadOnly,
	"docker": dockerReadOnly,
	"curl":   curlReadOnly,
}

// gitReadSubcommands are the porcelain and plumbing commands that only read
// the repository. Aliases are never consulted for these names.
var gitReadSubcommands = map[string]bool{
	"status": true, "log": true, "diff": true, "show": true, "blame": true,
	"describe": true, "shortlog": true, "grep": true, "rev-parse": true,
	"rev-list": true, "ls-files": true, "ls-tree": true, "cat-file": true,
	"branch": true, "remote": true, "config": true, "version": true,
}

// gitValueOptions are global options whose value is the next argument.
var gitValueOptions = map[string]bool{
	"-C": true, "--git-dir": true, "--work-tree": true, "--namespace": true, "--super-prefix": true,
}

// gitConfigReads are the git config modes that do not write.
var gitConfigReads = map[string]bool{
	"--get": true, "--get-all": true, "--get-regexp": true, "--get-urlmatch": true,
	"--list": true, "-l": true, "get": true, "list": true,
}

var gitBranchWrites = map[string]bool{
	"-d": true, "-D": true, "-m": true, "-M": true, "-c": true, "-C": true, "-f": true,
	"--delete": true, "--move": true, "--copy": true, "--force": true,
	"-u": true, "--set-upstream-to": true, "--unset-upstream": true, "--edit-description": true,
	"--track": true, "--no-track": true,
}

func gitReadOnly(args []string) string {
	i := 0
	for ; i < len(args); i++ {
		a := args[i]
		if !strings.HasPrefix(a, "-") {
			break
		}
		name := a
		if eq := strings.IndexByte(a, '='); eq >= 0 {
			name = a[:eq]
		}
		switch {
		case name == "-c" || strings.HasPrefix(a, "-c") && !strings.HasPrefix(a, "--"):
			return "git -c overrides configuration"
		case name == "--config-env" || name == "--exec-path":
			return "git " + name + " is not allowed in dry-run"
		case gitValueOptions[name] && !strings.Contains(a, "="):
			i++
		}
	}
	if i >= len(args) {
		return ""
	}
	sub, rest := args[i], args[i+1:]
	if !gitReadSubcommands[sub] {
		return "git " + sub + " is not a read-only subcommand"
	}

	for _, a := range rest {
		if a == "--output" || strings.HasPrefix(a, "--output=") {
			return "git --output writes a file"
		}
	}
	switch sub {
	case "grep":
		for _, a := range rest {
			if strings.HasPrefix(a, "-O") || strings.HasPrefix(a, "--open-files-in-pager") {
				return "git grep -O runs a pager command"
			}
		}
	case "branch":
		listing := false
		for _, a := range rest {
			if gitBranchWrites[a] || strings.HasPrefix(a, "--set-upstream-to=") || strings.HasPrefix(a, "--track=") {
				return "git branch " + a + " changes branches"
			}
			if a == "--list" || a == "-l" {
				listing = true
			}
		}
		for _, a := range rest {
			if !strings.HasPrefix(a, "-") && !listing {
				return "git branch <name> creates a branch"
			}
		}
	case "remote":
		for _, a := range rest {
			if strings.HasPrefix(a, "-") {
				continue
			}
			if a != "show" && a != "get-url" {
				return "git remote " + a + " changes remotes"
			}
			break
		}
	case "config":
		for _, a := range rest {
			if gitConfigReads[a] {
				return ""
			}
		}
		return "git config without --get or --list writes configuration"
	}
	return ""
}

var dockerReadSubcommands = map[string]bool{
	"ps": true, "images": true, "version": true, "info": true, "inspect": true,
	"logs": true, "top": true, "port": true, "diff": true, "history": true, "stats": true,
}

// dockerReadManagement lists read-only actions per management command.
var dockerReadManagement = map[string]map[string]bool{
	"container": {"ls": true, "list": true, "ps": true, "inspect": true, "logs": true, "top": true, "port": true, "diff": true, "stats": true},
	"image":     {"ls": true, "list": true, "inspect": true, "history": true},
	"volume":    {"ls": true, "list": true, "inspect": true},
	"network":   {"ls": true, "list": true, "inspect": true},
	"system":    {"df": true, "info": true},
	"context":   {"ls": true, "list": true, "show": true, "inspect": true},
	"compose":   {"ps": true, "ls": true, "logs": true, "config": true, "images": true, "top": true, "version": true},
}

var dockerValueOptions = map[string]bool{
	"-H": true, "--host": true, "-c": true, "--context": true, "--config": true,
	"-l": true, "--log-level": true, "--tlscacert": true, "--tlscert": true, "--tlskey": true,
}

var composeValueOptions = map[string]bool{
	"-f": true, "--file": true, "-p": true, "--project-name": true, "--profile": true,
	"--env-file": true, "--project-directory": true, "--ansi": true, "--progress": true, "--parallel": true,
}

// skipOptions returns the index of the first non-option argument, stepping
// over the values of options listed in withValue.
func skipOptions(args []string, withValue map[string]bool) int {
	i := 0
	for ; i < len(args); i++ {
		a := args[i]
		if !strings.HasPrefix(a, "-") {
			break
		}
		if withValue[a] {
			i++
		}
	}
	return i
}

func dockerReadOnly(args []string) string {
	i := skipOptions(args, dockerValueOptions)
	if i >= len(args) {
		return ""
	}
	sub := args[i]
	if dockerReadSubcommands[sub] {
		return ""
	}
	actions, ok := dockerReadManagement[sub]
	if !ok {
		return "docker " + sub + " is not a read-only command"
	}
	rest := args[i+1:]
	opts := map[string]bool(nil)
	if sub == "compose" {
		opts = composeValueOptions
	}
	j := skipOptions(rest, opts)
	if j >= len(rest) {
		return ""
	}
	if !actions[rest[j]] {
		return "docker " + sub + " " + rest[j] + " is not a read-only command"
	}
	return ""
}

// curl short options that write files or send a request body.
const curlWriteShort = "oOdFTDcK"

// curl short options that take a value; the rest of the cluster or the next
// argument is consumed.
const curlValueShort = "AbCeEHmruUwxyYztQPX"

var curlWriteLong = []string{
	"--output", "--remote-name", "--output-dir", "--data", "--json", "--form",
	"--upload-file", "--dump-header", "--cookie-jar", "--config", "--trace",
	"--stderr", "--etag-save", "--hsts", "--alt-svc", "--libcurl", "--create-dirs",
}

var writeMethods = map[string]bool{"POST": true, "PUT": true, "PATCH": true, "DELETE": true}

func curlReadOnly(args []string) string {
	for i := 0; i < len(args); i++ {
		a := args[i]
		switch {
		case strings.HasPrefix(a, "--"):
			name, val, hasVal := strings.Cut(a, "=")
			for _, w := range curlWriteLong {
				if name == w || strings.HasPrefix(name, w+"-") {
					return "curl " + name + " writes or uploads"
				}
			}
			if name == "--request" {
				if !hasVal && i+1 < len(args) {
					i++
					val = args[i]
				}
				if writeMethods[strings.ToUpper(val)] {
					return "curl --request " + val + " is not a read"
				}
			}
		case strings.HasPrefix(a, "-") && len(a) > 1:
			cluster := a[1:]
			for k := 0; k < len(cluster); k++ {
				c := cluster[k]
				if strings.IndexByte(curlWriteShort, c) >= 0 {
					return "curl -" + string(c) + " writes or uploads"
				}
				if strings.IndexByte(curlValueShort, c) < 0 {
					continue
				}
				val := cluster[k+1:]
				if val == "" && i+1 < len(args) {
					i++
					val = args[i]
				}
				if c == 'X' && writeMethods[strings.ToUpper(val)] {
					return "curl -X " + val + " is not a read"
				}
				break
			}
		}
	}
	return ""
}
