package sandbox

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/shlex"
)

// Decision is the outcome of a command gate.
type Decision struct {
	Allowed bool
	Reason  string
}

func allow() Decision {
	return Decision{Allowed: true}
}

func denied(format string, args ...interface{}) Decision {
	return Decision{Reason: fmt.Sprintf(format, args...)}
}

// Classification describes a command by its executable.
type Classification struct {
	Binary string
	Risky  bool
}

var riskyBinaries = map[string]bool{
	"rm": true, "rmdir": true, "mv": true,
	"dd": true, "mkfs": true, "fdisk": true, "parted": true, "shred": true, "wipefs": true,
	"sudo": true, "su": true, "doas": true,
	"kill": true, "killall": true, "pkill": true,
	"shutdown": true, "reboot": true, "halt": true, "poweroff": true,
	"systemctl": true, "service": true, "launchctl": true,
	"chmod": true, "chown": true, "chgrp": true,
	"truncate": true,
}

var readOnlyBinaries = map[string]bool{
	"ls": true, "pwd": true, "cat": true, "head": true, "tail": true, "wc": true,
	"find": true, "grep": true, "rg": true, "stat": true, "file": true,
	"du": true, "df": true, "tree": true,
	"git": true, "docker": true,
	"curl": true, "ping": true,
	"which": true, "uname": true, "echo": true, "date": true,
	"station": true,
}

// versionBinaries may be run with a single version flag in dry-run mode.
var versionBinaries = map[string]bool{
	"python": true, "python3": true, "node": true, "npm": true, "go": true,
	"git": true, "docker": true, "curl": true, "ollama": true, "station": true,
	"pip": true, "pip3": true, "uv": true, "cargo": true, "rustc": true,
	"ruby": true, "sqlite3": true,
}

var versionFlags = map[string]bool{
	"--version": true,
	"-V":        true,
}

// versionSubcommand lists executables where "version" is a subcommand rather
// than a script name.
var versionSubcommand = map[string]bool{
	"go": true, "git": true, "docker": true, "station": true, "cargo": true, "npm": true,
}

func isVersionQuery(argv []string) bool {
	if len(argv) != 2 || !(versionBinaries[argv[0]] || readOnlyBinaries[argv[0]]) {
		return false
	}
	return versionFlags[argv[1]] || argv[1] == "version" && versionSubcommand[argv[0]]
}

// writePatterns match command lines that mutate state even though the
// executable is on the read-only list. git, docker and curl are checked
// argument by argument instead (see argvChecks).
var writePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^find\b.*\s-(?:delete|exec|execdir|ok|okdir|fprint\S*|fls)\b`),
	regexp.MustCompile(`^station\s+(?:up|down|install|uninstall|enable|disable|apply|reset|restore|start|stop|restart|pull)\b`),
	regexp.MustCompile(`^station\b.*\s--apply\b`),
	regexp.MustCompile(`^tree\b.*\s-o\b`),
	regexp.MustCompile(`^rg\b.*\s--pre(?:\s|=|$)`),
	regexp.MustCompile(`^date\b.*\s(?:-s|--set)\b`),
}

// SplitCommand splits a command line on whitespace, honouring quotes.
func SplitCommand(cmd string) ([]string, error) {
	argv, err := shlex.Split(cmd)
	if err != nil {
		return nil, fmt.Errorf("failed to split command: %w", err)
	}
	return argv, nil
}

// CommandLine renders argv the way it is reported in denials and logs.
func CommandLine(argv []string) string {
	return strings.Join(argv, " ")
}

// ClassifyCommand marks a command risky by executable name only.
func ClassifyCommand(argv []string) Classification {
	if len(argv) == 0 {
		return Classification{}
	}
	bin := filepath.Base(argv[0])
	risky := riskyBinaries[bin] || strings.HasPrefix(bin, "mkfs.")
	return Classification{Binary: bin, Risky: risky}
}

// DryRunGate allows only read-only commands. Executables are matched by bare
// name; a path such as scripts/cat is never treated as cat.
func DryRunGate(argv []string) Decision {
	if len(argv) == 0 {
		return denied("empty command")
	}
	bin := argv[0]
	if strings.ContainsRune(bin, '/') || strings.ContainsRune(bin, filepath.Separator) {
		return denied("dry-run: path-qualified executable %s is not allowed", bin)
	}
	if isVersionQuery(argv) {
		return allow()
	}
	if !readOnlyBinaries[bin] {
		return denied("dry-run: %s is not in the read-only command allow-list", bin)
	}
	if check := argvChecks[bin]; check != nil {
		if reason := check(argv[1:]); reason != "" {
			return denied("dry-run: write subcommand blocked: %s (%s)", CommandLine(argv), reason)
		}
	}
	line := bin
	if len(argv) > 1 {
		line += " " + CommandLine(argv[1:])
	}
	for _, re := range writePatterns {
		if re.MatchString(line) {
			return denied("dry-run: write subcommand blocked: %s", CommandLine(argv))
		}
	}
	return allow()
}

// ApplyGate denies risky commands unless destructive operations are allowed.
func ApplyGate(argv []string, allowDestructive bool) Decision {
	if len(argv) == 0 {
		return denied("empty command")
	}
	if ClassifyCommand(argv).Risky && !allowDestructive {
		return denied("blocked risky command without --allow-destructive: %s", CommandLine(argv))
	}
	return allow()
}

// Gate combines the checks for one shell invocation. Risky commands need
// both apply mode and allowDestructive; in dry-run mode they are refused by
// the read-only allow-list even with allowDestructive set.
func Gate(argv []string, apply, allowDestructive bool) Decision {
	if d := ApplyGate(argv, allowDestructive); !d.Allowed {
		return d
	}
	if !apply {
		return DryRunGate(argv)
	}
	return allow()
}
