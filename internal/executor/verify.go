package executor

import (
	"regexp"
	"strings"
)

var (
	codeSpan    = regexp.MustCompile("`([^`]+)`")
	bulletStart = regexp.MustCompile(`^(?:[-*+]|\d+[.)])\s+`)
)

// ExtractVerification collects the verification commands of a final answer:
// lines prefixed with "$ " anywhere, and the items or code spans under a
// heading that mentions verification.
func ExtractVerification(text string) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(cmd string) {
		cmd = strings.TrimSpace(strings.Trim(strings.TrimSpace(cmd), "`"))
		if cmd == "" || seen[cmd] {
			return
		}
		seen[cmd] = true
		out = append(out, cmd)
	}

	inSection := false
	inFence := false
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if strings.HasPrefix(line, "```") {
			inFence = !inFence
			continue
		}
		if strings.HasPrefix(line, "$ ") {
			add(line[2:])
			continue
		}
		if inFence {
			if inSection {
				add(line)
			}
			continue
		}
		if line == "" {
			continue
		}

		if heading, rest, ok := splitHeading(line); ok {
			inSection = strings.Contains(strings.ToLower(heading), "verif")
			if inSection && rest != "" {
				addSpans(rest, add)
			}
			continue
		}
		if !inSection {
			continue
		}
		item := bulletStart.ReplaceAllString(line, "")
		if spans := codeSpan.FindAllStringSubmatch(item, -1); len(spans) > 0 {
			for _, m := range spans {
				add(m[1])
			}
		} else if item != line {
			add(item)
		}
	}
	return out
}

// splitHeading recognises markdown headings and "Label:" lines.
func splitHeading(line string) (heading, rest string, ok bool) {
	if strings.HasPrefix(line, "#") {
		return strings.TrimLeft(line, "# "), "", true
	}
	plain := strings.Trim(line, "*_")
	if i := strings.Index(plain, ":"); i > 0 && i < 40 && !strings.ContainsAny(plain[:i], "`$/") && !strings.HasPrefix(plain[i+1:], "//") {
		label := strings.Trim(plain[:i], "*_ ")
		if bulletStart.MatchString(label + " ") {
			return "", "", false
		}
		return label, strings.TrimSpace(strings.Trim(plain[i+1:], "*_")), true
	}
	return "", "", false
}

func addSpans(s string, add func(string)) {
	spans := codeSpan.FindAllStringSubmatch(s, -1)
	if len(spans) == 0 {
		add(s)
		return
	}
	for _, m := range spans {
		add(m[1])
	}
}
