package tools

import (
	"bufio"
	"bytes"
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/vinayprograms/station/internal/sandbox"
	"github.com/vinayprograms/station/internal/workspace"
)

const (
	maxGrepHits  = 200
	maxGrepText  = 240
	binarySniffN = 8000
)

// Hit is one grep match.
type Hit struct {
	File string `json:"file"`
	Line int    `json:"line"`
	Text string `json:"text"`
}

func grepTool(ctx context.Context, ec *ExecContext, args Args) Result {
	pattern, ok := args.String("pattern")
	if !ok || pattern == "" {
		return fail("pattern is required")
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return fail("invalid pattern: %v", err)
	}
	path := args.StringOr("path", ".")

	abs, err := sandbox.CheckDir(ec.Root, path)
	if err != nil {
		return denial(err.Error())
	}
	info, err := os.Stat(abs)
	if err != nil {
		return fail("path not found: %s", path)
	}

	s := &grepScan{root: ec.Root, re: re}
	if !info.IsDir() {
		s.file(abs)
	} else {
		fromRoot := abs == ec.Root
		filepath.WalkDir(abs, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if ctx.Err() != nil {
				return fs.SkipAll
			}
			if p == abs {
				return nil
			}
			name := d.Name()
			if strings.HasPrefix(name, ".") {
				if d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			if fromRoot && filepath.Dir(p) == abs && (!d.IsDir() || !workspace.IsSafeDir(name)) {
				if d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			if d.IsDir() || !d.Type().IsRegular() {
				return nil
			}
			if s.file(p) {
				return fs.SkipAll
			}
			return nil
		})
	}

	hits := s.hits
	if hits == nil {
		hits = []Hit{}
	}
	return Result{"ok": true, "hits": hits, "count": len(hits), "truncated": s.truncated}
}

type grepScan struct {
	root      string
	re        *regexp.Regexp
	hits      []Hit
	truncated bool
}

// file scans one file and reports whether the hit cap was reached.
func (s *grepScan) file(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	br := bufio.NewReader(f)
	if head, _ := br.Peek(binarySniffN); bytes.IndexByte(head, 0) >= 0 {
		return false
	}

	rel, err := filepath.Rel(s.root, path)
	if err != nil {
		rel = path
	}

	sc := bufio.NewScanner(br)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := sc.Text()
		if !s.re.MatchString(text) {
			continue
		}
		if len(s.hits) >= maxGrepHits {
			s.truncated = true
			return true
		}
		s.hits = append(s.hits, Hit{File: rel, Line: line, Text: truncate(text, maxGrepText)})
	}
	return false
}
