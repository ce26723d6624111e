// Package state keeps the bounded history of agent runs.
//
// The history lives in a single JSON file:
//
//	{"version": 1, "history": [...], "last_run": {...}}
//
// Loading tolerates a missing or corrupt file. Saving only happens in apply
// mode or when forced, and is serialized across processes with a file lock.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/vinayprograms/station/internal/logging"
)

const (
	// Version is the current file format version.
	Version = 1
	// DefaultHistoryLimit is the number of runs kept.
	DefaultHistoryLimit = 50

	maxTaskChars    = 500
	maxExcerptChars = 2000
	maxTouched      = 200
)

// RunRecord is one completed agent or pipeline run.
type RunRecord struct {
	ID                   string    `json:"id"`
	Timestamp            time.Time `json:"timestamp"`
	Model                string    `json:"model"`
	BackendURL           string    `json:"backend_url"`
	Apply                bool      `json:"apply"`
	AllowDestructive     bool      `json:"allow_destructive"`
	Task                 string    `json:"task"`
	ResultExcerpt        string    `json:"result_excerpt"`
	Status               string    `json:"status"`
	Pipeline             string    `json:"pipeline,omitempty"`
	Steps                int       `json:"steps,omitempty"`
	VerificationCommands []string  `json:"verification_commands"`
	Touched              []string  `json:"touched"`
}

// File is the persisted layout.
type File struct {
	Version int         `json:"version"`
	History []RunRecord `json:"history"`
	LastRun *RunRecord  `json:"last_run"`
}

// RunMeta is what a caller knows at the end of a run.
type RunMeta struct {
	Model                string
	BackendURL           string
	Apply                bool
	AllowDestructive     bool
	Task                 string
	Result               string
	Status               string
	Pipeline             string
	Steps                int
	VerificationCommands []string
	Touched              []string
}

// Archiver mirrors saved records into long-term storage.
type Archiver interface {
	Archive(rec RunRecord) error
	Close() error
}

// ErrNotPersisted is returned by Save when neither apply nor force is set.
var ErrNotPersisted = errors.New("run state not persisted in dry-run mode")

// Store holds the history in memory and persists it on request.
type Store struct {
	mu      sync.Mutex
	path    string
	limit   int
	data    File
	pending []RunRecord
	logger  *logging.Logger
	archive Archiver
	now     func() time.Time
}

// NewStore creates a store for path keeping at most limit runs.
func NewStore(path string, limit int) *Store {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &Store{
		path:   path,
		limit:  limit,
		data:   empty(),
		logger: logging.Discard(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func empty() File {
	return File{Version: Version, History: []RunRecord{}}
}

// SetLogger sets the logger used for load and save warnings.
func (s *Store) SetLogger(l *logging.Logger) {
	if l != nil {
		s.logger = l.WithComponent("state")
	}
}

// SetArchive attaches an archive that receives every saved record.
func (s *Store) SetArchive(a Archiver) {
	s.archive = a
}

// Path returns the state file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the state file. Missing or unreadable state yields an empty
// history; it is never an error.
func (s *Store) Load() File {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = s.readFile()
	s.pending = nil
	return s.snapshot()
}

func (s *Store) readFile() File {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("state_read_failed", map[string]interface{}{"path": s.path, "error": err.Error()})
		}
		return empty()
	}
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		s.logger.Warn("state_corrupt", map[string]interface{}{"path": s.path, "error": err.Error()})
		return empty()
	}
	if f.Version == 0 {
		f.Version = Version
	}
	if f.History == nil {
		f.History = []RunRecord{}
	}
	return f
}

// Record builds a RunRecord from meta, appends it to the history and makes
// it the last run.
func (s *Store) Record(meta RunMeta) RunRecord {
	rec := RunRecord{
		ID:                   uuid.NewString(),
		Timestamp:            s.now(),
		Model:                meta.Model,
		BackendURL:           meta.BackendURL,
		Apply:                meta.Apply,
		AllowDestructive:     meta.AllowDestructive,
		Task:                 truncate(meta.Task, maxTaskChars),
		ResultExcerpt:        truncate(meta.Result, maxExcerptChars),
		Status:               meta.Status,
		Pipeline:             meta.Pipeline,
		Steps:                meta.Steps,
		VerificationCommands: nonNil(meta.VerificationCommands),
		Touched:              normalizeTouched(meta.Touched),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.History = capHistory(append(s.data.History, rec), s.limit)
	last := rec
	s.data.LastRun = &last
	s.pending = append(s.pending, rec)
	return rec
}

// History returns the in-memory history, oldest first.
func (s *Store) History() []RunRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]RunRecord(nil), s.data.History...)
}

// LastRun returns the most recent run, if any.
func (s *Store) LastRun() (RunRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data.LastRun == nil {
		return RunRecord{}, false
	}
	return *s.data.LastRun, true
}

// Save persists the history when apply or force is set and returns
// ErrNotPersisted otherwise. Records written by other processes since Load
// are merged in before writing.
func (s *Store) Save(apply, force bool) error {
	if !apply && !force {
		return ErrNotPersisted
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	lock := flock.New(s.path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("failed to lock state file: %w", err)
	}
	defer lock.Unlock()

	disk := s.readFile()
	merged := mergeHistory(disk.History, s.data.History, s.limit)
	out := File{Version: Version, History: merged, LastRun: s.data.LastRun}
	if out.LastRun == nil {
		out.LastRun = disk.LastRun
	}
	if err := writeAtomic(s.path, out); err != nil {
		return err
	}
	s.data = out

	if s.archive != nil {
		for _, rec := range s.pending {
			if err := s.archive.Archive(rec); err != nil {
				s.logger.Warn("archive_failed", map[string]interface{}{"id": rec.ID, "error": err.Error()})
			}
		}
	}
	s.pending = nil
	return nil
}

func (s *Store) snapshot() File {
	f := File{Version: s.data.Version, History: append([]RunRecord{}, s.data.History...)}
	if s.data.LastRun != nil {
		last := *s.data.LastRun
		f.LastRun = &last
	}
	return f
}

// mergeHistory unions two histories by ID, orders them by time and keeps the
// newest limit entries.
func mergeHistory(disk, mem []RunRecord, limit int) []RunRecord {
	seen := make(map[string]bool, len(disk)+len(mem))
	out := make([]RunRecord, 0, len(disk)+len(mem))
	for _, list := range [][]RunRecord{disk, mem} {
		for _, rec := range list {
			if seen[rec.ID] {
				continue
			}
			seen[rec.ID] = true
			out = append(out, rec)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return capHistory(out, limit)
}

func capHistory(h []RunRecord, limit int) []RunRecord {
	if len(h) <= limit {
		return h
	}
	return append([]RunRecord(nil), h[len(h)-limit:]...)
}

func writeAtomic(path string, f File) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(filepath.Dir(path), ".state-*.json.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp state file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}

func normalizeTouched(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, t := range in {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	sort.Strings(out)
	if len(out) > maxTouched {
		out = out[:maxTouched]
	}
	return out
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
