// Package session records per-run JSONL event logs.
//
// A log file starts with a header record, grows by one event record per
// line while the run is in progress, and ends with a footer holding the
// final status. Writing line by line lets `station history --live` follow a
// run as it happens.
package session

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status constants for sessions.
const (
	StatusRunning   = "running"
	StatusFinal     = "final"
	StatusFailed    = "failed"
	StatusExhausted = "exhausted"
)

// Event types.
const (
	EventSystem    = "system"
	EventUser      = "user"
	EventAssistant = "assistant"

	EventToolCall   = "tool_call"
	EventToolResult = "tool_result"
	EventReminder   = "reminder"

	EventPhaseStart = "phase_start"
	EventPhaseEnd   = "phase_end"

	EventFinal     = "final"
	EventFailed    = "failed"
	EventExhausted = "exhausted"
)

// Session is one recorded agent or pipeline run.
type Session struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Task      string    `json:"task"`
	Apply     bool      `json:"apply"`
	Status    string    `json:"status"`
	Result    string    `json:"result,omitempty"`
	Error     string    `json:"error,omitempty"`
	Events    []Event   `json:"events"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Event is a single entry in the session log.
type Event struct {
	SeqID     uint64    `json:"seq"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	Phase string `json:"phase,omitempty"`
	Step  int    `json:"step,omitempty"`

	Content string                 `json:"content,omitempty"`
	Tool    string                 `json:"tool,omitempty"`
	Args    map[string]interface{} `json:"args,omitempty"`

	// nil while in progress
	Success    *bool  `json:"success,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms,omitempty"`
}

// JSONL record types.
const (
	RecordTypeHeader = "header"
	RecordTypeEvent  = "event"
	RecordTypeFooter = "footer"
)

// JSONLRecord is one line of a session file.
type JSONLRecord struct {
	RecordType string `json:"_type"`

	// header
	ID        string    `json:"id,omitempty"`
	Name      string    `json:"name,omitempty"`
	Task      string    `json:"task,omitempty"`
	Apply     bool      `json:"apply,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`

	*Event `json:",omitempty"`

	// footer
	Status     string    `json:"status,omitempty"`
	Result     string    `json:"result,omitempty"`
	FinalError string    `json:"final_error,omitempty"`
	UpdatedAt  time.Time `json:"updated_at,omitempty"`
}

// FileStore keeps session files in one directory.
type FileStore struct {
	dir string
}

// NewFileStore creates the directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Path returns the file of a session.
func (s *FileStore) Path(id string) string {
	return PathIn(s.dir, id)
}

// PathIn returns the file of session id inside dir.
func PathIn(dir, id string) string {
	return filepath.Join(dir, id+".jsonl")
}

// Start creates a session file and writes its header.
func (s *FileStore) Start(name, task string, apply bool) (*Log, error) {
	now := time.Now().UTC()
	sess := &Session{
		ID:        uuid.NewString(),
		Name:      name,
		Task:      task,
		Apply:     apply,
		Status:    StatusRunning,
		Events:    []Event{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	l := &Log{path: s.Path(sess.ID), sess: sess}
	err := l.write(JSONLRecord{
		RecordType: RecordTypeHeader,
		ID:         sess.ID,
		Name:       name,
		Task:       task,
		Apply:      apply,
		CreatedAt:  now,
	})
	if err != nil {
		return nil, err
	}
	return l, nil
}

// Load reads a session file.
func (s *FileStore) Load(id string) (*Session, error) {
	return LoadFile(s.Path(id))
}

// List returns session IDs, most recently modified first.
func (s *FileStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	type item struct {
		id  string
		mod time.Time
	}
	var items []item
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".jsonl") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		items = append(items, item{strings.TrimSuffix(e.Name(), ".jsonl"), info.ModTime()})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].mod.After(items[j].mod) })
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.id
	}
	return ids, nil
}

// Log appends events of one running session.
type Log struct {
	mu   sync.Mutex
	path string
	sess *Session
	seq  uint64
}

// Session returns the in-memory session.
func (l *Log) Session() *Session {
	return l.sess
}

// Path returns the session file.
func (l *Log) Path() string {
	return l.path
}

// Record appends an event and returns its sequence number.
func (l *Log) Record(ev Event) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.seq++
	ev.SeqID = l.seq
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	l.sess.Events = append(l.sess.Events, ev)
	l.sess.UpdatedAt = ev.Timestamp
	return ev.SeqID, l.write(JSONLRecord{RecordType: RecordTypeEvent, Event: &ev})
}

// Finish writes the footer.
func (l *Log) Finish(status, result, errMsg string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.sess.Status = status
	l.sess.Result = result
	l.sess.Error = errMsg
	l.sess.UpdatedAt = time.Now().UTC()
	return l.write(JSONLRecord{
		RecordType: RecordTypeFooter,
		Status:     status,
		Result:     result,
		FinalError: errMsg,
		UpdatedAt:  l.sess.UpdatedAt,
	})
}

func (l *Log) write(record JSONLRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open session file: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	return nil
}

// LoadFile parses a session file. A missing footer leaves the status as
// running.
func LoadFile(path string) (*Session, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sess := &Session{Status: StatusRunning, Events: []Event{}}
	reader := bufio.NewReader(f)
	for {
		line, err := reader.ReadBytes('\n')
		line = bytes.TrimSpace(line)
		if len(line) > 0 {
			if perr := parseLine(line, sess); perr != nil {
				return nil, perr
			}
		}
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("error reading JSONL: %w", err)
		}
	}
	return sess, nil
}

func parseLine(line []byte, sess *Session) error {
	var record JSONLRecord
	if err := json.Unmarshal(line, &record); err != nil {
		return fmt.Errorf("failed to parse JSONL line: %w", err)
	}
	switch record.RecordType {
	case RecordTypeHeader:
		sess.ID = record.ID
		sess.Name = record.Name
		sess.Task = record.Task
		sess.Apply = record.Apply
		sess.CreatedAt = record.CreatedAt
		sess.UpdatedAt = record.CreatedAt
	case RecordTypeEvent:
		if record.Event != nil {
			sess.Events = append(sess.Events, *record.Event)
			sess.UpdatedAt = record.Event.Timestamp
		}
	case RecordTypeFooter:
		sess.Status = record.Status
		sess.Result = record.Result
		sess.Error = record.FinalError
		sess.UpdatedAt = record.UpdatedAt
	}
	return nil
}
