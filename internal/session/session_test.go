package session

import (
	"os"
	"strings"
	"testing"
	"time"
)

func TestFileStore_RoundTrip(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	log, err := store.Start("agent", "tidy the data dir", true)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	ok := false
	log.Record(Event{Type: EventUser, Step: 1, Content: "task"})
	log.Record(Event{Type: EventToolCall, Step: 1, Tool: "shell", Args: map[string]interface{}{"cmd": "ls"}})
	seq, err := log.Record(Event{Type: EventToolResult, Step: 1, Tool: "shell", Success: &ok, Error: "denied"})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if seq != 3 {
		t.Errorf("seq = %d, want 3", seq)
	}
	if err := log.Finish(StatusFinal, "done", ""); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	loaded, err := store.Load(log.Session().ID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Name != "agent" || loaded.Task != "tidy the data dir" || !loaded.Apply {
		t.Errorf("header = %+v", loaded)
	}
	if loaded.Status != StatusFinal || loaded.Result != "done" {
		t.Errorf("footer status=%s result=%s", loaded.Status, loaded.Result)
	}
	if len(loaded.Events) != 3 {
		t.Fatalf("events = %d", len(loaded.Events))
	}
	last := loaded.Events[2]
	if last.Error != "denied" || last.Success == nil || *last.Success {
		t.Errorf("event error not preserved: %+v", last)
	}
	if loaded.Events[1].Args["cmd"] != "ls" {
		t.Errorf("args = %v", loaded.Events[1].Args)
	}
}

func TestLoadFile_InProgress(t *testing.T) {
	store, _ := NewFileStore(t.TempDir())
	log, _ := store.Start("pipeline:review", "x", false)
	log.Record(Event{Type: EventPhaseStart, Phase: "supervisor"})

	sess, err := LoadFile(log.Path())
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if sess.Status != StatusRunning {
		t.Errorf("status = %s, want running", sess.Status)
	}
	if len(sess.Events) != 1 || sess.Events[0].Phase != "supervisor" {
		t.Errorf("events = %+v", sess.Events)
	}
}

func TestLoadFile_Corrupt(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/bad.jsonl"
	os.WriteFile(path, []byte("{not json\n"), 0644)
	if _, err := LoadFile(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestFileStore_List(t *testing.T) {
	store, _ := NewFileStore(t.TempDir())
	first, _ := store.Start("a", "", false)
	second, _ := store.Start("b", "", false)

	old := time.Now().Add(-time.Hour)
	os.Chtimes(first.Path(), old, old)

	ids, err := store.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(ids) != 2 || ids[0] != second.Session().ID {
		t.Errorf("ids = %v", ids)
	}
	if !strings.HasSuffix(store.Path(ids[1]), ".jsonl") {
		t.Error("path should end with .jsonl")
	}
}
