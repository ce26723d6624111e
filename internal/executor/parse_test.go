package executor

import (
	"reflect"
	"testing"
)

func TestParseReply(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		wantTools []string
		wantFinal string
		hasFinal  bool
	}{
		{
			name: "prose only",
			text: "I will now read the file.",
		},
		{
			name:      "single call with prose",
			text:      "Reading.\n  {\"tool\": \"fs_read\", \"args\": {\"path\": \"config/a\"}}  \nthanks",
			wantTools: []string{"fs_read"},
		},
		{
			name:      "several calls keep order",
			text:      `{"tool":"b"}` + "\n" + `{"tool":"a"}` + "\n" + `{"tool":"c"}`,
			wantTools: []string{"b", "a", "c"},
		},
		{
			name: "malformed and non-object lines ignored",
			text: "{not json}\n[1,2]\n{\"tool\": 5}\n{\"other\": 1}\n\"{\\\"tool\\\":\\\"x\\\"}\"",
		},
		{
			name:      "final wins",
			text:      `{"tool":"shell","args":{"cmd":"ls"}}` + "\n" + `{"final": "done"}`,
			wantTools: []string{"shell"},
			wantFinal: "done",
			hasFinal:  true,
		},
		{
			name:      "non-string final",
			text:      `{"final": {"summary": "ok"}}`,
			wantFinal: `{"summary":"ok"}`,
			hasFinal:  true,
		},
		{
			name:      "multi-line json is not a call",
			text:      "{\n\"tool\": \"fs_read\"\n}",
			wantTools: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := ParseReply(tt.text)
			var got []string
			for _, c := range r.Calls {
				got = append(got, c.Tool)
			}
			if !reflect.DeepEqual(got, tt.wantTools) {
				t.Errorf("tools = %v, want %v", got, tt.wantTools)
			}
			if (r.Final != nil) != tt.hasFinal {
				t.Fatalf("final present = %v, want %v", r.Final != nil, tt.hasFinal)
			}
			if tt.hasFinal && *r.Final != tt.wantFinal {
				t.Errorf("final = %q, want %q", *r.Final, tt.wantFinal)
			}
		})
	}
}

func TestParseReply_ArgsDefaultEmpty(t *testing.T) {
	r := ParseReply(`{"tool": "fs_list"}`)
	if len(r.Calls) != 1 || r.Calls[0].Args == nil {
		t.Fatalf("calls = %+v", r.Calls)
	}
	r = ParseReply(`{"tool": "fs_read", "args": {"path": "data/x"}}`)
	if p, _ := r.Calls[0].Args.String("path"); p != "data/x" {
		t.Errorf("path = %q", p)
	}
}

func TestExtractVerification(t *testing.T) {
	text := "Updated config/station.toml.\n\n" +
		"## Verification\n" +
		"- `station tools`\n" +
		"- run `cat config/station.toml` and `ls data`\n" +
		"1. curl http://localhost:11434/api/tags\n\n" +
		"## Rollback\n" +
		"- `cp backups/station.toml config/station.toml`\n" +
		"$ git diff\n"

	got := ExtractVerification(text)
	want := []string{
		"station tools",
		"cat config/station.toml",
		"ls data",
		"curl http://localhost:11434/api/tags",
		"git diff",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ExtractVerification = %q\nwant %q", got, want)
	}
}

func TestExtractVerification_InlineLabel(t *testing.T) {
	got := ExtractVerification("Done. Verify: `ls outputs` then `cat outputs/report.md`.")
	if !reflect.DeepEqual(got, []string{"ls outputs", "cat outputs/report.md"}) {
		t.Errorf("got %v", got)
	}
	got = ExtractVerification("Verify: `ls outputs`\nRollback: `rm outputs/x`")
	if !reflect.DeepEqual(got, []string{"ls outputs"}) {
		t.Errorf("got %v", got)
	}
}
