package history

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/vinayprograms/station/internal/state"
)

// Recent returns the newest limit records, newest first.
func Recent(records []state.RunRecord, limit int) []state.RunRecord {
	out := make([]state.RunRecord, 0, len(records))
	for i := len(records) - 1; i >= 0; i-- {
		out = append(out, records[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// WriteJSON writes records as an indented JSON array.
func WriteJSON(w io.Writer, records []state.RunRecord) error {
	if records == nil {
		records = []state.RunRecord{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}

// WriteTable writes a styled table, one run per line.
func WriteTable(w io.Writer, records []state.RunRecord) error {
	if len(records) == 0 {
		_, err := fmt.Fprintln(w, dimStyle.Render("no runs recorded"))
		return err
	}

	cols := []string{"WHEN", "STATUS", "MODE", "RUN", "STEPS", "TOUCHED", "TASK"}
	widths := []int{19, 9, 7, 18, 5, 7, 0}
	sep := dimStyle.Render(" │ ")

	var b strings.Builder
	var head []string
	for i, c := range cols {
		head = append(head, pad(headerStyle.Render(c), widths[i]))
	}
	b.WriteString(strings.Join(head, sep) + "\n")

	for _, r := range records {
		name := "agent"
		if r.Pipeline != "" {
			name = "pipeline:" + r.Pipeline
		}
		mode := "dry-run"
		modeStyle := dimStyle
		if r.Apply {
			mode = "apply"
			modeStyle = applyStyle
		}
		row := []string{
			pad(dimStyle.Render(r.Timestamp.Local().Format("2006-01-02 15:04:05")), widths[0]),
			pad(statusStyle(r.Status).Render(r.Status), widths[1]),
			pad(modeStyle.Render(mode), widths[2]),
			pad(clip(name, widths[3]), widths[3]),
			pad(fmt.Sprint(r.Steps), widths[4]),
			pad(fmt.Sprint(len(r.Touched)), widths[5]),
			clip(oneLine(r.Task), 60),
		}
		b.WriteString(strings.Join(row, sep) + "\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// pad right-pads a possibly styled cell to width visible columns.
func pad(s string, width int) string {
	if width <= 0 {
		return s
	}
	if n := lipgloss.Width(s); n < width {
		return s + strings.Repeat(" ", width-n)
	}
	return s
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
