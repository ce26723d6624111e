package history

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/fsnotify/fsnotify"
	"github.com/muesli/reflow/wordwrap"

	"github.com/vinayprograms/station/internal/session"
)

var (
	barTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	liveStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("10"))
)

// Show opens a static pager over content.
func Show(title, content string) error {
	prog := tea.NewProgram(newPagerModel(title, content), tea.WithAltScreen(), tea.WithMouseCellMotion())
	_, err := prog.Run()
	return err
}

// Follow opens a pager over the session log at path and re-renders it each
// time the file grows.
func Follow(path string) error {
	render := func() (string, error) {
		sess, err := session.LoadFile(path)
		if err != nil {
			return "", err
		}
		var b strings.Builder
		RenderSession(&b, sess)
		return b.String(), nil
	}
	content, err := render()
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(path); err != nil {
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}

	m := newPagerModel("session (live)", content)
	m.render = render
	m.watcher = watcher
	prog := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())
	_, err = prog.Run()
	return err
}

// logChangedMsg reports a write to the followed file.
type logChangedMsg struct{}

type pagerModel struct {
	vp      viewport.Model
	title   string
	raw     string
	wrapped string
	ready   bool

	render  func() (string, error)
	watcher *fsnotify.Watcher
	updated time.Time

	search finder
}

func newPagerModel(title, content string) *pagerModel {
	return &pagerModel{title: title, raw: content}
}

func (m *pagerModel) live() bool {
	return m.watcher != nil
}

func (m *pagerModel) Init() tea.Cmd {
	if m.live() {
		return m.waitForWrite()
	}
	return nil
}

// waitForWrite blocks until the watched file is written, then settles for a
// moment so a burst of appends renders once.
func (m *pagerModel) waitForWrite() tea.Cmd {
	w := m.watcher
	return func() tea.Msg {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return nil
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					time.Sleep(100 * time.Millisecond)
					return logChangedMsg{}
				}
			case _, ok := <-w.Errors:
				if !ok {
					return nil
				}
			}
		}
	}
}

func (m *pagerModel) setContent(content string) {
	m.raw = content
	m.wrapped = wrap(content, m.vp.Width)
	m.vp.SetContent(m.wrapped)
	if m.search.query != "" {
		m.search.run(m.wrapped)
	}
}

func (m *pagerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.search.editing {
		return m.updateSearchInput(msg)
	}

	var cmds []tea.Cmd
	switch msg := msg.(type) {
	case logChangedMsg:
		if content, err := m.render(); err == nil {
			atBottom := m.vp.AtBottom()
			offset := m.vp.YOffset
			m.setContent(content)
			m.updated = time.Now()
			if atBottom {
				m.vp.GotoBottom()
			} else {
				m.vp.SetYOffset(offset)
			}
		}
		cmds = append(cmds, m.waitForWrite())

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "esc":
			if m.search.query == "" {
				return m, tea.Quit
			}
			m.search.clear()
		case "g":
			m.vp.GotoTop()
		case "G", "f":
			m.vp.GotoBottom()
		case "/":
			return m, m.search.open()
		case "n":
			m.jump(m.search.next())
		case "N":
			m.jump(m.search.prev())
		}

	case tea.WindowSizeMsg:
		height := msg.Height - 2 // title bar and status bar
		if !m.ready {
			m.vp = viewport.New(msg.Width, height)
			m.vp.YPosition = 1
			m.ready = true
		} else {
			m.vp.Width = msg.Width
			m.vp.Height = height
		}
		m.setContent(m.raw)
	}

	var cmd tea.Cmd
	m.vp, cmd = m.vp.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m *pagerModel) updateSearchInput(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "enter":
			m.search.submit(m.wrapped)
			m.jump(m.search.current())
			return m, nil
		case "esc", "ctrl+c":
			m.search.clear()
			return m, nil
		}
	}
	var cmd tea.Cmd
	m.search.input, cmd = m.search.input.Update(msg)
	return m, cmd
}

// jump centers line in the viewport. Negative lines are ignored.
func (m *pagerModel) jump(line int) {
	if line < 0 {
		return
	}
	offset := line - m.vp.Height/2
	if limit := m.vp.TotalLineCount() - m.vp.Height; offset > limit {
		offset = limit
	}
	if offset < 0 {
		offset = 0
	}
	m.vp.SetYOffset(offset)
}

func (m *pagerModel) View() string {
	if !m.ready {
		return "\n  Loading..."
	}
	title := barTitleStyle.Render(m.title)
	header := title + dimStyle.Render(strings.Repeat("─", maxInt(0, m.vp.Width-lipgloss.Width(title))))
	return header + "\n" + m.vp.View() + "\n" + m.statusBar()
}

func (m *pagerModel) statusBar() string {
	if m.search.editing {
		return warnStyle.Render("/") + m.search.input.View()
	}

	pos := fmt.Sprintf(" %3.f%% ", m.vp.ScrollPercent()*100)
	var help string
	switch {
	case m.search.missed:
		help = " " + errorStyle.Render("Pattern not found") + " │ /: search "
	case len(m.search.hits) > 0:
		help = fmt.Sprintf(" %s │ n/N: next/prev │ esc: clear ", warnStyle.Render(fmt.Sprintf("[%d/%d]", m.search.cur+1, len(m.search.hits))))
	case m.live():
		help = " " + liveStyle.Render("● LIVE") + " │ q: quit │ /: search │ f: follow │ g/G: top/bottom "
		if !m.updated.IsZero() {
			help += dimStyle.Render("updated "+m.updated.Format("15:04:05")) + " "
		}
	default:
		help = " q: quit │ /: search │ g/G: top/bottom "
	}
	fill := maxInt(0, m.vp.Width-lipgloss.Width(help)-lipgloss.Width(pos))
	return dimStyle.Render(help) + dimStyle.Render(strings.Repeat("─", fill)) + dimStyle.Render(pos)
}

// finder holds incremental search state over wrapped lines.
type finder struct {
	input   textinput.Model
	editing bool
	query   string
	hits    []int
	cur     int
	missed  bool
}

func (f *finder) open() tea.Cmd {
	f.editing = true
	f.input = textinput.New()
	f.input.Placeholder = "Search..."
	f.input.CharLimit = 100
	f.input.Width = 40
	f.input.SetValue(f.query)
	f.input.Focus()
	return textinput.Blink
}

func (f *finder) submit(text string) {
	f.editing = false
	f.query = f.input.Value()
	f.run(text)
}

func (f *finder) clear() {
	f.editing = false
	f.query = ""
	f.hits = nil
	f.cur = 0
	f.missed = false
}

// run finds the lines of text containing the query, case-insensitively.
func (f *finder) run(text string) {
	f.hits = nil
	f.cur = 0
	f.missed = false
	if f.query == "" {
		return
	}
	q := strings.ToLower(f.query)
	for i, line := range strings.Split(text, "\n") {
		if strings.Contains(strings.ToLower(line), q) {
			f.hits = append(f.hits, i)
		}
	}
	f.missed = len(f.hits) == 0
}

func (f *finder) current() int {
	if len(f.hits) == 0 {
		return -1
	}
	return f.hits[f.cur]
}

func (f *finder) next() int {
	if len(f.hits) == 0 {
		return -1
	}
	f.cur = (f.cur + 1) % len(f.hits)
	return f.hits[f.cur]
}

func (f *finder) prev() int {
	if len(f.hits) == 0 {
		return -1
	}
	f.cur = (f.cur - 1 + len(f.hits)) % len(f.hits)
	return f.hits[f.cur]
}

// wrap fits each line to width. Timeline rows keep their gutter: text after
// the last "│" wraps under itself instead of under the sequence column.
func wrap(content string, width int) string {
	if width <= 0 {
		return content
	}
	var out []string
	for _, line := range strings.Split(content, "\n") {
		if lipgloss.Width(line) <= width {
			out = append(out, line)
			continue
		}
		cut := strings.LastIndex(line, "│")
		if cut < 0 {
			out = append(out, strings.Split(wordwrap.String(line, width), "\n")...)
			continue
		}
		start := cut + len("│")
		for start < len(line) && line[start] == ' ' {
			start++
		}
		gutter := lipgloss.Width(line[:start])
		avail := maxInt(20, width-gutter)
		parts := strings.Split(wordwrap.String(line[start:], avail), "\n")
		out = append(out, line[:start]+parts[0])
		indent := strings.Repeat(" ", gutter)
		for _, p := range parts[1:] {
			out = append(out, indent+p)
		}
	}
	return strings.Join(out, "\n")
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
