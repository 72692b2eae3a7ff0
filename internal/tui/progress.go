package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"toolpin/internal/tools"
)

const tickInterval = 120 * time.Millisecond

var spinnerFrames = spinner.MiniDot.Frames

// Column headers of the ensure board.
const (
	ColTool    = "TOOL"
	ColVersion = "VERSION"
	ColStatus  = "STATUS"
	ColAction  = "ACTION"
	ColTime    = "TIME"
	ColDetail  = "DETAIL"
)

type column struct {
	header string
	width  int
}

var boardColumns = []column{
	{ColTool, 16},
	{ColVersion, 12},
	{ColStatus, 11},
	{ColAction, 11},
	{ColTime, 7},
	{ColDetail, 48},
}

// toolRow is the board state of one registry entry.
type toolRow struct {
	name    string
	version string
	status  string
	action  string
	detail  string
	started time.Time
	took    time.Duration
}

// EnsureModel is the bubbletea model behind `ensure-all`. It keeps one row
// per tool in registry order and a header naming the cache directory.
type EnsureModel struct {
	title   string
	rows    []toolRow
	index   map[string]int
	begun   time.Time
	now     time.Time
	frame   int
	done    bool
	aborted bool
}

// NewEnsureModel pre-populates one pending row per tool.
func NewEnsureModel(cacheDir string, specs []tools.ToolSpec) EnsureModel {
	m := EnsureModel{
		title: fmt.Sprintf("ensure-all: %d tools into %s", len(specs), cacheDir),
		index: make(map[string]int, len(specs)),
		begun: time.Now(),
	}
	m.now = m.begun
	for _, spec := range specs {
		m.index[spec.Name] = len(m.rows)
		m.rows = append(m.rows, toolRow{name: spec.Name, version: spec.Version, status: StatusPending})
	}
	return m
}

func scheduleTick() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Init satisfies the tea.Model interface.
func (m EnsureModel) Init() tea.Cmd {
	return scheduleTick()
}

// Update satisfies the tea.Model interface.
func (m EnsureModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		if m.done {
			return m, nil
		}
		m.frame++
		m.now = time.Time(msg)
		return m, scheduleTick()

	case toolStartedMsg:
		if i, ok := m.index[msg.name]; ok {
			m.rows[i].status = StatusChecking
			m.rows[i].started = msg.at
		}
		return m, nil

	case toolFinishedMsg:
		res := msg.result
		if i, ok := m.index[res.Tool.Spec.Name]; ok {
			row := &m.rows[i]
			row.status = ResultStatus(res)
			row.action = actionLabel(res)
			row.detail = ResultDetail(res)
			row.took = res.Duration
		}
		return m, nil

	case workDoneMsg:
		m.done = true
		return m, tea.Quit

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.done = true
			m.aborted = true
			return m, tea.Quit
		}
	}
	return m, nil
}

// View satisfies the tea.Model interface.
func (m EnsureModel) View() string {
	var b strings.Builder
	b.WriteString(TitleStyle.Render(m.title))
	b.WriteString("\n\n")

	headers := make([]string, len(boardColumns))
	for i, col := range boardColumns {
		headers[i] = HeaderStyle.Render(pad(col.header, col.width))
	}
	b.WriteString(strings.Join(headers, "  "))
	b.WriteByte('\n')

	for _, row := range m.rows {
		cells := []string{row.name, row.version, row.status, NonEmptyOrDash(row.action), m.elapsed(row), row.detail}
		for i, col := range boardColumns {
			text := pad(TruncateWithEllipsis(cells[i], col.width), col.width)
			if col.header == ColStatus {
				text = StatusStyle(row.status).Render(text)
			}
			cells[i] = text
		}
		b.WriteString(strings.TrimRight(strings.Join(cells, "  "), " "))
		b.WriteByte('\n')
	}

	b.WriteByte('\n')
	b.WriteString(m.footer())
	b.WriteByte('\n')
	return b.String()
}

// elapsed shows the final duration of finished rows and a running timer for
// the rows still being resolved.
func (m EnsureModel) elapsed(row toolRow) string {
	switch {
	case row.took > 0:
		return formatDuration(row.took)
	case row.status == StatusChecking && !row.started.IsZero() && m.now.After(row.started):
		return formatDuration(m.now.Sub(row.started))
	default:
		return "-"
	}
}

func (m EnsureModel) footer() string {
	finished, failed := m.progressCounts()
	if !m.done {
		frame := spinnerFrames[m.frame%len(spinnerFrames)]
		return fmt.Sprintf("%s %d/%d resolved, %d failed (%s)", frame, finished, len(m.rows), failed, formatDuration(m.now.Sub(m.begun)))
	}
	if m.aborted {
		return fmt.Sprintf("interrupted after %d/%d tools", finished, len(m.rows))
	}
	summary := fmt.Sprintf("%d tools resolved", finished)
	if failed > 0 {
		summary += fmt.Sprintf(", %d failed", failed)
	}
	return summary
}

// progressCounts returns how many rows reached a final status and how many
// of those failed.
func (m EnsureModel) progressCounts() (finished, failed int) {
	for _, row := range m.rows {
		if activeStatuses[row.status] {
			continue
		}
		finished++
		if row.status == StatusError {
			failed++
		}
	}
	return finished, failed
}

func actionLabel(res tools.Result) string {
	if res.Err != nil || res.Action == "" {
		return ""
	}
	return string(res.Action)
}

func pad(s string, width int) string {
	if n := len(s); n < width {
		return s + strings.Repeat(" ", width-n)
	}
	return s
}

// formatDuration renders short timings for the board and the status line.
func formatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < 10*time.Second:
		return fmt.Sprintf("%.1fs", d.Seconds())
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	default:
		return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
	}
}

// NonEmptyOrDash returns "-" for empty or blank values.
func NonEmptyOrDash(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "-"
	}
	return value
}

// TruncateWithEllipsis shortens value to max bytes, marking the cut with "...".
func TruncateWithEllipsis(value string, max int) string {
	value = strings.TrimSpace(value)
	switch {
	case max <= 0:
		return ""
	case len(value) <= max:
		return value
	case max <= 3:
		return value[:max]
	default:
		return value[:max-3] + "..."
	}
}
