package tui

import (
	"errors"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"toolpin/internal/tools"
)

// Row statuses shared by the ensure board and the plain table.
const (
	StatusPending     = "pending"
	StatusChecking    = "checking"
	StatusOK          = "ok"
	StatusInstalled   = "installed"
	StatusReinstalled = "reinstalled"
	StatusMissing     = "missing"
	StatusOutdated    = "outdated"
	StatusError       = "error"
)

// ResultStatus labels a result for display. Results without an action come
// from inspection and are labelled by whether the tool is satisfied.
func ResultStatus(res tools.Result) string {
	switch {
	case res.Err != nil:
		return StatusError
	case res.Action == tools.ActionInstalled:
		return StatusInstalled
	case res.Action == tools.ActionReinstalled:
		return StatusReinstalled
	case res.Satisfied:
		return StatusOK
	case !res.Tool.Installed:
		return StatusMissing
	default:
		return StatusOutdated
	}
}

// ResultDetail is the free-form column: the error kind and cause for
// failures, otherwise the resolved path.
func ResultDetail(res tools.Result) string {
	if res.Err == nil {
		return res.Tool.Path
	}
	// The tool name is already in its own column.
	var acqErr *tools.AcquisitionError
	if errors.As(res.Err, &acqErr) && acqErr.Err != nil {
		return string(acqErr.Kind) + ": " + acqErr.Err.Error()
	}
	return res.Err.Error()
}

// EnsureReporter forwards engine events to a running bubbletea program.
type EnsureReporter struct {
	send func(tea.Msg)
	now  func() time.Time
}

var _ tools.Observer = (*EnsureReporter)(nil)

// NewEnsureReporter wraps the send callback handed out by RunWithWork.
func NewEnsureReporter(send func(tea.Msg)) *EnsureReporter {
	return &EnsureReporter{send: send, now: time.Now}
}

// Started implements tools.Observer.
func (r *EnsureReporter) Started(spec tools.ToolSpec) {
	r.send(toolStartedMsg{name: spec.Name, at: r.now()})
}

// Finished implements tools.Observer.
func (r *EnsureReporter) Finished(res tools.Result) {
	r.send(toolFinishedMsg{result: res})
}
