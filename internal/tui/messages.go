package tui

import (
	"time"

	"toolpin/internal/tools"
)

// toolStartedMsg marks a tool as being resolved.
type toolStartedMsg struct {
	name string
	at   time.Time
}

// toolFinishedMsg carries the outcome of one tool.
type toolFinishedMsg struct {
	result tools.Result
}

// workDoneMsg is sent once EnsureAll has returned.
type workDoneMsg struct{}

// tickMsg advances the spinner and the running timers.
type tickMsg time.Time
