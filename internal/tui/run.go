package tui

import (
	"io"

	tea "github.com/charmbracelet/bubbletea"
)

// RunWithWork shows model on out while work runs in the background. work
// reports progress through send; the program quits once work returns or
// the user presses q. Sends after the program has exited are dropped.
func RunWithWork(out io.Writer, model EnsureModel, work func(send func(tea.Msg))) error {
	p := tea.NewProgram(model, tea.WithOutput(out))

	go func() {
		work(p.Send)
		p.Send(workDoneMsg{})
	}()

	_, err := p.Run()
	return err
}
