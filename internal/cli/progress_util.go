package cli

import (
	"context"
	"io"

	tea "github.com/charmbracelet/bubbletea"

	"toolpin/internal/tools"
	"toolpin/internal/tui"
)

// ensureAllInteractive runs EnsureAll behind the bubbletea progress table.
// Quitting the table cancels outstanding installs; the report still covers
// every tool.
func ensureAllInteractive(ctx context.Context, out io.Writer, s *session, opts tools.EnsureOptions) (tools.Report, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var report tools.Report
	done := make(chan struct{})
	model := tui.NewEnsureModel(s.registry.Root(), s.registry.Specs())

	err := tui.RunWithWork(out, model, func(send func(tea.Msg)) {
		defer close(done)
		report = s.engine(tui.NewEnsureReporter(send)).EnsureAll(ctx, opts)
	})
	cancel()
	<-done
	return report, err
}
