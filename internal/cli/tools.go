package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"toolpin/internal/tools"
	"toolpin/internal/tui"
)

var (
	ensureForce    bool
	ensureAllForce bool
)

func newEnsureCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ensure <tool>",
		Short: "Install a tool unless the pinned version is already present",
		Args:  cobra.ExactArgs(1),
		RunE:  runEnsure,
	}
	cmd.Flags().BoolVar(&ensureForce, "force", false, "Reinstall even if the installed version matches")
	return cmd
}

func runEnsure(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	var observer tools.Observer
	if !s.cfg.JSON && !s.cfg.NoProgress && tui.IsTerminal(cmd.ErrOrStderr()) {
		line := tui.NewEnsureLine(cmd.ErrOrStderr())
		defer line.Stop()
		observer = line
	}

	res, err := s.engine(observer).Ensure(cmd.Context(), args[0], tools.EnsureOptions{Force: ensureForce})
	if err != nil {
		return err
	}

	if s.cfg.JSON {
		return writeJSON(cmd.OutOrStdout(), res.Status())
	}
	fmt.Fprintln(cmd.OutOrStdout(), res.Tool.Path)
	return nil
}

func newEnsureAllCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ensure-all",
		Short: "Ensure every declared tool",
		Args:  cobra.NoArgs,
		RunE:  runEnsureAll,
	}
	cmd.Flags().BoolVar(&ensureAllForce, "force", false, "Reinstall every tool")
	return cmd
}

func runEnsureAll(cmd *cobra.Command, _ []string) error {
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	opts := tools.EnsureOptions{Force: ensureAllForce}
	out := cmd.OutOrStdout()

	var report tools.Report
	switch tui.DetectMode(out, s.cfg.NoProgress, s.cfg.JSON) {
	case tui.ModeTUI:
		report, err = ensureAllInteractive(cmd.Context(), out, s, opts)
		if err != nil {
			return err
		}
	case tui.ModeJSON:
		report = s.engine(nil).EnsureAll(cmd.Context(), opts)
		if err := writeJSON(out, report.Statuses()); err != nil {
			return err
		}
	default:
		report = s.engine(nil).EnsureAll(cmd.Context(), opts)
		printStatusTable(out, report.Results)
	}

	return reportFailures(cmd.ErrOrStderr(), report)
}

// reportFailures prints one line per failed tool and turns any failure into
// exit status 1.
func reportFailures(w io.Writer, report tools.Report) error {
	failed := report.Failed()
	if len(failed) == 0 {
		return nil
	}
	for _, err := range failed {
		fmt.Fprintln(w, oneLine(err.Error()))
	}
	return &exitError{code: 1}
}

// oneLine folds multi-line error text onto a single line.
func oneLine(s string) string {
	lines := strings.FieldsFunc(s, func(r rune) bool { return r == '\n' || r == '\r' })
	kept := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "; ")
}

func printStatusTable(w io.Writer, results []tools.Result) {
	if len(results) == 0 {
		fmt.Fprintln(w, "(no tools declared)")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 2, 2, ' ', 0)
	fmt.Fprintln(tw, "TOOL\tVERSION\tCURRENT\tPATH\tSTATUS")
	for _, res := range results {
		st := res.Status()
		label := tui.ResultStatus(res)
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			st.Tool,
			st.Version,
			tui.NonEmptyOrDash(st.Current),
			tui.NonEmptyOrDash(st.Path),
			tui.StatusStyle(label).Render(label),
		)
	}
	tw.Flush()
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}
