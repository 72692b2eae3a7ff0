package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Probe every declared tool without installing anything",
		Args:  cobra.NoArgs,
		RunE:  runStatus,
	}
	return cmd
}

func runStatus(cmd *cobra.Command, _ []string) error {
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	report := s.engine(nil).InspectAll(cmd.Context())
	if s.cfg.JSON {
		if err := writeJSON(cmd.OutOrStdout(), report.Statuses()); err != nil {
			return err
		}
	} else {
		printStatusTable(cmd.OutOrStdout(), report.Results)
	}
	return reportFailures(cmd.ErrOrStderr(), report)
}

func newPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path <tool>",
		Short: "Print where a tool is installed, without checking it",
		Args:  cobra.ExactArgs(1),
		RunE:  runPath,
	}
}

func runPath(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	path, err := s.engine(nil).Path(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), path)
	return nil
}
