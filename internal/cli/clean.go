package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newCleanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clean [tool...]",
		Short: "Remove installed tools so the next ensure reinstalls them",
		Long: "Remove installed tools so the next ensure reinstalls them. " +
			"Without arguments every declared tool is removed; plugins are " +
			"uninstalled from their host.",
		RunE: runClean,
	}
}

func runClean(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	names := args
	if len(names) == 0 {
		names = s.registry.Names()
	}

	engine := s.engine(nil)
	var errs []error
	for _, name := range names {
		if err := engine.Clean(cmd.Context(), name); err != nil {
			errs = append(errs, err)
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "cleaned %s\n", name)
	}
	return errors.Join(errs...)
}
