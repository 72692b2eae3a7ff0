package cli

import (
	"errors"
	"os/exec"

	"github.com/spf13/cobra"

	"toolpin/internal/tools"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <tool> [-- args...]",
		Short: "Ensure a tool, then run it with the given arguments",
		Long: "Ensure a tool, then run it with the given arguments. Plugins run " +
			"through their host tool. The tool's exit status becomes toolpin's.",
		Args: cobra.MinimumNArgs(1),
		RunE: runRun,
	}
}

func runRun(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := cmd.Context()
	res, err := s.engine(nil).Ensure(ctx, args[0], tools.EnsureOptions{})
	if err != nil {
		return err
	}

	_, err = tools.CmdRunner{}.Run(ctx, res.Tool.Path, args[1:], tools.RunOptions{
		Stdin:  cmd.InOrStdin(),
		Stdout: cmd.OutOrStdout(),
		Stderr: cmd.ErrOrStderr(),
	})
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &exitError{code: exitErr.ExitCode()}
	}
	return err
}
