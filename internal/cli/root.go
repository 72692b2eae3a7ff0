package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"toolpin/internal/config"
)

var (
	projectDir  string
	configFile  string
	setVersions []string

	buildVersion = "dev"
)

// SetVersion records the version stamped into the binary at build time.
func SetVersion(v string) {
	if v != "" {
		buildVersion = v
	}
}

// exitError carries a process exit code through cobra without printing an
// extra message; the command already reported what went wrong.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

// Execute runs the root cobra command.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err == nil {
		return
	}
	var exit *exitError
	if errors.As(err, &exit) {
		os.Exit(exit.code)
	}
	fmt.Fprintf(os.Stderr, "error: %s\n", oneLine(err.Error()))
	os.Exit(1)
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "toolpin",
		Short:         "Pin and install the build tools an operator project needs",
		Version:       buildVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	def := config.Default()
	flags := cmd.PersistentFlags()
	flags.StringVar(&projectDir, "project", "", "Path to project directory")
	flags.StringVar(&configFile, "config", "", "Path to toolpin.yaml (default <project>/toolpin.yaml)")
	flags.StringArrayVar(&setVersions, "set-version", nil, "Override a tool version as name=version (repeatable)")
	flags.String("cache-dir", def.CacheDir, "Directory tools are installed into")
	flags.Bool("offline", false, "Fail instead of installing missing or outdated tools")
	flags.Int("jobs", def.Jobs, "Tools to ensure concurrently")
	flags.Bool("json", false, "Output machine-readable JSON")
	flags.Bool("no-progress", false, "Disable interactive progress output")
	flags.BoolP("verbose", "v", false, "Enable debug logging")
	flags.String("log-format", def.LogFormat, "Log format: console or json")
	flags.String("log-file", "", "Also write JSON logs to this file")
	flags.String("install-timeout", def.InstallTimeout, "Upper bound for a single install")
	flags.String("probe-timeout", def.ProbeTimeout, "Upper bound for a version probe")
	flags.String("http-timeout", def.HTTPTimeout, "Upper bound for an installer download")
	flags.String("version-match", def.VersionMatch, "Version comparison: loose, token or semver")

	cmd.AddCommand(newEnsureCmd())
	cmd.AddCommand(newEnsureAllCmd())
	cmd.AddCommand(newPathCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newCleanCmd())
	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newSelfUpdateCmd())

	return cmd
}
