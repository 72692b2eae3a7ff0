package cli

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/creativeprojects/go-selfupdate"
	"github.com/spf13/cobra"
)

// updateRepository is the GitHub owner/repo self-update reads releases from.
// Release builds may override it with -ldflags -X.
var updateRepository = "toolpin/toolpin"

var errDevBuild = errors.New("cannot self-update a development version")

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the toolpin version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "toolpin %s (%s, %s/%s)\n", buildVersion, runtime.Version(), runtime.GOOS, runtime.GOARCH)
			return nil
		},
	}
}

var selfUpdateCheck bool

func newSelfUpdateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "self-update",
		Short: "Update toolpin to the latest GitHub release",
		Args:  cobra.NoArgs,
		RunE:  runSelfUpdate,
	}
	cmd.Flags().BoolVar(&selfUpdateCheck, "check", false, "Only report whether a newer release exists")
	cmd.Flags().StringVar(&updateRepository, "repo", updateRepository, "GitHub repository to update from")
	return cmd
}

func runSelfUpdate(cmd *cobra.Command, _ []string) error {
	if buildVersion == "" || buildVersion == "dev" {
		return errDevBuild
	}
	ctx := cmd.Context()
	latest, newer, err := latestRelease(ctx, buildVersion)
	if err != nil {
		return err
	}
	if !newer {
		fmt.Fprintf(cmd.OutOrStdout(), "toolpin %s is up to date\n", buildVersion)
		return nil
	}
	if selfUpdateCheck {
		fmt.Fprintf(cmd.OutOrStdout(), "toolpin %s is available (running %s)\n", latest.Version(), buildVersion)
		return nil
	}

	exe, err := selfupdate.ExecutablePath()
	if err != nil {
		return fmt.Errorf("locate executable: %w", err)
	}
	if err := selfupdate.UpdateTo(ctx, latest.AssetURL, latest.AssetName, exe); err != nil {
		return fmt.Errorf("update binary: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "updated toolpin %s -> %s\n", buildVersion, latest.Version())
	return nil
}

func latestRelease(ctx context.Context, current string) (*selfupdate.Release, bool, error) {
	latest, found, err := selfupdate.DetectLatest(ctx, selfupdate.ParseSlug(updateRepository))
	if err != nil {
		return nil, false, fmt.Errorf("detect latest release: %w", err)
	}
	if !found {
		return nil, false, fmt.Errorf("no release found for %s/%s in %s", runtime.GOOS, runtime.GOARCH, updateRepository)
	}
	return latest, !latest.LessOrEqual(current), nil
}
