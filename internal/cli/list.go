package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"toolpin/internal/tools"
	"toolpin/internal/tui"
)

type listEntry struct {
	Name      string   `json:"name"`
	Version   string   `json:"version"`
	Procedure string   `json:"procedure"`
	Source    string   `json:"source"`
	Path      string   `json:"path,omitempty"`
	Probe     []string `json:"probe,omitempty"`
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List declared tools and their pinned versions",
		Args:  cobra.NoArgs,
		RunE:  runList,
	}
}

func runList(cmd *cobra.Command, _ []string) error {
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	entries := listEntries(s.registry)
	if s.cfg.JSON {
		return writeJSON(cmd.OutOrStdout(), entries)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 2, ' ', 0)
	fmt.Fprintln(tw, "TOOL\tVERSION\tPROCEDURE\tSOURCE")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.Name, e.Version, tui.NonEmptyOrDash(e.Procedure), tui.NonEmptyOrDash(e.Source))
	}
	return tw.Flush()
}

func listEntries(reg *tools.Registry) []listEntry {
	specs := reg.Specs()
	entries := make([]listEntry, 0, len(specs))
	for _, spec := range specs {
		e := listEntry{
			Name:    spec.Name,
			Version: spec.Version,
			Path:    spec.InstallPath,
			Probe:   spec.VersionArgs,
		}
		if spec.Procedure != nil {
			e.Procedure = string(spec.Procedure.Kind())
			e.Source = spec.Procedure.Describe()
		}
		entries = append(entries, e)
	}
	return entries
}
