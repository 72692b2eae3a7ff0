package tools

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// Plugin is one entry of a host tool's plugin registry.
type Plugin struct {
	Name    string
	Version string
}

// PluginHost manages the plugin registry of a host tool such as helm.
type PluginHost interface {
	ListPlugins(ctx context.Context) ([]Plugin, error)
	InstallPlugin(ctx context.Context, source, version string) error
	UninstallPlugin(ctx context.Context, name string) error
}

// PluginHostFactory binds a PluginHost to a host binary path.
type PluginHostFactory func(hostPath string) PluginHost

// CLIPluginHost drives a host through its `plugin list|install|uninstall`
// subcommands, the way helm exposes them.
type CLIPluginHost struct {
	Path   string
	Runner Runner
}

func (h *CLIPluginHost) ListPlugins(ctx context.Context) ([]Plugin, error) {
	res, err := h.Runner.Run(ctx, h.Path, []string{"plugin", "list"}, RunOptions{})
	if err != nil {
		return nil, withDetail(fmt.Errorf("%s plugin list: %w", h.Path, err), lastLine(res.Combined()))
	}
	return parsePluginList(string(res.Stdout)), nil
}

func (h *CLIPluginHost) InstallPlugin(ctx context.Context, source, version string) error {
	args := []string{"plugin", "install", source}
	if version != "" {
		args = append(args, "--version", version)
	}
	res, err := h.Runner.Run(ctx, h.Path, args, RunOptions{})
	if err != nil {
		return withDetail(fmt.Errorf("%s plugin install %s: %w", h.Path, source, err), lastLine(res.Combined()))
	}
	return nil
}

func (h *CLIPluginHost) UninstallPlugin(ctx context.Context, name string) error {
	res, err := h.Runner.Run(ctx, h.Path, []string{"plugin", "uninstall", name}, RunOptions{})
	if err != nil {
		return withDetail(fmt.Errorf("%s plugin uninstall %s: %w", h.Path, name, err), lastLine(res.Combined()))
	}
	return nil
}

// parsePluginList reads the tabular `NAME VERSION DESCRIPTION` listing.
func parsePluginList(out string) []Plugin {
	var plugins []Plugin
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		if strings.EqualFold(fields[0], "NAME") && strings.EqualFold(fields[1], "VERSION") {
			continue
		}
		plugins = append(plugins, Plugin{Name: fields[0], Version: fields[1]})
	}
	return plugins
}

func findPlugin(plugins []Plugin, name string) (Plugin, bool) {
	for _, p := range plugins {
		if p.Name == name {
			return p, true
		}
	}
	return Plugin{}, false
}

var _ PluginHost = (*CLIPluginHost)(nil)
