package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error

	if c.Jobs < 1 {
		errs = append(errs, fmt.Errorf("jobs: must be at least 1, got %d", c.Jobs))
	}
	if _, err := c.Timeouts(); err != nil {
		errs = append(errs, err)
	}
	if !validMatch(c.VersionMatch) {
		errs = append(errs, fmt.Errorf("version-match: %q is not one of loose, token, semver", c.VersionMatch))
	}
	switch strings.ToLower(c.LogFormat) {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log-format: %q is not one of console, json", c.LogFormat))
	}
	for name, version := range c.Versions {
		if strings.TrimSpace(version) == "" {
			errs = append(errs, fmt.Errorf("versions.%s: empty version", name))
		}
	}

	seen := make(map[string]struct{}, len(c.Tools))
	for i, tool := range c.Tools {
		if err := tool.validate(); err != nil {
			label := tool.Name
			if label == "" {
				label = fmt.Sprintf("#%d", i+1)
			}
			errs = append(errs, fmt.Errorf("tools[%s]: %w", label, err))
			continue
		}
		if _, dup := seen[tool.Name]; dup {
			errs = append(errs, fmt.Errorf("tools[%s]: declared more than once", tool.Name))
		}
		seen[tool.Name] = struct{}{}
	}

	return errors.Join(errs...)
}

func (t ToolConfig) validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return errors.New("name is required")
	}
	if strings.TrimSpace(t.Version) == "" {
		return errors.New("version is required")
	}
	if t.Match != "" && !validMatch(t.Match) {
		return fmt.Errorf("match %q is not one of loose, token, semver", t.Match)
	}
	set := 0
	for _, present := range []bool{t.Module != nil, t.Script != nil, t.Plugin != nil} {
		if present {
			set++
		}
	}
	if set != 1 {
		return errors.New("exactly one of module, script, plugin is required")
	}
	if t.Plugin != nil && t.Path != "" {
		return errors.New("plugins have no install path")
	}
	return nil
}

func validMatch(mode string) bool {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "loose", "token", "semver":
		return true
	}
	return false
}
