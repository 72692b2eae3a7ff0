package tools

import (
	"errors"
	"regexp"
	"strings"
)

// ProcedureKind names an install procedure variant.
type ProcedureKind string

const (
	ProcedureModule ProcedureKind = "module"
	ProcedureScript ProcedureKind = "script"
	ProcedurePlugin ProcedureKind = "plugin"
)

// Procedure is an install recipe. The set of variants is closed:
// ModuleInstall, ScriptInstall and PluginInstall.
type Procedure interface {
	Kind() ProcedureKind
	// Describe returns a short human readable summary for listings.
	Describe() string
	validate() error
}

// ModuleInstall builds a Go package with `go install <Package>@<version>`.
type ModuleInstall struct {
	Package string
	// Binary overrides the executable name go install produces.
	Binary string
}

func (ModuleInstall) Kind() ProcedureKind { return ProcedureModule }

func (m ModuleInstall) Describe() string { return m.Package }

func (m ModuleInstall) validate() error {
	if strings.TrimSpace(m.Package) == "" {
		return errors.New("module install requires a package")
	}
	return nil
}

var majorVersionElem = regexp.MustCompile(`^v[0-9]+$`)

func (m ModuleInstall) binaryName() string {
	if m.Binary != "" {
		return m.Binary
	}
	parts := strings.Split(strings.Trim(m.Package, "/"), "/")
	last := parts[len(parts)-1]
	if len(parts) > 1 && majorVersionElem.MatchString(last) {
		last = parts[len(parts)-2]
	}
	return last
}

// ScriptInstall downloads a shell installer and runs it with Interpreter.
// Args and Env may reference {dir}, {version} and {version_bare}.
type ScriptInstall struct {
	URL         string
	Interpreter string
	Args        []string
	Env         []string
	// Binary is the file the script leaves in {dir}; defaults to the tool name.
	Binary string
	// SHA256 optionally pins the script content.
	SHA256 string
}

func (ScriptInstall) Kind() ProcedureKind { return ProcedureScript }

func (s ScriptInstall) Describe() string { return s.URL }

func (s ScriptInstall) validate() error {
	if strings.TrimSpace(s.URL) == "" {
		return errors.New("script install requires a url")
	}
	return nil
}

func (s ScriptInstall) interpreter() string {
	if s.Interpreter == "" {
		return "bash"
	}
	return s.Interpreter
}

func (s ScriptInstall) binaryName(tool string) string {
	if s.Binary != "" {
		return s.Binary
	}
	return tool
}

// PluginInstall registers a plugin with the host tool named Host.
type PluginInstall struct {
	Host   string
	Plugin string
	Source string
}

func (PluginInstall) Kind() ProcedureKind { return ProcedurePlugin }

func (p PluginInstall) Describe() string { return p.Host + " plugin " + p.Source }

func (p PluginInstall) validate() error {
	switch {
	case strings.TrimSpace(p.Host) == "":
		return errors.New("plugin install requires a host tool")
	case strings.TrimSpace(p.Plugin) == "":
		return errors.New("plugin install requires a plugin name")
	case strings.TrimSpace(p.Source) == "":
		return errors.New("plugin install requires a source")
	}
	return nil
}

// expandPlaceholders substitutes {dir}, {version} and {version_bare}.
func expandPlaceholders(values []string, dir, version string) []string {
	if len(values) == 0 {
		return nil
	}
	r := strings.NewReplacer(
		"{dir}", dir,
		"{version_bare}", strings.TrimPrefix(version, "v"),
		"{version}", version,
	)
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = r.Replace(v)
	}
	return out
}
