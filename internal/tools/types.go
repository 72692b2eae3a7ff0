package tools

import (
	"errors"
	"strings"
	"time"
)

// Latest is the desired-version sentinel: any installed binary satisfies it
// and no version probe is run.
const Latest = "latest"

// MatchMode selects how a probed version string is compared with the desired
// version.
type MatchMode string

const (
	// MatchLoose accepts the probe output when it contains the desired
	// version anywhere, with or without a leading "v".
	MatchLoose MatchMode = "loose"
	// MatchToken requires a whole token of the output to equal the version.
	MatchToken MatchMode = "token"
	// MatchSemver compares parsed semantic versions.
	MatchSemver MatchMode = "semver"
)

// ParseMatchMode validates a configured match mode. The empty string maps to
// MatchLoose.
func ParseMatchMode(value string) (MatchMode, error) {
	switch MatchMode(strings.ToLower(strings.TrimSpace(value))) {
	case "", MatchLoose:
		return MatchLoose, nil
	case MatchToken:
		return MatchToken, nil
	case MatchSemver:
		return MatchSemver, nil
	default:
		return "", errors.New("version match must be one of loose, token, semver")
	}
}

// ToolSpec declares one managed tool.
type ToolSpec struct {
	Name        string
	InstallPath string
	Version     string
	VersionArgs []string
	Match       MatchMode
	Procedure   Procedure
}

// IsLatest reports whether the tool tracks the latest sentinel.
func (s ToolSpec) IsLatest() bool {
	return strings.EqualFold(strings.TrimSpace(s.Version), Latest)
}

// OwnsBinary reports whether the tool materialises its own executable.
// Plugin tools live inside their host.
func (s ToolSpec) OwnsBinary() bool {
	_, plugin := s.Procedure.(PluginInstall)
	return !plugin
}

// ResolvedTool is the probed state of a tool. It is recomputed on every call
// and never persisted.
type ResolvedTool struct {
	Spec           ToolSpec
	CurrentVersion string
	Installed      bool
	Path           string
}

// Action describes what Ensure did to a tool.
type Action string

const (
	ActionNoop        Action = "noop"
	ActionInstalled   Action = "installed"
	ActionReinstalled Action = "reinstalled"
)

// Result is the outcome for a single tool.
type Result struct {
	Tool      ResolvedTool
	Action    Action
	Satisfied bool
	Duration  time.Duration
	Err       error
}

// Status is the flattened, serialisable view of a Result.
type Status struct {
	Tool       string    `json:"tool"`
	Version    string    `json:"version"`
	Current    string    `json:"current,omitempty"`
	Procedure  string    `json:"procedure"`
	Path       string    `json:"path"`
	Installed  bool      `json:"installed"`
	Satisfied  bool      `json:"satisfied"`
	Action     Action    `json:"action,omitempty"`
	DurationMS int64     `json:"duration_ms,omitempty"`
	Kind       ErrorKind `json:"kind,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// Status flattens the result for tables and JSON output.
func (r Result) Status() Status {
	st := Status{
		Tool:       r.Tool.Spec.Name,
		Version:    r.Tool.Spec.Version,
		Current:    r.Tool.CurrentVersion,
		Path:       r.Tool.Path,
		Installed:  r.Tool.Installed,
		Satisfied:  r.Satisfied,
		Action:     r.Action,
		DurationMS: r.Duration.Milliseconds(),
	}
	if r.Tool.Spec.Procedure != nil {
		st.Procedure = string(r.Tool.Spec.Procedure.Kind())
	}
	if r.Err != nil {
		st.Kind = KindOf(r.Err)
		st.Error = r.Err.Error()
	}
	return st
}

// Report aggregates the results of EnsureAll or InspectAll in registry order.
type Report struct {
	Results []Result
}

// Failed returns the acquisition errors of every failed tool.
func (r Report) Failed() []*AcquisitionError {
	var failed []*AcquisitionError
	for _, res := range r.Results {
		if res.Err == nil {
			continue
		}
		var acqErr *AcquisitionError
		if errors.As(res.Err, &acqErr) {
			failed = append(failed, acqErr)
			continue
		}
		failed = append(failed, newError(res.Tool.Spec.Name, KindInstallFailed, res.Err))
	}
	return failed
}

// Err joins every per-tool failure, or returns nil when all tools succeeded.
func (r Report) Err() error {
	failed := r.Failed()
	if len(failed) == 0 {
		return nil
	}
	errs := make([]error, len(failed))
	for i, err := range failed {
		errs[i] = err
	}
	return errors.Join(errs...)
}

// Statuses flattens every result.
func (r Report) Statuses() []Status {
	out := make([]Status, len(r.Results))
	for i, res := range r.Results {
		out[i] = res.Status()
	}
	return out
}
