package tools

import (
	"errors"
	"fmt"
)

// ErrorKind classifies acquisition failures.
type ErrorKind string

const (
	KindNetworkUnavailable        ErrorKind = "NetworkUnavailable"
	KindVersionProbeFailed        ErrorKind = "VersionProbeFailed"
	KindInstallVerificationFailed ErrorKind = "InstallVerificationFailed"
	KindUnsupportedProcedure      ErrorKind = "UnsupportedProcedure"
	KindPluginStateConflict       ErrorKind = "PluginStateConflict"
	KindInstallFailed             ErrorKind = "InstallFailed"
	KindUnknownTool               ErrorKind = "UnknownTool"
)

// AcquisitionError reports why a single tool could not be resolved.
type AcquisitionError struct {
	Tool string
	Kind ErrorKind
	Err  error
}

func (e *AcquisitionError) Error() string {
	switch {
	case e.Tool == "" && e.Err == nil:
		return string(e.Kind)
	case e.Err == nil:
		return fmt.Sprintf("%s: %s", e.Tool, e.Kind)
	case e.Tool == "":
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s: %s: %v", e.Tool, e.Kind, e.Err)
	}
}

func (e *AcquisitionError) Unwrap() error {
	return e.Err
}

// Is matches another AcquisitionError by kind. A target with a tool name only
// matches errors for that tool.
func (e *AcquisitionError) Is(target error) bool {
	t, ok := target.(*AcquisitionError)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Tool == "" || t.Tool == e.Tool
}

var (
	// ErrNetworkUnavailable is returned when an install needs the network
	// but it is unreachable or disabled by offline mode.
	ErrNetworkUnavailable = &AcquisitionError{Kind: KindNetworkUnavailable}

	// ErrVersionProbeFailed is returned when an existing binary cannot
	// report its version.
	ErrVersionProbeFailed = &AcquisitionError{Kind: KindVersionProbeFailed}

	// ErrInstallVerificationFailed is returned when the re-probe after an
	// install still disagrees with the desired version.
	ErrInstallVerificationFailed = &AcquisitionError{Kind: KindInstallVerificationFailed}

	// ErrUnsupportedProcedure is returned for a procedure variant with
	// missing parameters.
	ErrUnsupportedProcedure = &AcquisitionError{Kind: KindUnsupportedProcedure}

	// ErrPluginStateConflict is returned when a plugin was uninstalled but
	// its replacement could not be installed.
	ErrPluginStateConflict = &AcquisitionError{Kind: KindPluginStateConflict}

	// ErrInstallFailed is returned when an install procedure exits with an
	// error unrelated to the network.
	ErrInstallFailed = &AcquisitionError{Kind: KindInstallFailed}

	// ErrUnknownTool is returned for names missing from the registry.
	ErrUnknownTool = &AcquisitionError{Kind: KindUnknownTool}
)

func newError(tool string, kind ErrorKind, err error) *AcquisitionError {
	return &AcquisitionError{Tool: tool, Kind: kind, Err: err}
}

// asToolError rebinds err to tool, keeping the kind of an inner
// AcquisitionError and defaulting to fallback otherwise.
func asToolError(tool string, fallback ErrorKind, err error) *AcquisitionError {
	var acqErr *AcquisitionError
	if errors.As(err, &acqErr) {
		if acqErr.Tool == tool {
			return acqErr
		}
		return newError(tool, acqErr.Kind, err)
	}
	return newError(tool, fallback, err)
}

// KindOf extracts the kind of the first AcquisitionError in err's chain.
func KindOf(err error) ErrorKind {
	var acqErr *AcquisitionError
	if errors.As(err, &acqErr) {
		return acqErr.Kind
	}
	return ""
}
