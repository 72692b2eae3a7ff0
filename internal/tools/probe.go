package tools

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

// probe inspects the install path and, unless the tool tracks Latest, asks
// the binary for its version. It never mutates the filesystem. The boolean
// reports whether the installed binary satisfies the declaration.
func (e *Engine) probe(ctx context.Context, spec ToolSpec) (ResolvedTool, bool, error) {
	rt := ResolvedTool{Spec: spec, Path: spec.InstallPath}

	info, err := os.Stat(spec.InstallPath)
	if errors.Is(err, os.ErrNotExist) {
		return rt, false, nil
	}
	if err != nil {
		return rt, false, newError(spec.Name, KindVersionProbeFailed, fmt.Errorf("stat %s: %w", spec.InstallPath, err))
	}
	if info.IsDir() {
		return rt, false, newError(spec.Name, KindVersionProbeFailed, fmt.Errorf("%s is a directory", spec.InstallPath))
	}
	rt.Installed = true

	if spec.IsLatest() {
		return rt, true, nil
	}

	probeCtx, cancel := context.WithTimeout(ctx, e.probeTimeout)
	defer cancel()

	res, err := e.runner.Run(probeCtx, spec.InstallPath, spec.VersionArgs, RunOptions{})
	output := res.Combined()
	if err != nil {
		cmdline := strings.TrimSpace(spec.InstallPath + " " + strings.Join(spec.VersionArgs, " "))
		if errors.Is(probeCtx.Err(), context.DeadlineExceeded) {
			return rt, false, newError(spec.Name, KindVersionProbeFailed, fmt.Errorf("%s: timed out after %s: %w", cmdline, e.probeTimeout, context.DeadlineExceeded))
		}
		if output != "" {
			err = fmt.Errorf("%w: %s", err, firstLine(output))
		}
		return rt, false, newError(spec.Name, KindVersionProbeFailed, fmt.Errorf("%s: %w", cmdline, err))
	}

	rt.CurrentVersion = extractVersion(output)
	return rt, versionMatches(output, spec.Version, e.matchMode(spec)), nil
}

func (e *Engine) matchMode(spec ToolSpec) MatchMode {
	if spec.Match != "" {
		return spec.Match
	}
	return e.match
}
