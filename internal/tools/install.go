package tools

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// install dispatches to the procedure of a binary-owning tool. The install
// path has already been cleared; on success the new binary sits there.
func (e *Engine) install(ctx context.Context, spec ToolSpec) error {
	switch p := spec.Procedure.(type) {
	case ModuleInstall:
		return e.installModule(ctx, spec, p)
	case ScriptInstall:
		return e.installScript(ctx, spec, p)
	default:
		return newError(spec.Name, KindUnsupportedProcedure, fmt.Errorf("procedure %T does not produce a binary", p))
	}
}

func (e *Engine) installModule(ctx context.Context, spec ToolSpec, p ModuleInstall) error {
	stageDir, cleanup, err := stage(spec)
	if err != nil {
		return newError(spec.Name, KindInstallFailed, err)
	}
	defer cleanup()

	target := p.Package + "@" + spec.Version
	if spec.IsLatest() {
		target = p.Package + "@" + Latest
	}
	res, err := e.runner.Run(ctx, e.goCommand, []string{"install", target}, RunOptions{
		Env: []string{"GOBIN=" + stageDir},
	})
	if err != nil {
		output := res.Combined()
		e.log.V(1).Info("go install failed", "tool", spec.Name, "target", target, "output", output)
		kind := KindInstallFailed
		if output == "" || isTransportFailure(output) {
			kind = KindNetworkUnavailable
		}
		return newError(spec.Name, kind, withDetail(fmt.Errorf("go install %s: %w", target, err), lastLine(output)))
	}

	built := filepath.Join(stageDir, executableName(p.binaryName()))
	if _, err := os.Stat(built); err != nil {
		return newError(spec.Name, KindInstallFailed, fmt.Errorf("go install %s produced no %s", target, filepath.Base(built)))
	}
	if err := commitBinary(built, spec.InstallPath); err != nil {
		return newError(spec.Name, KindInstallFailed, err)
	}
	return nil
}

func (e *Engine) installScript(ctx context.Context, spec ToolSpec, p ScriptInstall) error {
	content, err := e.fetcher.Fetch(ctx, p.URL)
	if err != nil {
		return newError(spec.Name, KindNetworkUnavailable, err)
	}
	if err := verifyChecksum(content, p.SHA256); err != nil {
		return newError(spec.Name, KindInstallFailed, fmt.Errorf("%s: %w", p.URL, err))
	}

	stageDir, cleanup, err := stage(spec)
	if err != nil {
		return newError(spec.Name, KindInstallFailed, err)
	}
	defer cleanup()

	scriptPath, err := writeScript(filepath.Dir(stageDir), spec.Name, content)
	if err != nil {
		return newError(spec.Name, KindInstallFailed, err)
	}
	defer func() { _ = os.Remove(scriptPath) }()

	args := append([]string{scriptPath}, expandPlaceholders(p.Args, stageDir, spec.Version)...)
	res, err := e.runner.Run(ctx, p.interpreter(), args, RunOptions{
		Dir: stageDir,
		Env: expandPlaceholders(p.Env, stageDir, spec.Version),
	})
	if err != nil {
		output := res.Combined()
		e.log.V(1).Info("install script failed", "tool", spec.Name, "url", p.URL, "output", output)
		return newError(spec.Name, KindInstallFailed, withDetail(fmt.Errorf("%s %s: %w", p.interpreter(), p.URL, err), lastLine(output)))
	}

	name := executableName(p.binaryName(spec.Name))
	built, err := findExecutable(stageDir, name)
	if err != nil {
		return newError(spec.Name, KindInstallFailed, fmt.Errorf("locate %s: %w", name, err))
	}
	if built == "" {
		return newError(spec.Name, KindInstallFailed, fmt.Errorf("install script did not produce %s", name))
	}
	if err := commitBinary(built, spec.InstallPath); err != nil {
		return newError(spec.Name, KindInstallFailed, err)
	}
	return nil
}

// stage creates a scratch directory next to the install path so the final
// rename stays on one filesystem.
func stage(spec ToolSpec) (string, func(), error) {
	root := filepath.Dir(spec.InstallPath)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return "", nil, fmt.Errorf("prepare cache dir: %w", err)
	}
	dir, err := os.MkdirTemp(root, "."+spec.Name+"-stage-")
	if err != nil {
		return "", nil, fmt.Errorf("create staging dir: %w", err)
	}
	return dir, func() { _ = os.RemoveAll(dir) }, nil
}

func writeScript(dir, tool string, content []byte) (string, error) {
	f, err := os.CreateTemp(dir, "."+tool+"-install-*.sh")
	if err != nil {
		return "", fmt.Errorf("create script file: %w", err)
	}
	if _, err := f.Write(content); err != nil {
		f.Close()
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("write script file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("close script file: %w", err)
	}
	return f.Name(), nil
}

// commitBinary moves a staged executable onto its install path.
func commitBinary(src, dest string) error {
	if runtime.GOOS != "windows" {
		if err := os.Chmod(src, 0o755); err != nil {
			return fmt.Errorf("chmod %s: %w", filepath.Base(src), err)
		}
	}
	if err := os.RemoveAll(dest); err != nil {
		return fmt.Errorf("replace %s: %w", dest, err)
	}
	if err := os.Rename(src, dest); err != nil {
		return fmt.Errorf("commit %s: %w", dest, err)
	}
	return nil
}

// removeStale deletes whatever occupies the install path.
func removeStale(path string) error {
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("remove stale %s: %w", path, err)
	}
	return nil
}

func findExecutable(root, name string) (string, error) {
	var match string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if d.Name() == name {
			match = path
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return match, nil
}

// transportMarkers are fragments of go command output that mean the module
// could not be fetched at all.
var transportMarkers = []string{
	"dial tcp",
	"no such host",
	"connection refused",
	"connection reset",
	"network is unreachable",
	"i/o timeout",
	"TLS handshake",
	"proxyconnect",
	"Client.Timeout exceeded",
}

func isTransportFailure(output string) bool {
	for _, marker := range transportMarkers {
		if strings.Contains(output, marker) {
			return true
		}
	}
	return false
}

// withDetail appends a single line of subprocess output to err.
func withDetail(err error, detail string) error {
	if detail == "" {
		return err
	}
	return fmt.Errorf("%w: %s", err, detail)
}
