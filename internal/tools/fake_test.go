package tools

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// brokenBinary marks a fake binary whose version probe exits non-zero.
const brokenBinary = "#broken"

type fakeCall struct {
	Command string
	Args    []string
	Opts    RunOptions
}

// fakeRunner stands in for subprocesses. A "binary" is a plain file whose
// content is the text it prints when probed.
type fakeRunner struct {
	mu       sync.Mutex
	calls    []fakeCall
	onGo     func(pkg, version, gobin string) error
	onScript func(interpreter string, args []string, opts RunOptions) error
	// hangs reports commands that block until their context ends.
	hangs func(command string) bool
}

func (f *fakeRunner) Run(ctx context.Context, command string, args []string, opts RunOptions) (RunResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, fakeCall{Command: command, Args: append([]string(nil), args...), Opts: opts})
	onGo, onScript, hangs := f.onGo, f.onScript, f.hangs
	f.mu.Unlock()

	if hangs != nil && hangs(command) {
		<-ctx.Done()
		return RunResult{}, errors.New("signal: killed")
	}

	switch {
	case command == "go":
		if len(args) != 2 || args[0] != "install" {
			return RunResult{}, fmt.Errorf("unexpected go invocation %v", args)
		}
		pkg, version, _ := strings.Cut(args[1], "@")
		gobin := envValue(opts.Env, "GOBIN")
		if onGo != nil {
			if err := onGo(pkg, version, gobin); err != nil {
				return RunResult{Stderr: []byte(err.Error())}, errors.New("exit status 1")
			}
			return RunResult{}, nil
		}
		name := path.Base(pkg)
		return RunResult{}, os.WriteFile(filepath.Join(gobin, executableName(name)), []byte(name+" version "+version), 0o755)
	case filepath.IsAbs(command):
		data, err := os.ReadFile(command)
		if err != nil {
			return RunResult{}, err
		}
		if strings.HasPrefix(string(data), brokenBinary) {
			return RunResult{Stderr: []byte("segmentation fault")}, errors.New("exit status 139")
		}
		return RunResult{Stdout: data}, nil
	default:
		if onScript != nil {
			if err := onScript(command, args, opts); err != nil {
				return RunResult{Stderr: []byte(err.Error()), ExitCode: 1}, errors.New("exit status 1")
			}
			return RunResult{}, nil
		}
		return RunResult{}, fmt.Errorf("unexpected command %s", command)
	}
}

func (f *fakeRunner) count(command string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Command == command {
			n++
		}
	}
	return n
}

func (f *fakeRunner) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeRunner) last(command string) (fakeCall, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.calls) - 1; i >= 0; i-- {
		if f.calls[i].Command == command {
			return f.calls[i], true
		}
	}
	return fakeCall{}, false
}

func envValue(env []string, key string) string {
	for _, kv := range env {
		if k, v, ok := strings.Cut(kv, "="); ok && k == key {
			return v
		}
	}
	return ""
}

// fakeHost is an in-memory plugin registry.
type fakeHost struct {
	mu         sync.Mutex
	plugins    map[string]string
	calls      []string
	installErr error
	// registers overrides the version recorded on install.
	registers string
}

func newFakeHost(plugins map[string]string) *fakeHost {
	if plugins == nil {
		plugins = map[string]string{}
	}
	return &fakeHost{plugins: plugins}
}

func (h *fakeHost) ListPlugins(context.Context) ([]Plugin, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, "list")
	out := make([]Plugin, 0, len(h.plugins))
	for name, version := range h.plugins {
		out = append(out, Plugin{Name: name, Version: version})
	}
	return out, nil
}

func (h *fakeHost) InstallPlugin(_ context.Context, source, version string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, "install "+source+" "+version)
	if h.installErr != nil {
		return h.installErr
	}
	if h.registers != "" {
		version = h.registers
	}
	h.plugins[path.Base(source)] = strings.TrimPrefix(version, "v")
	return nil
}

func (h *fakeHost) UninstallPlugin(_ context.Context, name string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, "uninstall "+name)
	delete(h.plugins, name)
	return nil
}

func (h *fakeHost) callLog() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.calls...)
}

func moduleSpec(root, name, version string) ToolSpec {
	return ToolSpec{
		Name:        name,
		InstallPath: DefaultInstallPath(root, name),
		Version:     version,
		VersionArgs: []string{"--version"},
		Procedure:   ModuleInstall{Package: "example.com/cmd/" + name},
	}
}

func writeBinary(t *testing.T, path, output string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(output), 0o755))
}

func readBinary(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func newTestEngine(t *testing.T, root string, runner Runner, specs []ToolSpec, opts ...Option) *Engine {
	t.Helper()
	reg, err := NewRegistry(root, specs...)
	require.NoError(t, err)
	base := []Option{
		WithRunner(runner),
		WithFetcher(NewHTTPFetcher(5*time.Second, 1)),
	}
	return NewEngine(reg, append(base, opts...)...)
}
