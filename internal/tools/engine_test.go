package tools

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureInstallsMissingTool(t *testing.T) {
	root := t.TempDir()
	runner := &fakeRunner{}
	spec := moduleSpec(root, "widget", "v1.2.0")
	engine := newTestEngine(t, root, runner, []ToolSpec{spec})

	res, err := engine.Ensure(context.Background(), "widget", EnsureOptions{})
	require.NoError(t, err)
	assert.Equal(t, ActionInstalled, res.Action)
	assert.True(t, res.Satisfied)
	assert.True(t, res.Tool.Installed)
	assert.Equal(t, "v1.2.0", res.Tool.CurrentVersion)
	assert.Equal(t, spec.InstallPath, res.Tool.Path)
	assert.Equal(t, "widget version v1.2.0", readBinary(t, spec.InstallPath))

	call, ok := runner.last("go")
	require.True(t, ok)
	assert.Equal(t, []string{"install", "example.com/cmd/widget@v1.2.0"}, call.Args)

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	for _, entry := range entries {
		assert.NotContains(t, entry.Name(), "-stage-", "staging directory left behind")
	}
}

func TestEnsureIsIdempotent(t *testing.T) {
	root := t.TempDir()
	runner := &fakeRunner{}
	engine := newTestEngine(t, root, runner, []ToolSpec{moduleSpec(root, "widget", "v1.2.0")})

	_, err := engine.Ensure(context.Background(), "widget", EnsureOptions{})
	require.NoError(t, err)

	res, err := engine.Ensure(context.Background(), "widget", EnsureOptions{})
	require.NoError(t, err)
	assert.Equal(t, ActionNoop, res.Action)
	assert.Equal(t, 1, runner.count("go"))
}

func TestEnsureMatchPerformsNoMutation(t *testing.T) {
	root := t.TempDir()
	runner := &fakeRunner{}
	spec := moduleSpec(root, "widget", "v1.2.0")
	writeBinary(t, spec.InstallPath, "widget v1.2.0")
	before, err := os.Stat(spec.InstallPath)
	require.NoError(t, err)

	engine := newTestEngine(t, root, runner, []ToolSpec{spec}, WithOffline(true))
	res, err := engine.Ensure(context.Background(), "widget", EnsureOptions{})
	require.NoError(t, err)
	assert.Equal(t, ActionNoop, res.Action)

	after, err := os.Stat(spec.InstallPath)
	require.NoError(t, err)
	assert.Equal(t, before.ModTime(), after.ModTime())
	assert.Equal(t, 0, runner.count("go"))
	assert.NoDirExists(t, filepath.Join(root, ".locks"))
}

func TestEnsureReinstallsMismatchedVersion(t *testing.T) {
	root := t.TempDir()
	runner := &fakeRunner{}
	spec := moduleSpec(root, "widget", "v1.2.0")
	writeBinary(t, spec.InstallPath, "widget v1.1.0")

	engine := newTestEngine(t, root, runner, []ToolSpec{spec})
	res, err := engine.Ensure(context.Background(), "widget", EnsureOptions{})
	require.NoError(t, err)
	assert.Equal(t, ActionReinstalled, res.Action)
	assert.Equal(t, "widget version v1.2.0", readBinary(t, spec.InstallPath))
}

func TestEnsureLooseMatchAcceptsPrefixedOutput(t *testing.T) {
	tests := []struct {
		name   string
		output string
	}{
		{name: "bare tag", output: "v5.3.0"},
		{name: "path prefixed", output: "kustomize/v5.3.0"},
		{name: "struct dump", output: "{Version:kustomize/v5.3.0 GitCommit:abc BuildDate:2024-01-01}"},
		{name: "no v prefix", output: "golangci-lint has version 5.3.0 built with go1.21"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			runner := &fakeRunner{}
			spec := moduleSpec(root, "kustomize", "v5.3.0")
			writeBinary(t, spec.InstallPath, tt.output)

			engine := newTestEngine(t, root, runner, []ToolSpec{spec})
			res, err := engine.Ensure(context.Background(), "kustomize", EnsureOptions{})
			require.NoError(t, err)
			assert.Equal(t, ActionNoop, res.Action)
			assert.Equal(t, 0, runner.count("go"))
		})
	}
}

func TestEnsureLatestSkipsVersionProbe(t *testing.T) {
	root := t.TempDir()
	runner := &fakeRunner{}
	spec := moduleSpec(root, "setup-envtest", Latest)
	writeBinary(t, spec.InstallPath, brokenBinary)

	engine := newTestEngine(t, root, runner, []ToolSpec{spec})
	res, err := engine.Ensure(context.Background(), "setup-envtest", EnsureOptions{})
	require.NoError(t, err)
	assert.Equal(t, ActionNoop, res.Action)
	assert.Equal(t, 0, runner.total())
}

func TestEnsureLatestInstallsWhenAbsent(t *testing.T) {
	root := t.TempDir()
	runner := &fakeRunner{}
	engine := newTestEngine(t, root, runner, []ToolSpec{moduleSpec(root, "setup-envtest", Latest)})

	res, err := engine.Ensure(context.Background(), "setup-envtest", EnsureOptions{})
	require.NoError(t, err)
	assert.Equal(t, ActionInstalled, res.Action)

	call, ok := runner.last("go")
	require.True(t, ok)
	assert.Equal(t, "example.com/cmd/setup-envtest@latest", call.Args[1])
}

func TestEnsureVersionProbeFailed(t *testing.T) {
	root := t.TempDir()
	runner := &fakeRunner{}
	spec := moduleSpec(root, "widget", "v1.2.0")
	writeBinary(t, spec.InstallPath, brokenBinary)
	engine := newTestEngine(t, root, runner, []ToolSpec{spec})

	_, err := engine.Ensure(context.Background(), "widget", EnsureOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrVersionProbeFailed)
	assert.Equal(t, brokenBinary, readBinary(t, spec.InstallPath))
	assert.Equal(t, 0, runner.count("go"))

	res, err := engine.Ensure(context.Background(), "widget", EnsureOptions{Force: true})
	require.NoError(t, err)
	assert.Equal(t, ActionReinstalled, res.Action)
	assert.Equal(t, "widget version v1.2.0", readBinary(t, spec.InstallPath))
}

func TestEnsureForceReinstallsMatchingTool(t *testing.T) {
	root := t.TempDir()
	runner := &fakeRunner{}
	spec := moduleSpec(root, "widget", "v1.2.0")
	writeBinary(t, spec.InstallPath, "widget v1.2.0")
	engine := newTestEngine(t, root, runner, []ToolSpec{spec})

	res, err := engine.Ensure(context.Background(), "widget", EnsureOptions{Force: true})
	require.NoError(t, err)
	assert.Equal(t, ActionReinstalled, res.Action)
	assert.Equal(t, 1, runner.count("go"))
}

func TestEnsureVerificationFailed(t *testing.T) {
	root := t.TempDir()
	runner := &fakeRunner{
		onGo: func(pkg, version, gobin string) error {
			return os.WriteFile(filepath.Join(gobin, executableName("widget")), []byte("widget v9.9.9"), 0o755)
		},
	}
	engine := newTestEngine(t, root, runner, []ToolSpec{moduleSpec(root, "widget", "v1.2.0")})

	res, err := engine.Ensure(context.Background(), "widget", EnsureOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInstallVerificationFailed)
	assert.Equal(t, KindInstallVerificationFailed, res.Status().Kind)
	assert.Contains(t, err.Error(), "v9.9.9")
}

func TestEnsureOfflineFailsFastWithoutMutation(t *testing.T) {
	root := t.TempDir()
	runner := &fakeRunner{}
	stale := moduleSpec(root, "widget", "v1.2.0")
	missing := moduleSpec(root, "gadget", "v0.1.0")
	writeBinary(t, stale.InstallPath, "widget v1.1.0")

	engine := newTestEngine(t, root, runner, []ToolSpec{stale, missing}, WithOffline(true))
	report := engine.EnsureAll(context.Background(), EnsureOptions{})

	require.Len(t, report.Failed(), 2)
	for _, failure := range report.Failed() {
		assert.ErrorIs(t, failure, ErrNetworkUnavailable)
	}
	assert.Equal(t, "widget v1.1.0", readBinary(t, stale.InstallPath))
	assert.NoFileExists(t, missing.InstallPath)
	assert.Equal(t, 0, runner.count("go"))
}

func TestEnsureRecoversFromInterruptedInstall(t *testing.T) {
	root := t.TempDir()
	runner := &fakeRunner{
		onGo: func(pkg, version, gobin string) error {
			return errors.New("dial tcp: lookup proxy.golang.org: no such host")
		},
	}
	spec := moduleSpec(root, "widget", "v1.2.0")
	writeBinary(t, spec.InstallPath, "widget v1.1.0")
	engine := newTestEngine(t, root, runner, []ToolSpec{spec})

	_, err := engine.Ensure(context.Background(), "widget", EnsureOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNetworkUnavailable)
	assert.NoFileExists(t, spec.InstallPath)

	runner.mu.Lock()
	runner.onGo = nil
	runner.mu.Unlock()

	res, err := engine.Ensure(context.Background(), "widget", EnsureOptions{})
	require.NoError(t, err)
	assert.Equal(t, ActionInstalled, res.Action)
}

func TestEnsureAllIsolatesFailures(t *testing.T) {
	for _, jobs := range []int{1, 4} {
		t.Run(fmt.Sprintf("jobs=%d", jobs), func(t *testing.T) {
			root := t.TempDir()
			runner := &fakeRunner{
				onGo: func(pkg, version, gobin string) error {
					if pkg == "example.com/cmd/broken" {
						return errors.New("module not found")
					}
					name := filepath.Base(pkg)
					return os.WriteFile(filepath.Join(gobin, executableName(name)), []byte(name+" "+version), 0o755)
				},
			}
			specs := []ToolSpec{
				moduleSpec(root, "alpha", "v1.0.0"),
				moduleSpec(root, "broken", "v1.0.0"),
				{Name: "incomplete", InstallPath: DefaultInstallPath(root, "incomplete"), Version: "v1.0.0", Procedure: ModuleInstall{}},
				moduleSpec(root, "omega", "v2.0.0"),
			}
			engine := newTestEngine(t, root, runner, specs, WithJobs(jobs))

			report := engine.EnsureAll(context.Background(), EnsureOptions{})
			require.Len(t, report.Results, 4)
			for i, name := range []string{"alpha", "broken", "incomplete", "omega"} {
				assert.Equal(t, name, report.Results[i].Tool.Spec.Name)
			}

			assert.NoError(t, report.Results[0].Err)
			assert.ErrorIs(t, report.Results[1].Err, ErrInstallFailed)
			assert.ErrorIs(t, report.Results[2].Err, ErrUnsupportedProcedure)
			assert.NoError(t, report.Results[3].Err)
			assert.FileExists(t, specs[0].InstallPath)
			assert.FileExists(t, specs[3].InstallPath)

			require.Len(t, report.Failed(), 2)
			assert.Equal(t, "broken", report.Failed()[0].Tool)
			assert.Equal(t, "incomplete", report.Failed()[1].Tool)
			require.Error(t, report.Err())
		})
	}
}

func TestEnsureModuleInstallFailureKinds(t *testing.T) {
	tests := []struct {
		name       string
		output     string
		wantErr    error
		wantDetail string
	}{
		{
			name:       "compile error",
			output:     "# example.com/cmd/widget\n./main.go:12:2: undefined: run\n./main.go:14:3: too many errors",
			wantErr:    ErrInstallFailed,
			wantDetail: "exit status 1: ./main.go:14:3: too many errors",
		},
		{
			name:       "unknown revision",
			output:     "go: example.com/cmd/widget@v1.2.0: invalid version: unknown revision v1.2.0",
			wantErr:    ErrInstallFailed,
			wantDetail: "unknown revision v1.2.0",
		},
		{
			name:       "proxy unreachable",
			output:     "go: downloading example.com/cmd/widget v1.2.0\ngo: example.com/cmd/widget@v1.2.0: Get \"https://proxy.golang.org/example.com/cmd/widget/@v/v1.2.0.info\": dial tcp: lookup proxy.golang.org: no such host",
			wantErr:    ErrNetworkUnavailable,
			wantDetail: "no such host",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			runner := &fakeRunner{
				onGo: func(pkg, version, gobin string) error { return errors.New(tt.output) },
			}
			engine := newTestEngine(t, root, runner, []ToolSpec{moduleSpec(root, "widget", "v1.2.0")})

			_, err := engine.Ensure(context.Background(), "widget", EnsureOptions{})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.NotContains(t, err.Error(), "\n")
			assert.Contains(t, err.Error(), tt.wantDetail)
		})
	}
}

func TestEnsureInstallTimeout(t *testing.T) {
	root := t.TempDir()
	runner := &fakeRunner{hangs: func(command string) bool { return command == "go" }}
	spec := moduleSpec(root, "widget", "v1.2.0")
	engine := newTestEngine(t, root, runner, []ToolSpec{spec}, WithInstallTimeout(150*time.Millisecond))

	res, err := engine.Ensure(context.Background(), "widget", EnsureOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInstallFailed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, KindInstallFailed, KindOf(err))
	assert.Contains(t, err.Error(), "install timed out after 150ms")
	assert.NotContains(t, err.Error(), "\n")
	assert.False(t, res.Tool.Installed)
	assert.NoFileExists(t, spec.InstallPath)
}

func TestEnsureHungVersionCommand(t *testing.T) {
	root := t.TempDir()
	runner := &fakeRunner{hangs: filepath.IsAbs}
	spec := moduleSpec(root, "widget", "v1.2.0")
	writeBinary(t, spec.InstallPath, "widget v1.2.0")
	engine := newTestEngine(t, root, runner, []ToolSpec{spec}, WithProbeTimeout(100*time.Millisecond))

	start := time.Now()
	_, err := engine.Ensure(context.Background(), "widget", EnsureOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrVersionProbeFailed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "timed out after 100ms")
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, 0, runner.count("go"))
	assert.Equal(t, "widget v1.2.0", readBinary(t, spec.InstallPath))
}

func TestEnsureLockWaitExpires(t *testing.T) {
	root := t.TempDir()
	runner := &fakeRunner{}
	spec := moduleSpec(root, "widget", "v1.2.0")
	engine := newTestEngine(t, root, runner, []ToolSpec{spec}, WithInstallTimeout(200*time.Millisecond))

	unlock, err := acquireLock(context.Background(), filepath.Join(root, ".locks"), "widget")
	require.NoError(t, err)
	defer unlock()

	_, err = engine.Ensure(context.Background(), "widget", EnsureOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInstallFailed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "acquire lock widget")
	assert.Equal(t, 0, runner.count("go"))

	assert.ErrorIs(t, engine.Clean(context.Background(), "widget"), ErrInstallFailed)
}

func TestLeftoverLockFileDoesNotBlock(t *testing.T) {
	root := t.TempDir()
	spec := moduleSpec(root, "kind", "v0.23.0")
	writeBinary(t, filepath.Join(root, ".locks", "kind.lock"), "999999\n")
	engine := newTestEngine(t, root, &fakeRunner{}, []ToolSpec{spec}, WithInstallTimeout(2*time.Second))

	res, err := engine.Ensure(context.Background(), "kind", EnsureOptions{})
	require.NoError(t, err)
	assert.Equal(t, ActionInstalled, res.Action)

	require.NoError(t, engine.Clean(context.Background(), "kind"))
	assert.NoFileExists(t, spec.InstallPath)
}

func TestEnsureUnknownTool(t *testing.T) {
	root := t.TempDir()
	engine := newTestEngine(t, root, &fakeRunner{}, []ToolSpec{moduleSpec(root, "widget", "v1.0.0")})

	_, err := engine.Ensure(context.Background(), "nope", EnsureOptions{})
	assert.ErrorIs(t, err, ErrUnknownTool)
	_, err = engine.Path("nope")
	assert.ErrorIs(t, err, ErrUnknownTool)
}

func TestEnsureConcurrentCallsInstallOnce(t *testing.T) {
	root := t.TempDir()
	runner := &fakeRunner{
		onGo: func(pkg, version, gobin string) error {
			time.Sleep(150 * time.Millisecond)
			return os.WriteFile(filepath.Join(gobin, executableName("widget")), []byte("widget "+version), 0o755)
		},
	}
	engine := newTestEngine(t, root, runner, []ToolSpec{moduleSpec(root, "widget", "v1.2.0")})

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = engine.Ensure(context.Background(), "widget", EnsureOptions{})
		}()
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 1, runner.count("go"))
}

func TestEnsureScriptInstall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, userAgent, r.Header.Get("User-Agent"))
		fmt.Fprintln(w, "#!/bin/sh")
	}))
	defer srv.Close()

	root := t.TempDir()
	runner := &fakeRunner{
		onScript: func(interpreter string, args []string, opts RunOptions) error {
			binDir := filepath.Join(args[2], "bin")
			if err := os.MkdirAll(binDir, 0o755); err != nil {
				return err
			}
			return os.WriteFile(filepath.Join(binDir, executableName("gizmo")), []byte("gizmo has version "+envValue(opts.Env, "WANT")), 0o755)
		},
	}
	spec := ToolSpec{
		Name:        "gizmo",
		InstallPath: DefaultInstallPath(root, "gizmo"),
		Version:     "v1.4.2",
		VersionArgs: []string{"version"},
		Procedure: ScriptInstall{
			URL:         srv.URL + "/install.sh",
			Interpreter: "sh",
			Args:        []string{"-b", "{dir}", "{version}"},
			Env:         []string{"WANT={version_bare}"},
		},
	}
	engine := newTestEngine(t, root, runner, []ToolSpec{spec})

	res, err := engine.Ensure(context.Background(), "gizmo", EnsureOptions{})
	require.NoError(t, err)
	assert.Equal(t, ActionInstalled, res.Action)
	assert.Equal(t, "gizmo has version 1.4.2", readBinary(t, spec.InstallPath))

	call, ok := runner.last("sh")
	require.True(t, ok)
	require.Len(t, call.Args, 4)
	assert.Equal(t, "-b", call.Args[1])
	assert.Equal(t, call.Opts.Dir, call.Args[2])
	assert.Equal(t, root, filepath.Dir(call.Args[2]))
	assert.Equal(t, "v1.4.2", call.Args[3])
	assert.Contains(t, call.Opts.Env, "WANT=1.4.2")
	assert.NoFileExists(t, call.Args[0], "downloaded script left behind")
}

func TestEnsureScriptFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.sh" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprintln(w, "#!/bin/sh")
	}))
	defer srv.Close()

	tests := []struct {
		name     string
		url      string
		sha      string
		onScript func(string, []string, RunOptions) error
		want     error
	}{
		{
			name: "download failure",
			url:  srv.URL + "/missing.sh",
			want: ErrNetworkUnavailable,
		},
		{
			name: "non-zero exit",
			url:  srv.URL + "/install.sh",
			onScript: func(string, []string, RunOptions) error {
				return errors.New("tar: unexpected end of file")
			},
			want: ErrInstallFailed,
		},
		{
			name:     "no binary produced",
			url:      srv.URL + "/install.sh",
			onScript: func(string, []string, RunOptions) error { return nil },
			want:     ErrInstallFailed,
		},
		{
			name: "checksum mismatch",
			url:  srv.URL + "/install.sh",
			sha:  "0000000000000000000000000000000000000000000000000000000000000000",
			want: ErrInstallFailed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			runner := &fakeRunner{onScript: tt.onScript}
			spec := ToolSpec{
				Name:        "gizmo",
				InstallPath: DefaultInstallPath(root, "gizmo"),
				Version:     "v1.0.0",
				Procedure:   ScriptInstall{URL: tt.url, SHA256: tt.sha},
			}
			engine := newTestEngine(t, root, runner, []ToolSpec{spec})

			_, err := engine.Ensure(context.Background(), "gizmo", EnsureOptions{})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.NoFileExists(t, spec.InstallPath)
		})
	}
}

func pluginSpecs(root string) []ToolSpec {
	return []ToolSpec{
		{
			Name:        "helm",
			InstallPath: DefaultInstallPath(root, "helm"),
			Version:     "v3.14.0",
			VersionArgs: []string{"version", "--short"},
			Procedure:   ScriptInstall{URL: "http://127.0.0.1:1/get-helm-3"},
		},
		{
			Name:      "helm-unittest",
			Version:   "v0.4.1",
			Procedure: PluginInstall{Host: "helm", Plugin: "unittest", Source: "https://example.com/unittest"},
		},
	}
}

func TestEnsurePlugin(t *testing.T) {
	tests := []struct {
		name       string
		installed  map[string]string
		installErr error
		wantAction Action
		wantErr    error
		wantCalls  []string
	}{
		{
			name:       "absent plugin is installed",
			wantAction: ActionInstalled,
			wantCalls:  []string{"list", "list", "install https://example.com/unittest v0.4.1", "list"},
		},
		{
			name:       "matching plugin is left alone",
			installed:  map[string]string{"unittest": "0.4.1"},
			wantAction: ActionNoop,
			wantCalls:  []string{"list"},
		},
		{
			name:       "wrong version is uninstalled before install",
			installed:  map[string]string{"unittest": "0.3.0"},
			wantAction: ActionReinstalled,
			wantCalls:  []string{"list", "list", "uninstall unittest", "install https://example.com/unittest v0.4.1", "list"},
		},
		{
			name:       "install failure after uninstall is a conflict",
			installed:  map[string]string{"unittest": "0.3.0"},
			installErr: errors.New("git clone failed"),
			wantErr:    ErrPluginStateConflict,
			wantCalls:  []string{"list", "list", "uninstall unittest", "install https://example.com/unittest v0.4.1"},
		},
		{
			name:       "install failure without prior plugin",
			installErr: errors.New("git clone failed"),
			wantErr:    ErrInstallFailed,
			wantCalls:  []string{"list", "list", "install https://example.com/unittest v0.4.1"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			specs := pluginSpecs(root)
			writeBinary(t, specs[0].InstallPath, "v3.14.0+g3fc9f4b")

			host := newFakeHost(tt.installed)
			host.installErr = tt.installErr
			var boundTo string
			engine := newTestEngine(t, root, &fakeRunner{}, specs, WithPluginHosts(func(hostPath string) PluginHost {
				boundTo = hostPath
				return host
			}))

			res, err := engine.Ensure(context.Background(), "helm-unittest", EnsureOptions{})
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantAction, res.Action)
				assert.Equal(t, "0.4.1", res.Tool.CurrentVersion)
			}
			assert.Equal(t, specs[0].InstallPath, boundTo)
			assert.Equal(t, specs[0].InstallPath, res.Tool.Path)
			assert.Equal(t, tt.wantCalls, host.callLog())
		})
	}
}

func TestEnsurePluginVerificationFailed(t *testing.T) {
	root := t.TempDir()
	specs := pluginSpecs(root)
	writeBinary(t, specs[0].InstallPath, "v3.14.0")

	host := newFakeHost(nil)
	host.registers = "0.2.0"
	engine := newTestEngine(t, root, &fakeRunner{}, specs, WithPluginHosts(func(string) PluginHost { return host }))

	_, err := engine.Ensure(context.Background(), "helm-unittest", EnsureOptions{})
	assert.ErrorIs(t, err, ErrInstallVerificationFailed)
}

func TestEnsurePluginFailsWhenHostFails(t *testing.T) {
	root := t.TempDir()
	host := newFakeHost(nil)
	engine := newTestEngine(t, root, &fakeRunner{}, pluginSpecs(root),
		WithOffline(true),
		WithPluginHosts(func(string) PluginHost { return host }))

	_, err := engine.Ensure(context.Background(), "helm-unittest", EnsureOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNetworkUnavailable)
	assert.Contains(t, err.Error(), "helm-unittest")
	assert.Empty(t, host.callLog())
}

func TestEnsureAllResolvesFailedHostOnce(t *testing.T) {
	for _, jobs := range []int{1, 4} {
		t.Run(fmt.Sprintf("jobs=%d", jobs), func(t *testing.T) {
			root := t.TempDir()
			runner := &fakeRunner{
				onGo: func(pkg, version, gobin string) error {
					return errors.New("dial tcp: lookup proxy.golang.org: no such host")
				},
			}
			specs := []ToolSpec{
				moduleSpec(root, "helm", "v3.14.0"),
				{Name: "helm-unittest", Version: "v0.4.1", Procedure: PluginInstall{Host: "helm", Plugin: "unittest", Source: "https://example.com/unittest"}},
				{Name: "helm-diff", Version: "v3.9.0", Procedure: PluginInstall{Host: "helm", Plugin: "diff", Source: "https://example.com/diff"}},
			}
			host := newFakeHost(nil)
			engine := newTestEngine(t, root, runner, specs,
				WithJobs(jobs),
				WithPluginHosts(func(string) PluginHost { return host }))

			report := engine.EnsureAll(context.Background(), EnsureOptions{})
			require.Len(t, report.Failed(), 3)
			assert.Equal(t, 1, runner.count("go"))
			assert.Empty(t, host.callLog())

			assert.ErrorIs(t, report.Results[0].Err, ErrNetworkUnavailable)
			for _, res := range report.Results[1:] {
				assert.ErrorIs(t, res.Err, ErrNetworkUnavailable)
				assert.Equal(t, res.Tool.Spec.Name+": NetworkUnavailable: host helm: NetworkUnavailable", res.Err.Error())
			}
		})
	}
}

func TestEnsurePluginWithUndeclaredHost(t *testing.T) {
	root := t.TempDir()
	spec := ToolSpec{
		Name:      "orphan",
		Version:   "v1.0.0",
		Procedure: PluginInstall{Host: "missing", Plugin: "orphan", Source: "https://example.com/orphan"},
	}
	engine := newTestEngine(t, root, &fakeRunner{}, []ToolSpec{spec})

	_, err := engine.Ensure(context.Background(), "orphan", EnsureOptions{})
	assert.ErrorIs(t, err, ErrUnsupportedProcedure)
}

func TestInspectNeverInstalls(t *testing.T) {
	root := t.TempDir()
	runner := &fakeRunner{}
	present := moduleSpec(root, "widget", "v1.2.0")
	stale := moduleSpec(root, "gadget", "v2.0.0")
	missing := moduleSpec(root, "doohickey", "v0.1.0")
	writeBinary(t, present.InstallPath, "widget v1.2.0")
	writeBinary(t, stale.InstallPath, "gadget v1.9.0")

	engine := newTestEngine(t, root, runner, []ToolSpec{present, stale, missing})
	report := engine.InspectAll(context.Background())
	require.Len(t, report.Results, 3)

	assert.True(t, report.Results[0].Satisfied)
	assert.False(t, report.Results[1].Satisfied)
	assert.Equal(t, "v1.9.0", report.Results[1].Tool.CurrentVersion)
	assert.False(t, report.Results[2].Tool.Installed)
	assert.NoError(t, report.Err())
	assert.Equal(t, 0, runner.count("go"))
	assert.NoFileExists(t, missing.InstallPath)

	res, err := engine.Inspect(context.Background(), "gadget")
	require.NoError(t, err)
	assert.Equal(t, "gadget", res.Status().Tool)
	assert.Equal(t, "module", res.Status().Procedure)
}

func TestPathResolvesPluginsToHost(t *testing.T) {
	root := t.TempDir()
	specs := pluginSpecs(root)
	engine := newTestEngine(t, root, &fakeRunner{}, specs)

	path, err := engine.Path("helm")
	require.NoError(t, err)
	assert.Equal(t, specs[0].InstallPath, path)

	path, err = engine.Path("helm-unittest")
	require.NoError(t, err)
	assert.Equal(t, specs[0].InstallPath, path)
}

func TestClean(t *testing.T) {
	root := t.TempDir()
	specs := append(pluginSpecs(root), moduleSpec(root, "widget", "v1.0.0"))
	writeBinary(t, specs[0].InstallPath, "v3.14.0")
	writeBinary(t, specs[2].InstallPath, "widget v1.0.0")

	host := newFakeHost(map[string]string{"unittest": "0.4.1"})
	engine := newTestEngine(t, root, &fakeRunner{}, specs, WithPluginHosts(func(string) PluginHost { return host }))

	require.NoError(t, engine.Clean(context.Background(), "widget"))
	assert.NoFileExists(t, specs[2].InstallPath)
	require.NoError(t, engine.Clean(context.Background(), "widget"))

	require.NoError(t, engine.Clean(context.Background(), "helm-unittest"))
	assert.Equal(t, []string{"list", "uninstall unittest"}, host.callLog())
	assert.FileExists(t, specs[0].InstallPath)

	assert.ErrorIs(t, engine.Clean(context.Background(), "nope"), ErrUnknownTool)
}

func TestEnsureObserverSeesEveryTool(t *testing.T) {
	root := t.TempDir()
	specs := []ToolSpec{moduleSpec(root, "alpha", "v1.0.0"), moduleSpec(root, "beta", "v1.0.0")}

	var mu sync.Mutex
	var started, finished []string
	observer := ObserverFuncs{
		OnStarted: func(spec ToolSpec) {
			mu.Lock()
			defer mu.Unlock()
			started = append(started, spec.Name)
		},
		OnFinished: func(res Result) {
			mu.Lock()
			defer mu.Unlock()
			finished = append(finished, res.Tool.Spec.Name+":"+string(res.Action))
		},
	}
	engine := newTestEngine(t, root, &fakeRunner{}, specs, WithObserver(observer))

	report := engine.EnsureAll(context.Background(), EnsureOptions{})
	require.NoError(t, report.Err())
	assert.Equal(t, []string{"alpha", "beta"}, started)
	assert.Equal(t, []string{"alpha:installed", "beta:installed"}, finished)
}
