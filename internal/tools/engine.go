package tools

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultInstallTimeout bounds one install procedure.
	DefaultInstallTimeout = 10 * time.Minute
	// DefaultProbeTimeout bounds one version probe.
	DefaultProbeTimeout = 30 * time.Second
)

// Engine ensures that registry tools exist at their desired versions.
type Engine struct {
	registry       *Registry
	runner         Runner
	fetcher        Fetcher
	plugins        PluginHostFactory
	observer       Observer
	log            logr.Logger
	lockDir        string
	goCommand      string
	offline        bool
	jobs           int
	match          MatchMode
	installTimeout time.Duration
	probeTimeout   time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithRunner replaces the subprocess runner.
func WithRunner(r Runner) Option { return func(e *Engine) { e.runner = r } }

// WithFetcher replaces the script downloader.
func WithFetcher(f Fetcher) Option { return func(e *Engine) { e.fetcher = f } }

// WithPluginHosts replaces how plugin hosts are driven.
func WithPluginHosts(f PluginHostFactory) Option { return func(e *Engine) { e.plugins = f } }

// WithObserver registers a progress observer.
func WithObserver(o Observer) Option { return func(e *Engine) { e.observer = o } }

// WithLogger sets the engine logger.
func WithLogger(l logr.Logger) Option { return func(e *Engine) { e.log = l } }

// WithOffline makes every install fail fast with KindNetworkUnavailable.
func WithOffline(offline bool) Option { return func(e *Engine) { e.offline = offline } }

// WithJobs bounds how many tools EnsureAll resolves at once.
func WithJobs(n int) Option { return func(e *Engine) { e.jobs = n } }

// WithMatchMode sets the default version match mode.
func WithMatchMode(m MatchMode) Option { return func(e *Engine) { e.match = m } }

// WithInstallTimeout bounds each install procedure.
func WithInstallTimeout(d time.Duration) Option { return func(e *Engine) { e.installTimeout = d } }

// WithProbeTimeout bounds each version probe.
func WithProbeTimeout(d time.Duration) Option { return func(e *Engine) { e.probeTimeout = d } }

// WithLockDir overrides where lock files are created.
func WithLockDir(dir string) Option { return func(e *Engine) { e.lockDir = dir } }

// WithGoCommand overrides the go binary used by module installs.
func WithGoCommand(path string) Option { return func(e *Engine) { e.goCommand = path } }

// NewEngine builds an engine over reg.
func NewEngine(reg *Registry, opts ...Option) *Engine {
	e := &Engine{
		registry:       reg,
		runner:         CmdRunner{},
		observer:       NopObserver{},
		log:            logr.Discard(),
		goCommand:      "go",
		jobs:           1,
		match:          MatchLoose,
		installTimeout: DefaultInstallTimeout,
		probeTimeout:   DefaultProbeTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.fetcher == nil {
		e.fetcher = NewHTTPFetcher(DefaultHTTPTimeout, 0)
	}
	if e.plugins == nil {
		runner := e.runner
		e.plugins = func(hostPath string) PluginHost {
			return &CLIPluginHost{Path: hostPath, Runner: runner}
		}
	}
	if e.lockDir == "" {
		e.lockDir = filepath.Join(reg.Root(), ".locks")
	}
	if e.jobs < 1 {
		e.jobs = 1
	}
	if e.installTimeout <= 0 {
		e.installTimeout = DefaultInstallTimeout
	}
	if e.probeTimeout <= 0 {
		e.probeTimeout = DefaultProbeTimeout
	}
	return e
}

// Registry returns the tools the engine manages.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// EnsureOptions tunes a single Ensure or EnsureAll call.
type EnsureOptions struct {
	// Force reinstalls even when the installed version matches.
	Force bool
}

// Ensure makes the named tool present at its desired version. The returned
// error, when non-nil, is the *AcquisitionError also stored in Result.Err.
func (e *Engine) Ensure(ctx context.Context, name string, opts EnsureOptions) (Result, error) {
	spec, ok := e.registry.Lookup(name)
	if !ok {
		err := newError(name, KindUnknownTool, fmt.Errorf("known tools: %v", e.registry.Names()))
		return Result{Tool: ResolvedTool{Spec: ToolSpec{Name: name}}, Err: err}, err
	}
	res := e.ensure(ctx, spec, opts, newSharedResults(EnsureOptions{}))
	return res, res.Err
}

// EnsureAll ensures every registry entry. Failures are isolated: each tool is
// attempted and its outcome recorded in registry order.
func (e *Engine) EnsureAll(ctx context.Context, opts EnsureOptions) Report {
	specs := e.registry.Specs()
	results := make([]Result, len(specs))
	shared := newSharedResults(opts)
	if e.jobs <= 1 {
		for i, spec := range specs {
			results[i] = e.ensure(ctx, spec, opts, shared)
		}
		return Report{Results: results}
	}

	var g errgroup.Group
	g.SetLimit(e.jobs)
	for i, spec := range specs {
		g.Go(func() error {
			results[i] = e.ensure(ctx, spec, opts, shared)
			return nil
		})
	}
	_ = g.Wait()
	return Report{Results: results}
}

func (e *Engine) ensure(ctx context.Context, spec ToolSpec, opts EnsureOptions, shared *sharedResults) Result {
	start := time.Now()
	e.observer.Started(spec)
	var res Result
	if spec.OwnsBinary() {
		res = shared.do(spec.Name, func() Result { return e.resolve(ctx, spec, opts, shared) })
	} else {
		res = e.resolve(ctx, spec, opts, shared)
	}
	res.Duration = time.Since(start)
	if res.Err != nil {
		e.log.V(1).Info("tool not resolved", "tool", spec.Name, "kind", string(KindOf(res.Err)), "error", res.Err.Error())
	}
	e.observer.Finished(res)
	return res
}

func (e *Engine) resolve(ctx context.Context, spec ToolSpec, opts EnsureOptions, shared *sharedResults) Result {
	log := e.log.WithValues("tool", spec.Name)

	if err := checkProcedure(spec); err != nil {
		return failed(ResolvedTool{Spec: spec, Path: spec.InstallPath}, err)
	}
	if p, ok := spec.Procedure.(PluginInstall); ok {
		return e.resolvePlugin(ctx, spec, p, opts, shared)
	}

	current, matched, err := e.probe(ctx, spec)
	switch {
	case err != nil && !opts.Force:
		return failed(current, err)
	case err != nil:
		log.V(1).Info("ignoring failed version probe", "error", err.Error())
	case matched && !opts.Force:
		log.V(1).Info("tool satisfied", "version", current.CurrentVersion, "path", current.Path)
		return Result{Tool: current, Action: ActionNoop, Satisfied: true}
	}

	if e.offline {
		return failed(current, newError(spec.Name, KindNetworkUnavailable, offlineReason(current, spec)))
	}

	lockCtx, cancelLock := context.WithTimeout(ctx, e.installTimeout)
	unlock, err := acquireLock(lockCtx, e.lockDir, spec.Name)
	cancelLock()
	if err != nil {
		return failed(current, newError(spec.Name, KindInstallFailed, err))
	}
	defer unlock()

	if !opts.Force {
		again, ok, err := e.probe(ctx, spec)
		if err == nil && ok {
			log.V(1).Info("tool installed concurrently", "version", again.CurrentVersion)
			return Result{Tool: again, Action: ActionNoop, Satisfied: true}
		}
		if err == nil {
			current = again
		}
	}

	action := ActionInstalled
	if current.Installed {
		action = ActionReinstalled
	}
	log.Info("installing tool",
		"version", spec.Version,
		"found", current.CurrentVersion,
		"procedure", string(spec.Procedure.Kind()),
		"path", spec.InstallPath)

	if err := removeStale(spec.InstallPath); err != nil {
		return failed(current, newError(spec.Name, KindInstallFailed, err))
	}
	current.Installed = false
	current.CurrentVersion = ""

	installCtx, cancel := context.WithTimeout(ctx, e.installTimeout)
	defer cancel()
	if err := e.install(installCtx, spec); err != nil {
		if errors.Is(installCtx.Err(), context.DeadlineExceeded) {
			log.V(1).Info("install interrupted", "error", err.Error())
			err = newError(spec.Name, KindInstallFailed, fmt.Errorf("install timed out after %s: %w", e.installTimeout, context.DeadlineExceeded))
		}
		return failed(current, asToolError(spec.Name, KindInstallFailed, err))
	}

	after, ok, err := e.probe(ctx, spec)
	if err != nil {
		return failed(after, newError(spec.Name, KindInstallVerificationFailed, err))
	}
	if !ok {
		detail := fmt.Errorf("installed binary reports %q, want %s", after.CurrentVersion, spec.Version)
		if !after.Installed {
			detail = fmt.Errorf("%s missing after install", spec.InstallPath)
		}
		return failed(after, newError(spec.Name, KindInstallVerificationFailed, detail))
	}
	log.Info("tool ready", "version", after.CurrentVersion, "action", string(action))
	return Result{Tool: after, Action: action, Satisfied: true}
}

func (e *Engine) resolvePlugin(ctx context.Context, spec ToolSpec, p PluginInstall, opts EnsureOptions, shared *sharedResults) Result {
	log := e.log.WithValues("tool", spec.Name, "host", p.Host)

	hostSpec, ok := e.registry.Lookup(p.Host)
	if !ok {
		return failed(ResolvedTool{Spec: spec}, newError(spec.Name, KindUnsupportedProcedure, fmt.Errorf("host tool %q is not declared", p.Host)))
	}
	if !hostSpec.OwnsBinary() {
		return failed(ResolvedTool{Spec: spec}, newError(spec.Name, KindUnsupportedProcedure, fmt.Errorf("host tool %q is itself a plugin", p.Host)))
	}

	hostRes := shared.do(hostSpec.Name, func() Result { return e.resolve(ctx, hostSpec, shared.opts, shared) })
	current := ResolvedTool{Spec: spec, Path: hostSpec.InstallPath}
	if hostRes.Err != nil {
		kind := KindOf(hostRes.Err)
		if kind == "" {
			kind = KindInstallFailed
		}
		return failed(current, newError(spec.Name, kind, fmt.Errorf("host %s: %s", p.Host, kind)))
	}

	host := e.plugins(hostSpec.InstallPath)
	current, matched, err := e.probePlugin(ctx, spec, p, host)
	if err != nil {
		return failed(current, err)
	}
	if matched && !opts.Force {
		log.V(1).Info("plugin satisfied", "version", current.CurrentVersion)
		return Result{Tool: current, Action: ActionNoop, Satisfied: true}
	}
	if e.offline {
		return failed(current, newError(spec.Name, KindNetworkUnavailable, offlineReason(current, spec)))
	}

	lockCtx, cancelLock := context.WithTimeout(ctx, e.installTimeout)
	unlock, err := acquireLock(lockCtx, e.lockDir, p.Host+".plugins")
	cancelLock()
	if err != nil {
		return failed(current, newError(spec.Name, KindInstallFailed, err))
	}
	defer unlock()

	current, matched, err = e.probePlugin(ctx, spec, p, host)
	if err != nil {
		return failed(current, err)
	}
	if matched && !opts.Force {
		return Result{Tool: current, Action: ActionNoop, Satisfied: true}
	}

	installCtx, cancel := context.WithTimeout(ctx, e.installTimeout)
	defer cancel()

	action := ActionInstalled
	if current.Installed {
		action = ActionReinstalled
		log.Info("removing plugin", "plugin", p.Plugin, "found", current.CurrentVersion)
		if err := host.UninstallPlugin(installCtx, p.Plugin); err != nil {
			return failed(current, newError(spec.Name, KindInstallFailed, err))
		}
	}

	version := spec.Version
	if spec.IsLatest() {
		version = ""
	}
	log.Info("installing plugin", "plugin", p.Plugin, "version", spec.Version, "source", p.Source)
	if err := host.InstallPlugin(installCtx, p.Source, version); err != nil {
		if action == ActionReinstalled {
			conflict := fmt.Errorf("removed %s %s but installing %s failed: %w", p.Plugin, current.CurrentVersion, spec.Version, err)
			current.Installed = false
			current.CurrentVersion = ""
			return failed(current, newError(spec.Name, KindPluginStateConflict, conflict))
		}
		return failed(current, newError(spec.Name, KindInstallFailed, err))
	}

	after, matched, err := e.probePlugin(ctx, spec, p, host)
	if err != nil {
		return failed(after, newError(spec.Name, KindInstallVerificationFailed, err))
	}
	if !matched {
		detail := fmt.Errorf("plugin %s reports %q, want %s", p.Plugin, after.CurrentVersion, spec.Version)
		if !after.Installed {
			detail = fmt.Errorf("plugin %s not registered after install", p.Plugin)
		}
		return failed(after, newError(spec.Name, KindInstallVerificationFailed, detail))
	}
	return Result{Tool: after, Action: action, Satisfied: true}
}

// sharedResults resolves each binary-owning tool at most once per Ensure or
// EnsureAll call, so a host shared by several plugins is not reinstalled
// (or retried after failing) for each of them.
type sharedResults struct {
	opts    EnsureOptions
	mu      sync.Mutex
	results map[string]*sharedResult
}

type sharedResult struct {
	once sync.Once
	res  Result
}

func newSharedResults(opts EnsureOptions) *sharedResults {
	return &sharedResults{opts: opts, results: map[string]*sharedResult{}}
}

func (s *sharedResults) do(name string, resolve func() Result) Result {
	s.mu.Lock()
	r, ok := s.results[name]
	if !ok {
		r = &sharedResult{}
		s.results[name] = r
	}
	s.mu.Unlock()
	r.once.Do(func() { r.res = resolve() })
	return r.res
}

func (e *Engine) probePlugin(ctx context.Context, spec ToolSpec, p PluginInstall, host PluginHost) (ResolvedTool, bool, error) {
	hostSpec, _ := e.registry.Lookup(p.Host)
	rt := ResolvedTool{Spec: spec, Path: hostSpec.InstallPath}

	probeCtx, cancel := context.WithTimeout(ctx, e.probeTimeout)
	defer cancel()
	plugins, err := host.ListPlugins(probeCtx)
	if err != nil {
		return rt, false, newError(spec.Name, KindVersionProbeFailed, err)
	}
	found, ok := findPlugin(plugins, p.Plugin)
	if !ok {
		return rt, false, nil
	}
	rt.Installed = true
	rt.CurrentVersion = found.Version
	if spec.IsLatest() {
		return rt, true, nil
	}
	return rt, versionMatches(found.Version, spec.Version, e.matchMode(spec)), nil
}

// Inspect probes a tool without installing anything.
func (e *Engine) Inspect(ctx context.Context, name string) (Result, error) {
	spec, ok := e.registry.Lookup(name)
	if !ok {
		err := newError(name, KindUnknownTool, fmt.Errorf("known tools: %v", e.registry.Names()))
		return Result{Tool: ResolvedTool{Spec: ToolSpec{Name: name}}, Err: err}, err
	}
	res := e.inspect(ctx, spec)
	return res, res.Err
}

// InspectAll probes every registry entry.
func (e *Engine) InspectAll(ctx context.Context) Report {
	specs := e.registry.Specs()
	results := make([]Result, len(specs))
	for i, spec := range specs {
		results[i] = e.inspect(ctx, spec)
	}
	return Report{Results: results}
}

func (e *Engine) inspect(ctx context.Context, spec ToolSpec) Result {
	start := time.Now()
	res := func() Result {
		if err := checkProcedure(spec); err != nil {
			return failed(ResolvedTool{Spec: spec, Path: spec.InstallPath}, err)
		}
		p, plugin := spec.Procedure.(PluginInstall)
		if !plugin {
			rt, ok, err := e.probe(ctx, spec)
			return Result{Tool: rt, Satisfied: ok && err == nil, Err: err}
		}
		hostSpec, found := e.registry.Lookup(p.Host)
		if !found {
			return failed(ResolvedTool{Spec: spec}, newError(spec.Name, KindUnsupportedProcedure, fmt.Errorf("host tool %q is not declared", p.Host)))
		}
		rt := ResolvedTool{Spec: spec, Path: hostSpec.InstallPath}
		if _, err := os.Stat(hostSpec.InstallPath); err != nil {
			return Result{Tool: rt}
		}
		rt, ok, err := e.probePlugin(ctx, spec, p, e.plugins(hostSpec.InstallPath))
		return Result{Tool: rt, Satisfied: ok && err == nil, Err: err}
	}()
	res.Duration = time.Since(start)
	return res
}

// Path returns where a tool lives without probing it. Plugins resolve to
// their host's binary.
func (e *Engine) Path(name string) (string, error) {
	spec, ok := e.registry.Lookup(name)
	if !ok {
		return "", newError(name, KindUnknownTool, fmt.Errorf("known tools: %v", e.registry.Names()))
	}
	if p, plugin := spec.Procedure.(PluginInstall); plugin {
		host, ok := e.registry.Lookup(p.Host)
		if !ok {
			return "", newError(name, KindUnsupportedProcedure, fmt.Errorf("host tool %q is not declared", p.Host))
		}
		return host.InstallPath, nil
	}
	return spec.InstallPath, nil
}

// Clean removes a tool's artifact, or uninstalls a plugin when its host is
// present. Cleaning an absent tool succeeds.
func (e *Engine) Clean(ctx context.Context, name string) error {
	spec, ok := e.registry.Lookup(name)
	if !ok {
		return newError(name, KindUnknownTool, fmt.Errorf("known tools: %v", e.registry.Names()))
	}

	p, plugin := spec.Procedure.(PluginInstall)
	slot := spec.Name
	if plugin {
		slot = p.Host + ".plugins"
	}
	lockCtx, cancel := context.WithTimeout(ctx, e.installTimeout)
	defer cancel()
	unlock, err := acquireLock(lockCtx, e.lockDir, slot)
	if err != nil {
		return newError(name, KindInstallFailed, err)
	}
	defer unlock()

	if !plugin {
		e.log.Info("removing tool", "tool", name, "path", spec.InstallPath)
		if err := removeStale(spec.InstallPath); err != nil {
			return newError(name, KindInstallFailed, err)
		}
		return nil
	}

	hostSpec, ok := e.registry.Lookup(p.Host)
	if !ok {
		return newError(name, KindUnsupportedProcedure, fmt.Errorf("host tool %q is not declared", p.Host))
	}
	if _, err := os.Stat(hostSpec.InstallPath); err != nil {
		return nil
	}
	host := e.plugins(hostSpec.InstallPath)
	plugins, err := host.ListPlugins(lockCtx)
	if err != nil {
		return newError(name, KindVersionProbeFailed, err)
	}
	if _, ok := findPlugin(plugins, p.Plugin); !ok {
		return nil
	}
	e.log.Info("removing plugin", "tool", name, "plugin", p.Plugin)
	if err := host.UninstallPlugin(lockCtx, p.Plugin); err != nil {
		return newError(name, KindInstallFailed, err)
	}
	return nil
}

func checkProcedure(spec ToolSpec) error {
	if spec.Procedure == nil {
		return newError(spec.Name, KindUnsupportedProcedure, errors.New("no install procedure declared"))
	}
	if err := spec.Procedure.validate(); err != nil {
		return newError(spec.Name, KindUnsupportedProcedure, err)
	}
	return nil
}

func offlineReason(current ResolvedTool, spec ToolSpec) error {
	if current.Installed {
		return fmt.Errorf("offline: installed %q does not match %s", current.CurrentVersion, spec.Version)
	}
	return fmt.Errorf("offline: %s is not installed", spec.Name)
}

func failed(rt ResolvedTool, err error) Result {
	return Result{Tool: rt, Err: err}
}
