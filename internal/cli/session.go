package cli

import (
	"fmt"
	"io"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"

	"toolpin/internal/config"
	"toolpin/internal/logx"
	"toolpin/internal/paths"
	"toolpin/internal/tools"
)

// session is everything a command needs once flags are parsed: resolved
// paths, the effective configuration, a logger and the tool registry.
type session struct {
	paths    paths.ProjectPaths
	cfg      config.Config
	timeouts config.Timeouts
	match    tools.MatchMode
	log      logr.Logger
	closer   io.Closer
	registry *tools.Registry
}

// loadConfig resolves the project and merges file, environment and flags.
func loadConfig(cmd *cobra.Command) (paths.ProjectPaths, config.Config, error) {
	pp, err := paths.Resolve(projectDir)
	if err != nil {
		return pp, config.Config{}, err
	}
	pp, err = pp.WithConfigFile(configFile)
	if err != nil {
		return pp, config.Config{}, err
	}

	cfg, err := config.Load(config.LoadOptions{
		File:         pp.ConfigFile,
		FileRequired: configFile != "",
		Flags:        cmd.Flags(),
	})
	if err != nil {
		return pp, config.Config{}, err
	}
	if err := cfg.SetVersions(setVersions); err != nil {
		return pp, config.Config{}, err
	}
	return paths.ApplyConfig(pp, cfg), cfg, nil
}

func openSession(cmd *cobra.Command) (*session, error) {
	pp, cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	timeouts, err := cfg.Timeouts()
	if err != nil {
		return nil, err
	}
	match, err := tools.ParseMatchMode(cfg.VersionMatch)
	if err != nil {
		return nil, err
	}

	logFile := ""
	if cfg.LogFile != "" {
		logFile = pp.ResolvePath(cfg.LogFile)
	}
	log, closer, err := logx.New(logx.Options{
		Verbose: cfg.Verbose,
		Format:  cfg.LogFormat,
		File:    logFile,
		Writer:  cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, err
	}

	registry, err := buildRegistry(pp, cfg)
	if err != nil {
		_ = closer.Close()
		return nil, err
	}

	configFound, _ := paths.FileExists(pp.ConfigFile)
	log.V(1).Info("configuration loaded",
		"config", pp.ConfigFile,
		"configFound", configFound,
		"cacheDir", pp.CacheDir,
		"tools", len(registry.Specs()),
		"offline", cfg.Offline,
		"jobs", cfg.Jobs,
	)

	return &session{
		paths:    pp,
		cfg:      cfg,
		timeouts: timeouts,
		match:    match,
		log:      log,
		closer:   closer,
		registry: registry,
	}, nil
}

func (s *session) Close() error {
	return s.closer.Close()
}

// engine builds an engine over the session registry reporting to observer.
func (s *session) engine(observer tools.Observer) *tools.Engine {
	if observer == nil {
		observer = tools.NopObserver{}
	}
	return tools.NewEngine(s.registry,
		tools.WithLogger(s.log),
		tools.WithObserver(observer),
		tools.WithOffline(s.cfg.Offline),
		tools.WithJobs(s.cfg.Jobs),
		tools.WithMatchMode(s.match),
		tools.WithInstallTimeout(s.timeouts.Install),
		tools.WithProbeTimeout(s.timeouts.Probe),
		tools.WithLockDir(s.paths.LockDir),
		tools.WithFetcher(tools.NewHTTPFetcher(s.timeouts.HTTP, 3)),
	)
}

// buildRegistry layers YAML declarations and version overrides over the
// built-in tools.
func buildRegistry(pp paths.ProjectPaths, cfg config.Config) (*tools.Registry, error) {
	decls, err := toolSpecs(pp, cfg.Tools)
	if err != nil {
		return nil, err
	}
	specs := tools.Merge(tools.Builtin(pp.CacheDir), decls...)
	specs, err = tools.ApplyVersions(specs, cfg.Versions)
	if err != nil {
		return nil, err
	}
	return tools.NewRegistry(pp.CacheDir, specs...)
}

func toolSpecs(pp paths.ProjectPaths, decls []config.ToolConfig) ([]tools.ToolSpec, error) {
	specs := make([]tools.ToolSpec, 0, len(decls))
	for _, d := range decls {
		spec := tools.ToolSpec{
			Name:        d.Name,
			Version:     d.Version,
			VersionArgs: d.VersionArgs,
		}
		if d.Match != "" {
			mode, err := tools.ParseMatchMode(d.Match)
			if err != nil {
				return nil, fmt.Errorf("tools[%s]: %w", d.Name, err)
			}
			spec.Match = mode
		}

		switch {
		case d.Module != nil:
			spec.Procedure = tools.ModuleInstall{Package: d.Module.Package, Binary: d.Module.Binary}
		case d.Script != nil:
			spec.Procedure = tools.ScriptInstall{
				URL:         d.Script.URL,
				Interpreter: d.Script.Interpreter,
				Args:        d.Script.Args,
				Env:         d.Script.Env,
				Binary:      d.Script.Binary,
				SHA256:      d.Script.SHA256,
			}
		case d.Plugin != nil:
			spec.Procedure = tools.PluginInstall{Host: d.Plugin.Host, Plugin: d.Plugin.Name, Source: d.Plugin.Source}
		}

		if spec.OwnsBinary() {
			if d.Path != "" {
				spec.InstallPath = pp.ResolvePath(d.Path)
			} else {
				spec.InstallPath = tools.DefaultInstallPath(pp.CacheDir, d.Name)
			}
		}
		specs = append(specs, spec)
	}
	return specs, nil
}
