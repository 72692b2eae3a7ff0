package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/spf13/pflag"
	yamlv3 "gopkg.in/yaml.v3"
)

const (
	// EnvPrefix namespaces environment overrides.
	EnvPrefix = "TOOLPIN_"
	// FileName is the project configuration file looked up in the project root.
	FileName = "toolpin.yaml"
)

// Config is the effective toolpin configuration.
type Config struct {
	CacheDir       string            `koanf:"cache-dir" yaml:"cache-dir"`
	Offline        bool              `koanf:"offline" yaml:"offline"`
	Jobs           int               `koanf:"jobs" yaml:"jobs"`
	InstallTimeout string            `koanf:"install-timeout" yaml:"install-timeout"`
	ProbeTimeout   string            `koanf:"probe-timeout" yaml:"probe-timeout"`
	HTTPTimeout    string            `koanf:"http-timeout" yaml:"http-timeout"`
	VersionMatch   string            `koanf:"version-match" yaml:"version-match"`
	Verbose        bool              `koanf:"verbose" yaml:"verbose"`
	LogFormat      string            `koanf:"log-format" yaml:"log-format"`
	LogFile        string            `koanf:"log-file" yaml:"log-file,omitempty"`
	NoProgress     bool              `koanf:"no-progress" yaml:"no-progress"`
	JSON           bool              `koanf:"json" yaml:"json"`
	Versions       map[string]string `koanf:"versions" yaml:"versions,omitempty"`
	Tools          []ToolConfig      `koanf:"tools" yaml:"tools,omitempty"`
}

// ToolConfig declares a tool in YAML. Exactly one of Module, Script or Plugin
// must be set. A declaration named like a built-in replaces it.
type ToolConfig struct {
	Name        string        `koanf:"name" yaml:"name"`
	Version     string        `koanf:"version" yaml:"version"`
	VersionArgs []string      `koanf:"version-args" yaml:"version-args,omitempty"`
	Match       string        `koanf:"match" yaml:"match,omitempty"`
	Path        string        `koanf:"path" yaml:"path,omitempty"`
	Module      *ModuleConfig `koanf:"module" yaml:"module,omitempty"`
	Script      *ScriptConfig `koanf:"script" yaml:"script,omitempty"`
	Plugin      *PluginConfig `koanf:"plugin" yaml:"plugin,omitempty"`
}

// ModuleConfig installs with go install.
type ModuleConfig struct {
	Package string `koanf:"package" yaml:"package"`
	Binary  string `koanf:"binary" yaml:"binary,omitempty"`
}

// ScriptConfig runs a downloaded installer script.
type ScriptConfig struct {
	URL         string   `koanf:"url" yaml:"url"`
	Interpreter string   `koanf:"interpreter" yaml:"interpreter,omitempty"`
	Args        []string `koanf:"args" yaml:"args,omitempty"`
	Env         []string `koanf:"env" yaml:"env,omitempty"`
	Binary      string   `koanf:"binary" yaml:"binary,omitempty"`
	SHA256      string   `koanf:"sha256" yaml:"sha256,omitempty"`
}

// PluginConfig registers a plugin with another declared tool.
type PluginConfig struct {
	Host   string `koanf:"host" yaml:"host"`
	Name   string `koanf:"name" yaml:"name"`
	Source string `koanf:"source" yaml:"source"`
}

// Timeouts are the parsed duration settings.
type Timeouts struct {
	Install time.Duration
	Probe   time.Duration
	HTTP    time.Duration
}

// Default returns the baseline configuration.
func Default() Config {
	return Config{
		CacheDir:       "bin",
		Jobs:           1,
		InstallTimeout: "10m",
		ProbeTimeout:   "30s",
		HTTPTimeout:    "60s",
		VersionMatch:   "loose",
		LogFormat:      "console",
	}
}

// LoadOptions selects the layers Load merges.
type LoadOptions struct {
	// File is the YAML file to read. A missing file is skipped unless
	// FileRequired is set.
	File         string
	FileRequired bool
	// Flags are applied last; only flags named like config keys matter.
	Flags *pflag.FlagSet
}

// Load merges defaults, the YAML file, TOOLPIN_ environment variables and
// flags, in increasing precedence, and validates the result.
func Load(opts LoadOptions) (Config, error) {
	k := koanf.New(".")

	if opts.File != "" {
		_, err := os.Stat(opts.File)
		switch {
		case err == nil:
			if err := k.Load(file.Provider(opts.File), yaml.Parser()); err != nil {
				return Config{}, fmt.Errorf("read config %s: %w", opts.File, err)
			}
		case errors.Is(err, os.ErrNotExist) && !opts.FileRequired:
		default:
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return Config{}, fmt.Errorf("read environment: %w", err)
	}

	if opts.Flags != nil {
		if err := k.Load(posflag.Provider(opts.Flags, ".", k), nil); err != nil {
			return Config{}, fmt.Errorf("read flags: %w", err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// envKey maps TOOLPIN_CACHE_DIR to cache-dir and
// TOOLPIN_VERSIONS_CONTROLLER_GEN to versions.controller-gen. Tool names are
// matched against the registry without regard to case or _ and -.
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	if rest, ok := strings.CutPrefix(key, "versions_"); ok {
		return "versions." + strings.ReplaceAll(rest, "_", "-")
	}
	return strings.ReplaceAll(key, "_", "-")
}

// ApplyDefaults fills settings an override left empty.
func (c *Config) ApplyDefaults() {
	defaults := Default()

	if strings.TrimSpace(c.CacheDir) == "" {
		c.CacheDir = defaults.CacheDir
	}
	if c.Jobs == 0 {
		c.Jobs = defaults.Jobs
	}
	if strings.TrimSpace(c.InstallTimeout) == "" {
		c.InstallTimeout = defaults.InstallTimeout
	}
	if strings.TrimSpace(c.ProbeTimeout) == "" {
		c.ProbeTimeout = defaults.ProbeTimeout
	}
	if strings.TrimSpace(c.HTTPTimeout) == "" {
		c.HTTPTimeout = defaults.HTTPTimeout
	}
	if strings.TrimSpace(c.VersionMatch) == "" {
		c.VersionMatch = defaults.VersionMatch
	}
	if strings.TrimSpace(c.LogFormat) == "" {
		c.LogFormat = defaults.LogFormat
	}
}

// SetVersions merges name=version pairs into Versions.
func (c *Config) SetVersions(pairs []string) error {
	for _, pair := range pairs {
		name, version, ok := strings.Cut(pair, "=")
		name, version = strings.TrimSpace(name), strings.TrimSpace(version)
		if !ok || name == "" || version == "" {
			return fmt.Errorf("invalid version override %q, want name=version", pair)
		}
		if c.Versions == nil {
			c.Versions = map[string]string{}
		}
		c.Versions[name] = version
	}
	return nil
}

// Timeouts parses the duration settings.
func (c Config) Timeouts() (Timeouts, error) {
	var t Timeouts
	var errs []error
	parse := func(key, value string, dst *time.Duration) {
		d, err := time.ParseDuration(strings.TrimSpace(value))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s: must be positive", key))
			return
		}
		*dst = d
	}
	parse("install-timeout", c.InstallTimeout, &t.Install)
	parse("probe-timeout", c.ProbeTimeout, &t.Probe)
	parse("http-timeout", c.HTTPTimeout, &t.HTTP)
	return t, errors.Join(errs...)
}

// Marshal returns the YAML encoding of the configuration.
func (c Config) Marshal() ([]byte, error) {
	buf, err := yamlv3.Marshal(&c)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return buf, nil
}
