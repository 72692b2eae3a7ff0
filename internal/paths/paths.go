package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"toolpin/internal/config"
)

// ProjectPaths captures canonical locations for a toolpin project.
type ProjectPaths struct {
	Root       string
	ConfigFile string
	CacheDir   string
	LockDir    string
}

// Resolve determines the project root using the optional --project flag or the
// current working directory when the flag is empty.
func Resolve(projectFlag string) (ProjectPaths, error) {
	var (
		root string
		err  error
	)

	if projectFlag != "" {
		root, err = filepath.Abs(projectFlag)
	} else {
		root, err = os.Getwd()
	}
	if err != nil {
		return ProjectPaths{}, fmt.Errorf("resolve project root: %w", err)
	}

	return newProjectPaths(root), nil
}

func newProjectPaths(root string) ProjectPaths {
	cacheDir := filepath.Join(root, config.Default().CacheDir)
	return ProjectPaths{
		Root:       root,
		ConfigFile: filepath.Join(root, config.FileName),
		CacheDir:   cacheDir,
		LockDir:    filepath.Join(cacheDir, ".locks"),
	}
}

// WithConfigFile points at an explicit --config path, relative to the
// working directory like any other command-line path.
func (p ProjectPaths) WithConfigFile(path string) (ProjectPaths, error) {
	if strings.TrimSpace(path) == "" {
		return p, nil
	}
	abs, err := filepath.Abs(expandHome(path))
	if err != nil {
		return p, fmt.Errorf("resolve config path: %w", err)
	}
	p.ConfigFile = abs
	return p, nil
}

// ApplyConfig resolves the configured cache directory against the project
// root.
func ApplyConfig(pp ProjectPaths, cfg config.Config) ProjectPaths {
	if cacheDir := strings.TrimSpace(cfg.CacheDir); cacheDir != "" {
		pp.CacheDir = resolveProjectPath(pp.Root, cacheDir)
		pp.LockDir = filepath.Join(pp.CacheDir, ".locks")
	}
	return pp
}

// ResolvePath anchors a configured path at the project root.
func (p ProjectPaths) ResolvePath(value string) string {
	return resolveProjectPath(p.Root, value)
}

func resolveProjectPath(root, value string) string {
	value = expandHome(value)
	if filepath.IsAbs(value) {
		return filepath.Clean(value)
	}
	return filepath.Join(root, value)
}

func expandHome(value string) string {
	if value != "~" && !strings.HasPrefix(value, "~/") {
		return value
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return value
	}
	return filepath.Join(home, strings.TrimPrefix(value, "~"))
}

// FileExists reports whether a path exists and is a regular file.
func FileExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return info.Mode().IsRegular(), nil
}
