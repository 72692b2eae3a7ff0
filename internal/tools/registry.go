package tools

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// Registry is the ordered, validated set of tools an engine manages.
type Registry struct {
	root  string
	specs []ToolSpec
	index map[string]int
}

// NewRegistry validates specs and indexes them by name. root is the cache
// directory that owns lock files and staging directories.
func NewRegistry(root string, specs ...ToolSpec) (*Registry, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("registry requires a cache root")
	}
	r := &Registry{
		root:  root,
		specs: append([]ToolSpec(nil), specs...),
		index: make(map[string]int, len(specs)),
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	for i, spec := range r.specs {
		r.index[spec.Name] = i
	}
	return r, nil
}

// Validate checks name and install path uniqueness and that every tool has a
// desired version.
func (r *Registry) Validate() error {
	var errs []error
	names := make(map[string]struct{}, len(r.specs))
	paths := make(map[string]string, len(r.specs))
	for _, spec := range r.specs {
		name := strings.TrimSpace(spec.Name)
		if name == "" {
			errs = append(errs, errors.New("tool with empty name"))
			continue
		}
		if _, dup := names[name]; dup {
			errs = append(errs, fmt.Errorf("%s: declared more than once", name))
		}
		names[name] = struct{}{}

		if strings.TrimSpace(spec.Version) == "" {
			errs = append(errs, fmt.Errorf("%s: desired version is empty", name))
		}

		if !spec.OwnsBinary() {
			continue
		}
		if strings.TrimSpace(spec.InstallPath) == "" {
			errs = append(errs, fmt.Errorf("%s: install path is empty", name))
			continue
		}
		clean := filepath.Clean(spec.InstallPath)
		if other, dup := paths[clean]; dup {
			errs = append(errs, fmt.Errorf("%s: install path %s already used by %s", name, clean, other))
		}
		paths[clean] = name
	}
	return errors.Join(errs...)
}

// Root is the cache directory.
func (r *Registry) Root() string {
	return r.root
}

// Specs returns a copy of every spec in registry order.
func (r *Registry) Specs() []ToolSpec {
	return append([]ToolSpec(nil), r.specs...)
}

// Names returns tool names in registry order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.specs))
	for i, spec := range r.specs {
		names[i] = spec.Name
	}
	return names
}

// Lookup returns the tool registered under name.
func (r *Registry) Lookup(name string) (ToolSpec, bool) {
	i, ok := r.index[name]
	if !ok {
		return ToolSpec{}, false
	}
	return r.specs[i], true
}

// Merge overlays decls onto base: a declaration replaces the base entry of
// the same name in place, new names are appended in declaration order.
func Merge(base []ToolSpec, decls ...ToolSpec) []ToolSpec {
	out := append([]ToolSpec(nil), base...)
	pos := make(map[string]int, len(out))
	folded := make(map[string]int, len(out))
	for i, spec := range out {
		pos[spec.Name] = i
		key := foldName(spec.Name)
		if _, clash := folded[key]; clash {
			folded[key] = -1
			continue
		}
		folded[key] = i
	}
	for _, decl := range decls {
		if i, ok := pos[decl.Name]; ok {
			out[i] = decl
			continue
		}
		pos[decl.Name] = len(out)
		out = append(out, decl)
	}
	return out
}

// ApplyVersions overrides desired versions by tool name. Every override must
// name a declared tool.
func ApplyVersions(specs []ToolSpec, versions map[string]string) ([]ToolSpec, error) {
	out := append([]ToolSpec(nil), specs...)
	pos := make(map[string]int, len(out))
	folded := make(map[string]int, len(out))
	for i, spec := range out {
		pos[spec.Name] = i
		key := foldName(spec.Name)
		if _, clash := folded[key]; clash {
			folded[key] = -1
			continue
		}
		folded[key] = i
	}

	names := make([]string, 0, len(versions))
	for name := range versions {
		names = append(names, name)
	}
	sort.Strings(names)

	var unknown []string
	for _, name := range names {
		version := strings.TrimSpace(versions[name])
		if version == "" {
			continue
		}
		i, ok := pos[name]
		if !ok {
			i, ok = folded[foldName(name)]
		}
		if !ok || i < 0 {
			unknown = append(unknown, name)
			continue
		}
		out[i].Version = version
	}
	if len(unknown) > 0 {
		return nil, fmt.Errorf("version override for undeclared tool(s): %s", strings.Join(unknown, ", "))
	}
	return out, nil
}

// foldName ignores case and the _/- distinction, which environment variable
// names cannot preserve.
func foldName(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), "_", "-")
}
