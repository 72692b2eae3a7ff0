package tools

import (
	"path/filepath"
	"runtime"
)

// builtinDefinitions is the operator toolchain in the order ensure-all walks
// it. Install paths are filled in by Builtin.
var builtinDefinitions = []ToolSpec{
	{
		Name:        "controller-gen",
		Version:     "v0.14.0",
		VersionArgs: []string{"--version"},
		Procedure:   ModuleInstall{Package: "sigs.k8s.io/controller-tools/cmd/controller-gen"},
	},
	{
		Name:        "kustomize",
		Version:     "v5.3.0",
		VersionArgs: []string{"version"},
		Procedure: ScriptInstall{
			URL:  "https://raw.githubusercontent.com/kubernetes-sigs/kustomize/master/hack/install_kustomize.sh",
			Args: []string{"{version_bare}", "{dir}"},
		},
	},
	{
		Name:      "setup-envtest",
		Version:   Latest,
		Procedure: ModuleInstall{Package: "sigs.k8s.io/controller-runtime/tools/setup-envtest"},
	},
	{
		Name:        "kind",
		Version:     "v0.20.0",
		VersionArgs: []string{"version"},
		Procedure:   ModuleInstall{Package: "sigs.k8s.io/kind"},
	},
	{
		Name:        "golangci-lint",
		Version:     "v1.55.2",
		VersionArgs: []string{"version"},
		Procedure: ScriptInstall{
			URL:         "https://raw.githubusercontent.com/golangci/golangci-lint/master/install.sh",
			Interpreter: "sh",
			Args:        []string{"-b", "{dir}", "{version}"},
		},
	},
	{
		Name:        "helm",
		Version:     "v3.14.0",
		VersionArgs: []string{"version", "--short"},
		Procedure: ScriptInstall{
			URL: "https://raw.githubusercontent.com/helm/helm/main/scripts/get-helm-3",
			Env: []string{
				"HELM_INSTALL_DIR={dir}",
				"DESIRED_VERSION={version}",
				"USE_SUDO=false",
			},
		},
	},
	{
		Name:        "helm-docs",
		Version:     "v1.11.3",
		VersionArgs: []string{"--version"},
		Procedure:   ModuleInstall{Package: "github.com/norwoodj/helm-docs/cmd/helm-docs"},
	},
	{
		Name:        "crd-ref-docs",
		Version:     "v0.0.10",
		VersionArgs: []string{"--version"},
		Procedure:   ModuleInstall{Package: "github.com/elastic/crd-ref-docs"},
	},
	{
		Name:    "helm-unittest",
		Version: "v0.4.1",
		Procedure: PluginInstall{
			Host:   "helm",
			Plugin: "unittest",
			Source: "https://github.com/helm-unittest/helm-unittest",
		},
	},
}

// Builtin returns the built-in tool specs with install paths under root.
func Builtin(root string) []ToolSpec {
	specs := make([]ToolSpec, len(builtinDefinitions))
	for i, def := range builtinDefinitions {
		spec := def
		spec.VersionArgs = append([]string(nil), def.VersionArgs...)
		if spec.OwnsBinary() {
			spec.InstallPath = DefaultInstallPath(root, spec.Name)
		}
		specs[i] = spec
	}
	return specs
}

// KnownTools returns the built-in tool names in registry order.
func KnownTools() []string {
	names := make([]string, len(builtinDefinitions))
	for i, def := range builtinDefinitions {
		names[i] = def.Name
	}
	return names
}

// DefaultInstallPath is where a tool named name lives under root.
func DefaultInstallPath(root, name string) string {
	return filepath.Join(root, executableName(name))
}

func executableName(base string) string {
	if runtime.GOOS == "windows" {
		return base + ".exe"
	}
	return base
}
