// Package conda installs and activates the conda environment described by a
// notebook project's environment file.
package conda

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// DefaultEnvFile is the platform independent environment file name.
const DefaultEnvFile = "environment.yml"

var (
	ErrEnvFileNotFound = errors.New("environment file not found")
	ErrCondaNotFound   = errors.New("conda is not installed or not on PATH, install Anaconda or Miniconda first")
)

// platformSuffix maps GOOS to the suffix used in platform specific
// environment files, e.g. environment-macos.yml.
func platformSuffix(goos string) string {
	switch goos {
	case "darwin":
		return "macos"
	case "windows":
		return "windows"
	default:
		return "linux"
	}
}

// FindEnvFile locates the environment file in dir. An explicit name must
// exist. Otherwise the platform file wins over environment.yml, and any
// environment*.yml is the last resort.
func FindEnvFile(fs afero.Fs, dir, name, goos string) (string, error) {
	if name != "" {
		path := name
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, name)
		}
		ok, err := afero.Exists(fs, path)
		if err != nil {
			return "", fmt.Errorf("failed to check %s: %w", name, err)
		}
		if !ok {
			return "", fmt.Errorf("%w: %s", ErrEnvFileNotFound, name)
		}
		return path, nil
	}

	for _, candidate := range []string{
		"environment-" + platformSuffix(goos) + ".yml",
		DefaultEnvFile,
	} {
		path := filepath.Join(dir, candidate)
		ok, err := afero.Exists(fs, path)
		if err != nil {
			return "", fmt.Errorf("failed to check %s: %w", candidate, err)
		}
		if ok {
			return path, nil
		}
	}

	matches, err := doublestar.Glob(afero.NewIOFS(afero.NewBasePathFs(fs, dir)), "environment*.{yml,yaml}")
	if err != nil {
		return "", fmt.Errorf("failed to search for environment files: %w", err)
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("%w in %s", ErrEnvFileNotFound, dir)
	}
	sort.Strings(matches)
	return filepath.Join(dir, matches[0]), nil
}

// EnvFile is a parsed conda environment file. Unknown keys are preserved.
type EnvFile struct {
	Path string
	doc  map[string]any
}

// ReadEnvFile parses the environment file at path.
func ReadEnvFile(fs afero.Fs, path string) (*EnvFile, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	doc := map[string]any{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return &EnvFile{Path: path, doc: doc}, nil
}

// Name returns the environment name, or "" when the file has none.
func (e *EnvFile) Name() string {
	name, _ := e.doc["name"].(string)
	return strings.TrimSpace(name)
}

// Dependencies returns the conda and pip package specs, in file order.
func (e *EnvFile) Dependencies() []string {
	var out []string
	deps, _ := e.doc["dependencies"].([]any)
	for _, dep := range deps {
		switch d := dep.(type) {
		case string:
			out = append(out, d)
		case map[string]any:
			pip, _ := d["pip"].([]any)
			for _, p := range pip {
				if s, ok := p.(string); ok {
					out = append(out, s)
				}
			}
		}
	}
	return out
}

// Without returns a copy of the file with the named packages removed from
// both the conda and pip dependency lists.
func (e *EnvFile) Without(packages []string) *EnvFile {
	drop := make(map[string]bool, len(packages))
	for _, p := range packages {
		drop[PackageName(p)] = true
	}
	keep := func(items []any) []any {
		var out []any
		for _, item := range items {
			if s, ok := item.(string); ok && drop[PackageName(s)] {
				continue
			}
			out = append(out, item)
		}
		return out
	}

	doc := make(map[string]any, len(e.doc))
	for k, v := range e.doc {
		doc[k] = v
	}
	if deps, ok := e.doc["dependencies"].([]any); ok {
		var filtered []any
		for _, dep := range keep(deps) {
			if m, ok := dep.(map[string]any); ok {
				if pip, ok := m["pip"].([]any); ok {
					copied := make(map[string]any, len(m))
					for k, v := range m {
						copied[k] = v
					}
					copied["pip"] = keep(pip)
					dep = copied
				}
			}
			filtered = append(filtered, dep)
		}
		doc["dependencies"] = filtered
	}
	return &EnvFile{Path: e.Path, doc: doc}
}

// Marshal encodes the file as YAML.
func (e *EnvFile) Marshal() ([]byte, error) {
	return yaml.Marshal(e.doc)
}

var specSeparator = regexp.MustCompile(`[=<>!~ \[;]`)

// PackageName strips the version constraint from a package spec:
// "numpy==1.16.4=py37" becomes "numpy".
func PackageName(spec string) string {
	spec = strings.TrimSpace(spec)
	if loc := specSeparator.FindStringIndex(spec); loc != nil {
		spec = spec[:loc[0]]
	}
	return strings.ToLower(spec)
}

var listItem = regexp.MustCompile(`^\s*-\s+(\S+)`)

// UnresolvedPackages extracts the package specs conda could not resolve
// from its output.
func UnresolvedPackages(output string) []string {
	var pkgs []string
	inBlock := false
	for _, line := range strings.Split(output, "\n") {
		if strings.Contains(line, "ResolvePackageNotFound") ||
			strings.Contains(line, "PackagesNotFoundError") ||
			strings.Contains(line, "UnsatisfiableError") {
			inBlock = true
			continue
		}
		if !inBlock {
			continue
		}
		if m := listItem.FindStringSubmatch(line); m != nil {
			pkgs = append(pkgs, m[1])
			continue
		}
		if strings.TrimSpace(line) != "" && len(pkgs) > 0 {
			inBlock = false
		}
	}
	return pkgs
}
