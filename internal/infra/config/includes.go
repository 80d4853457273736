package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const maxIncludeDepth = 10

// includer overlays included files onto a config, depth first.
// seen holds absolute paths already merged, to detect cycles.
type includer struct {
	cfg  *Config
	seen map[string]bool
}

// processIncludes merges the files named by cfg.Includes into cfg.
// baseDir is the directory of the file that declared them.
func processIncludes(cfg *Config, baseDir string, seen map[string]bool, depth int) error {
	if seen == nil {
		seen = make(map[string]bool)
	}
	inc := &includer{cfg: cfg, seen: seen}
	return inc.walk(cfg.Includes, baseDir, depth)
}

func (inc *includer) walk(patterns []string, baseDir string, depth int) error {
	if depth > maxIncludeDepth {
		return fmt.Errorf("config includes: max depth %d exceeded", maxIncludeDepth)
	}
	for _, pattern := range patterns {
		paths, err := resolveIncludePaths(pattern, baseDir)
		if err != nil {
			return err
		}
		for _, p := range paths {
			abs, err := filepath.Abs(p)
			if err != nil {
				return fmt.Errorf("config includes: abs path %q: %w", p, err)
			}
			if inc.seen[abs] {
				return fmt.Errorf("config includes: circular include detected for %q", abs)
			}
			inc.seen[abs] = true

			nested, err := inc.merge(abs)
			if err != nil {
				return err
			}
			if len(nested) > 0 {
				if err := inc.walk(nested, filepath.Dir(abs), depth+1); err != nil {
					return err
				}
			}
		}
	}
	inc.cfg.Includes = nil
	return nil
}

// merge overlays one file onto the config and returns the includes it declares.
func (inc *includer) merge(path string) ([]string, error) {
	if err := validatePermissions(path); err != nil {
		return nil, fmt.Errorf("config includes: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config includes: read %q: %w", path, err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	inc.cfg.Includes = nil
	if err := yaml.Unmarshal(data, inc.cfg); err != nil {
		return nil, fmt.Errorf("config includes: parse %q: %w", path, err)
	}
	nested := inc.cfg.Includes
	inc.cfg.Includes = nil
	return nested, nil
}

// resolveIncludePaths expands pattern relative to baseDir. Paths that
// escape baseDir are rejected. A glob matching nothing is not an error; a
// literal path is returned as-is so the read reports a missing file.
func resolveIncludePaths(pattern, baseDir string) ([]string, error) {
	if !filepath.IsAbs(pattern) {
		pattern = filepath.Join(baseDir, pattern)
	}
	pattern = filepath.Clean(pattern)

	if rel, err := filepath.Rel(baseDir, pattern); err == nil && strings.HasPrefix(rel, "..") {
		return nil, fmt.Errorf("config includes: path %q escapes config directory", pattern)
	}

	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("config includes: glob %q: %w", pattern, err)
	}
	if len(matches) == 0 && !strings.ContainsAny(pattern, "*?[") {
		return []string{pattern}, nil
	}
	return matches, nil
}
