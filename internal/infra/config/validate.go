package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateDispatch(cfg, ve)
	validateProviders(cfg, ve)
	validateLogger(cfg, ve)
	validateTracer(cfg, ve)
	validateHistory(cfg, ve)
	validateScorer(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateDispatch(cfg *Config, ve *ValidationError) {
	if cfg.Dispatch.DefaultTimeout <= 0 {
		ve.Add("dispatch.default_timeout must be > 0")
	}
	if cfg.Dispatch.DefaultCount <= 0 {
		ve.Add("dispatch.default_count must be > 0")
	}
	if cfg.Dispatch.MaxOutputBytes <= 0 {
		ve.Add("dispatch.max_output_bytes must be > 0")
	}
	if cfg.Dispatch.KillGrace < 0 {
		ve.Add("dispatch.kill_grace must be >= 0")
	}
}

var (
	validTransports = []string{"exec", "http", "mcp"}
	validParams     = []string{"query", "count", "mode", "content"}
	validModes      = []string{"default", "current"}
	validMethods    = []string{"GET", "POST"}
)

func validateProviders(cfg *Config, ve *ValidationError) {
	seen := make(map[string]bool)
	for i, p := range cfg.Providers {
		if p.Name == "" {
			ve.Add("providers[%d].name must not be empty", i)
			continue
		}
		if strings.EqualFold(p.Name, "auto") {
			ve.Add("providers[%d]: name %q is reserved", i, p.Name)
		}
		if seen[p.Name] {
			ve.Add("providers[%d]: duplicate provider name %q", i, p.Name)
		}
		seen[p.Name] = true

		switch p.Transport {
		case "exec":
			if p.Command == "" {
				ve.Add("providers[%d] (%s): command is required for exec transport", i, p.Name)
			}
		case "http":
			validateURL(ve, fmt.Sprintf("providers[%d] (%s).url", i, p.Name), p.URL)
			if p.Method != "" && !slices.Contains(validMethods, strings.ToUpper(p.Method)) {
				ve.Add("providers[%d] (%s): method %q is invalid (want: GET, POST)", i, p.Name, p.Method)
			}
		case "mcp":
			if p.Command == "" && p.URL == "" {
				ve.Add("providers[%d] (%s): mcp transport requires command or url", i, p.Name)
			}
			if p.URL != "" {
				validateURL(ve, fmt.Sprintf("providers[%d] (%s).url", i, p.Name), p.URL)
			}
			if p.Command == "" && p.Dir != "" {
				ve.Add("providers[%d] (%s): dir only applies to mcp over stdio (set command)", i, p.Name)
			}
			if p.Tool == "" {
				ve.Add("providers[%d] (%s): tool is required for mcp transport", i, p.Name)
			}
		default:
			ve.Add("providers[%d] (%s): transport %q is invalid (want: exec, http, mcp)", i, p.Name, p.Transport)
		}

		for _, a := range p.Accepts {
			if !slices.Contains(validParams, a) {
				ve.Add("providers[%d] (%s): accepts %q is not a known parameter", i, p.Name, a)
			}
		}
		for k := range p.Params {
			if !slices.Contains(validParams, k) {
				ve.Add("providers[%d] (%s): params key %q is not a known parameter", i, p.Name, k)
			}
		}
		for _, m := range p.Modes {
			if !slices.Contains(validModes, m) {
				ve.Add("providers[%d] (%s): mode %q is invalid (want: default, current)", i, p.Name, m)
			}
		}
		if p.Defaults.Mode != "" && !slices.Contains(validModes, p.Defaults.Mode) {
			ve.Add("providers[%d] (%s): defaults.mode %q is invalid", i, p.Name, p.Defaults.Mode)
		}
		if p.Defaults.Count < 0 {
			ve.Add("providers[%d] (%s): defaults.count must be >= 0", i, p.Name)
		}
		if p.MaxCount < 0 {
			ve.Add("providers[%d] (%s): max_count must be >= 0", i, p.Name)
		}
		if p.Timeout < 0 {
			ve.Add("providers[%d] (%s): timeout must be >= 0", i, p.Name)
		}
	}
}

func validateURL(ve *ValidationError, field, raw string) {
	if raw == "" {
		ve.Add("%s must not be empty", field)
		return
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		ve.Add("%s %q must be an absolute http(s) URL", field, raw)
	}
}

func validateLogger(cfg *Config, ve *ValidationError) {
	switch strings.ToLower(cfg.Logger.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		ve.Add("logger.level %q is invalid (want: debug, info, warn, error)", cfg.Logger.Level)
	}
	switch cfg.Logger.Format {
	case "", "text", "json":
	default:
		ve.Add("logger.format %q is invalid (want: text, json)", cfg.Logger.Format)
	}
}

func validateTracer(cfg *Config, ve *ValidationError) {
	if !cfg.Tracer.Enabled {
		return
	}
	switch cfg.Tracer.Exporter {
	case "", "noop", "stdout":
	default:
		ve.Add("tracer.exporter %q is invalid (want: noop, stdout)", cfg.Tracer.Exporter)
	}
}

func validateHistory(cfg *Config, ve *ValidationError) {
	if cfg.History.Enabled && cfg.History.Path == "" {
		ve.Add("history.path must not be empty when history is enabled")
	}
}

func validateScorer(cfg *Config, ve *ValidationError) {
	s := cfg.Scorer
	if s.Timeout <= 0 {
		ve.Add("scorer.timeout must be > 0")
	}
	switch s.OutputStream {
	case "", "stdout", "stderr":
	default:
		ve.Add("scorer.output_stream %q is invalid (want: stdout, stderr)", s.OutputStream)
	}
	if s.Fields.Score == "" || s.Fields.Verdict == "" || s.Fields.Rationale == "" {
		ve.Add("scorer.fields: score, verdict and rationale must all be set")
	}
	if s.RatePerSecond < 0 {
		ve.Add("scorer.rate_per_second must be >= 0")
	}
	if s.Breaker.MaxFailures < 0 {
		ve.Add("scorer.breaker.max_failures must be >= 0")
	}
}
