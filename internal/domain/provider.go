package domain

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"
)

// Param identifies a field a provider may accept.
type Param string

const (
	ParamQuery   Param = "query"
	ParamCount   Param = "count"
	ParamMode    Param = "mode"
	ParamContent Param = "content"
)

// KnownParams lists every parameter in canonical order.
var KnownParams = []Param{ParamQuery, ParamCount, ParamMode, ParamContent}

// ParseParam converts a string to a Param.
func ParseParam(s string) (Param, error) {
	p := Param(strings.ToLower(strings.TrimSpace(s)))
	if slices.Contains(KnownParams, p) {
		return p, nil
	}
	return "", NewDomainError("ParseParam", ErrInvalidInput, fmt.Sprintf("unknown parameter %q", s))
}

// Mode selects how fresh the provider's results should be.
type Mode string

const (
	ModeDefault Mode = "default"
	ModeCurrent Mode = "current"
)

// KnownModes lists every mode.
var KnownModes = []Mode{ModeDefault, ModeCurrent}

// ParseMode converts a string to a Mode. The empty string yields ModeDefault.
func ParseMode(s string) (Mode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ModeDefault, nil
	}
	m := Mode(s)
	if slices.Contains(KnownModes, m) {
		return m, nil
	}
	return "", NewDomainError("ParseMode", ErrInvalidInput,
		fmt.Sprintf("mode %q must be one of: default, current", s))
}

// TransportKind says how an external capability is reached.
type TransportKind string

const (
	TransportExec TransportKind = "exec"
	TransportHTTP TransportKind = "http"
	TransportMCP  TransportKind = "mcp"
)

// InvocationDescriptor describes how to reach a provider. Args, URL and
// header values may contain {{param}} placeholders.
type InvocationDescriptor struct {
	Kind TransportKind

	// exec, and mcp over stdio.
	Command string
	Args    []string
	Dir     string
	Env     []string

	// http, and mcp over streamable HTTP.
	URL     string
	Method  string
	Headers map[string]string

	// mcp: the tool to call on the server.
	Tool string
}

// ProviderDefaults are the values a provider falls back to when the query
// does not supply one it can use.
type ProviderDefaults struct {
	Count   int
	Mode    Mode
	Content bool
}

// ProviderSpec is the invocation contract for one provider.
type ProviderSpec struct {
	ID      string
	Accepts []Param
	// ParamNames maps an accepted param to its wire name: a CLI flag for exec
	// transports, a field name for http and mcp.
	ParamNames map[Param]string
	// Modes the provider recognises. Empty means every known mode.
	Modes      []Mode
	Defaults   ProviderDefaults
	MaxCount   int
	Timeout    time.Duration
	Invocation InvocationDescriptor
}

// AcceptsParam reports whether the provider takes p. The query is always accepted.
func (s ProviderSpec) AcceptsParam(p Param) bool {
	return p == ParamQuery || slices.Contains(s.Accepts, p)
}

// SupportsMode reports whether the provider recognises m.
func (s ProviderSpec) SupportsMode(m Mode) bool {
	if len(s.Modes) == 0 {
		return slices.Contains(KnownModes, m)
	}
	return slices.Contains(s.Modes, m)
}

// WireName returns the name p is sent under, and whether one is declared.
func (s ProviderSpec) WireName(p Param) (string, bool) {
	name, ok := s.ParamNames[p]
	return name, ok && name != ""
}

// Clone returns a deep copy so registry state cannot be changed through it.
func (s ProviderSpec) Clone() ProviderSpec {
	c := s
	c.Accepts = slices.Clone(s.Accepts)
	c.ParamNames = maps.Clone(s.ParamNames)
	c.Modes = slices.Clone(s.Modes)
	c.Invocation.Args = slices.Clone(s.Invocation.Args)
	c.Invocation.Env = slices.Clone(s.Invocation.Env)
	c.Invocation.Headers = maps.Clone(s.Invocation.Headers)
	return c
}
