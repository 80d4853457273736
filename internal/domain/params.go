package domain

import (
	"strconv"
	"strings"
)

// ParamValue is one resolved parameter.
type ParamValue struct {
	Param Param
	Value string
}

// Params is the resolved parameter set for one provider, in canonical order.
type Params struct {
	values []ParamValue
	mode   Mode
}

// ResolveParams maps a query onto what spec accepts. Fields the provider does
// not accept are omitted. Out-of-range or unsupported values degrade to the
// provider's defaults; it never fails.
func ResolveParams(q Query, spec ProviderSpec) Params {
	p := Params{mode: resolveMode(q, spec)}
	for _, param := range KnownParams {
		if !spec.AcceptsParam(param) {
			continue
		}
		var v string
		switch param {
		case ParamQuery:
			v = q.Text
		case ParamCount:
			v = strconv.Itoa(resolveCount(q, spec))
		case ParamMode:
			v = string(p.mode)
		case ParamContent:
			v = strconv.FormatBool(q.Content || spec.Defaults.Content)
		}
		p.values = append(p.values, ParamValue{Param: param, Value: v})
	}
	return p
}

func resolveCount(q Query, spec ProviderSpec) int {
	n := q.Count
	if n <= 0 {
		n = spec.Defaults.Count
	}
	if n <= 0 {
		n = DefaultResultCount
	}
	if spec.MaxCount > 0 && n > spec.MaxCount {
		n = spec.MaxCount
	}
	return n
}

func resolveMode(q Query, spec ProviderSpec) Mode {
	if !spec.AcceptsParam(ParamMode) {
		if q.Mode == "" {
			return ModeDefault
		}
		return q.Mode
	}
	if q.Mode != "" && spec.SupportsMode(q.Mode) {
		return q.Mode
	}
	if spec.Defaults.Mode != "" && spec.SupportsMode(spec.Defaults.Mode) {
		return spec.Defaults.Mode
	}
	return ModeDefault
}

// Mode returns the mode in effect for this provider.
func (p Params) Mode() Mode { return p.mode }

// Get returns the value for param and whether it was resolved.
func (p Params) Get(param Param) (string, bool) {
	for _, v := range p.values {
		if v.Param == param {
			return v.Value, true
		}
	}
	return "", false
}

// Has reports whether param was resolved.
func (p Params) Has(param Param) bool {
	_, ok := p.Get(param)
	return ok
}

// Each calls fn for every resolved param in order.
func (p Params) Each(fn func(Param, string)) {
	for _, v := range p.values {
		fn(v.Param, v.Value)
	}
}

// Len returns the number of resolved params.
func (p Params) Len() int { return len(p.values) }

// Template replaces {{param}} placeholders in s with resolved values.
// Placeholders for unresolved params are replaced with the empty string.
func (p Params) Template(s string) string {
	if !strings.Contains(s, "{{") {
		return s
	}
	pairs := make([]string, 0, len(KnownParams)*2)
	for _, param := range KnownParams {
		v, _ := p.Get(param)
		pairs = append(pairs, "{{"+string(param)+"}}", v)
	}
	return strings.NewReplacer(pairs...).Replace(s)
}

// References reports whether s contains a {{param}} placeholder.
func References(s string, param Param) bool {
	return strings.Contains(s, "{{"+string(param)+"}}")
}
