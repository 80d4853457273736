package provider

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"unisearch/internal/domain"
	"unisearch/internal/infra/config"
)

// FromConfig builds a registry from the providers section of cfg.
// Relative dirs are resolved against the workspace and ${VAR} references
// in env and header values are expanded.
func FromConfig(cfg *config.Config) (*Registry, error) {
	specs := make([]domain.ProviderSpec, 0, len(cfg.Providers))
	for _, pc := range cfg.Providers {
		spec, err := SpecFromConfig(cfg, pc)
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return NewRegistry(specs...)
}

// SpecFromConfig converts a single provider entry.
func SpecFromConfig(cfg *config.Config, pc config.ProviderConfig) (domain.ProviderSpec, error) {
	op := "provider.FromConfig"
	spec := domain.ProviderSpec{
		ID:       pc.Name,
		MaxCount: pc.MaxCount,
		Timeout:  pc.Timeout,
		Defaults: domain.ProviderDefaults{
			Count:   pc.Defaults.Count,
			Content: pc.Defaults.Content,
		},
	}

	for _, a := range pc.Accepts {
		p, err := domain.ParseParam(a)
		if err != nil {
			return domain.ProviderSpec{}, domain.NewDomainError(op, domain.ErrInvalidInput,
				fmt.Sprintf("provider %s: %v", pc.Name, err))
		}
		if !slices.Contains(spec.Accepts, p) {
			spec.Accepts = append(spec.Accepts, p)
		}
	}

	if len(pc.Params) > 0 {
		spec.ParamNames = make(map[domain.Param]string, len(pc.Params))
		for k, v := range pc.Params {
			p, err := domain.ParseParam(k)
			if err != nil {
				return domain.ProviderSpec{}, domain.NewDomainError(op, domain.ErrInvalidInput,
					fmt.Sprintf("provider %s: %v", pc.Name, err))
			}
			spec.ParamNames[p] = v
		}
	}

	for _, m := range pc.Modes {
		mode, err := domain.ParseMode(m)
		if err != nil {
			return domain.ProviderSpec{}, domain.NewDomainError(op, domain.ErrInvalidInput,
				fmt.Sprintf("provider %s: %v", pc.Name, err))
		}
		spec.Modes = append(spec.Modes, mode)
	}
	if pc.Defaults.Mode != "" {
		mode, err := domain.ParseMode(pc.Defaults.Mode)
		if err != nil {
			return domain.ProviderSpec{}, domain.NewDomainError(op, domain.ErrInvalidInput,
				fmt.Sprintf("provider %s defaults: %v", pc.Name, err))
		}
		spec.Defaults.Mode = mode
	}

	kind := domain.TransportKind(strings.ToLower(pc.Transport))
	switch kind {
	case domain.TransportExec, domain.TransportHTTP, domain.TransportMCP:
	default:
		return domain.ProviderSpec{}, domain.NewDomainError(op, domain.ErrInvalidInput,
			fmt.Sprintf("provider %s: unsupported transport %q", pc.Name, pc.Transport))
	}

	spec.Invocation = domain.InvocationDescriptor{
		Kind:    kind,
		Command: pc.Command,
		Args:    slices.Clone(pc.Args),
		Dir:     cfg.ResolveDir(pc.Dir),
		Env:     envList(pc.Env),
		URL:     pc.URL,
		Method:  strings.ToUpper(pc.Method),
		Headers: expandHeaders(pc.Headers),
		Tool:    pc.Tool,
	}
	return spec, nil
}

// envList renders env as sorted KEY=value pairs with ${VAR} expansion.
func envList(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+os.ExpandEnv(v))
	}
	slices.Sort(out)
	return out
}

func expandHeaders(h map[string]string) map[string]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = os.ExpandEnv(v)
	}
	return out
}
