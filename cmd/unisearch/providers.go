package main

import (
	"github.com/spf13/cobra"

	"unisearch/internal/adapter/provider"
	"unisearch/internal/domain"
)

type providerView struct {
	ID        string               `json:"id"`
	Transport domain.TransportKind `json:"transport"`
	Accepts   []domain.Param       `json:"accepts"`
	Modes     []domain.Mode        `json:"modes"`
	MaxCount  int                  `json:"max_count,omitempty"`
	Timeout   string               `json:"timeout"`
}

func newProvidersCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List configured providers in fallback order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := a.bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.close()

			reg, err := provider.FromConfig(rt.cfg)
			if err != nil {
				return err
			}

			views := make([]providerView, 0, reg.Len())
			for _, spec := range reg.Chain() {
				timeout := spec.Timeout
				if timeout <= 0 {
					timeout = rt.cfg.Dispatch.DefaultTimeout
				}
				modes := spec.Modes
				if len(modes) == 0 {
					modes = domain.KnownModes
				}
				accepts := []domain.Param{domain.ParamQuery}
				for _, p := range spec.Accepts {
					if p != domain.ParamQuery {
						accepts = append(accepts, p)
					}
				}
				views = append(views, providerView{
					ID:        spec.ID,
					Transport: spec.Invocation.Kind,
					Accepts:   accepts,
					Modes:     modes,
					MaxCount:  spec.MaxCount,
					Timeout:   timeout.String(),
				})
			}
			return writeJSON(a.stdout, views)
		},
	}
}
