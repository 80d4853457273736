package provider

import (
	"fmt"

	"unisearch/internal/domain"
)

// Registry holds provider specs in fallback order. It is built once and
// never mutated, so it is safe for concurrent use without locking.
type Registry struct {
	order []domain.ProviderSpec
	index map[string]int
}

// NewRegistry builds a registry from specs, keeping their order.
// Empty and duplicate ids are rejected.
func NewRegistry(specs ...domain.ProviderSpec) (*Registry, error) {
	r := &Registry{
		order: make([]domain.ProviderSpec, 0, len(specs)),
		index: make(map[string]int, len(specs)),
	}
	for i, s := range specs {
		if s.ID == "" {
			return nil, domain.NewDomainError("NewRegistry", domain.ErrInvalidInput,
				fmt.Sprintf("provider %d has an empty id", i))
		}
		if s.ID == domain.SelectionAuto {
			return nil, domain.NewDomainError("NewRegistry", domain.ErrInvalidInput,
				fmt.Sprintf("provider id %q is reserved", s.ID))
		}
		if _, exists := r.index[s.ID]; exists {
			return nil, domain.NewDomainError("NewRegistry", domain.ErrInvalidInput,
				fmt.Sprintf("provider %q already registered", s.ID))
		}
		r.index[s.ID] = len(r.order)
		r.order = append(r.order, s.Clone())
	}
	return r, nil
}

// Lookup retrieves a provider by id.
func (r *Registry) Lookup(id string) (domain.ProviderSpec, error) {
	i, ok := r.index[id]
	if !ok {
		return domain.ProviderSpec{}, domain.NewDomainError("Registry.Lookup", domain.ErrUnknownProvider, id)
	}
	return r.order[i].Clone(), nil
}

// Chain returns every provider in fallback order.
func (r *Registry) Chain() []domain.ProviderSpec {
	out := make([]domain.ProviderSpec, len(r.order))
	for i, s := range r.order {
		out[i] = s.Clone()
	}
	return out
}

// Names returns provider ids in fallback order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.order))
	for i, s := range r.order {
		names[i] = s.ID
	}
	return names
}

// Len returns the number of providers.
func (r *Registry) Len() int { return len(r.order) }
