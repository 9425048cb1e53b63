package provider

import (
	apperrors "settlr/internal/errors"
	"settlr/internal/models"
)

// Registry resolves adapters by provider name.
type Registry struct {
	providers map[models.Provider]Provider
}

func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[models.Provider]Provider, len(providers))}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	return r
}

func (r *Registry) Get(name models.Provider) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, apperrors.ErrUnsupportedProvider.WithMessage("unsupported payment provider: " + string(name))
	}
	return p, nil
}

func (r *Registry) Payout(name models.Provider) (PayoutProvider, error) {
	p, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	pp, ok := p.(PayoutProvider)
	if !ok {
		return nil, apperrors.ErrUnsupportedProvider.WithMessage(string(name) + " cannot send payouts")
	}
	return pp, nil
}

// Manual returns the manual adapter when registered.
func (r *Registry) Manual() (*Manual, bool) {
	m, ok := r.providers[models.ProviderManual].(*Manual)
	return m, ok
}
