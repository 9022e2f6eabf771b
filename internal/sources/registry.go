package sources

import (
	"net/http"

	"github.com/footprint-labs/footprint-go/internal/domain"
)

// BuildRegistry constructs one provider per catalog entry. Sources absent
// from the catalog are simply not registered; requesting them later is a
// configuration error.
func BuildRegistry(catalog Catalog) (*Registry, error) {
	if err := catalog.Validate(); err != nil {
		return nil, err
	}
	var providers []Provider
	for _, src := range domain.KnownSources() {
		ep, err := catalog.Endpoint(src)
		if err != nil {
			continue
		}
		client := &http.Client{Timeout: ep.Timeout}
		switch src {
		case domain.SourceGoogle:
			providers = append(providers, NewGoogleProvider(ep, client))
		case domain.SourceMicrosoft:
			providers = append(providers, NewMicrosoftProvider(ep, client))
		case domain.SourceOSM:
			providers = append(providers, NewOSMProvider(ep, client))
		case domain.SourceOverture:
			providers = append(providers, NewOvertureProvider(ep, client))
		}
	}
	return NewRegistry(providers...), nil
}
