package sources

import (
	"context"
	"errors"
	"net/http"

	"github.com/footprint-labs/footprint-go/internal/domain"
)

// GoogleProvider extracts Google Open Buildings footprints. Each feature
// carries a detection confidence; the configured threshold filters them.
type GoogleProvider struct {
	endpoint Endpoint
	client   *http.Client
}

func NewGoogleProvider(endpoint Endpoint, client *http.Client) *GoogleProvider {
	if client == nil {
		client = &http.Client{Timeout: endpoint.Timeout}
	}
	return &GoogleProvider{endpoint: endpoint, client: client}
}

func (p *GoogleProvider) ID() domain.Source {
	return domain.SourceGoogle
}

func (p *GoogleProvider) Fetch(ctx context.Context, req FetchRequest) (*domain.FeatureCollection, error) {
	if req.Config.Google == nil {
		return nil, errors.New("google config is required")
	}
	raw, err := postAOI(ctx, p.client, p.endpoint.URL, req.AOI)
	if err != nil {
		return nil, err
	}

	threshold := req.Config.Google.ConfidenceThreshold
	fc := domain.CollectionFromGeoJSON(raw)
	kept := fc.Features[:0]
	for _, f := range fc.Features {
		if confidence, ok := floatProperty(f.Properties, "confidence"); ok && confidence < threshold {
			continue
		}
		kept = append(kept, f)
	}
	fc.Features = kept
	return fc, nil
}
