package sources

import (
	"context"
	"errors"
	"net/http"

	"github.com/footprint-labs/footprint-go/internal/domain"
)

// OvertureProvider extracts Overture Maps buildings, applying the minimum
// footprint area cut and optionally stripping height attributes.
type OvertureProvider struct {
	endpoint Endpoint
	client   *http.Client
}

func NewOvertureProvider(endpoint Endpoint, client *http.Client) *OvertureProvider {
	if client == nil {
		client = &http.Client{Timeout: endpoint.Timeout}
	}
	return &OvertureProvider{endpoint: endpoint, client: client}
}

func (p *OvertureProvider) ID() domain.Source {
	return domain.SourceOverture
}

func (p *OvertureProvider) Fetch(ctx context.Context, req FetchRequest) (*domain.FeatureCollection, error) {
	if req.Config.Overture == nil {
		return nil, errors.New("overture config is required")
	}
	cfg := req.Config.Overture

	raw, err := postAOI(ctx, p.client, p.endpoint.URL, req.AOI)
	if err != nil {
		return nil, err
	}

	fc := domain.CollectionFromGeoJSON(raw)
	kept := fc.Features[:0]
	for _, f := range fc.Features {
		if cfg.MinArea > 0 && f.AreaM2() < cfg.MinArea {
			continue
		}
		if !cfg.IncludeHeight {
			delete(f.Properties, "height")
		}
		kept = append(kept, f)
	}
	fc.Features = kept
	return fc, nil
}
