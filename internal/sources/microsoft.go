package sources

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/footprint-labs/footprint-go/internal/domain"
)

// MicrosoftProvider extracts Microsoft Building Footprints from one of the
// published regional dataset slices.
type MicrosoftProvider struct {
	endpoint Endpoint
	client   *http.Client
}

func NewMicrosoftProvider(endpoint Endpoint, client *http.Client) *MicrosoftProvider {
	if client == nil {
		client = &http.Client{Timeout: endpoint.Timeout}
	}
	return &MicrosoftProvider{endpoint: endpoint, client: client}
}

func (p *MicrosoftProvider) ID() domain.Source {
	return domain.SourceMicrosoft
}

func (p *MicrosoftProvider) Fetch(ctx context.Context, req FetchRequest) (*domain.FeatureCollection, error) {
	if req.Config.Microsoft == nil {
		return nil, errors.New("microsoft config is required")
	}
	target, err := url.Parse(p.endpoint.URL)
	if err != nil {
		return nil, err
	}
	q := target.Query()
	q.Set("region", req.Config.Microsoft.Region)
	target.RawQuery = q.Encode()

	raw, err := postAOI(ctx, p.client, target.String(), req.AOI)
	if err != nil {
		return nil, err
	}
	return domain.CollectionFromGeoJSON(raw), nil
}
