package sources

import (
	"context"
	"errors"
	"net/http"

	"github.com/footprint-labs/footprint-go/internal/domain"
)

// OSMProvider extracts OpenStreetMap buildings, restricted to the configured
// allow-list of building=* tag values.
type OSMProvider struct {
	endpoint Endpoint
	client   *http.Client
}

func NewOSMProvider(endpoint Endpoint, client *http.Client) *OSMProvider {
	if client == nil {
		client = &http.Client{Timeout: endpoint.Timeout}
	}
	return &OSMProvider{endpoint: endpoint, client: client}
}

func (p *OSMProvider) ID() domain.Source {
	return domain.SourceOSM
}

func (p *OSMProvider) Fetch(ctx context.Context, req FetchRequest) (*domain.FeatureCollection, error) {
	if req.Config.OSM == nil {
		return nil, errors.New("osm config is required")
	}
	raw, err := postAOI(ctx, p.client, p.endpoint.URL, req.AOI)
	if err != nil {
		return nil, err
	}

	allowed := make(map[string]struct{}, len(req.Config.OSM.BuildingTypes))
	for _, t := range req.Config.OSM.BuildingTypes {
		allowed[t] = struct{}{}
	}

	fc := domain.CollectionFromGeoJSON(raw)
	kept := fc.Features[:0]
	for _, f := range fc.Features {
		// Untagged features stay in; a building value outside the allow-list
		// drops the feature.
		if tag, ok := stringProperty(f.Properties, "building"); ok {
			if _, allow := allowed[tag]; !allow {
				continue
			}
		}
		kept = append(kept, f)
	}
	fc.Features = kept
	return fc, nil
}
