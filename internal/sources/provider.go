package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/footprint-labs/footprint-go/internal/domain"
	"github.com/paulmach/orb/geojson"
)

// FetchRequest carries everything a provider needs for one extraction call.
type FetchRequest struct {
	AOI domain.AOI
	// AOIPath is the temp GeoJSON file the extractor staged for tools that
	// read the AOI from disk. Providers may ignore it.
	AOIPath string
	Config  domain.SourceConfig
}

// Provider fetches building footprints from one external data source. Calls
// may be slow and must respect the context deadline.
type Provider interface {
	ID() domain.Source
	Fetch(ctx context.Context, req FetchRequest) (*domain.FeatureCollection, error)
}

// Registry resolves providers by source identifier.
type Registry struct {
	providers map[domain.Source]Provider
}

func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[domain.Source]Provider, len(providers))}
	for _, p := range providers {
		if p == nil {
			continue
		}
		r.providers[p.ID()] = p
	}
	return r
}

func (r *Registry) Provider(src domain.Source) (Provider, error) {
	if r == nil {
		return nil, fmt.Errorf("provider registry not initialized")
	}
	p, ok := r.providers[src]
	if !ok {
		return nil, fmt.Errorf("no provider registered for source %q", src)
	}
	return p, nil
}

func (r *Registry) Sources() []domain.Source {
	out := make([]domain.Source, 0, len(r.providers))
	for _, src := range domain.KnownSources() {
		if _, ok := r.providers[src]; ok {
			out = append(out, src)
		}
	}
	return out
}

// postAOI sends the AOI as a GeoJSON FeatureCollection and decodes the
// returned building FeatureCollection.
func postAOI(ctx context.Context, client *http.Client, url string, aoi domain.AOI) (*geojson.FeatureCollection, error) {
	body, err := aoi.FeatureCollectionJSON()
	if err != nil {
		return nil, fmt.Errorf("encode aoi: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/geo+json")
	req.Header.Set("Accept", "application/geo+json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch buildings: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("provider returned %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(raw)
	if err != nil {
		return nil, fmt.Errorf("decode feature collection: %w", err)
	}
	return fc, nil
}

func floatProperty(props map[string]any, key string) (float64, bool) {
	if props == nil {
		return 0, false
	}
	switch v := props[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func stringProperty(props map[string]any, key string) (string, bool) {
	if props == nil {
		return "", false
	}
	s, ok := props[key].(string)
	return s, ok
}
