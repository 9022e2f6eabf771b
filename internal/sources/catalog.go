package sources

import (
	"fmt"
	"os"
	"time"

	"github.com/footprint-labs/footprint-go/internal/domain"
	"gopkg.in/yaml.v3"
)

// Endpoint describes where one provider's extraction service lives.
type Endpoint struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// Catalog maps source identifiers to their extraction endpoints. It is
// loaded once at startup; a missing file falls back to the defaults.
type Catalog struct {
	Providers map[string]Endpoint `yaml:"providers"`
}

const defaultFetchTimeout = 5 * time.Minute

func DefaultCatalog() Catalog {
	return Catalog{Providers: map[string]Endpoint{
		string(domain.SourceGoogle):    {URL: "https://buildings.footprint-labs.io/v1/google/extract", Timeout: defaultFetchTimeout},
		string(domain.SourceMicrosoft): {URL: "https://buildings.footprint-labs.io/v1/microsoft/extract", Timeout: defaultFetchTimeout},
		string(domain.SourceOSM):       {URL: "https://buildings.footprint-labs.io/v1/osm/extract", Timeout: defaultFetchTimeout},
		string(domain.SourceOverture):  {URL: "https://buildings.footprint-labs.io/v1/overture/extract", Timeout: defaultFetchTimeout},
	}}
}

func LoadCatalog(path string) (Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("read provider catalog: %w", err)
	}
	var catalog Catalog
	if err := yaml.Unmarshal(raw, &catalog); err != nil {
		return Catalog{}, fmt.Errorf("parse provider catalog: %w", err)
	}
	if err := catalog.Validate(); err != nil {
		return Catalog{}, err
	}
	return catalog, nil
}

func (c Catalog) Validate() error {
	if len(c.Providers) == 0 {
		return fmt.Errorf("provider catalog is empty")
	}
	for name, ep := range c.Providers {
		if _, err := domain.ParseSource(name); err != nil {
			return fmt.Errorf("provider catalog: %w", err)
		}
		if ep.URL == "" {
			return fmt.Errorf("provider catalog: %s url is required", name)
		}
	}
	return nil
}

// Endpoint returns the endpoint for a source, or an error when the catalog
// does not carry one.
func (c Catalog) Endpoint(src domain.Source) (Endpoint, error) {
	ep, ok := c.Providers[string(src)]
	if !ok {
		return Endpoint{}, fmt.Errorf("no endpoint configured for source %q", src)
	}
	if ep.Timeout <= 0 {
		ep.Timeout = defaultFetchTimeout
	}
	return ep, nil
}
