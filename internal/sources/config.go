package sources

import (
	"fmt"

	"github.com/footprint-labs/footprint-go/internal/domain"
	"github.com/getkin/kin-openapi/openapi3"
)

// Per-source configuration schemas. Unrecognized keys are rejected
// (additionalProperties: false); absent keys take documented defaults.
var configSchemas = map[domain.Source]*openapi3.Schema{
	domain.SourceGoogle:    googleConfigSchema(),
	domain.SourceMicrosoft: microsoftConfigSchema(),
	domain.SourceOSM:       osmConfigSchema(),
	domain.SourceOverture:  overtureConfigSchema(),
}

func noExtraKeys(s *openapi3.Schema) *openapi3.Schema {
	has := false
	s.AdditionalProperties = openapi3.AdditionalProperties{Has: &has}
	return s
}

func googleConfigSchema() *openapi3.Schema {
	return noExtraKeys(openapi3.NewObjectSchema().
		WithProperty("confidence_threshold", openapi3.NewFloat64Schema().WithMin(0).WithMax(1)))
}

func microsoftConfigSchema() *openapi3.Schema {
	regions := make([]any, 0, len(domain.MicrosoftRegions()))
	for _, r := range domain.MicrosoftRegions() {
		regions = append(regions, r)
	}
	return noExtraKeys(openapi3.NewObjectSchema().
		WithProperty("region", openapi3.NewStringSchema().WithEnum(regions...)))
}

func osmConfigSchema() *openapi3.Schema {
	return noExtraKeys(openapi3.NewObjectSchema().
		WithProperty("building_types", openapi3.NewArraySchema().WithItems(openapi3.NewStringSchema())))
}

func overtureConfigSchema() *openapi3.Schema {
	return noExtraKeys(openapi3.NewObjectSchema().
		WithProperty("include_height", openapi3.NewBoolSchema()).
		WithProperty("min_area", openapi3.NewFloat64Schema().WithMin(0)))
}

// ParseConfig validates a raw per-source config blob against the source's
// schema and returns the typed form with defaults applied. A nil blob means
// all defaults.
func ParseConfig(src domain.Source, raw map[string]any) (domain.SourceConfig, error) {
	schema, ok := configSchemas[src]
	if !ok {
		return domain.SourceConfig{}, fmt.Errorf("unknown source: %q", src)
	}
	if raw == nil {
		raw = map[string]any{}
	}
	if err := schema.VisitJSON(raw); err != nil {
		return domain.SourceConfig{}, fmt.Errorf("invalid %s config: %w", src, err)
	}

	var cfg domain.SourceConfig
	switch src {
	case domain.SourceGoogle:
		c := domain.DefaultGoogleConfig()
		if v, ok := raw["confidence_threshold"].(float64); ok {
			c.ConfidenceThreshold = v
		}
		cfg.Google = &c
	case domain.SourceMicrosoft:
		c := domain.DefaultMicrosoftConfig()
		if v, ok := raw["region"].(string); ok {
			c.Region = v
		}
		cfg.Microsoft = &c
	case domain.SourceOSM:
		c := domain.DefaultOSMConfig()
		if v, ok := raw["building_types"].([]any); ok {
			types := make([]string, 0, len(v))
			for _, item := range v {
				if s, ok := item.(string); ok {
					types = append(types, s)
				}
			}
			c.BuildingTypes = types
		}
		cfg.OSM = &c
	case domain.SourceOverture:
		c := domain.DefaultOvertureConfig()
		if v, ok := raw["include_height"].(bool); ok {
			c.IncludeHeight = v
		}
		if v, ok := raw["min_area"].(float64); ok {
			c.MinArea = v
		}
		cfg.Overture = &c
	}

	if err := cfg.Validate(); err != nil {
		return domain.SourceConfig{}, fmt.Errorf("invalid %s config: %w", src, err)
	}
	return cfg, nil
}
