package extract

import (
	"github.com/footprint-labs/footprint-go/internal/domain"
)

const noBuildingsMessage = "No buildings found"

// GenerateStats derives the per-source result block from an extracted
// collection: counts, geodesic area, and source-specific attribute stats.
func GenerateStats(fc *domain.FeatureCollection, src domain.Source) *domain.SourceResult {
	if fc.IsEmpty() {
		return &domain.SourceResult{
			BuildingCount: 0,
			TotalAreaM2:   0,
			Message:       noBuildingsMessage,
		}
	}

	result := &domain.SourceResult{
		BuildingCount: fc.Count(),
		TotalAreaM2:   fc.TotalAreaM2(),
	}
	if stats := sourceStats(fc, src); len(stats) > 0 {
		result.Stats = stats
	}
	return result
}

func sourceStats(fc *domain.FeatureCollection, src domain.Source) map[string]any {
	switch src {
	case domain.SourceGoogle:
		return confidenceStats(fc)
	case domain.SourceOSM:
		return buildingTypeStats(fc)
	case domain.SourceOverture:
		return heightStats(fc)
	default:
		return nil
	}
}

func confidenceStats(fc *domain.FeatureCollection) map[string]any {
	var sum float64
	var n int
	for _, f := range fc.Features {
		if v, ok := numericProperty(f.Properties, "confidence"); ok {
			sum += v
			n++
		}
	}
	if n == 0 {
		return nil
	}
	return map[string]any{"confidence_average": sum / float64(n)}
}

func buildingTypeStats(fc *domain.FeatureCollection) map[string]any {
	histogram := map[string]int{}
	for _, f := range fc.Features {
		if tag, ok := f.Properties["building"].(string); ok && tag != "" {
			histogram[tag]++
		}
	}
	if len(histogram) == 0 {
		return nil
	}
	return map[string]any{"building_types": histogram}
}

func heightStats(fc *domain.FeatureCollection) map[string]any {
	var sum float64
	var n int
	for _, f := range fc.Features {
		if v, ok := numericProperty(f.Properties, "height"); ok {
			sum += v
			n++
		}
	}
	if n == 0 {
		return nil
	}
	return map[string]any{"average_height_m": sum / float64(n)}
}

func numericProperty(props map[string]any, key string) (float64, bool) {
	if props == nil {
		return 0, false
	}
	switch v := props[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}
