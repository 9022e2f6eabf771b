package domain

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/geojson"
)

// BuildingFeature is one building geometry with its source attributes.
type BuildingFeature struct {
	Geometry   orb.Geometry
	Properties map[string]any
}

// AreaM2 measures the building footprint geodesically.
func (f BuildingFeature) AreaM2() float64 {
	return geo.Area(f.Geometry)
}

// FeatureCollection is an in-memory set of building features from a single
// source extraction. It is never persisted directly; only artifacts derived
// from it are.
type FeatureCollection struct {
	Features []BuildingFeature
}

func (fc *FeatureCollection) Count() int {
	if fc == nil {
		return 0
	}
	return len(fc.Features)
}

func (fc *FeatureCollection) IsEmpty() bool {
	return fc.Count() == 0
}

func (fc *FeatureCollection) TotalAreaM2() float64 {
	if fc == nil {
		return 0
	}
	var total float64
	for _, f := range fc.Features {
		total += f.AreaM2()
	}
	return total
}

// ToGeoJSON converts the collection to its wire representation.
func (fc *FeatureCollection) ToGeoJSON() *geojson.FeatureCollection {
	out := geojson.NewFeatureCollection()
	if fc == nil {
		return out
	}
	for _, f := range fc.Features {
		feature := geojson.NewFeature(f.Geometry)
		if len(f.Properties) > 0 {
			feature.Properties = geojson.Properties(f.Properties)
		}
		out.Append(feature)
	}
	return out
}

// CollectionFromGeoJSON builds a FeatureCollection from decoded GeoJSON,
// skipping features without geometry.
func CollectionFromGeoJSON(src *geojson.FeatureCollection) *FeatureCollection {
	fc := &FeatureCollection{}
	if src == nil {
		return fc
	}
	for _, feature := range src.Features {
		if feature == nil || feature.Geometry == nil {
			continue
		}
		props := map[string]any(feature.Properties)
		fc.Features = append(fc.Features, BuildingFeature{
			Geometry:   feature.Geometry,
			Properties: props,
		})
	}
	return fc
}
