package domain

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/geojson"
)

// AOI is the area of interest for an export: a single simply-connected
// polygon in WGS84 lon/lat coordinates.
type AOI struct {
	Polygon orb.Polygon
}

func (a AOI) Validate() error {
	if len(a.Polygon) == 0 {
		return errors.New("aoi polygon is required")
	}
	if len(a.Polygon) != 1 {
		return errors.New("aoi must be a single ring polygon")
	}
	ring := a.Polygon[0]
	if len(ring) < 4 {
		return errors.New("aoi ring must have at least 4 positions")
	}
	if !ring.Closed() {
		return errors.New("aoi ring must be closed")
	}
	for i, pt := range ring {
		if pt.Lon() < -180 || pt.Lon() > 180 {
			return fmt.Errorf("aoi position %d longitude out of range: %v", i, pt.Lon())
		}
		if pt.Lat() < -90 || pt.Lat() > 90 {
			return fmt.Errorf("aoi position %d latitude out of range: %v", i, pt.Lat())
		}
	}
	if geo.Area(a.Polygon) <= 0 {
		return errors.New("aoi must enclose a non-zero area")
	}
	return nil
}

// AreaKm2 measures the polygon geodesically, never in raw degrees.
func (a AOI) AreaKm2() float64 {
	return geo.Area(a.Polygon) / 1_000_000
}

// FeatureCollectionJSON renders the AOI as a single-feature GeoJSON
// FeatureCollection, the handoff shape expected by building-data providers.
func (a AOI) FeatureCollectionJSON() ([]byte, error) {
	fc := geojson.NewFeatureCollection()
	fc.Append(geojson.NewFeature(a.Polygon))
	return json.Marshal(fc)
}

func (a AOI) MarshalJSON() ([]byte, error) {
	return geojson.NewGeometry(a.Polygon).MarshalJSON()
}

func (a *AOI) UnmarshalJSON(data []byte) error {
	geom, err := geojson.UnmarshalGeometry(data)
	if err != nil {
		return fmt.Errorf("decode aoi geometry: %w", err)
	}
	poly, ok := geom.Geometry().(orb.Polygon)
	if !ok {
		return fmt.Errorf("aoi must be a Polygon, got %s", geom.Type)
	}
	a.Polygon = poly
	return nil
}
