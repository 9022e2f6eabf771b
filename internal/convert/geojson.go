package convert

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/footprint-labs/footprint-go/internal/domain"
	"github.com/paulmach/orb/geojson"
)

// WriteGeoJSONFile serializes a collection to a GeoJSON FeatureCollection
// file.
func WriteGeoJSONFile(fc *domain.FeatureCollection, path string) error {
	blob, err := json.Marshal(fc.ToGeoJSON())
	if err != nil {
		return fmt.Errorf("encode geojson: %w", err)
	}
	if err := os.WriteFile(path, blob, 0o644); err != nil {
		return fmt.Errorf("write geojson: %w", err)
	}
	return nil
}

// ReadGeoJSONFile decodes a GeoJSON file back into a collection.
func ReadGeoJSONFile(path string) (*domain.FeatureCollection, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read geojson: %w", err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(raw)
	if err != nil {
		return nil, fmt.Errorf("decode geojson: %w", err)
	}
	return domain.CollectionFromGeoJSON(fc), nil
}

// WriteGeoJSONLines writes one feature per line (newline-delimited GeoJSON),
// the input shape the tiling tool streams most efficiently. Features without
// geometry are skipped.
func WriteGeoJSONLines(fc *domain.FeatureCollection, w io.Writer) error {
	bw := bufio.NewWriter(w)
	for _, f := range fc.Features {
		if f.Geometry == nil {
			continue
		}
		feature := geojson.NewFeature(f.Geometry)
		if len(f.Properties) > 0 {
			feature.Properties = geojson.Properties(f.Properties)
		}
		line, err := json.Marshal(feature)
		if err != nil {
			return fmt.Errorf("encode feature: %w", err)
		}
		if _, err := bw.Write(line); err != nil {
			return err
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteGeoJSONLFile writes the line-delimited form to a file.
func WriteGeoJSONLFile(fc *domain.FeatureCollection, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create geojsonl: %w", err)
	}
	if err := WriteGeoJSONLines(fc, f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
