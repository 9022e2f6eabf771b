package domain

import (
	"fmt"
	"strings"
)

// Source identifies a building-footprint data provider.
type Source string

const (
	SourceGoogle    Source = "google"
	SourceMicrosoft Source = "microsoft"
	SourceOSM       Source = "osm"
	SourceOverture  Source = "overture"
)

// KnownSources lists every recognized source in canonical order.
func KnownSources() []Source {
	return []Source{SourceGoogle, SourceMicrosoft, SourceOSM, SourceOverture}
}

func ParseSource(value string) (Source, error) {
	switch s := Source(strings.ToLower(strings.TrimSpace(value))); s {
	case SourceGoogle, SourceMicrosoft, SourceOSM, SourceOverture:
		return s, nil
	default:
		return "", fmt.Errorf("unknown source: %q", value)
	}
}

// Format identifies an output serialization for converted buildings.
type Format string

const (
	FormatGeoParquet Format = "geoparquet"
	FormatGeoJSON    Format = "geojson"
	FormatShapefile  Format = "shapefile"
	FormatGeoPackage Format = "geopackage"

	// FormatTiles is a pseudo-format: selecting it requests the merged
	// vector-tile artifact, which is produced by the tile builder rather
	// than the per-source converter.
	FormatTiles Format = "tiles"
)

func KnownFormats() []Format {
	return []Format{FormatGeoParquet, FormatGeoJSON, FormatShapefile, FormatGeoPackage, FormatTiles}
}

func ParseFormat(value string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(value))); f {
	case FormatGeoParquet, FormatGeoJSON, FormatShapefile, FormatGeoPackage, FormatTiles:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format: %q", value)
	}
}

// Ext returns the file extension of the primary artifact for a format.
func (f Format) Ext() string {
	switch f {
	case FormatGeoParquet:
		return ".parquet"
	case FormatGeoJSON:
		return ".geojson"
	case FormatShapefile:
		return ".shp"
	case FormatGeoPackage:
		return ".gpkg"
	case FormatTiles:
		return ".pmtiles"
	default:
		return ""
	}
}
