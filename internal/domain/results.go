package domain

// RunResults is the structured payload persisted with a completed or failed
// run. It is the only channel through which per-stage detail reaches the
// user. Fields are appended monotonically during processing and frozen once
// the run reaches a terminal state.
type RunResults struct {
	Sources            map[string]*SourceResult `json:"sources"`
	TotalBuildingCount int                      `json:"total_building_count"`
	Message            string                   `json:"message,omitempty"`
	Population         *PopulationStats         `json:"population,omitempty"`
	TilesGenerated     bool                     `json:"tiles_generated,omitempty"`
	TilesError         string                   `json:"tiles_error,omitempty"`
	ArchiveFile        string                   `json:"archive_file,omitempty"`
}

func NewRunResults() *RunResults {
	return &RunResults{Sources: map[string]*SourceResult{}}
}

// SourceResult is the per-source outcome. An extraction error is recorded
// here and contributes zero buildings; it never aborts sibling sources.
type SourceResult struct {
	BuildingCount int                      `json:"building_count"`
	TotalAreaM2   float64                  `json:"total_area_m2,omitempty"`
	Message       string                   `json:"message,omitempty"`
	Error         string                   `json:"error,omitempty"`
	Stats         map[string]any           `json:"stats,omitempty"`
	Formats       map[string]*FormatResult `json:"formats,omitempty"`
	Coverage      *CoverageMetrics         `json:"coverage,omitempty"`
}

// FormatResult is the per-(source, format) conversion outcome.
type FormatResult struct {
	File          string `json:"file,omitempty"`
	SizeBytes     int64  `json:"size_bytes,omitempty"`
	BuildingCount int    `json:"building_count,omitempty"`
	Error         string `json:"error,omitempty"`
}

// PopulationStats is the best-effort enrichment block. Absent entirely when
// estimation failed.
type PopulationStats struct {
	PopulationEstimate int64   `json:"population_estimate"`
	AreaKm2            float64 `json:"area_km2,omitempty"`
	DensityPerKm2      float64 `json:"density_per_km2,omitempty"`
	Source             string  `json:"source"`
	Method             string  `json:"method"`
	Year               int     `json:"year"`
	TaskID             string  `json:"task_id,omitempty"`
}

// CoverageMetrics relate a source's building count to the estimated
// population of the AOI.
type CoverageMetrics struct {
	BuildingsPerCapita float64 `json:"buildings_per_capita"`
	CoverageLevel      string  `json:"coverage_level"`
}
