package domain

import (
	"errors"
	"fmt"
)

// SourceConfig is the validated, typed form of the per-source configuration
// blob. Exactly one variant is populated, matching the source it was parsed
// for. Raw key/value blobs are validated against the per-source schema in
// the sources package before they ever become one of these.
type SourceConfig struct {
	Google    *GoogleConfig
	Microsoft *MicrosoftConfig
	OSM       *OSMConfig
	Overture  *OvertureConfig
}

// GoogleConfig filters Google Open Buildings by detection confidence.
type GoogleConfig struct {
	ConfidenceThreshold float64
}

// MicrosoftConfig selects the regional Microsoft Building Footprints slice.
type MicrosoftConfig struct {
	Region string
}

// OSMConfig restricts OpenStreetMap buildings to an allow-list of
// building=* tag values.
type OSMConfig struct {
	BuildingTypes []string
}

// OvertureConfig controls Overture Maps extraction.
type OvertureConfig struct {
	IncludeHeight bool
	MinArea       float64
}

// Defaults mirror the per-source schema defaults.
func DefaultGoogleConfig() GoogleConfig {
	return GoogleConfig{ConfidenceThreshold: 0.7}
}

func DefaultMicrosoftConfig() MicrosoftConfig {
	return MicrosoftConfig{Region: "global"}
}

func DefaultOSMConfig() OSMConfig {
	return OSMConfig{BuildingTypes: []string{"yes", "house", "apartments", "commercial", "industrial"}}
}

func DefaultOvertureConfig() OvertureConfig {
	return OvertureConfig{IncludeHeight: true, MinArea: 10}
}

// MicrosoftRegions enumerates the recognized regional dataset slices.
func MicrosoftRegions() []string {
	return []string{"us", "canada", "africa", "australia", "global"}
}

func (c SourceConfig) Validate() error {
	populated := 0
	if c.Google != nil {
		populated++
		if c.Google.ConfidenceThreshold < 0 || c.Google.ConfidenceThreshold > 1 {
			return fmt.Errorf("confidence_threshold out of range: %v", c.Google.ConfidenceThreshold)
		}
	}
	if c.Microsoft != nil {
		populated++
		valid := false
		for _, r := range MicrosoftRegions() {
			if c.Microsoft.Region == r {
				valid = true
				break
			}
		}
		if !valid {
			return fmt.Errorf("unknown microsoft region: %q", c.Microsoft.Region)
		}
	}
	if c.OSM != nil {
		populated++
		if len(c.OSM.BuildingTypes) == 0 {
			return errors.New("building_types must not be empty")
		}
	}
	if c.Overture != nil {
		populated++
		if c.Overture.MinArea < 0 {
			return fmt.Errorf("min_area must be >= 0: %v", c.Overture.MinArea)
		}
	}
	if populated != 1 {
		return fmt.Errorf("source config must populate exactly one variant, got %d", populated)
	}
	return nil
}

// SourceID reports which source the populated variant belongs to.
func (c SourceConfig) SourceID() (Source, error) {
	switch {
	case c.Google != nil:
		return SourceGoogle, nil
	case c.Microsoft != nil:
		return SourceMicrosoft, nil
	case c.OSM != nil:
		return SourceOSM, nil
	case c.Overture != nil:
		return SourceOverture, nil
	default:
		return "", errors.New("source config is empty")
	}
}
