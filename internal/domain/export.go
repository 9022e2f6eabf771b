package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Export is a reusable export configuration: the AOI plus what to extract
// and how to serialize it. It is owned by a user and mutable only while no
// run is in flight.
type Export struct {
	ID            string
	OwnerID       string
	Name          string
	Description   string
	AOI           AOI
	Sources       []Source
	Formats       []Format
	SourceConfigs map[Source]map[string]any
	IsPublic      bool
	// NotifyEmail is the verified address completion notices go to. Empty
	// means the owner opted out.
	NotifyEmail string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (e Export) Validate() error {
	if strings.TrimSpace(e.ID) == "" {
		return errors.New("export id is required")
	}
	if strings.TrimSpace(e.OwnerID) == "" {
		return errors.New("owner id is required")
	}
	if strings.TrimSpace(e.Name) == "" {
		return errors.New("export name is required")
	}
	if err := e.AOI.Validate(); err != nil {
		return fmt.Errorf("area of interest: %w", err)
	}
	if len(e.Sources) == 0 {
		return errors.New("at least one source is required")
	}
	seen := make(map[Source]struct{}, len(e.Sources))
	for _, src := range e.Sources {
		if _, err := ParseSource(string(src)); err != nil {
			return err
		}
		if _, dup := seen[src]; dup {
			return fmt.Errorf("duplicate source: %s", src)
		}
		seen[src] = struct{}{}
	}
	if len(e.Formats) == 0 {
		return errors.New("at least one output format is required")
	}
	for _, f := range e.Formats {
		if _, err := ParseFormat(string(f)); err != nil {
			return err
		}
	}
	for src := range e.SourceConfigs {
		if _, err := ParseSource(string(src)); err != nil {
			return fmt.Errorf("source config: %w", err)
		}
	}
	return nil
}

// ConfigFor returns the raw config blob for a source, or nil when defaults
// apply.
func (e Export) ConfigFor(src Source) map[string]any {
	if e.SourceConfigs == nil {
		return nil
	}
	return e.SourceConfigs[src]
}

// WantsTiles reports whether the tiles pseudo-format was requested.
func (e Export) WantsTiles() bool {
	for _, f := range e.Formats {
		if f == FormatTiles {
			return true
		}
	}
	return false
}

// ConversionFormats returns the requested formats without the tiles
// pseudo-format, preserving configuration order.
func (e Export) ConversionFormats() []Format {
	out := make([]Format, 0, len(e.Formats))
	for _, f := range e.Formats {
		if f == FormatTiles {
			continue
		}
		out = append(out, f)
	}
	return out
}
