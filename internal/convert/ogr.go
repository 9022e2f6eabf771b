package convert

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/footprint-labs/footprint-go/internal/domain"
)

// ogrDrivers maps output formats to the driver names the translation tool
// understands. GeoJSON is handled natively and never reaches the tool.
var ogrDrivers = map[domain.Format]string{
	domain.FormatGeoParquet: "Parquet",
	domain.FormatShapefile:  "ESRI Shapefile",
	domain.FormatGeoPackage: "GPKG",
}

// OGREngine shells out to ogr2ogr for the formats the pipeline does not
// encode itself. The binary is resolved at call time so a deploy can swap
// it without restarting workers.
type OGREngine struct {
	bin     string
	timeout time.Duration
	logger  *slog.Logger
}

func NewOGREngine(bin string, timeout time.Duration, logger *slog.Logger) *OGREngine {
	if bin == "" {
		bin = "ogr2ogr"
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OGREngine{bin: bin, timeout: timeout, logger: logger}
}

// Available reports whether the translation binary can be resolved.
func (e *OGREngine) Available() bool {
	_, err := exec.LookPath(e.bin)
	return err == nil
}

// Translate converts a staged GeoJSON file into the requested format.
func (e *OGREngine) Translate(ctx context.Context, srcPath, dstPath string, format domain.Format) error {
	driver, ok := ogrDrivers[format]
	if !ok {
		return fmt.Errorf("no translation driver for format %q", format)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, e.bin, "-f", driver, dstPath, srcPath)
	out, err := cmd.CombinedOutput()
	if err != nil {
		snippet := strings.TrimSpace(string(out))
		if len(snippet) > 512 {
			snippet = snippet[:512]
		}
		e.logger.Error("format translation failed",
			"format", format, "driver", driver, "error", err, "output", snippet)
		return fmt.Errorf("translate to %s: %w", format, err)
	}
	if _, err := os.Stat(dstPath); err != nil {
		return fmt.Errorf("translation produced no output for %s", format)
	}
	return nil
}
