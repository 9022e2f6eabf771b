package population

import (
	"context"
	"log/slog"

	"github.com/footprint-labs/footprint-go/internal/domain"
)

// Estimator is the subset of the stats client the enricher needs.
type Estimator interface {
	Estimate(ctx context.Context, aoi domain.AOI) (*domain.PopulationStats, error)
}

// Enricher adds population context to run results. Enrichment is best
// effort: a service failure is logged and yields nil, never an error, so
// a run completes without population data rather than failing.
type Enricher struct {
	estimator Estimator
	logger    *slog.Logger
}

func NewEnricher(estimator Estimator, logger *slog.Logger) *Enricher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Enricher{estimator: estimator, logger: logger}
}

// Estimate returns population stats for the AOI, or nil when the service
// is unreachable or misbehaving.
func (e *Enricher) Estimate(ctx context.Context, aoi domain.AOI) *domain.PopulationStats {
	if e.estimator == nil {
		return nil
	}
	stats, err := e.estimator.Estimate(ctx, aoi)
	if err != nil {
		e.logger.Warn("population enrichment skipped", "error", err)
		return nil
	}
	return stats
}

// Coverage grades how completely a source maps the AOI, using buildings
// per capita as the proxy.
func Coverage(buildingCount int, population int64) *domain.CoverageMetrics {
	if population <= 0 {
		return nil
	}
	perCapita := float64(buildingCount) / float64(population)
	return &domain.CoverageMetrics{
		BuildingsPerCapita: perCapita,
		CoverageLevel:      coverageLevel(perCapita),
	}
}

func coverageLevel(perCapita float64) string {
	switch {
	case perCapita < 0.1:
		return "very_low"
	case perCapita < 0.2:
		return "low"
	case perCapita < 0.4:
		return "moderate"
	case perCapita < 0.6:
		return "high"
	default:
		return "excellent"
	}
}
