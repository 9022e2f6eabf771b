// Package population estimates how many people live inside an AOI by
// querying a gridded-population statistics service, and grades source
// coverage against that estimate.
package population

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"time"

	"github.com/footprint-labs/footprint-go/internal/domain"
	"github.com/footprint-labs/footprint-go/internal/platform/env"
)

const (
	defaultBaseURL = "https://api.worldpop.org/v1"
	defaultDataset = "wpgppop"
	defaultYear    = 2020

	syncTimeout  = 35 * time.Second
	pollTimeout  = 10 * time.Second
	maxPollTries = 5
)

// Config carries the stats service connection settings.
type Config struct {
	BaseURL string
	APIKey  string
	Dataset string
	Year    int
}

func ConfigFromEnv() (Config, error) {
	year, err := env.Int("FOOTPRINT_POPULATION_YEAR", defaultYear)
	if err != nil {
		return Config{}, err
	}
	return Config{
		BaseURL: env.String("FOOTPRINT_POPULATION_BASE_URL", defaultBaseURL),
		APIKey:  env.String("FOOTPRINT_POPULATION_API_KEY", ""),
		Dataset: env.String("FOOTPRINT_POPULATION_DATASET", defaultDataset),
		Year:    year,
	}, nil
}

// Client talks to the stats service. The service answers small AOIs
// synchronously and hands back a task id for larger ones, which we poll
// with exponential backoff.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger

	// sleep is swapped out in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewClient(cfg Config, httpClient *http.Client, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Dataset == "" {
		cfg.Dataset = defaultDataset
	}
	if cfg.Year == 0 {
		cfg.Year = defaultYear
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{cfg: cfg, http: httpClient, logger: logger, sleep: sleepCtx}
}

type statsResponse struct {
	Status string `json:"status"`
	TaskID string `json:"taskid"`
	Error  any    `json:"error"`
	Data   struct {
		TotalPopulation float64 `json:"total_population"`
	} `json:"data"`
}

// Estimate returns the population living inside the AOI.
func (c *Client) Estimate(ctx context.Context, aoi domain.AOI) (*domain.PopulationStats, error) {
	blob, err := aoi.FeatureCollectionJSON()
	if err != nil {
		return nil, fmt.Errorf("encode aoi: %w", err)
	}

	params := url.Values{}
	params.Set("dataset", c.cfg.Dataset)
	params.Set("year", fmt.Sprintf("%d", c.cfg.Year))
	params.Set("geojson", string(blob))
	params.Set("runasync", "false")
	if c.cfg.APIKey != "" {
		params.Set("key", c.cfg.APIKey)
	}

	resp, err := c.get(ctx, c.cfg.BaseURL+"/services/stats?"+params.Encode(), syncTimeout)
	if err != nil {
		return nil, err
	}

	switch resp.Status {
	case "finished":
		return c.stats(aoi, resp.Data.TotalPopulation, ""), nil
	case "created":
		if resp.TaskID == "" {
			return nil, fmt.Errorf("stats service returned created without task id")
		}
		return c.poll(ctx, aoi, resp.TaskID)
	default:
		return nil, fmt.Errorf("stats service returned status %q", resp.Status)
	}
}

// poll checks the async task until it finishes, with 2^attempt backoff.
func (c *Client) poll(ctx context.Context, aoi domain.AOI, taskID string) (*domain.PopulationStats, error) {
	for attempt := 0; attempt < maxPollTries; attempt++ {
		if err := c.sleep(ctx, time.Duration(math.Pow(2, float64(attempt)))*time.Second); err != nil {
			return nil, err
		}

		resp, err := c.get(ctx, c.cfg.BaseURL+"/tasks/"+url.PathEscape(taskID), pollTimeout)
		if err != nil {
			c.logger.Warn("population task poll failed", "task_id", taskID, "attempt", attempt, "error", err)
			continue
		}
		if resp.Error != nil {
			return nil, fmt.Errorf("population task %s failed: %v", taskID, resp.Error)
		}
		if resp.Status == "finished" {
			return c.stats(aoi, resp.Data.TotalPopulation, taskID), nil
		}
	}
	return nil, fmt.Errorf("population task %s did not finish after %d polls", taskID, maxPollTries)
}

func (c *Client) get(ctx context.Context, rawURL string, timeout time.Duration) (*statsResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	httpResp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("population request: %w", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read population response: %w", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("population service status %d", httpResp.StatusCode)
	}

	var resp statsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode population response: %w", err)
	}
	return &resp, nil
}

func (c *Client) stats(aoi domain.AOI, total float64, taskID string) *domain.PopulationStats {
	areaKm2 := aoi.AreaKm2()
	stats := &domain.PopulationStats{
		PopulationEstimate: int64(math.Round(total)),
		AreaKm2:            areaKm2,
		Source:             "WorldPop",
		Method:             "gridded population raster aggregation",
		Year:               c.cfg.Year,
		TaskID:             taskID,
	}
	if areaKm2 > 0 {
		stats.DensityPerKm2 = total / areaKm2
	}
	return stats
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
