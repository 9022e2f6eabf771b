package objectstore

import (
	"errors"
	"fmt"
	"strings"

	"github.com/footprint-labs/footprint-go/internal/platform/env"
)

type Config struct {
	Endpoint       string
	AccessKey      string
	SecretKey      string
	Region         string
	UseSSL         bool
	BucketArchives string
	BucketTiles    string
}

func ConfigFromEnv() (Config, error) {
	useSSL, err := env.Bool("FOOTPRINT_MINIO_USE_SSL", false)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		Endpoint:       env.String("FOOTPRINT_MINIO_ENDPOINT", "localhost:9000"),
		AccessKey:      env.String("FOOTPRINT_MINIO_ACCESS_KEY", "footprint"),
		SecretKey:      env.String("FOOTPRINT_MINIO_SECRET_KEY", "footprintminio"),
		Region:         env.String("FOOTPRINT_MINIO_REGION", "us-east-1"),
		UseSSL:         useSSL,
		BucketArchives: env.String("FOOTPRINT_MINIO_BUCKET_ARCHIVES", "export-archives"),
		BucketTiles:    env.String("FOOTPRINT_MINIO_BUCKET_TILES", "export-tiles"),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return errors.New("endpoint is required")
	}
	if strings.TrimSpace(c.AccessKey) == "" {
		return errors.New("access key is required")
	}
	if strings.TrimSpace(c.SecretKey) == "" {
		return errors.New("secret key is required")
	}
	if strings.TrimSpace(c.Region) == "" {
		return errors.New("region is required")
	}
	if strings.TrimSpace(c.BucketArchives) == "" {
		return errors.New("archives bucket is required")
	}
	if strings.TrimSpace(c.BucketTiles) == "" {
		return errors.New("tiles bucket is required")
	}
	if strings.Contains(c.Endpoint, "://") {
		return fmt.Errorf("endpoint must not include scheme: %q", c.Endpoint)
	}
	return nil
}
