package factory

import (
	"context"
	"fmt"

	"github.com/lychee-technology/facets"
	"github.com/lychee-technology/facets/internal"
	"github.com/lychee-technology/facets/internal/export"
)

// NewExporter opens DuckDB and, when config.Export.S3Bucket is set, an S3
// uploader, and returns an exporter over the given schema and value sources.
// The returned close function releases DuckDB.
func NewExporter(ctx context.Context, config *facets.Config, snapshots export.SnapshotReader, values internal.AttributeRepository) (*export.Exporter, func() error, error) {
	cfg := config.Export
	if err := export.ValidateS3Config(cfg); err != nil {
		return nil, nil, err
	}

	duck, err := export.NewDuckDBClient(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	var uploader export.ObjectUploader
	if cfg.S3Bucket != "" {
		client, err := export.NewS3Client(ctx, cfg)
		if err != nil {
			duck.Close()
			return nil, nil, err
		}
		if err := export.S3HealthCheck(ctx, client, cfg.S3Bucket, 0); err != nil {
			duck.Close()
			return nil, nil, fmt.Errorf("export bucket unavailable: %w", err)
		}
		uploader = export.NewUploader(client)
	}
	return export.NewExporter(snapshots, values, duck, uploader, cfg), duck.Close, nil
}
