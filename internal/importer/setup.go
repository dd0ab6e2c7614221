package importer

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/nucleus/tcga-import/internal/artifact"
	"github.com/nucleus/tcga-import/internal/config"
	"github.com/nucleus/tcga-import/internal/platform"
	"github.com/nucleus/tcga-import/pkg/table"
)

// OptionsFrom returns the build options configured in cfg.
func OptionsFrom(cfg *config.Config) Options {
	return Options{
		WorkDir:     cfg.WorkDir,
		Mirror:      cfg.Mirror,
		UUIDTable:   cfg.UUIDTable,
		Sanitize:    cfg.Sanitize,
		KeepWorkDir: cfg.KeepWorkDir,
	}
}

// Registry returns the built-in registry with the configured overlay applied.
func Registry(cfg *config.Config) (*platform.Registry, error) {
	r := platform.Default()
	if cfg.PlatformsFile == "" {
		return r, nil
	}
	return r.WithOverlay(cfg.PlatformsFile)
}

// Sorter returns the configured channel sorter.
func Sorter(cfg *config.Config, logger logrus.FieldLogger) table.Sorter {
	if cfg.Sorter == config.SorterExec {
		return table.ExecSorter{}
	}
	return table.NewMergeSorter(cfg.SortMemory, logger)
}

// Sink returns the configured sink. The close function releases the catalog
// connection, if any.
func Sink(ctx context.Context, cfg *config.Config, logger logrus.FieldLogger) (artifact.Sink, func() error, error) {
	local := artifact.NewLocalSink(cfg.OutDir, logger)
	var sink artifact.Sink = local
	if cfg.Sink == config.SinkMinIO {
		store, err := artifact.NewS3Client(artifact.S3Config{
			Endpoint:  cfg.MinIO.Endpoint,
			AccessKey: cfg.MinIO.AccessKey,
			SecretKey: cfg.MinIO.SecretKey,
			Region:    cfg.MinIO.Region,
			UseSSL:    cfg.MinIO.UseSSL,
		})
		if err != nil {
			return nil, nil, err
		}
		objects := artifact.NewObjectSink(local, store, artifact.ObjectSinkConfig{
			Bucket:      cfg.MinIO.Bucket,
			Prefix:      cfg.MinIO.Prefix,
			Parquet:     cfg.Parquet,
			UploadRate:  cfg.UploadRate,
			UploadBurst: cfg.UploadBurst,
		}, logger)
		if err := objects.Prepare(ctx); err != nil {
			return nil, nil, fmt.Errorf("prepare bucket %s: %w", cfg.MinIO.Bucket, err)
		}
		sink = objects
	}
	if cfg.CatalogURL == "" {
		return sink, func() error { return nil }, nil
	}
	catalog, err := artifact.OpenCatalog(ctx, cfg.CatalogDriver, cfg.CatalogURL)
	if err != nil {
		return nil, nil, err
	}
	if err := catalog.Migrate(); err != nil {
		catalog.Close()
		return nil, nil, err
	}
	return artifact.Chain{Sink: sink, Catalog: catalog, Logger: logger}, catalog.Close, nil
}

// Setup builds an Importer from cfg and opts.
func Setup(ctx context.Context, cfg *config.Config, opts Options, logger logrus.FieldLogger) (*Importer, func() error, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	registry, err := Registry(cfg)
	if err != nil {
		return nil, nil, err
	}
	sink, closeSink, err := Sink(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return New(registry, Sorter(cfg, logger), sink, opts, logger), closeSink, nil
}
