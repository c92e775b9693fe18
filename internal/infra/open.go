// Package infra opens the storage, warehouse and archive backends named by the configuration.
package infra

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"

	"github.com/dvloznov/teller-ledger/internal/archive"
	"github.com/dvloznov/teller-ledger/internal/config"
	bq "github.com/dvloznov/teller-ledger/internal/infra/bigquery"
	"github.com/dvloznov/teller-ledger/internal/infra/postgres"
	"github.com/dvloznov/teller-ledger/internal/repository"
	"github.com/dvloznov/teller-ledger/internal/repository/inmemory"
)

// OpenRepository returns the repository selected by STORAGE_BACKEND.
func OpenRepository(ctx context.Context, cfg *config.Config, log zerolog.Logger) (repository.Repository, error) {
	switch cfg.StorageBackend {
	case config.BackendPostgres:
		repo, err := postgres.Connect(ctx, cfg.DatabaseURL, postgres.WithLogger(log))
		if err != nil {
			return nil, fmt.Errorf("OpenRepository: %w", err)
		}
		return repo, nil
	case config.BackendMemory, "":
		log.Warn().Msg("Using in-memory storage; the ledger is lost on exit")
		return inmemory.NewStore(), nil
	default:
		return nil, fmt.Errorf("OpenRepository: unknown backend %q", cfg.StorageBackend)
	}
}

// OpenArchive returns the snapshot store selected by ARCHIVE_BUCKET or ARCHIVE_DIR,
// and a closer for it. ARCHIVE_BUCKET is a bucket name or a gs://bucket/prefix URI.
func OpenArchive(ctx context.Context, cfg *config.Config) (archive.ObjectStore, io.Closer, error) {
	switch {
	case cfg.ArchiveBucket != "":
		var (
			store *archive.GCSStore
			err   error
		)
		if strings.HasPrefix(cfg.ArchiveBucket, "gs://") {
			store, err = archive.NewGCSStoreFromURI(ctx, cfg.ArchiveBucket)
		} else {
			store, err = archive.NewGCSStore(ctx, cfg.ArchiveBucket, "")
		}
		if err != nil {
			return nil, nil, fmt.Errorf("OpenArchive: %w", err)
		}
		return store, store, nil
	case cfg.ArchiveDir != "":
		store, err := archive.NewLocalStore(cfg.ArchiveDir)
		if err != nil {
			return nil, nil, fmt.Errorf("OpenArchive: %w", err)
		}
		return store, store, nil
	default:
		return nil, nil, fmt.Errorf("OpenArchive: neither ARCHIVE_BUCKET nor ARCHIVE_DIR is set")
	}
}

// OpenWarehouse connects to the BigQuery dataset and creates missing tables.
func OpenWarehouse(ctx context.Context, cfg *config.Config) (*bq.Warehouse, error) {
	if !cfg.ExportEnabled() {
		return nil, fmt.Errorf("OpenWarehouse: BIGQUERY_PROJECT is not set")
	}
	w, err := bq.NewWarehouse(ctx, cfg.BigQueryProject, cfg.BigQueryDataset, cfg.BigQueryTable)
	if err != nil {
		return nil, fmt.Errorf("OpenWarehouse: %w", err)
	}
	if err := w.EnsureTables(ctx); err != nil {
		w.Close()
		return nil, fmt.Errorf("OpenWarehouse: %w", err)
	}
	return w, nil
}
