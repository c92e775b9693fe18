package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/dvloznov/teller-ledger/internal/config"
	"github.com/dvloznov/teller-ledger/internal/export"
	"github.com/dvloznov/teller-ledger/internal/infra"
	"github.com/dvloznov/teller-ledger/internal/logger"
)

func main() {
	var (
		syncLedger = flag.Bool("sync", false, "Append new ledger entries to the BigQuery transactions table")
		snapshots  = flag.Bool("snapshot-accounts", false, "Append current account balances to the BigQuery snapshots table")
		archiveIt  = flag.Bool("archive", false, "Write a full ledger snapshot to ARCHIVE_BUCKET or ARCHIVE_DIR")
		note       = flag.String("note", "", "Note stored in the snapshot metadata")
		batchSize  = flag.Int("batch-size", export.DefaultBatchSize, "Transactions per BigQuery insert")
	)
	flag.Parse()

	if !*syncLedger && !*snapshots && !*archiveIt {
		fmt.Fprintln(os.Stderr, "Usage: export [-sync] [-snapshot-accounts] [-archive [-note TEXT]]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	cfg, err := config.Load(ctx)
	if err != nil {
		fallback := logger.New()
		fallback.Fatal().Err(err).Msg("Failed to load configuration")
	}
	log, err := logger.NewFromConfig(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fallback := logger.New()
		fallback.Fatal().Err(err).Msg("Failed to create logger")
	}
	ctx = logger.WithContext(ctx, log)

	if cfg.StorageBackend == config.BackendMemory {
		log.Warn().Msg("Exporting from a fresh in-memory store; set STORAGE_BACKEND=postgres to export a real ledger")
	}
	repo, err := infra.OpenRepository(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open repository")
	}
	defer repo.Close()

	opts := []export.Option{export.WithLogger(log), export.WithBatchSize(*batchSize)}
	if *syncLedger || *snapshots {
		warehouse, err := infra.OpenWarehouse(ctx, cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to open warehouse")
		}
		defer warehouse.Close()
		opts = append(opts, export.WithWarehouse(warehouse))
	}
	if *archiveIt {
		objects, closer, err := infra.OpenArchive(ctx, cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to open archive")
		}
		defer closer.Close()
		opts = append(opts, export.WithArchive(objects))
	}
	exporter := export.NewExporter(repo, opts...)

	failed := false
	if *syncLedger {
		res, err := exporter.SyncLedger(ctx)
		if err != nil {
			log.Error().Err(err).Int64("last_id", res.LastID).Msg("Ledger sync failed; rerun to resume")
			failed = true
		} else {
			fmt.Printf("Exported %d transaction(s) in %d batch(es), ids %d..%d\n", res.Exported, res.Batches, res.FromID+1, res.LastID)
		}
	}
	if *snapshots {
		n, err := exporter.SnapshotAccounts(ctx)
		if err != nil {
			log.Error().Err(err).Msg("Account snapshot export failed")
			failed = true
		} else {
			fmt.Printf("Exported %d account snapshot(s)\n", n)
		}
	}
	if *archiveIt {
		res, err := exporter.Archive(ctx, *note)
		if err != nil {
			log.Error().Err(err).Msg("Archive failed")
			failed = true
		} else {
			fmt.Printf("Archived %d customer(s), %d account(s), %d transaction(s) to %s\n", res.Customers, res.Accounts, res.Transactions, res.URI)
		}
	}

	if failed {
		os.Exit(1)
	}
}
