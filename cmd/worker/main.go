package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/teller-ledger/internal/banking"
	"github.com/dvloznov/teller-ledger/internal/config"
	"github.com/dvloznov/teller-ledger/internal/export"
	"github.com/dvloznov/teller-ledger/internal/infra"
	"github.com/dvloznov/teller-ledger/internal/interest"
	"github.com/dvloznov/teller-ledger/internal/jobs/inmemory"
	"github.com/dvloznov/teller-ledger/internal/logger"
	memstore "github.com/dvloznov/teller-ledger/internal/repository/inmemory"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(ctx)
	if err != nil {
		fallback := logger.New()
		fallback.Fatal().Err(err).Msg("Failed to load configuration")
	}

	var (
		period    = flag.Duration("period", cfg.InterestPeriod, "Interval between interest sweeps (or set INTEREST_PERIOD env)")
		once      = flag.Bool("once", false, "Run a single sweep and exit")
		stateName = flag.String("state", "ledger-current.json", "Snapshot object that holds the in-memory ledger between runs")
	)
	flag.Parse()

	// Initialize logger
	log, err := logger.NewFromConfig(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fallback := logger.New()
		fallback.Fatal().Err(err).Msg("Failed to create logger")
	}
	ctx = logger.WithContext(ctx, log)

	repo, err := infra.OpenRepository(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open repository")
	}
	defer repo.Close()

	// An in-memory ledger is loaded from and saved back to the archive when one is configured
	var exporter *export.Exporter
	if mem, ok := repo.(*memstore.Store); ok && cfg.ArchiveEnabled() {
		objects, closer, err := infra.OpenArchive(ctx, cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to open archive")
		}
		defer closer.Close()

		found, err := export.RestoreFrom(ctx, objects, *stateName, mem)
		if err != nil {
			log.Fatal().Err(err).Str("object", objects.URI(*stateName)).Msg("Failed to restore ledger")
		}
		log.Info().Bool("found", found).Str("object", objects.URI(*stateName)).Msg("Ledger state loaded")
		exporter = export.NewExporter(repo, export.WithArchive(objects), export.WithLogger(log))
	}

	svc := banking.NewService(repo, banking.WithLogger(log))
	runStore := inmemory.NewStore(cfg.InterestRunRetention)
	scheduler := interest.NewScheduler(svc, runStore,
		interest.WithPeriod(*period),
		interest.WithLogger(log),
	)

	saveState := func() {
		if exporter == nil {
			return
		}
		if _, err := exporter.ArchiveAs(context.Background(), *stateName, "interest worker"); err != nil {
			log.Error().Err(err).Msg("Failed to save ledger state")
		}
	}

	if *once {
		run, err := scheduler.RunOnce(ctx, time.Now())
		saveState()
		if err != nil {
			log.Error().Err(err).Str("run_id", run.JobID).Str("status", string(run.Status)).Msg("Interest sweep had failures")
			os.Exit(1)
		}
		return
	}

	log.Info().Msg("Starting worker service")
	if err := scheduler.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start interest scheduler")
	}

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down worker...")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := scheduler.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping interest scheduler")
	}
	cancel()
	saveState()

	log.Info().Msg("Worker exited")
}
