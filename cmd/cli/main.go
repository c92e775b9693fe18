package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dvloznov/teller-ledger/internal/banking"
	"github.com/dvloznov/teller-ledger/internal/config"
	"github.com/dvloznov/teller-ledger/internal/domain"
	"github.com/dvloznov/teller-ledger/internal/export"
	"github.com/dvloznov/teller-ledger/internal/infra"
	"github.com/dvloznov/teller-ledger/internal/interest"
	jobstore "github.com/dvloznov/teller-ledger/internal/jobs/inmemory"
	"github.com/dvloznov/teller-ledger/internal/logger"
	"github.com/dvloznov/teller-ledger/internal/repository/inmemory"
)

// stateObject holds the in-memory ledger between invocations when an archive is configured.
const stateObject = "ledger-current.json"

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stdout)
		os.Exit(1)
	}
	switch os.Args[1] {
	case "help", "-h", "--help":
		printUsage(os.Stdout)
		return
	}
	cmd, ok := lookup(os.Args[1])
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage(os.Stderr)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	cfg, err := config.Load(ctx)
	if err != nil {
		fallback := logger.New()
		fallback.Fatal().Err(err).Msg("Failed to load configuration")
	}
	// Logs go to stderr so command output stays clean
	log, err := logger.NewFromConfigWithWriter(os.Stderr, cfg.LogLevel, cfg.LogFormat)
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

	var exporter *export.Exporter
	if mem, ok := repo.(*inmemory.Store); ok {
		if !cfg.ArchiveEnabled() {
			log.Warn().Msg("No ARCHIVE_DIR or ARCHIVE_BUCKET set; changes will not be kept")
		} else {
			objects, closer, err := infra.OpenArchive(ctx, cfg)
			if err != nil {
				log.Fatal().Err(err).Msg("Failed to open archive")
			}
			defer closer.Close()
			if _, err := export.RestoreFrom(ctx, objects, stateObject, mem); err != nil {
				log.Fatal().Err(err).Str("object", objects.URI(stateObject)).Msg("Failed to restore ledger")
			}
			exporter = export.NewExporter(repo, export.WithArchive(objects), export.WithLogger(log))
		}
	}

	svc := banking.NewService(repo, banking.WithLogger(log))
	t := &teller{
		svc:    svc,
		sweep:  interest.NewScheduler(svc, jobstore.NewStore(1), interest.WithLogger(log)),
		out:    os.Stdout,
		errOut: os.Stderr,
		now:    time.Now,
	}

	runErr := cmd.run(t, ctx, os.Args[2:])
	if cmd.mutates && exporter != nil {
		if _, err := exporter.ArchiveAs(ctx, stateObject, "cli "+cmd.name); err != nil {
			log.Error().Err(err).Msg("Failed to save ledger state")
			os.Exit(1)
		}
	}
	if runErr != nil {
		os.Exit(exitCode(runErr))
	}
}

// exitCode is 2 for usage errors, 3 for rejected operations and 1 otherwise.
func exitCode(err error) int {
	var derr *domain.Error
	switch {
	case errors.Is(err, errUsage):
		return 2
	case errors.As(err, &derr) && !errors.Is(err, domain.ErrStorage):
		fmt.Fprintf(os.Stderr, "Rejected: %v\n", err)
		return 3
	default:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
}
