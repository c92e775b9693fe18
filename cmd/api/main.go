package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/honeycombio/otel-config-go/otelconfig"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/dvloznov/teller-ledger/internal/api"
	"github.com/dvloznov/teller-ledger/internal/banking"
	"github.com/dvloznov/teller-ledger/internal/config"
	"github.com/dvloznov/teller-ledger/internal/infra"
	"github.com/dvloznov/teller-ledger/internal/interest"
	"github.com/dvloznov/teller-ledger/internal/jobs/inmemory"
	"github.com/dvloznov/teller-ledger/internal/logger"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load(ctx)
	if err != nil {
		fallback := logger.New()
		fallback.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Flags override the environment
	var (
		port            = flag.String("port", cfg.Port, "HTTP server port (or set PORT env)")
		disableInterest = flag.Bool("no-interest", !cfg.InterestEnabled, "Do not start the interest scheduler")
	)
	flag.Parse()

	// Initialize logger
	log, err := logger.NewFromConfig(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fallback := logger.New()
		fallback.Fatal().Err(err).Msg("Failed to create logger")
	}
	ctx = logger.WithContext(ctx, log)

	if cfg.OTelEnabled {
		otelShutdown, err := otelconfig.ConfigureOpenTelemetry(otelconfig.WithServiceName("teller-ledger-api"))
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to configure OpenTelemetry")
		}
		defer otelShutdown()
	}

	// Initialize repository
	repo, err := infra.OpenRepository(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open repository")
	}
	defer repo.Close()

	svc := banking.NewService(repo, banking.WithLogger(log))

	// Initialize job infrastructure
	runStore := inmemory.NewStore(cfg.InterestRunRetention)
	jobQueue := inmemory.NewQueue(100, 1, runStore)
	scheduler := interest.NewScheduler(svc, runStore,
		interest.WithPeriod(cfg.InterestPeriod),
		interest.WithLogger(log),
	)

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	log.Info().Msg("Starting job worker")
	if err := jobQueue.Start(workerCtx, scheduler.HandleJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job worker")
	}

	if !*disableInterest {
		if err := scheduler.Start(workerCtx); err != nil {
			log.Fatal().Err(err).Msg("Failed to start interest scheduler")
		}
	}

	router := api.NewRouter(api.Dependencies{
		Customers:      svc,
		Accounts:       svc,
		Interest:       scheduler,
		Publisher:      jobQueue,
		AllowedOrigins: cfg.AllowedOrigins,
		Log:            log,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + *port,
		Handler:      otelhttp.NewHandler(router, "teller-ledger-api"),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("port", *port).Str("storage", cfg.StorageBackend).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// Wait for interrupt signal or a server failure
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-gctx.Done():
	}

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Server stopped with error")
	}

	// Let an in-flight sweep finish before the store goes away
	if err := scheduler.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping interest scheduler")
	}

	// Stop job queue and wait for in-flight runs
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}
	cancelWorker()

	log.Info().Msg("Server exited")
}
