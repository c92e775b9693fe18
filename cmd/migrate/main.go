package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dvloznov/teller-ledger/internal/logger"
)

var (
	databaseURL   = flag.String("database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection URL (or set DATABASE_URL env)")
	appliedBy     = flag.String("applied-by", "migrate-cli", "Name of the tool applying migrations")
	migrationsDir = flag.String("migrations", "migrations/postgres", "Path to migrations directory")
	dryRun        = flag.Bool("dry-run", false, "List pending migrations without applying them")
)

func main() {
	flag.Parse()

	log := logger.New()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if *databaseURL == "" {
		log.Fatal().Msg("Error: -database-url flag or DATABASE_URL is required")
	}

	dir, err := resolveDir(*migrationsDir)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to locate migrations")
	}
	migrations, skipped, err := readMigrations(dir)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read migrations")
	}
	for _, name := range skipped {
		log.Warn().Str("file", name).Msg("Skipping file with invalid format")
	}
	log.Info().Int("count", len(migrations)).Str("dir", dir).Msg("Found migration files")

	conn, err := pgx.Connect(ctx, *databaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Unable to connect to database")
	}
	defer conn.Close(context.Background())

	log.Info().Str("host", conn.Config().Host).Str("database", conn.Config().Database).Msg("Connected to PostgreSQL")

	if err := ensureSchemaMigrationsTable(ctx, conn); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure schema_migrations table")
	}

	applied, err := getAppliedMigrations(ctx, conn)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to get applied migrations")
	}
	log.Info().Int("count", len(applied)).Msg("Found already applied migrations")

	todo, err := pending(migrations, applied)
	if err != nil {
		log.Fatal().Err(err).Msg("Migration history does not match files")
	}

	if len(todo) == 0 {
		log.Info().Msg("No new migrations to apply. Database is up to date.")
		return
	}

	for _, m := range todo {
		if *dryRun {
			log.Info().Str("migration", m.Filename).Msg("[PENDING]")
			continue
		}
		log.Info().Str("migration", m.Filename).Msg("[RUN]")
		if err := applyMigration(ctx, conn, m, *appliedBy); err != nil {
			log.Fatal().Err(err).Str("migration", m.Filename).Msg("Failed to apply migration")
		}
		log.Info().Str("migration", m.Filename).Msg("[OK]")
	}

	if !*dryRun {
		log.Info().Int("count", len(todo)).Msg("Successfully applied migrations")
	}
}

// ensureSchemaMigrationsTable creates the bookkeeping table before the first migration runs.
func ensureSchemaMigrationsTable(ctx context.Context, conn *pgx.Conn) error {
	_, err := conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER     PRIMARY KEY,
			name       TEXT        NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			checksum   TEXT        NOT NULL,
			applied_by TEXT
		)`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations: %w", err)
	}
	return nil
}

// getAppliedMigrations retrieves the list of already applied migrations
func getAppliedMigrations(ctx context.Context, conn *pgx.Conn) ([]AppliedMigration, error) {
	rows, err := conn.Query(ctx, `
		SELECT version, name, applied_at, checksum, COALESCE(applied_by, '')
		FROM schema_migrations
		ORDER BY version ASC`)
	if err != nil {
		return nil, fmt.Errorf("reading applied migrations: %w", err)
	}
	applied, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (AppliedMigration, error) {
		var am AppliedMigration
		err := row.Scan(&am.Version, &am.Name, &am.AppliedAt, &am.Checksum, &am.AppliedBy)
		return am, err
	})
	if err != nil {
		return nil, fmt.Errorf("iterating results: %w", err)
	}
	return applied, nil
}

// applyMigration runs the migration and records it in one transaction.
func applyMigration(ctx context.Context, conn *pgx.Conn, m Migration, by string) error {
	return pgx.BeginFunc(ctx, conn, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, m.SQL); err != nil {
			return fmt.Errorf("executing %s: %w", m.Filename, err)
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO schema_migrations (version, name, applied_at, checksum, applied_by)
			VALUES ($1, $2, now(), $3, $4)`,
			m.Version, m.Name, m.Checksum, by)
		if err != nil {
			return fmt.Errorf("recording %s: %w", m.Filename, err)
		}
		return nil
	})
}
