package main

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"time"
)

// Migration represents a single migration file
type Migration struct {
	Version  int
	Name     string
	Filename string
	SQL      string
	Checksum string
}

// AppliedMigration represents a migration that has already been applied
type AppliedMigration struct {
	Version   int
	Name      string
	AppliedAt time.Time
	Checksum  string
	AppliedBy string
}

// Pattern to match migration files: 0001_name.sql
var migrationPattern = regexp.MustCompile(`^(\d{4})_(.+)\.sql$`)

// parseMigrationName extracts the version and name from a migration filename.
func parseMigrationName(filename string) (version int, name string, ok bool) {
	matches := migrationPattern.FindStringSubmatch(filename)
	if matches == nil {
		return 0, "", false
	}
	version, err := strconv.Atoi(matches[1])
	if err != nil {
		return 0, "", false
	}
	return version, matches[2], true
}

func checksum(content []byte) string {
	return fmt.Sprintf("%x", sha256.Sum256(content))
}

// resolveDir finds the migrations directory from the repository root or from cmd/migrate.
func resolveDir(dir string) (string, error) {
	if _, err := os.Stat(dir); err == nil {
		return dir, nil
	}
	parent := filepath.Join("..", "..", dir)
	if _, err := os.Stat(parent); err == nil {
		return parent, nil
	}
	return "", fmt.Errorf("migrations directory not found: %s", dir)
}

// readMigrations reads all migration files in dir, sorted by version.
// Files that do not match the naming pattern are returned in skipped.
func readMigrations(dir string) (migrations []Migration, skipped []string, err error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("reading migrations directory: %w", err)
	}

	seen := make(map[int]string)
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		version, name, ok := parseMigrationName(file.Name())
		if !ok {
			skipped = append(skipped, file.Name())
			continue
		}
		if other, dup := seen[version]; dup {
			return nil, nil, fmt.Errorf("migrations %s and %s share version %04d", other, file.Name(), version)
		}
		seen[version] = file.Name()

		content, err := os.ReadFile(filepath.Join(dir, file.Name()))
		if err != nil {
			return nil, nil, fmt.Errorf("reading file %s: %w", file.Name(), err)
		}
		migrations = append(migrations, Migration{
			Version:  version,
			Name:     name,
			Filename: file.Name(),
			SQL:      string(content),
			Checksum: checksum(content),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, skipped, nil
}

// pending returns the migrations not yet applied. An applied migration whose file
// changed since, or disappeared, is an error: history is never rewritten.
func pending(migrations []Migration, applied []AppliedMigration) ([]Migration, error) {
	byVersion := make(map[int]Migration, len(migrations))
	for _, m := range migrations {
		byVersion[m.Version] = m
	}

	done := make(map[int]bool, len(applied))
	for _, am := range applied {
		m, ok := byVersion[am.Version]
		if !ok {
			return nil, fmt.Errorf("applied migration %04d_%s has no file", am.Version, am.Name)
		}
		if am.Checksum != "" && am.Checksum != m.Checksum {
			return nil, fmt.Errorf("migration %s changed after it was applied (checksum %.12s, recorded %.12s)", m.Filename, m.Checksum, am.Checksum)
		}
		done[am.Version] = true
	}

	var out []Migration
	for _, m := range migrations {
		if !done[m.Version] {
			out = append(out, m)
		}
	}
	return out, nil
}
