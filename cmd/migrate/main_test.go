package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseMigrationName(t *testing.T) {
	tests := []struct {
		filename string
		valid    bool
		version  int
		name     string
	}{
		{"0001_init_schema_migrations.sql", true, 1, "init_schema_migrations"},
		{"0042_add_index.sql", true, 42, "add_index"},
		{"001_invalid.sql", false, 0, ""},
		{"0001_test", false, 0, ""},
		{"0001.sql", false, 0, ""},
		{"invalid_0001_test.sql", false, 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			version, name, ok := parseMigrationName(tt.filename)
			if ok != tt.valid || version != tt.version || name != tt.name {
				t.Errorf("parseMigrationName(%q) = %d, %q, %v; want %d, %q, %v",
					tt.filename, version, name, ok, tt.version, tt.name, tt.valid)
			}
		})
	}
}

func TestChecksum(t *testing.T) {
	a := checksum([]byte("CREATE TABLE test (id INTEGER);"))
	b := checksum([]byte("CREATE TABLE test (id INTEGER);"))
	c := checksum([]byte("CREATE TABLE different (id INTEGER);"))

	if a != b {
		t.Error("same content produced different checksums")
	}
	if a == c {
		t.Error("different content produced the same checksum")
	}
	if len(a) != 64 {
		t.Errorf("checksum length = %d, want 64 hex characters", len(a))
	}
}

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestReadMigrations(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"0002_second.sql": "SELECT 2;",
		"0001_first.sql":  "SELECT 1;",
		"README.md":       "notes",
	})

	migrations, skipped, err := readMigrations(dir)
	if err != nil {
		t.Fatalf("readMigrations() error = %v", err)
	}
	var names []string
	for _, m := range migrations {
		names = append(names, m.Filename)
	}
	if diff := cmp.Diff([]string{"0001_first.sql", "0002_second.sql"}, names); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"README.md"}, skipped); diff != "" {
		t.Errorf("skipped mismatch (-want +got):\n%s", diff)
	}
	if migrations[0].SQL != "SELECT 1;" || migrations[0].Checksum != checksum([]byte("SELECT 1;")) {
		t.Errorf("first migration = %+v", migrations[0])
	}
}

func TestReadMigrations_DuplicateVersion(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"0001_a.sql": "SELECT 1;",
		"0001_b.sql": "SELECT 1;",
	})
	if _, _, err := readMigrations(dir); err == nil || !strings.Contains(err.Error(), "share version") {
		t.Errorf("readMigrations() error = %v, want duplicate version", err)
	}
}

func TestPending(t *testing.T) {
	files := []Migration{
		{Version: 1, Name: "first", Filename: "0001_first.sql", Checksum: "aaa"},
		{Version: 2, Name: "second", Filename: "0002_second.sql", Checksum: "bbb"},
		{Version: 3, Name: "third", Filename: "0003_third.sql", Checksum: "ccc"},
	}

	tests := []struct {
		name    string
		applied []AppliedMigration
		want    []int
		wantErr string
	}{
		{"fresh database", nil, []int{1, 2, 3}, ""},
		{"partly applied", []AppliedMigration{{Version: 1, Checksum: "aaa"}, {Version: 2, Checksum: "bbb"}}, []int{3}, ""},
		{"up to date", []AppliedMigration{{Version: 1, Checksum: "aaa"}, {Version: 2, Checksum: "bbb"}, {Version: 3, Checksum: "ccc"}}, nil, ""},
		{"edited after apply", []AppliedMigration{{Version: 1, Checksum: "zzz"}}, nil, "changed after it was applied"},
		{"file removed", []AppliedMigration{{Version: 9, Name: "gone", Checksum: "x"}}, nil, "has no file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := pending(files, tt.applied)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("pending() error = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("pending() error = %v", err)
			}
			var versions []int
			for _, m := range got {
				versions = append(versions, m.Version)
			}
			if diff := cmp.Diff(tt.want, versions); diff != "" {
				t.Errorf("pending versions mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRepositoryMigrationsParse(t *testing.T) {
	dir, err := resolveDir("migrations/postgres")
	if err != nil {
		t.Fatalf("resolveDir() error = %v", err)
	}
	migrations, skipped, err := readMigrations(dir)
	if err != nil {
		t.Fatalf("readMigrations() error = %v", err)
	}
	if len(skipped) != 0 {
		t.Errorf("unexpected files in %s: %v", dir, skipped)
	}
	for i, m := range migrations {
		if m.Version != i+1 {
			t.Errorf("migration %s has version %d, want %d", m.Filename, m.Version, i+1)
		}
	}
}
