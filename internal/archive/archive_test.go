package archive

import (
	"context"
	"errors"
	"os"
	"testing"
)

func TestLocalStore_PutGet(t *testing.T) {
	dir := t.TempDir()
	s, err := NewLocalStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if err := s.Put(ctx, "snapshot.json", []byte(`{"v":1}`)); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := s.Put(ctx, "snapshot.json", []byte(`{"v":2}`)); err != nil {
		t.Fatalf("second Put() error = %v", err)
	}
	got, err := s.Get(ctx, "snapshot.json")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(got) != `{"v":2}` {
		t.Errorf("Get() = %s, want the replacement", got)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("directory holds %d entries, want only the snapshot (no temp files)", len(entries))
	}
}

func TestLocalStore_Errors(t *testing.T) {
	s, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if _, err := s.Get(ctx, "missing.json"); !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrObjectNotFound", err)
	}
	for _, name := range []string{"", "../escape.json", "nested/snapshot.json"} {
		if err := s.Put(ctx, name, []byte("x")); err == nil {
			t.Errorf("Put(%q) succeeded, want an invalid name error", name)
		}
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if err := s.Put(cancelled, "late.json", []byte("x")); !errors.Is(err, context.Canceled) {
		t.Errorf("Put with cancelled ctx error = %v, want context.Canceled", err)
	}
}

func TestParseGCSURI(t *testing.T) {
	tests := []struct {
		uri        string
		wantBucket string
		wantPath   string
		wantErr    bool
	}{
		{uri: "gs://ledger-archive", wantBucket: "ledger-archive"},
		{uri: "gs://ledger-archive/daily/", wantBucket: "ledger-archive", wantPath: "daily"},
		{uri: "gs://ledger-archive/daily/snapshot.json", wantBucket: "ledger-archive", wantPath: "daily/snapshot.json"},
		{uri: "s3://ledger-archive", wantErr: true},
		{uri: "gs:///daily", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			bucket, p, err := ParseGCSURI(tt.uri)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseGCSURI() error = %v, wantErr %v", err, tt.wantErr)
			}
			if bucket != tt.wantBucket || p != tt.wantPath {
				t.Errorf("ParseGCSURI() = %q, %q; want %q, %q", bucket, p, tt.wantBucket, tt.wantPath)
			}
		})
	}

	if got := BaseName("gs://ledger-archive/daily/snapshot.json"); got != "snapshot.json" {
		t.Errorf("BaseName() = %q", got)
	}
}
