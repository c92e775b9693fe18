package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNew(t *testing.T) {
	log := New()
	if log.GetLevel() == zerolog.Disabled {
		t.Error("Expected logger to be enabled")
	}
}

func TestNewWithWriter(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewWithWriter(buf)

	log.Info().Str("account_number", "700000000001").Msg("Deposit recorded")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Expected a JSON line, got %q: %v", buf.String(), err)
	}
	if entry["message"] != "Deposit recorded" || entry["account_number"] != "700000000001" {
		t.Errorf("Unexpected entry: %v", entry)
	}
	if _, ok := entry["time"]; !ok {
		t.Error("Expected a timestamp field")
	}
}

func TestNewFromConfig(t *testing.T) {
	tests := []struct {
		name      string
		level     string
		format    string
		wantLevel zerolog.Level
		wantJSON  bool
		wantErr   bool
	}{
		{name: "defaults", wantLevel: zerolog.InfoLevel},
		{name: "json debug", level: "debug", format: "json", wantLevel: zerolog.DebugLevel, wantJSON: true},
		{name: "upper case", level: "WARN", format: "Console", wantLevel: zerolog.WarnLevel},
		{name: "bad level", level: "loud", wantErr: true},
		{name: "bad format", format: "xml", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			log, err := NewFromConfigWithWriter(buf, tt.level, tt.format)
			if tt.wantErr {
				if err == nil {
					t.Fatal("Expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewFromConfigWithWriter failed: %v", err)
			}
			if log.GetLevel() != tt.wantLevel {
				t.Errorf("level = %s, want %s", log.GetLevel(), tt.wantLevel)
			}

			log.WithLevel(tt.wantLevel).Msg("hello")
			if got := strings.HasPrefix(buf.String(), "{"); got != tt.wantJSON {
				t.Errorf("JSON output = %v, want %v: %q", got, tt.wantJSON, buf.String())
			}
		})
	}
}

func TestNewFromConfig_FiltersBelowLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	log, err := NewFromConfigWithWriter(buf, "error", "json")
	if err != nil {
		t.Fatalf("NewFromConfigWithWriter failed: %v", err)
	}
	log.Info().Msg("dropped")
	if buf.Len() != 0 {
		t.Errorf("Expected info to be filtered, got %q", buf.String())
	}
}

func TestWithContext(t *testing.T) {
	ctx := WithContext(context.Background(), New())

	if ctx.Value(LoggerKey) == nil {
		t.Error("Expected logger in context, got nil")
	}
}

func TestFromContext(t *testing.T) {
	buf := &bytes.Buffer{}
	ctx := WithContext(context.Background(), NewWithWriter(buf))

	log := FromContext(ctx)
	log.Info().Msg("test")

	if buf.Len() == 0 {
		t.Error("Expected log output from retrieved logger")
	}
}

func TestFromContext_DefaultLogger(t *testing.T) {
	log := FromContext(context.Background())

	if log.GetLevel() == zerolog.Disabled {
		t.Error("Expected default logger to be enabled")
	}
}

func TestWithFields(t *testing.T) {
	buf := &bytes.Buffer{}
	log := WithFields(NewWithWriter(buf), map[string]interface{}{
		"run_id":  "run-42",
		"applied": 3,
	})
	log.Info().Msg("Interest sweep finished")

	output := buf.String()
	if !strings.Contains(output, `"run_id":"run-42"`) {
		t.Errorf("Expected output to contain run_id field, got: %s", output)
	}
	if !strings.Contains(output, `"applied":3`) {
		t.Errorf("Expected output to contain applied field, got: %s", output)
	}
}
