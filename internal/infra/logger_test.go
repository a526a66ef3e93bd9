package infra

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestNewLoggerHonorsLevelOverride(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "production", "warn")

	logger.Info().Msg("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered at warn level, got %q", buf.String())
	}

	worker := Component(logger, "worker")
	worker.Warn().Str("job_id", "j1").Msg("kept")
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON line: %v", err)
	}
	if entry["component"] != "worker" || entry["job_id"] != "j1" || entry["app_env"] != "production" {
		t.Fatalf("unexpected fields: %#v", entry)
	}
}
