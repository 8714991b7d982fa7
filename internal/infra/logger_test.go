package infra

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestNewLoggerWritesJSONWhenNotConsole(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger("development", &buf, false)
	logger.Debug().Str("job_id", "j1").Msg("hello")

	var event map[string]any
	if err := json.Unmarshal(buf.Bytes(), &event); err != nil {
		t.Fatalf("expected JSON log line, got %q: %v", buf.String(), err)
	}
	if event["job_id"] != "j1" || event["message"] != "hello" {
		t.Fatalf("unexpected event: %#v", event)
	}
}

func TestNewLoggerProductionSkipsDebug(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger("production", &buf, true)
	logger.Debug().Msg("hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug event should be filtered in production: %q", buf.String())
	}
	logger.Info().Msg("shown")
	if buf.Len() == 0 {
		t.Fatalf("info event missing")
	}
}
