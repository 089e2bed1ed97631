package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNew_ProductionWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	l := With(newWithWriter(&buf, "production", "info"), "queue")
	l.Info().Str("jobId", "abc").Msg("render started")

	var line map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("expected JSON line, got %q: %v", buf.String(), err)
	}
	if line["component"] != "queue" || line["jobId"] != "abc" || line["message"] != "render started" {
		t.Errorf("unexpected log line: %v", line)
	}
}

func TestNew_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	l := newWithWriter(&buf, "production", "warn")
	l.Info().Msg("hidden")
	l.Warn().Msg("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Errorf("unexpected output: %q", out)
	}
}

func TestAsynqLogger_JoinsArgs(t *testing.T) {
	var buf bytes.Buffer
	a := NewAsynqLogger(newWithWriter(&buf, "production", "debug"))
	a.Info("worker ", 3, " started")

	if !strings.Contains(buf.String(), `"message":"worker 3 started"`) {
		t.Errorf("unexpected output: %q", buf.String())
	}
}
