package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/conference-site/schedule-api/internal/platform/logger/sl"
)

func TestNew_ProdIsJSONAtInfo(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewWithWriter(envProd, &buf)
	log.Debug("hidden")
	log.Info("visible", sl.Err(errors.New("boom")))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1: %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("Unmarshal() err=%v", err)
	}
	if rec["msg"] != "visible" || rec["error"] != "boom" {
		t.Fatalf("record=%v", rec)
	}
}

func TestNew_LocalIsTextAtDebug(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewWithWriter(envLocal, &buf)
	log.Debug("shown")
	if !strings.Contains(buf.String(), "msg=shown") {
		t.Fatalf("output=%q, want text record", buf.String())
	}
}
