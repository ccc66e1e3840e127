package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func lines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, l := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if l == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(l), &m); err != nil {
			t.Fatalf("bad log line %q: %v", l, err)
		}
		out = append(out, m)
	}
	return out
}

func TestLevelIsPerLogger(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "warn", Output: &buf})
	l.Info().Msg("hidden")
	l.Warn().Msg("shown")

	got := lines(t, &buf)
	if len(got) != 1 || got[0]["message"] != "shown" || got[0]["service"] != "labelengine" {
		t.Fatalf("lines = %v", got)
	}

	var other bytes.Buffer
	New(Config{Level: "debug", Output: &other}).Debug().Msg("debug")
	if len(lines(t, &other)) != 1 {
		t.Fatal("a second logger must not inherit the first one's level")
	}
}

func TestLogRequestEscalatesServerErrors(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Output: &buf})
	l.LogRequest("GET", "/api/v1/labels/{labelID}", 200, time.Millisecond, "req_1")
	l.LogRequest("POST", "/api/v1/labels", 500, time.Millisecond, "req_2")

	got := lines(t, &buf)
	if len(got) != 2 || got[0]["level"] != "info" || got[1]["level"] != "error" || got[1]["request_id"] != "req_2" {
		t.Fatalf("lines = %v", got)
	}
}

func TestComponentAndTx(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "debug", Output: &buf}).Component("storage")
	l.LogTx("labels.create", time.Millisecond, nil)
	l.LogTx("labels.create", time.Millisecond, errors.New("boom"))

	got := lines(t, &buf)
	if len(got) != 2 {
		t.Fatalf("lines = %v", got)
	}
	if got[0]["component"] != "storage" || got[0]["level"] != "debug" {
		t.Fatalf("committed line = %v", got[0])
	}
	if got[1]["level"] != "warn" || got[1]["error"] != "boom" {
		t.Fatalf("failed line = %v", got[1])
	}
}
