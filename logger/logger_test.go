package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestSLogLoggerWritesKeyValues(t *testing.T) {
	var buf bytes.Buffer
	l := NewSLogLogger(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	l.Info("permission check", "subject", "alice", "granted", true, "matching", 2, "error", errors.New("boom"))

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if rec["msg"] != "permission check" {
		t.Fatalf("unexpected msg: %v", rec["msg"])
	}
	if rec["subject"] != "alice" || rec["granted"] != true || rec["matching"] != float64(2) {
		t.Fatalf("unexpected attrs: %v", rec)
	}
	if rec["error"] != "boom" {
		t.Fatalf("expected error rendered as string, got %v", rec["error"])
	}
}

func TestSLogLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewSLogLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})))
	l.Debug("hidden", "k", "v")
	if buf.Len() != 0 {
		t.Fatalf("expected debug to be dropped, got %q", buf.String())
	}
	l.Error("shown", "dangling")
	if !strings.Contains(buf.String(), "shown") {
		t.Fatalf("expected error line, got %q", buf.String())
	}
}

func TestNullLoggerSatisfiesInterface(t *testing.T) {
	var l Logger = NewNullLogger()
	l.Debug("x")
	l.Info("x", "k", 1)
	l.Error("x", "k")
}
