package elog

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestNewWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	l := New(slog.LevelInfo, &buf)
	l.Info("hello", "key", "value")

	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("log output was not valid JSON: %v (output: %s)", err, buf.String())
	}
	if decoded["msg"] != "hello" {
		t.Fatalf("msg = %v, want hello", decoded["msg"])
	}
	if decoded["key"] != "value" {
		t.Fatalf("key = %v, want value", decoded["key"])
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(slog.LevelWarn, &buf)
	l.Debug("should not appear")
	l.Info("also should not appear")
	if buf.Len() != 0 {
		t.Fatalf("debug/info logs leaked through a Warn-level logger: %s", buf.String())
	}
	l.Warn("visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Fatalf("warn log did not appear: %s", buf.String())
	}
}

func TestModuleAddsAttribute(t *testing.T) {
	var buf bytes.Buffer
	l := New(slog.LevelInfo, &buf).Module("rpcserver")
	l.Info("started")

	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if decoded["module"] != "rpcserver" {
		t.Fatalf("module = %v, want rpcserver", decoded["module"])
	}
}

func TestWithAddsContext(t *testing.T) {
	var buf bytes.Buffer
	l := New(slog.LevelInfo, &buf).With("request_id", "abc123")
	l.Info("handled")

	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if decoded["request_id"] != "abc123" {
		t.Fatalf("request_id = %v, want abc123", decoded["request_id"])
	}
}

func TestSetDefaultAndDefault(t *testing.T) {
	var buf bytes.Buffer
	l := New(slog.LevelInfo, &buf)
	SetDefault(l)
	if Default() != l {
		t.Fatalf("Default() did not return the logger set via SetDefault")
	}
	SetDefault(nil)
	if Default() != l {
		t.Fatalf("SetDefault(nil) should be a no-op")
	}
}

func TestVerbosityToLevel(t *testing.T) {
	cases := map[int]slog.Level{
		0: slog.LevelError,
		1: slog.LevelError,
		2: slog.LevelWarn,
		3: slog.LevelInfo,
		4: slog.LevelDebug,
		5: slog.LevelDebug,
	}
	for v, want := range cases {
		if got := VerbosityToLevel(v); got != want {
			t.Fatalf("VerbosityToLevel(%d) = %v, want %v", v, got, want)
		}
	}
}
