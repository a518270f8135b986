package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestNewLogger(t *testing.T) {
	logger := NewLogger(LevelInfo)
	if logger.level != LevelInfo {
		t.Errorf("expected level %s, got %s", LevelInfo, logger.level)
	}
	if logger.format != FormatJSON {
		t.Errorf("expected json format, got %s", logger.format)
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LevelWarn)
	logger.SetOutput(&buf)

	logger.Debug("d")
	logger.Info("i")
	if buf.Len() > 0 {
		t.Fatalf("expected no output below warn, got: %s", buf.String())
	}

	logger.Warn("w")
	logger.Error("e")
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %s", len(lines), buf.String())
	}
}

func TestLogger_JSONEntry(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LevelDebug)
	logger.SetOutput(&buf)

	logger.Debug("pulled", map[string]any{"commit_count": 3})

	var entry LogEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if entry.Level != LevelDebug || entry.Message != "pulled" {
		t.Errorf("unexpected entry: %+v", entry)
	}
	if entry.Fields["commit_count"] != float64(3) {
		t.Errorf("expected commit_count field, got %v", entry.Fields)
	}
}

func TestLogger_WithFieldsInherits(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LevelInfo)
	logger.SetOutput(&buf)

	child := logger.WithFields(map[string]any{"repo": "/tmp/r"})
	child.Info("hello", map[string]any{"object_id": "x"})

	out := buf.String()
	if !strings.Contains(out, `"repo":"/tmp/r"`) || !strings.Contains(out, `"object_id":"x"`) {
		t.Errorf("expected both fields, got: %s", out)
	}
	if len(logger.fields) != 0 {
		t.Errorf("parent fields must not change")
	}
}

func TestLogger_ErrorErr(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LevelInfo)
	logger.SetOutput(&buf)

	logger.ErrorErr("push failed", errors.New("boom"), map[string]any{"commit_id": "c1"})
	out := buf.String()
	if !strings.Contains(out, `"error":"boom"`) || !strings.Contains(out, `"commit_id":"c1"`) {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestLogger_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LevelInfo)
	logger.SetOutput(&buf)
	logger.SetFormat(FormatText)

	logger.Info("pushed", map[string]any{"b": "two words", "a": 1})
	out := buf.String()
	if !strings.Contains(out, "INFO  pushed a=1 b=\"two words\"") {
		t.Errorf("unexpected text line: %s", out)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{"": LevelInfo, "DEBUG": LevelDebug, " warn ": LevelWarn, "error": LevelError}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Errorf("ParseLevel(%q) = %s, %v", in, got, err)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestParseFormat(t *testing.T) {
	if f, err := ParseFormat("TEXT"); err != nil || f != FormatText {
		t.Errorf("ParseFormat(TEXT) = %s, %v", f, err)
	}
	if f, err := ParseFormat(""); err != nil || f != FormatJSON {
		t.Errorf("ParseFormat(\"\") = %s, %v", f, err)
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestGlobalLogger(t *testing.T) {
	prev := Global()
	defer SetGlobal(prev)

	var buf bytes.Buffer
	l := NewLogger(LevelDebug)
	l.SetOutput(&buf)
	SetGlobal(l)

	Debug("a")
	Info("b")
	Warn("c")
	Error("d")
	ErrorErr("e", errors.New("x"))
	WithFields(map[string]any{"k": "v"}).Info("f")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 6 {
		t.Fatalf("expected 6 lines, got %d", len(lines))
	}
}
