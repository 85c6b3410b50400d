package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestConsoleHandlerFormatsHeaderAndAttrs(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	lvl.Set(slog.LevelInfo)
	logger := slog.New(newConsoleHandler(&buf, lvl, false))

	logger = logger.With(slog.String(FieldComponent, "concat"), slog.String(FieldExam, "exam01"))
	logger.Info("scan classified", slog.String(FieldScan, "0005"), slog.Bool("multi_echo", true))

	out := buf.String()
	if !strings.Contains(out, "INFO [concat] exam01/0005 scan classified") {
		t.Fatalf("unexpected console line: %q", out)
	}
	if !strings.Contains(out, "multi_echo: true") {
		t.Fatalf("expected attr line, got: %q", out)
	}
}

func TestConsoleHandlerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	lvl.Set(slog.LevelWarn)
	logger := slog.New(newConsoleHandler(&buf, lvl, false))

	logger.Info("should be dropped")
	logger.Warn("should appear")

	out := buf.String()
	if strings.Contains(out, "should be dropped") {
		t.Fatalf("info record leaked past warn level: %q", out)
	}
	if !strings.Contains(out, "WARN") {
		t.Fatalf("expected warn record: %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":    slog.LevelDebug,
		"info":     slog.LevelInfo,
		"":         slog.LevelInfo,
		"warn":     slog.LevelWarn,
		"error":    slog.LevelError,
		"critical": slog.LevelError,
		"bogus":    slog.LevelInfo,
	}
	for input, want := range cases {
		if got := parseLevel(input); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestVerbosityLevel(t *testing.T) {
	if VerbosityLevel(0) != "warn" || VerbosityLevel(1) != "info" || VerbosityLevel(3) != "debug" {
		t.Fatal("unexpected verbosity mapping")
	}
}

func TestDedupeKVsKeepsLastValue(t *testing.T) {
	attrs := []kv{
		{key: "a", value: slog.StringValue("one")},
		{key: "b", value: slog.StringValue("x")},
		{key: "a", value: slog.StringValue("two")},
	}
	out := dedupeKVsByKey(attrs)
	if len(out) != 2 {
		t.Fatalf("expected 2 deduped attrs, got %d", len(out))
	}
	if out[0].key != "a" || out[0].value.String() != "two" {
		t.Fatalf("expected last value to win, got %s=%s", out[0].key, out[0].value.String())
	}
}
