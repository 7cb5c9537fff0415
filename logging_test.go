package panefs

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"verbose": slog.LevelInfo,
		"":        slog.LevelInfo,
	} {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, &Config{LogLevel: "warn", LogFormat: "json"})
	logger.Info("dropped")
	logger.Warn("kept", "realm", "sftp://host/")

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Error("info should be below the warn level")
	}
	if !strings.Contains(out, `"msg":"kept"`) || !strings.Contains(out, `"realm":"sftp://host/"`) {
		t.Errorf("unexpected output %q", out)
	}

	buf.Reset()
	NewLogger(&buf, &Config{}).Info("hello")
	if !strings.Contains(buf.String(), "msg=hello") {
		t.Errorf("expected text output, got %q", buf.String())
	}
}
