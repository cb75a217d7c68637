package logger

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestSetupJSON(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log, err := Setup(&buf, slog.LevelInfo, "json")
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	log.Info("predicted", "tensors", 3)
	out := buf.String()
	if !strings.Contains(out, `"msg":"predicted"`) || !strings.Contains(out, `"tensors":3`) {
		t.Fatalf("unexpected json output: %s", out)
	}
}

func TestSetupUnknownFormat(t *testing.T) {
	t.Parallel()
	if _, err := Setup(&bytes.Buffer{}, slog.LevelInfo, "xml"); err == nil {
		t.Fatal("expected an error for an unknown format")
	}
}

func TestPrettyLine(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := New(NewPrettyHandler(&buf, nil)).With("net", "resnet")
	log.Info("bucket decoded", "key", "(64,64,3,3)", "note", "two words")
	out := buf.String()
	for _, want := range []string{"bucket decoded", "net=resnet", "key=(64,64,3,3)", `note="two words"`, "INFO "} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in %q", want, out)
		}
	}
}

func TestPrettyLevelFiltering(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := New(NewPrettyHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
	log.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info must be filtered at warn: %s", buf.String())
	}
	log.Warn("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Fatalf("warn missing: %s", buf.String())
	}
}

func TestPrettyGroup(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := New(NewPrettyHandler(&buf, nil)).WithGroup("ghn").WithGroup("inject")
	log.Info("slot", "path", "fc.weight")
	if !strings.Contains(buf.String(), "ghn.inject.path=fc.weight") {
		t.Fatalf("group prefix missing: %s", buf.String())
	}
}

func TestForDebugLevel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   int
		want slog.Level
	}{
		{0, slog.LevelWarn},
		{1, slog.LevelInfo},
		{2, slog.LevelDebug},
		{3, slog.LevelDebug},
	}
	for _, tt := range tests {
		if got := ForDebugLevel(tt.in); got != tt.want {
			t.Errorf("ForDebugLevel(%d)=%v want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q)=%v want %v", in, got, want)
		}
	}
}

func TestContextRoundTrip(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log, _ := Setup(&buf, slog.LevelInfo, "text")
	FromContext(WithContext(context.Background(), log)).Info("via context")
	if !strings.Contains(buf.String(), "via context") {
		t.Fatalf("context logger not used: %s", buf.String())
	}
	if FromContext(context.Background()) == nil {
		t.Fatal("FromContext without a logger must return a default")
	}
}

func TestDiscardEnabled(t *testing.T) {
	t.Parallel()
	if Discard().Enabled(slog.LevelError) {
		t.Fatal("discard logger must not enable any level")
	}
}
