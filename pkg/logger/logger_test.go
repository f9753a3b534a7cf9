package logger

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestLoggerInit(t *testing.T) {
	if err := Init(); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() {
		if err := Sync(); err != nil {
			t.Errorf("failed to sync logger: %v", err)
		}
	}()

	if Get() == nil {
		t.Fatal("logger is nil after initialization")
	}
	if GetOrNop() != Get() {
		t.Fatal("GetOrNop should return the global logger once initialized")
	}
}

func TestLoggerWritesStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, slog.LevelDebug).Named("session")

	ctx := context.Background()
	l.Info(ctx, "judged", String("quality", "perfect"), Int("combo", 3), Duration("delta", 4*time.Millisecond))
	l.Warn(ctx, "late cue", Error(errors.New("too late")))

	out := buf.String()
	for _, want := range []string{"judged", "session.quality=perfect", "session.combo=3", "late cue", "too late", "source="} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q, got %s", want, out)
		}
	}
}

func TestLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, slog.LevelWarn)

	l.Debug(context.Background(), "hidden")
	l.Info(context.Background(), "also hidden")
	if buf.Len() != 0 {
		t.Fatalf("expected nothing below warn, got %s", buf.String())
	}
}

func TestNopDiscards(t *testing.T) {
	l := Nop()
	l.Error(context.Background(), "nothing to see")
	if l.Named("x") == nil {
		t.Fatal("named nop logger is nil")
	}
}

func TestSetLevelString(t *testing.T) {
	if err := Init(); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}

	for _, lvl := range []string{"debug", "info", "warn", "warning", "error", "", " INFO "} {
		if err := SetLevelString(lvl); err != nil {
			t.Errorf("level %q: unexpected error %v", lvl, err)
		}
	}
	if err := SetLevelString("verbose"); err == nil {
		t.Error("expected error for unknown level")
	}

	got, err := ParseLevel("warning")
	if err != nil || got != slog.LevelWarn {
		t.Errorf("ParseLevel(warning) = %v, %v", got, err)
	}
}
