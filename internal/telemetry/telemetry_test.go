package telemetry

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"

	"github.com/zhengjr9/edgechat/internal/config"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		" warn ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestInitLogger_File(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	path := filepath.Join(t.TempDir(), "logs", "chat.log")
	logger, closer, err := InitLogger(config.LogConfig{File: path, Level: "debug"})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	logger.Debug("probe result", "reachable", false)
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(raw), `"msg":"probe result"`) || !strings.Contains(string(raw), `"reachable":false`) {
		t.Errorf("unexpected log output: %s", raw)
	}
}

func TestInitTelemetry_Disabled(t *testing.T) {
	cleanup, err := InitTelemetry(context.Background(), "", "edgechat", "test")
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	cleanup()
}

func TestInitTelemetry_Files(t *testing.T) {
	prevTP, prevMP := otel.GetTracerProvider(), otel.GetMeterProvider()
	t.Cleanup(func() {
		otel.SetTracerProvider(prevTP)
		otel.SetMeterProvider(prevMP)
	})

	dir := t.TempDir()
	cleanup, err := InitTelemetry(context.Background(), dir, "edgechat", "test")
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	_, span := otel.Tracer("test").Start(context.Background(), "runtime.chat")
	span.End()
	cleanup()

	raw, err := os.ReadFile(filepath.Join(dir, "edgechat_traces.log"))
	if err != nil {
		t.Fatalf("read traces: %v", err)
	}
	if !strings.Contains(string(raw), "runtime.chat") {
		t.Errorf("span not exported: %s", raw)
	}
}
