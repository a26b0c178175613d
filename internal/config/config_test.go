package config

import (
	"testing"
	"time"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.ListenAddr != ":8000" {
		t.Errorf("listen addr = %q", cfg.ListenAddr)
	}
	if cfg.RuntimeKind != RuntimeOllama || cfg.RuntimeURL != "http://localhost:11434" {
		t.Errorf("runtime = %q %q", cfg.RuntimeKind, cfg.RuntimeURL)
	}
	if cfg.Model != "llama2" || cfg.MaxTokens != 2048 || cfg.Temperature != 0.7 {
		t.Errorf("sampling defaults = %q %d %v", cfg.Model, cfg.MaxTokens, cfg.Temperature)
	}
	if cfg.RequestTimeout != 120*time.Second || cfg.HealthTimeout != 5*time.Second {
		t.Errorf("timeouts = %s %s", cfg.RequestTimeout, cfg.HealthTimeout)
	}
	if len(cfg.CORSOrigins) != 1 || cfg.CORSOrigins[0] != "*" {
		t.Errorf("cors origins = %v", cfg.CORSOrigins)
	}
}

func TestParse_EnvAndFlags(t *testing.T) {
	t.Setenv("LLM_MODEL", "mistral")
	t.Setenv("REQUEST_TIMEOUT", "15s")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("MAX_TOKENS", "not-a-number")

	cfg, err := Parse([]string{"--runtime", "openai", "--temperature", "0.2"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Model != "mistral" {
		t.Errorf("model = %q", cfg.Model)
	}
	if cfg.RequestTimeout != 15*time.Second {
		t.Errorf("request timeout = %s", cfg.RequestTimeout)
	}
	if cfg.MaxTokens != 2048 {
		t.Errorf("invalid MAX_TOKENS should fall back, got %d", cfg.MaxTokens)
	}
	if cfg.RuntimeKind != RuntimeOpenAI || cfg.Temperature != 0.2 {
		t.Errorf("flags not applied: %q %v", cfg.RuntimeKind, cfg.Temperature)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://b.example" {
		t.Errorf("cors origins = %v", cfg.CORSOrigins)
	}
}

func TestParseClient(t *testing.T) {
	t.Setenv("GATEWAY_URL", "http://gw:9000")
	cfg, err := ParseClient([]string{"--probe-timeout", "250ms"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.GatewayURL != "http://gw:9000" {
		t.Errorf("gateway url = %q", cfg.GatewayURL)
	}
	if cfg.ProbeTimeout != 250*time.Millisecond {
		t.Errorf("probe timeout = %s", cfg.ProbeTimeout)
	}
	if cfg.MaxTokens != 512 {
		t.Errorf("max tokens = %d", cfg.MaxTokens)
	}
}

func TestParse_UnknownFlag(t *testing.T) {
	if _, err := Parse([]string{"--no-such-flag"}); err == nil {
		t.Fatal("expected error for unknown flag")
	}
}
