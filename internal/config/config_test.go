package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("http addr = %q", cfg.HTTPAddr)
	}
	if cfg.ClockInitialSeconds != 600 || cfg.HistoryWindow != 7 {
		t.Fatalf("game defaults: clock=%d window=%d", cfg.ClockInitialSeconds, cfg.HistoryWindow)
	}
	if cfg.LLMKeyPrefix != "sk-" {
		t.Fatalf("key prefix = %q", cfg.LLMKeyPrefix)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	payload := "http_addr: \":9090\"\nllm_model: file-model\nclock_initial_seconds: 120\n"
	if err := os.WriteFile(path, []byte(payload), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("LLMCHESS_CONFIG", path)
	t.Setenv("LLM_MODEL", "env-model")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":9090" {
		t.Fatalf("http addr = %q, want file value", cfg.HTTPAddr)
	}
	if cfg.ClockInitialSeconds != 120 {
		t.Fatalf("clock = %d, want file value", cfg.ClockInitialSeconds)
	}
	if cfg.LLMModel != "env-model" {
		t.Fatalf("model = %q, want env override", cfg.LLMModel)
	}
}

func TestLoadBadClockIgnored(t *testing.T) {
	t.Setenv("CLOCK_INITIAL_SECONDS", "not-a-number")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ClockInitialSeconds != 600 {
		t.Fatalf("clock = %d, want default", cfg.ClockInitialSeconds)
	}
}
