package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// AppConfig is assembled from the environment with an optional YAML overlay
// (LLMCHESS_CONFIG). Environment values win over file values.
type AppConfig struct {
	HTTPAddr string `yaml:"http_addr"`

	LLMBaseURL     string  `yaml:"llm_base_url"`
	LLMModel       string  `yaml:"llm_model"`
	LLMKeyPrefix   string  `yaml:"llm_key_prefix"`
	LLMTemperature float64 `yaml:"llm_temperature"`
	LLMTimeoutSec  int     `yaml:"llm_timeout_sec"`

	RedisURL    string `yaml:"redis_url"`
	DatabaseURL string `yaml:"database_url"`

	ClockInitialSeconds int `yaml:"clock_initial_seconds"`
	HistoryWindow       int `yaml:"history_window"`
	SessionTTLSec       int `yaml:"session_ttl_sec"`
}

func defaults() *AppConfig {
	return &AppConfig{
		HTTPAddr:            ":8080",
		LLMBaseURL:          "https://api.openai.com",
		LLMModel:            "gpt-4o-mini",
		LLMKeyPrefix:        "sk-",
		LLMTemperature:      0.7,
		LLMTimeoutSec:       30,
		ClockInitialSeconds: 600,
		HistoryWindow:       7,
		SessionTTLSec:       3600,
	}
}

func Load() (*AppConfig, error) {
	cfg := defaults()

	if path := strings.TrimSpace(os.Getenv("LLMCHESS_CONFIG")); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if v := strings.TrimSpace(os.Getenv("HTTP_ADDR")); v != "" {
		cfg.HTTPAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("LLM_BASE_URL")); v != "" {
		cfg.LLMBaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("LLM_MODEL")); v != "" {
		cfg.LLMModel = v
	}
	if v := strings.TrimSpace(os.Getenv("LLM_API_KEY_PREFIX")); v != "" {
		cfg.LLMKeyPrefix = v
	}
	if v := strings.TrimSpace(os.Getenv("LLM_TEMPERATURE")); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
			cfg.LLMTemperature = f
		}
	}
	if v := strings.TrimSpace(os.Getenv("LLM_TIMEOUT_SEC")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.LLMTimeoutSec = n
		}
	}

	cfg.RedisURL = firstNonEmpty(os.Getenv("REDIS_URL"), cfg.RedisURL)
	cfg.DatabaseURL = firstNonEmpty(os.Getenv("DATABASE_URL"), cfg.DatabaseURL)

	if v := strings.TrimSpace(os.Getenv("CLOCK_INITIAL_SECONDS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ClockInitialSeconds = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("HISTORY_WINDOW")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.HistoryWindow = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("SESSION_TTL_SEC")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.SessionTTLSec = n
		}
	}

	if cfg.LLMBaseURL == "" {
		return nil, errors.New("LLM_BASE_URL is required")
	}
	if cfg.LLMModel == "" {
		return nil, errors.New("LLM_MODEL is required")
	}

	return cfg, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
