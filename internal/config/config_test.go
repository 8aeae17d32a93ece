package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 8000 {
		t.Errorf("Port = %d", cfg.Server.Port)
	}
	if cfg.Server.MaxUploadMB != 100 {
		t.Errorf("MaxUploadMB = %d", cfg.Server.MaxUploadMB)
	}
	if !cfg.Ollama.FallbackToLocal {
		t.Error("FallbackToLocal should default to true")
	}
	if cfg.Analysis.MaxActionItems != 5 {
		t.Errorf("MaxActionItems = %d", cfg.Analysis.MaxActionItems)
	}
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: 9100
  auth_token: secret
whisper:
  base_url: http://whisper:8080
  model: ggml-base.en
whisperx:
  enabled: true
  diarize: false
ollama:
  model: mistral-nemo
  timeout: 2m
webhook:
  url: http://n8n:5678/webhook/meetings
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 9100 {
		t.Errorf("Port = %d", cfg.Server.Port)
	}
	if cfg.Server.AuthToken != "secret" {
		t.Errorf("AuthToken = %q", cfg.Server.AuthToken)
	}
	if cfg.Whisper.BaseURL != "http://whisper:8080" {
		t.Errorf("Whisper.BaseURL = %q", cfg.Whisper.BaseURL)
	}
	if !cfg.WhisperX.Enabled || cfg.WhisperX.Diarize {
		t.Errorf("WhisperX = %+v", cfg.WhisperX)
	}
	if cfg.Ollama.Timeout.Std() != 2*time.Minute {
		t.Errorf("Ollama.Timeout = %v", cfg.Ollama.Timeout.Std())
	}
	if cfg.Webhook.URL == "" {
		t.Error("Webhook.URL not loaded")
	}
	// Untouched sections keep their defaults.
	if cfg.Server.MCPPort != 8001 {
		t.Errorf("MCPPort = %d", cfg.Server.MCPPort)
	}
}

func TestLoadUnknownFieldRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("serverr:\n  port: 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for unknown top-level key")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SPEAKINSIGHTS_PORT", "9999")
	t.Setenv("SPEAKINSIGHTS_OLLAMA_ENABLED", "false")
	t.Setenv("SPEAKINSIGHTS_WHISPER_URL", "http://override:8080")
	t.Setenv("SPEAKINSIGHTS_MAX_ACTION_ITEMS", "8")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 9999 {
		t.Errorf("Port = %d", cfg.Server.Port)
	}
	if cfg.Ollama.Enabled {
		t.Error("Ollama.Enabled should be overridden to false")
	}
	if cfg.Whisper.BaseURL != "http://override:8080" {
		t.Errorf("Whisper.BaseURL = %q", cfg.Whisper.BaseURL)
	}
	if cfg.Analysis.MaxActionItems != 8 {
		t.Errorf("MaxActionItems = %d", cfg.Analysis.MaxActionItems)
	}
}

func TestValidate(t *testing.T) {
	t.Setenv("SPEAKINSIGHTS_PORT", "-1")
	if _, err := Load(""); err == nil {
		t.Error("expected error for invalid port")
	}
}
