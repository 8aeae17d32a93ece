package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "90s" or "5m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Whisper  WhisperConfig  `yaml:"whisper"`
	WhisperX WhisperXConfig `yaml:"whisperx"`
	Ollama   OllamaConfig   `yaml:"ollama"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Webhook  WebhookConfig  `yaml:"webhook"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	Port        int    `yaml:"port"`
	MCPPort     int    `yaml:"mcp_port"`
	AuthToken   string `yaml:"auth_token"`
	MaxUploadMB int    `yaml:"max_upload_mb"`
}

type StorageConfig struct {
	DataDir  string `yaml:"data_dir"`
	AudioDir string `yaml:"audio_dir"`
}

type WhisperConfig struct {
	BaseURL string   `yaml:"base_url"`
	Model   string   `yaml:"model"`
	Timeout Duration `yaml:"timeout"`
}

type WhisperXConfig struct {
	Enabled     bool     `yaml:"enabled"`
	BaseURL     string   `yaml:"base_url"`
	Diarize     bool     `yaml:"diarize"`
	MinSpeakers int      `yaml:"min_speakers"`
	MaxSpeakers int      `yaml:"max_speakers"`
	Timeout     Duration `yaml:"timeout"`
}

type OllamaConfig struct {
	Enabled         bool     `yaml:"enabled"`
	BaseURL         string   `yaml:"base_url"`
	Model           string   `yaml:"model"`
	FallbackToLocal bool     `yaml:"fallback_to_local"`
	Timeout         Duration `yaml:"timeout"`
}

type AnalysisConfig struct {
	MaxActionItems int `yaml:"max_action_items"`
}

type WebhookConfig struct {
	URL string `yaml:"url"`
}

type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:        8000,
			MCPPort:     8001,
			MaxUploadMB: 100,
		},
		Storage: StorageConfig{
			DataDir:  defaultDataDir(),
			AudioDir: filepath.Join(defaultDataDir(), "audio"),
		},
		Whisper: WhisperConfig{
			BaseURL: "http://localhost:8080",
			Timeout: Duration(5 * time.Minute),
		},
		WhisperX: WhisperXConfig{
			BaseURL:     "http://localhost:9000",
			Diarize:     true,
			MinSpeakers: 1,
			MaxSpeakers: 8,
			Timeout:     Duration(10 * time.Minute),
		},
		Ollama: OllamaConfig{
			Enabled:         true,
			BaseURL:         "http://localhost:11434",
			Model:           "phi3.5",
			FallbackToLocal: true,
			Timeout:         Duration(90 * time.Second),
		},
		Analysis: AnalysisConfig{
			MaxActionItems: 5,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".speakinsights"
	}
	return filepath.Join(home, ".speakinsights")
}

// Load reads configuration from an optional YAML file, then applies
// SPEAKINSIGHTS_* environment variable overrides. path may be empty, in
// which case only defaults and the environment apply.
func Load(path string) (Config, error) {
	cfg := defaults()

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return Config{}, fmt.Errorf("opening config file: %w", err)
		}
		defer f.Close()

		dec := yaml.NewDecoder(f)
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	setBool := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}

	setInt("SPEAKINSIGHTS_PORT", &cfg.Server.Port)
	setInt("SPEAKINSIGHTS_MCP_PORT", &cfg.Server.MCPPort)
	setString("SPEAKINSIGHTS_AUTH_TOKEN", &cfg.Server.AuthToken)
	setInt("SPEAKINSIGHTS_MAX_UPLOAD_MB", &cfg.Server.MaxUploadMB)

	setString("SPEAKINSIGHTS_DATA_DIR", &cfg.Storage.DataDir)
	setString("SPEAKINSIGHTS_AUDIO_DIR", &cfg.Storage.AudioDir)

	setString("SPEAKINSIGHTS_WHISPER_URL", &cfg.Whisper.BaseURL)
	setString("SPEAKINSIGHTS_WHISPER_MODEL", &cfg.Whisper.Model)

	setBool("SPEAKINSIGHTS_WHISPERX_ENABLED", &cfg.WhisperX.Enabled)
	setString("SPEAKINSIGHTS_WHISPERX_URL", &cfg.WhisperX.BaseURL)
	setBool("SPEAKINSIGHTS_WHISPERX_DIARIZE", &cfg.WhisperX.Diarize)

	setBool("SPEAKINSIGHTS_OLLAMA_ENABLED", &cfg.Ollama.Enabled)
	setString("SPEAKINSIGHTS_OLLAMA_URL", &cfg.Ollama.BaseURL)
	setString("SPEAKINSIGHTS_OLLAMA_MODEL", &cfg.Ollama.Model)
	setBool("SPEAKINSIGHTS_OLLAMA_FALLBACK", &cfg.Ollama.FallbackToLocal)

	setInt("SPEAKINSIGHTS_MAX_ACTION_ITEMS", &cfg.Analysis.MaxActionItems)
	setString("SPEAKINSIGHTS_WEBHOOK_URL", &cfg.Webhook.URL)
	setString("SPEAKINSIGHTS_LOG_LEVEL", &cfg.Log.Level)
}

func validate(cfg Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", cfg.Server.Port)
	}
	if cfg.Whisper.BaseURL == "" {
		return fmt.Errorf("whisper base_url is required")
	}
	if cfg.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("max_upload_mb must be positive")
	}
	return nil
}
