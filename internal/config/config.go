// Package config provides configuration loading for lumenote.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config is the full configuration for both process roles. The bot and the
// worker read the same file; each role uses the sections it needs.
type Config struct {
	Telegram    TelegramConfig    `koanf:"telegram"`
	Gemini      GeminiConfig      `koanf:"gemini"`
	Tavily      TavilyConfig      `koanf:"tavily"`
	Speech      SpeechConfig      `koanf:"speech"`
	NATS        NATSConfig        `koanf:"nats"`
	VectorStore VectorStoreConfig `koanf:"vectorstore"`
	Prefs       PrefsConfig       `koanf:"prefs"`
	Worker      WorkerConfig      `koanf:"worker"`
	Server      ServerConfig      `koanf:"server"`
	Logging     LoggingConfig     `koanf:"logging"`
}

// TelegramConfig configures the chat transport.
type TelegramConfig struct {
	Token       Secret   `koanf:"token"`
	PollTimeout Duration `koanf:"poll_timeout"`
}

// GeminiConfig configures text generation and embeddings.
type GeminiConfig struct {
	APIKey         Secret `koanf:"api_key"`
	Model          string `koanf:"model"`
	EmbeddingModel string `koanf:"embedding_model"`
}

// TavilyConfig configures topic discovery. Optional; discovery jobs fail
// cleanly when unset.
type TavilyConfig struct {
	APIKey     Secret `koanf:"api_key"`
	MaxResults int    `koanf:"max_results"`
}

// SpeechConfig configures text-to-speech. Optional; audio digest jobs fail
// cleanly when unset.
type SpeechConfig struct {
	PiperURL string `koanf:"piper_url"`
}

// NATSConfig configures the job broker connection.
type NATSConfig struct {
	URL string `koanf:"url"`
}

// VectorStoreConfig configures the embedded vector store.
type VectorStoreConfig struct {
	Path     string `koanf:"path"`
	Compress bool   `koanf:"compress"`
}

// PrefsConfig configures the preference store.
type PrefsConfig struct {
	Path string `koanf:"path"`
}

// JobPolicyConfig is the per-kind execution policy, keyed by kind name under
// worker.jobs. Zero fields fall back to built-in defaults.
type JobPolicyConfig struct {
	MaxDeliver int      `koanf:"max_deliver"`
	AckWait    Duration `koanf:"ack_wait"`
	Timeout    Duration `koanf:"timeout"`
	Slots      int      `koanf:"slots"`
}

// WorkerConfig configures the worker pool.
type WorkerConfig struct {
	TempDir string                     `koanf:"temp_dir"`
	Jobs    map[string]JobPolicyConfig `koanf:"jobs"`
}

// ServerConfig configures the worker's operational HTTP endpoint.
type ServerConfig struct {
	MetricsAddr     string   `koanf:"metrics_addr"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Telegram.PollTimeout == 0 {
		cfg.Telegram.PollTimeout = Duration(30 * time.Second)
	}

	if cfg.Gemini.Model == "" {
		cfg.Gemini.Model = "gemini-1.5-pro"
	}
	if cfg.Gemini.EmbeddingModel == "" {
		cfg.Gemini.EmbeddingModel = "text-embedding-004"
	}

	if cfg.Tavily.MaxResults == 0 {
		cfg.Tavily.MaxResults = 5
	}

	if cfg.NATS.URL == "" {
		cfg.NATS.URL = "nats://127.0.0.1:4222"
	}

	if home, err := os.UserHomeDir(); err == nil {
		if cfg.VectorStore.Path == "" {
			cfg.VectorStore.Path = filepath.Join(home, ".local", "share", "lumenote", "vectorstore")
		}
		if cfg.Prefs.Path == "" {
			cfg.Prefs.Path = filepath.Join(home, ".local", "share", "lumenote", "prefs.json")
		}
	}

	if cfg.Server.MetricsAddr == "" {
		cfg.Server.MetricsAddr = ":9091"
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// Validate checks that required fields are present.
func (c *Config) Validate() error {
	if !c.Telegram.Token.IsSet() {
		return fmt.Errorf("telegram.token is required")
	}
	if !c.Gemini.APIKey.IsSet() {
		return fmt.Errorf("gemini.api_key is required")
	}
	if c.VectorStore.Path == "" {
		return fmt.Errorf("vectorstore.path is required")
	}
	if c.Prefs.Path == "" {
		return fmt.Errorf("prefs.path is required")
	}
	return nil
}
