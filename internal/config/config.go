// Package config provides configuration management for neurofind.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config represents the process configuration.
type Config struct {
	Service    ServiceConfig    `toml:"service"`
	Model      ModelConfig      `toml:"model"`
	Index      IndexConfig      `toml:"index"`
	Captioning CaptioningConfig `toml:"captioning"`
	Logging    LoggingConfig    `toml:"logging"`
	Debug      DebugConfig      `toml:"debug"`
}

// ServiceConfig contains process-level settings.
type ServiceConfig struct {
	DataDir         string `toml:"data_dir"`
	ShutdownTimeout int    `toml:"shutdown_timeout_seconds"`
}

// ModelConfig configures the local inference endpoints.
type ModelConfig struct {
	// TextURL is the base URL of a local llama.cpp/Ollama-compatible
	// chat endpoint serving the text-only GGUF model.
	TextURL string `toml:"text_url"`
	// TextModel is the model identifier to request at TextURL.
	TextModel string `toml:"text_model"`
	// VisionURL is the base URL of the vision-language model endpoint.
	// Empty disables captioning.
	VisionURL string `toml:"vision_url"`
	// VisionModel is the model identifier to request at VisionURL.
	VisionModel string `toml:"vision_model"`
	// EmbeddingURL is the base URL of a local embeddings endpoint.
	EmbeddingURL string `toml:"embedding_url"`
	// EmbeddingModel is the model identifier to request at EmbeddingURL.
	EmbeddingModel string `toml:"embedding_model"`
	// MaxTokens is loaded with the rest of the config but no call reads
	// it: the agent, rewriter and searcher each set their own per-request
	// limit (800, 300 and 400 tokens).
	MaxTokens int `toml:"max_tokens"`
	// TimeoutSecs bounds a single inference call.
	TimeoutSecs int `toml:"timeout_seconds"`
}

// IndexConfig contains indexing settings.
type IndexConfig struct {
	SkipMIMEPrefixes  []string `toml:"skip_mime_prefixes"`
	MaxFileSize       int64    `toml:"max_file_size_bytes"`
	DebounceMs        int      `toml:"debounce_ms"`
	WatchEnabled      bool     `toml:"watch_enabled"`
	ChunkSizeChars    int      `toml:"chunk_size_chars"`
	ChunkOverlapChars int      `toml:"chunk_overlap_chars"`
}

// CaptioningConfig controls the background ImageCaptioner.
type CaptioningConfig struct {
	Enabled       bool        `toml:"enabled"`
	Extensions    StringSlice `toml:"extensions"`
	MaxEdgePixels int         `toml:"max_edge_pixels"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level      string      `toml:"level"`
	Format     string      `toml:"format"`
	Output     StringSlice `toml:"output"`
	TimeFormat string      `toml:"time_format"`
	MaxSizeMB  int         `toml:"max_size_mb"`
	MaxBackups int         `toml:"max_backups"`
}

// DebugConfig controls the optional loopback-only HTTP introspection surface.
type DebugConfig struct {
	HTTPEnabled bool `toml:"http_enabled"`
	HTTPPort    int  `toml:"http_port"`
}

// StringSlice unmarshals from either a single string or a TOML array.
type StringSlice []string

// UnmarshalTOML implements toml.Unmarshaler for flexible config parsing.
func (s *StringSlice) UnmarshalTOML(data interface{}) error {
	switch v := data.(type) {
	case string:
		*s = []string{v}
	case []interface{}:
		result := make([]string, len(v))
		for i, item := range v {
			str, ok := item.(string)
			if !ok {
				return fmt.Errorf("expected string in array, got %T", item)
			}
			result[i] = str
		}
		*s = result
	default:
		return fmt.Errorf("expected string or array, got %T", data)
	}
	return nil
}

// DefaultConfig returns the default configuration with all values set.
func DefaultConfig() *Config {
	dataDir := DefaultDataDir()

	return &Config{
		Service: ServiceConfig{
			DataDir:         dataDir,
			ShutdownTimeout: 10,
		},
		Model: ModelConfig{
			TextURL:        "http://127.0.0.1:8080",
			TextModel:      "local-text-gguf",
			VisionURL:      "",
			VisionModel:    "local-vision-gguf",
			EmbeddingURL:   "http://127.0.0.1:8081",
			EmbeddingModel: "local-embedding-gguf",
			MaxTokens:      1024,
			TimeoutSecs:    120,
		},
		Index: IndexConfig{
			SkipMIMEPrefixes:  []string{"image/"},
			MaxFileSize:       20 * 1024 * 1024,
			DebounceMs:        500,
			WatchEnabled:      true,
			ChunkSizeChars:    1500,
			ChunkOverlapChars: 200,
		},
		Captioning: CaptioningConfig{
			Enabled:       false,
			Extensions:    StringSlice{".jpg", ".jpeg", ".png", ".gif", ".bmp", ".webp", ".heic", ".heif"},
			MaxEdgePixels: 768,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     StringSlice{"file"},
			TimeFormat: "15:04:05.000",
			MaxSizeMB:  50,
			MaxBackups: 3,
		},
		Debug: DebugConfig{
			HTTPEnabled: false,
			HTTPPort:    8421,
		},
	}
}

// DefaultDataDir returns the default data directory based on OS.
func DefaultDataDir() string {
	switch runtime.GOOS {
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "neurofind")
		}
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "AppData", "Roaming", "neurofind")
	case "darwin":
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "Library", "Application Support", "neurofind")
	default:
		xdgData := os.Getenv("XDG_DATA_HOME")
		if xdgData != "" {
			return filepath.Join(xdgData, "neurofind")
		}
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".neurofind")
	}
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultDataDir(), "config.toml")
}

// Load loads configuration from a file, merging with defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	if _, err := toml.Decode(expanded, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg.expandPaths()

	return cfg, nil
}

// expandPaths expands a leading "~/" in path fields.
func (c *Config) expandPaths() {
	home, _ := os.UserHomeDir()

	expandTilde := func(path string) string {
		if strings.HasPrefix(path, "~/") {
			return filepath.Join(home, path[2:])
		}
		return path
	}

	c.Service.DataDir = expandTilde(c.Service.DataDir)
}

// Save writes the configuration to path in TOML format.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create config file: %w", err)
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	if err := encoder.Encode(c); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	return nil
}
