// Package config loads and validates paperdesk configuration.
// Configuration lives at <workspace>/.paperdesk/config.yaml; environment
// variables override the API key fields so secrets can stay out of the file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all paperdesk configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// LLM configuration
	LLM LLMConfig `yaml:"llm"`

	// Embedding engine configuration
	Embedding EmbeddingConfig `yaml:"embedding"`

	// arXiv API configuration
	Arxiv ArxivConfig `yaml:"arxiv"`

	// Retrieval index configuration
	Index IndexConfig `yaml:"index"`

	// Terminal UI
	UI UIConfig `yaml:"ui"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig configures the LLM collaborator.
type LLMConfig struct {
	Provider string `yaml:"provider"` // gemini
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	Timeout  string `yaml:"timeout"`
}

// EmbeddingConfig configures the embedding engine.
type EmbeddingConfig struct {
	Provider       string `yaml:"provider"` // ollama or genai
	OllamaEndpoint string `yaml:"ollama_endpoint"`
	OllamaModel    string `yaml:"ollama_model"`
	GenAIAPIKey    string `yaml:"genai_api_key"`
	GenAIModel     string `yaml:"genai_model"`
}

// ArxivConfig configures the arXiv Atom API client.
type ArxivConfig struct {
	BaseURL    string `yaml:"base_url"`
	MaxResults int    `yaml:"max_results"`
	RateLimit  string `yaml:"rate_limit"` // delay between consecutive downloads
}

// IndexConfig configures the vector indices and retrieval defaults.
type IndexConfig struct {
	DBPath           string  `yaml:"db_path"` // relative to workspace unless absolute
	SimilarityCutoff float64 `yaml:"similarity_cutoff"`
	MMRAlpha         float64 `yaml:"mmr_alpha"`
	TopK             int     `yaml:"top_k"`
	SummaryPapers    int     `yaml:"summary_papers"` // research stage-1 width
	DetailChunks     int     `yaml:"detail_chunks"`  // research stage-2 width
}

// UIConfig configures terminal rendering.
type UIConfig struct {
	RenderMarkdown bool `yaml:"render_markdown"`
	Color          bool `yaml:"color"`
}

// LoggingConfig mirrors internal/logging's expectations.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Categories map[string]bool `yaml:"categories"`
	Level      string          `yaml:"level"`
}

// Default returns the baseline configuration.
func Default() *Config {
	return &Config{
		Name:    "paperdesk",
		Version: "0.3.0",
		LLM: LLMConfig{
			Provider: "gemini",
			Model:    "gemini-2.5-flash",
			BaseURL:  "https://generativelanguage.googleapis.com/v1beta",
			Timeout:  "2m",
		},
		Embedding: EmbeddingConfig{
			Provider:       "ollama",
			OllamaEndpoint: "http://localhost:11434",
			OllamaModel:    "embeddinggemma",
			GenAIModel:     "gemini-embedding-001",
		},
		Arxiv: ArxivConfig{
			BaseURL:    "https://export.arxiv.org/api/query",
			MaxResults: 10,
			RateLimit:  "3s",
		},
		Index: IndexConfig{
			DBPath:           filepath.Join(".paperdesk", "paperdesk.db"),
			SimilarityCutoff: 0.5,
			MMRAlpha:         0.5,
			TopK:             10,
			SummaryPapers:    5,
			DetailChunks:     10,
		},
		UI: UIConfig{
			RenderMarkdown: true,
			Color:          true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads config.yaml from the workspace, layering it over defaults.
// A missing file is not an error; defaults plus env overrides apply.
func Load(workspace string) (*Config, error) {
	cfg := Default()

	path := filepath.Join(workspace, ".paperdesk", "config.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv lets environment variables override file-stored secrets.
func (c *Config) applyEnv() {
	if v := os.Getenv("PAPERDESK_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		if c.LLM.APIKey == "" {
			c.LLM.APIKey = v
		}
		if c.Embedding.GenAIAPIKey == "" {
			c.Embedding.GenAIAPIKey = v
		}
	}
}

func (c *Config) validate() error {
	if c.Index.SimilarityCutoff < 0 || c.Index.SimilarityCutoff > 1 {
		return fmt.Errorf("index.similarity_cutoff must be in [0,1], got %v", c.Index.SimilarityCutoff)
	}
	if c.Index.MMRAlpha < 0 || c.Index.MMRAlpha > 1 {
		return fmt.Errorf("index.mmr_alpha must be in [0,1], got %v", c.Index.MMRAlpha)
	}
	if c.Index.TopK <= 0 {
		return fmt.Errorf("index.top_k must be positive, got %d", c.Index.TopK)
	}
	return nil
}

// LLMTimeout parses the configured LLM timeout, defaulting to 2 minutes.
func (c *Config) LLMTimeout() time.Duration {
	d, err := time.ParseDuration(c.LLM.Timeout)
	if err != nil || d <= 0 {
		return 2 * time.Minute
	}
	return d
}

// DownloadDelay parses the arXiv rate limit, defaulting to 3 seconds.
func (c *Config) DownloadDelay() time.Duration {
	d, err := time.ParseDuration(c.Arxiv.RateLimit)
	if err != nil || d <= 0 {
		return 3 * time.Second
	}
	return d
}

// ResolveDBPath returns the absolute index database path for a workspace.
func (c *Config) ResolveDBPath(workspace string) string {
	if filepath.IsAbs(c.Index.DBPath) {
		return c.Index.DBPath
	}
	return filepath.Join(workspace, c.Index.DBPath)
}
