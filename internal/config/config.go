package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

const (
	DefaultConfigPath       = "config.toml"
	DefaultHTTPAddr         = ":8080"
	DefaultPGHost           = "127.0.0.1"
	DefaultPGPort           = 5432
	DefaultPGUser           = "postgres"
	DefaultPGDatabase       = "converse"
	DefaultPGSSLMode        = "disable"
	DefaultQdrantHost       = "127.0.0.1"
	DefaultQdrantPort       = 6334
	DefaultQdrantCollection = "knowledge_base"
	DefaultEmbeddingDims    = 768
	DefaultOllamaURL        = "http://127.0.0.1:11434"
	DefaultChatModel        = "llama3.2"
	DefaultEmbedModel       = "nomic-embed-text"
	DefaultCountryCode      = "55"
)

type Config struct {
	Log      LogConfig      `toml:"log"`
	Server   ServerConfig   `toml:"server"`
	Postgres PostgresConfig `toml:"postgres"`
	Qdrant   QdrantConfig   `toml:"qdrant"`
	Ollama   OllamaConfig   `toml:"ollama"`
	Gateway  GatewayConfig  `toml:"gateway"`
	Pipeline PipelineConfig `toml:"pipeline"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

type PostgresConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	SSLMode  string `toml:"sslmode"`
}

// DSN renders a pgx-compatible connection string.
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}

type QdrantConfig struct {
	Host           string `toml:"host"`
	Port           int    `toml:"port"`
	APIKey         string `toml:"api_key"`
	UseTLS         bool   `toml:"use_tls"`
	Collection     string `toml:"collection"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

type OllamaConfig struct {
	BaseURL             string  `toml:"base_url"`
	ChatModel           string  `toml:"chat_model"`
	EmbeddingModel      string  `toml:"embedding_model"`
	EmbeddingDimensions int     `toml:"embedding_dimensions"`
	Temperature         float64 `toml:"temperature"`
	TimeoutSeconds      int     `toml:"timeout_seconds"`
}

type GatewayConfig struct {
	BaseURL        string `toml:"base_url"`
	APIToken       string `toml:"api_token"`
	CountryCode    string `toml:"country_code"`
	TextChunkLimit int    `toml:"text_chunk_limit"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

type PipelineConfig struct {
	HistoryLimit int `toml:"history_limit"`
	ContextTopK  int `toml:"context_top_k"`
	// FallbackMemoryStore switches the conversation store to a process-local
	// in-memory fallback when Postgres is unreachable mid-run. Replies are
	// still attempted but history is lost on restart, so this is off by default.
	FallbackMemoryStore bool `toml:"fallback_memory_store"`
	RunTimeoutSeconds   int  `toml:"run_timeout_seconds"`
}

// Load reads configuration from a TOML file, applying defaults first.
// A missing file is not an error; deployments may run on defaults plus
// whatever the environment provides.
func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Postgres: PostgresConfig{
			Host:     DefaultPGHost,
			Port:     DefaultPGPort,
			User:     DefaultPGUser,
			Database: DefaultPGDatabase,
			SSLMode:  DefaultPGSSLMode,
		},
		Qdrant: QdrantConfig{
			Host:           DefaultQdrantHost,
			Port:           DefaultQdrantPort,
			Collection:     DefaultQdrantCollection,
			TimeoutSeconds: 10,
		},
		Ollama: OllamaConfig{
			BaseURL:             DefaultOllamaURL,
			ChatModel:           DefaultChatModel,
			EmbeddingModel:      DefaultEmbedModel,
			EmbeddingDimensions: DefaultEmbeddingDims,
			Temperature:         0.2,
			TimeoutSeconds:      60,
		},
		Gateway: GatewayConfig{
			BaseURL:        "https://api.wts.chat",
			CountryCode:    DefaultCountryCode,
			TextChunkLimit: 4096,
			TimeoutSeconds: 30,
		},
		Pipeline: PipelineConfig{
			HistoryLimit:      10,
			ContextTopK:       3,
			RunTimeoutSeconds: 120,
		},
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Validate checks settings that have no workable default.
func (c Config) Validate() error {
	if c.Gateway.APIToken == "" {
		return fmt.Errorf("gateway.api_token is required")
	}
	if c.Ollama.ChatModel == "" {
		return fmt.Errorf("ollama.chat_model is required")
	}
	if c.Ollama.EmbeddingModel == "" {
		return fmt.Errorf("ollama.embedding_model is required")
	}
	return nil
}
