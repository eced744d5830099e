package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/MrWong99/kinoforge/internal/mcp"
	"gopkg.in/yaml.v3"
)

// ValidLogLevels lists the accepted server.log_level values.
var ValidLogLevels = []string{"debug", "info", "warn", "error"}

// ValidMCPTransports lists the accepted mcp.servers[].transport values.
var ValidMCPTransports = []string{string(mcp.TransportStdio), string(mcp.TransportStreamableHTTP)}

// ValidProviderNames lists known LLM provider names. [Validate] rejects a
// chat_edit.llm or chat_edit.fallback_llm name that is not in this list.
var ValidProviderNames = []string{"openai", "anyllm", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq"}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !slices.Contains(ValidLogLevels, cfg.Server.LogLevel) {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: %v", cfg.Server.LogLevel, ValidLogLevels))
	}

	if cfg.RemoteAPI.BaseURL == "" {
		errs = append(errs, errors.New("remote_api.base_url is required"))
	}

	if cfg.ChatEdit.LLM.Name != "" && !slices.Contains(ValidProviderNames, cfg.ChatEdit.LLM.Name) {
		errs = append(errs, fmt.Errorf("chat_edit.llm.name %q is not a recognised provider; valid values: %v", cfg.ChatEdit.LLM.Name, ValidProviderNames))
	}
	if cfg.ChatEdit.FallbackLLM.Name != "" && !slices.Contains(ValidProviderNames, cfg.ChatEdit.FallbackLLM.Name) {
		errs = append(errs, fmt.Errorf("chat_edit.fallback_llm.name %q is not a recognised provider; valid values: %v", cfg.ChatEdit.FallbackLLM.Name, ValidProviderNames))
	}

	if cfg.Storage.PostgresDSN != "" && cfg.Storage.EmbeddingDimensions <= 0 {
		errs = append(errs, errors.New("storage.embedding_dimensions must be set when storage.postgres_dsn is configured"))
	}
	if cfg.Storage.PostgresDSN != "" && cfg.Storage.Embeddings.Name == "" {
		errs = append(errs, errors.New("storage.embeddings.name must be set when storage.postgres_dsn is configured"))
	}

	for i, srv := range cfg.MCP.Servers {
		prefix := fmt.Sprintf("mcp.servers[%d]", i)
		if srv.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		}
		if srv.Transport != "" && !slices.Contains(ValidMCPTransports, srv.Transport) {
			errs = append(errs, fmt.Errorf("%s.transport %q is invalid; valid values: %v", prefix, srv.Transport, ValidMCPTransports))
		}
		if srv.Transport == string(mcp.TransportStdio) && srv.Command == "" {
			errs = append(errs, fmt.Errorf("%s.command is required when transport is stdio", prefix))
		}
		if srv.Transport == string(mcp.TransportStreamableHTTP) && srv.URL == "" {
			errs = append(errs, fmt.Errorf("%s.url is required when transport is streamable-http", prefix))
		}
	}

	if cfg.Notify.Discord.Enabled {
		if cfg.Notify.Discord.Token == "" {
			errs = append(errs, errors.New("notify.discord.token is required when notify.discord.enabled is true"))
		}
		if cfg.Notify.Discord.ChannelID == "" {
			errs = append(errs, errors.New("notify.discord.channel_id is required when notify.discord.enabled is true"))
		}
	}

	return errors.Join(errs...)
}
