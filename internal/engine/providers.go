package engine

import (
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/kinoforge/internal/config"
	"github.com/MrWong99/kinoforge/pkg/provider/embeddings"
	"github.com/MrWong99/kinoforge/pkg/provider/embeddings/ollama"
	embopenai "github.com/MrWong99/kinoforge/pkg/provider/embeddings/openai"
	"github.com/MrWong99/kinoforge/pkg/provider/llm"
	"github.com/MrWong99/kinoforge/pkg/provider/llm/anyllm"
	llmopenai "github.com/MrWong99/kinoforge/pkg/provider/llm/openai"
)

// defaultRestTimeout bounds a single REST round-trip when
// RemoteAPIConfig.RequestTimeoutSeconds is unset.
const defaultRestTimeout = 30 * time.Second

// restclientTimeout converts a configured timeout in seconds to a
// [time.Duration], falling back to defaultRestTimeout when unset.
func restclientTimeout(seconds int) time.Duration {
	if seconds <= 0 {
		return defaultRestTimeout
	}
	return time.Duration(seconds) * time.Second
}

// anyllmOpts translates the common [config.ProviderEntry] fields into
// any-llm-go options. Missing fields are left to any-llm-go's own
// environment-variable fallbacks.
func anyllmOpts(e config.ProviderEntry) []anyllmlib.Option {
	var opts []anyllmlib.Option
	if e.APIKey != "" {
		opts = append(opts, anyllmlib.WithAPIKey(e.APIKey))
	}
	if e.BaseURL != "" {
		opts = append(opts, anyllmlib.WithBaseURL(e.BaseURL))
	}
	return opts
}

// registerProviderFactories populates r with every LLM and embeddings
// provider known to this build. Entries not referenced by any
// [config.ProviderEntry].Name in cfg are simply never instantiated.
func registerProviderFactories(r *config.Registry) {
	r.RegisterLLM("openai", func(e config.ProviderEntry) (llm.Provider, error) {
		opts := []llmopenai.Option{}
		if e.BaseURL != "" {
			opts = append(opts, llmopenai.WithBaseURL(e.BaseURL))
		}
		return llmopenai.New(e.APIKey, e.Model, opts...)
	})

	for _, backend := range []string{"anthropic", "gemini", "ollama", "deepseek", "mistral", "groq"} {
		r.RegisterLLM(backend, func(e config.ProviderEntry) (llm.Provider, error) {
			return anyllm.New(backend, e.Model, anyllmOpts(e)...)
		})
	}
	r.RegisterLLM("anyllm", func(e config.ProviderEntry) (llm.Provider, error) {
		providerName, _ := e.Options["provider"].(string)
		if providerName == "" {
			providerName = "openai"
		}
		return anyllm.New(providerName, e.Model, anyllmOpts(e)...)
	})

	r.RegisterEmbeddings("openai", func(e config.ProviderEntry) (embeddings.Provider, error) {
		opts := []embopenai.Option{}
		if e.BaseURL != "" {
			opts = append(opts, embopenai.WithBaseURL(e.BaseURL))
		}
		return embopenai.New(e.APIKey, e.Model, opts...)
	})
	r.RegisterEmbeddings("ollama", func(e config.ProviderEntry) (embeddings.Provider, error) {
		baseURL := e.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		return ollama.New(baseURL, e.Model)
	})
}
