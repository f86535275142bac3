package llm

import (
	"context"
	"fmt"
)

// Provider is the interface for translation model interactions.
type Provider interface {
	// Translate sends a system instruction and user text to the model and
	// returns the raw translated text. Failures are *Error values so
	// callers can distinguish rate limits and permanent failures from
	// transient ones.
	Translate(ctx context.Context, system, user string) (string, error)
}

// Embedder generates embeddings for a batch of texts. Providers that
// support it enable semantic translation-memory lookup.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Config configures an LLM provider.
type Config struct {
	Provider string `json:"provider" yaml:"provider"` // ollama, lmstudio, openrouter, openai, groq, xai, gemini, custom
	Model    string `json:"model" yaml:"model"`
	BaseURL  string `json:"base_url" yaml:"base_url"`
	APIKey   string `json:"api_key" yaml:"api_key"`

	// EmbeddingModel enables semantic translation-memory lookup; it is
	// requested from the same provider in place of the chat model.
	EmbeddingModel string `json:"embedding_model" yaml:"embedding_model"`
	// EmbeddingDim is the vector width of EmbeddingModel.
	EmbeddingDim int `json:"embedding_dim" yaml:"embedding_dim"`
}

// NewProvider creates an LLM provider from configuration.
func NewProvider(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "ollama":
		return NewOllama(cfg), nil
	case "lmstudio":
		return NewLMStudio(cfg), nil
	case "openrouter":
		return NewOpenRouter(cfg), nil
	case "openai":
		return NewOpenAI(cfg), nil
	case "groq":
		return NewGroq(cfg), nil
	case "xai":
		return NewXAI(cfg), nil
	case "gemini":
		return NewGemini(cfg), nil
	case "custom":
		return NewOpenAICompat(cfg), nil
	case "":
		return nil, fmt.Errorf("llm provider not specified")
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.Provider)
	}
}

// NewEmbedder creates an embedding client from configuration, talking
// to the same provider with EmbeddingModel in place of the chat model.
func NewEmbedder(cfg Config) (Embedder, error) {
	if cfg.EmbeddingModel == "" {
		return nil, fmt.Errorf("llm embedding model not specified")
	}
	cfg.Model = cfg.EmbeddingModel
	p, err := NewProvider(cfg)
	if err != nil {
		return nil, err
	}
	e, ok := p.(Embedder)
	if !ok {
		return nil, fmt.Errorf("provider %s does not support embeddings", cfg.Provider)
	}
	return e, nil
}
