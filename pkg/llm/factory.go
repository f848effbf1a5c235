package llm

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

type ProviderType string

const (
	ProviderTypeOpenAI ProviderType = "openai" // OpenAI-compatible API
	ProviderTypeOllama ProviderType = "ollama" // Ollama's OpenAI-compatible endpoint
)

const (
	defaultOpenAIURL = "https://api.openai.com/v1"
	defaultOllamaURL = "http://localhost:11434/v1"
)

// NewLLMProvider builds a provider by name; empty means openai.
func NewLLMProvider(ctx context.Context, provider, apiKey, apiURL, model, systemPrompt string, lg *zap.Logger) (LLMProvider, error) {
	providerType := strings.ToLower(strings.TrimSpace(provider))
	if providerType == "" {
		providerType = string(ProviderTypeOpenAI)
	}
	switch ProviderType(providerType) {
	case ProviderTypeOllama:
		if apiURL == "" {
			apiURL = defaultOllamaURL
		}
		if apiKey == "" {
			apiKey = "ollama"
		}
		return NewOpenAIProvider(ctx, apiKey, apiURL, systemPrompt, WithModel(model), WithLogger(lg)), nil
	case ProviderTypeOpenAI:
		if apiURL == "" {
			apiURL = defaultOpenAIURL
		}
		return NewOpenAIProvider(ctx, apiKey, apiURL, systemPrompt, WithModel(model), WithLogger(lg)), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", provider)
	}
}
