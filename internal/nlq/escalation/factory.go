package escalation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"wapi-nlq/internal/common/config"
	nlqhttp "wapi-nlq/internal/common/http"
	"wapi-nlq/internal/common/logger"

	"github.com/redis/go-redis/v9"
)

const (
	ProviderNone   = "none"
	ProviderOpenAI = "openai"
	ProviderGrok   = "grok"
	ProviderOllama = "ollama"
	ProviderCustom = "custom"
	ProviderGemini = "gemini"
)

type providerDefaults struct {
	baseURL string
	model   string
}

var defaults = map[string]providerDefaults{
	ProviderOpenAI: {"https://api.openai.com/v1", "gpt-3.5-turbo"},
	ProviderGrok:   {"https://api.x.ai/v1", "grok-3-beta"},
	ProviderOllama: {"http://localhost:11434/v1", "llama3"},
	ProviderCustom: {"", ""},
	ProviderGemini: {"", "gemini-2.0-flash"},
}

// NewBackend builds the configured backend. It returns nil, nil when
// escalation is disabled.
func NewBackend(ctx context.Context, cfg config.LLMConfig, client *nlqhttp.Client) (Backend, error) {
	if !cfg.Enabled() {
		return nil, nil
	}

	provider := strings.ToLower(cfg.Provider)
	d, ok := defaults[provider]
	if !ok {
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}

	model := cfg.Model
	if model == "" {
		model = d.model
	}

	if provider == ProviderGemini {
		gemini, err := NewGeminiBackend(ctx, cfg.APIKey, model)
		if err != nil {
			return nil, err
		}
		return gemini, nil
	}

	baseURL := d.baseURL
	if cfg.Endpoint != "" {
		baseURL = cfg.Endpoint
	}
	if baseURL == "" {
		return nil, fmt.Errorf("llm.endpoint is required for provider %s", provider)
	}
	if client == nil {
		client = nlqhttp.NewClient(config.GetDuration(cfg.Timeout))
	}
	return NewChatBackend(provider, baseURL, cfg.APIKey, model, client), nil
}

// NewFromConfig assembles the Escalator, with a redis cache when both a
// client and a positive cache TTL are given. A nil Escalator means
// escalation is off.
func NewFromConfig(ctx context.Context, cfg config.LLMConfig, client *nlqhttp.Client, rdb *redis.Client, log logger.Logger) (*Escalator, error) {
	backend, err := NewBackend(ctx, cfg, client)
	if err != nil {
		return nil, err
	}
	if backend == nil {
		return nil, nil
	}

	var cache Cache
	if rdb != nil && cfg.CacheTTL > 0 {
		cache = NewRedisCache(rdb, time.Duration(cfg.CacheTTL)*time.Second)
	}
	return New(backend, cache, log), nil
}
