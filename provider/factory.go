package provider

import (
	"fmt"

	"horizon/config"
	"horizon/model"

	log "github.com/sirupsen/logrus"
)

// NewProvider creates a provider based on configuration.
//
// Returns an error if the provider type is unknown or the provider-specific
// constructor fails (missing API key, invalid URL).
func NewProvider(cfg Config) (model.Provider, error) {
	switch cfg.Type {
	case ProviderTypeOllama:
		return NewOllamaProvider(cfg.BaseURL, cfg.Model)
	case ProviderTypeOpenRouter:
		return NewOpenRouterProvider(cfg.BaseURL, cfg.APIKey, cfg.Model)
	case ProviderTypeOpenAI:
		return NewOpenAIProvider(cfg.BaseURL, cfg.APIKey, cfg.Model)
	case ProviderTypeAnthropic:
		return NewAnthropicProvider(cfg.BaseURL, cfg.APIKey, cfg.Model)
	default:
		return nil, fmt.Errorf("unknown provider type: %s", cfg.Type)
	}
}

// FromConfig builds the configured provider. The API key comes from the
// config file or the provider's conventional environment variable.
func FromConfig(cfg *config.Config) (model.Provider, error) {
	p, err := NewProvider(Config{
		Type:    ProviderType(cfg.Provider.Type),
		BaseURL: cfg.Provider.BaseURL,
		Model:   cfg.Provider.Model,
		APIKey:  cfg.APIKey(),
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"provider": cfg.Provider.Type,
		"model":    p.GetModel(),
	}).Debug("initialized provider")
	return p, nil
}
