package llm

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/inkwell-ai/inkwell-engine/pkg/config"
)

// NewClientFromConfig creates the provider client selected by configuration.
func NewClientFromConfig(cfg *config.AIConfig, logger *zap.Logger) (Client, error) {
	clientCfg := &Config{
		Endpoint: cfg.BaseURL,
		Model:    cfg.Model,
		APIKey:   cfg.APIKey,
	}

	switch cfg.Provider {
	case "openai", "":
		return NewOpenAIClient(clientCfg, logger)
	case "anthropic":
		return NewAnthropicClient(clientCfg, logger)
	default:
		return nil, fmt.Errorf("unknown AI provider %q", cfg.Provider)
	}
}
