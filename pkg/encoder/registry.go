package encoder

import (
	"fmt"

	"github.com/negotium-ai/negotium/pkg/config"
)

// New constructs the configured encoder provider. The engine holds exactly
// one of these; it is not a per-agent resource.
func New(cfg *config.EncoderProviderConfig) (Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("encoder: config cannot be nil")
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("encoder: invalid config: %w", err)
	}

	switch cfg.Type {
	case "openai":
		return NewOpenAIEncoder(cfg)
	case "ollama":
		return NewOllamaEncoder(cfg)
	default:
		return nil, fmt.Errorf("encoder: unsupported type %q", cfg.Type)
	}
}
