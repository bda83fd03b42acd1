package llms

import (
	"fmt"

	"github.com/negotium-ai/negotium/pkg/config"
	"github.com/negotium-ai/negotium/pkg/registry"
)

// Registry manages named Provider instances, mirroring the teacher's
// BaseRegistry-backed LLMRegistry/EmbedderRegistry convention.
type Registry struct {
	*registry.BaseRegistry[Provider]
}

func NewRegistry() *Registry {
	return &Registry{BaseRegistry: registry.NewBaseRegistry[Provider]()}
}

func (r *Registry) RegisterProvider(name string, p Provider) error {
	if name == "" {
		return fmt.Errorf("llm: provider name cannot be empty")
	}
	if p == nil {
		return fmt.Errorf("llm: provider cannot be nil")
	}
	return r.Register(name, p)
}

// CreateFromConfig constructs and registers a provider from config.
func (r *Registry) CreateFromConfig(name string, cfg *config.LLMProviderConfig) (Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("llm: config cannot be nil")
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("llm: invalid config: %w", err)
	}

	var provider Provider
	var err error
	switch cfg.Type {
	case "openai":
		provider, err = NewOpenAIProvider(cfg)
	case "anthropic":
		provider, err = NewAnthropicProvider(cfg)
	case "ollama":
		provider, err = NewOllamaProvider(cfg)
	default:
		return nil, fmt.Errorf("llm: unsupported type %q", cfg.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("llm: create provider: %w", err)
	}
	if err := r.RegisterProvider(name, provider); err != nil {
		return nil, err
	}
	return provider, nil
}

func (r *Registry) GetProvider(name string) (Provider, error) {
	p, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("llm: provider %q not found", name)
	}
	return p, nil
}
