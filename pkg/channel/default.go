package channel

import (
	"context"
	"fmt"

	negerrors "github.com/negotium-ai/negotium/pkg/errors"
	"github.com/negotium-ai/negotium/pkg/llms"
	"github.com/negotium-ai/negotium/pkg/ratelimit"
	"github.com/negotium-ai/negotium/pkg/registry"
)

// DefaultChannel routes every agent's chat turn through one shared central
// llms.Provider, synthesizing a per-agent system prompt from the profile
// registry at call time. It holds the registry by pointer so a later
// fsnotify-driven reload is visible on the very next Chat/Profile call
// without reconstructing the channel — the connectivity contract spec.md
// §9 requires.
type DefaultChannel struct {
	provider llms.Provider
	profiles *registry.ProfileRegistry
	limiter  *ratelimit.Limiter
}

// NewDefaultChannel wraps provider and profiles. limiter may be nil, in
// which case calls are unbounded.
func NewDefaultChannel(provider llms.Provider, profiles *registry.ProfileRegistry, limiter *ratelimit.Limiter) *DefaultChannel {
	if limiter == nil {
		limiter = ratelimit.New(0)
	}
	return &DefaultChannel{provider: provider, profiles: profiles, limiter: limiter}
}

func (c *DefaultChannel) Profile(ctx context.Context, agentID string) (registry.AgentProfile, error) {
	p, ok := c.profiles.Get(agentID)
	if !ok {
		return registry.AgentProfile{}, negerrors.NewChannelUnavailableError(agentID, "profile lookup", fmt.Errorf("agent not registered"))
	}
	return p, nil
}

// Chat prepends a freshly synthesized system message ahead of messages and
// sends the whole turn to the shared provider, gated by the channel's
// limiter so fan-out across many agents cannot exceed the provider's
// concurrent-request budget.
func (c *DefaultChannel) Chat(ctx context.Context, agentID string, messages []llms.Message) (string, error) {
	profile, err := c.Profile(ctx, agentID)
	if err != nil {
		return "", err
	}

	if err := c.limiter.Acquire(ctx); err != nil {
		return "", negerrors.NewChannelUnavailableError(agentID, "chat", err)
	}
	defer c.limiter.Release()

	turn := make([]llms.Message, 0, len(messages)+1)
	turn = append(turn, llms.Message{Role: "system", Content: systemPromptFor(profile)})
	turn = append(turn, messages...)

	text, _, _, err := c.provider.Generate(ctx, turn, nil)
	if err != nil {
		return "", negerrors.NewModelError(c.provider.GetModelName(), "chat:"+agentID, err)
	}
	return text, nil
}
