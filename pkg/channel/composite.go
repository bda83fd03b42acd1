package channel

import (
	"context"

	"github.com/negotium-ai/negotium/pkg/llms"
	"github.com/negotium-ai/negotium/pkg/registry"
)

// CompositeChannel routes each agent to DefaultChannel or ExternalChannel
// depending on whether its profile declares an ExternalIdentity, so the
// engine can treat the whole participant set as a single Agent regardless
// of how any individual agent is actually reached.
type CompositeChannel struct {
	profiles *registry.ProfileRegistry
	def      Agent
	ext      Agent // may be nil if no external channel is configured
}

// NewCompositeChannel builds a router over def (required) and ext
// (optional — nil means every agent is routed to def, including an agent
// whose profile declares an ExternalIdentity).
func NewCompositeChannel(profiles *registry.ProfileRegistry, def Agent, ext Agent) *CompositeChannel {
	return &CompositeChannel{profiles: profiles, def: def, ext: ext}
}

func (c *CompositeChannel) Profile(ctx context.Context, agentID string) (registry.AgentProfile, error) {
	return c.def.Profile(ctx, agentID)
}

func (c *CompositeChannel) Chat(ctx context.Context, agentID string, messages []llms.Message) (string, error) {
	p, err := c.Profile(ctx, agentID)
	if err != nil {
		return "", err
	}
	if p.ExternalIdentity != "" && c.ext != nil {
		return c.ext.Chat(ctx, agentID, messages)
	}
	return c.def.Chat(ctx, agentID, messages)
}
