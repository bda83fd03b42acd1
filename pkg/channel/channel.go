// Package channel abstracts how the engine talks to a participant agent:
// a single chat turn plus a profile lookup, behind one interface with two
// implementations (a shared-LLM default and an identity-provider-backed
// external variant). Messages use llms.Message rather than a standalone
// wire protocol type, since every implementation ultimately bottoms out
// in an llms.Provider call or an HTTP request built from the same shape.
package channel

import (
	"context"

	"github.com/negotium-ai/negotium/pkg/llms"
	"github.com/negotium-ai/negotium/pkg/registry"
)

// Agent is the engine's view of one participant: a chat turn scoped to
// that agent's identity, and a profile lookup for resonance matching and
// prompt synthesis.
type Agent interface {
	Chat(ctx context.Context, agentID string, messages []llms.Message) (string, error)
	Profile(ctx context.Context, agentID string) (registry.AgentProfile, error)
}

// systemPromptFor synthesizes a per-agent system message from its profile,
// shared by both channel implementations so an external agent's model-
// facing framing stays consistent with the default channel's.
func systemPromptFor(p registry.AgentProfile) string {
	prompt := "You are " + p.DisplayName + ", an agent participating in a multi-agent negotiation.\n"
	if len(p.Capabilities) > 0 {
		prompt += "Your capabilities: "
		for i, c := range p.Capabilities {
			if i > 0 {
				prompt += "; "
			}
			prompt += c
		}
		prompt += "\n"
	}
	if len(p.Context) > 0 {
		prompt += "Your context: "
		for i, c := range p.Context {
			if i > 0 {
				prompt += "; "
			}
			prompt += c
		}
		prompt += "\n"
	}
	prompt += "Only claim capabilities you actually have. Decline plainly when a request falls outside them."
	return prompt
}
