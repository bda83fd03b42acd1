package skills

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/negotium-ai/negotium/pkg/llms"
	"github.com/negotium-ai/negotium/pkg/registry"
	"github.com/negotium-ai/negotium/pkg/resonance"
	"github.com/negotium-ai/negotium/pkg/session"
)

type fakeAgentChannel struct {
	profile registry.AgentProfile
	reply   string
}

func (f *fakeAgentChannel) Chat(ctx context.Context, agentID string, messages []llms.Message) (string, error) {
	return f.reply, nil
}

func (f *fakeAgentChannel) Profile(ctx context.Context, agentID string) (registry.AgentProfile, error) {
	return f.profile, nil
}

func TestRequestOfferParsesResult(t *testing.T) {
	ch := &fakeAgentChannel{
		profile: registry.AgentProfile{ID: "alice", DisplayName: "Alice", Capabilities: []string{"venue booking"}},
		reply:   `{"offer_text": "I can host 50 guests", "confidence": 0.8, "declined": false, "capabilities": ["venue"], "constraints": []}`,
	}
	demandViews := resonance.DemandViews{Intent: []float32{1, 0}}
	profileViews := resonance.ProfileViews{Capabilities: []float32{1, 0}}

	offer, err := RequestOffer(context.Background(), ch, "alice", session.FormulatedDemand{}, demandViews, profileViews)
	require.NoError(t, err)
	assert.False(t, offer.Declined)
	assert.Equal(t, 0.8, offer.Confidence)
}

func TestRequestOfferForcesDeclineOnFabricationRisk(t *testing.T) {
	ch := &fakeAgentChannel{
		profile: registry.AgentProfile{ID: "bob", DisplayName: "Bob", Capabilities: []string{"unrelated skill"}},
		reply:   `{"offer_text": "sure, I can do that!", "confidence": 0.95, "declined": false}`,
	}
	// Orthogonal vectors: zero overlap between demand and this agent's capabilities.
	demandViews := resonance.DemandViews{Intent: []float32{1, 0}, Constraints: []float32{1, 0}, Combined: []float32{1, 0}}
	profileViews := resonance.ProfileViews{Capabilities: []float32{0, 1}}

	offer, err := RequestOffer(context.Background(), ch, "bob", session.FormulatedDemand{}, demandViews, profileViews)
	require.NoError(t, err)
	assert.True(t, offer.Declined, "zero capability overlap must force a decline regardless of model claim")
	assert.LessOrEqual(t, offer.Confidence, 0.2)
}

func TestRequestOfferClampsConfidenceToUnitInterval(t *testing.T) {
	ch := &fakeAgentChannel{
		profile: registry.AgentProfile{ID: "carol", Capabilities: []string{"x"}},
		reply:   `{"offer_text": "ok", "confidence": 1.7, "declined": false}`,
	}
	demandViews := resonance.DemandViews{Intent: []float32{1}}
	profileViews := resonance.ProfileViews{Capabilities: []float32{1}}

	offer, err := RequestOffer(context.Background(), ch, "carol", session.FormulatedDemand{}, demandViews, profileViews)
	require.NoError(t, err)
	assert.Equal(t, 1.0, offer.Confidence)
}
