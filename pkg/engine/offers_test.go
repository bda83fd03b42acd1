package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/negotium-ai/negotium/pkg/config"
	"github.com/negotium-ai/negotium/pkg/registry"
	"github.com/negotium-ai/negotium/pkg/resonance"
	"github.com/negotium-ai/negotium/pkg/session"
	"github.com/negotium-ai/negotium/pkg/trace"
)

func newTestEngine(t *testing.T, ch *fakeChannel, profiles *registry.ProfileRegistry) *Engine {
	t.Helper()
	cfg := config.EngineConfig{}
	cfg.SetDefaults()
	require.NoError(t, cfg.Validate())
	return &Engine{
		central:  &fakeProvider{},
		enc:      fakeEncoder{},
		profiles: profiles,
		ch:       ch,
		bus:      newTestBus(),
		cfg:      cfg,
	}
}

func TestRunOfferFanOutRecordsSuccessfulOffer(t *testing.T) {
	profiles := registry.NewProfileRegistry()
	require.NoError(t, profiles.Set(registry.AgentProfile{ID: "alice", DisplayName: "Alice", Capabilities: []string{"venue booking"}}))
	ch := newFakeChannel()
	ch.profiles["alice"] = registry.AgentProfile{ID: "alice", Capabilities: []string{"venue booking"}}
	ch.replies["alice"] = `{"offer_text": "I can host 50 guests", "confidence": 0.8, "declined": false}`

	eng := newTestEngine(t, ch, profiles)
	sess := session.New("req-1", "need a venue")
	sess.SetFormulated(session.FormulatedDemand{Intent: "book a venue"})
	participants := []session.AgentParticipant{{AgentID: "alice", DisplayName: "Alice", State: session.ParticipantPending}}
	sess.SetParticipants(participants)
	tr := trace.New(nil)

	demandViews := resonance.DemandViews{Intent: []float32{1, 0}, Constraints: []float32{1, 0}, Combined: []float32{1, 0}}
	profileViews := map[string]resonance.ProfileViews{"alice": {Capabilities: []float32{1, 0}}}

	eng.runOfferFanOut(context.Background(), sess, tr, *sess.Formulated(), demandViews, profileViews, participants)

	offers := sess.Offers()
	require.Len(t, offers, 1)
	assert.Equal(t, "alice", offers[0].AgentID)
	assert.False(t, offers[0].Declined)

	updated := sess.Participants()
	require.Len(t, updated, 1)
	assert.Equal(t, session.ParticipantOffered, updated[0].State)
}

func TestRunOfferFanOutRecordsTimeoutAsDeclinedOffer(t *testing.T) {
	profiles := registry.NewProfileRegistry()
	require.NoError(t, profiles.Set(registry.AgentProfile{ID: "bob", DisplayName: "Bob", Capabilities: []string{"catering"}}))
	ch := newFakeChannel()
	ch.profiles["bob"] = registry.AgentProfile{ID: "bob", Capabilities: []string{"catering"}}
	ch.errs["bob"] = assertError("connection refused")

	eng := newTestEngine(t, ch, profiles)
	sess := session.New("req-1", "need catering")
	sess.SetFormulated(session.FormulatedDemand{Intent: "book catering"})
	participants := []session.AgentParticipant{{AgentID: "bob", DisplayName: "Bob", State: session.ParticipantPending}}
	sess.SetParticipants(participants)
	tr := trace.New(nil)

	demandViews := resonance.DemandViews{Intent: []float32{0, 1}}
	profileViews := map[string]resonance.ProfileViews{"bob": {Capabilities: []float32{0, 1}}}

	eng.runOfferFanOut(context.Background(), sess, tr, *sess.Formulated(), demandViews, profileViews, participants)

	offers := sess.Offers()
	require.Len(t, offers, 1)
	assert.True(t, offers[0].Declined, "an unreachable agent must be recorded as a declined offer, not abort the session")

	updated := sess.Participants()
	require.Len(t, updated, 1)
	assert.Equal(t, session.ParticipantTimedOut, updated[0].State)
}

func TestRunOfferFanOutHandlesMultipleParticipantsIndependently(t *testing.T) {
	profiles := registry.NewProfileRegistry()
	ch := newFakeChannel()
	ch.profiles["alice"] = registry.AgentProfile{ID: "alice", Capabilities: []string{"venue"}}
	ch.replies["alice"] = `{"offer_text": "sure", "confidence": 0.7, "declined": false}`
	ch.profiles["carol"] = registry.AgentProfile{ID: "carol", Capabilities: []string{"catering"}}
	ch.errs["carol"] = assertError("timeout")

	eng := newTestEngine(t, ch, profiles)
	sess := session.New("req-1", "need stuff")
	sess.SetFormulated(session.FormulatedDemand{Intent: "book a venue and catering"})
	participants := []session.AgentParticipant{
		{AgentID: "alice", DisplayName: "Alice", State: session.ParticipantPending},
		{AgentID: "carol", DisplayName: "Carol", State: session.ParticipantPending},
	}
	sess.SetParticipants(participants)
	tr := trace.New(nil)

	demandViews := resonance.DemandViews{Intent: []float32{1, 0}, Constraints: []float32{1, 0}, Combined: []float32{1, 0}}
	profileViews := map[string]resonance.ProfileViews{
		"alice": {Capabilities: []float32{1, 0}},
		"carol": {Capabilities: []float32{1, 0}},
	}

	eng.runOfferFanOut(context.Background(), sess, tr, *sess.Formulated(), demandViews, profileViews, participants)

	offers := sess.Offers()
	require.Len(t, offers, 2, "both participants must get exactly one recorded offer each, success or failure")

	byAgent := make(map[string]session.Offer, len(offers))
	for _, o := range offers {
		byAgent[o.AgentID] = o
	}
	assert.False(t, byAgent["alice"].Declined)
	assert.True(t, byAgent["carol"].Declined)
}
