package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/negotium-ai/negotium/pkg/llms"
	"github.com/negotium-ai/negotium/pkg/registry"
	"github.com/negotium-ai/negotium/pkg/session"
	"github.com/negotium-ai/negotium/pkg/skills"
	"github.com/negotium-ai/negotium/pkg/trace"
)

func TestDispatchAskAgentRejectsUnknownAgent(t *testing.T) {
	ch := newFakeChannel()
	eng := newTestEngine(t, ch, registry.NewProfileRegistry())

	tc := session.ToolInvocation{Name: skills.ToolAskAgent, Arguments: map[string]interface{}{"agent_id": "ghost", "question": "rate?"}}
	res := eng.dispatchAskAgent(context.Background(), tc)
	assert.NotEmpty(t, res.Error)
}

func TestDispatchAskAgentNoOpOnEmptyQuestion(t *testing.T) {
	ch := newFakeChannel()
	eng := newTestEngine(t, ch, registry.NewProfileRegistry())

	tc := session.ToolInvocation{Name: skills.ToolAskAgent, Arguments: map[string]interface{}{"agent_id": "alice", "question": ""}}
	res := eng.dispatchAskAgent(context.Background(), tc)
	assert.Empty(t, res.Error)
	assert.Contains(t, res.Summary, "no-op")
}

func TestDispatchAskAgentReturnsReply(t *testing.T) {
	ch := newFakeChannel()
	ch.profiles["alice"] = registry.AgentProfile{ID: "alice"}
	ch.replies["alice"] = "forty dollars an hour"
	eng := newTestEngine(t, ch, registry.NewProfileRegistry())

	tc := session.ToolInvocation{Name: skills.ToolAskAgent, Arguments: map[string]interface{}{"agent_id": "alice", "question": "what's your rate?"}}
	res := eng.dispatchAskAgent(context.Background(), tc)
	assert.Empty(t, res.Error)
	assert.Equal(t, "forty dollars an hour", res.Summary)
}

func TestDispatchStartDiscoveryRejectsNonSubsetParticipants(t *testing.T) {
	eng := newTestEngine(t, newFakeChannel(), registry.NewProfileRegistry())
	sess := session.New("req-1", "demand")
	sess.SetParticipants([]session.AgentParticipant{{AgentID: "alice"}})

	tc := session.ToolInvocation{Name: skills.ToolStartDiscovery, Arguments: map[string]interface{}{
		"topic":           "pricing",
		"participant_ids": []interface{}{"alice", "mallory"},
	}}
	res := eng.dispatchStartDiscovery(context.Background(), sess, tc, map[string]session.SubNegotiationFinding{})
	assert.NotEmpty(t, res.Error)
}

func TestDispatchStartDiscoveryRunsSubNegotiationOverScopedOffers(t *testing.T) {
	eng := newTestEngine(t, newFakeChannel(), registry.NewProfileRegistry())
	eng.central = &fakeProvider{structuredReplies: []string{`{"agreement": "both agree on price", "disagreement": "", "open_questions": []}`}}
	sess := session.New("req-1", "demand")
	sess.SetParticipants([]session.AgentParticipant{{AgentID: "alice"}, {AgentID: "bob"}})
	sess.RecordOffer(session.Offer{AgentID: "alice", Text: "I can do 50"})
	sess.RecordOffer(session.Offer{AgentID: "bob", Text: "I can do 40"})

	discoveries := map[string]session.SubNegotiationFinding{}
	tc := session.ToolInvocation{Name: skills.ToolStartDiscovery, Arguments: map[string]interface{}{
		"topic":           "pricing",
		"participant_ids": []interface{}{"alice", "bob"},
	}}
	res := eng.dispatchStartDiscovery(context.Background(), sess, tc, discoveries)
	require.Empty(t, res.Error)
	require.Contains(t, discoveries, "pricing")
	assert.Equal(t, "both agree on price", discoveries["pricing"].Agreement)
}

func TestDispatchRecurseOnGapExhaustsBudget(t *testing.T) {
	eng := newTestEngine(t, newFakeChannel(), registry.NewProfileRegistry())
	eng.cfg.RecursionMaxDepth = 1
	sess := session.New("req-1", "demand")
	discoveries := map[string]session.SubNegotiationFinding{}
	depth := 1 // already at budget

	tc := session.ToolInvocation{Name: skills.ToolRecurseOnGap, Arguments: map[string]interface{}{"description": "clarify timeline"}}
	res := eng.dispatchRecurseOnGap(context.Background(), sess, tc, discoveries, &depth)
	assert.Contains(t, res.Error, "recursion depth exhausted")
}

func TestDispatchRecurseOnGapResolvesGapAndIncrementsDepth(t *testing.T) {
	eng := newTestEngine(t, newFakeChannel(), registry.NewProfileRegistry())
	eng.central = &fakeProvider{structuredReplies: []string{`{"agreement": "timeline fits", "disagreement": "", "open_questions": []}`}}
	eng.cfg.RecursionMaxDepth = 2
	sess := session.New("req-1", "demand")
	discoveries := map[string]session.SubNegotiationFinding{}
	depth := 0

	tc := session.ToolInvocation{Name: skills.ToolRecurseOnGap, Arguments: map[string]interface{}{"description": "clarify timeline"}}
	res := eng.dispatchRecurseOnGap(context.Background(), sess, tc, discoveries, &depth)
	require.Empty(t, res.Error)
	assert.Equal(t, 1, depth)
	assert.Contains(t, discoveries, "clarify timeline")
}

func TestDispatchUnknownToolReturnsError(t *testing.T) {
	eng := newTestEngine(t, newFakeChannel(), registry.NewProfileRegistry())
	sess := session.New("req-1", "demand")
	res := eng.dispatchTool(context.Background(), sess, session.ToolInvocation{Name: "do_something_unsupported"}, map[string]session.SubNegotiationFinding{}, new(int))
	assert.Contains(t, res.Error, "unknown tool")
}

func TestRunCoordinatorLoopReturnsPlanFromFirstRound(t *testing.T) {
	eng := newTestEngine(t, newFakeChannel(), registry.NewProfileRegistry())
	plan := map[string]interface{}{
		"summary":     "booked the venue",
		"assignments": []map[string]interface{}{{"agent_id": "alice", "display_name": "Alice", "role": "venue"}},
	}
	eng.central = &fakeProvider{generateReplies: []fakeGenerateReply{
		{text: "done", calls: []llms.ToolCall{{Name: skills.ToolOutputPlan, Arguments: map[string]interface{}{"plan": plan}}}},
	}}
	sess := session.New("req-1", "demand")
	sess.SetFormulated(session.FormulatedDemand{Intent: "book a venue"})
	tr := trace.New(nil)

	out, err := eng.runCoordinatorLoop(context.Background(), sess, tr)
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, "booked the venue", out.Summary)
	assert.Equal(t, 1, tr.Len())
}

func TestRunCoordinatorLoopForcesOutputOnlyPastRoundBudget(t *testing.T) {
	eng := newTestEngine(t, newFakeChannel(), registry.NewProfileRegistry())
	eng.cfg.MaxCoordinatorRounds = 1
	// Round 1 asks a question instead of planning; round 2 is forced to
	// output_plan-only and still fails to produce one, which must surface
	// as a fatal internal-invariant error rather than looping forever.
	eng.central = &fakeProvider{generateReplies: []fakeGenerateReply{
		{text: "need more info", calls: []llms.ToolCall{{Name: skills.ToolAskAgent, Arguments: map[string]interface{}{"agent_id": "alice", "question": "rate?"}}}},
		{text: "still thinking", calls: nil},
	}}
	ch := newFakeChannel()
	ch.profiles["alice"] = registry.AgentProfile{ID: "alice"}
	ch.replies["alice"] = "fifty dollars"
	eng.ch = ch

	sess := session.New("req-1", "demand")
	sess.SetFormulated(session.FormulatedDemand{Intent: "book a venue"})
	tr := trace.New(nil)

	_, err := eng.runCoordinatorLoop(context.Background(), sess, tr)
	require.Error(t, err)
}

func TestRunCoordinatorLoopReturnsCancelledWhenSessionCancelled(t *testing.T) {
	eng := newTestEngine(t, newFakeChannel(), registry.NewProfileRegistry())
	sess := session.New("req-1", "demand")
	sess.SetFormulated(session.FormulatedDemand{Intent: "book a venue"})
	sess.Cancel()
	tr := trace.New(nil)

	_, err := eng.runCoordinatorLoop(context.Background(), sess, tr)
	require.Error(t, err)
	assert.True(t, isCancelled(err))
}
