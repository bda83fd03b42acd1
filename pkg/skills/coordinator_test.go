package skills

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/negotium-ai/negotium/pkg/llms"
	"github.com/negotium-ai/negotium/pkg/session"
)

func TestRunCoordinatorReturnsToolCalls(t *testing.T) {
	p := &fakeProvider{generateReplies: []fakeGenerateReply{
		{text: "I need more info from alice.", calls: []llms.ToolCall{
			{Name: ToolAskAgent, Arguments: map[string]interface{}{"agent_id": "alice", "question": "what's your rate?"}},
		}},
	}}

	out, err := RunCoordinator(context.Background(), p, CoordinatorInput{
		Demand: session.FormulatedDemand{Intent: "book a venue"},
		Round:  1,
	})
	require.NoError(t, err)
	assert.Nil(t, out.Plan)
	require.Len(t, out.ToolCalls, 1)
	assert.Equal(t, ToolAskAgent, out.ToolCalls[0].Name)
}

func TestRunCoordinatorExtractsPlanAndIgnoresFurtherCalls(t *testing.T) {
	plan := map[string]interface{}{
		"summary": "booked the venue",
		"assignments": []map[string]interface{}{
			{"agent_id": "alice", "display_name": "Alice", "role": "venue"},
		},
	}
	p := &fakeProvider{generateReplies: []fakeGenerateReply{
		{text: "final plan ready", calls: []llms.ToolCall{
			{Name: ToolOutputPlan, Arguments: map[string]interface{}{"plan": plan}},
			{Name: ToolAskAgent, Arguments: map[string]interface{}{"agent_id": "bob", "question": "ignored?"}},
		}},
	}}

	out, err := RunCoordinator(context.Background(), p, CoordinatorInput{Round: 2, Restricted: true})
	require.NoError(t, err)
	require.NotNil(t, out.Plan)
	assert.Equal(t, "booked the venue", out.Plan.Summary)
	assert.Empty(t, out.ToolCalls, "tool calls after output_plan in the same turn must be ignored")
}

func TestRunCoordinatorRejectsPlanMissingSummary(t *testing.T) {
	p := &fakeProvider{generateReplies: []fakeGenerateReply{
		{text: "done", calls: []llms.ToolCall{
			{Name: ToolOutputPlan, Arguments: map[string]interface{}{"plan": map[string]interface{}{"summary": ""}}},
		}},
	}}

	_, err := RunCoordinator(context.Background(), p, CoordinatorInput{ForceOutputPlanOnly: true})
	assert.Error(t, err)
}

func TestMaskOffersRedactsTextToFirstWords(t *testing.T) {
	offers := []session.Offer{
		{AgentID: "alice", Text: "I can absolutely host fifty guests with a full catering package included at a great price", Confidence: 0.9},
		{AgentID: "bob", Text: "Not something I handle", Confidence: 0.1, Declined: true},
	}
	masked := MaskOffers(offers, nil)

	assert.Contains(t, masked, "alice")
	assert.Contains(t, masked, "high")
	assert.NotContains(t, masked, "great price", "full offer text must never appear in the masked view")
	assert.Contains(t, masked, "bob")
	assert.Contains(t, masked, "declined")
	assert.Contains(t, masked, "low")
}

func TestMaskOffersFoldsDiscoveryFindings(t *testing.T) {
	masked := MaskOffers(nil, map[string]session.SubNegotiationFinding{
		"catering": {Agreement: "both can serve 50", Disagreement: "pricing differs"},
	})
	assert.Contains(t, masked, "[discovery:catering]")
	assert.Contains(t, masked, "both can serve 50")
}
