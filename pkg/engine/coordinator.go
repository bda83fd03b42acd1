package engine

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	negerrors "github.com/negotium-ai/negotium/pkg/errors"
	"github.com/negotium-ai/negotium/pkg/eventbus"
	"github.com/negotium-ai/negotium/pkg/llms"
	"github.com/negotium-ai/negotium/pkg/session"
	"github.com/negotium-ai/negotium/pkg/skills"
	"github.com/negotium-ai/negotium/pkg/trace"
)

// runCoordinatorLoop drives the strictly sequential Coordinator skill
// across bounded rounds until it emits a Plan. Round 1 runs with the full
// tool set; rounds 2..MaxCoordinatorRounds are restricted (no discovery or
// recursion tools); any round beyond the budget is forced to output_plan
// only. The loop never parallelizes rounds or tool dispatch within a
// round, which is what keeps the at-most-one-concurrent-sub-negotiation
// invariant trivially true — there is never more than one round, and
// therefore never more than one start_discovery/recurse_on_gap call, in
// flight at a time.
func (e *Engine) runCoordinatorLoop(ctx context.Context, sess *session.NegotiationSession, tr *trace.Chain) (*session.Plan, error) {
	discoveries := make(map[string]session.SubNegotiationFinding)
	recursionDepth := 0
	round := 1

	for {
		if sess.Cancelled() {
			return nil, negerrors.NewCancelledError("coordinator_loop")
		}

		forceOutputOnly := round > e.cfg.MaxCoordinatorRounds

		demand := sess.Formulated()
		if demand == nil {
			return nil, negerrors.NewInternalInvariantError("formulated_demand_present", "coordinator loop entered before formulation completed")
		}

		in := skills.CoordinatorInput{
			Demand:              *demand,
			Turns:               sess.CoordinatorTurns(),
			Offers:              sess.Offers(),
			Discoveries:         discoveries,
			Round:               round,
			Restricted:          round > 1,
			ForceOutputPlanOnly: forceOutputOnly,
		}

		roundCtx, span := startSpan(ctx, sess.ID(), "engine.coordinator_round", attribute.Int("round", round), attribute.Bool("restricted", in.Restricted))
		out, err := skills.RunCoordinator(roundCtx, e.central, in)
		endSpan(span, err)
		if err != nil {
			return nil, err
		}

		if out.Plan != nil {
			turn := session.CoordinatorTurn{Round: round, Reasoning: out.Reasoning, ToolCalls: out.ToolCalls}
			sess.AppendCoordinatorTurn(turn)
			tr.Append(trace.KindCoordinatorRound, turn)
			return out.Plan, nil
		}
		if forceOutputOnly {
			return nil, negerrors.NewInternalInvariantError("coordinator_round_budget", "forced output_plan round did not yield a plan")
		}

		toolResults := make([]session.ToolResult, 0, len(out.ToolCalls))
		for _, tc := range out.ToolCalls {
			res := e.dispatchTool(ctx, sess, tc, discoveries, &recursionDepth)
			toolResults = append(toolResults, res)
			resultSummary := res.Summary
			if resultSummary == "" && res.Error != "" {
				resultSummary = res.Error
			}
			e.bus.Publish(sess.ID(), eventbus.Event{
				EventType: eventbus.EventCenterToolCall, NegotiationID: sess.ID(), Timestamp: time.Now(),
				Data: map[string]interface{}{
					"round": round, "tool_name": tc.Name, "arguments": tc.Arguments, "result_summary": resultSummary,
				},
			})
		}

		turn := session.CoordinatorTurn{Round: round, Reasoning: out.Reasoning, ToolCalls: out.ToolCalls, ToolResults: toolResults}
		sess.AppendCoordinatorTurn(turn)
		tr.Append(trace.KindCoordinatorRound, turn)

		round++
	}
}

// dispatchTool executes one tool invocation the coordinator emitted,
// returning a ToolResult that folds back into its next round's context.
// An unknown agent id, an invalid discovery subset, or an exhausted
// recursion budget all produce a structured error result rather than
// aborting the session — the coordinator sees the failure and can adapt.
func (e *Engine) dispatchTool(ctx context.Context, sess *session.NegotiationSession, tc session.ToolInvocation, discoveries map[string]session.SubNegotiationFinding, recursionDepth *int) session.ToolResult {
	switch tc.Name {
	case skills.ToolAskAgent:
		return e.dispatchAskAgent(ctx, tc)
	case skills.ToolStartDiscovery:
		return e.dispatchStartDiscovery(ctx, sess, tc, discoveries)
	case skills.ToolRecurseOnGap:
		return e.dispatchRecurseOnGap(ctx, sess, tc, discoveries, recursionDepth)
	case skills.ToolRequestUserClarification:
		return e.dispatchRequestUserClarification(tc)
	default:
		return session.ToolResult{ToolName: tc.Name, Error: fmt.Sprintf("unknown tool %q", tc.Name)}
	}
}

func (e *Engine) dispatchAskAgent(ctx context.Context, tc session.ToolInvocation) session.ToolResult {
	agentID, _ := tc.Arguments["agent_id"].(string)
	question, _ := tc.Arguments["question"].(string)

	if question == "" {
		return session.ToolResult{ToolName: tc.Name, Summary: "no-op: empty question"}
	}
	if _, err := e.ch.Profile(ctx, agentID); err != nil {
		return session.ToolResult{ToolName: tc.Name, Error: fmt.Sprintf("unknown agent %q", agentID)}
	}

	reply, err := e.ch.Chat(ctx, agentID, []llms.Message{{Role: "user", Content: question}})
	if err != nil {
		return session.ToolResult{ToolName: tc.Name, Error: err.Error()}
	}
	return session.ToolResult{ToolName: tc.Name, Summary: reply}
}

func (e *Engine) dispatchStartDiscovery(ctx context.Context, sess *session.NegotiationSession, tc session.ToolInvocation, discoveries map[string]session.SubNegotiationFinding) session.ToolResult {
	topic, _ := tc.Arguments["topic"].(string)
	ids := toStringSlice(tc.Arguments["participant_ids"])

	if !allSelected(sess, ids) {
		return session.ToolResult{ToolName: tc.Name, Error: "participant_ids must be a subset of already-selected participants"}
	}

	finding, err := skills.RunSubNegotiation(ctx, e.central, skills.SubNegotiationInput{Topic: topic, Offers: filterOffers(sess.Offers(), ids)})
	if err != nil {
		return session.ToolResult{ToolName: tc.Name, Error: err.Error()}
	}
	discoveries[topic] = finding
	return session.ToolResult{ToolName: tc.Name, Summary: fmt.Sprintf("discovery %q complete", topic)}
}

func (e *Engine) dispatchRecurseOnGap(ctx context.Context, sess *session.NegotiationSession, tc session.ToolInvocation, discoveries map[string]session.SubNegotiationFinding, recursionDepth *int) session.ToolResult {
	if *recursionDepth >= e.cfg.RecursionMaxDepth {
		return session.ToolResult{ToolName: tc.Name, Error: "recursion depth exhausted"}
	}
	desc, _ := tc.Arguments["description"].(string)
	if desc == "" {
		return session.ToolResult{ToolName: tc.Name, Error: "description is required"}
	}

	*recursionDepth++
	finding, err := skills.RunSubNegotiation(ctx, e.central, skills.SubNegotiationInput{Topic: desc, Offers: sess.Offers()})
	if err != nil {
		return session.ToolResult{ToolName: tc.Name, Error: err.Error()}
	}
	discoveries[desc] = finding
	return session.ToolResult{ToolName: tc.Name, Summary: fmt.Sprintf("gap %q resolved", desc)}
}

func (e *Engine) dispatchRequestUserClarification(tc session.ToolInvocation) session.ToolResult {
	question, _ := tc.Arguments["question"].(string)
	// The engine runs without a live human in the loop; the question is
	// recorded for the requester rather than blocking the negotiation on
	// an answer that never arrives synchronously.
	return session.ToolResult{ToolName: tc.Name, Summary: "clarification requested from requester: " + question}
}

func allSelected(sess *session.NegotiationSession, ids []string) bool {
	selected := make(map[string]bool)
	for _, p := range sess.Participants() {
		selected[p.AgentID] = true
	}
	for _, id := range ids {
		if !selected[id] {
			return false
		}
	}
	return len(ids) > 0
}

func filterOffers(offers []session.Offer, ids []string) []session.Offer {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	out := make([]session.Offer, 0, len(ids))
	for _, o := range offers {
		if want[o.AgentID] {
			out = append(out, o)
		}
	}
	return out
}

func toStringSlice(v interface{}) []string {
	raw, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		if s, ok := r.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
