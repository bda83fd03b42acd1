package engine

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"go.opentelemetry.io/otel/attribute"

	"github.com/negotium-ai/negotium/pkg/eventbus"
	"github.com/negotium-ai/negotium/pkg/resonance"
	"github.com/negotium-ai/negotium/pkg/session"
	"github.com/negotium-ai/negotium/pkg/skills"
	"github.com/negotium-ai/negotium/pkg/trace"
)

// offerResult carries one participant's outcome back to the single
// consuming goroutine, which is the only writer into the session and the
// only emitter of events/trace entries — keeping their ordering
// deterministic even though the offers themselves race to completion.
// Grounded on the teacher's workflowagent.runParallel's result/resultsChan
// pattern (errgroup.WithContext + a closer goroutine + a ranging
// consumer), generalized from "one event per sub-agent" to "one Offer
// skill call per selected participant".
type offerResult struct {
	agentID string
	offer   session.Offer
	err     error
}

// runOfferFanOut spins up one task per participant invoking the Offer
// skill over the composite channel, in parallel, each bounded by its own
// per-offer deadline. A participant whose call errors or times out is
// recorded as a declined offer rather than failing the whole session — a
// single unreachable agent must never sink an otherwise-viable
// negotiation. resultsChan is buffered to the full participant count so
// every task's send always lands immediately: a participant must never
// be left frozen at ParticipantPending because the handoff raced a
// cancelled context.
func (e *Engine) runOfferFanOut(ctx context.Context, sess *session.NegotiationSession, ch *trace.Chain, demand session.FormulatedDemand, demandViews resonance.DemandViews, profileViews map[string]resonance.ProfileViews, participants []session.AgentParticipant) {
	ctx, span := startSpan(ctx, sess.ID(), "engine.offer_fan_out", attribute.Int("participant_count", len(participants)))
	defer span.End()

	errGroup, errGroupCtx := errgroup.WithContext(ctx)
	resultsChan := make(chan offerResult, len(participants))

	for _, participant := range participants {
		p := participant
		errGroup.Go(func() error {
			offerCtx, cancel := context.WithTimeout(errGroupCtx, time.Duration(e.cfg.PerOfferTimeoutMS)*time.Millisecond)
			defer cancel()

			offer, err := skills.RequestOffer(offerCtx, e.ch, p.AgentID, demand, demandViews, profileViews[p.AgentID])
			resultsChan <- offerResult{agentID: p.AgentID, offer: offer, err: err}
			return nil // a single agent's failure never aborts the group
		})
	}

	go func() {
		_ = errGroup.Wait()
		close(resultsChan)
	}()

	for res := range resultsChan {
		e.recordOfferResult(sess, ch, res)
	}
}

// recordOfferResult folds one participant's outcome into the session,
// publishing the spec's single `offer.received` event shape
// ({agent_id, text, confidence, declined}) whether the offer succeeded or
// not. A failure caused by the session's own cancellation propagating
// down (context.Canceled) marks the participant ParticipantExited — it
// left because the negotiation ended, not because its own deadline
// expired — while any other failure (channel error, per-offer deadline)
// marks it ParticipantTimedOut.
func (e *Engine) recordOfferResult(sess *session.NegotiationSession, ch *trace.Chain, res offerResult) {
	offer := res.offer
	if res.err != nil {
		offer = session.Offer{AgentID: res.agentID, Declined: true, Text: fmt.Sprintf("no offer received: %v", res.err)}
		state := session.ParticipantTimedOut
		if stderrors.Is(res.err, context.Canceled) {
			state = session.ParticipantExited
		}
		sess.SetParticipantState(res.agentID, state, nil)
	} else {
		confidence := offer.Confidence
		sess.SetParticipantState(res.agentID, session.ParticipantOffered, &confidence)
	}

	sess.RecordOffer(offer)
	data := map[string]interface{}{
		"agent_id": offer.AgentID, "text": offer.Text, "confidence": offer.Confidence, "declined": offer.Declined,
	}
	e.bus.Publish(sess.ID(), eventbus.Event{
		EventType: eventbus.EventOfferReceived, NegotiationID: sess.ID(), Timestamp: time.Now(), Data: data,
	})
	ch.Append(trace.KindOfferReceived, data)
}
