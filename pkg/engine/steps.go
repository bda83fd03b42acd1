package engine

import (
	"context"
	stderrors "errors"
	"time"

	"go.opentelemetry.io/otel/attribute"

	negerrors "github.com/negotium-ai/negotium/pkg/errors"
	"github.com/negotium-ai/negotium/pkg/eventbus"
	"github.com/negotium-ai/negotium/pkg/resonance"
	"github.com/negotium-ai/negotium/pkg/session"
	"github.com/negotium-ai/negotium/pkg/skills"
	"github.com/negotium-ai/negotium/pkg/trace"
)

// runFormulation moves CREATED -> FORMULATING -> FORMULATED, invoking the
// Formulation skill over the central provider.
func (e *Engine) runFormulation(ctx context.Context, sess *session.NegotiationSession, tr *trace.Chain) error {
	if err := sess.Transition(session.StateFormulating); err != nil {
		return err
	}

	spanCtx, span := startSpan(ctx, sess.ID(), "engine.formulation")
	demand, err := skills.Formulate(spanCtx, e.central, skills.FormulationInput{RawDemand: sess.RawDemand(), RequesterID: sess.RequesterID()})
	endSpan(span, err)
	if err != nil {
		return err
	}

	sess.SetFormulated(demand)
	if err := sess.Transition(session.StateFormulated); err != nil {
		return err
	}

	tr.Append(trace.KindFormulated, demand)
	e.bus.Publish(sess.ID(), eventbus.Event{
		EventType: eventbus.EventFormulationReady, NegotiationID: sess.ID(), Timestamp: time.Now(), Data: demand,
	})
	return nil
}

// runResonance moves FORMULATED -> ENCODING, batch-encodes the demand and
// every candidate profile (through the optional ProfileIndex cache), and
// ranks candidates into the session's selected participant list. It does
// not itself transition out of ENCODING — the caller advances to OFFERING
// once it is ready to start the fan-out, keeping this step a pure
// "compute the selection" unit.
func (e *Engine) runResonance(ctx context.Context, sess *session.NegotiationSession, tr *trace.Chain) (resonance.DemandViews, map[string]resonance.ProfileViews, []session.AgentParticipant, error) {
	if err := sess.Transition(session.StateEncoding); err != nil {
		return resonance.DemandViews{}, nil, nil, err
	}

	profiles := e.profiles.All()
	spanCtx, span := startSpan(ctx, sess.ID(), "engine.resonance", attribute.Int("candidate_count", len(profiles)))
	demandViews, profileViewsList, err := resonance.BuildViews(spanCtx, e.enc, e.idx, *sess.Formulated(), profiles)
	endSpan(span, err)
	if err != nil {
		return resonance.DemandViews{}, nil, nil, err
	}

	rankings := resonance.Match(demandViews, profileViewsList, resonance.MatchConfig{
		Threshold: e.cfg.SelectionThreshold,
		TopK:      e.cfg.SelectionTopK,
	})

	participants := make([]session.AgentParticipant, len(rankings))
	for i, r := range rankings {
		participants[i] = session.AgentParticipant{
			AgentID: r.AgentID, DisplayName: r.DisplayName, Score: r.Score, State: session.ParticipantPending,
		}
	}
	sess.SetParticipants(participants)

	profileViewsByID := make(map[string]resonance.ProfileViews, len(profileViewsList))
	for _, pv := range profileViewsList {
		profileViewsByID[pv.AgentID] = pv
	}

	tr.Append(trace.KindResonanceComputed, map[string]interface{}{"candidates": len(profiles), "selected": len(participants)})
	selected := make([]map[string]interface{}, len(participants))
	for i, p := range participants {
		selected[i] = map[string]interface{}{"agent_id": p.AgentID, "display_name": p.DisplayName, "score": p.Score}
	}
	e.bus.Publish(sess.ID(), eventbus.Event{
		EventType: eventbus.EventResonanceActivated, NegotiationID: sess.ID(), Timestamp: time.Now(),
		Data: selected,
	})

	return demandViews, profileViewsByID, participants, nil
}

// emitTerminalEvent publishes exactly one of the three terminal event
// types, classifying a cancellation distinctly from any other failure.
func (e *Engine) emitTerminalEvent(sess *session.NegotiationSession, err error) {
	ev := eventbus.Event{NegotiationID: sess.ID(), Timestamp: time.Now()}

	switch {
	case err == nil:
		ev.EventType = eventbus.EventNegotiationCompleted
		ev.Data = sess.Plan()
	case isCancelled(err):
		ev.EventType = eventbus.EventNegotiationCancelled
		ev.Data = err.Error()
	default:
		ev.EventType = eventbus.EventNegotiationError
		ev.Data = err.Error()
	}
	e.bus.Publish(sess.ID(), ev)
}

func isCancelled(err error) bool {
	var cancelled *negerrors.CancelledError
	return stderrors.As(err, &cancelled)
}

func (e *Engine) publishBarrierComplete(sess *session.NegotiationSession) {
	var offered, timedOut, exited int
	for _, p := range sess.Participants() {
		switch p.State {
		case session.ParticipantOffered:
			offered++
		case session.ParticipantTimedOut:
			timedOut++
		case session.ParticipantExited:
			exited++
		}
	}
	e.bus.Publish(sess.ID(), eventbus.Event{
		EventType: eventbus.EventBarrierComplete, NegotiationID: sess.ID(), Timestamp: time.Now(),
		Data: map[string]interface{}{"offered": offered, "timed_out": timedOut, "exited": exited},
	})
}

func (e *Engine) publishPlanReady(sess *session.NegotiationSession, plan *session.Plan) {
	e.bus.Publish(sess.ID(), eventbus.Event{
		EventType: eventbus.EventPlanReady, NegotiationID: sess.ID(), Timestamp: time.Now(), Data: plan,
	})
}
