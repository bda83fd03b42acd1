package engine

import (
	"context"
	stderrors "errors"
	"time"

	"go.opentelemetry.io/otel/attribute"

	negerrors "github.com/negotium-ai/negotium/pkg/errors"
	"github.com/negotium-ai/negotium/pkg/session"
	"github.com/negotium-ai/negotium/pkg/trace"
)

// cancelPollInterval is how often Negotiate checks sess.Cancelled() to
// propagate an external cancel into the run's context, so in-flight
// channel/model calls actually unblock rather than running to completion
// before the session notices it was cancelled.
const cancelPollInterval = 50 * time.Millisecond

// Negotiate drives a brand-new session end to end: Formulation, resonance
// selection, parallel Offer fan-out, the bounded Coordinator loop, and a
// terminal Plan. The returned session is always in StateCompleted — the
// DAG has no other terminal state — whether it got there by success,
// error, a per-session wall-clock timeout, or external cancellation. The
// returned trace.Chain is the session's complete gap-free audit log; a
// non-nil error is also recorded on the session itself via sess.Err().
func (e *Engine) Negotiate(ctx context.Context, requesterID, rawDemand string) (*session.NegotiationSession, *trace.Chain, error) {
	sess := session.New(requesterID, rawDemand)
	tr := trace.New(nil)

	if e.chains != nil {
		e.chains.register(sess.ID(), tr)
		defer e.chains.unregister(sess.ID())
	}

	runCtx, cancel := context.WithTimeout(ctx, time.Duration(e.cfg.SessionWallClockMS)*time.Millisecond)
	defer cancel()

	stopPoll := make(chan struct{})
	go watchForCancellation(sess, cancel, stopPoll)
	defer close(stopPoll)

	runCtx, span := startSpan(runCtx, sess.ID(), "engine.negotiate", attribute.String("requester_id", requesterID))
	defer span.End()

	err := e.run(runCtx, sess, tr)
	err = normalizeTerminalError(err, sess, runCtx)
	if err != nil {
		sess.SetError(err)
		tr.Append(trace.KindError, map[string]interface{}{"error": err.Error()})
		span.RecordError(err)
	}

	// Every non-terminal state may jump directly to COMPLETED; this is
	// always a legal edge regardless of which state the run stopped in.
	_ = sess.Transition(session.StateCompleted)

	e.emitTerminalEvent(sess, err)
	return sess, tr, err
}

// watchForCancellation polls sess.Cancelled() and cancels the run's
// context the moment it flips, so a Cancel() call reaches a terminal
// event even if the child task currently in flight never itself notices
// the cancellation (the spec's cancellation-propagation requirement).
func watchForCancellation(sess *session.NegotiationSession, cancel context.CancelFunc, stop <-chan struct{}) {
	ticker := time.NewTicker(cancelPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if sess.Cancelled() {
				cancel()
				return
			}
		}
	}
}

// normalizeTerminalError reclassifies a raw run error against what
// actually happened: an external cancellation always reports as
// CancelledError regardless of which lower-level error a child task
// happened to surface, and a context deadline not caused by cancellation
// reports as DeadlineExceededError.
func normalizeTerminalError(err error, sess *session.NegotiationSession, ctx context.Context) error {
	if err == nil {
		return nil
	}
	if sess.Cancelled() {
		return negerrors.NewCancelledError("negotiation")
	}
	if stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
		return negerrors.NewDeadlineExceededError("session", "wall_clock")
	}
	return err
}

func (e *Engine) run(ctx context.Context, sess *session.NegotiationSession, tr *trace.Chain) error {
	if err := e.runFormulation(ctx, sess, tr); err != nil {
		return err
	}

	demandViews, profileViews, participants, err := e.runResonance(ctx, sess, tr)
	if err != nil {
		return err
	}
	if sess.Cancelled() {
		return negerrors.NewCancelledError("negotiation")
	}

	if err := sess.Transition(session.StateOffering); err != nil {
		return err
	}
	demand := *sess.Formulated()
	e.runOfferFanOut(ctx, sess, tr, demand, demandViews, profileViews, participants)

	if err := sess.Transition(session.StateBarrierWaiting); err != nil {
		return err
	}
	e.publishBarrierComplete(sess)

	if sess.Cancelled() {
		return negerrors.NewCancelledError("negotiation")
	}
	if err := sess.Transition(session.StateSynthesising); err != nil {
		return err
	}

	plan, err := e.runCoordinatorLoop(ctx, sess, tr)
	if err != nil {
		return err
	}

	sess.SetPlan(*plan)
	tr.Append(trace.KindPlanEmitted, plan)
	e.publishPlanReady(sess, plan)

	return nil
}
