package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// NegotiationSession is the unit of work the engine drives through the
// state DAG. Exclusively owned by the engine task running it: all mutation
// methods below are intended to be called only from that one goroutine
// (the coordinator loop is strictly sequential; offer fan-out writes land
// through RecordOffer, which does take its own lock since offer tasks run
// concurrently and report back to the same session). Read-only Snapshot()
// calls are safe from any goroutine.
type NegotiationSession struct {
	mu sync.RWMutex

	id          string
	requesterID string
	rawDemand   string
	createdAt   time.Time
	updatedAt   time.Time

	formulated   *FormulatedDemand
	participants []AgentParticipant
	offers       []Offer
	turns        []CoordinatorTurn
	plan         *Plan

	state     State
	cancelled bool
	err       error
}

// New creates a session in StateCreated with a freshly generated id.
func New(requesterID, rawDemand string) *NegotiationSession {
	now := time.Now()
	return &NegotiationSession{
		id:          uuid.NewString(),
		requesterID: requesterID,
		rawDemand:   rawDemand,
		createdAt:   now,
		updatedAt:   now,
		state:       StateCreated,
	}
}

// ---------- read-only accessors (safe from any goroutine) ----------

func (s *NegotiationSession) ID() string { return s.id }

func (s *NegotiationSession) RequesterID() string { return s.requesterID }

func (s *NegotiationSession) RawDemand() string { return s.rawDemand }

func (s *NegotiationSession) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *NegotiationSession) Cancelled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cancelled
}

func (s *NegotiationSession) Formulated() *FormulatedDemand {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.formulated == nil {
		return nil
	}
	cp := *s.formulated
	return &cp
}

func (s *NegotiationSession) Participants() []AgentParticipant {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]AgentParticipant, len(s.participants))
	copy(out, s.participants)
	return out
}

func (s *NegotiationSession) Offers() []Offer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Offer, len(s.offers))
	copy(out, s.offers)
	return out
}

func (s *NegotiationSession) CoordinatorTurns() []CoordinatorTurn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]CoordinatorTurn, len(s.turns))
	copy(out, s.turns)
	return out
}

func (s *NegotiationSession) Plan() *Plan {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.plan
}

// Snapshot returns a fully defensive-copied, read-only view for observers.
func (s *NegotiationSession) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var formulated *FormulatedDemand
	if s.formulated != nil {
		cp := *s.formulated
		formulated = &cp
	}
	participants := make([]AgentParticipant, len(s.participants))
	copy(participants, s.participants)
	offers := make([]Offer, len(s.offers))
	copy(offers, s.offers)
	turns := make([]CoordinatorTurn, len(s.turns))
	copy(turns, s.turns)

	return Snapshot{
		ID:               s.id,
		RequesterID:      s.requesterID,
		RawDemand:        s.rawDemand,
		Formulated:       formulated,
		Participants:     participants,
		Offers:           offers,
		CoordinatorTurns: turns,
		Plan:             s.plan,
		State:            s.state,
		Cancelled:        s.cancelled,
		Err:              s.err,
	}
}

// ---------- engine-owned mutation methods ----------

// Transition moves the session to a new state, validating the edge against
// the DAG (invariant I1). It refuses to move a terminal session anywhere.
func (s *NegotiationSession) Transition(to State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.IsTerminal() {
		return &ErrIllegalTransition{From: s.state, To: to}
	}
	if !CanTransition(s.state, to) {
		return &ErrIllegalTransition{From: s.state, To: to}
	}
	s.state = to
	s.updatedAt = time.Now()
	return nil
}

// SetFormulated stores the Formulation skill's output.
func (s *NegotiationSession) SetFormulated(d FormulatedDemand) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.formulated = &d
	s.updatedAt = time.Now()
}

// SetParticipants stores the resonance matcher's selection.
func (s *NegotiationSession) SetParticipants(participants []AgentParticipant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.participants = make([]AgentParticipant, len(participants))
	copy(s.participants, participants)
	s.updatedAt = time.Now()
}

// SetParticipantState updates one participant's per-agent terminal state
// (invariant I2: set exactly once per participant).
func (s *NegotiationSession) SetParticipantState(agentID string, state ParticipantState, confidence *float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.participants {
		if s.participants[i].AgentID == agentID {
			s.participants[i].State = state
			s.participants[i].Confidence = confidence
			break
		}
	}
	s.updatedAt = time.Now()
}

// RecordOffer appends an offer (invariant I3: attributable to exactly one
// participant). Safe to call concurrently from multiple offer-fan-out
// goroutines; each call is independently locked.
func (s *NegotiationSession) RecordOffer(o Offer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offers = append(s.offers, o)
	s.updatedAt = time.Now()
}

// AppendCoordinatorTurn appends the next round's turn (invariant I4: round
// index strictly increasing, enforced by the engine's loop counter, not
// re-validated here since the engine is the turn's sole author).
func (s *NegotiationSession) AppendCoordinatorTurn(t CoordinatorTurn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, t)
	s.updatedAt = time.Now()
}

// SetPlan stores the terminal plan.
func (s *NegotiationSession) SetPlan(p Plan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plan = &p
	s.updatedAt = time.Now()
}

// SetError records a fatal error without itself transitioning state; the
// caller still must call Transition(StateCompleted).
func (s *NegotiationSession) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
	s.updatedAt = time.Now()
}

// Err returns the session's fatal error, if any.
func (s *NegotiationSession) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// Cancel flips the cancellation flag. The engine observes it via Cancelled()
// at its next suspension point and propagates cancellation to child tasks.
func (s *NegotiationSession) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled = true
	s.updatedAt = time.Now()
}
