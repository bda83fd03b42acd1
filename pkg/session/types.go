// Package session defines the negotiation session's data model: the unit
// of work the orchestration engine drives through its state machine.
package session

import "fmt"

// State is one node in the session's state DAG (spec.md §4.6). Transitions
// are validated by CanTransition; there are no back-edges.
type State string

const (
	StateCreated       State = "CREATED"
	StateFormulating   State = "FORMULATING"
	StateFormulated    State = "FORMULATED"
	StateEncoding      State = "ENCODING"
	StateOffering      State = "OFFERING"
	StateBarrierWaiting State = "BARRIER_WAITING"
	StateSynthesising  State = "SYNTHESISING"
	StateCompleted     State = "COMPLETED"
)

// forwardEdges enumerates the DAG's allowed transitions. Every non-terminal
// state may also jump directly to StateCompleted (cancellation or
// unrecoverable error), which is encoded separately in CanTransition.
var forwardEdges = map[State]State{
	StateCreated:        StateFormulating,
	StateFormulating:    StateFormulated,
	StateFormulated:     StateEncoding,
	StateEncoding:       StateOffering,
	StateOffering:       StateBarrierWaiting,
	StateBarrierWaiting: StateSynthesising,
	StateSynthesising:   StateCompleted,
}

// CanTransition reports whether from -> to is a legal edge in the DAG.
func CanTransition(from, to State) bool {
	if to == StateCompleted && from != StateCompleted {
		return true
	}
	return forwardEdges[from] == to
}

// IsTerminal reports whether a state has no further transitions.
func (s State) IsTerminal() bool { return s == StateCompleted }

// ParticipantState is the per-agent lifecycle within one session.
type ParticipantState string

const (
	ParticipantPending  ParticipantState = "pending"
	ParticipantOffered  ParticipantState = "offered"
	ParticipantTimedOut ParticipantState = "timed_out"
	ParticipantExited   ParticipantState = "exited"
)

// FormulatedDemand is the structured output of the Formulation skill.
type FormulatedDemand struct {
	Intent      string            `json:"intent"`
	Constraints []string          `json:"constraints,omitempty"`
	Preferences []string          `json:"preferences,omitempty"`
	Context     []string          `json:"context,omitempty"`
	Enrichments map[string]string `json:"enrichments,omitempty"`
}

// CombinedView joins every textual facet of the demand into one string,
// the third of the three demand views the resonance matcher scores against.
func (d FormulatedDemand) CombinedView() string {
	out := d.Intent
	for _, c := range d.Constraints {
		out += " " + c
	}
	for _, p := range d.Preferences {
		out += " " + p
	}
	for _, c := range d.Context {
		out += " " + c
	}
	return out
}

// ConstraintsView joins constraints and preferences, the second demand view.
func (d FormulatedDemand) ConstraintsView() string {
	out := ""
	for i, c := range d.Constraints {
		if i > 0 {
			out += " "
		}
		out += c
	}
	for _, p := range d.Preferences {
		if out != "" {
			out += " "
		}
		out += p
	}
	return out
}

// AgentParticipant is an agent selected for a specific session.
type AgentParticipant struct {
	AgentID     string
	DisplayName string
	Score       float64
	State       ParticipantState
	Confidence  *float64
}

// Offer is an agent's structured response. Immutable once received.
type Offer struct {
	AgentID      string   `json:"agent_id"`
	Text         string   `json:"text"`
	Confidence   float64  `json:"confidence"`
	Declined     bool     `json:"declined"`
	Capabilities []string `json:"capabilities,omitempty"`
	Constraints  []string `json:"constraints,omitempty"`
}

// ToolInvocation is one tool call the coordinator emitted in a round.
type ToolInvocation struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// ToolResult is the engine's dispatch outcome for one ToolInvocation.
type ToolResult struct {
	ToolName string `json:"tool_name"`
	Summary  string `json:"summary"`
	Error    string `json:"error,omitempty"`
}

// CoordinatorTurn is one observable turn of the central reasoning loop.
// Append-only, ordered by Round.
type CoordinatorTurn struct {
	Round       int              `json:"round"`
	Reasoning   string           `json:"reasoning"`
	ToolCalls   []ToolInvocation `json:"tool_calls"`
	ToolResults []ToolResult     `json:"tool_results"`
}

// SubNegotiationFinding is the structured result of a scoped sub-negotiation,
// folded back into the coordinator's next-round masked view (see
// MaskOffers in pkg/skills and the Open Question decision in DESIGN.md).
type SubNegotiationFinding struct {
	Topic         string   `json:"topic"`
	Agreement     string   `json:"agreement"`
	Disagreement  string   `json:"disagreement"`
	OpenQuestions []string `json:"open_questions"`
}

// PlanAssignment is one agent's role in the final plan.
type PlanAssignment struct {
	AgentID     string `json:"agent_id"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
}

// Plan is the terminal structured output of the coordinator skill.
type Plan struct {
	Summary     string           `json:"summary"`
	Assignments []PlanAssignment `json:"assignments"`
	OpenItems   []string         `json:"open_items,omitempty"`
}

// Snapshot is a read-only, defensively-copied view of a session handed to
// observers. The live *NegotiationSession stays exclusively owned by the
// engine task driving it.
type Snapshot struct {
	ID               string
	RequesterID      string
	RawDemand        string
	Formulated       *FormulatedDemand
	Participants     []AgentParticipant
	Offers           []Offer
	CoordinatorTurns []CoordinatorTurn
	Plan             *Plan
	State            State
	Cancelled        bool
	Err              error
}

// ErrIllegalTransition is returned by NegotiationSession.Transition when the
// requested edge does not exist in the state DAG.
type ErrIllegalTransition struct {
	From, To State
}

func (e *ErrIllegalTransition) Error() string {
	return fmt.Sprintf("session: illegal transition %s -> %s", e.From, e.To)
}
