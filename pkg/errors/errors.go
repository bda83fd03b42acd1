// Package errors defines the negotiation engine's error taxonomy: one typed,
// unwrap-able struct per failure cause, so a caller can reconstruct a
// trace-chain entry or an error-event payload without re-parsing a message
// string. Grounded on the teacher's pkg/rag/errors.go convention (one
// struct per cause, Error()/Unwrap()/constructor triad).
package errors

import "fmt"

// ChannelUnavailableError — an agent's endpoint refused or timed out.
type ChannelUnavailableError struct {
	AgentID   string
	Operation string
	Err       error
}

func (e *ChannelUnavailableError) Error() string {
	return fmt.Sprintf("channel unavailable: agent %q %s: %v", e.AgentID, e.Operation, e.Err)
}
func (e *ChannelUnavailableError) Unwrap() error { return e.Err }

func NewChannelUnavailableError(agentID, operation string, err error) *ChannelUnavailableError {
	return &ChannelUnavailableError{AgentID: agentID, Operation: operation, Err: err}
}

// ModelError — an LLM call failed or returned unparseable output after
// bounded retry.
type ModelError struct {
	Provider  string
	Operation string
	Err       error
}

func (e *ModelError) Error() string {
	return fmt.Sprintf("model error: %s %s: %v", e.Provider, e.Operation, e.Err)
}
func (e *ModelError) Unwrap() error { return e.Err }

func NewModelError(provider, operation string, err error) *ModelError {
	return &ModelError{Provider: provider, Operation: operation, Err: err}
}

// SkillContractViolation — parsed output is missing required fields, or
// could not be parsed as structured output at all. Carries the raw text so
// callers can inspect what the model actually said.
type SkillContractViolation struct {
	Skill   string
	Reason  string
	RawText string
}

func (e *SkillContractViolation) Error() string {
	return fmt.Sprintf("skill contract violation: %s: %s", e.Skill, e.Reason)
}

func NewSkillContractViolation(skill, reason, rawText string) *SkillContractViolation {
	return &SkillContractViolation{Skill: skill, Reason: reason, RawText: rawText}
}

// ToolDispatchError — the coordinator invoked an unknown tool or passed
// invalid arguments.
type ToolDispatchError struct {
	ToolName string
	Reason   string
}

func (e *ToolDispatchError) Error() string {
	return fmt.Sprintf("tool dispatch error: %s: %s", e.ToolName, e.Reason)
}

func NewToolDispatchError(toolName, reason string) *ToolDispatchError {
	return &ToolDispatchError{ToolName: toolName, Reason: reason}
}

// DeadlineExceededError — a per-operation or session-level deadline passed.
type DeadlineExceededError struct {
	Scope     string // e.g. "offer:alice", "session"
	Operation string
}

func (e *DeadlineExceededError) Error() string {
	return fmt.Sprintf("deadline exceeded: %s during %s", e.Scope, e.Operation)
}

func NewDeadlineExceededError(scope, operation string) *DeadlineExceededError {
	return &DeadlineExceededError{Scope: scope, Operation: operation}
}

// CancelledError — the session or a child task was externally cancelled.
type CancelledError struct {
	Scope string
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("cancelled: %s", e.Scope)
}

func NewCancelledError(scope string) *CancelledError {
	return &CancelledError{Scope: scope}
}

// InternalInvariantError — a bug: something the engine assumes could never
// happen, happened. Always fatal to the session, always surfaced in the
// terminal event.
type InternalInvariantError struct {
	Invariant string
	Detail    string
}

func (e *InternalInvariantError) Error() string {
	return fmt.Sprintf("internal invariant violated: %s: %s", e.Invariant, e.Detail)
}

func NewInternalInvariantError(invariant, detail string) *InternalInvariantError {
	return &InternalInvariantError{Invariant: invariant, Detail: detail}
}
