// Package trace implements the append-only, gap-free audit log kept per
// negotiation session (spec.md's TraceChain / invariant I6).
package trace

import (
	"sync"
	"time"
)

// EntryKind enumerates the closed set of trace-chain entry kinds.
type EntryKind string

const (
	KindFormulated        EntryKind = "formulated"
	KindResonanceComputed EntryKind = "resonance_computed"
	KindOfferReceived     EntryKind = "offer_received"
	KindCoordinatorRound  EntryKind = "coordinator_round"
	KindPlanEmitted       EntryKind = "plan_emitted"
	KindError             EntryKind = "error"
	KindEntryDropped      EntryKind = "entry_dropped"
)

// Entry is one gap-free, sequence-numbered record in a session's chain.
type Entry struct {
	Sequence  int         `json:"sequence"`
	Timestamp time.Time   `json:"timestamp"`
	Kind      EntryKind   `json:"kind"`
	Payload   interface{} `json:"payload,omitempty"`
}

// Chain is the append-only log for a single session. Never rewritten: once
// appended, an Entry's Sequence and Kind are immutable.
type Chain struct {
	mu      sync.RWMutex
	entries []Entry
	nowFunc func() time.Time
}

// New creates an empty chain. nowFunc defaults to time.Now; tests may
// inject a deterministic clock.
func New(nowFunc func() time.Time) *Chain {
	if nowFunc == nil {
		nowFunc = time.Now
	}
	return &Chain{nowFunc: nowFunc}
}

// Append adds the next gapless entry and returns it.
func (c *Chain) Append(kind EntryKind, payload interface{}) Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := Entry{
		Sequence:  len(c.entries),
		Timestamp: c.nowFunc(),
		Kind:      kind,
		Payload:   payload,
	}
	c.entries = append(c.entries, e)
	return e
}

// Entries returns a snapshot copy of the chain so far, in sequence order.
func (c *Chain) Entries() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Len returns the number of entries appended so far.
func (c *Chain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
