// Package eventbus delivers typed negotiation milestones to subscribers
// tagged by negotiation id, grounded on the teacher's
// InMemoryTaskService subscriber-map + buffered-channel pattern.
package eventbus

import (
	"sync"
	"time"
)

// EventType is one of the closed set of milestone names (spec.md §6).
type EventType string

const (
	EventFormulationReady     EventType = "formulation.ready"
	EventResonanceActivated   EventType = "resonance.activated"
	EventOfferReceived        EventType = "offer.received"
	EventBarrierComplete      EventType = "barrier.complete"
	EventCenterToolCall       EventType = "center.tool_call"
	EventPlanReady            EventType = "plan.ready"
	EventNegotiationCompleted EventType = "negotiation.completed"
	EventNegotiationError     EventType = "negotiation.error"
	EventNegotiationCancelled EventType = "negotiation.cancelled"
)

// Event is the uniform envelope delivered to subscribers.
type Event struct {
	EventType     EventType   `json:"event_type"`
	NegotiationID string      `json:"negotiation_id"`
	Timestamp     time.Time   `json:"timestamp"`
	Data          interface{} `json:"data,omitempty"`
}

// IsTerminal reports whether this event type ends a session's stream.
func (t EventType) IsTerminal() bool {
	return t == EventNegotiationCompleted || t == EventNegotiationError || t == EventNegotiationCancelled
}

const defaultBufferSize = 256

// DropHandler is notified when a subscriber's buffer was full and an event
// had to be dropped. The bus calls it synchronously from Publish so the
// caller can append a trace.KindEntryDropped entry (spec.md §4.5's chosen
// policy: drop-oldest-to-make-room, recorded in the trace chain).
type DropHandler func(negotiationID string, dropped Event)

// Bus is an in-memory, per-negotiation pub/sub with bounded per-subscriber
// buffers. A slow subscriber never blocks Publish.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string][]chan Event
	history     map[string][]Event
	bufferSize  int
	onDrop      DropHandler
}

// New creates a Bus. bufferSize<=0 uses the default of 256 per subscriber.
func New(bufferSize int, onDrop DropHandler) *Bus {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	return &Bus{
		subscribers: make(map[string][]chan Event),
		history:     make(map[string][]Event),
		bufferSize:  bufferSize,
		onDrop:      onDrop,
	}
}

// Subscribe registers for all future events on negotiationID. The returned
// func unsubscribes and closes the channel. A late joiner receives nothing
// retroactively — use Replay for history.
func (b *Bus) Subscribe(negotiationID string) (<-chan Event, func()) {
	ch := make(chan Event, b.bufferSize)

	b.mu.Lock()
	b.subscribers[negotiationID] = append(b.subscribers[negotiationID], ch)
	b.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			subs := b.subscribers[negotiationID]
			for i, sub := range subs {
				if sub == ch {
					b.subscribers[negotiationID] = append(subs[:i], subs[i+1:]...)
					close(ch)
					break
				}
			}
		})
	}
	return ch, unsubscribe
}

// Publish delivers ev to every current subscriber of negotiationID. A
// subscriber whose buffer is full is sent the newest event by first
// draining its oldest buffered entry (drop-oldest-to-make-room, the
// drained event reported once via onDrop) — the subscriber never blocks
// Publish.
func (b *Bus) Publish(negotiationID string, ev Event) {
	b.mu.Lock()
	b.history[negotiationID] = append(b.history[negotiationID], ev)
	subs := append([]chan Event(nil), b.subscribers[negotiationID]...)
	b.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
			select {
			case dropped := <-ch:
				if b.onDrop != nil {
					b.onDrop(negotiationID, dropped)
				}
			default:
			}
			select {
			case ch <- ev:
			default:
			}
		}
	}

	if ev.EventType.IsTerminal() {
		b.closeAll(negotiationID)
	}
}

// Replay returns every event published so far for negotiationID, in
// publish order. Unlike Subscribe, it serves history rather than a live
// feed — the optional replay mechanism mentioned in spec.md §4.5.
func (b *Bus) Replay(negotiationID string) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Event, len(b.history[negotiationID]))
	copy(out, b.history[negotiationID])
	return out
}

func (b *Bus) closeAll(negotiationID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subscribers[negotiationID] {
		close(ch)
	}
	delete(b.subscribers, negotiationID)
}
