package engine

import (
	"sync"

	"github.com/negotium-ai/negotium/pkg/eventbus"
	"github.com/negotium-ai/negotium/pkg/trace"
)

// ChainRegistry maps a live negotiation id to its trace.Chain so a single
// shared eventbus.Bus's DropHandler can append a KindEntryDropped entry to
// the right session's chain without the bus itself needing to know
// anything about sessions. Construct one per process and thread it into
// both eventbus.New (as the DropHandler's backing store) and engine.New.
type ChainRegistry struct {
	mu     sync.RWMutex
	chains map[string]*trace.Chain
}

func NewChainRegistry() *ChainRegistry {
	return &ChainRegistry{chains: make(map[string]*trace.Chain)}
}

func (r *ChainRegistry) register(id string, ch *trace.Chain) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chains[id] = ch
}

func (r *ChainRegistry) unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.chains, id)
}

// DropHandler returns an eventbus.DropHandler that records a dropped
// event against its negotiation's trace chain, per the event bus's
// documented drop-on-full policy.
func (r *ChainRegistry) DropHandler() eventbus.DropHandler {
	return func(negotiationID string, dropped eventbus.Event) {
		r.mu.RLock()
		ch, ok := r.chains[negotiationID]
		r.mu.RUnlock()
		if !ok {
			return
		}
		ch.Append(trace.KindEntryDropped, map[string]interface{}{"dropped_event_type": string(dropped.EventType)})
	}
}
