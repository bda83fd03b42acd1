// Package engine drives one session.NegotiationSession through its state
// DAG: Formulation, resonance-based participant selection, parallel Offer
// fan-out, and a bounded sequential Coordinator loop terminating in a
// Plan. It is the only package that calls pkg/skills directly — skills
// stay pure functions over typed input, the engine owns sequencing,
// concurrency, timeouts, and the event/trace side-channels.
package engine

import (
	"fmt"

	"github.com/negotium-ai/negotium/pkg/channel"
	"github.com/negotium-ai/negotium/pkg/config"
	"github.com/negotium-ai/negotium/pkg/encoder"
	"github.com/negotium-ai/negotium/pkg/eventbus"
	"github.com/negotium-ai/negotium/pkg/llms"
	"github.com/negotium-ai/negotium/pkg/registry"
	"github.com/negotium-ai/negotium/pkg/resonance"
)

// Engine is the orchestrator. One Engine may drive many concurrent
// sessions; all mutable per-run state lives in the run's own
// *session.NegotiationSession and trace.Chain, never on Engine itself.
type Engine struct {
	central  llms.Provider
	enc      encoder.Provider
	profiles *registry.ProfileRegistry
	ch       channel.Agent
	bus      *eventbus.Bus
	idx      *resonance.ProfileIndex // optional cache, may be nil
	chains   *ChainRegistry          // optional, enables drop-to-trace hookup
	cfg      config.EngineConfig
}

// New wires the engine's mandatory collaborators. Per spec, a coordinator
// dependency missing at construction time is a configuration error, not a
// panic discovered mid-negotiation: central, enc, profiles, ch, and bus
// are all required. idx and chains may be nil (no profile-vector cache,
// no dropped-event tracing, respectively).
func New(
	central llms.Provider,
	enc encoder.Provider,
	profiles *registry.ProfileRegistry,
	ch channel.Agent,
	bus *eventbus.Bus,
	idx *resonance.ProfileIndex,
	chains *ChainRegistry,
	cfg config.EngineConfig,
) (*Engine, error) {
	switch {
	case central == nil:
		return nil, fmt.Errorf("engine: central llms.Provider is required")
	case enc == nil:
		return nil, fmt.Errorf("engine: encoder.Provider is required")
	case profiles == nil:
		return nil, fmt.Errorf("engine: profile registry is required")
	case ch == nil:
		return nil, fmt.Errorf("engine: agent channel is required")
	case bus == nil:
		return nil, fmt.Errorf("engine: event bus is required")
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("engine: invalid config: %w", err)
	}

	return &Engine{
		central:  central,
		enc:      enc,
		profiles: profiles,
		ch:       ch,
		bus:      bus,
		idx:      idx,
		chains:   chains,
		cfg:      cfg,
	}, nil
}
