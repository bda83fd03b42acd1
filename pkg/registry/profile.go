package registry

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// AgentProfile is the biographical/capability record for one agent, the
// structured data an Offer skill and the resonance matcher both read.
// Display name is intentionally distinct from ID: never compare the two,
// never emit ID where a display name belongs.
type AgentProfile struct {
	ID           string   `yaml:"id" json:"id"`
	DisplayName  string   `yaml:"display_name" json:"display_name"`
	Capabilities []string `yaml:"capabilities" json:"capabilities"`
	Context      []string `yaml:"context" json:"context"`
	// ExternalIdentity, when set, declares this agent as reachable only
	// through an identity-provider-hosted endpoint rather than the shared
	// central LLM — the bound external identity an ExternalChannel
	// authenticates as on this agent's behalf.
	ExternalIdentity string `yaml:"external_identity,omitempty" json:"external_identity,omitempty"`
}

// ProfileRegistry holds the live set of agent profiles. It is the
// connectivity-contract object: a Channel built against a *ProfileRegistry
// must keep observing later edits, so this type is always handed around
// by pointer, never copied.
type ProfileRegistry struct {
	mu       sync.RWMutex
	profiles map[string]AgentProfile
	path     string
	watcher  *fsnotify.Watcher
}

// NewProfileRegistry creates an empty registry. Use Load or watch a file
// for the demo's hot-reload path.
func NewProfileRegistry() *ProfileRegistry {
	return &ProfileRegistry{profiles: make(map[string]AgentProfile)}
}

// Set registers or replaces a profile. Safe for concurrent use.
func (r *ProfileRegistry) Set(p AgentProfile) error {
	if p.ID == "" {
		return fmt.Errorf("profile: id cannot be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[p.ID] = p
	return nil
}

// Get retrieves a profile by its stable protocol id.
func (r *ProfileRegistry) Get(id string) (AgentProfile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.profiles[id]
	return p, ok
}

// All returns a snapshot slice of every registered profile. The slice is a
// copy; mutating it does not affect the registry.
func (r *ProfileRegistry) All() []AgentProfile {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]AgentProfile, 0, len(r.profiles))
	for _, p := range r.profiles {
		out = append(out, p)
	}
	return out
}

// LoadFile parses a YAML file of profiles and replaces the registry's
// contents in place (same map reference semantics preserved for readers
// holding the *ProfileRegistry pointer).
func (r *ProfileRegistry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("profile registry: read %s: %w", path, err)
	}

	var doc struct {
		Profiles []AgentProfile `yaml:"profiles"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("profile registry: parse %s: %w", path, err)
	}

	next := make(map[string]AgentProfile, len(doc.Profiles))
	for _, p := range doc.Profiles {
		if p.ID == "" {
			return fmt.Errorf("profile registry: %s contains a profile with an empty id", path)
		}
		next[p.ID] = p
	}

	r.mu.Lock()
	r.profiles = next
	r.path = path
	r.mu.Unlock()
	return nil
}

// Watch starts an fsnotify watch on the registry's backing file, reloading
// it into the same in-memory map on every write. This is the concrete
// mechanism satisfying the spec's connectivity contract: channels hold a
// pointer to this *ProfileRegistry, so a reload here is visible to every
// channel's very next Profile/Chat call without reconstruction.
func (r *ProfileRegistry) Watch() (func() error, error) {
	r.mu.RLock()
	path := r.path
	r.mu.RUnlock()
	if path == "" {
		return nil, fmt.Errorf("profile registry: Watch requires a prior LoadFile")
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("profile registry: create watcher: %w", err)
	}
	if err := w.Add(path); err != nil {
		w.Close()
		return nil, fmt.Errorf("profile registry: watch %s: %w", path, err)
	}

	r.mu.Lock()
	r.watcher = w
	r.mu.Unlock()

	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if err := r.LoadFile(path); err != nil {
					slog.Warn("profile registry reload failed", "path", path, "error", err)
					continue
				}
				slog.Info("profile registry reloaded", "path", path, "count", r.Count())
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				slog.Warn("profile registry watcher error", "error", err)
			}
		}
	}()

	return w.Close, nil
}

// Count returns the number of registered profiles.
func (r *ProfileRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.profiles)
}
