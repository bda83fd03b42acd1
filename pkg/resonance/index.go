package resonance

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/negotium-ai/negotium/pkg/registry"
)

// ProfileIndex caches already-encoded profile views so BuildViews only
// needs to encode a profile whose capabilities/context text changed since
// last call. Lookups are served from an in-process map, which is the
// index's source of truth; every stored vector is mirrored into a
// chromem-go collection purely for optional gzip-compressed file
// persistence across process restarts (spec.md's matcher itself never
// depends on chromem being present — the index is an optional cache).
type ProfileIndex struct {
	mu   sync.RWMutex
	cache map[string]cachedVector

	db         *chromem.DB
	collection *chromem.Collection
	persistDir string
	compress   bool
}

type cachedVector struct {
	content string
	vector  []float32
}

// IndexConfig configures optional file persistence. A zero value keeps the
// index purely in memory.
type IndexConfig struct {
	PersistDir string
	Compress   bool
}

// identityEmbed satisfies chromem's EmbeddingFunc signature without ever
// being invoked: every vector this index stores is pre-computed by
// pkg/encoder and inserted directly via AddDocuments.
func identityEmbed(ctx context.Context, text string) ([]float32, error) {
	return nil, fmt.Errorf("resonance: profile index embedding func should never be called; vectors are pre-computed")
}

// NewProfileIndex creates a profile vector cache. With cfg.PersistDir set,
// an existing chromem-go database file is opened (or a fresh one created)
// for Store to write through to; the fast in-memory lookup map always
// starts cold for the new process and fills in as BuildViews calls Store,
// so a restart costs one re-encode per profile rather than a full cache
// miss on every call thereafter.
func NewProfileIndex(cfg IndexConfig) (*ProfileIndex, error) {
	idx := &ProfileIndex{
		cache:      make(map[string]cachedVector),
		persistDir: cfg.PersistDir,
		compress:   cfg.Compress,
	}

	var db *chromem.DB
	if cfg.PersistDir != "" {
		if err := os.MkdirAll(cfg.PersistDir, 0o755); err != nil {
			return nil, fmt.Errorf("resonance: create persist dir: %w", err)
		}
		dbPath := cfg.PersistDir + "/profile_vectors.gob"
		if cfg.Compress {
			dbPath += ".gz"
		}
		if _, err := os.Stat(dbPath); err == nil {
			loaded, lerr := chromem.NewPersistentDB(dbPath, cfg.Compress)
			if lerr != nil {
				return nil, fmt.Errorf("resonance: load persisted profile index: %w", lerr)
			}
			db = loaded
		} else {
			db = chromem.NewDB()
		}
	} else {
		db = chromem.NewDB()
	}
	idx.db = db

	col, err := db.GetOrCreateCollection("agent_profiles", nil, identityEmbed)
	if err != nil {
		return nil, fmt.Errorf("resonance: create profile index collection: %w", err)
	}
	idx.collection = col

	return idx, nil
}

// cacheKey identifies one (agent, view) pair; equal content under the same
// key means the previously cached vector is still valid.
func cacheKey(p registry.AgentProfile, view string) string {
	return p.ID + ":" + view
}

// Lookup returns a cached vector for p's view if one was stored under
// identical content text, avoiding a redundant encoder call.
func (idx *ProfileIndex) Lookup(ctx context.Context, p registry.AgentProfile, view, content string) ([]float32, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	cv, ok := idx.cache[cacheKey(p, view)]
	if !ok || cv.content != content {
		return nil, false
	}
	return cv.vector, true
}

// Store records a freshly computed vector for reuse, both in the
// in-memory lookup map and in the persisted chromem-go collection.
func (idx *ProfileIndex) Store(ctx context.Context, p registry.AgentProfile, view, content string, vec []float32) error {
	key := cacheKey(p, view)

	idx.mu.Lock()
	idx.cache[key] = cachedVector{content: content, vector: vec}
	idx.mu.Unlock()

	doc := chromem.Document{
		ID:        key,
		Content:   content,
		Metadata:  map[string]string{"agent_id": p.ID, "view": view},
		Embedding: vec,
	}
	if err := idx.collection.AddDocuments(ctx, []chromem.Document{doc}, runtime.NumCPU()); err != nil {
		return fmt.Errorf("resonance: store profile vector: %w", err)
	}
	if idx.persistDir != "" {
		if err := idx.persist(); err != nil {
			return err
		}
	}
	return nil
}

func (idx *ProfileIndex) persist() error {
	dbPath := idx.persistDir + "/profile_vectors.gob"
	if idx.compress {
		dbPath += ".gz"
	}
	if err := idx.db.Export(dbPath, idx.compress, ""); err != nil {
		return fmt.Errorf("resonance: persist profile index: %w", err)
	}
	return nil
}
