package resonance

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/negotium-ai/negotium/pkg/registry"
	"github.com/negotium-ai/negotium/pkg/session"
)

// countingEncoder records every EmbedBatch call and returns a deterministic,
// already-normalized vector per input text (the one-hot position of the
// text's length mod dimension, which is enough to make dot products behave
// predictably without pulling in a real encoder implementation).
type countingEncoder struct {
	calls int
	dim   int
}

func (e *countingEncoder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *countingEncoder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.calls++
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, e.dim)
		v[len(t)%e.dim] = 1
		out[i] = v
	}
	return out, nil
}

func (e *countingEncoder) Dimension() int { return e.dim }
func (e *countingEncoder) Close() error   { return nil }

func TestMatchDropsBelowThresholdAndSortsByScore(t *testing.T) {
	demand := DemandViews{
		Intent:      []float32{1, 0},
		Constraints: []float32{1, 0},
		Combined:    []float32{1, 0},
	}
	profiles := []ProfileViews{
		{AgentID: "alice", Capabilities: []float32{1, 0}, Context: []float32{1, 0}},
		{AgentID: "bob", Capabilities: []float32{0, 1}, Context: []float32{0, 1}},
	}

	rankings := Match(demand, profiles, MatchConfig{Threshold: 0.5})
	require.Len(t, rankings, 1)
	assert.Equal(t, "alice", rankings[0].AgentID)
}

func TestMatchTopKTruncatesAndTiebreaksLexicographically(t *testing.T) {
	demand := DemandViews{Intent: []float32{1}, Constraints: []float32{1}, Combined: []float32{1}}
	profiles := []ProfileViews{
		{AgentID: "zeta", Capabilities: []float32{1}, Context: []float32{1}},
		{AgentID: "alpha", Capabilities: []float32{1}, Context: []float32{1}},
		{AgentID: "mu", Capabilities: []float32{1}, Context: []float32{1}},
	}

	rankings := Match(demand, profiles, MatchConfig{Threshold: 0, TopK: 2})
	require.Len(t, rankings, 2)
	assert.Equal(t, "alpha", rankings[0].AgentID)
	assert.Equal(t, "mu", rankings[1].AgentID)
}

func TestMatchIsIdempotent(t *testing.T) {
	demand := DemandViews{Intent: []float32{0.6, 0.8}, Constraints: []float32{1, 0}, Combined: []float32{0.8, 0.6}}
	profiles := []ProfileViews{
		{AgentID: "alice", Capabilities: []float32{0.6, 0.8}, Context: []float32{1, 0}},
		{AgentID: "bob", Capabilities: []float32{0, 1}, Context: []float32{0.5, 0.5}},
	}
	cfg := MatchConfig{Threshold: 0.1, TopK: 5}

	first := Match(demand, profiles, cfg)
	second := Match(demand, profiles, cfg)
	assert.Equal(t, first, second)
}

func TestBuildViewsEncodesOncePerUniqueText(t *testing.T) {
	enc := &countingEncoder{dim: 8}
	demand := session.FormulatedDemand{Intent: "need a venue", Constraints: []string{"budget < 5k"}}
	profiles := []registry.AgentProfile{
		{ID: "alice", DisplayName: "Alice", Capabilities: []string{"catering"}, Context: []string{"downtown"}},
		{ID: "bob", DisplayName: "Bob", Capabilities: []string{"av equipment"}, Context: []string{"suburbs"}},
	}

	dv, pv, err := BuildViews(context.Background(), enc, nil, demand, profiles)
	require.NoError(t, err)
	assert.Len(t, pv, 2)
	assert.NotNil(t, dv.Intent)
	assert.Equal(t, 1, enc.calls)
}

func TestBuildViewsServesFromIndexOnRepeatCall(t *testing.T) {
	enc := &countingEncoder{dim: 8}
	idx, err := NewProfileIndex(IndexConfig{})
	require.NoError(t, err)

	demand := session.FormulatedDemand{Intent: "need a venue", Constraints: []string{"budget < 5k"}}
	profiles := []registry.AgentProfile{
		{ID: "alice", DisplayName: "Alice", Capabilities: []string{"catering"}, Context: []string{"downtown"}},
	}

	_, pv1, err := BuildViews(context.Background(), enc, idx, demand, profiles)
	require.NoError(t, err)
	require.Equal(t, 1, enc.calls)

	_, pv2, err := BuildViews(context.Background(), enc, idx, demand, profiles)
	require.NoError(t, err)

	// Second call only needs to re-encode the demand's 3 views, not the
	// unchanged profile's 2 views, since the index served those from cache.
	assert.Equal(t, 2, enc.calls)
	assert.Equal(t, pv1[0].Capabilities, pv2[0].Capabilities)
	assert.Equal(t, pv1[0].Context, pv2[0].Context)
}

func TestBuildViewsReEncodesWhenProfileContentChanges(t *testing.T) {
	enc := &countingEncoder{dim: 8}
	idx, err := NewProfileIndex(IndexConfig{})
	require.NoError(t, err)

	demand := session.FormulatedDemand{Intent: "need a venue"}
	profile := registry.AgentProfile{ID: "alice", DisplayName: "Alice", Capabilities: []string{"catering"}, Context: []string{"downtown"}}

	_, _, err = BuildViews(context.Background(), enc, idx, demand, []registry.AgentProfile{profile})
	require.NoError(t, err)
	require.Equal(t, 1, enc.calls)

	profile.Capabilities = []string{"full event planning"}
	_, _, err = BuildViews(context.Background(), enc, idx, demand, []registry.AgentProfile{profile})
	require.NoError(t, err)
	assert.Equal(t, 2, enc.calls, "changed capabilities text must bypass the cache")
}
