package engine

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/negotium-ai/negotium/pkg/config"
	"github.com/negotium-ai/negotium/pkg/eventbus"
	"github.com/negotium-ai/negotium/pkg/llms"
	"github.com/negotium-ai/negotium/pkg/registry"
)

// fakeGenerateReply and fakeStructuredReply queue scripted responses for
// fakeProvider, mirroring pkg/skills's own test fakes (same scriptable
// stand-in shape, duplicated here since the two packages' test fakes are
// unexported and a provider fake is cheap to write per-package).
type fakeGenerateReply struct {
	text  string
	calls []llms.ToolCall
}

type fakeProvider struct {
	structuredReplies []string
	generateReplies   []fakeGenerateReply
	genCalls          int
	structCalls       int
	err               error
}

func (p *fakeProvider) Generate(ctx context.Context, messages []llms.Message, tools []llms.ToolDefinition) (string, []llms.ToolCall, int, error) {
	if p.err != nil {
		return "", nil, 0, p.err
	}
	r := p.generateReplies[p.genCalls]
	p.genCalls++
	return r.text, r.calls, 0, nil
}

func (p *fakeProvider) GenerateStructured(ctx context.Context, messages []llms.Message, schema map[string]interface{}) (string, int, error) {
	if p.err != nil {
		return "", 0, p.err
	}
	r := p.structuredReplies[p.structCalls]
	p.structCalls++
	return r, 0, nil
}

func (p *fakeProvider) GetModelName() string { return "fake-central" }
func (p *fakeProvider) Close() error         { return nil }

// fakeEncoder embeds any text containing "venue" to [1,0] and everything
// else to [0,1] — a deterministic two-bucket embedding, good enough to
// drive the cosine-similarity matcher predictably in tests.
type fakeEncoder struct{}

func (fakeEncoder) Embed(ctx context.Context, text string) ([]float32, error) {
	return embedWord(text), nil
}

func (fakeEncoder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = embedWord(t)
	}
	return out, nil
}

func (fakeEncoder) Dimension() int { return 2 }
func (fakeEncoder) Close() error   { return nil }

func embedWord(text string) []float32 {
	if strings.Contains(strings.ToLower(text), "venue") {
		return []float32{1, 0}
	}
	return []float32{0, 1}
}

// fakeChannel is a scriptable channel.Agent: one profile + chat reply per
// agent id, with an optional forced error to simulate an unreachable agent.
type fakeChannel struct {
	profiles map[string]registry.AgentProfile
	replies  map[string]string
	errs     map[string]error
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{
		profiles: make(map[string]registry.AgentProfile),
		replies:  make(map[string]string),
		errs:     make(map[string]error),
	}
}

func (f *fakeChannel) Profile(ctx context.Context, agentID string) (registry.AgentProfile, error) {
	p, ok := f.profiles[agentID]
	if !ok {
		return registry.AgentProfile{}, assertError("unknown agent " + agentID)
	}
	return p, nil
}

func (f *fakeChannel) Chat(ctx context.Context, agentID string, messages []llms.Message) (string, error) {
	if err, ok := f.errs[agentID]; ok {
		return "", err
	}
	return f.replies[agentID], nil
}

type assertError string

func (e assertError) Error() string { return string(e) }

func newTestBus() *eventbus.Bus {
	return eventbus.New(64, nil)
}

func TestNewRequiresCentralProvider(t *testing.T) {
	profiles := registry.NewProfileRegistry()
	_, err := New(nil, fakeEncoder{}, profiles, newFakeChannel(), newTestBus(), nil, nil, config.EngineConfig{})
	assert.Error(t, err)
}

func TestNewRequiresEncoder(t *testing.T) {
	profiles := registry.NewProfileRegistry()
	_, err := New(&fakeProvider{}, nil, profiles, newFakeChannel(), newTestBus(), nil, nil, config.EngineConfig{})
	assert.Error(t, err)
}

func TestNewRequiresProfileRegistry(t *testing.T) {
	_, err := New(&fakeProvider{}, fakeEncoder{}, nil, newFakeChannel(), newTestBus(), nil, nil, config.EngineConfig{})
	assert.Error(t, err)
}

func TestNewRequiresChannel(t *testing.T) {
	profiles := registry.NewProfileRegistry()
	_, err := New(&fakeProvider{}, fakeEncoder{}, profiles, nil, newTestBus(), nil, nil, config.EngineConfig{})
	assert.Error(t, err)
}

func TestNewRequiresEventBus(t *testing.T) {
	profiles := registry.NewProfileRegistry()
	_, err := New(&fakeProvider{}, fakeEncoder{}, profiles, newFakeChannel(), nil, nil, nil, config.EngineConfig{})
	assert.Error(t, err)
}

func TestNewAppliesConfigDefaults(t *testing.T) {
	profiles := registry.NewProfileRegistry()
	eng, err := New(&fakeProvider{}, fakeEncoder{}, profiles, newFakeChannel(), newTestBus(), nil, nil, config.EngineConfig{})
	require.NoError(t, err)
	assert.Equal(t, 2, eng.cfg.MaxCoordinatorRounds)
	assert.Equal(t, 5, eng.cfg.SelectionTopK)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	profiles := registry.NewProfileRegistry()
	_, err := New(&fakeProvider{}, fakeEncoder{}, profiles, newFakeChannel(), newTestBus(), nil, nil, config.EngineConfig{MaxCoordinatorRounds: -1})
	assert.Error(t, err)
}
