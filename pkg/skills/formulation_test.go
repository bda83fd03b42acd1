package skills

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/negotium-ai/negotium/pkg/llms"
)

// fakeProvider is a scriptable llms.Provider stand-in: Generate and
// GenerateStructured both return queued (text, toolCalls) pairs in order.
type fakeProvider struct {
	structuredReplies []string
	generateReplies   []fakeGenerateReply
	genCalls          int
	structCalls       int
	err               error
}

type fakeGenerateReply struct {
	text  string
	calls []llms.ToolCall
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

func (p *fakeProvider) GetModelName() string { return "fake" }
func (p *fakeProvider) Close() error         { return nil }

func TestFormulateParsesStructuredDemand(t *testing.T) {
	p := &fakeProvider{structuredReplies: []string{
		`{"intent": "book a venue for 50 guests", "constraints": ["budget < 5000"], "preferences": ["downtown"], "context": [], "enrichments": {}}`,
	}}

	out, err := Formulate(context.Background(), p, FormulationInput{RawDemand: "need a venue", RequesterID: "req-1"})
	require.NoError(t, err)
	assert.Equal(t, "book a venue for 50 guests", out.Intent)
	assert.Equal(t, []string{"budget < 5000"}, out.Constraints)
}

func TestFormulateRejectsEmptyIntent(t *testing.T) {
	p := &fakeProvider{structuredReplies: []string{`{"intent": ""}`}}
	_, err := Formulate(context.Background(), p, FormulationInput{RawDemand: "x", RequesterID: "req-1"})
	assert.Error(t, err)
}

func TestFormulateWrapsModelErrorWithSkillContext(t *testing.T) {
	p := &fakeProvider{err: assertError("boom")}
	_, err := Formulate(context.Background(), p, FormulationInput{RawDemand: "x", RequesterID: "req-1"})
	require.Error(t, err)
}

type assertError string

func (e assertError) Error() string { return string(e) }
