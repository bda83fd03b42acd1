package skills

import (
	"context"
	"fmt"

	negerrors "github.com/negotium-ai/negotium/pkg/errors"
	"github.com/negotium-ai/negotium/pkg/llms"
	"github.com/negotium-ai/negotium/pkg/session"
)

const formulationSkillName = "formulation"

// FormulationInput is the raw demand and requester identity handed to the
// Formulation skill.
type FormulationInput struct {
	RawDemand   string
	RequesterID string
}

var formulationSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"intent":      map[string]interface{}{"type": "string"},
		"constraints": map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
		"preferences": map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
		"context":     map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
		"enrichments": map[string]interface{}{"type": "object", "additionalProperties": map[string]interface{}{"type": "string"}},
	},
	"required": []string{"intent"},
}

type formulationResult struct {
	Intent      string            `json:"intent"`
	Constraints []string          `json:"constraints"`
	Preferences []string          `json:"preferences"`
	Context     []string          `json:"context"`
	Enrichments map[string]string `json:"enrichments"`
}

// Formulate normalizes a raw demand into a structured session.FormulatedDemand
// via a single LLM call against the central provider.
func Formulate(ctx context.Context, central llms.Provider, in FormulationInput) (session.FormulatedDemand, error) {
	prompt := fmt.Sprintf(
		"A requester (id=%s) submitted the following request:\n\n%q\n\n"+
			"Produce a structured formulation: a one-sentence intent, a list of "+
			"hard constraints, a list of soft preferences, a list of context "+
			"facts, and any free-form enrichments. Respond with a single JSON "+
			"object only: {\"intent\": string, \"constraints\": [string], "+
			"\"preferences\": [string], \"context\": [string], "+
			"\"enrichments\": {string: string}}.",
		in.RequesterID, in.RawDemand,
	)

	messages := []llms.Message{
		{Role: "system", Content: "You turn informal requests into structured negotiation demands. Never invent constraints the requester did not state or clearly imply."},
		{Role: "user", Content: prompt},
	}

	text, _, err := central.GenerateStructured(ctx, messages, formulationSchema)
	if err != nil {
		return session.FormulatedDemand{}, negerrors.NewModelError(central.GetModelName(), formulationSkillName, err)
	}

	parsed, err := parseStructured[formulationResult](formulationSkillName, text)
	if err != nil {
		return session.FormulatedDemand{}, err
	}
	if parsed.Intent == "" {
		return session.FormulatedDemand{}, negerrors.NewSkillContractViolation(formulationSkillName, "intent field is required and was empty", text)
	}

	return session.FormulatedDemand{
		Intent:      parsed.Intent,
		Constraints: parsed.Constraints,
		Preferences: parsed.Preferences,
		Context:     parsed.Context,
		Enrichments: parsed.Enrichments,
	}, nil
}
