package skills

import (
	"context"
	"fmt"
	"strings"

	negerrors "github.com/negotium-ai/negotium/pkg/errors"
	"github.com/negotium-ai/negotium/pkg/llms"
	"github.com/negotium-ai/negotium/pkg/session"
)

const subNegotiationSkillName = "sub_negotiation"

var subNegotiationSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"agreement":      map[string]interface{}{"type": "string"},
		"disagreement":   map[string]interface{}{"type": "string"},
		"open_questions": map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
	},
	"required": []string{"agreement"},
}

type subNegotiationResult struct {
	Agreement     string   `json:"agreement"`
	Disagreement  string   `json:"disagreement"`
	OpenQuestions []string `json:"open_questions"`
}

// SubNegotiationInput scopes the skill to one discovery topic and the
// subset of participant offers under discussion. Unlike the Coordinator's
// masked view, this skill sees raw offer text — it's a different skill's
// scope, not the coordinator's (spec.md §4.4).
type SubNegotiationInput struct {
	Topic  string
	Offers []session.Offer
}

// RunSubNegotiation synthesizes an agreement/disagreement/open-questions
// finding over a scoped subset of participants, via one central LLM call.
// At-most-one concurrent sub-negotiation per parent session is an engine-
// level invariant, not enforced here.
func RunSubNegotiation(ctx context.Context, central llms.Provider, in SubNegotiationInput) (session.SubNegotiationFinding, error) {
	var body strings.Builder
	fmt.Fprintf(&body, "Discovery topic: %s\n\nParticipant offers under discussion:\n", in.Topic)
	for _, o := range in.Offers {
		status := "offered"
		if o.Declined {
			status = "declined"
		}
		fmt.Fprintf(&body, "- %s [%s]: %s\n", o.AgentID, status, o.Text)
	}
	body.WriteString("\nSummarize where these participants agree, where they disagree, and any open questions that remain. Respond with a single JSON object only: {\"agreement\": string, \"disagreement\": string, \"open_questions\": [string]}.")

	messages := []llms.Message{
		{Role: "system", Content: "You reconcile a scoped subset of participant offers into a structured finding for the coordinator."},
		{Role: "user", Content: body.String()},
	}

	text, _, err := central.GenerateStructured(ctx, messages, subNegotiationSchema)
	if err != nil {
		return session.SubNegotiationFinding{}, negerrors.NewModelError(central.GetModelName(), subNegotiationSkillName, err)
	}

	parsed, err := parseStructured[subNegotiationResult](subNegotiationSkillName, text)
	if err != nil {
		return session.SubNegotiationFinding{}, err
	}

	return session.SubNegotiationFinding{
		Topic:         in.Topic,
		Agreement:     parsed.Agreement,
		Disagreement:  parsed.Disagreement,
		OpenQuestions: parsed.OpenQuestions,
	}, nil
}
