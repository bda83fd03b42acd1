package skills

import (
	"context"
	"fmt"
	"strings"

	"github.com/negotium-ai/negotium/pkg/channel"
	negerrors "github.com/negotium-ai/negotium/pkg/errors"
	"github.com/negotium-ai/negotium/pkg/llms"
	"github.com/negotium-ai/negotium/pkg/resonance"
	"github.com/negotium-ai/negotium/pkg/session"
)

const offerSkillName = "offer"

// antiFabricationThreshold is deliberately far below the matcher's own
// selection threshold: this guard exists to catch a model inventing a
// capability match that resonance selection itself already found
// plausible enough to include this agent, not to re-run selection.
const antiFabricationThreshold = 0.05

type offerResult struct {
	OfferText    string   `json:"offer_text"`
	Confidence   float64  `json:"confidence"`
	Declined     bool     `json:"declined"`
	Capabilities []string `json:"capabilities"`
	Constraints  []string `json:"constraints"`
}

// RequestOffer runs the Offer skill for one agent over its channel. The
// result is post-parse-guarded: if the profile's capability view has
// negligible resonance overlap with the demand, the offer is forced
// Declined=true with Confidence capped at 0.2 regardless of what the
// model claimed — an enforceable check standing in for a prompt-only
// promise (spec.md §4.4).
func RequestOffer(ctx context.Context, ch channel.Agent, agentID string, demand session.FormulatedDemand, demandViews resonance.DemandViews, profileViews resonance.ProfileViews) (session.Offer, error) {
	profile, err := ch.Profile(ctx, agentID)
	if err != nil {
		return session.Offer{}, err
	}

	prompt := fmt.Sprintf(
		"A requester needs: %s\n\nConstraints: %s\nPreferences: %s\n\n"+
			"Given your declared capabilities (%s) and context (%s), can you "+
			"make a credible offer? Only claim what you can actually deliver; "+
			"if this request falls outside your capabilities, decline rather "+
			"than invent a plausible-sounding offer.\n\n"+
			"Respond with a single JSON object only: {\"offer_text\": string, "+
			"\"confidence\": number in [0,1], \"declined\": bool, "+
			"\"capabilities\": [string], \"constraints\": [string]}.",
		demand.Intent,
		strings.Join(demand.Constraints, "; "),
		strings.Join(demand.Preferences, "; "),
		strings.Join(profile.Capabilities, "; "),
		strings.Join(profile.Context, "; "),
	)

	text, err := ch.Chat(ctx, agentID, []llms.Message{{Role: "user", Content: prompt}})
	if err != nil {
		return session.Offer{}, negerrors.NewChannelUnavailableError(agentID, offerSkillName, err)
	}

	parsed, err := parseStructured[offerResult](offerSkillName, text)
	if err != nil {
		return session.Offer{}, err
	}

	offer := session.Offer{
		AgentID:      agentID,
		Text:         parsed.OfferText,
		Confidence:   clamp01(parsed.Confidence),
		Declined:     parsed.Declined,
		Capabilities: parsed.Capabilities,
		Constraints:  parsed.Constraints,
	}

	if hasFabricationRisk(demandViews, profileViews) {
		offer.Declined = true
		if offer.Confidence > 0.2 {
			offer.Confidence = 0.2
		}
	}

	return offer, nil
}

// hasFabricationRisk reports whether the profile's capability view has
// negligible resonance overlap with any demand view — the same cosine
// machinery the matcher uses, at a bar far below selection.
func hasFabricationRisk(demand resonance.DemandViews, profile resonance.ProfileViews) bool {
	best := 0.0
	for _, dv := range [][]float32{demand.Intent, demand.Constraints, demand.Combined} {
		if s := resonance.Cosine(dv, profile.Capabilities); s > best {
			best = s
		}
	}
	return best < antiFabricationThreshold
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
