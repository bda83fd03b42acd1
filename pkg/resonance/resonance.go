// Package resonance ranks candidate agents against a formulated demand by
// cosine similarity across multiple textual views. Match itself performs
// no I/O: the engine pre-computes every vector via pkg/encoder and hands
// them in through ViewVectors, keeping selection a pure, deterministically
// testable function (spec.md's "Idempotent selection" property).
package resonance

import "sort"

// MatchConfig carries the two selection knobs from spec.md §6.
type MatchConfig struct {
	Threshold float64 // agents scoring below this are dropped
	TopK      int     // 0 means unbounded
}

// DemandViews holds the three pre-computed demand vectors: intent,
// constraints-joined, and combined.
type DemandViews struct {
	Intent      []float32
	Constraints []float32
	Combined    []float32
}

// ProfileViews holds the two pre-computed profile vectors for one agent:
// capabilities-joined and context-joined.
type ProfileViews struct {
	AgentID      string
	DisplayName  string
	Capabilities []float32
	Context      []float32
}

// ScoreBreakdown records the cosine similarity for each of the six
// (demand view, profile view) pairs considered for one agent, keyed by a
// "demandView/profileView" label for audit/debugging.
type ScoreBreakdown map[string]float64

// Ranking is one agent's aggregate resonance result.
type Ranking struct {
	AgentID     string
	DisplayName string
	Score       float64
	Breakdown   ScoreBreakdown
}

// Match scores every profile against the demand views and returns the
// survivors above cfg.Threshold, capped at cfg.TopK, sorted by score
// descending with ties broken by lexicographic agent id.
func Match(demand DemandViews, profiles []ProfileViews, cfg MatchConfig) []Ranking {
	rankings := make([]Ranking, 0, len(profiles))

	demandViews := map[string][]float32{
		"intent":      demand.Intent,
		"constraints": demand.Constraints,
		"combined":    demand.Combined,
	}

	for _, p := range profiles {
		profileViews := map[string][]float32{
			"capabilities": p.Capabilities,
			"context":      p.Context,
		}

		breakdown := make(ScoreBreakdown, len(demandViews)*len(profileViews))
		best := 0.0
		for dName, dVec := range demandViews {
			for pName, pVec := range profileViews {
				score := dotProduct(dVec, pVec)
				breakdown[dName+"/"+pName] = score
				if score > best {
					best = score
				}
			}
		}

		if best < cfg.Threshold {
			continue
		}

		rankings = append(rankings, Ranking{
			AgentID:     p.AgentID,
			DisplayName: p.DisplayName,
			Score:       best,
			Breakdown:   breakdown,
		})
	}

	sort.Slice(rankings, func(i, j int) bool {
		if rankings[i].Score != rankings[j].Score {
			return rankings[i].Score > rankings[j].Score
		}
		return rankings[i].AgentID < rankings[j].AgentID
	})

	if cfg.TopK > 0 && len(rankings) > cfg.TopK {
		rankings = rankings[:cfg.TopK]
	}
	return rankings
}

// Cosine computes the plain dot product of two vectors, which is cosine
// similarity since every vector handed to Match is pre-normalized by the
// encoder. Mismatched or empty vectors score zero rather than panicking,
// since an agent with a missing view should simply not win on that facet.
// Exported so other packages (the Offer skill's anti-fabrication guard)
// score against the same cosine machinery rather than a re-derived copy.
func Cosine(a, b []float32) float64 {
	return dotProduct(a, b)
}

func dotProduct(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
