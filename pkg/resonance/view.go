package resonance

import (
	"context"
	"fmt"
	"strings"

	"github.com/negotium-ai/negotium/pkg/encoder"
	"github.com/negotium-ai/negotium/pkg/registry"
	"github.com/negotium-ai/negotium/pkg/session"
)

// BuildViews batch-encodes the three demand views, then resolves the two
// profile views for every candidate — serving from idx when a profile's
// capabilities/context text hasn't changed since it was last indexed, and
// batch-encoding only the remainder in one encoder call. idx may be nil,
// in which case every profile is encoded fresh on every call. This is the
// one place in the matching pipeline that performs I/O; Match itself
// stays pure.
func BuildViews(ctx context.Context, enc encoder.Provider, idx *ProfileIndex, demand session.FormulatedDemand, profiles []registry.AgentProfile) (DemandViews, []ProfileViews, error) {
	texts := []string{
		demand.Intent,
		demand.ConstraintsView(),
		demand.CombinedView(),
	}

	pv := make([]ProfileViews, len(profiles))
	type pending struct {
		idx     int // position in pv
		view    string
		content string
	}
	var misses []pending

	for i, p := range profiles {
		pv[i] = ProfileViews{AgentID: p.ID, DisplayName: p.DisplayName}

		capContent := strings.Join(p.Capabilities, " ")
		ctxContent := strings.Join(p.Context, " ")

		if idx != nil {
			if vec, ok := idx.Lookup(ctx, p, "capabilities", capContent); ok {
				pv[i].Capabilities = vec
			} else {
				misses = append(misses, pending{idx: i, view: "capabilities", content: capContent})
			}
			if vec, ok := idx.Lookup(ctx, p, "context", ctxContent); ok {
				pv[i].Context = vec
			} else {
				misses = append(misses, pending{idx: i, view: "context", content: ctxContent})
			}
		} else {
			misses = append(misses,
				pending{idx: i, view: "capabilities", content: capContent},
				pending{idx: i, view: "context", content: ctxContent},
			)
		}
	}

	for _, m := range misses {
		texts = append(texts, m.content)
	}

	vecs, err := enc.EmbedBatch(ctx, texts)
	if err != nil {
		return DemandViews{}, nil, fmt.Errorf("resonance: batch encode: %w", err)
	}
	if len(vecs) != len(texts) {
		return DemandViews{}, nil, fmt.Errorf("resonance: encoder returned %d vectors for %d inputs", len(vecs), len(texts))
	}

	dv := DemandViews{Intent: vecs[0], Constraints: vecs[1], Combined: vecs[2]}

	for i, m := range misses {
		vec := vecs[3+i]
		if m.view == "capabilities" {
			pv[m.idx].Capabilities = vec
		} else {
			pv[m.idx].Context = vec
		}
		if idx != nil {
			if serr := idx.Store(ctx, profiles[m.idx], m.view, m.content, vec); serr != nil {
				return DemandViews{}, nil, fmt.Errorf("resonance: cache profile vector: %w", serr)
			}
		}
	}

	return dv, pv, nil
}
