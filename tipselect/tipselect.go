// Package tipselect implements the parent-selection heuristic (§4.5)
// new submissions use to pick which tips to build on. It affects liveness
// only, never safety, so it is kept a free-standing pure function over the
// DAG store and conflict registry rather than something the voting engine
// itself depends on.
package tipselect

import (
	"sort"

	"github.com/qudag/qudag/choices"
	"github.com/qudag/qudag/consensus"
	"github.com/qudag/qudag/ids"
	"github.com/qudag/qudag/vertex"
)

// DefaultMaxParents is the recommended upper bound from §4.5 ("recommended
// 2-4"); callers with a tighter consensus.Parameters.MaxParents should pass
// that instead.
const DefaultMaxParents = 4

// Select picks up to maxParents tips for a new submission whose conflict
// key is conflictKey, per §4.5's four-step algorithm:
//  1. take the current tips,
//  2. drop tips whose payload conflicts with the new submission,
//  3. rank by (Accepted first, confidence descending, timestamp ascending,
//     VertexId ascending),
//  4. take the top maxParents, falling back to the latest Accepted ancestor
//     (ultimately GenesisID) if nothing survives filtering.
func Select(store vertex.Store, registry *consensus.ConflictRegistry, conflictKey string, maxParents int) ([]ids.VertexID, error) {
	if maxParents < 1 {
		maxParents = 1
	}

	tips := store.Tips().List()
	candidates := make([]*vertex.Vertex, 0, len(tips))
	for _, id := range tips {
		v, ok := store.Get(id)
		if !ok {
			continue
		}
		if key, ok := registry.KeyOf(id); ok && key == conflictKey {
			continue
		}
		candidates = append(candidates, v)
	}

	if len(candidates) == 0 {
		fallback, err := latestAcceptedAncestor(store, tips)
		if err != nil {
			return nil, err
		}
		return []ids.VertexID{fallback}, nil
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if (a.Confidence.Decision == choices.Accepted) != (b.Confidence.Decision == choices.Accepted) {
			return a.Confidence.Decision == choices.Accepted
		}
		if a.Confidence.CumulativeConfidence != b.Confidence.CumulativeConfidence {
			return a.Confidence.CumulativeConfidence > b.Confidence.CumulativeConfidence
		}
		if !a.CreationTime.Equal(b.CreationTime) {
			return a.CreationTime.Before(b.CreationTime)
		}
		return a.ID.Less(b.ID)
	})

	if len(candidates) > maxParents {
		candidates = candidates[:maxParents]
	}

	out := make([]ids.VertexID, len(candidates))
	for i, v := range candidates {
		out[i] = v.ID
	}
	return out, nil
}

// latestAcceptedAncestor walks back from the tips looking for the
// most-recently-created Accepted vertex, falling back all the way to
// GenesisID when the DAG holds nothing Accepted yet (an empty or
// still-voting chain).
func latestAcceptedAncestor(store vertex.Store, from []ids.VertexID) (ids.VertexID, error) {
	var best *vertex.Vertex
	seen := ids.NewSet[ids.VertexID](len(from))
	queue := append([]ids.VertexID(nil), from...)

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if seen.Contains(id) {
			continue
		}
		seen.Add(id)

		v, ok := store.Get(id)
		if !ok {
			continue
		}
		if v.Confidence.Decision == choices.Accepted {
			if best == nil || v.CreationTime.After(best.CreationTime) || (v.CreationTime.Equal(best.CreationTime) && best.ID.Less(v.ID)) {
				best = v
			}
			continue
		}
		queue = append(queue, v.Parents...)
	}

	if best == nil {
		return vertex.GenesisID, nil
	}
	return best.ID, nil
}
