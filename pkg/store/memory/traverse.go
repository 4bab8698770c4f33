package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"awardgraph/pkg/common"
	"awardgraph/pkg/store"
)

const (
	defaultMaxHops  = 3
	defaultLimit    = 50
	explorationMult = 64
)

// Traverse expands breadth-first from the start set, following edges in
// both directions, and returns ranked simple paths. A path's score is the
// sum over its edges of (type weight + edge confidence weight) minus the
// hop count, so shorter well-weighted paths outrank long weak ones.
// Ordering is fully deterministic: score descending, then terminal node
// id, then the joined node sequence.
//
// Exploration is capped at a multiple of the result limit; on dense hubs
// the cheapest (earliest discovered) paths are kept.
func (s *Store) Traverse(ctx context.Context, opts store.TraverseOptions) ([]store.Path, error) {
	if opts.MaxHops <= 0 {
		opts.MaxHops = defaultMaxHops
	}
	if opts.Limit <= 0 {
		opts.Limit = defaultLimit
	}

	allowed := make(map[common.EdgeType]bool, len(opts.EdgeTypes))
	for _, t := range opts.EdgeTypes {
		allowed[t] = true
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	type partial struct {
		nodeIDs []string
		edgeIDs []string
		score   float64
	}

	frontier := make([]partial, 0, len(opts.StartIDs))
	seenStart := make(map[string]bool)
	for _, id := range opts.StartIDs {
		canon := s.canonicalLocked(id)
		if _, ok := s.nodes[canon]; !ok {
			return nil, fmt.Errorf("traverse start %s: %w", id, common.ErrUnknownNode)
		}
		if seenStart[canon] {
			continue
		}
		seenStart[canon] = true
		frontier = append(frontier, partial{nodeIDs: []string{canon}})
	}

	maxResults := opts.Limit * explorationMult
	results := make([]store.Path, 0)

	for hop := 0; hop < opts.MaxHops && len(frontier) > 0; hop++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		next := make([]partial, 0, len(frontier))
		for _, p := range frontier {
			tail := p.nodeIDs[len(p.nodeIDs)-1]
			for _, step := range s.expansionsLocked(tail, allowed) {
				if containsID(p.nodeIDs, step.nodeID) {
					continue
				}
				ext := partial{
					nodeIDs: append(append([]string(nil), p.nodeIDs...), step.nodeID),
					edgeIDs: append(append([]string(nil), p.edgeIDs...), step.edge.ID),
					score:   p.score + typeWeight(opts.Weights, step.edge.Type) + step.edge.Weight() - 1,
				}
				results = append(results, store.Path{
					NodeIDs: ext.nodeIDs,
					EdgeIDs: ext.edgeIDs,
					Score:   ext.score,
				})
				next = append(next, ext)
				if len(results) >= maxResults {
					break
				}
			}
			if len(results) >= maxResults {
				break
			}
		}
		if len(results) >= maxResults {
			break
		}
		frontier = next
	}

	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		at, bt := a.NodeIDs[len(a.NodeIDs)-1], b.NodeIDs[len(b.NodeIDs)-1]
		if at != bt {
			return at < bt
		}
		return strings.Join(a.NodeIDs, "|") < strings.Join(b.NodeIDs, "|")
	})

	if len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results, nil
}

type expansion struct {
	edge   *common.Edge
	nodeID string
}

// expansionsLocked lists the edges leaving or entering a node in a stable
// order, filtered to the allowed edge types (an empty filter allows all).
func (s *Store) expansionsLocked(id string, allowed map[common.EdgeType]bool) []expansion {
	steps := make([]expansion, 0, len(s.out[id])+len(s.in[id]))
	for _, e := range s.out[id] {
		if len(allowed) == 0 || allowed[e.Type] {
			steps = append(steps, expansion{edge: e, nodeID: e.Target})
		}
	}
	for _, e := range s.in[id] {
		if len(allowed) == 0 || allowed[e.Type] {
			steps = append(steps, expansion{edge: e, nodeID: e.Source})
		}
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i].edge.ID < steps[j].edge.ID })
	return steps
}

func typeWeight(weights map[common.EdgeType]float64, t common.EdgeType) float64 {
	if w, ok := weights[t]; ok {
		return w
	}
	return 1
}

func containsID(ids []string, id string) bool {
	for _, existing := range ids {
		if existing == id {
			return true
		}
	}
	return false
}
