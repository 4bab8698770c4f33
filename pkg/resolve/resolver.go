package resolve

import (
	"awardgraph/pkg/common"
	"awardgraph/pkg/logger"
)

// DefaultThreshold is the similarity score above which a fuzzy candidate is
// accepted as the same real-world entity. Deliberately conservative; a
// false split is cheaper to correct than a false merge.
const DefaultThreshold = 0.85

// CandidateIndex is the read-only view of the graph the resolver needs:
// exact-key lookup, blocking-key buckets, and node degree for tie-breaks.
// The graph store provides this during upserts.
type CandidateIndex interface {
	NodeByKey(typ common.NodeType, key string) (*common.Node, bool)
	NodesByBlock(typ common.NodeType, block string) []*common.Node
	Degree(id string) int
}

// Action says what the store should do with a resolved mention.
type Action string

const (
	ActionMatch  Action = "match"
	ActionCreate Action = "create"
	ActionMerge  Action = "merge"
)

// Decision is the outcome of resolving one entity mention. For ActionMatch
// NodeID names the existing node; for ActionCreate it is empty; for
// ActionMerge the mention matches SurvivorID and DuplicateID must be folded
// into it first.
type Decision struct {
	Action      Action
	NodeID      string
	SurvivorID  string
	DuplicateID string
	Score       float64
}

// Resolver owns the deduplication policy: exact-key equality for awards and
// programs, blocked fuzzy matching for PIs, institutions, and topics.
type Resolver struct {
	idx       CandidateIndex
	threshold float64
}

func New(idx CandidateIndex, threshold float64) *Resolver {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	return &Resolver{idx: idx, threshold: threshold}
}

func exactKeyType(typ common.NodeType) bool {
	return typ == common.NodeAward || typ == common.NodeProgram
}

// Resolve decides whether a mention with the given normalized key refers to
// an existing node of typ or requires a new one. block is the cheap
// blocking key limiting fuzzy candidates (surname initial for PIs, state
// for institutions, label initial for topics).
//
// The fuzzy policy is a two-stage heuristic: exact key match wins
// immediately; otherwise the best-scoring blocked candidate above the
// threshold is accepted, ties broken by higher degree then lower id. When
// an exact match and a distinct above-threshold fuzzy candidate coexist,
// the two nodes have converged and a merge decision is issued instead.
// Every accepted fuzzy match is logged with its score so misfires can be
// corrected later.
func (r *Resolver) Resolve(typ common.NodeType, key, block string) Decision {
	if key == "" {
		return Decision{Action: ActionCreate}
	}

	exact, hasExact := r.idx.NodeByKey(typ, key)
	if exactKeyType(typ) {
		if hasExact {
			return Decision{Action: ActionMatch, NodeID: exact.ID, Score: 1}
		}
		return Decision{Action: ActionCreate}
	}

	best, bestScore := r.bestCandidate(typ, key, block, exact)

	if hasExact {
		if best != nil && bestScore >= r.threshold {
			survivor, duplicate := exact, best
			if r.idx.Degree(duplicate.ID) > r.idx.Degree(survivor.ID) {
				survivor, duplicate = duplicate, survivor
			}
			logger.Info("[Resolve] Converged nodes detected, issuing merge",
				"type", typ, "survivor", survivor.ID, "duplicate", duplicate.ID, "score", bestScore)
			return Decision{
				Action:      ActionMerge,
				NodeID:      survivor.ID,
				SurvivorID:  survivor.ID,
				DuplicateID: duplicate.ID,
				Score:       bestScore,
			}
		}
		return Decision{Action: ActionMatch, NodeID: exact.ID, Score: 1}
	}

	if best != nil && bestScore >= r.threshold {
		logger.Debug("[Resolve] Fuzzy match accepted",
			"type", typ, "key", key, "node", best.ID, "score", bestScore)
		return Decision{Action: ActionMatch, NodeID: best.ID, Score: bestScore}
	}

	if best != nil {
		logger.Debug("[Resolve] Best candidate below threshold, creating node",
			"type", typ, "key", key, "candidate", best.ID, "score", bestScore)
	}
	return Decision{Action: ActionCreate}
}

// bestCandidate scans the blocking bucket for the highest-scoring candidate
// other than skip. Ties prefer higher degree, then lower id, keeping the
// decision deterministic for a given graph state.
func (r *Resolver) bestCandidate(typ common.NodeType, key, block string, skip *common.Node) (*common.Node, float64) {
	var best *common.Node
	bestScore := 0.0

	for _, cand := range r.idx.NodesByBlock(typ, block) {
		if skip != nil && cand.ID == skip.ID {
			continue
		}
		score := Similarity(key, cand.Key)
		if score < bestScore {
			continue
		}
		if score > bestScore || best == nil {
			best, bestScore = cand, score
			continue
		}
		if r.idx.Degree(cand.ID) > r.idx.Degree(best.ID) ||
			(r.idx.Degree(cand.ID) == r.idx.Degree(best.ID) && cand.ID < best.ID) {
			best = cand
		}
	}

	return best, bestScore
}
