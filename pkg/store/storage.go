package store

import (
	"context"

	"awardgraph/pkg/common"
)

// TraverseOptions configures a breadth-first expansion from a start set.
// Weights assigns a per-query priority to each edge type; edge types absent
// from the map score 1. MaxHops defaults to 3 and Limit to 50.
type TraverseOptions struct {
	StartIDs  []string
	EdgeTypes []common.EdgeType
	MaxHops   int
	Limit     int
	Weights   map[common.EdgeType]float64
}

// Path is one ranked traversal result. NodeIDs starts at a start node;
// EdgeIDs has one entry per hop. Score is the composite ranking score:
// sum over edges of (type weight + edge confidence weight) minus the hop
// count.
type Path struct {
	NodeIDs []string `json:"node_ids"`
	EdgeIDs []string `json:"edge_ids"`
	Score   float64  `json:"score"`
}

// GraphStore is the mutable knowledge graph: nodes, typed edges, and the
// indexes entity resolution needs. All mutation goes through UpsertAward
// and MergeNodes; both are atomic from a reader's perspective.
type GraphStore interface {
	// UpsertAward installs one normalized award record: the award node,
	// every endpoint entity it references, and the full required edge set,
	// all-or-nothing. Re-applying the same record is idempotent.
	UpsertAward(ctx context.Context, frag *common.RecordFragment) (string, error)

	// GetNode returns the node for id, following aliases left behind by
	// merges. Returns ErrUnknownNode if the id was never assigned.
	GetNode(id string) (*common.Node, error)

	NodeByKey(typ common.NodeType, key string) (*common.Node, bool)
	NodesByType(typ common.NodeType) []*common.Node
	EdgesFrom(id string) []*common.Edge
	EdgesTo(id string) []*common.Edge

	// Traverse expands breadth-first from the start set, following edges in
	// either direction, and returns at most Limit paths of at most MaxHops
	// edges, ranked by composite score with node-id tie-breaks.
	Traverse(ctx context.Context, opts TraverseOptions) ([]Path, error)

	// MergeNodes folds duplicate into survivor: every edge incident to the
	// duplicate is re-pointed, and the duplicate id becomes a permanent
	// alias of the survivor.
	MergeNodes(survivorID, duplicateID string) error

	// Neighborhood collects the subgraph within one hop of the seed nodes,
	// capped at maxNodes, for GraphView export.
	Neighborhood(seedIDs []string, maxNodes int) ([]*common.Node, []*common.Edge)
}

// Persister mirrors graph mutations into a durable backend so the graph
// survives process restarts. The in-memory engine is authoritative at
// runtime; the persister is write-through plus a full load at startup.
type Persister interface {
	SaveNodes(ctx context.Context, nodes []*common.Node) error
	SaveEdges(ctx context.Context, edges []*common.Edge) error
	DeleteNodes(ctx context.Context, ids []string) error
	DeleteEdges(ctx context.Context, ids []string) error
	SaveAlias(ctx context.Context, duplicateID, canonicalID string) error
	Load(ctx context.Context) ([]*common.Node, []*common.Edge, map[string]string, error)
}
