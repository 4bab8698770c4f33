package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"awardgraph/pkg/common"
	"awardgraph/pkg/resolve"
	"awardgraph/pkg/store"
)

// Store is the in-memory knowledge graph engine. It owns every node and
// edge exclusively; the read accessors only ever hand out deep copies. An
// optional Persister mirrors mutations to a durable backend and refills
// the store on startup.
//
// Merges never rewrite node pointers in place: the duplicate's id goes
// into an alias table and its edges are re-pointed, so a merge costs
// O(edges touched) and stays auditable.
type Store struct {
	mu sync.RWMutex

	nodes   map[string]*common.Node
	aliases map[string]string

	byTypeKey   map[common.NodeType]map[string]string
	byTypeBlock map[common.NodeType]map[string]map[string]bool

	out        map[string][]*common.Edge
	in         map[string][]*common.Edge
	edgeByUniq map[string]*common.Edge

	resolver  *resolve.Resolver
	persister store.Persister
	locks     *keysetLock
}

// NewStoreParams configures a Store. Threshold is the entity-resolution
// similarity threshold (resolve.DefaultThreshold when zero). Persister is
// optional; without one the graph lives only in memory.
type NewStoreParams struct {
	Threshold float64
	Persister store.Persister
}

func NewStore(params NewStoreParams) *Store {
	s := &Store{
		nodes:       make(map[string]*common.Node),
		aliases:     make(map[string]string),
		byTypeKey:   make(map[common.NodeType]map[string]string),
		byTypeBlock: make(map[common.NodeType]map[string]map[string]bool),
		out:         make(map[string][]*common.Edge),
		in:          make(map[string][]*common.Edge),
		edgeByUniq:  make(map[string]*common.Edge),
		persister:   params.Persister,
		locks:       newKeysetLock(),
	}
	s.resolver = resolve.New(&indexView{s}, params.Threshold)
	return s
}

// Restore loads the persisted graph into the store. Call once at startup,
// before serving any traffic.
func (s *Store) Restore(ctx context.Context) error {
	if s.persister == nil {
		return nil
	}
	nodes, edges, aliases, err := s.persister.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load persisted graph: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, n := range nodes {
		s.indexNodeLocked(n)
	}
	for _, e := range edges {
		s.out[e.Source] = append(s.out[e.Source], e)
		s.in[e.Target] = append(s.in[e.Target], e)
		s.edgeByUniq[edgeUniq(e)] = e
	}
	for dup, canon := range aliases {
		s.aliases[dup] = canon
	}
	return nil
}

// indexView exposes the unlocked index accessors to the resolver. It is
// only used while the store's write lock is already held.
type indexView struct {
	s *Store
}

func (v *indexView) NodeByKey(typ common.NodeType, key string) (*common.Node, bool) {
	return v.s.nodeByKeyLocked(typ, key)
}

func (v *indexView) NodesByBlock(typ common.NodeType, block string) []*common.Node {
	return v.s.nodesByBlockLocked(typ, block)
}

func (v *indexView) Degree(id string) int {
	return len(v.s.out[id]) + len(v.s.in[id])
}

func (s *Store) canonicalLocked(id string) string {
	for {
		next, ok := s.aliases[id]
		if !ok {
			return id
		}
		id = next
	}
}

func (s *Store) nodeByKeyLocked(typ common.NodeType, key string) (*common.Node, bool) {
	id, ok := s.byTypeKey[typ][key]
	if !ok {
		return nil, false
	}
	n, ok := s.nodes[s.canonicalLocked(id)]
	return n, ok
}

func (s *Store) nodesByBlockLocked(typ common.NodeType, block string) []*common.Node {
	bucket := s.byTypeBlock[typ][block]
	if len(bucket) == 0 {
		return nil
	}
	ids := make([]string, 0, len(bucket))
	for id := range bucket {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	result := make([]*common.Node, 0, len(ids))
	for _, id := range ids {
		if n, ok := s.nodes[id]; ok {
			result = append(result, n)
		}
	}
	return result
}

func (s *Store) indexNodeLocked(n *common.Node) {
	s.nodes[n.ID] = n
	if n.Key != "" {
		if s.byTypeKey[n.Type] == nil {
			s.byTypeKey[n.Type] = make(map[string]string)
		}
		s.byTypeKey[n.Type][n.Key] = n.ID
	}
	for _, block := range blocksFor(n) {
		if s.byTypeBlock[n.Type] == nil {
			s.byTypeBlock[n.Type] = make(map[string]map[string]bool)
		}
		if s.byTypeBlock[n.Type][block] == nil {
			s.byTypeBlock[n.Type][block] = make(map[string]bool)
		}
		s.byTypeBlock[n.Type][block][n.ID] = true
	}
}

// indexAltKeyLocked maps an alternate spelling's key onto a node a fuzzy
// match accepted for it, so the next mention hits the exact-key index.
func (s *Store) indexAltKeyLocked(typ common.NodeType, key, id string) {
	if key == "" {
		return
	}
	if s.byTypeKey[typ] == nil {
		s.byTypeKey[typ] = make(map[string]string)
	}
	if _, ok := s.byTypeKey[typ][key]; !ok {
		s.byTypeKey[typ][key] = id
	}
}

func (s *Store) unindexNodeLocked(n *common.Node) {
	delete(s.nodes, n.ID)
	for _, block := range blocksFor(n) {
		delete(s.byTypeBlock[n.Type][block], n.ID)
	}
}

// blocksFor computes the blocking-key buckets a node belongs to. PIs block
// on the surname initial, institutions on their state plus the name
// initial (state may be missing on some mentions), topics on the label
// initial. Exact-key types are never fuzzy-matched and need no bucket.
func blocksFor(n *common.Node) []string {
	switch n.Type {
	case common.NodePI:
		return []string{surnameInitial(n.Key)}
	case common.NodeInstitution:
		blocks := []string{initial(n.Key)}
		if state, ok := n.Attrs["state"].(string); ok && state != "" {
			blocks = append(blocks, state)
		}
		return blocks
	case common.NodeTopic:
		return []string{initial(n.Key)}
	default:
		return nil
	}
}

func initial(key string) string {
	if key == "" {
		return ""
	}
	return key[:1]
}

func surnameInitial(key string) string {
	if key == "" {
		return ""
	}
	last := key
	for i := len(key) - 1; i >= 0; i-- {
		if key[i] == ' ' {
			last = key[i+1:]
			break
		}
	}
	return initial(last)
}

func edgeUniq(e *common.Edge) string {
	return string(e.Type) + "|" + e.Source + "|" + e.Target + "|" + e.TimeScope
}

// copyNode and copyEdge deep-copy a graph element including its Attrs map.
// Every exported read accessor hands out copies, so results stay stable
// while ingest keeps mutating the stored originals.
func copyNode(n *common.Node) *common.Node {
	c := *n
	c.Attrs = copyAttrs(n.Attrs)
	return &c
}

func copyEdge(e *common.Edge) *common.Edge {
	c := *e
	c.Attrs = copyAttrs(e.Attrs)
	return &c
}

func copyAttrs(attrs map[string]any) map[string]any {
	if attrs == nil {
		return nil
	}
	c := make(map[string]any, len(attrs))
	for k, v := range attrs {
		c[k] = v
	}
	return c
}

func copyEdges(edges []*common.Edge) []*common.Edge {
	result := make([]*common.Edge, len(edges))
	for i, e := range edges {
		result[i] = copyEdge(e)
	}
	return result
}

// GetNode returns the node for id, resolving merge aliases.
func (s *Store) GetNode(id string) (*common.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.nodes[s.canonicalLocked(id)]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, common.ErrUnknownNode)
	}
	return copyNode(n), nil
}

func (s *Store) NodeByKey(typ common.NodeType, key string) (*common.Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.nodeByKeyLocked(typ, key)
	if !ok {
		return nil, false
	}
	return copyNode(n), true
}

func (s *Store) NodesByType(typ common.NodeType) []*common.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*common.Node, 0)
	for _, n := range s.nodes {
		if n.Type == typ {
			result = append(result, copyNode(n))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

func (s *Store) EdgesFrom(id string) []*common.Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyEdges(sortedEdges(s.out[s.canonicalLocked(id)]))
}

func (s *Store) EdgesTo(id string) []*common.Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyEdges(sortedEdges(s.in[s.canonicalLocked(id)]))
}

func sortedEdges(edges []*common.Edge) []*common.Edge {
	result := make([]*common.Edge, len(edges))
	copy(result, edges)
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// Neighborhood collects the seed nodes plus their direct neighbors, capped
// at maxNodes, and every edge whose endpoints both made the cut.
func (s *Store) Neighborhood(seedIDs []string, maxNodes int) ([]*common.Node, []*common.Edge) {
	if maxNodes <= 0 {
		maxNodes = 50
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	included := make(map[string]bool)
	ordered := make([]string, 0, maxNodes)
	add := func(id string) {
		id = s.canonicalLocked(id)
		if included[id] || len(ordered) >= maxNodes {
			return
		}
		if _, ok := s.nodes[id]; !ok {
			return
		}
		included[id] = true
		ordered = append(ordered, id)
	}

	for _, id := range seedIDs {
		add(id)
	}
	seeds := make([]string, len(ordered))
	copy(seeds, ordered)
	for _, id := range seeds {
		for _, e := range sortedEdges(s.out[id]) {
			add(e.Target)
		}
		for _, e := range sortedEdges(s.in[id]) {
			add(e.Source)
		}
	}

	nodes := make([]*common.Node, 0, len(ordered))
	for _, id := range ordered {
		nodes = append(nodes, copyNode(s.nodes[id]))
	}

	edges := make([]*common.Edge, 0)
	for _, id := range ordered {
		for _, e := range s.out[id] {
			if included[e.Target] {
				edges = append(edges, copyEdge(e))
			}
		}
	}
	sort.Slice(edges, func(i, j int) bool { return edges[i].ID < edges[j].ID })

	return nodes, edges
}
