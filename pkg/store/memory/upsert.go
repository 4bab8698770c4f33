package memory

import (
	"context"
	"fmt"
	"sort"

	"awardgraph/pkg/common"
	"awardgraph/pkg/logger"
	"awardgraph/pkg/resolve"

	"awardgraph/internal/util"
)

// mutation accumulates the net effect of one write so it can be mirrored
// to the persister after the in-memory apply commits.
type mutation struct {
	savedNodes   map[string]*common.Node
	savedEdges   map[string]*common.Edge
	deletedNodes map[string]bool
	deletedEdges map[string]bool
	aliases      [][2]string
}

func newMutation() *mutation {
	return &mutation{
		savedNodes:   make(map[string]*common.Node),
		savedEdges:   make(map[string]*common.Edge),
		deletedNodes: make(map[string]bool),
		deletedEdges: make(map[string]bool),
	}
}

func (m *mutation) saveNode(n *common.Node)  { m.savedNodes[n.ID] = n }
func (m *mutation) saveEdge(e *common.Edge)  { m.savedEdges[e.ID] = e }
func (m *mutation) deleteNode(id string)     { m.deletedNodes[id] = true; delete(m.savedNodes, id) }
func (m *mutation) deleteEdge(id string)     { m.deletedEdges[id] = true; delete(m.savedEdges, id) }
func (m *mutation) alias(dup, canon string)  { m.aliases = append(m.aliases, [2]string{dup, canon}) }

// identityKeys lists every identity key an upsert may read or write, for
// the keyset lock. Fuzzy resolution can touch any node in a blocking
// bucket, so buckets are part of the key set too.
func identityKeys(frag *common.RecordFragment) []string {
	keys := []string{
		"award|" + frag.AwardNumber,
		"program|" + frag.Program.Code,
		"institution|" + frag.Institution.Name.Key,
		"block|institution|" + initial(frag.Institution.Name.Key),
	}
	if frag.Institution.State != "" {
		keys = append(keys, "block|institution|"+frag.Institution.State)
	}
	for _, pi := range frag.PIs {
		keys = append(keys, "pi|"+pi.Name.Key, "block|pi|"+surnameInitial(pi.Name.Key))
	}
	for _, t := range frag.Topics {
		keys = append(keys, "topic|"+t.Label.Key, "block|topic|"+initial(t.Label.Key))
	}
	return keys
}

// UpsertAward installs one normalized award record atomically: the award
// node, every resolved endpoint entity, and the full edge set become
// visible together or not at all. Re-applying the same fragment converges
// to the same graph. Persistence happens after the in-memory commit; a
// persistence failure is reported but the applied state stands, and the
// next successful write re-mirrors the touched rows.
func (s *Store) UpsertAward(ctx context.Context, frag *common.RecordFragment) (string, error) {
	if frag == nil || frag.AwardNumber == "" {
		return "", fmt.Errorf("fragment has no award number: %w", common.ErrMalformedRecord)
	}

	keys := identityKeys(frag)
	s.locks.Acquire(keys)
	defer s.locks.Release(keys)

	mut := newMutation()

	s.mu.Lock()
	awardID, err := s.applyAwardLocked(frag, mut)
	s.mu.Unlock()
	if err != nil {
		return "", err
	}

	if err := s.persist(ctx, mut); err != nil {
		logger.Error("[Store] Award applied in memory but persistence failed",
			"award", frag.AwardNumber, "error", err)
		return awardID, fmt.Errorf("failed to persist award %s: %w", frag.AwardNumber, err)
	}
	return awardID, nil
}

func (s *Store) applyAwardLocked(frag *common.RecordFragment, mut *mutation) (string, error) {
	awardAttrs := map[string]any{
		"amount":     frag.Amount,
		"start_date": frag.StartDate,
		"end_date":   frag.EndDate,
		"abstract":   frag.Abstract,
	}
	awardID, err := s.resolveEntityLocked(common.NodeAward, frag.AwardNumber, "", frag.Title, awardAttrs, mut)
	if err != nil {
		return "", err
	}

	program := frag.Program
	if program.Code == "" {
		// Records without any program information still need a fundedBy
		// endpoint; they share one well-known bucket node.
		program = common.ProgramFragment{Code: "UNSPECIFIED", Name: "Unspecified Program"}
	}
	programID, err := s.resolveEntityLocked(common.NodeProgram, program.Code, "", program.Name, nil, mut)
	if err != nil {
		return "", err
	}
	s.setSingleEdgeLocked(common.EdgeFundedBy, awardID, programID, nil, mut)

	inst := frag.Institution
	if inst.Name.Key == "" {
		inst.Name = common.NameField{Raw: "Unknown Institution", Key: "unknown institution"}
	}
	instAttrs := map[string]any{}
	if inst.City != "" {
		instAttrs["city"] = inst.City
	}
	if inst.State != "" {
		instAttrs["state"] = inst.State
	}
	instBlock := inst.State
	if instBlock == "" {
		instBlock = initial(inst.Name.Key)
	}
	instID, err := s.resolveEntityLocked(common.NodeInstitution, inst.Name.Key, instBlock, inst.Name.Raw, instAttrs, mut)
	if err != nil {
		return "", err
	}
	s.setSingleEdgeLocked(common.EdgeHostedAt, awardID, instID, nil, mut)

	year := startYear(frag.StartDate)
	for _, pi := range frag.PIs {
		if pi.Name.Key == "" {
			continue
		}
		piAttrs := map[string]any{}
		if pi.Email != "" {
			piAttrs["email"] = pi.Email
		}
		piID, err := s.resolveEntityLocked(common.NodePI, pi.Name.Key, surnameInitial(pi.Name.Key), pi.Name.Raw, piAttrs, mut)
		if err != nil {
			return "", err
		}
		s.addEdgeLocked(common.EdgeLedBy, awardID, piID, "", map[string]any{"role": pi.Role}, mut)
		if year != "" {
			s.addEdgeLocked(common.EdgeAffiliatedWith, piID, instID, year, nil, mut)
		}
	}

	for _, t := range frag.Topics {
		if t.Label.Key == "" {
			continue
		}
		topicID, err := s.resolveEntityLocked(common.NodeTopic, t.Label.Key, initial(t.Label.Key), t.Label.Raw, nil, mut)
		if err != nil {
			return "", err
		}
		s.addEdgeLocked(common.EdgeCoversTopic, awardID, topicID, "", map[string]any{"weight": t.Weight}, mut)
	}

	return awardID, nil
}

// resolveEntityLocked runs entity resolution for one mention and applies
// the decision: reuse, create, or merge-then-reuse. Returns the canonical
// node id for the mention.
func (s *Store) resolveEntityLocked(typ common.NodeType, key, block, label string, attrs map[string]any, mut *mutation) (string, error) {
	dec := s.resolver.Resolve(typ, key, block)

	switch dec.Action {
	case resolve.ActionMerge:
		if err := s.mergeLocked(dec.SurvivorID, dec.DuplicateID, mut); err != nil {
			return "", err
		}
		s.enrichNodeLocked(dec.SurvivorID, label, attrs, mut)
		s.indexAltKeyLocked(typ, key, dec.SurvivorID)
		return dec.SurvivorID, nil
	case resolve.ActionMatch:
		s.enrichNodeLocked(dec.NodeID, label, attrs, mut)
		s.indexAltKeyLocked(typ, key, dec.NodeID)
		return dec.NodeID, nil
	default:
		n := &common.Node{
			ID:    util.NewID(string(typ)),
			Type:  typ,
			Label: label,
			Key:   key,
			Attrs: attrs,
		}
		if n.Label == "" {
			n.Label = key
		}
		s.indexNodeLocked(n)
		mut.saveNode(n)
		return n.ID, nil
	}
}

// enrichNodeLocked folds a fresh mention's fields into an existing node:
// missing attributes are filled, never overwritten, and the longer label
// wins since abbreviated mentions carry less information.
func (s *Store) enrichNodeLocked(id, label string, attrs map[string]any, mut *mutation) {
	n, ok := s.nodes[s.canonicalLocked(id)]
	if !ok {
		return
	}
	changed := false
	if len(label) > len(n.Label) {
		n.Label = label
		changed = true
	}
	for k, v := range attrs {
		if _, exists := n.Attrs[k]; exists {
			continue
		}
		if n.Attrs == nil {
			n.Attrs = make(map[string]any)
		}
		n.Attrs[k] = v
		changed = true
	}
	if changed {
		mut.saveNode(n)
	}
}

// addEdgeLocked inserts an edge unless one with the same type, endpoints,
// and time scope already exists, in which case the existing edge absorbs
// the new attributes.
func (s *Store) addEdgeLocked(typ common.EdgeType, src, tgt, scope string, attrs map[string]any, mut *mutation) *common.Edge {
	probe := &common.Edge{Type: typ, Source: src, Target: tgt, TimeScope: scope}
	if existing, ok := s.edgeByUniq[edgeUniq(probe)]; ok {
		changed := false
		for k, v := range attrs {
			if existing.Attrs == nil {
				existing.Attrs = make(map[string]any)
			}
			if existing.Attrs[k] != v {
				existing.Attrs[k] = v
				changed = true
			}
		}
		if changed {
			mut.saveEdge(existing)
		}
		return existing
	}

	e := &common.Edge{
		ID:        util.NewID("edge"),
		Type:      typ,
		Source:    src,
		Target:    tgt,
		TimeScope: scope,
		Attrs:     attrs,
	}
	s.out[src] = append(s.out[src], e)
	s.in[tgt] = append(s.in[tgt], e)
	s.edgeByUniq[edgeUniq(e)] = e
	mut.saveEdge(e)
	return e
}

// setSingleEdgeLocked enforces at-most-one outgoing edge of the given type
// from src. A re-ingested award whose program or institution resolution
// changed drops the stale edge and gains the new one.
func (s *Store) setSingleEdgeLocked(typ common.EdgeType, src, tgt string, attrs map[string]any, mut *mutation) {
	for _, e := range s.out[src] {
		if e.Type != typ {
			continue
		}
		if e.Target == tgt {
			s.addEdgeLocked(typ, src, tgt, "", attrs, mut)
			return
		}
		s.removeEdgeLocked(e)
		mut.deleteEdge(e.ID)
		break
	}
	s.addEdgeLocked(typ, src, tgt, "", attrs, mut)
}

func (s *Store) removeEdgeLocked(e *common.Edge) {
	s.out[e.Source] = withoutEdge(s.out[e.Source], e.ID)
	s.in[e.Target] = withoutEdge(s.in[e.Target], e.ID)
	delete(s.edgeByUniq, edgeUniq(e))
}

func withoutEdge(edges []*common.Edge, id string) []*common.Edge {
	for i, e := range edges {
		if e.ID == id {
			return append(edges[:i], edges[i+1:]...)
		}
	}
	return edges
}

// persist mirrors a committed mutation to the durable backend. Upserts go
// first so a crash between phases loses deletions, not data.
func (s *Store) persist(ctx context.Context, mut *mutation) error {
	if s.persister == nil {
		return nil
	}

	if len(mut.savedNodes) > 0 {
		if err := s.persister.SaveNodes(ctx, sortedNodeValues(mut.savedNodes)); err != nil {
			return err
		}
	}
	if len(mut.savedEdges) > 0 {
		if err := s.persister.SaveEdges(ctx, sortedEdgeValues(mut.savedEdges)); err != nil {
			return err
		}
	}
	if len(mut.deletedEdges) > 0 {
		if err := s.persister.DeleteEdges(ctx, sortedIDs(mut.deletedEdges)); err != nil {
			return err
		}
	}
	for _, pair := range mut.aliases {
		if err := s.persister.SaveAlias(ctx, pair[0], pair[1]); err != nil {
			return err
		}
	}
	if len(mut.deletedNodes) > 0 {
		if err := s.persister.DeleteNodes(ctx, sortedIDs(mut.deletedNodes)); err != nil {
			return err
		}
	}
	return nil
}

func sortedNodeValues(m map[string]*common.Node) []*common.Node {
	out := make([]*common.Node, 0, len(m))
	for _, n := range m {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func sortedEdgeValues(m map[string]*common.Edge) []*common.Edge {
	out := make([]*common.Edge, 0, len(m))
	for _, e := range m {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func sortedIDs(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// startYear extracts the four-digit year from an MM/DD/YYYY date.
func startYear(date string) string {
	if len(date) < 4 {
		return ""
	}
	year := date[len(date)-4:]
	for i := 0; i < 4; i++ {
		if year[i] < '0' || year[i] > '9' {
			return ""
		}
	}
	return year
}
