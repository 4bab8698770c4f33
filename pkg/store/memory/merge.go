package memory

import (
	"context"
	"fmt"

	"awardgraph/pkg/common"
	"awardgraph/pkg/logger"
)

// MergeNodes folds duplicate into survivor: every edge incident to the
// duplicate is re-pointed at the survivor, colliding edges are collapsed,
// and the duplicate id becomes a permanent alias so stale references keep
// resolving. Cost is proportional to the duplicate's degree.
func (s *Store) MergeNodes(survivorID, duplicateID string) error {
	mut := newMutation()

	s.mu.Lock()
	err := s.mergeLocked(survivorID, duplicateID, mut)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	if err := s.persist(context.Background(), mut); err != nil {
		logger.Error("[Store] Merge applied in memory but persistence failed",
			"survivor", survivorID, "duplicate", duplicateID, "error", err)
		return fmt.Errorf("failed to persist merge of %s into %s: %w", duplicateID, survivorID, err)
	}
	return nil
}

func (s *Store) mergeLocked(survivorID, duplicateID string, mut *mutation) error {
	survivor, ok := s.nodes[s.canonicalLocked(survivorID)]
	if !ok {
		return fmt.Errorf("merge survivor %s: %w", survivorID, common.ErrUnknownNode)
	}
	duplicate, ok := s.nodes[s.canonicalLocked(duplicateID)]
	if !ok {
		return fmt.Errorf("merge duplicate %s: %w", duplicateID, common.ErrUnknownNode)
	}
	if survivor.ID == duplicate.ID {
		return fmt.Errorf("%s and %s resolve to the same node: %w",
			survivorID, duplicateID, common.ErrIdentityConflict)
	}
	if survivor.Type != duplicate.Type {
		return fmt.Errorf("cannot merge %s node into %s node: %w",
			duplicate.Type, survivor.Type, common.ErrIdentityConflict)
	}

	for _, e := range append([]*common.Edge(nil), s.out[duplicate.ID]...) {
		s.repointEdgeLocked(e, duplicate.ID, survivor.ID, true, mut)
	}
	for _, e := range append([]*common.Edge(nil), s.in[duplicate.ID]...) {
		s.repointEdgeLocked(e, duplicate.ID, survivor.ID, false, mut)
	}

	// The duplicate's key keeps resolving, now to the survivor, and the
	// survivor absorbs any attributes it was missing.
	s.unindexNodeLocked(duplicate)
	if duplicate.Key != "" {
		if s.byTypeKey[duplicate.Type] == nil {
			s.byTypeKey[duplicate.Type] = make(map[string]string)
		}
		s.byTypeKey[duplicate.Type][duplicate.Key] = survivor.ID
	}
	s.enrichNodeLocked(survivor.ID, duplicate.Label, duplicate.Attrs, mut)

	s.aliases[duplicate.ID] = survivor.ID
	mut.alias(duplicate.ID, survivor.ID)
	mut.deleteNode(duplicate.ID)
	mut.saveNode(survivor)

	logger.Info("[Store] Merged nodes",
		"type", survivor.Type, "survivor", survivor.ID, "duplicate", duplicate.ID)
	return nil
}

// repointEdgeLocked moves one of the duplicate's edges onto the survivor.
// Self-loops are dropped; an edge that collides with an existing survivor
// edge of the same type, endpoints, and time scope is folded into it.
func (s *Store) repointEdgeLocked(e *common.Edge, dupID, survID string, outgoing bool, mut *mutation) {
	s.removeEdgeLocked(e)

	if outgoing {
		e.Source = survID
	} else {
		e.Target = survID
	}

	if e.Source == e.Target {
		mut.deleteEdge(e.ID)
		return
	}

	if existing, ok := s.edgeByUniq[edgeUniq(e)]; ok {
		for k, v := range e.Attrs {
			if existing.Attrs == nil {
				existing.Attrs = make(map[string]any)
			}
			if _, has := existing.Attrs[k]; !has {
				existing.Attrs[k] = v
			}
		}
		mut.saveEdge(existing)
		mut.deleteEdge(e.ID)
		return
	}

	s.out[e.Source] = append(s.out[e.Source], e)
	s.in[e.Target] = append(s.in[e.Target], e)
	s.edgeByUniq[edgeUniq(e)] = e
	mut.saveEdge(e)
}
