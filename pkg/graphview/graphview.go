package graphview

import (
	"sort"

	"awardgraph/pkg/common"
	"awardgraph/pkg/store"
)

// DefaultMaxNodes bounds an exported view when the caller does not.
const DefaultMaxNodes = 50

// Export renders the subgraph around an answer's referenced entities as a
// serializable view for the visualization front end. Seeds come from the
// bundle's fact provenance; the view contains the seeds, their direct
// neighbors up to maxNodes, and every edge between included nodes.
func Export(gs store.GraphStore, bundle *common.AnswerBundle, maxNodes int) *common.GraphView {
	if maxNodes <= 0 {
		maxNodes = DefaultMaxNodes
	}

	view := &common.GraphView{
		Nodes: make([]common.ViewNode, 0),
		Edges: make([]common.ViewEdge, 0),
	}
	if bundle == nil {
		return view
	}

	seen := make(map[string]bool)
	seeds := make([]string, 0)
	for _, fact := range bundle.Facts {
		for _, id := range fact.Provenance.NodeIDs {
			if seen[id] {
				continue
			}
			seen[id] = true
			seeds = append(seeds, id)
		}
	}
	if len(seeds) == 0 {
		return view
	}
	sort.Strings(seeds)

	nodes, edges := gs.Neighborhood(seeds, maxNodes)
	for _, n := range nodes {
		view.Nodes = append(view.Nodes, common.ViewNode{
			ID:    n.ID,
			Type:  n.Type,
			Label: n.Label,
			Attrs: n.Attrs,
		})
	}
	for _, e := range edges {
		attrs := e.Attrs
		if e.TimeScope != "" {
			attrs = make(map[string]any, len(e.Attrs)+1)
			for k, v := range e.Attrs {
				attrs[k] = v
			}
			attrs["time_scope"] = e.TimeScope
		}
		view.Edges = append(view.Edges, common.ViewEdge{
			ID:     e.ID,
			Type:   e.Type,
			Source: e.Source,
			Target: e.Target,
			Attrs:  attrs,
		})
	}

	return view
}
