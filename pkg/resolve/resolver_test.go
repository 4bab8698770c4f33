package resolve

import (
	"testing"

	"awardgraph/pkg/common"
)

// fakeIndex is a hand-filled CandidateIndex for resolver tests.
type fakeIndex struct {
	nodes   map[string]*common.Node
	byKey   map[string]string
	byBlock map[string][]string
	degrees map[string]int
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{
		nodes:   make(map[string]*common.Node),
		byKey:   make(map[string]string),
		byBlock: make(map[string][]string),
		degrees: make(map[string]int),
	}
}

func (f *fakeIndex) add(id string, typ common.NodeType, key, block string, degree int) {
	f.nodes[id] = &common.Node{ID: id, Type: typ, Key: key}
	f.byKey[string(typ)+"|"+key] = id
	f.byBlock[string(typ)+"|"+block] = append(f.byBlock[string(typ)+"|"+block], id)
	f.degrees[id] = degree
}

func (f *fakeIndex) NodeByKey(typ common.NodeType, key string) (*common.Node, bool) {
	id, ok := f.byKey[string(typ)+"|"+key]
	if !ok {
		return nil, false
	}
	return f.nodes[id], true
}

func (f *fakeIndex) NodesByBlock(typ common.NodeType, block string) []*common.Node {
	ids := f.byBlock[string(typ)+"|"+block]
	nodes := make([]*common.Node, 0, len(ids))
	for _, id := range ids {
		nodes = append(nodes, f.nodes[id])
	}
	return nodes
}

func (f *fakeIndex) Degree(id string) int {
	return f.degrees[id]
}

func TestResolveExactKeyTypes(t *testing.T) {
	t.Parallel()

	idx := newFakeIndex()
	idx.add("award_1", common.NodeAward, "2301234", "", 3)
	r := New(idx, 0)

	got := r.Resolve(common.NodeAward, "2301234", "")
	if got.Action != ActionMatch || got.NodeID != "award_1" {
		t.Fatalf("Resolve existing award = %+v, want match award_1", got)
	}

	got = r.Resolve(common.NodeAward, "9999999", "")
	if got.Action != ActionCreate {
		t.Fatalf("Resolve unknown award = %+v, want create", got)
	}

	// Awards never fuzzy match, even with a near-identical key present.
	got = r.Resolve(common.NodeAward, "2301235", "")
	if got.Action != ActionCreate {
		t.Fatalf("Resolve near-miss award number = %+v, want create", got)
	}
}

func TestResolveFuzzyMatch(t *testing.T) {
	t.Parallel()

	idx := newFakeIndex()
	idx.add("inst_1", common.NodeInstitution, "state university", "OH", 5)
	r := New(idx, 0)

	got := r.Resolve(common.NodeInstitution, "state univ", "OH")
	if got.Action != ActionMatch || got.NodeID != "inst_1" {
		t.Fatalf("Resolve abbreviated name = %+v, want match inst_1", got)
	}
	if got.Score < DefaultThreshold {
		t.Fatalf("match score = %v, want >= %v", got.Score, DefaultThreshold)
	}
}

func TestResolveBelowThresholdCreates(t *testing.T) {
	t.Parallel()

	idx := newFakeIndex()
	idx.add("inst_1", common.NodeInstitution, "state university", "OH", 5)
	r := New(idx, 0)

	got := r.Resolve(common.NodeInstitution, "tech institute", "OH")
	if got.Action != ActionCreate {
		t.Fatalf("Resolve dissimilar name = %+v, want create", got)
	}
}

func TestResolveEmptyKeyCreates(t *testing.T) {
	t.Parallel()

	r := New(newFakeIndex(), 0)
	if got := r.Resolve(common.NodePI, "", "s"); got.Action != ActionCreate {
		t.Fatalf("Resolve empty key = %+v, want create", got)
	}
}

func TestResolveConvergedNodesIssueMerge(t *testing.T) {
	t.Parallel()

	// Two nodes that should be one: the exact key hit and a distinct
	// above-threshold candidate. The higher-degree node survives.
	idx := newFakeIndex()
	idx.add("pi_exact", common.NodePI, "j smith", "s", 1)
	idx.add("pi_full", common.NodePI, "jane smith", "s", 4)
	r := New(idx, 0)

	got := r.Resolve(common.NodePI, "j smith", "s")
	if got.Action != ActionMerge {
		t.Fatalf("Resolve converged keys = %+v, want merge", got)
	}
	if got.SurvivorID != "pi_full" || got.DuplicateID != "pi_exact" {
		t.Fatalf("merge chose survivor %q duplicate %q, want pi_full/pi_exact",
			got.SurvivorID, got.DuplicateID)
	}
	if got.NodeID != got.SurvivorID {
		t.Fatalf("merge NodeID = %q, want survivor id", got.NodeID)
	}
}

func TestResolveCandidateTieBreak(t *testing.T) {
	t.Parallel()

	// Equal-scoring candidates: higher degree wins, then lower id.
	idx := newFakeIndex()
	idx.add("topic_b", common.NodeTopic, "neural networks", "n", 2)
	idx.add("topic_a", common.NodeTopic, "neural networks ", "n", 2)
	r := New(idx, 0)

	got := r.Resolve(common.NodeTopic, "neural network", "n")
	if got.Action != ActionMatch {
		t.Fatalf("Resolve = %+v, want match", got)
	}
	if got.NodeID != "topic_a" {
		t.Fatalf("tie-break chose %q, want topic_a", got.NodeID)
	}
}
