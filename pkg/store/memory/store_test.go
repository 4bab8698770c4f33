package memory

import (
	"context"
	"errors"
	"testing"

	"awardgraph/pkg/common"
	"awardgraph/pkg/store"
)

func testFragment(number string) *common.RecordFragment {
	return &common.RecordFragment{
		AwardNumber: number,
		Title:       "Adaptive Sensor Networks",
		Amount:      500000,
		StartDate:   "08/15/2023",
		EndDate:     "07/31/2026",
		Program:     common.ProgramFragment{Code: "CPS", Name: "Cyber-Physical Systems"},
		Institution: common.InstitutionFragment{
			Name:  common.NameField{Raw: "State University", Key: "state university"},
			City:  "Columbus",
			State: "OH",
		},
		PIs: []common.PIFragment{
			{Name: common.NameField{Raw: "Jane Smith", Key: "jane smith"}, Role: "pi"},
			{Name: common.NameField{Raw: "Robert Chen", Key: "robert chen"}, Role: "co-pi"},
		},
		Topics: []common.TopicFragment{
			{Label: common.NameField{Raw: "sensor networks", Key: "sensor networks"}, Weight: 1.0},
			{Label: common.NameField{Raw: "machine learning", Key: "machine learning"}, Weight: 0.6},
		},
	}
}

func countEdges(t *testing.T, s *Store, id string, typ common.EdgeType) int {
	t.Helper()
	n := 0
	for _, e := range s.EdgesFrom(id) {
		if e.Type == typ {
			n++
		}
	}
	return n
}

func TestUpsertAwardCreatesFullEdgeSet(t *testing.T) {
	t.Parallel()

	s := NewStore(NewStoreParams{})
	awardID, err := s.UpsertAward(context.Background(), testFragment("2301234"))
	if err != nil {
		t.Fatalf("UpsertAward() error = %v", err)
	}

	award, err := s.GetNode(awardID)
	if err != nil {
		t.Fatalf("GetNode(%s) error = %v", awardID, err)
	}
	if award.Type != common.NodeAward || award.Key != "2301234" {
		t.Fatalf("award node = %+v", award)
	}

	if got := countEdges(t, s, awardID, common.EdgeFundedBy); got != 1 {
		t.Fatalf("fundedBy edges = %d, want 1", got)
	}
	if got := countEdges(t, s, awardID, common.EdgeHostedAt); got != 1 {
		t.Fatalf("hostedAt edges = %d, want 1", got)
	}
	if got := countEdges(t, s, awardID, common.EdgeLedBy); got != 2 {
		t.Fatalf("ledBy edges = %d, want 2", got)
	}
	if got := countEdges(t, s, awardID, common.EdgeCoversTopic); got != 2 {
		t.Fatalf("coversTopic edges = %d, want 2", got)
	}

	// Each PI is affiliated with the institution for the award's start year.
	pi, ok := s.NodeByKey(common.NodePI, "jane smith")
	if !ok {
		t.Fatal("pi node missing")
	}
	affiliations := 0
	for _, e := range s.EdgesFrom(pi.ID) {
		if e.Type == common.EdgeAffiliatedWith {
			affiliations++
			if e.TimeScope != "2023" {
				t.Fatalf("affiliation time scope = %q, want 2023", e.TimeScope)
			}
		}
	}
	if affiliations != 1 {
		t.Fatalf("affiliations = %d, want 1", affiliations)
	}
}

func TestUpsertAwardIdempotent(t *testing.T) {
	t.Parallel()

	s := NewStore(NewStoreParams{})
	ctx := context.Background()

	first, err := s.UpsertAward(ctx, testFragment("2301234"))
	if err != nil {
		t.Fatalf("first UpsertAward() error = %v", err)
	}
	nodesBefore := len(s.NodesByType(common.NodeAward)) + len(s.NodesByType(common.NodePI)) +
		len(s.NodesByType(common.NodeInstitution)) + len(s.NodesByType(common.NodeProgram)) +
		len(s.NodesByType(common.NodeTopic))
	edgesBefore := len(s.EdgesFrom(first))

	second, err := s.UpsertAward(ctx, testFragment("2301234"))
	if err != nil {
		t.Fatalf("second UpsertAward() error = %v", err)
	}
	if second != first {
		t.Fatalf("re-upsert returned %s, want %s", second, first)
	}

	nodesAfter := len(s.NodesByType(common.NodeAward)) + len(s.NodesByType(common.NodePI)) +
		len(s.NodesByType(common.NodeInstitution)) + len(s.NodesByType(common.NodeProgram)) +
		len(s.NodesByType(common.NodeTopic))
	if nodesAfter != nodesBefore {
		t.Fatalf("node count changed %d -> %d on re-upsert", nodesBefore, nodesAfter)
	}
	if got := len(s.EdgesFrom(first)); got != edgesBefore {
		t.Fatalf("edge count changed %d -> %d on re-upsert", edgesBefore, got)
	}
}

func TestUpsertAwardRejectsMissingNumber(t *testing.T) {
	t.Parallel()

	s := NewStore(NewStoreParams{})
	_, err := s.UpsertAward(context.Background(), &common.RecordFragment{})
	if !errors.Is(err, common.ErrMalformedRecord) {
		t.Fatalf("UpsertAward() error = %v, want ErrMalformedRecord", err)
	}
}

func TestUpsertAwardDeduplicatesInstitutions(t *testing.T) {
	t.Parallel()

	s := NewStore(NewStoreParams{})
	ctx := context.Background()

	if _, err := s.UpsertAward(ctx, testFragment("2301234")); err != nil {
		t.Fatalf("UpsertAward() error = %v", err)
	}

	other := testFragment("2301235")
	other.Institution.Name = common.NameField{Raw: "State Univ.", Key: "state univ"}
	if _, err := s.UpsertAward(ctx, other); err != nil {
		t.Fatalf("UpsertAward() error = %v", err)
	}

	if got := len(s.NodesByType(common.NodeInstitution)); got != 1 {
		t.Fatalf("institutions = %d, want 1 after fuzzy dedupe", got)
	}

	// Both spellings resolve to the same node through the key index.
	byFull, _ := s.NodeByKey(common.NodeInstitution, "state university")
	byAbbrev, ok := s.NodeByKey(common.NodeInstitution, "state univ")
	if !ok || byAbbrev.ID != byFull.ID {
		t.Fatalf("abbreviated key resolved to %+v, want %s", byAbbrev, byFull.ID)
	}
}

func TestMergeNodesRepointsEdgesAndAliases(t *testing.T) {
	t.Parallel()

	s := NewStore(NewStoreParams{})
	ctx := context.Background()

	if _, err := s.UpsertAward(ctx, testFragment("2301234")); err != nil {
		t.Fatalf("UpsertAward() error = %v", err)
	}
	other := testFragment("2301235")
	other.PIs = []common.PIFragment{
		{Name: common.NameField{Raw: "Janet Smythe", Key: "janet smythe"}, Role: "pi"},
	}
	if _, err := s.UpsertAward(ctx, other); err != nil {
		t.Fatalf("UpsertAward() error = %v", err)
	}

	survivor, _ := s.NodeByKey(common.NodePI, "jane smith")
	duplicate, _ := s.NodeByKey(common.NodePI, "janet smythe")
	if survivor.ID == duplicate.ID {
		t.Fatal("test setup produced one node, want two")
	}

	if err := s.MergeNodes(survivor.ID, duplicate.ID); err != nil {
		t.Fatalf("MergeNodes() error = %v", err)
	}

	// The duplicate id keeps resolving through the alias table.
	got, err := s.GetNode(duplicate.ID)
	if err != nil {
		t.Fatalf("GetNode(duplicate) error = %v", err)
	}
	if got.ID != survivor.ID {
		t.Fatalf("alias resolved to %s, want %s", got.ID, survivor.ID)
	}

	// The survivor now leads both awards.
	ledBy := 0
	for _, e := range s.EdgesTo(survivor.ID) {
		if e.Type == common.EdgeLedBy {
			ledBy++
		}
	}
	if ledBy != 2 {
		t.Fatalf("survivor ledBy edges = %d, want 2", ledBy)
	}

	// No edge still references the duplicate.
	for _, e := range s.EdgesTo(survivor.ID) {
		if e.Source == duplicate.ID || e.Target == duplicate.ID {
			t.Fatalf("edge %s still references duplicate", e.ID)
		}
	}
}

func TestMergeNodesCollapsesDuplicateEdges(t *testing.T) {
	t.Parallel()

	s := NewStore(NewStoreParams{})
	ctx := context.Background()

	// Same award, so both PI mentions produce ledBy edges from one source.
	frag := testFragment("2301234")
	frag.PIs = []common.PIFragment{
		{Name: common.NameField{Raw: "Jane Smith", Key: "jane smith"}, Role: "pi"},
		{Name: common.NameField{Raw: "Janet Smythe", Key: "janet smythe"}, Role: "co-pi"},
	}
	awardID, err := s.UpsertAward(ctx, frag)
	if err != nil {
		t.Fatalf("UpsertAward() error = %v", err)
	}

	survivor, _ := s.NodeByKey(common.NodePI, "jane smith")
	duplicate, _ := s.NodeByKey(common.NodePI, "janet smythe")
	if err := s.MergeNodes(survivor.ID, duplicate.ID); err != nil {
		t.Fatalf("MergeNodes() error = %v", err)
	}

	if got := countEdges(t, s, awardID, common.EdgeLedBy); got != 1 {
		t.Fatalf("ledBy edges after merge = %d, want 1", got)
	}
}

func TestMergeNodesErrors(t *testing.T) {
	t.Parallel()

	s := NewStore(NewStoreParams{})
	ctx := context.Background()
	awardID, err := s.UpsertAward(ctx, testFragment("2301234"))
	if err != nil {
		t.Fatalf("UpsertAward() error = %v", err)
	}
	pi, _ := s.NodeByKey(common.NodePI, "jane smith")

	if err := s.MergeNodes("node_missing", pi.ID); !errors.Is(err, common.ErrUnknownNode) {
		t.Fatalf("merge with unknown survivor error = %v, want ErrUnknownNode", err)
	}
	if err := s.MergeNodes(pi.ID, pi.ID); !errors.Is(err, common.ErrIdentityConflict) {
		t.Fatalf("self merge error = %v, want ErrIdentityConflict", err)
	}
	if err := s.MergeNodes(awardID, pi.ID); !errors.Is(err, common.ErrIdentityConflict) {
		t.Fatalf("cross-type merge error = %v, want ErrIdentityConflict", err)
	}
}

func TestTraverse(t *testing.T) {
	t.Parallel()

	s := NewStore(NewStoreParams{})
	ctx := context.Background()

	if _, err := s.UpsertAward(ctx, testFragment("2301234")); err != nil {
		t.Fatalf("UpsertAward() error = %v", err)
	}
	other := testFragment("2301235")
	other.Topics = []common.TopicFragment{
		{Label: common.NameField{Raw: "sensor networks", Key: "sensor networks"}, Weight: 0.8},
	}
	if _, err := s.UpsertAward(ctx, other); err != nil {
		t.Fatalf("UpsertAward() error = %v", err)
	}

	pi, _ := s.NodeByKey(common.NodePI, "jane smith")

	paths, err := s.Traverse(ctx, store.TraverseOptions{
		StartIDs:  []string{pi.ID},
		EdgeTypes: []common.EdgeType{common.EdgeLedBy},
		MaxHops:   1,
	})
	if err != nil {
		t.Fatalf("Traverse() error = %v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("paths = %d, want 2 awards led by pi", len(paths))
	}
	for _, p := range paths {
		if len(p.NodeIDs) != 2 || len(p.EdgeIDs) != 1 {
			t.Fatalf("one-hop path shape = %+v", p)
		}
		if p.NodeIDs[0] != pi.ID {
			t.Fatalf("path starts at %s, want %s", p.NodeIDs[0], pi.ID)
		}
	}

	// Scores are sorted descending with deterministic tie-breaks.
	for i := 1; i < len(paths); i++ {
		if paths[i].Score > paths[i-1].Score {
			t.Fatalf("paths out of order: %v then %v", paths[i-1].Score, paths[i].Score)
		}
	}
}

func TestTraverseUnknownStart(t *testing.T) {
	t.Parallel()

	s := NewStore(NewStoreParams{})
	_, err := s.Traverse(context.Background(), store.TraverseOptions{StartIDs: []string{"node_missing"}})
	if !errors.Is(err, common.ErrUnknownNode) {
		t.Fatalf("Traverse() error = %v, want ErrUnknownNode", err)
	}
}

func TestTraverseRespectsLimitAndHops(t *testing.T) {
	t.Parallel()

	s := NewStore(NewStoreParams{})
	ctx := context.Background()
	for _, number := range []string{"2301234", "2301235", "2301236", "2301237"} {
		frag := testFragment(number)
		if _, err := s.UpsertAward(ctx, frag); err != nil {
			t.Fatalf("UpsertAward(%s) error = %v", number, err)
		}
	}

	pi, _ := s.NodeByKey(common.NodePI, "jane smith")
	paths, err := s.Traverse(ctx, store.TraverseOptions{
		StartIDs: []string{pi.ID},
		MaxHops:  2,
		Limit:    3,
	})
	if err != nil {
		t.Fatalf("Traverse() error = %v", err)
	}
	if len(paths) != 3 {
		t.Fatalf("paths = %d, want limit 3", len(paths))
	}
	for _, p := range paths {
		if len(p.EdgeIDs) > 2 {
			t.Fatalf("path exceeds max hops: %+v", p)
		}
	}
}

func TestGetNodeUnknown(t *testing.T) {
	t.Parallel()

	s := NewStore(NewStoreParams{})
	if _, err := s.GetNode("node_missing"); !errors.Is(err, common.ErrUnknownNode) {
		t.Fatalf("GetNode() error = %v, want ErrUnknownNode", err)
	}
}

func TestNeighborhoodCapsNodes(t *testing.T) {
	t.Parallel()

	s := NewStore(NewStoreParams{})
	ctx := context.Background()
	awardID, err := s.UpsertAward(ctx, testFragment("2301234"))
	if err != nil {
		t.Fatalf("UpsertAward() error = %v", err)
	}

	nodes, edges := s.Neighborhood([]string{awardID}, 3)
	if len(nodes) != 3 {
		t.Fatalf("nodes = %d, want cap 3", len(nodes))
	}
	included := make(map[string]bool)
	for _, n := range nodes {
		included[n.ID] = true
	}
	for _, e := range edges {
		if !included[e.Source] || !included[e.Target] {
			t.Fatalf("edge %s references excluded node", e.ID)
		}
	}
}

func TestReadAccessorsReturnCopies(t *testing.T) {
	s := NewStore(NewStoreParams{})
	awardID, err := s.UpsertAward(context.Background(), testFragment("2301234"))
	if err != nil {
		t.Fatalf("UpsertAward() error = %v", err)
	}

	award, err := s.GetNode(awardID)
	if err != nil {
		t.Fatalf("GetNode() error = %v", err)
	}
	award.Attrs["amount"] = float64(-1)
	award.Label = "tampered"

	again, err := s.GetNode(awardID)
	if err != nil {
		t.Fatalf("GetNode() error = %v", err)
	}
	if again.Attrs["amount"] != float64(500000) || again.Label == "tampered" {
		t.Fatalf("stored node changed through a returned copy: %+v", again)
	}

	byKey, _ := s.NodeByKey(common.NodeAward, "2301234")
	if byKey == again {
		t.Fatal("NodeByKey returned the same pointer twice")
	}

	edges := s.EdgesFrom(awardID)
	for _, e := range edges {
		if e.Type == common.EdgeCoversTopic {
			e.Attrs["weight"] = float64(99)
		}
	}
	for _, e := range s.EdgesFrom(awardID) {
		if e.Type == common.EdgeCoversTopic && e.Weight() > 1 {
			t.Fatalf("stored edge changed through a returned copy: %+v", e)
		}
	}

	nodes, nbEdges := s.Neighborhood([]string{awardID}, 10)
	for _, n := range nodes {
		if n.Attrs != nil {
			n.Attrs["tampered"] = true
		}
	}
	for _, e := range nbEdges {
		if e.Attrs != nil {
			e.Attrs["tampered"] = true
		}
	}
	verify, _ := s.Neighborhood([]string{awardID}, 10)
	for _, n := range verify {
		if n.Attrs != nil && n.Attrs["tampered"] == true {
			t.Fatalf("stored node %s changed through a neighborhood copy", n.ID)
		}
	}
}
