package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"awardgraph/pkg/common"
	"awardgraph/pkg/fetchcache"
	"awardgraph/pkg/logger"
	"awardgraph/pkg/normalize"
	"awardgraph/pkg/store"

	"awardgraph/internal/util"
)

// runExternalFetch pulls award records from the external source through
// the cache and ingests them into the graph. The retry budget lives here;
// a fetch that exhausts it surfaces as ErrFetchExhausted and degrades the
// step.
func (o *Orchestrator) runExternalFetch(ctx context.Context, step common.PlanStep) (stepResult, error) {
	if o.fetcher == nil {
		return stepResult{}, errors.New("no external fetcher configured")
	}

	sig := fetchcache.Signature(step.Op, step.Params)
	fetch := func(ctx context.Context) ([]common.RawRecord, error) {
		records, err := util.RetryBackoffWithContext(ctx, o.retries, o.backoff,
			func(ctx context.Context) (fetchPage, error) {
				recs, total, err := o.fetcher.FetchAwards(ctx, step.Params)
				return fetchPage{records: recs, total: total}, err
			})
		if err != nil {
			return nil, fmt.Errorf("fetch %s failed after %d attempts: %w (%s)",
				step.Op, o.retries, common.ErrFetchExhausted, err)
		}
		return records.records, nil
	}

	var records []common.RawRecord
	var err error
	if o.cache != nil {
		records, err = o.cache.GetOrFetch(ctx, sig,
			func(recs []common.RawRecord) bool { return len(recs) == 0 }, fetch)
	} else {
		records, err = fetch(ctx)
	}
	if err != nil {
		return stepResult{}, err
	}

	awardIDs, dropped := IngestRecords(ctx, o.store, records)
	if dropped > 0 {
		logger.Warn("[Orchestrator] Dropped malformed records during ingest",
			"op", step.Op, "dropped", dropped, "kept", len(awardIDs))
	}

	return stepResult{nodeIDs: awardIDs, empty: len(awardIDs) == 0}, nil
}

type fetchPage struct {
	records []common.RawRecord
	total   int
}

// IngestRecords normalizes and upserts a batch of raw award records.
// Malformed records are dropped and counted, never fatal; one bad record
// cannot poison a batch. Returns the award node ids in input order.
func IngestRecords(ctx context.Context, gs store.GraphStore, records []common.RawRecord) ([]string, int) {
	awardIDs := make([]string, 0, len(records))
	dropped := 0

	for _, raw := range records {
		frag, err := normalize.Normalize(raw)
		if err != nil {
			dropped++
			logger.Warn("[Orchestrator] Skipping malformed record", "error", err)
			continue
		}
		id, err := gs.UpsertAward(ctx, frag)
		if err != nil {
			dropped++
			logger.Error("[Orchestrator] Failed to upsert award",
				"award", frag.AwardNumber, "error", err)
			continue
		}
		awardIDs = append(awardIDs, id)
	}

	return awardIDs, dropped
}

func (o *Orchestrator) runGraphLookup(step common.PlanStep) (stepResult, error) {
	switch step.Op {
	case "award_by_number":
		return o.lookupNode(step, common.NodeAward, step.Params["award_number"])
	case "pi_by_name":
		return o.lookupNode(step, common.NodePI, normalize.MatchKey(step.Params["pi_name"]))
	case "institution_by_name":
		return o.lookupNode(step, common.NodeInstitution, normalize.MatchKey(step.Params["institution_name"]))
	default:
		return stepResult{}, fmt.Errorf("unknown graph lookup op %q", step.Op)
	}
}

func (o *Orchestrator) lookupNode(step common.PlanStep, typ common.NodeType, key string) (stepResult, error) {
	node, ok := o.store.NodeByKey(typ, key)
	if !ok {
		return stepResult{empty: true}, nil
	}

	res := stepResult{nodeIDs: []string{node.ID}}
	if step.Emit != "" && typ == common.NodeAward {
		res.facts = []common.Fact{o.awardFact(step.ID, node)}
	}
	return res, nil
}

// awardFact flattens an award node and its direct relationships into one
// answer fact with full provenance.
func (o *Orchestrator) awardFact(stepID string, award *common.Node) common.Fact {
	fields := map[string]any{
		"award_number": award.Key,
		"title":        award.Label,
	}
	for _, attr := range []string{"amount", "start_date", "end_date"} {
		if v, ok := award.Attrs[attr]; ok {
			fields[attr] = v
		}
	}

	prov := common.Provenance{StepID: stepID, NodeIDs: []string{award.ID}}
	pis := make([]string, 0, 2)
	topics := make([]string, 0, 4)
	for _, e := range o.store.EdgesFrom(award.ID) {
		target, err := o.store.GetNode(e.Target)
		if err != nil {
			continue
		}
		prov.NodeIDs = append(prov.NodeIDs, target.ID)
		prov.EdgeIDs = append(prov.EdgeIDs, e.ID)
		switch e.Type {
		case common.EdgeFundedBy:
			fields["program"] = target.Label
		case common.EdgeHostedAt:
			fields["institution"] = target.Label
		case common.EdgeLedBy:
			pis = append(pis, target.Label)
		case common.EdgeCoversTopic:
			topics = append(topics, target.Label)
		}
	}
	sort.Strings(pis)
	sort.Strings(topics)
	if len(pis) > 0 {
		fields["investigators"] = pis
	}
	if len(topics) > 0 {
		fields["topics"] = topics
	}

	return common.Fact{Kind: "award", Fields: fields, Provenance: prov}
}

func (o *Orchestrator) runGraphTraverse(ctx context.Context, step common.PlanStep) (stepResult, error) {
	switch step.Op {
	case "awards_of_pi":
		return o.awardsOfPI(ctx, step)
	case "topic_intersect":
		return o.topicIntersect(step)
	case "funding_trend":
		return o.fundingTrend(step)
	default:
		return stepResult{}, fmt.Errorf("unknown graph traverse op %q", step.Op)
	}
}

// awardsOfPI walks ledBy edges from the investigator node and emits one
// fact per award plus a funding summary.
func (o *Orchestrator) awardsOfPI(ctx context.Context, step common.PlanStep) (stepResult, error) {
	pi, ok := o.store.NodeByKey(common.NodePI, normalize.MatchKey(step.Params["pi_name"]))
	if !ok {
		return stepResult{empty: true}, nil
	}

	paths, err := o.store.Traverse(ctx, store.TraverseOptions{
		StartIDs:  []string{pi.ID},
		EdgeTypes: []common.EdgeType{common.EdgeLedBy},
		MaxHops:   1,
		Limit:     100,
	})
	if err != nil {
		return stepResult{}, err
	}

	res := stepResult{nodeIDs: []string{pi.ID}}
	total := 0.0
	count := 0
	for _, path := range paths {
		awardID := path.NodeIDs[len(path.NodeIDs)-1]
		award, err := o.store.GetNode(awardID)
		if err != nil || award.Type != common.NodeAward {
			continue
		}
		fact := o.awardFact(step.ID, award)
		fact.Provenance.NodeIDs = append(fact.Provenance.NodeIDs, pi.ID)
		fact.Provenance.EdgeIDs = append(fact.Provenance.EdgeIDs, path.EdgeIDs...)
		res.facts = append(res.facts, fact)
		res.nodeIDs = append(res.nodeIDs, award.ID)
		res.edgeIDs = append(res.edgeIDs, path.EdgeIDs...)
		if amount, ok := award.Attrs["amount"].(float64); ok {
			total += amount
		}
		count++
	}

	if count == 0 {
		return stepResult{nodeIDs: []string{pi.ID}, empty: true}, nil
	}

	res.facts = append(res.facts, common.Fact{
		Kind: "funding_summary",
		Fields: map[string]any{
			"investigator": pi.Label,
			"award_count":  count,
			"total_amount": total,
		},
		Provenance: common.Provenance{StepID: step.ID, NodeIDs: res.nodeIDs},
	})
	return res, nil
}

// topicIntersect finds the topics two investigators co-occur on through
// their awards. A missing investigator or an empty intersection yields an
// empty result, not an error.
func (o *Orchestrator) topicIntersect(step common.PlanStep) (stepResult, error) {
	piA, okA := o.store.NodeByKey(common.NodePI, normalize.MatchKey(step.Params["pi_a"]))
	piB, okB := o.store.NodeByKey(common.NodePI, normalize.MatchKey(step.Params["pi_b"]))
	if !okA || !okB {
		return stepResult{empty: true}, nil
	}

	topicsA := o.topicsOfPI(piA)
	topicsB := o.topicsOfPI(piB)

	res := stepResult{nodeIDs: []string{piA.ID, piB.ID}}
	for topicID, ta := range topicsA {
		tb, shared := topicsB[topicID]
		if !shared {
			continue
		}
		topic, err := o.store.GetNode(topicID)
		if err != nil {
			continue
		}

		fact := common.Fact{
			Kind: "topic_overlap",
			Fields: map[string]any{
				"topic":    topic.Label,
				"pi_a":     piA.Label,
				"pi_b":     piB.Label,
				"awards_a": ta.awardNumbers,
				"awards_b": tb.awardNumbers,
			},
			Provenance: common.Provenance{
				StepID:  step.ID,
				NodeIDs: append([]string{topic.ID, piA.ID, piB.ID}, append(ta.nodeIDs, tb.nodeIDs...)...),
				EdgeIDs: append(append([]string{}, ta.edgeIDs...), tb.edgeIDs...),
			},
		}
		res.facts = append(res.facts, fact)
		res.nodeIDs = append(res.nodeIDs, topic.ID)
		res.nodeIDs = append(res.nodeIDs, ta.nodeIDs...)
		res.nodeIDs = append(res.nodeIDs, tb.nodeIDs...)
		res.edgeIDs = append(res.edgeIDs, ta.edgeIDs...)
		res.edgeIDs = append(res.edgeIDs, tb.edgeIDs...)
	}

	if len(res.facts) == 0 {
		return stepResult{nodeIDs: res.nodeIDs, empty: true}, nil
	}

	sort.Slice(res.facts, func(i, j int) bool {
		return res.facts[i].Fields["topic"].(string) < res.facts[j].Fields["topic"].(string)
	})
	return res, nil
}

// piTopic collects one investigator's evidence for one topic: the awards
// linking them plus the graph elements the link runs through.
type piTopic struct {
	awardNumbers []string
	nodeIDs      []string
	edgeIDs      []string
}

// topicsOfPI maps topic node id to the investigator's evidence for it,
// walking ledBy in-edges to awards and coversTopic out-edges to topics.
func (o *Orchestrator) topicsOfPI(pi *common.Node) map[string]*piTopic {
	topics := make(map[string]*piTopic)
	for _, led := range o.store.EdgesTo(pi.ID) {
		if led.Type != common.EdgeLedBy {
			continue
		}
		award, err := o.store.GetNode(led.Source)
		if err != nil || award.Type != common.NodeAward {
			continue
		}
		for _, cov := range o.store.EdgesFrom(award.ID) {
			if cov.Type != common.EdgeCoversTopic {
				continue
			}
			t := topics[cov.Target]
			if t == nil {
				t = &piTopic{}
				topics[cov.Target] = t
			}
			t.awardNumbers = append(t.awardNumbers, award.Key)
			t.nodeIDs = append(t.nodeIDs, award.ID)
			t.edgeIDs = append(t.edgeIDs, led.ID, cov.ID)
		}
	}
	for _, t := range topics {
		sort.Strings(t.awardNumbers)
	}
	return topics
}

// fundingTrend aggregates award amounts per start year for one
// institution, optionally clamped to [from_year, to_year], and grades the
// overall direction by comparing the halves of the range.
func (o *Orchestrator) fundingTrend(step common.PlanStep) (stepResult, error) {
	inst, ok := o.store.NodeByKey(common.NodeInstitution, normalize.MatchKey(step.Params["institution_name"]))
	if !ok {
		return stepResult{empty: true}, nil
	}

	fromYear := step.Params["from_year"]
	toYear := step.Params["to_year"]

	type yearBucket struct {
		total   float64
		count   int
		nodeIDs []string
		edgeIDs []string
	}
	byYear := make(map[string]*yearBucket)

	res := stepResult{nodeIDs: []string{inst.ID}}
	for _, e := range o.store.EdgesTo(inst.ID) {
		if e.Type != common.EdgeHostedAt {
			continue
		}
		award, err := o.store.GetNode(e.Source)
		if err != nil {
			continue
		}
		startDate, _ := award.Attrs["start_date"].(string)
		year := yearOf(startDate)
		if year == "" {
			continue
		}
		if (fromYear != "" && year < fromYear) || (toYear != "" && year > toYear) {
			continue
		}
		if byYear[year] == nil {
			byYear[year] = &yearBucket{}
		}
		amount, _ := award.Attrs["amount"].(float64)
		byYear[year].total += amount
		byYear[year].count++
		byYear[year].nodeIDs = append(byYear[year].nodeIDs, award.ID)
		byYear[year].edgeIDs = append(byYear[year].edgeIDs, e.ID)
		res.nodeIDs = append(res.nodeIDs, award.ID)
		res.edgeIDs = append(res.edgeIDs, e.ID)
	}

	if len(byYear) == 0 {
		return stepResult{nodeIDs: []string{inst.ID}, empty: true}, nil
	}

	years := make([]string, 0, len(byYear))
	for y := range byYear {
		years = append(years, y)
	}
	sort.Strings(years)

	totals := make([]float64, 0, len(years))
	for _, y := range years {
		bucket := byYear[y]
		totals = append(totals, bucket.total)
		// Provenance per year covers only that year's contributing awards.
		res.facts = append(res.facts, common.Fact{
			Kind: "funding_year",
			Fields: map[string]any{
				"institution":  inst.Label,
				"year":         y,
				"total_amount": bucket.total,
				"award_count":  bucket.count,
			},
			Provenance: common.Provenance{
				StepID:  step.ID,
				NodeIDs: append([]string{inst.ID}, bucket.nodeIDs...),
				EdgeIDs: bucket.edgeIDs,
			},
		})
	}

	res.facts = append(res.facts, common.Fact{
		Kind: "funding_trend",
		Fields: map[string]any{
			"institution": inst.Label,
			"from_year":   years[0],
			"to_year":     years[len(years)-1],
			"direction":   trendDirection(totals),
		},
		Provenance: common.Provenance{StepID: step.ID, NodeIDs: res.nodeIDs, EdgeIDs: res.edgeIDs},
	})
	return res, nil
}

// trendDirection compares the average yearly total of the later half of
// the range against the earlier half, with a 10% dead band for "flat".
func trendDirection(totals []float64) string {
	if len(totals) < 2 {
		return "flat"
	}
	mid := len(totals) / 2
	earlier := average(totals[:mid])
	later := average(totals[len(totals)-mid:])
	switch {
	case earlier == 0 && later == 0:
		return "flat"
	case later > earlier*1.1:
		return "increasing"
	case later < earlier*0.9:
		return "decreasing"
	default:
		return "flat"
	}
}

func average(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// yearOf extracts the four-digit year from an MM/DD/YYYY date string.
func yearOf(date string) string {
	if len(date) < 4 {
		return ""
	}
	year := date[len(date)-4:]
	if _, err := strconv.Atoi(year); err != nil {
		return ""
	}
	return year
}
