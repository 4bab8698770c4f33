package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"awardgraph/pkg/common"
	"awardgraph/pkg/fetchcache"
	"awardgraph/pkg/logger"
	"awardgraph/pkg/store"

	"golang.org/x/sync/errgroup"
)

const (
	defaultWorkers      = 4
	defaultFetchRetries = 3
	defaultFetchBackoff = 200 * time.Millisecond
)

// AwardFetcher is the external award source. FetchAwards returns the raw
// records plus the source's total match count.
type AwardFetcher interface {
	FetchAwards(ctx context.Context, params map[string]string) ([]common.RawRecord, int, error)
}

// Orchestrator executes retrieval plans: it schedules the step DAG across
// a bounded worker pool, runs external fetches through the cache with
// retries, ingests fetched records into the graph, and assembles the
// grounded answer bundle. A failing step degrades the answer instead of
// failing the whole plan.
type Orchestrator struct {
	store   store.GraphStore
	fetcher AwardFetcher
	cache   *fetchcache.Cache[[]common.RawRecord]

	workers int
	retries int
	backoff time.Duration
}

type NewOrchestratorParams struct {
	Store   store.GraphStore
	Fetcher AwardFetcher
	Cache   *fetchcache.Cache[[]common.RawRecord]

	Workers      int
	FetchRetries int
	FetchBackoff time.Duration
}

func New(params NewOrchestratorParams) *Orchestrator {
	if params.Workers <= 0 {
		params.Workers = defaultWorkers
	}
	if params.FetchRetries <= 0 {
		params.FetchRetries = defaultFetchRetries
	}
	if params.FetchBackoff <= 0 {
		params.FetchBackoff = defaultFetchBackoff
	}
	return &Orchestrator{
		store:   params.Store,
		fetcher: params.Fetcher,
		cache:   params.Cache,
		workers: params.Workers,
		retries: params.FetchRetries,
		backoff: params.FetchBackoff,
	}
}

// stepResult is what one executed step leaves behind for its dependents
// and for answer assembly.
type stepResult struct {
	nodeIDs  []string
	edgeIDs  []string
	facts    []common.Fact
	empty    bool
	skipped  bool
	degraded bool
	reason   string
}

// Execute runs the plan to completion within its deadline. Steps with
// satisfied dependencies run concurrently on the worker pool. A step
// failure marks the step degraded and lets the rest of the plan continue
// on partial inputs; only a context error before any work aborts outright.
func (o *Orchestrator) Execute(ctx context.Context, plan *common.RetrievalPlan) (*common.AnswerBundle, error) {
	if plan == nil || len(plan.Steps) == 0 {
		return nil, fmt.Errorf("plan has no steps: %w", common.ErrInvalidIntentParameters)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	deadline := plan.Deadline
	if deadline <= 0 {
		deadline = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	started := time.Now()

	var mu sync.Mutex
	results := make(map[string]stepResult, len(plan.Steps))

	// The DAG is executed in waves: every step whose dependencies are all
	// settled runs in the current wave, bounded by the worker pool. Plans
	// are small fixed templates, so waves lose no meaningful parallelism.
	remaining := make([]common.PlanStep, len(plan.Steps))
	copy(remaining, plan.Steps)

	for len(remaining) > 0 {
		ready, blocked := splitReady(remaining, results)
		if len(ready) == 0 {
			// A cycle can only come from a malformed hand-written template.
			return nil, fmt.Errorf("plan %s has unsatisfiable steps: %w", plan.ID, common.ErrInvalidIntentParameters)
		}

		var g errgroup.Group
		g.SetLimit(o.workers)
		for _, step := range ready {
			step := step
			g.Go(func() error {
				res := o.runStep(ctx, plan, step, snapshot(&mu, results))
				mu.Lock()
				results[step.ID] = res
				mu.Unlock()
				return nil
			})
		}
		_ = g.Wait()

		remaining = blocked
	}

	bundle := assembleBundle(plan, results)
	logger.Info("[Orchestrator] Plan executed",
		"plan", plan.ID, "intent", plan.Intent.Kind, "confidence", bundle.Confidence,
		"facts", len(bundle.Facts), "duration", time.Since(started).Round(time.Millisecond))
	return bundle, nil
}

// runStep dispatches one step, honoring its OnlyIfEmpty guard and turning
// any failure into a degraded marker.
func (o *Orchestrator) runStep(ctx context.Context, plan *common.RetrievalPlan, step common.PlanStep, results map[string]stepResult) stepResult {
	if step.OnlyIfEmpty != "" {
		if guard, ok := results[step.OnlyIfEmpty]; ok && !guard.empty && !guard.skipped {
			return stepResult{skipped: true, empty: true}
		}
	}

	if err := ctx.Err(); err != nil {
		return stepResult{degraded: true, empty: true, reason: "deadline exceeded before step started"}
	}

	res, err := o.dispatch(ctx, step)
	if err != nil {
		logger.Warn("[Orchestrator] Step degraded",
			"plan", plan.ID, "step", step.ID, "op", step.Op, "error", err)
		return stepResult{degraded: true, empty: true, reason: err.Error()}
	}
	return res
}

func (o *Orchestrator) dispatch(ctx context.Context, step common.PlanStep) (stepResult, error) {
	switch step.Kind {
	case common.StepExternalFetch:
		return o.runExternalFetch(ctx, step)
	case common.StepGraphLookup:
		return o.runGraphLookup(step)
	case common.StepGraphTraverse:
		return o.runGraphTraverse(ctx, step)
	default:
		return stepResult{}, fmt.Errorf("unknown step kind %q", step.Kind)
	}
}

// splitReady partitions steps into those whose dependencies are settled
// and those still waiting.
func splitReady(steps []common.PlanStep, results map[string]stepResult) (ready, blocked []common.PlanStep) {
	for _, step := range steps {
		settled := true
		for _, dep := range step.DependsOn {
			if _, ok := results[dep]; !ok {
				settled = false
				break
			}
		}
		if settled {
			ready = append(ready, step)
		} else {
			blocked = append(blocked, step)
		}
	}
	return ready, blocked
}

func snapshot(mu *sync.Mutex, results map[string]stepResult) map[string]stepResult {
	mu.Lock()
	defer mu.Unlock()
	copied := make(map[string]stepResult, len(results))
	for k, v := range results {
		copied[k] = v
	}
	return copied
}

// assembleBundle collects facts from emitting steps and grades confidence:
// any degraded step degrades the whole answer, an answer without facts is
// empty, everything else is complete.
func assembleBundle(plan *common.RetrievalPlan, results map[string]stepResult) *common.AnswerBundle {
	bundle := &common.AnswerBundle{
		PlanID: plan.ID,
		Intent: plan.Intent,
		Facts:  make([]common.Fact, 0),
	}

	for _, step := range plan.Steps {
		res := results[step.ID]
		if res.degraded {
			bundle.Degraded = append(bundle.Degraded, step.ID)
		}
		if step.Emit != "" {
			bundle.Facts = append(bundle.Facts, res.facts...)
		}
	}
	sort.Strings(bundle.Degraded)

	switch {
	case len(bundle.Degraded) > 0:
		bundle.Confidence = common.ConfidenceDegraded
	case len(bundle.Facts) == 0:
		bundle.Confidence = common.ConfidenceEmpty
	default:
		bundle.Confidence = common.ConfidenceComplete
	}
	return bundle
}
