package planner

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"awardgraph/pkg/common"

	"awardgraph/internal/util"
)

// DefaultDeadline bounds plan execution when no override is configured.
const DefaultDeadline = 10 * time.Second

// Planner compiles validated query intents into fixed retrieval plans.
// Each intent kind maps to one hand-written step template; there is no
// dynamic planning and no plan depends on graph contents at compile time.
type Planner struct {
	deadline time.Duration
}

type NewPlannerParams struct {
	Deadline time.Duration
}

func NewPlanner(params NewPlannerParams) *Planner {
	if params.Deadline <= 0 {
		params.Deadline = DefaultDeadline
	}
	return &Planner{deadline: params.Deadline}
}

// Plan validates the intent and returns its retrieval plan. Unknown kinds
// fail with ErrUnsupportedIntent; known kinds with missing or malformed
// parameters fail with ErrInvalidIntentParameters.
func (p *Planner) Plan(intent common.QueryIntent) (*common.RetrievalPlan, error) {
	var steps []common.PlanStep
	var err error

	switch intent.Kind {
	case common.IntentAwardLookup:
		steps, err = awardLookupSteps(intent)
	case common.IntentPIAwards:
		steps, err = piAwardsSteps(intent)
	case common.IntentTopicOverlap:
		steps, err = topicOverlapSteps(intent)
	case common.IntentInstitutionFunding:
		steps, err = institutionFundingSteps(intent)
	default:
		return nil, fmt.Errorf("intent kind %q: %w", intent.Kind, common.ErrUnsupportedIntent)
	}
	if err != nil {
		return nil, err
	}

	return &common.RetrievalPlan{
		ID:       util.NewID("plan"),
		Intent:   intent,
		Steps:    steps,
		Deadline: p.deadline,
	}, nil
}

// awardLookupSteps seeds from the graph, falls back to one external fetch
// when the award is unknown, and emits from a final lookup either way.
func awardLookupSteps(intent common.QueryIntent) ([]common.PlanStep, error) {
	number, err := stringParam(intent, "award_number")
	if err != nil {
		return nil, err
	}

	return []common.PlanStep{
		{
			ID:     "seed",
			Kind:   common.StepGraphLookup,
			Op:     "award_by_number",
			Params: map[string]string{"award_number": number},
		},
		{
			ID:          "fetch",
			Kind:        common.StepExternalFetch,
			Op:          "awards_by_id",
			Params:      map[string]string{"id": number},
			DependsOn:   []string{"seed"},
			OnlyIfEmpty: "seed",
		},
		{
			ID:        "emit",
			Kind:      common.StepGraphLookup,
			Op:        "award_by_number",
			Params:    map[string]string{"award_number": number},
			DependsOn: []string{"fetch"},
			Emit:      "award",
		},
	}, nil
}

func piAwardsSteps(intent common.QueryIntent) ([]common.PlanStep, error) {
	name, err := stringParam(intent, "pi_name")
	if err != nil {
		return nil, err
	}

	return []common.PlanStep{
		{
			ID:     "seed",
			Kind:   common.StepGraphLookup,
			Op:     "pi_by_name",
			Params: map[string]string{"pi_name": name},
		},
		{
			ID:          "fetch",
			Kind:        common.StepExternalFetch,
			Op:          "awards_by_pi",
			Params:      map[string]string{"pdPIName": name},
			DependsOn:   []string{"seed"},
			OnlyIfEmpty: "seed",
		},
		{
			ID:        "resolve",
			Kind:      common.StepGraphLookup,
			Op:        "pi_by_name",
			Params:    map[string]string{"pi_name": name},
			DependsOn: []string{"fetch"},
		},
		{
			ID:        "emit",
			Kind:      common.StepGraphTraverse,
			Op:        "awards_of_pi",
			Params:    map[string]string{"pi_name": name},
			DependsOn: []string{"resolve"},
			Emit:      "awards",
		},
	}, nil
}

// topicOverlapSteps seeds both investigators, backfills either one from
// the external source when the graph does not know them, and intersects
// their topic sets. The two branches are independent and run in parallel.
func topicOverlapSteps(intent common.QueryIntent) ([]common.PlanStep, error) {
	piA, err := stringParam(intent, "pi_a")
	if err != nil {
		return nil, err
	}
	piB, err := stringParam(intent, "pi_b")
	if err != nil {
		return nil, err
	}
	if strings.EqualFold(piA, piB) {
		return nil, fmt.Errorf("pi_a and pi_b must differ: %w", common.ErrInvalidIntentParameters)
	}

	return []common.PlanStep{
		{
			ID:     "seed_a",
			Kind:   common.StepGraphLookup,
			Op:     "pi_by_name",
			Params: map[string]string{"pi_name": piA},
		},
		{
			ID:     "seed_b",
			Kind:   common.StepGraphLookup,
			Op:     "pi_by_name",
			Params: map[string]string{"pi_name": piB},
		},
		{
			ID:          "fetch_a",
			Kind:        common.StepExternalFetch,
			Op:          "awards_by_pi",
			Params:      map[string]string{"pdPIName": piA},
			DependsOn:   []string{"seed_a"},
			OnlyIfEmpty: "seed_a",
		},
		{
			ID:          "fetch_b",
			Kind:        common.StepExternalFetch,
			Op:          "awards_by_pi",
			Params:      map[string]string{"pdPIName": piB},
			DependsOn:   []string{"seed_b"},
			OnlyIfEmpty: "seed_b",
		},
		{
			ID:        "emit",
			Kind:      common.StepGraphTraverse,
			Op:        "topic_intersect",
			Params:    map[string]string{"pi_a": piA, "pi_b": piB},
			DependsOn: []string{"fetch_a", "fetch_b"},
			Emit:      "overlap",
		},
	}, nil
}

func institutionFundingSteps(intent common.QueryIntent) ([]common.PlanStep, error) {
	name, err := stringParam(intent, "institution_name")
	if err != nil {
		return nil, err
	}
	fromYear, toYear, err := yearRange(intent)
	if err != nil {
		return nil, err
	}

	trendParams := map[string]string{"institution_name": name}
	if fromYear != "" {
		trendParams["from_year"] = fromYear
	}
	if toYear != "" {
		trendParams["to_year"] = toYear
	}

	return []common.PlanStep{
		{
			ID:     "seed",
			Kind:   common.StepGraphLookup,
			Op:     "institution_by_name",
			Params: map[string]string{"institution_name": name},
		},
		{
			ID:          "fetch",
			Kind:        common.StepExternalFetch,
			Op:          "awards_by_institution",
			Params:      map[string]string{"awardeeName": name},
			DependsOn:   []string{"seed"},
			OnlyIfEmpty: "seed",
		},
		{
			ID:        "emit",
			Kind:      common.StepGraphTraverse,
			Op:        "funding_trend",
			Params:    trendParams,
			DependsOn: []string{"fetch"},
			Emit:      "funding_trend",
		},
	}, nil
}

func stringParam(intent common.QueryIntent, key string) (string, error) {
	raw, ok := intent.Params[key]
	if !ok {
		return "", fmt.Errorf("missing parameter %q: %w", key, common.ErrInvalidIntentParameters)
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("parameter %q must be a string: %w", key, common.ErrInvalidIntentParameters)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("parameter %q is empty: %w", key, common.ErrInvalidIntentParameters)
	}
	return s, nil
}

// yearRange validates the optional from_year/to_year pair. Both accept
// string or numeric JSON values.
func yearRange(intent common.QueryIntent) (string, string, error) {
	from, err := optionalYear(intent, "from_year")
	if err != nil {
		return "", "", err
	}
	to, err := optionalYear(intent, "to_year")
	if err != nil {
		return "", "", err
	}
	if from != "" && to != "" && from > to {
		return "", "", fmt.Errorf("from_year %s is after to_year %s: %w", from, to, common.ErrInvalidIntentParameters)
	}
	return from, to, nil
}

func optionalYear(intent common.QueryIntent, key string) (string, error) {
	raw, ok := intent.Params[key]
	if !ok || raw == nil {
		return "", nil
	}

	var year int
	switch v := raw.(type) {
	case string:
		if strings.TrimSpace(v) == "" {
			return "", nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return "", fmt.Errorf("parameter %q must be a year: %w", key, common.ErrInvalidIntentParameters)
		}
		year = n
	case float64:
		year = int(v)
	default:
		return "", fmt.Errorf("parameter %q must be a year: %w", key, common.ErrInvalidIntentParameters)
	}

	if year < 1950 || year > 2100 {
		return "", fmt.Errorf("parameter %q is out of range: %w", key, common.ErrInvalidIntentParameters)
	}
	return strconv.Itoa(year), nil
}
