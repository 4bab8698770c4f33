package common

import "time"

// IntentKind is the closed set of query intents the planner understands.
type IntentKind string

const (
	IntentAwardLookup        IntentKind = "award_lookup"
	IntentPIAwards           IntentKind = "pi_awards"
	IntentTopicOverlap       IntentKind = "topic_overlap"
	IntentInstitutionFunding IntentKind = "institution_funding"
)

// QueryIntent is the structured form of a user question, produced by the
// natural-language front end. Params are named, loosely typed values; the
// planner validates them per intent kind.
type QueryIntent struct {
	Kind   IntentKind     `json:"kind"`
	Params map[string]any `json:"params"`
}

// StepKind tags the three kinds of retrieval plan steps.
type StepKind string

const (
	StepGraphLookup   StepKind = "graph_lookup"
	StepGraphTraverse StepKind = "graph_traverse"
	StepExternalFetch StepKind = "external_fetch"
)

// PlanStep is one node of a retrieval plan DAG. DependsOn names earlier
// steps whose outputs this step consumes. OnlyIfEmpty makes the step a
// no-op when the named dependency already produced results (used to skip
// an external fetch when the graph already answers the lookup). Emit marks
// steps whose results become facts in the final answer.
type PlanStep struct {
	ID          string            `json:"id"`
	Kind        StepKind          `json:"kind"`
	Op          string            `json:"op"`
	Params      map[string]string `json:"params,omitempty"`
	DependsOn   []string          `json:"depends_on,omitempty"`
	OnlyIfEmpty string            `json:"only_if_empty,omitempty"`
	Emit        string            `json:"emit,omitempty"`
}

// RetrievalPlan is the ordered DAG of steps that fulfills one QueryIntent.
type RetrievalPlan struct {
	ID       string        `json:"id"`
	Intent   QueryIntent   `json:"intent"`
	Steps    []PlanStep    `json:"steps"`
	Deadline time.Duration `json:"deadline"`
}

// Confidence grades how complete an answer is.
type Confidence string

const (
	ConfidenceComplete Confidence = "complete"
	ConfidenceDegraded Confidence = "degraded"
	ConfidenceEmpty    Confidence = "empty"
)

// Provenance links a fact back to the plan step and the graph elements
// that produced it.
type Provenance struct {
	StepID  string   `json:"step_id"`
	NodeIDs []string `json:"node_ids,omitempty"`
	EdgeIDs []string `json:"edge_ids,omitempty"`
}

// Fact is one assembled answer item. Kind names what the fields mean
// ("award", "topic", "funding_year", ...).
type Fact struct {
	Kind       string         `json:"kind"`
	Fields     map[string]any `json:"fields"`
	Provenance Provenance     `json:"provenance"`
}

// AnswerBundle is the grounded result of executing a retrieval plan. It is
// handed to the downstream answer-generation collaborator as structured
// context; this core never calls a language model itself.
type AnswerBundle struct {
	PlanID     string      `json:"plan_id"`
	Intent     QueryIntent `json:"intent"`
	Facts      []Fact      `json:"facts"`
	Confidence Confidence  `json:"confidence"`
	Degraded   []string    `json:"degraded_steps,omitempty"`
}

// ViewNode and ViewEdge form the serializable GraphView consumed by the
// visualization collaborator.
type ViewNode struct {
	ID    string         `json:"id"`
	Type  NodeType       `json:"type"`
	Label string         `json:"label"`
	Attrs map[string]any `json:"attrs,omitempty"`
}

type ViewEdge struct {
	ID     string         `json:"id"`
	Type   EdgeType       `json:"type"`
	Source string         `json:"source"`
	Target string         `json:"target"`
	Attrs  map[string]any `json:"attrs,omitempty"`
}

// GraphView is a bounded snapshot of the subgraph around the entities an
// answer referenced.
type GraphView struct {
	Nodes []ViewNode `json:"nodes"`
	Edges []ViewEdge `json:"edges"`
}
