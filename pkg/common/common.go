package common

// NodeType identifies the kind of entity a graph node represents.
type NodeType string

const (
	NodeAward       NodeType = "award"
	NodePI          NodeType = "pi"
	NodeInstitution NodeType = "institution"
	NodeProgram     NodeType = "program"
	NodeTopic       NodeType = "topic"
)

// EdgeType identifies the kind of relationship an edge represents.
type EdgeType string

const (
	EdgeFundedBy       EdgeType = "fundedBy"
	EdgeLedBy          EdgeType = "ledBy"
	EdgeHostedAt       EdgeType = "hostedAt"
	EdgeAffiliatedWith EdgeType = "affiliatedWith"
	EdgeCoversTopic    EdgeType = "coversTopic"
)

// Node is a single entity in the knowledge graph. ID is a surrogate
// identifier minted at creation time and never reused; Key is the normalized
// identity key used for entity resolution (award number for awards, program
// code for programs, a folded name key for the fuzzy types).
type Node struct {
	ID    string         `json:"id"`
	Type  NodeType       `json:"type"`
	Label string         `json:"label"`
	Key   string         `json:"key"`
	Attrs map[string]any `json:"attrs,omitempty"`
}

// Edge is a typed, directed relationship between two nodes. TimeScope is
// non-empty only for time-scoped edge types (affiliatedWith) and is part of
// the edge's uniqueness key. Attrs carries per-type extras such as the
// co-PI role on ledBy edges or the confidence weight on coversTopic edges.
type Edge struct {
	ID        string         `json:"id"`
	Type      EdgeType       `json:"type"`
	Source    string         `json:"source"`
	Target    string         `json:"target"`
	TimeScope string         `json:"time_scope,omitempty"`
	Attrs     map[string]any `json:"attrs,omitempty"`
}

// Weight returns the edge's confidence weight attribute, or 0 if absent.
func (e *Edge) Weight() float64 {
	if e.Attrs == nil {
		return 0
	}
	if w, ok := e.Attrs["weight"].(float64); ok {
		return w
	}
	return 0
}

// RawRecord is a single award record as returned by the external awards API.
// It is loosely typed on purpose; only the RecordNormalizer consumes it.
type RawRecord map[string]any

// NameField pairs the cleaned display value of a name-like field with the
// normalized key used for matching.
type NameField struct {
	Raw string `json:"raw"`
	Key string `json:"key"`
}

// RecordFragment is the fixed-shape result of normalizing one raw award
// record. All downstream components consume fragments, never raw payloads.
type RecordFragment struct {
	AwardNumber string  `json:"award_number"`
	Title       string  `json:"title"`
	Amount      float64 `json:"amount"`
	StartDate   string  `json:"start_date"`
	EndDate     string  `json:"end_date"`
	Abstract    string  `json:"abstract"`

	Program     ProgramFragment     `json:"program"`
	Institution InstitutionFragment `json:"institution"`
	PIs         []PIFragment        `json:"pis"`
	Topics      []TopicFragment     `json:"topics"`
}

// PIFragment is a principal investigator mention on one award.
// Role is "pi" for the lead investigator and "co-pi" for the rest.
type PIFragment struct {
	Name  NameField `json:"name"`
	Role  string    `json:"role"`
	Email string    `json:"email,omitempty"`
}

// InstitutionFragment is the awardee institution mention on one award.
type InstitutionFragment struct {
	Name  NameField `json:"name"`
	City  string    `json:"city,omitempty"`
	State string    `json:"state,omitempty"`
}

// ProgramFragment is the funding program mention on one award.
type ProgramFragment struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// TopicFragment is a research topic derived from an award's abstract and
// keywords, with an extraction confidence weight in (0, 1].
type TopicFragment struct {
	Label  NameField `json:"label"`
	Weight float64   `json:"weight"`
}
