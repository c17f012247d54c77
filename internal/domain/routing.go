package domain

// Category is the inferred purpose of a user message. Categories are declared
// in one canonical order; classification tie-breaks depend on it, so never
// iterate a map instead.
type Category string

const (
	CategoryGeneral         Category = "general"
	CategoryCustomerService Category = "customer_service"
	CategoryTechnical       Category = "technical"
	CategorySales           Category = "sales"
	CategoryResearch        Category = "research"
	CategoryScheduling      Category = "scheduling"
)

// Categories is the canonical declaration order.
var Categories = []Category{
	CategoryGeneral,
	CategoryCustomerService,
	CategoryTechnical,
	CategorySales,
	CategoryResearch,
	CategoryScheduling,
}

// ValidCategory reports whether c is one of the declared categories.
func ValidCategory(c Category) bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Decision is the terminal outcome of routing a single turn.
type Decision string

const (
	DecisionSingleAgent Decision = "single_agent"
	// DecisionMultiAgent is declared for forward-compatibility but is never
	// produced by the current engine.
	DecisionMultiAgent    Decision = "multi_agent"
	DecisionNoSuitable    Decision = "no_suitable_agent"
	DecisionEscalateHuman Decision = "escalate_human"
)

// ValidDecision reports whether d is a known decision value.
func ValidDecision(d Decision) bool {
	switch d {
	case DecisionSingleAgent, DecisionMultiAgent, DecisionNoSuitable, DecisionEscalateHuman:
		return true
	}
	return false
}

// IntentAnalysis is the classifier's verdict on a single message.
type IntentAnalysis struct {
	Category   Category `json:"category"`
	Confidence float64  `json:"confidence"` // [0,1]
	Keywords   []string `json:"keywords,omitempty"`
	Reasoning  string   `json:"reasoning"`
}

// CandidateMatch scores one agent against an intent.
type CandidateMatch struct {
	AgentID   string  `json:"agent_id"`
	Score     float64 `json:"score"` // [0,1]
	Reasoning string  `json:"reasoning"`
}

// RoutingResult is the auditable outcome of the routing engine.
type RoutingResult struct {
	Decision     Decision         `json:"decision"`
	Intent       IntentAnalysis   `json:"intent"`
	Selected     *CandidateMatch  `json:"selected,omitempty"`
	Alternatives []CandidateMatch `json:"alternatives,omitempty"` // top 5 excluding selected
	Reasoning    string           `json:"reasoning"`
	Confidence   float64          `json:"confidence"`
}
