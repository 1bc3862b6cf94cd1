package models

// Severity is a coarse risk/impact grade.
type Severity string

// Severities, in ascending order.
const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank returns the ordinal of the severity for comparisons.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 0
	case SeverityMedium:
		return 1
	case SeverityHigh:
		return 2
	case SeverityCritical:
		return 3
	default:
		return -1
	}
}

// AtLeast reports whether s is at least as severe as other.
func (s Severity) AtLeast(other Severity) bool {
	return s.Rank() >= other.Rank()
}

// CircularDependency is one detected cycle. Cycle lists the node ids in order
// with the first id repeated at the end ([a, b, a]).
type CircularDependency struct {
	Cycle    []string `json:"cycle"`
	Severity Severity `json:"severity"`
}

// ImpactAnalysis is the result of reverse-dependency impact propagation.
type ImpactAnalysis struct {
	DirectlyAffected     []string `json:"directly_affected"`
	TransitivelyAffected []string `json:"transitively_affected"`
	ImpactRatio          float64  `json:"impact_ratio"`
	Severity             Severity `json:"severity"`
}

// RiskFactor is one entry in the aggregated risk taxonomy.
type RiskFactor struct {
	Description string   `json:"description"`
	Severity    Severity `json:"severity"`
}

// ValidatorVerdict is the validator agent's structured output.
type ValidatorVerdict struct {
	IsValid     bool     `json:"is_valid"`
	Errors      []string `json:"errors,omitempty"`
	Warnings    []string `json:"warnings,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// DependencyVerdict is the dependency agent's structured output.
type DependencyVerdict struct {
	DependencyGraph       map[string][]string  `json:"dependency_graph,omitempty"`
	CircularDependencies  []CircularDependency `json:"circular_dependencies,omitempty"`
	ResolutionSuggestions []string             `json:"resolution_suggestions,omitempty"`
	IsValid               bool                 `json:"is_valid"`
}

// MutationStep is one step of a generated mutation plan.
type MutationStep struct {
	Order       int    `json:"order"`
	Action      string `json:"action"`
	Target      string `json:"target,omitempty"`
	Description string `json:"description,omitempty"`
}

// MutationPlan is an ordered apply plan with its inverse.
type MutationPlan struct {
	Steps        []MutationStep `json:"steps"`
	RollbackPlan []MutationStep `json:"rollback_plan,omitempty"`
}

// MutationVerdict is the mutation generator agent's structured output.
type MutationVerdict struct {
	Success            bool          `json:"success"`
	Plan               *MutationPlan `json:"mutation_plan,omitempty"`
	Alternatives       []string      `json:"alternatives,omitempty"`
	FeasibilityScore   float64       `json:"feasibility_score"`
	ComplexityScore    float64       `json:"complexity_score"`
	RiskFactors        []RiskFactor  `json:"risk_factors,omitempty"`
	Prerequisites      []string      `json:"prerequisites,omitempty"`
	ValidationCriteria []string      `json:"validation_criteria,omitempty"`
}

// ImpactVerdict is the impact agent's structured output.
type ImpactVerdict struct {
	Analysis *ImpactAnalysis `json:"impact_analysis"`
}

// SemanticVerdict is the semantic agent's structured output.
type SemanticVerdict struct {
	RelatedNodeIDs []string `json:"related_node_ids,omitempty"`
	Duplicates     []string `json:"duplicates,omitempty"`
	Observations   []string `json:"observations,omitempty"`
}

// ConflictResolution is a suggested way to resolve a detected conflict.
type ConflictResolution struct {
	Strategy    string `json:"strategy"` // take_current, take_proposed, merge
	Description string `json:"description,omitempty"`
}

// ConflictVerdict is the conflict agent's structured output.
type ConflictVerdict struct {
	HasConflict       bool                 `json:"has_conflict"`
	ConflictingFields []string             `json:"conflicting_fields,omitempty"`
	Resolutions       []ConflictResolution `json:"resolutions,omitempty"`
	MergedChange      *ProposedChange      `json:"merged_change,omitempty"`
}

// Verdict is an agent's structured output for a task. Exactly one of the typed
// payloads is set, selected by AgentType (a tagged variant). Unrecognized
// extension fields from external model responses ride in Extra.
type Verdict struct {
	TaskID          string    `json:"task_id"`
	ProposalID      string    `json:"proposal_id"`
	AgentID         string    `json:"agent_id"`
	AgentType       AgentType `json:"agent_type"`
	ConfidenceScore float64   `json:"confidence_score"`
	Reasoning       string    `json:"reasoning,omitempty"`
	FallbackMode    bool      `json:"fallback_mode"`

	Validator  *ValidatorVerdict  `json:"validator,omitempty"`
	Dependency *DependencyVerdict `json:"dependency,omitempty"`
	Semantic   *SemanticVerdict   `json:"semantic,omitempty"`
	Mutation   *MutationVerdict   `json:"mutation,omitempty"`
	Impact     *ImpactVerdict     `json:"impact,omitempty"`
	Conflict   *ConflictVerdict   `json:"conflict,omitempty"`

	Extra map[string]any `json:"extra,omitempty"`
}
