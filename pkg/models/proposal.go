package models

import "time"

// OperationType is the kind of change a proposal makes to the spec graph.
type OperationType string

// Operation types.
const (
	OperationCreate OperationType = "create"
	OperationUpdate OperationType = "update"
	OperationDelete OperationType = "delete"
)

// Valid reports whether o is a known operation type.
func (o OperationType) Valid() bool {
	return o == OperationCreate || o == OperationUpdate || o == OperationDelete
}

// ProposalStatus is the lifecycle state of a mutation proposal.
// Transitions are single-writer and validated by the mutation store.
type ProposalStatus string

// Proposal lifecycle states.
const (
	ProposalStatusProposed         ProposalStatus = "proposed"
	ProposalStatusValidating       ProposalStatus = "validating"
	ProposalStatusAwaitingApproval ProposalStatus = "awaiting_approval"
	ProposalStatusApplying         ProposalStatus = "applying"
	ProposalStatusApplied          ProposalStatus = "applied"
	ProposalStatusFailed           ProposalStatus = "failed"
	ProposalStatusRolledBack       ProposalStatus = "rolled_back"
	ProposalStatusCancelled        ProposalStatus = "cancelled"
)

// Valid reports whether s is a known proposal status.
func (s ProposalStatus) Valid() bool {
	switch s {
	case ProposalStatusProposed, ProposalStatusValidating, ProposalStatusAwaitingApproval,
		ProposalStatusApplying, ProposalStatusApplied, ProposalStatusFailed,
		ProposalStatusRolledBack, ProposalStatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether s is a terminal lifecycle state.
func (s ProposalStatus) Terminal() bool {
	switch s {
	case ProposalStatusApplied, ProposalStatusFailed, ProposalStatusRolledBack, ProposalStatusCancelled:
		return true
	}
	return false
}

// ProposedChange is the structured payload of a proposal. For create it carries
// the full node (and optional edges); for update, only the fields being changed;
// for delete, just the target. Unrecognized extension fields ride in Extra.
type ProposedChange struct {
	Node     *Node          `json:"node,omitempty"`
	Update   *NodeUpdate    `json:"update,omitempty"`
	NewEdges []*Edge        `json:"new_edges,omitempty"`
	Extra    map[string]any `json:"extra,omitempty"`
}

// MutationProposal is a request to change the spec graph, subject to agent
// review and possibly human approval.
type MutationProposal struct {
	ProposalID      string          `json:"proposal_id"`
	SpecID          string          `json:"spec_id"`
	UserID          string          `json:"user_id"`
	OperationType   OperationType   `json:"operation_type"`
	CurrentVersion  string          `json:"current_version,omitempty"`
	ProposedChanges *ProposedChange `json:"proposed_changes"`
	Reasoning       string          `json:"reasoning,omitempty"`
	Confidence      float64         `json:"confidence"`
	ImpactAnalysis  *ImpactAnalysis `json:"impact_analysis,omitempty"`
	Status          ProposalStatus  `json:"status"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Clone returns a shallow-safe copy of the proposal (shared ProposedChanges
// pointer is copied; callers treat payloads as immutable).
func (p *MutationProposal) Clone() *MutationProposal {
	c := *p
	return &c
}

// ProposalFilter restricts mutation store listings.
type ProposalFilter struct {
	SpecID string         `json:"spec_id,omitempty"`
	UserID string         `json:"user_id,omitempty"`
	Status ProposalStatus `json:"status,omitempty"`
	Limit  int            `json:"limit,omitempty"`
}

// MutationResult is the user-visible outcome of a proposal, delivered as the
// mutation:result live event. No stack traces cross this boundary.
type MutationResult struct {
	MutationID       string   `json:"mutation_id"`
	Status           string   `json:"status"` // "success" or "failed"
	AppliedChanges   []string `json:"applied_changes,omitempty"`
	NewVersion       string   `json:"new_version,omitempty"`
	ValidationErrors []string `json:"validation_errors,omitempty"`
	Warnings         []string `json:"warnings,omitempty"`
	ExecutionTimeMS  int64    `json:"execution_time_ms"`
}

// Mutation result statuses.
const (
	MutationResultSuccess = "success"
	MutationResultFailed  = "failed"
)
