package models

import "time"

// ApprovalPriority is the UI ordering hint for an approval request.
// It never affects correctness.
type ApprovalPriority string

// Approval priorities.
const (
	PriorityCritical ApprovalPriority = "critical"
	PriorityHigh     ApprovalPriority = "high"
	PriorityNormal   ApprovalPriority = "normal"
	PriorityLow      ApprovalPriority = "low"
)

// Valid reports whether p is a known priority.
func (p ApprovalPriority) Valid() bool {
	switch p {
	case PriorityCritical, PriorityHigh, PriorityNormal, PriorityLow:
		return true
	}
	return false
}

// ApprovalChannel identifies where an approval request is delivered.
type ApprovalChannel string

// Approval channels.
const (
	ChannelLiveEditor ApprovalChannel = "live-editor"
	ChannelLiveWeb    ApprovalChannel = "live-web"
	ChannelAuto       ApprovalChannel = "auto"
)

// ApprovalDecision is the user's verdict on an approval request.
type ApprovalDecision string

// Approval decisions.
const (
	DecisionApproved ApprovalDecision = "approved"
	DecisionRejected ApprovalDecision = "rejected"
	DecisionModified ApprovalDecision = "modified"
)

// Valid reports whether d is a known decision.
func (d ApprovalDecision) Valid() bool {
	return d == DecisionApproved || d == DecisionRejected || d == DecisionModified
}

// ApprovalRequestStatus is the lifecycle state of an approval request.
type ApprovalRequestStatus string

// Approval request states.
const (
	ApprovalStatusIssued    ApprovalRequestStatus = "issued"
	ApprovalStatusResponded ApprovalRequestStatus = "responded"
	ApprovalStatusExpired   ApprovalRequestStatus = "expired"
)

// ApprovalRequest asks a user to approve, reject, or modify a proposal.
// At most one in-flight request exists per proposal.
type ApprovalRequest struct {
	RequestID        string                `json:"request_id"`
	ProposalID       string                `json:"proposal_id"`
	UserID           string                `json:"user_id"`
	SpecID           string                `json:"spec_id"`
	CurrentContent   string                `json:"current_content,omitempty"`
	ProposedContent  string                `json:"proposed_content,omitempty"`
	Diff             string                `json:"diff,omitempty"`
	Reasoning        string                `json:"reasoning,omitempty"`
	Confidence       float64               `json:"confidence"`
	Priority         ApprovalPriority      `json:"priority"`
	PreferredChannel ApprovalChannel       `json:"preferred_channel"`
	FallbackChannels []ApprovalChannel     `json:"fallback_channels,omitempty"`
	TimeoutSeconds   int                   `json:"timeout_seconds"`
	Status           ApprovalRequestStatus `json:"status"`
	CreatedAt        time.Time             `json:"created_at"`
	ExpiresAt        time.Time             `json:"expires_at"`
}

// ApprovalResponse is the client-issued answer to an approval request.
type ApprovalResponse struct {
	RequestID       string           `json:"request_id"`
	ProposalID      string           `json:"proposal_id,omitempty"`
	UserID          string           `json:"user_id,omitempty"`
	Decision        ApprovalDecision `json:"decision"`
	ModifiedContent *ProposedChange  `json:"modified_content,omitempty"`
	Reason          string           `json:"reason,omitempty"`
	RespondedAt     time.Time        `json:"responded_at,omitempty"`
}

// Notification is the payload of the softer "notification" live event sent to
// a user's non-preferred sessions.
type Notification struct {
	Title    string           `json:"title"`
	Message  string           `json:"message"`
	Priority ApprovalPriority `json:"priority"`
}
