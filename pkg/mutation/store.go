// Package mutation persists mutation proposals and enforces their lifecycle
// state machine. All status changes go through compare-and-swap transitions so
// concurrent workers cannot double-apply a proposal.
package mutation

import (
	"context"
	"time"

	"github.com/specforge/specforge/pkg/models"
)

// Store is the proposal persistence contract. Implementations must make
// Transition atomic: of N concurrent callers expecting the same from-status,
// exactly one succeeds and the rest get a ConflictError.
type Store interface {
	// Create persists a new proposal in the proposed state.
	Create(ctx context.Context, p *models.MutationProposal) (*models.MutationProposal, error)

	// Get returns the proposal by id, or ErrProposalNotFound.
	Get(ctx context.Context, proposalID string) (*models.MutationProposal, error)

	// List returns proposals matching the filter, newest first.
	List(ctx context.Context, filter *models.ProposalFilter) ([]*models.MutationProposal, error)

	// Transition atomically moves the proposal from `from` to `to`. It fails
	// with a TransitionError when from->to is not a legal lifecycle step and
	// with a ConflictError when the stored status is no longer `from`.
	Transition(ctx context.Context, proposalID string, from, to models.ProposalStatus) (*models.MutationProposal, error)

	// UpdateChanges replaces the proposal's proposed changes, used when a
	// reviewer responds with a modified payload. Only legal before the
	// proposal starts applying.
	UpdateChanges(ctx context.Context, proposalID string, changes *models.ProposedChange) (*models.MutationProposal, error)

	// PurgeSettled deletes terminal proposals last updated before cutoff and
	// returns how many were removed. In-flight proposals are never touched.
	PurgeSettled(ctx context.Context, cutoff time.Time) (int, error)
}

// legalTransitions is the proposal lifecycle. Terminal states have no exits.
var legalTransitions = map[models.ProposalStatus][]models.ProposalStatus{
	models.ProposalStatusProposed: {
		models.ProposalStatusValidating,
		models.ProposalStatusCancelled,
	},
	models.ProposalStatusValidating: {
		models.ProposalStatusAwaitingApproval,
		models.ProposalStatusApplying,
		models.ProposalStatusFailed,
		models.ProposalStatusCancelled,
	},
	models.ProposalStatusAwaitingApproval: {
		models.ProposalStatusApplying,
		models.ProposalStatusFailed,
		models.ProposalStatusCancelled,
	},
	models.ProposalStatusApplying: {
		models.ProposalStatusApplied,
		models.ProposalStatusFailed,
		models.ProposalStatusRolledBack,
	},
}

// CanTransition reports whether from -> to is a legal lifecycle step.
func CanTransition(from, to models.ProposalStatus) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
