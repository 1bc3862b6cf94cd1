package mutation

import (
	"errors"
	"fmt"

	"github.com/specforge/specforge/pkg/models"
)

// ErrProposalNotFound is returned when a proposal id is unknown.
var ErrProposalNotFound = errors.New("proposal not found")

// ConflictError is returned when a status transition loses a compare-and-swap
// race or when a proposal's base version no longer matches the live graph.
// Exactly one of several concurrent writers wins; the rest observe this error.
type ConflictError struct {
	ProposalID string
	Expected   models.ProposalStatus
	Actual     models.ProposalStatus
	Reason     string
}

func (e *ConflictError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("proposal %s: conflict: %s", e.ProposalID, e.Reason)
	}
	return fmt.Sprintf("proposal %s: conflict: expected status %q, found %q",
		e.ProposalID, e.Expected, e.Actual)
}

// IsConflictError reports whether err is (or wraps) a ConflictError.
func IsConflictError(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

// TransitionError is returned when a requested status change is not a legal
// lifecycle transition.
type TransitionError struct {
	ProposalID string
	From       models.ProposalStatus
	To         models.ProposalStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("proposal %s: illegal transition %q -> %q", e.ProposalID, e.From, e.To)
}

// IsTransitionError reports whether err is (or wraps) a TransitionError.
func IsTransitionError(err error) bool {
	var te *TransitionError
	return errors.As(err, &te)
}
