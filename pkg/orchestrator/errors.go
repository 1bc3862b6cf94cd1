package orchestrator

import (
	"errors"
	"fmt"
)

// MutationError wraps applier failures. Its presence implies rollback
// semantics were (or should have been) engaged.
type MutationError struct {
	ProposalID string
	Stage      string
	Err        error
}

func (e *MutationError) Error() string {
	return fmt.Sprintf("proposal %s: mutation failed during %s: %v", e.ProposalID, e.Stage, e.Err)
}

func (e *MutationError) Unwrap() error { return e.Err }

// IsMutationError reports whether err is (or wraps) a MutationError.
func IsMutationError(err error) bool {
	var me *MutationError
	return errors.As(err, &me)
}
