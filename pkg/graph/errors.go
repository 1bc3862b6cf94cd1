package graph

import (
	"errors"
	"fmt"
	"strings"

	"github.com/specforge/specforge/pkg/models"
)

// Sentinel errors for repository operations.
var (
	// ErrNodeNotFound is returned when a node id does not resolve.
	ErrNodeNotFound = errors.New("node not found")

	// ErrEdgeNotFound is returned when an edge id does not resolve.
	ErrEdgeNotFound = errors.New("edge not found")

	// ErrDuplicateID is returned when creating a node or edge with an id
	// that already exists.
	ErrDuplicateID = errors.New("duplicate id")

	// ErrDanglingEdge is returned when an edge references a missing endpoint.
	ErrDanglingEdge = errors.New("edge endpoint does not resolve")
)

// ValidationError reports input that does not satisfy the declared contract.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error.
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// IsValidationError reports whether err is a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// DependencyError reports cycles that prevent dependency resolution.
// It carries the full cycle list.
type DependencyError struct {
	Cycles []models.CircularDependency
}

func (e *DependencyError) Error() string {
	if len(e.Cycles) == 0 {
		return "circular dependency detected"
	}
	parts := make([]string, 0, len(e.Cycles))
	for _, c := range e.Cycles {
		parts = append(parts, strings.Join(c.Cycle, " -> "))
	}
	return fmt.Sprintf("circular dependency detected: %s", strings.Join(parts, "; "))
}

// IsDependencyError reports whether err is a DependencyError.
func IsDependencyError(err error) bool {
	var de *DependencyError
	return errors.As(err, &de)
}
