// Package agent implements the analysis agents that review mutation
// proposals. Every agent has two execution paths: a primary path that asks an
// external language model for a structured verdict, and a deterministic
// fallback computed locally from the spec graph. The fallback engages on any
// primary failure and marks its verdict so downstream consumers can tell.
package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/specforge/specforge/pkg/models"
)

// Runtime is one executable agent instance, registered with the orchestrator.
type Runtime interface {
	// Registration describes the agent: id, type, capabilities, capacity.
	Registration() models.AgentRegistration

	// Execute analyzes the task's proposal and returns a structured verdict.
	// Implementations respect ctx cancellation and deadlines.
	Execute(ctx context.Context, task *models.AgentTask) (*models.Verdict, error)
}

// AgentTimeoutError is returned when a task's deadline elapsed before the
// agent produced a verdict.
type AgentTimeoutError struct {
	TaskID    string
	AgentType models.AgentType
}

func (e *AgentTimeoutError) Error() string {
	return fmt.Sprintf("task %s: %s agent timed out", e.TaskID, e.AgentType)
}

// IsAgentTimeout reports whether err is (or wraps) an AgentTimeoutError.
func IsAgentTimeout(err error) bool {
	var te *AgentTimeoutError
	return errors.As(err, &te)
}

// timeoutErr converts a context error into the typed timeout error when the
// deadline is the cause.
func timeoutErr(ctx context.Context, task *models.AgentTask, agentType models.AgentType) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &AgentTimeoutError{TaskID: task.TaskID, AgentType: agentType}
	}
	return ctx.Err()
}
