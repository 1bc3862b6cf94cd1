package models

import "time"

// AgentType is the closed set of analysis agent types.
type AgentType string

// Agent types.
const (
	AgentTypeValidator  AgentType = "validator"
	AgentTypeDependency AgentType = "dependency"
	AgentTypeSemantic   AgentType = "semantic"
	AgentTypeMutation   AgentType = "mutation"
	AgentTypeImpact     AgentType = "impact"
	AgentTypeConflict   AgentType = "conflict"
)

// Valid reports whether t is a known agent type.
func (t AgentType) Valid() bool {
	switch t {
	case AgentTypeValidator, AgentTypeDependency, AgentTypeSemantic,
		AgentTypeMutation, AgentTypeImpact, AgentTypeConflict:
		return true
	}
	return false
}

// RequiredAgentTypes are dispatched in parallel for every proposal.
// The conflict agent runs on demand only.
func RequiredAgentTypes() []AgentType {
	return []AgentType{
		AgentTypeValidator,
		AgentTypeDependency,
		AgentTypeSemantic,
		AgentTypeImpact,
		AgentTypeMutation,
	}
}

// TaskStatus is the lifecycle state of an agent task.
type TaskStatus string

// Task lifecycle states.
const (
	TaskStatusQueued    TaskStatus = "queued"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusSucceeded TaskStatus = "succeeded"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusTimedOut  TaskStatus = "timed_out"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// Terminal reports whether s is a terminal task state.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskStatusSucceeded, TaskStatusFailed, TaskStatusTimedOut, TaskStatusCancelled:
		return true
	}
	return false
}

// AgentTask is one unit of analysis work dispatched to an agent.
type AgentTask struct {
	TaskID     string         `json:"task_id"`
	ProposalID string         `json:"proposal_id"`
	AgentID    string         `json:"agent_id,omitempty"`
	AgentType  AgentType      `json:"agent_type"`
	Operation  string         `json:"operation"`
	InputData  map[string]any `json:"input_data,omitempty"`
	Priority   int            `json:"priority"`
	Status     TaskStatus     `json:"status"`
	Attempts   int            `json:"attempts"`
	CreatedAt  time.Time      `json:"created_at"`

	// Proposal is the full proposal under analysis, resolved by the
	// orchestrator before dispatch.
	Proposal *MutationProposal `json:"-"`
}

// Capability is a named operation an agent exposes, with JSON Schemas for its
// input and output payloads.
type Capability struct {
	Name         string `json:"name"`
	InputSchema  string `json:"input_schema,omitempty"`
	OutputSchema string `json:"output_schema,omitempty"`
}

// AgentRegistration describes an agent to the orchestrator. Higher priority
// agents are preferred when several of the same type are free.
type AgentRegistration struct {
	AgentID            string       `json:"agent_id"`
	AgentType          AgentType    `json:"agent_type"`
	Capabilities       []Capability `json:"capabilities"`
	Priority           int          `json:"priority"`
	MaxConcurrentTasks int          `json:"max_concurrent_tasks"`
}
