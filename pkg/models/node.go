// Package models defines the core domain types shared across the engine:
// spec graph nodes and edges, mutation proposals, approval requests, agent
// tasks and verdicts.
package models

import "time"

// NodeKind is the closed set of spec graph node types.
type NodeKind string

// Node kinds.
const (
	NodeKindSpec          NodeKind = "spec"
	NodeKindModule        NodeKind = "module"
	NodeKindController    NodeKind = "controller"
	NodeKindModel         NodeKind = "model"
	NodeKindRoute         NodeKind = "route"
	NodeKindTask          NodeKind = "task"
	NodeKindTest          NodeKind = "test"
	NodeKindAgent         NodeKind = "agent"
	NodeKindGoal          NodeKind = "goal"
	NodeKindConstraint    NodeKind = "constraint"
	NodeKindDocumentation NodeKind = "documentation"
)

// Valid reports whether k is a known node kind.
func (k NodeKind) Valid() bool {
	switch k {
	case NodeKindSpec, NodeKindModule, NodeKindController, NodeKindModel,
		NodeKindRoute, NodeKindTask, NodeKindTest, NodeKindAgent,
		NodeKindGoal, NodeKindConstraint, NodeKindDocumentation:
		return true
	}
	return false
}

// NodeStatus is the lifecycle status of a spec graph node.
type NodeStatus string

// Node statuses.
const (
	NodeStatusActive     NodeStatus = "active"
	NodeStatusDraft      NodeStatus = "draft"
	NodeStatusDeprecated NodeStatus = "deprecated"
	NodeStatusPending    NodeStatus = "pending"
)

// Valid reports whether s is a known node status.
func (s NodeStatus) Valid() bool {
	switch s {
	case NodeStatusActive, NodeStatusDraft, NodeStatusDeprecated, NodeStatusPending:
		return true
	}
	return false
}

// Node is a typed vertex in the spec graph.
type Node struct {
	ID          string            `json:"id"`
	Kind        NodeKind          `json:"kind"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Content     string            `json:"content,omitempty"`
	SpecSource  string            `json:"spec_source,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Status      NodeStatus        `json:"status"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`

	// Embedding is maintained by the semantic index, never by callers.
	Embedding []float64 `json:"embedding,omitempty"`
}

// Clone returns a deep copy of the node. Repositories return clones so callers
// cannot mutate stored state.
func (n *Node) Clone() *Node {
	c := *n
	if n.Metadata != nil {
		c.Metadata = make(map[string]string, len(n.Metadata))
		for k, v := range n.Metadata {
			c.Metadata[k] = v
		}
	}
	if n.Embedding != nil {
		c.Embedding = append([]float64(nil), n.Embedding...)
	}
	return &c
}

// SearchText returns the text the semantic index derives from a node.
func (n *Node) SearchText() string {
	return n.Name + "\n" + n.Description + "\n" + n.Content
}

// Version returns the node's opaque version token, derived from its last
// update time. Proposals carry it as current_version for conflict detection.
func (n *Node) Version() string {
	if n.UpdatedAt.IsZero() {
		return ""
	}
	return n.UpdatedAt.UTC().Format("20060102T150405.000000000")
}

// NodeUpdate is a partial update for a node. Nil fields are preserved.
type NodeUpdate struct {
	Name        *string           `json:"name,omitempty"`
	Description *string           `json:"description,omitempty"`
	Content     *string           `json:"content,omitempty"`
	SpecSource  *string           `json:"spec_source,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Status      *NodeStatus       `json:"status,omitempty"`
	Embedding   []float64         `json:"embedding,omitempty"`
}

// NodeFilter restricts QueryNodes results. Zero values mean "no restriction".
type NodeFilter struct {
	Kind     NodeKind          `json:"kind,omitempty"`
	Status   NodeStatus        `json:"status,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}
