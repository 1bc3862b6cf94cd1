package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/specforge/specforge/pkg/graph"
	"github.com/specforge/specforge/pkg/llm"
	"github.com/specforge/specforge/pkg/models"
	"github.com/specforge/specforge/pkg/semantic"
)

// NewValidatorAgent validates proposal structure and referential integrity.
func NewValidatorAgent(id string, repo graph.Repository, client llm.Client, cfg Config, logger *slog.Logger) *BaseAgent {
	return newBaseAgent(id, models.AgentTypeValidator, client, cfg, logger,
		[]models.Capability{{Name: "validate_proposal", InputSchema: proposalInputSchema, OutputSchema: validatorOutputSchema}},
		func(task *models.AgentTask) (string, string) {
			return "You are a spec validation agent. Check the proposed change for structural " +
					"and referential problems. Reply with a single JSON object: " +
					`{"confidence_score": <0..1>, "reasoning": "...", "validator": {"is_valid": bool, "errors": [], "warnings": [], "suggestions": []}}`,
				describeProposal(task.Proposal)
		},
		func(ctx context.Context, task *models.AgentTask) (*models.Verdict, error) {
			return validateStructurally(ctx, repo, task)
		})
}

// NewDependencyAgent checks the dependency graph the proposal would produce.
func NewDependencyAgent(id string, repo graph.Repository, client llm.Client, cfg Config, logger *slog.Logger) *BaseAgent {
	return newBaseAgent(id, models.AgentTypeDependency, client, cfg, logger,
		[]models.Capability{{Name: "analyze_dependencies", InputSchema: proposalInputSchema, OutputSchema: dependencyOutputSchema}},
		func(task *models.AgentTask) (string, string) {
			return "You are a dependency analysis agent. Determine whether applying the proposed " +
					"change keeps the dependency graph acyclic. Reply with a single JSON object: " +
					`{"confidence_score": <0..1>, "reasoning": "...", "dependency": {"is_valid": bool, "circular_dependencies": [], "resolution_suggestions": []}}`,
				describeProposal(task.Proposal)
		},
		func(ctx context.Context, task *models.AgentTask) (*models.Verdict, error) {
			return analyzeDependencies(ctx, repo, task)
		})
}

// NewSemanticAgent finds related and possibly duplicated spec content.
func NewSemanticAgent(id string, index *semantic.Index, client llm.Client, cfg Config, logger *slog.Logger) *BaseAgent {
	return newBaseAgent(id, models.AgentTypeSemantic, client, cfg, logger,
		[]models.Capability{{Name: "find_related", InputSchema: proposalInputSchema, OutputSchema: semanticOutputSchema}},
		func(task *models.AgentTask) (string, string) {
			return "You are a semantic analysis agent. Identify spec content related to or " +
					"duplicated by the proposed change. Reply with a single JSON object: " +
					`{"confidence_score": <0..1>, "reasoning": "...", "semantic": {"related_node_ids": [], "duplicates": [], "observations": []}}`,
				describeProposal(task.Proposal)
		},
		func(ctx context.Context, task *models.AgentTask) (*models.Verdict, error) {
			return analyzeSemantics(ctx, index, task)
		})
}

// NewMutationAgent plans the concrete apply steps and their rollback.
func NewMutationAgent(id string, client llm.Client, cfg Config, logger *slog.Logger) *BaseAgent {
	return newBaseAgent(id, models.AgentTypeMutation, client, cfg, logger,
		[]models.Capability{{Name: "plan_mutation", InputSchema: proposalInputSchema, OutputSchema: mutationOutputSchema}},
		func(task *models.AgentTask) (string, string) {
			return "You are a mutation planning agent. Produce an ordered apply plan with a " +
					"rollback plan for the proposed change. Reply with a single JSON object: " +
					`{"confidence_score": <0..1>, "reasoning": "...", "mutation": {"success": bool, "mutation_plan": {"steps": [], "rollback_plan": []}, "feasibility_score": <0..1>, "complexity_score": <0..1>, "risk_factors": []}}`,
				describeProposal(task.Proposal)
		},
		func(_ context.Context, task *models.AgentTask) (*models.Verdict, error) {
			return planMutation(task)
		})
}

// NewImpactAgent propagates the change through reverse dependencies.
func NewImpactAgent(id string, repo graph.Repository, client llm.Client, cfg Config, logger *slog.Logger) *BaseAgent {
	return newBaseAgent(id, models.AgentTypeImpact, client, cfg, logger,
		[]models.Capability{{Name: "analyze_impact", InputSchema: proposalInputSchema, OutputSchema: impactOutputSchema}},
		func(task *models.AgentTask) (string, string) {
			return "You are an impact analysis agent. Determine which spec nodes are affected " +
					"by the proposed change. Reply with a single JSON object: " +
					`{"confidence_score": <0..1>, "reasoning": "...", "impact": {"impact_analysis": {"directly_affected": [], "transitively_affected": [], "impact_ratio": <0..1>, "severity": "low|medium|high"}}}`,
				describeProposal(task.Proposal)
		},
		func(ctx context.Context, task *models.AgentTask) (*models.Verdict, error) {
			return analyzeChangeImpact(ctx, repo, task)
		})
}

// NewConflictAgent compares the proposal base against the live graph.
func NewConflictAgent(id string, repo graph.Repository, client llm.Client, cfg Config, logger *slog.Logger) *BaseAgent {
	return newBaseAgent(id, models.AgentTypeConflict, client, cfg, logger,
		[]models.Capability{{Name: "resolve_conflict", InputSchema: proposalInputSchema, OutputSchema: conflictOutputSchema}},
		func(task *models.AgentTask) (string, string) {
			return "You are a conflict resolution agent. Detect whether the proposed change " +
					"conflicts with the current spec state and suggest resolutions. Reply with a single JSON object: " +
					`{"confidence_score": <0..1>, "reasoning": "...", "conflict": {"has_conflict": bool, "conflicting_fields": [], "resolutions": []}}`,
				describeProposal(task.Proposal)
		},
		func(ctx context.Context, task *models.AgentTask) (*models.Verdict, error) {
			return detectConflicts(ctx, repo, task)
		})
}

// validateStructurally is the validator fallback: closed-set and referential
// integrity checks against the live graph.
func validateStructurally(ctx context.Context, repo graph.Repository, task *models.AgentTask) (*models.Verdict, error) {
	p := task.Proposal
	out := &models.ValidatorVerdict{IsValid: true}
	fail := func(format string, args ...any) {
		out.IsValid = false
		out.Errors = append(out.Errors, fmt.Sprintf(format, args...))
	}

	if !p.OperationType.Valid() {
		fail("unknown operation type %q", p.OperationType)
	}
	changes := p.ProposedChanges
	if changes == nil {
		fail("proposed changes are required")
		return &models.Verdict{Validator: out, Reasoning: "structural validation"}, nil
	}

	switch p.OperationType {
	case models.OperationCreate:
		node := changes.Node
		if node == nil {
			fail("create requires a node payload")
			break
		}
		if node.ID == "" {
			fail("node id is required")
		}
		if !node.Kind.Valid() {
			fail("unknown node kind %q", node.Kind)
		}
		if node.Status != "" && !node.Status.Valid() {
			fail("unknown node status %q", node.Status)
		}
		if node.Name == "" {
			out.Warnings = append(out.Warnings, "node has no name")
		}
		if node.ID != "" {
			if _, err := repo.GetNode(ctx, node.ID); err == nil {
				fail("node %s already exists", node.ID)
			}
		}
		for _, edge := range changes.NewEdges {
			if !edge.Kind.Valid() {
				fail("unknown edge kind %q", edge.Kind)
			}
			for _, endpoint := range []string{edge.SourceID, edge.TargetID} {
				if node != nil && endpoint == node.ID {
					continue
				}
				if _, err := repo.GetNode(ctx, endpoint); err != nil {
					fail("edge endpoint %s does not exist", endpoint)
				}
			}
		}
	case models.OperationUpdate:
		if changes.Update == nil {
			fail("update requires an update payload")
		}
		if changes.Node == nil || changes.Node.ID == "" {
			fail("update requires the target node id")
		} else if _, err := repo.GetNode(ctx, changes.Node.ID); err != nil {
			fail("node %s does not exist", changes.Node.ID)
		}
		if changes.Update != nil && changes.Update.Status != nil && !changes.Update.Status.Valid() {
			fail("unknown node status %q", *changes.Update.Status)
		}
	case models.OperationDelete:
		if changes.Node == nil || changes.Node.ID == "" {
			fail("delete requires the target node id")
		} else if _, err := repo.GetNode(ctx, changes.Node.ID); err != nil {
			fail("node %s does not exist", changes.Node.ID)
		}
	}

	return &models.Verdict{Validator: out, Reasoning: "structural validation"}, nil
}

// analyzeDependencies simulates the proposal against a snapshot and detects
// the cycles the change would introduce.
func analyzeDependencies(ctx context.Context, repo graph.Repository, task *models.AgentTask) (*models.Verdict, error) {
	snap, err := simulatedSnapshot(ctx, repo, task.Proposal)
	if err != nil {
		return nil, err
	}
	resolver := graph.NewDependencyResolver(snap)

	out := &models.DependencyVerdict{
		DependencyGraph:      make(map[string][]string),
		CircularDependencies: resolver.DetectCycles(),
	}
	for _, id := range resolver.Nodes() {
		if deps := resolver.Dependencies(id); len(deps) > 0 {
			out.DependencyGraph[id] = deps
		}
	}
	out.IsValid = len(out.CircularDependencies) == 0
	for _, cycle := range out.CircularDependencies {
		if len(cycle.Cycle) >= 2 {
			out.ResolutionSuggestions = append(out.ResolutionSuggestions,
				fmt.Sprintf("break the cycle by removing the dependency %s -> %s",
					cycle.Cycle[0], cycle.Cycle[1]))
		}
	}

	return &models.Verdict{Dependency: out, Reasoning: "cycle detection over simulated graph"}, nil
}

// analyzeSemantics queries the semantic index with the proposal's text.
func analyzeSemantics(ctx context.Context, index *semantic.Index, task *models.AgentTask) (*models.Verdict, error) {
	p := task.Proposal
	out := &models.SemanticVerdict{}

	query := proposalText(p)
	if strings.TrimSpace(query) == "" {
		out.Observations = append(out.Observations, "proposal carries no searchable text")
		return &models.Verdict{Semantic: out, Reasoning: "semantic index lookup"}, nil
	}

	related, err := index.Search(ctx, query, 5, nil)
	if err != nil {
		return nil, err
	}
	target := ""
	if p.ProposedChanges != nil && p.ProposedChanges.Node != nil {
		target = p.ProposedChanges.Node.ID
	}
	proposedName := ""
	if p.ProposedChanges != nil && p.ProposedChanges.Node != nil {
		proposedName = strings.ToLower(strings.TrimSpace(p.ProposedChanges.Node.Name))
	}
	for _, node := range related {
		if node.ID == target {
			continue
		}
		out.RelatedNodeIDs = append(out.RelatedNodeIDs, node.ID)
		if proposedName != "" && strings.ToLower(strings.TrimSpace(node.Name)) == proposedName {
			out.Duplicates = append(out.Duplicates, node.ID)
		}
	}
	if len(out.Duplicates) > 0 {
		out.Observations = append(out.Observations,
			fmt.Sprintf("%d existing node(s) share the proposed name", len(out.Duplicates)))
	}

	return &models.Verdict{Semantic: out, Reasoning: "semantic index lookup"}, nil
}

// planMutation produces the templated apply plan for the operation type.
func planMutation(task *models.AgentTask) (*models.Verdict, error) {
	p := task.Proposal
	plan := &models.MutationPlan{}
	add := func(action, target, description string) {
		plan.Steps = append(plan.Steps, models.MutationStep{
			Order: len(plan.Steps) + 1, Action: action, Target: target, Description: description,
		})
	}
	undo := func(action, target, description string) {
		plan.RollbackPlan = append(plan.RollbackPlan, models.MutationStep{
			Order: len(plan.RollbackPlan) + 1, Action: action, Target: target, Description: description,
		})
	}

	target := ""
	if p.ProposedChanges != nil && p.ProposedChanges.Node != nil {
		target = p.ProposedChanges.Node.ID
	}
	switch p.OperationType {
	case models.OperationCreate:
		add("create_node", target, "insert the new node")
		if p.ProposedChanges != nil {
			for _, edge := range p.ProposedChanges.NewEdges {
				add("create_edge", edge.ID, fmt.Sprintf("link %s -> %s (%s)", edge.SourceID, edge.TargetID, edge.Kind))
			}
			for _, edge := range p.ProposedChanges.NewEdges {
				undo("delete_edge", edge.ID, "remove the created edge")
			}
		}
		undo("delete_node", target, "remove the created node")
	case models.OperationUpdate:
		add("snapshot_node", target, "capture the current node for rollback")
		add("update_node", target, "apply the partial update")
		undo("restore_node", target, "restore the captured node")
	case models.OperationDelete:
		add("snapshot_node", target, "capture the node and incident edges for rollback")
		add("delete_node", target, "remove the node and cascade incident edges")
		undo("restore_node", target, "recreate the captured node and edges")
	}

	out := &models.MutationVerdict{
		Success:          len(plan.Steps) > 0,
		Plan:             plan,
		FeasibilityScore: 0.9,
		ComplexityScore:  float64(len(plan.Steps)) / 10,
	}
	if out.ComplexityScore > 1 {
		out.ComplexityScore = 1
	}
	if p.OperationType == models.OperationDelete {
		out.RiskFactors = append(out.RiskFactors, models.RiskFactor{
			Description: "deletion cascades to incident edges",
			Severity:    models.SeverityMedium,
		})
	}
	return &models.Verdict{Mutation: out, Reasoning: "templated plan for " + string(p.OperationType)}, nil
}

// analyzeChangeImpact runs reverse-dependency propagation from the changed
// nodes over the current graph.
func analyzeChangeImpact(ctx context.Context, repo graph.Repository, task *models.AgentTask) (*models.Verdict, error) {
	snap, err := repo.Snapshot(ctx, nil, nil)
	if err != nil {
		return nil, err
	}
	analysis := graph.AnalyzeImpact(snap, changedNodeIDs(task.Proposal))
	return &models.Verdict{
		Impact:    &models.ImpactVerdict{Analysis: analysis},
		Reasoning: "reverse dependency propagation",
	}, nil
}

// detectConflicts compares the proposal's update against the live node.
func detectConflicts(ctx context.Context, repo graph.Repository, task *models.AgentTask) (*models.Verdict, error) {
	p := task.Proposal
	out := &models.ConflictVerdict{}

	if p.OperationType != models.OperationUpdate || p.ProposedChanges == nil ||
		p.ProposedChanges.Node == nil || p.ProposedChanges.Update == nil {
		return &models.Verdict{Conflict: out, Reasoning: "no update payload to compare"}, nil
	}

	current, err := repo.GetNode(ctx, p.ProposedChanges.Node.ID)
	if err != nil {
		out.HasConflict = true
		out.ConflictingFields = []string{"node"}
		out.Resolutions = []models.ConflictResolution{{
			Strategy:    "take_proposed",
			Description: "target node no longer exists; recreate it from the proposal",
		}}
		return &models.Verdict{Conflict: out, Reasoning: "target node missing"}, nil
	}

	// A stale base version means the node changed underneath the proposal.
	if p.CurrentVersion != "" && current.Version() != "" &&
		p.CurrentVersion != current.Version() {
		update := p.ProposedChanges.Update
		if update.Name != nil && *update.Name != current.Name {
			out.ConflictingFields = append(out.ConflictingFields, "name")
		}
		if update.Description != nil && *update.Description != current.Description {
			out.ConflictingFields = append(out.ConflictingFields, "description")
		}
		if update.Content != nil && *update.Content != current.Content {
			out.ConflictingFields = append(out.ConflictingFields, "content")
		}
		if update.Status != nil && *update.Status != current.Status {
			out.ConflictingFields = append(out.ConflictingFields, "status")
		}
		sort.Strings(out.ConflictingFields)
		out.HasConflict = len(out.ConflictingFields) > 0
		if out.HasConflict {
			out.Resolutions = []models.ConflictResolution{
				{Strategy: "take_current", Description: "keep the live values and drop the proposal"},
				{Strategy: "take_proposed", Description: "overwrite the live values with the proposal"},
				{Strategy: "merge", Description: "apply only the fields the live node did not change"},
			}
		}
	}

	return &models.Verdict{Conflict: out, Reasoning: "three-way field comparison"}, nil
}

// simulatedSnapshot returns the current graph with the proposal applied in
// memory, for what-if analysis.
func simulatedSnapshot(ctx context.Context, repo graph.Repository, p *models.MutationProposal) (*models.GraphSnapshot, error) {
	snap, err := repo.Snapshot(ctx, nil, nil)
	if err != nil {
		return nil, err
	}
	if p.ProposedChanges == nil {
		return snap, nil
	}

	switch p.OperationType {
	case models.OperationCreate:
		if p.ProposedChanges.Node != nil {
			snap.Nodes = append(snap.Nodes, p.ProposedChanges.Node.Clone())
		}
		for _, edge := range p.ProposedChanges.NewEdges {
			snap.Edges = append(snap.Edges, edge.Clone())
		}
	case models.OperationUpdate:
		for _, edge := range p.ProposedChanges.NewEdges {
			snap.Edges = append(snap.Edges, edge.Clone())
		}
	case models.OperationDelete:
		if p.ProposedChanges.Node == nil {
			break
		}
		removed := p.ProposedChanges.Node.ID
		nodes := snap.Nodes[:0]
		for _, node := range snap.Nodes {
			if node.ID != removed {
				nodes = append(nodes, node)
			}
		}
		snap.Nodes = nodes
		edges := snap.Edges[:0]
		for _, edge := range snap.Edges {
			if edge.SourceID != removed && edge.TargetID != removed {
				edges = append(edges, edge)
			}
		}
		snap.Edges = edges
	}
	return snap, nil
}

// changedNodeIDs lists the node ids a proposal touches.
func changedNodeIDs(p *models.MutationProposal) []string {
	if p.ProposedChanges == nil {
		return nil
	}
	set := make(map[string]struct{})
	if p.ProposedChanges.Node != nil && p.ProposedChanges.Node.ID != "" {
		set[p.ProposedChanges.Node.ID] = struct{}{}
	}
	for _, edge := range p.ProposedChanges.NewEdges {
		set[edge.SourceID] = struct{}{}
		set[edge.TargetID] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func proposalText(p *models.MutationProposal) string {
	var parts []string
	if p.ProposedChanges != nil && p.ProposedChanges.Node != nil {
		parts = append(parts, p.ProposedChanges.Node.SearchText())
	}
	if p.ProposedChanges != nil && p.ProposedChanges.Update != nil {
		update := p.ProposedChanges.Update
		for _, field := range []*string{update.Name, update.Description, update.Content} {
			if field != nil {
				parts = append(parts, *field)
			}
		}
	}
	if p.Reasoning != "" {
		parts = append(parts, p.Reasoning)
	}
	return strings.Join(parts, "\n")
}
