package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/specforge/specforge/pkg/graph"
	"github.com/specforge/specforge/pkg/models"
	"github.com/specforge/specforge/pkg/mutation"
)

// applier commits an approved (or auto-approved) proposal to the graph. It
// owns the applying → {applied, failed, rolled_back} lifecycle segment.
type applier struct {
	repo   graph.Repository
	store  mutation.Store
	logger *slog.Logger
}

// apply transitions the proposal to applying, writes the change, and verifies
// the dependency subgraph stays acyclic. Any write failure undoes the partial
// work before the proposal is marked rolled_back.
func (a *applier) apply(ctx context.Context, p *models.MutationProposal, from models.ProposalStatus) (*models.MutationResult, error) {
	started := time.Now()
	result := &models.MutationResult{MutationID: p.ProposalID}
	finish := func() *models.MutationResult {
		result.ExecutionTimeMS = time.Since(started).Milliseconds()
		return result
	}

	if _, err := a.store.Transition(ctx, p.ProposalID, from, models.ProposalStatusApplying); err != nil {
		result.Status = models.MutationResultFailed
		result.ValidationErrors = append(result.ValidationErrors, "proposal is no longer applicable")
		return finish(), err
	}

	if err := a.precheckAcyclic(ctx, p); err != nil {
		a.failApplying(ctx, p.ProposalID)
		result.Status = models.MutationResultFailed
		result.ValidationErrors = append(result.ValidationErrors, err.Error())
		return finish(), &MutationError{ProposalID: p.ProposalID, Stage: "precheck", Err: err}
	}

	applied, newVersion, err := a.write(ctx, p)
	result.AppliedChanges = applied
	result.NewVersion = newVersion
	if err != nil {
		result.Status = models.MutationResultFailed
		result.ValidationErrors = append(result.ValidationErrors, "mutation could not be applied")
		return finish(), err
	}

	if _, err := a.store.Transition(ctx, p.ProposalID, models.ProposalStatusApplying, models.ProposalStatusApplied); err != nil {
		result.Status = models.MutationResultFailed
		return finish(), err
	}
	result.Status = models.MutationResultSuccess
	a.logger.Info("Proposal applied",
		"proposal_id", p.ProposalID, "operation", string(p.OperationType),
		"changes", len(applied))
	return finish(), nil
}

// precheckAcyclic rejects the write before it happens when the resulting
// depends_on/implements subgraph would contain a cycle.
func (a *applier) precheckAcyclic(ctx context.Context, p *models.MutationProposal) error {
	changes := p.ProposedChanges
	if changes == nil || len(changes.NewEdges) == 0 {
		return nil
	}
	snap, err := a.repo.Snapshot(ctx, nil, nil)
	if err != nil {
		return fmt.Errorf("snapshot for acyclicity check: %w", err)
	}
	if p.OperationType == models.OperationCreate && changes.Node != nil {
		snap.Nodes = append(snap.Nodes, changes.Node.Clone())
	}
	for _, edge := range changes.NewEdges {
		snap.Edges = append(snap.Edges, edge.Clone())
	}
	if graph.NewDependencyResolver(snap).HasCycle() {
		return fmt.Errorf("change would introduce a circular dependency")
	}
	return nil
}

// write performs the graph operation, undoing partial work on failure.
func (a *applier) write(ctx context.Context, p *models.MutationProposal) (applied []string, newVersion string, err error) {
	changes := p.ProposedChanges
	if changes == nil {
		a.failApplying(ctx, p.ProposalID)
		return nil, "", &MutationError{ProposalID: p.ProposalID, Stage: "write",
			Err: fmt.Errorf("proposal has no changes")}
	}

	switch p.OperationType {
	case models.OperationCreate:
		return a.writeCreate(ctx, p, changes)
	case models.OperationUpdate:
		return a.writeUpdate(ctx, p, changes)
	case models.OperationDelete:
		return a.writeDelete(ctx, p, changes)
	}
	a.failApplying(ctx, p.ProposalID)
	return nil, "", &MutationError{ProposalID: p.ProposalID, Stage: "write",
		Err: fmt.Errorf("unknown operation %q", p.OperationType)}
}

func (a *applier) writeCreate(ctx context.Context, p *models.MutationProposal, changes *models.ProposedChange) ([]string, string, error) {
	if changes.Node == nil {
		a.failApplying(ctx, p.ProposalID)
		return nil, "", &MutationError{ProposalID: p.ProposalID, Stage: "create",
			Err: fmt.Errorf("create without a node payload")}
	}
	node, err := a.repo.CreateNode(ctx, changes.Node)
	if err != nil {
		a.failApplying(ctx, p.ProposalID)
		return nil, "", &MutationError{ProposalID: p.ProposalID, Stage: "create", Err: err}
	}
	applied := []string{"create_node:" + node.ID}

	var createdEdges []string
	for _, edge := range changes.NewEdges {
		created, err := a.repo.CreateEdge(ctx, edge)
		if err != nil {
			a.rollbackCreate(ctx, p.ProposalID, node.ID, createdEdges)
			return applied, "", &MutationError{ProposalID: p.ProposalID, Stage: "create", Err: err}
		}
		createdEdges = append(createdEdges, created.ID)
		applied = append(applied, "create_edge:"+created.ID)
	}
	return applied, node.Version(), nil
}

func (a *applier) writeUpdate(ctx context.Context, p *models.MutationProposal, changes *models.ProposedChange) ([]string, string, error) {
	if changes.Node == nil || changes.Update == nil {
		a.failApplying(ctx, p.ProposalID)
		return nil, "", &MutationError{ProposalID: p.ProposalID, Stage: "update",
			Err: fmt.Errorf("update without a target or payload")}
	}
	node, err := a.repo.UpdateNode(ctx, changes.Node.ID, changes.Update)
	if err != nil {
		a.failApplying(ctx, p.ProposalID)
		return nil, "", &MutationError{ProposalID: p.ProposalID, Stage: "update", Err: err}
	}
	applied := []string{"update_node:" + node.ID}

	var createdEdges []string
	for _, edge := range changes.NewEdges {
		created, err := a.repo.CreateEdge(ctx, edge)
		if err != nil {
			for _, id := range createdEdges {
				if delErr := a.repo.DeleteEdge(ctx, id); delErr != nil {
					a.logger.Error("Rollback failed to remove edge",
						"proposal_id", p.ProposalID, "edge_id", id, "error", delErr)
				}
			}
			a.markRolledBack(ctx, p.ProposalID)
			return applied, "", &MutationError{ProposalID: p.ProposalID, Stage: "update", Err: err}
		}
		createdEdges = append(createdEdges, created.ID)
		applied = append(applied, "create_edge:"+created.ID)
	}
	return applied, node.Version(), nil
}

func (a *applier) writeDelete(ctx context.Context, p *models.MutationProposal, changes *models.ProposedChange) ([]string, string, error) {
	if changes.Node == nil || changes.Node.ID == "" {
		a.failApplying(ctx, p.ProposalID)
		return nil, "", &MutationError{ProposalID: p.ProposalID, Stage: "delete",
			Err: fmt.Errorf("delete without a target id")}
	}
	if err := a.repo.DeleteNode(ctx, changes.Node.ID); err != nil {
		a.failApplying(ctx, p.ProposalID)
		return nil, "", &MutationError{ProposalID: p.ProposalID, Stage: "delete", Err: err}
	}
	return []string{"delete_node:" + changes.Node.ID}, "", nil
}

// rollbackCreate removes the node and edges written so far, then marks the
// proposal rolled back.
func (a *applier) rollbackCreate(ctx context.Context, proposalID, nodeID string, edgeIDs []string) {
	for _, id := range edgeIDs {
		if err := a.repo.DeleteEdge(ctx, id); err != nil {
			a.logger.Error("Rollback failed to remove edge",
				"proposal_id", proposalID, "edge_id", id, "error", err)
		}
	}
	// Deleting the node also cascades any edges the loop missed.
	if err := a.repo.DeleteNode(ctx, nodeID); err != nil {
		a.logger.Error("Rollback failed to remove node",
			"proposal_id", proposalID, "node_id", nodeID, "error", err)
	}
	a.markRolledBack(ctx, proposalID)
}

func (a *applier) markRolledBack(ctx context.Context, proposalID string) {
	if _, err := a.store.Transition(ctx, proposalID, models.ProposalStatusApplying, models.ProposalStatusRolledBack); err != nil {
		a.logger.Error("Failed to mark proposal rolled back",
			"proposal_id", proposalID, "error", err)
	}
}

func (a *applier) failApplying(ctx context.Context, proposalID string) {
	if _, err := a.store.Transition(ctx, proposalID, models.ProposalStatusApplying, models.ProposalStatusFailed); err != nil {
		a.logger.Error("Failed to mark proposal failed",
			"proposal_id", proposalID, "error", err)
	}
}
