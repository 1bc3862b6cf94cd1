// Package orchestrator schedules agent analysis of mutation proposals,
// aggregates their verdicts, routes proposals through approval when needed,
// and applies accepted changes to the spec graph.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/specforge/specforge/pkg/approval"
	"github.com/specforge/specforge/pkg/graph"
	"github.com/specforge/specforge/pkg/metrics"
	"github.com/specforge/specforge/pkg/models"
	"github.com/specforge/specforge/pkg/mutation"
)

// Defaults for the orchestrator's tunables.
const (
	DefaultMaxConcurrentAgents  = 10
	DefaultAgentTimeout         = 300 * time.Second
	DefaultRetryAttempts        = 3
	DefaultAutoApproveThreshold = 0.85
)

// ApprovalTimeoutMessage is the user-facing validation error carried by a
// mutation result when the approval deadline expires.
const ApprovalTimeoutMessage = "Approval timeout"

// Config carries the orchestrator tunables.
type Config struct {
	MaxConcurrentAgents  int
	QueueSize            int
	AgentTimeout         time.Duration
	RetryAttempts        int
	RetryBaseWait        time.Duration
	AutoApproveThreshold float64
}

func (c Config) withDefaults() Config {
	if c.MaxConcurrentAgents <= 0 {
		c.MaxConcurrentAgents = DefaultMaxConcurrentAgents
	}
	if c.AgentTimeout <= 0 {
		c.AgentTimeout = DefaultAgentTimeout
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = DefaultRetryAttempts
	}
	if c.AutoApproveThreshold <= 0 {
		c.AutoApproveThreshold = DefaultAutoApproveThreshold
	}
	return c
}

// proposalRun tracks one proposal's in-flight analysis. The join barrier is
// the remaining counter: aggregation runs only after every required task
// reached a terminal state.
type proposalRun struct {
	proposal  *models.MutationProposal
	ctx       context.Context
	cancel    context.CancelFunc
	startedAt time.Time

	mu        sync.Mutex
	verdicts  map[models.AgentType]*models.Verdict
	remaining int
}

// Orchestrator is the engine's coordination core. One instance per process.
type Orchestrator struct {
	cfg       Config
	registry  *Registry
	pool      *pool
	repo      graph.Repository
	store     mutation.Store
	approvals *approval.Manager
	metrics   *metrics.Metrics
	logger    *slog.Logger

	mu   sync.Mutex
	runs map[string]*proposalRun
}

// New wires an orchestrator and registers it as the approval resolver.
// metrics may be nil.
func New(cfg Config, registry *Registry, repo graph.Repository, store mutation.Store,
	approvals *approval.Manager, m *metrics.Metrics, logger *slog.Logger) *Orchestrator {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{
		cfg:       cfg,
		registry:  registry,
		repo:      repo,
		store:     store,
		approvals: approvals,
		metrics:   m,
		logger:    logger,
		runs:      make(map[string]*proposalRun),
	}
	o.pool = newPool(registry, m, logger, cfg.MaxConcurrentAgents, cfg.QueueSize,
		cfg.RetryAttempts, cfg.AgentTimeout, cfg.RetryBaseWait)
	if approvals != nil {
		approvals.SetResolver(o.resolveApproval)
	}
	return o
}

// Stop drains the worker pool and cancels in-flight proposal runs.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	for _, run := range o.runs {
		run.cancel()
	}
	o.mu.Unlock()
	o.pool.stop()
	if o.approvals != nil {
		o.approvals.Stop()
	}
}

// Registry exposes the agent registry for registration at startup.
func (o *Orchestrator) Registry() *Registry {
	return o.registry
}

// ProposeMutation accepts a proposal and schedules its required agent tasks.
// The analysis runs detached from the caller's context; the returned proposal
// carries the assigned id in the validating state.
func (o *Orchestrator) ProposeMutation(ctx context.Context, p *models.MutationProposal) (*models.MutationProposal, error) {
	created, err := o.store.Create(ctx, p)
	if err != nil {
		return nil, err
	}
	if o.metrics != nil {
		o.metrics.MutationsProposed.Inc()
	}

	validating, err := o.store.Transition(ctx, created.ProposalID,
		models.ProposalStatusProposed, models.ProposalStatusValidating)
	if err != nil {
		return nil, err
	}

	required := models.RequiredAgentTypes()
	runCtx, cancel := context.WithCancel(context.Background())
	run := &proposalRun{
		proposal:  validating,
		ctx:       runCtx,
		cancel:    cancel,
		startedAt: time.Now(),
		verdicts:  make(map[models.AgentType]*models.Verdict, len(required)),
		remaining: len(required),
	}
	o.mu.Lock()
	o.runs[validating.ProposalID] = run
	o.mu.Unlock()

	o.logger.Info("Proposal accepted for analysis",
		"proposal_id", validating.ProposalID, "operation", string(validating.OperationType),
		"user_id", validating.UserID)

	for _, agentType := range required {
		task := &models.AgentTask{
			TaskID:     uuid.NewString(),
			ProposalID: validating.ProposalID,
			AgentType:  agentType,
			Operation:  string(validating.OperationType),
			Status:     models.TaskStatusQueued,
			CreatedAt:  time.Now().UTC(),
			Proposal:   validating,
		}
		env := &taskEnvelope{ctx: runCtx, task: task, done: o.taskDone(run)}
		if !o.pool.submit(env) {
			o.taskDone(run)(taskResult{task: task,
				err: fmt.Errorf("task queue full for %s", agentType)})
		}
	}
	return validating, nil
}

// GetProposal returns the proposal by id.
func (o *Orchestrator) GetProposal(ctx context.Context, proposalID string) (*models.MutationProposal, error) {
	return o.store.Get(ctx, proposalID)
}

// ListProposals returns proposals matching the filter.
func (o *Orchestrator) ListProposals(ctx context.Context, filter *models.ProposalFilter) ([]*models.MutationProposal, error) {
	return o.store.List(ctx, filter)
}

// CancelProposal cancels a proposal from any non-terminal state: in-flight
// tasks are cancelled and a pending approval request is withdrawn.
func (o *Orchestrator) CancelProposal(ctx context.Context, proposalID string) (*models.MutationProposal, error) {
	o.mu.Lock()
	run, ok := o.runs[proposalID]
	o.mu.Unlock()
	if ok {
		run.cancel()
	}
	if o.approvals != nil {
		o.approvals.Cancel(proposalID)
	}

	current, err := o.store.Get(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	if current.Status.Terminal() {
		return nil, &mutation.ConflictError{ProposalID: proposalID, Actual: current.Status,
			Reason: "proposal already settled"}
	}
	cancelled, err := o.store.Transition(ctx, proposalID, current.Status, models.ProposalStatusCancelled)
	if err != nil {
		return nil, err
	}
	o.logger.Info("Proposal cancelled", "proposal_id", proposalID)
	return cancelled, nil
}

// RunConflictCheck executes the on-demand conflict agent for a proposal and
// waits for its verdict.
func (o *Orchestrator) RunConflictCheck(ctx context.Context, proposalID string) (*models.Verdict, error) {
	p, err := o.store.Get(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	task := &models.AgentTask{
		TaskID:     uuid.NewString(),
		ProposalID: proposalID,
		AgentType:  models.AgentTypeConflict,
		Operation:  string(p.OperationType),
		Status:     models.TaskStatusQueued,
		CreatedAt:  time.Now().UTC(),
		Proposal:   p,
	}

	results := make(chan taskResult, 1)
	env := &taskEnvelope{ctx: ctx, task: task, done: func(res taskResult) { results <- res }}
	if !o.pool.submit(env) {
		return nil, fmt.Errorf("conflict check queue full")
	}
	select {
	case res := <-results:
		return res.verdict, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// RecoverOrphans settles proposals left in non-terminal states by a previous
// process: analysis and apply phases fail (their work is gone), while
// proposals awaiting approval get their request re-issued. Returns the number
// of proposals touched.
func (o *Orchestrator) RecoverOrphans(ctx context.Context) (int, error) {
	recovered := 0
	for _, stuck := range []models.ProposalStatus{
		models.ProposalStatusProposed,
		models.ProposalStatusValidating,
		models.ProposalStatusApplying,
	} {
		orphans, err := o.store.List(ctx, &models.ProposalFilter{Status: stuck})
		if err != nil {
			return recovered, err
		}
		for _, p := range orphans {
			target := models.ProposalStatusFailed
			if stuck == models.ProposalStatusProposed {
				target = models.ProposalStatusCancelled
			}
			if _, err := o.store.Transition(ctx, p.ProposalID, stuck, target); err != nil {
				o.logger.Error("Failed to settle orphaned proposal",
					"proposal_id", p.ProposalID, "status", string(stuck), "error", err)
				continue
			}
			o.logger.Warn("Settled orphaned proposal from previous run",
				"proposal_id", p.ProposalID, "was", string(stuck), "now", string(target))
			recovered++
		}
	}

	waiting, err := o.store.List(ctx, &models.ProposalFilter{Status: models.ProposalStatusAwaitingApproval})
	if err != nil {
		return recovered, err
	}
	for _, p := range waiting {
		if o.approvals == nil {
			break
		}
		if _, ok := o.approvals.Pending(p.ProposalID); ok {
			continue
		}
		if _, err := o.approvals.Issue(ctx, o.buildApprovalRequest(ctx, p, Decision{MinConfidence: p.Confidence})); err != nil {
			o.logger.Error("Failed to re-issue orphaned approval",
				"proposal_id", p.ProposalID, "error", err)
			continue
		}
		o.logger.Warn("Re-issued approval for orphaned proposal", "proposal_id", p.ProposalID)
		recovered++
	}
	return recovered, nil
}

// taskDone returns the completion callback wired into each task envelope.
func (o *Orchestrator) taskDone(run *proposalRun) func(taskResult) {
	return func(res taskResult) {
		run.mu.Lock()
		if res.verdict != nil {
			run.verdicts[res.task.AgentType] = res.verdict
		}
		run.remaining--
		finished := run.remaining == 0
		run.mu.Unlock()

		if res.err != nil {
			o.logger.Warn("Agent task settled without verdict",
				"proposal_id", run.proposal.ProposalID,
				"agent_type", string(res.task.AgentType),
				"status", string(res.task.Status), "error", res.err)
		}
		if finished {
			go o.finishAnalysis(run)
		}
	}
}

// finishAnalysis runs once all required tasks settle: the join barrier of the
// proposal.
func (o *Orchestrator) finishAnalysis(run *proposalRun) {
	p := run.proposal
	defer func() {
		o.mu.Lock()
		delete(o.runs, p.ProposalID)
		o.mu.Unlock()
	}()

	ctx := context.Background()
	if run.ctx.Err() != nil {
		// CancelProposal already moved the ledger; nothing to decide.
		o.logger.Info("Analysis abandoned, proposal cancelled", "proposal_id", p.ProposalID)
		return
	}

	run.mu.Lock()
	verdicts := make(map[models.AgentType]*models.Verdict, len(run.verdicts))
	for k, v := range run.verdicts {
		verdicts[k] = v
	}
	run.mu.Unlock()

	decision := Aggregate(verdicts, models.RequiredAgentTypes(), o.cfg.AutoApproveThreshold)
	o.logger.Info("Proposal analysis aggregated",
		"proposal_id", p.ProposalID, "auto_apply", decision.AutoApply,
		"terminate", decision.Terminate, "min_confidence", decision.MinConfidence)

	switch {
	case decision.Terminate:
		o.failProposal(ctx, p, models.ProposalStatusValidating, decision.ValidationErrors, decision.Warnings, run.startedAt)
	case decision.AutoApply:
		o.applyAndNotify(ctx, p, models.ProposalStatusValidating, decision.Warnings)
	default:
		o.routeToApproval(ctx, p, decision)
	}
}

func (o *Orchestrator) routeToApproval(ctx context.Context, p *models.MutationProposal, decision Decision) {
	waiting, err := o.store.Transition(ctx, p.ProposalID,
		models.ProposalStatusValidating, models.ProposalStatusAwaitingApproval)
	if err != nil {
		o.logger.Error("Failed to route proposal to approval",
			"proposal_id", p.ProposalID, "error", err)
		return
	}
	if o.approvals == nil {
		o.logger.Error("No approval manager configured", "proposal_id", p.ProposalID)
		return
	}
	if _, err := o.approvals.Issue(ctx, o.buildApprovalRequest(ctx, waiting, decision)); err != nil {
		o.logger.Error("Failed to issue approval request",
			"proposal_id", p.ProposalID, "error", err)
	}
}

// resolveApproval is the approval manager's completion callback.
func (o *Orchestrator) resolveApproval(ctx context.Context, req *models.ApprovalRequest, resp *models.ApprovalResponse) {
	p, err := o.store.Get(ctx, resp.ProposalID)
	if err != nil {
		o.logger.Error("Approval resolved for unknown proposal",
			"proposal_id", resp.ProposalID, "error", err)
		return
	}

	switch resp.Decision {
	case models.DecisionApproved:
		o.applyAndNotify(ctx, p, models.ProposalStatusAwaitingApproval, nil)
	case models.DecisionModified:
		if resp.ModifiedContent != nil {
			updated, err := o.store.UpdateChanges(ctx, p.ProposalID, resp.ModifiedContent)
			if err != nil {
				o.logger.Error("Failed to apply modified content",
					"proposal_id", p.ProposalID, "error", err)
				o.failProposal(ctx, p, models.ProposalStatusAwaitingApproval,
					[]string{"modified content could not be applied"}, nil, time.Now())
				return
			}
			p = updated
		}
		o.applyAndNotify(ctx, p, models.ProposalStatusAwaitingApproval, nil)
	case models.DecisionRejected:
		message := "Rejected by user"
		if resp.Reason == approval.TimeoutReason {
			message = ApprovalTimeoutMessage
		} else if resp.Reason != "" {
			message = fmt.Sprintf("Rejected by user: %s", resp.Reason)
		}
		o.failProposal(ctx, p, models.ProposalStatusAwaitingApproval,
			[]string{message}, nil, time.Now())
	}
}

// applyAndNotify runs the applier and fans the result out to the user. The
// mutation:result event is emitted only after the graph write settled.
func (o *Orchestrator) applyAndNotify(ctx context.Context, p *models.MutationProposal,
	from models.ProposalStatus, warnings []string) {
	a := &applier{repo: o.repo, store: o.store, logger: o.logger}
	result, err := a.apply(ctx, p, from)
	result.Warnings = append(result.Warnings, warnings...)
	if err != nil {
		o.logger.Error("Proposal apply failed",
			"proposal_id", p.ProposalID, "error", err)
	}

	if o.metrics != nil {
		if result.Status == models.MutationResultSuccess {
			o.metrics.MutationsCompleted.Inc()
		} else {
			o.metrics.MutationsFailed.Inc()
		}
	}
	o.notifyResult(p.UserID, result)
}

// failProposal settles a proposal as failed and notifies the user.
func (o *Orchestrator) failProposal(ctx context.Context, p *models.MutationProposal,
	from models.ProposalStatus, validationErrors, warnings []string, startedAt time.Time) {
	if _, err := o.store.Transition(ctx, p.ProposalID, from, models.ProposalStatusFailed); err != nil {
		o.logger.Error("Failed to mark proposal failed",
			"proposal_id", p.ProposalID, "error", err)
	}
	if o.metrics != nil {
		o.metrics.MutationsFailed.Inc()
	}
	o.notifyResult(p.UserID, &models.MutationResult{
		MutationID:       p.ProposalID,
		Status:           models.MutationResultFailed,
		ValidationErrors: validationErrors,
		Warnings:         warnings,
		ExecutionTimeMS:  time.Since(startedAt).Milliseconds(),
	})
}

func (o *Orchestrator) notifyResult(userID string, result *models.MutationResult) {
	if o.approvals != nil {
		o.approvals.NotifyResult(userID, result)
	}
}

// buildApprovalRequest renders the proposal for human review.
func (o *Orchestrator) buildApprovalRequest(ctx context.Context, p *models.MutationProposal, decision Decision) *models.ApprovalRequest {
	req := &models.ApprovalRequest{
		ProposalID: p.ProposalID,
		UserID:     p.UserID,
		SpecID:     p.SpecID,
		Reasoning:  p.Reasoning,
		Confidence: decision.MinConfidence,
		Priority:   priorityFor(decision),
	}
	if p.ProposedChanges != nil {
		if raw, err := json.MarshalIndent(p.ProposedChanges, "", "  "); err == nil {
			req.ProposedContent = string(raw)
		}
		if p.ProposedChanges.Node != nil && p.ProposedChanges.Node.ID != "" {
			if current, err := o.repo.GetNode(ctx, p.ProposedChanges.Node.ID); err == nil {
				req.CurrentContent = current.Content
			}
		}
	}
	req.Diff = diffSummary(decision)
	return req
}

// priorityFor derives the UI priority hint from the denial reasons: critical
// when a verdict graded anything critical, high for low confidence or many
// denials, low for a confident near-miss, normal otherwise.
func priorityFor(decision Decision) models.ApprovalPriority {
	switch {
	case decision.MaxSeverity == models.SeverityCritical:
		return models.PriorityCritical
	case decision.MinConfidence == 0:
		return models.PriorityHigh
	case decision.MinConfidence < 0.5:
		return models.PriorityHigh
	case len(decision.Reasons) > 2:
		return models.PriorityHigh
	case decision.MinConfidence >= 0.75 && len(decision.Reasons) == 1:
		return models.PriorityLow
	default:
		return models.PriorityNormal
	}
}

func diffSummary(decision Decision) string {
	if len(decision.Reasons) == 0 {
		return ""
	}
	out := "Needs review:"
	for _, reason := range decision.Reasons {
		out += "\n- " + reason
	}
	return out
}
