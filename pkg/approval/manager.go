// Package approval routes mutation proposals that need a human decision to
// the user's live sessions and tracks the pending requests until a response
// or timeout resolves them.
package approval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/specforge/specforge/pkg/channels"
	"github.com/specforge/specforge/pkg/metrics"
	"github.com/specforge/specforge/pkg/models"
)

// DefaultTimeout is the approval deadline when the request carries none.
const DefaultTimeout = 300 * time.Second

// TimeoutReason marks a synthesized timeout rejection.
const TimeoutReason = "timeout"

// Live event names the manager emits.
const (
	EventApprovalRequest = "approval:request"
	EventNotification    = "notification"
	EventMutationResult  = "mutation:result"
)

// ApprovalError is returned for responses that reference no pending request
// (unknown id, already responded, or expired). Never fatal to the server.
type ApprovalError struct {
	RequestID string
	Reason    string
}

func (e *ApprovalError) Error() string {
	return fmt.Sprintf("approval request %s: %s", e.RequestID, e.Reason)
}

// IsApprovalError reports whether err is (or wraps) an ApprovalError.
func IsApprovalError(err error) bool {
	var ae *ApprovalError
	return errors.As(err, &ae)
}

// Sender is the hub surface the manager needs. Implemented by channels.Hub.
type Sender interface {
	IsConnected(userID, clientType string) bool
	SendToUser(userID, clientType, event string, data any) error
}

// Resolver receives every completed approval response, synthesized timeouts
// included. The orchestrator registers itself here to run the applier or fail
// the proposal.
type Resolver func(ctx context.Context, req *models.ApprovalRequest, resp *models.ApprovalResponse)

// Notifier receives out-of-band copies of approval traffic, e.g. a Slack
// channel. Calls run on their own goroutine so a slow notifier cannot stall
// the approval path.
type Notifier interface {
	ApprovalRequested(ctx context.Context, req *models.ApprovalRequest)
	ApprovalResolved(ctx context.Context, req *models.ApprovalRequest, resp *models.ApprovalResponse)
}

type pendingRequest struct {
	req   *models.ApprovalRequest
	timer *time.Timer
}

// Manager owns the pending-approval ledger. One instance per process.
type Manager struct {
	hub     Sender
	metrics *metrics.Metrics
	logger  *slog.Logger
	timeout time.Duration

	mu         sync.Mutex
	pending    map[string]*pendingRequest // request_id -> pending
	byProposal map[string]string          // proposal_id -> request_id

	resolverMu sync.RWMutex
	resolver   Resolver
	notifier   Notifier
}

// NewManager creates a manager. metrics may be nil; defaultTimeout <= 0 means
// DefaultTimeout.
func NewManager(hub Sender, m *metrics.Metrics, defaultTimeout time.Duration, logger *slog.Logger) *Manager {
	if defaultTimeout <= 0 {
		defaultTimeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		hub:        hub,
		metrics:    m,
		logger:     logger,
		timeout:    defaultTimeout,
		pending:    make(map[string]*pendingRequest),
		byProposal: make(map[string]string),
	}
}

// SetResolver registers the completion callback. Must be called before the
// first Issue.
func (m *Manager) SetResolver(r Resolver) {
	m.resolverMu.Lock()
	defer m.resolverMu.Unlock()
	m.resolver = r
}

// SetNotifier registers an optional out-of-band notifier.
func (m *Manager) SetNotifier(n Notifier) {
	m.resolverMu.Lock()
	defer m.resolverMu.Unlock()
	m.notifier = n
}

func (m *Manager) getNotifier() Notifier {
	m.resolverMu.RLock()
	defer m.resolverMu.RUnlock()
	return m.notifier
}

// Issue delivers an approval request to the user's best live channel and
// schedules its deadline. Issuing a second request for the same proposal is a
// no-op that returns the existing request.
func (m *Manager) Issue(ctx context.Context, req *models.ApprovalRequest) (*models.ApprovalRequest, error) {
	if req == nil || req.ProposalID == "" || req.UserID == "" {
		return nil, fmt.Errorf("approval request needs proposal and user ids")
	}

	m.mu.Lock()
	if existingID, ok := m.byProposal[req.ProposalID]; ok {
		existing := m.pending[existingID].req
		m.mu.Unlock()
		m.logger.Info("Approval already pending for proposal",
			"proposal_id", req.ProposalID, "request_id", existingID)
		return existing, nil
	}

	issued := *req
	if issued.RequestID == "" {
		issued.RequestID = uuid.NewString()
	}
	timeout := m.timeout
	if issued.TimeoutSeconds > 0 {
		timeout = time.Duration(issued.TimeoutSeconds) * time.Second
	} else {
		issued.TimeoutSeconds = int(timeout / time.Second)
	}
	now := time.Now().UTC()
	issued.CreatedAt = now
	issued.ExpiresAt = now.Add(timeout)
	issued.Status = models.ApprovalStatusIssued
	issued.PreferredChannel = m.selectChannel(issued.UserID)
	issued.FallbackChannels = fallbacksFor(issued.PreferredChannel)

	entry := &pendingRequest{req: &issued}
	entry.timer = time.AfterFunc(timeout, func() { m.expire(issued.RequestID) })
	m.pending[issued.RequestID] = entry
	m.byProposal[issued.ProposalID] = issued.RequestID
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.PendingApprovals.Inc()
	}
	m.deliver(&issued)
	if n := m.getNotifier(); n != nil {
		notified := issued
		go n.ApprovalRequested(context.WithoutCancel(ctx), &notified)
	}

	m.logger.Info("Approval request issued",
		"request_id", issued.RequestID, "proposal_id", issued.ProposalID,
		"user_id", issued.UserID, "channel", string(issued.PreferredChannel))
	return &issued, nil
}

// Respond ingests a user's decision. Unknown or already-settled requests
// return an ApprovalError.
func (m *Manager) Respond(ctx context.Context, resp *models.ApprovalResponse) error {
	if resp == nil || resp.RequestID == "" {
		return &ApprovalError{Reason: "request id is required"}
	}
	if !resp.Decision.Valid() {
		return &ApprovalError{RequestID: resp.RequestID,
			Reason: fmt.Sprintf("unknown decision %q", resp.Decision)}
	}

	entry, ok := m.take(resp.RequestID)
	if !ok {
		return &ApprovalError{RequestID: resp.RequestID, Reason: "no pending request"}
	}
	entry.timer.Stop()
	entry.req.Status = models.ApprovalStatusResponded

	settled := *resp
	settled.ProposalID = entry.req.ProposalID
	if settled.UserID == "" {
		settled.UserID = entry.req.UserID
	}
	if settled.RespondedAt.IsZero() {
		settled.RespondedAt = time.Now().UTC()
	}

	if m.metrics != nil {
		m.metrics.PendingApprovals.Dec()
	}
	m.logger.Info("Approval response received",
		"request_id", settled.RequestID, "proposal_id", settled.ProposalID,
		"decision", string(settled.Decision))
	m.resolve(ctx, entry.req, &settled)
	return nil
}

// NotifyResult fans a mutation result out to all of the user's live sessions.
func (m *Manager) NotifyResult(userID string, result *models.MutationResult) {
	if err := m.hub.SendToUser(userID, "", EventMutationResult, result); err != nil {
		m.logger.Warn("Failed to deliver mutation result",
			"user_id", userID, "mutation_id", result.MutationID, "error", err)
	}
}

// Pending returns the in-flight request for a proposal, if any.
func (m *Manager) Pending(proposalID string) (*models.ApprovalRequest, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byProposal[proposalID]
	if !ok {
		return nil, false
	}
	req := *m.pending[id].req
	return &req, true
}

// PendingCount returns the ledger size.
func (m *Manager) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Cancel withdraws the pending request for a proposal without resolving it,
// used when the proposal itself is cancelled. Reports whether one existed.
func (m *Manager) Cancel(proposalID string) bool {
	m.mu.Lock()
	id, ok := m.byProposal[proposalID]
	if !ok {
		m.mu.Unlock()
		return false
	}
	entry := m.pending[id]
	delete(m.pending, id)
	delete(m.byProposal, proposalID)
	m.mu.Unlock()

	entry.timer.Stop()
	if m.metrics != nil {
		m.metrics.PendingApprovals.Dec()
	}
	m.logger.Info("Approval request withdrawn",
		"request_id", id, "proposal_id", proposalID)
	return true
}

// Stop cancels every pending deadline, used during shutdown. Pending requests
// are left unresolved for orphan recovery to pick up on restart.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, entry := range m.pending {
		entry.timer.Stop()
	}
}

// expire synthesizes the timeout rejection and takes the normal completion
// path.
func (m *Manager) expire(requestID string) {
	entry, ok := m.take(requestID)
	if !ok {
		return
	}
	entry.req.Status = models.ApprovalStatusExpired
	if m.metrics != nil {
		m.metrics.PendingApprovals.Dec()
	}
	m.logger.Info("Approval request expired",
		"request_id", requestID, "proposal_id", entry.req.ProposalID)

	m.resolve(context.Background(), entry.req, &models.ApprovalResponse{
		RequestID:   requestID,
		ProposalID:  entry.req.ProposalID,
		UserID:      entry.req.UserID,
		Decision:    models.DecisionRejected,
		Reason:      TimeoutReason,
		RespondedAt: time.Now().UTC(),
	})
}

// take removes a pending entry atomically; the winner of a response/timeout
// race gets it, the loser gets ok=false.
func (m *Manager) take(requestID string) (*pendingRequest, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.pending[requestID]
	if !ok {
		return nil, false
	}
	delete(m.pending, requestID)
	delete(m.byProposal, entry.req.ProposalID)
	return entry, true
}

func (m *Manager) resolve(ctx context.Context, req *models.ApprovalRequest, resp *models.ApprovalResponse) {
	m.resolverMu.RLock()
	resolver := m.resolver
	m.resolverMu.RUnlock()
	if n := m.getNotifier(); n != nil {
		go n.ApprovalResolved(context.WithoutCancel(ctx), req, resp)
	}
	if resolver == nil {
		m.logger.Error("No approval resolver registered, dropping response",
			"request_id", resp.RequestID)
		return
	}
	resolver(ctx, req, resp)
}

// selectChannel prefers an editor-class session, then web, then auto.
func (m *Manager) selectChannel(userID string) models.ApprovalChannel {
	if m.hub.IsConnected(userID, channels.ClientTypeEditor) ||
		m.hub.IsConnected(userID, channels.ClientTypeCLI) {
		return models.ChannelLiveEditor
	}
	if m.hub.IsConnected(userID, channels.ClientTypeWeb) {
		return models.ChannelLiveWeb
	}
	return models.ChannelAuto
}

func fallbacksFor(preferred models.ApprovalChannel) []models.ApprovalChannel {
	switch preferred {
	case models.ChannelLiveEditor:
		return []models.ApprovalChannel{models.ChannelLiveWeb, models.ChannelAuto}
	case models.ChannelLiveWeb:
		return []models.ApprovalChannel{models.ChannelAuto}
	}
	return nil
}

// deliver pushes the request to the chosen channel and a softer notification
// to the user's other sessions.
func (m *Manager) deliver(req *models.ApprovalRequest) {
	var primary []string
	switch req.PreferredChannel {
	case models.ChannelLiveEditor:
		primary = []string{channels.ClientTypeEditor, channels.ClientTypeCLI}
	case models.ChannelLiveWeb:
		primary = []string{channels.ClientTypeWeb}
	default:
		// No live session: the request waits for a REST response or the
		// deadline.
		return
	}

	primarySet := make(map[string]struct{}, len(primary))
	for _, ct := range primary {
		primarySet[ct] = struct{}{}
		if err := m.hub.SendToUser(req.UserID, ct, EventApprovalRequest, req); err != nil {
			m.logger.Warn("Failed to deliver approval request",
				"request_id", req.RequestID, "client_type", ct, "error", err)
		}
	}
	for _, ct := range []string{channels.ClientTypeEditor, channels.ClientTypeWeb, channels.ClientTypeCLI} {
		if _, isPrimary := primarySet[ct]; isPrimary {
			continue
		}
		if err := m.hub.SendToUser(req.UserID, ct, EventNotification, &models.Notification{
			Title:    "Approval requested",
			Message:  fmt.Sprintf("Proposal %s awaits your review", req.ProposalID),
			Priority: req.Priority,
		}); err != nil {
			m.logger.Warn("Failed to deliver approval notification",
				"request_id", req.RequestID, "client_type", ct, "error", err)
		}
	}
}
