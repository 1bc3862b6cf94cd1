package slack

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/specforge/specforge/pkg/models"
)

// ServiceConfig holds the parameters needed to construct a Service.
type ServiceConfig struct {
	Token        string
	Channel      string
	DashboardURL string
}

// Service posts approval traffic to a Slack channel. It implements the
// approval manager's Notifier contract.
// Nil-safe: all methods are no-ops when service is nil.
type Service struct {
	client       *Client
	dashboardURL string
	logger       *slog.Logger

	mu      sync.Mutex
	threads map[string]string // proposal_id -> request message ts
}

// NewService creates a new Slack notification service.
// Returns nil if Token or Channel is empty.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Token == "" || cfg.Channel == "" {
		return nil
	}
	return newService(NewClient(cfg.Token, cfg.Channel), cfg.DashboardURL)
}

// NewServiceWithClient creates a Service backed by a pre-built Client.
// Useful for testing with a mock API server.
func NewServiceWithClient(client *Client, dashboardURL string) *Service {
	return newService(client, dashboardURL)
}

func newService(client *Client, dashboardURL string) *Service {
	return &Service{
		client:       client,
		dashboardURL: dashboardURL,
		logger:       slog.Default().With("component", "slack-service"),
		threads:      make(map[string]string),
	}
}

// ApprovalRequested posts the approval request and remembers its timestamp so
// the outcome can be threaded under it.
// Fail-open: errors are logged, never returned.
func (s *Service) ApprovalRequested(ctx context.Context, req *models.ApprovalRequest) {
	if s == nil {
		return
	}

	blocks := BuildRequestMessage(req, s.dashboardURL)
	ts, err := s.client.PostMessage(ctx, blocks, "", 5*time.Second)
	if err != nil {
		s.logger.Error("Failed to send Slack approval request",
			"request_id", req.RequestID,
			"proposal_id", req.ProposalID,
			"error", err)
		return
	}

	s.mu.Lock()
	s.threads[req.ProposalID] = ts
	s.mu.Unlock()
}

// ApprovalResolved posts the decision, threaded under the request message
// when one was delivered.
// Fail-open: errors are logged, never returned.
func (s *Service) ApprovalResolved(ctx context.Context, req *models.ApprovalRequest, resp *models.ApprovalResponse) {
	if s == nil {
		return
	}

	s.mu.Lock()
	threadTS := s.threads[req.ProposalID]
	delete(s.threads, req.ProposalID)
	s.mu.Unlock()

	blocks := BuildOutcomeMessage(req, resp, s.dashboardURL)
	if _, err := s.client.PostMessage(ctx, blocks, threadTS, 10*time.Second); err != nil {
		s.logger.Error("Failed to send Slack approval outcome",
			"request_id", req.RequestID,
			"proposal_id", req.ProposalID,
			"decision", string(resp.Decision),
			"error", err)
	}
}
