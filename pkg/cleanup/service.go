// Package cleanup enforces the proposal retention policy: settled proposals
// are purged once they age out, keeping the store bounded.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/specforge/specforge/pkg/mutation"
)

// Service periodically purges terminal proposals older than the retention
// window. Purges are idempotent and safe to run from multiple replicas.
type Service struct {
	store     mutation.Store
	retention time.Duration
	interval  time.Duration
	logger    *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a cleanup service. retention is how long settled
// proposals are kept; interval is how often the purge runs.
func NewService(store mutation.Store, retention, interval time.Duration, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:     store,
		retention: retention,
		interval:  interval,
		logger:    logger,
	}
}

// Start launches the background purge loop.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	s.logger.Info("Cleanup service started",
		"proposal_retention", s.retention,
		"interval", s.interval)
}

// Stop signals the purge loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.logger.Info("Cleanup service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.purge(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.purge(ctx)
		}
	}
}

func (s *Service) purge(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-s.retention)
	count, err := s.store.PurgeSettled(ctx, cutoff)
	if err != nil {
		s.logger.Error("Retention: proposal purge failed", "error", err)
		return
	}
	if count > 0 {
		s.logger.Info("Retention: purged settled proposals", "count", count)
	}
}
