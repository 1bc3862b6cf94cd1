package mutation

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/specforge/specforge/pkg/models"
)

// MemoryStore is the in-memory Store used for tests and single-process
// deployments. A single mutex makes every transition atomic.
type MemoryStore struct {
	mu        sync.RWMutex
	proposals map[string]*models.MutationProposal
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{proposals: make(map[string]*models.MutationProposal)}
}

// Create persists a new proposal. A missing id is generated; the status is
// forced to proposed.
func (s *MemoryStore) Create(_ context.Context, p *models.MutationProposal) (*models.MutationProposal, error) {
	if p == nil {
		return nil, fmt.Errorf("proposal is required")
	}
	if !p.OperationType.Valid() {
		return nil, fmt.Errorf("invalid operation type %q", p.OperationType)
	}

	stored := p.Clone()
	if stored.ProposalID == "" {
		stored.ProposalID = uuid.NewString()
	}
	now := time.Now().UTC()
	stored.Status = models.ProposalStatusProposed
	stored.CreatedAt = now
	stored.UpdatedAt = now

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.proposals[stored.ProposalID]; exists {
		return nil, fmt.Errorf("proposal %s already exists", stored.ProposalID)
	}
	s.proposals[stored.ProposalID] = stored
	return stored.Clone(), nil
}

// Get returns the proposal by id.
func (s *MemoryStore) Get(_ context.Context, proposalID string) (*models.MutationProposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.proposals[proposalID]
	if !ok {
		return nil, fmt.Errorf("proposal %s: %w", proposalID, ErrProposalNotFound)
	}
	return p.Clone(), nil
}

// List returns proposals matching the filter, newest first, id ascending on
// equal timestamps.
func (s *MemoryStore) List(_ context.Context, filter *models.ProposalFilter) ([]*models.MutationProposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.MutationProposal
	for _, p := range s.proposals {
		if filter != nil {
			if filter.SpecID != "" && p.SpecID != filter.SpecID {
				continue
			}
			if filter.UserID != "" && p.UserID != filter.UserID {
				continue
			}
			if filter.Status != "" && p.Status != filter.Status {
				continue
			}
		}
		out = append(out, p.Clone())
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ProposalID < out[j].ProposalID
	})
	if filter != nil && filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// Transition atomically moves the proposal between lifecycle states.
func (s *MemoryStore) Transition(_ context.Context, proposalID string, from, to models.ProposalStatus) (*models.MutationProposal, error) {
	if !CanTransition(from, to) {
		return nil, &TransitionError{ProposalID: proposalID, From: from, To: to}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.proposals[proposalID]
	if !ok {
		return nil, fmt.Errorf("proposal %s: %w", proposalID, ErrProposalNotFound)
	}
	if p.Status != from {
		return nil, &ConflictError{ProposalID: proposalID, Expected: from, Actual: p.Status}
	}
	p.Status = to
	p.UpdatedAt = time.Now().UTC()
	return p.Clone(), nil
}

// UpdateChanges replaces the proposed changes wholesale. Rejected once the
// proposal has started applying.
func (s *MemoryStore) UpdateChanges(_ context.Context, proposalID string, changes *models.ProposedChange) (*models.MutationProposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.proposals[proposalID]
	if !ok {
		return nil, fmt.Errorf("proposal %s: %w", proposalID, ErrProposalNotFound)
	}
	switch p.Status {
	case models.ProposalStatusApplying, models.ProposalStatusApplied,
		models.ProposalStatusFailed, models.ProposalStatusRolledBack,
		models.ProposalStatusCancelled:
		return nil, &ConflictError{
			ProposalID: proposalID,
			Actual:     p.Status,
			Reason:     fmt.Sprintf("cannot modify changes in status %q", p.Status),
		}
	}
	p.ProposedChanges = changes
	p.UpdatedAt = time.Now().UTC()
	return p.Clone(), nil
}

// PurgeSettled deletes terminal proposals last updated before cutoff.
func (s *MemoryStore) PurgeSettled(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	purged := 0
	for id, p := range s.proposals {
		if p.Status.Terminal() && p.UpdatedAt.Before(cutoff) {
			delete(s.proposals, id)
			purged++
		}
	}
	return purged, nil
}
