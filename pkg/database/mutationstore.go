package database

import (
	"context"
	stdsql "database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/specforge/specforge/pkg/models"
	"github.com/specforge/specforge/pkg/mutation"
)

const proposalColumns = "proposal_id, spec_id, user_id, operation_type, current_version, " +
	"proposed_changes, reasoning, confidence, impact_analysis, status, created_at, updated_at"

// PGMutationStore is the persistent mutation.Store. Status transitions use a
// conditional UPDATE so of N concurrent movers exactly one wins the row.
type PGMutationStore struct {
	db     *stdsql.DB
	logger *slog.Logger
}

// NewPGMutationStore wraps a client's connection in a mutation store.
func NewPGMutationStore(client *Client, logger *slog.Logger) *PGMutationStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PGMutationStore{db: client.DB(), logger: logger}
}

// Create persists a new proposal in the proposed state.
func (s *PGMutationStore) Create(ctx context.Context, p *models.MutationProposal) (*models.MutationProposal, error) {
	stored := p.Clone()
	if stored.ProposalID == "" {
		stored.ProposalID = uuid.NewString()
	}
	stored.Status = models.ProposalStatusProposed
	now := time.Now().UTC()
	stored.CreatedAt = now
	stored.UpdatedAt = now

	changes, impact, err := encodeProposalJSON(stored)
	if err != nil {
		return nil, err
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO mutation_proposals (`+proposalColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		stored.ProposalID, stored.SpecID, stored.UserID, string(stored.OperationType),
		stored.CurrentVersion, changes, stored.Reasoning, stored.Confidence,
		impact, string(stored.Status), stored.CreatedAt, stored.UpdatedAt); err != nil {
		return nil, fmt.Errorf("create proposal: %w", err)
	}
	return stored.Clone(), nil
}

// Get returns the proposal by id.
func (s *PGMutationStore) Get(ctx context.Context, proposalID string) (*models.MutationProposal, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+proposalColumns+` FROM mutation_proposals WHERE proposal_id = $1`, proposalID)
	p, err := scanProposal(row)
	if err != nil {
		if errors.Is(err, stdsql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", mutation.ErrProposalNotFound, proposalID)
		}
		return nil, fmt.Errorf("get proposal: %w", err)
	}
	return p, nil
}

// List returns proposals matching the filter, newest first.
func (s *PGMutationStore) List(ctx context.Context, filter *models.ProposalFilter) ([]*models.MutationProposal, error) {
	query := `SELECT ` + proposalColumns + ` FROM mutation_proposals`
	var args []any
	var where []string
	limit := 0
	if filter != nil {
		if filter.SpecID != "" {
			args = append(args, filter.SpecID)
			where = append(where, fmt.Sprintf("spec_id = $%d", len(args)))
		}
		if filter.UserID != "" {
			args = append(args, filter.UserID)
			where = append(where, fmt.Sprintf("user_id = $%d", len(args)))
		}
		if filter.Status != "" {
			args = append(args, string(filter.Status))
			where = append(where, fmt.Sprintf("status = $%d", len(args)))
		}
		limit = filter.Limit
	}
	for i, clause := range where {
		if i == 0 {
			query += " WHERE " + clause
		} else {
			query += " AND " + clause
		}
	}
	query += " ORDER BY created_at DESC, proposal_id DESC"
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list proposals: %w", err)
	}
	defer rows.Close()

	var proposals []*models.MutationProposal
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, fmt.Errorf("list proposals: %w", err)
		}
		proposals = append(proposals, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list proposals: %w", err)
	}
	return proposals, nil
}

// Transition atomically moves the proposal from `from` to `to`. The
// conditional WHERE clause is the compare-and-swap: a row that already left
// `from` is not matched and the caller gets a ConflictError carrying the
// actual status.
func (s *PGMutationStore) Transition(ctx context.Context, proposalID string, from, to models.ProposalStatus) (*models.MutationProposal, error) {
	if !mutation.CanTransition(from, to) {
		return nil, &mutation.TransitionError{ProposalID: proposalID, From: from, To: to}
	}

	row := s.db.QueryRowContext(ctx,
		`UPDATE mutation_proposals
		 SET status = $3, updated_at = $4
		 WHERE proposal_id = $1 AND status = $2
		 RETURNING `+proposalColumns,
		proposalID, string(from), string(to), time.Now().UTC())
	p, err := scanProposal(row)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, stdsql.ErrNoRows) {
		return nil, fmt.Errorf("transition proposal: %w", err)
	}

	// Lost the race or the id is unknown; read back to say which.
	current, getErr := s.Get(ctx, proposalID)
	if getErr != nil {
		return nil, getErr
	}
	return nil, &mutation.ConflictError{
		ProposalID: proposalID,
		Expected:   from,
		Actual:     current.Status,
		Reason:     "status changed concurrently",
	}
}

// UpdateChanges replaces the proposal's proposed changes. Rejected once the
// proposal starts applying.
func (s *PGMutationStore) UpdateChanges(ctx context.Context, proposalID string, changes *models.ProposedChange) (*models.MutationProposal, error) {
	payload, err := json.Marshal(changes)
	if err != nil {
		return nil, fmt.Errorf("encode proposed changes: %w", err)
	}

	row := s.db.QueryRowContext(ctx,
		`UPDATE mutation_proposals
		 SET proposed_changes = $2, updated_at = $3
		 WHERE proposal_id = $1
		   AND status IN ('proposed', 'validating', 'awaiting_approval')
		 RETURNING `+proposalColumns,
		proposalID, payload, time.Now().UTC())
	p, err := scanProposal(row)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, stdsql.ErrNoRows) {
		return nil, fmt.Errorf("update proposed changes: %w", err)
	}

	current, getErr := s.Get(ctx, proposalID)
	if getErr != nil {
		return nil, getErr
	}
	return nil, &mutation.ConflictError{
		ProposalID: proposalID,
		Actual:     current.Status,
		Reason:     "proposal is no longer editable",
	}
}

// PurgeSettled deletes terminal proposals last updated before cutoff.
func (s *PGMutationStore) PurgeSettled(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM mutation_proposals
		 WHERE status IN ('applied', 'failed', 'rolled_back', 'cancelled')
		   AND updated_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("purge settled proposals: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge settled proposals: %w", err)
	}
	return int(n), nil
}

func scanProposal(row rowScanner) (*models.MutationProposal, error) {
	var p models.MutationProposal
	var op, status string
	var changes, impact []byte
	if err := row.Scan(&p.ProposalID, &p.SpecID, &p.UserID, &op, &p.CurrentVersion,
		&changes, &p.Reasoning, &p.Confidence, &impact, &status,
		&p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.OperationType = models.OperationType(op)
	p.Status = models.ProposalStatus(status)
	if len(changes) > 0 {
		if err := json.Unmarshal(changes, &p.ProposedChanges); err != nil {
			return nil, fmt.Errorf("decode proposed changes: %w", err)
		}
	}
	if len(impact) > 0 {
		if err := json.Unmarshal(impact, &p.ImpactAnalysis); err != nil {
			return nil, fmt.Errorf("decode impact analysis: %w", err)
		}
	}
	return &p, nil
}

func encodeProposalJSON(p *models.MutationProposal) (changes, impact []byte, err error) {
	if p.ProposedChanges != nil {
		changes, err = json.Marshal(p.ProposedChanges)
		if err != nil {
			return nil, nil, fmt.Errorf("encode proposed changes: %w", err)
		}
	}
	if p.ImpactAnalysis != nil {
		impact, err = json.Marshal(p.ImpactAnalysis)
		if err != nil {
			return nil, nil, fmt.Errorf("encode impact analysis: %w", err)
		}
	}
	return changes, impact, nil
}
