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
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/specforge/specforge/pkg/graph"
	"github.com/specforge/specforge/pkg/models"
)

// Postgres error codes we translate into the repository's error taxonomy.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgSerializationFail   = "40001"
	pgDeadlockDetected    = "40P01"
)

const nodeColumns = "id, kind, name, description, content, spec_source, metadata, status, embedding, created_at, updated_at"
const edgeColumns = "id, source_id, target_id, kind, description, confidence, created_at, updated_at"

// PGGraphStore is the persistent graph.Repository. Transient Postgres errors
// (serialization failures, deadlocks) are retried at this boundary.
type PGGraphStore struct {
	db            *stdsql.DB
	retryAttempts int
	logger        *slog.Logger
}

// NewPGGraphStore wraps a client's connection in a graph repository.
func NewPGGraphStore(client *Client, retryAttempts int, logger *slog.Logger) *PGGraphStore {
	if retryAttempts <= 0 {
		retryAttempts = 3
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PGGraphStore{db: client.DB(), retryAttempts: retryAttempts, logger: logger}
}

// CreateNode stores a new node.
func (s *PGGraphStore) CreateNode(ctx context.Context, node *models.Node) (*models.Node, error) {
	if err := checkNode(node); err != nil {
		return nil, err
	}
	stored := node.Clone()
	now := time.Now().UTC()
	stored.CreatedAt = now
	stored.UpdatedAt = now
	if stored.Status == "" {
		stored.Status = models.NodeStatusActive
	}

	metadata, embedding, err := encodeNodeJSON(stored)
	if err != nil {
		return nil, err
	}
	err = s.withRetry(ctx, "create node", func() error {
		_, execErr := s.db.ExecContext(ctx,
			`INSERT INTO spec_nodes (`+nodeColumns+`)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			stored.ID, string(stored.Kind), stored.Name, stored.Description, stored.Content,
			stored.SpecSource, metadata, string(stored.Status), embedding,
			stored.CreatedAt, stored.UpdatedAt)
		return execErr
	})
	if err != nil {
		if isPgCode(err, pgUniqueViolation) {
			return nil, fmt.Errorf("%w: %s", graph.ErrDuplicateID, stored.ID)
		}
		return nil, fmt.Errorf("create node: %w", err)
	}
	return stored.Clone(), nil
}

// GetNode returns the node by id.
func (s *PGGraphStore) GetNode(ctx context.Context, id string) (*models.Node, error) {
	var node *models.Node
	err := s.withRetry(ctx, "get node", func() error {
		row := s.db.QueryRowContext(ctx,
			`SELECT `+nodeColumns+` FROM spec_nodes WHERE id = $1`, id)
		var scanErr error
		node, scanErr = scanNode(row)
		return scanErr
	})
	if err != nil {
		if errors.Is(err, stdsql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", graph.ErrNodeNotFound, id)
		}
		return nil, fmt.Errorf("get node: %w", err)
	}
	return node, nil
}

// UpdateNode applies a partial update inside a row-locking transaction so
// concurrent updates to the same node serialize.
func (s *PGGraphStore) UpdateNode(ctx context.Context, id string, update *models.NodeUpdate) (*models.Node, error) {
	if update == nil {
		return nil, graph.NewValidationError("update", "required")
	}
	if update.Status != nil && !update.Status.Valid() {
		return nil, graph.NewValidationError("status", "unknown node status: "+string(*update.Status))
	}
	if update.Name != nil && *update.Name == "" {
		return nil, graph.NewValidationError("name", "required")
	}

	var updated *models.Node
	err := s.withRetry(ctx, "update node", func() error {
		return s.inTx(ctx, func(tx *stdsql.Tx) error {
			row := tx.QueryRowContext(ctx,
				`SELECT `+nodeColumns+` FROM spec_nodes WHERE id = $1 FOR UPDATE`, id)
			node, err := scanNode(row)
			if err != nil {
				return err
			}

			applyNodeUpdate(node, update)
			node.UpdatedAt = time.Now().UTC()
			metadata, embedding, err := encodeNodeJSON(node)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				`UPDATE spec_nodes
				 SET name = $2, description = $3, content = $4, spec_source = $5,
				     metadata = $6, status = $7, embedding = $8, updated_at = $9
				 WHERE id = $1`,
				node.ID, node.Name, node.Description, node.Content, node.SpecSource,
				metadata, string(node.Status), embedding, node.UpdatedAt); err != nil {
				return err
			}
			updated = node
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, stdsql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", graph.ErrNodeNotFound, id)
		}
		return nil, fmt.Errorf("update node: %w", err)
	}
	return updated, nil
}

// DeleteNode removes the node; incident edges go with it via FK cascade.
func (s *PGGraphStore) DeleteNode(ctx context.Context, id string) error {
	var affected int64
	err := s.withRetry(ctx, "delete node", func() error {
		res, execErr := s.db.ExecContext(ctx, `DELETE FROM spec_nodes WHERE id = $1`, id)
		if execErr != nil {
			return execErr
		}
		affected, execErr = res.RowsAffected()
		return execErr
	})
	if err != nil {
		return fmt.Errorf("delete node: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", graph.ErrNodeNotFound, id)
	}
	return nil
}

// CreateEdge stores a new edge. Endpoint resolution is enforced by the
// foreign keys.
func (s *PGGraphStore) CreateEdge(ctx context.Context, edge *models.Edge) (*models.Edge, error) {
	if edge == nil {
		return nil, graph.NewValidationError("edge", "required")
	}
	stored := edge.Clone()
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	if err := checkEdge(stored); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	stored.CreatedAt = now
	stored.UpdatedAt = now

	err := s.withRetry(ctx, "create edge", func() error {
		_, execErr := s.db.ExecContext(ctx,
			`INSERT INTO spec_edges (`+edgeColumns+`)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			stored.ID, stored.SourceID, stored.TargetID, string(stored.Kind),
			stored.Description, stored.Confidence, stored.CreatedAt, stored.UpdatedAt)
		return execErr
	})
	if err != nil {
		switch {
		case isPgCode(err, pgUniqueViolation):
			return nil, fmt.Errorf("%w: %s", graph.ErrDuplicateID, stored.ID)
		case isPgCode(err, pgForeignKeyViolation):
			return nil, fmt.Errorf("%w: %s -> %s", graph.ErrDanglingEdge, stored.SourceID, stored.TargetID)
		}
		return nil, fmt.Errorf("create edge: %w", err)
	}
	return stored.Clone(), nil
}

// DeleteEdge removes the edge by id.
func (s *PGGraphStore) DeleteEdge(ctx context.Context, id string) error {
	var affected int64
	err := s.withRetry(ctx, "delete edge", func() error {
		res, execErr := s.db.ExecContext(ctx, `DELETE FROM spec_edges WHERE id = $1`, id)
		if execErr != nil {
			return execErr
		}
		affected, execErr = res.RowsAffected()
		return execErr
	})
	if err != nil {
		return fmt.Errorf("delete edge: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", graph.ErrEdgeNotFound, id)
	}
	return nil
}

// QueryNodes returns nodes matching the filter, ordered by id.
func (s *PGGraphStore) QueryNodes(ctx context.Context, filter *models.NodeFilter) ([]*models.Node, error) {
	query := `SELECT ` + nodeColumns + ` FROM spec_nodes`
	var args []any
	var where []string
	if filter != nil {
		if filter.Kind != "" {
			args = append(args, string(filter.Kind))
			where = append(where, fmt.Sprintf("kind = $%d", len(args)))
		}
		if filter.Status != "" {
			args = append(args, string(filter.Status))
			where = append(where, fmt.Sprintf("status = $%d", len(args)))
		}
		if len(filter.Metadata) > 0 {
			probe, err := json.Marshal(filter.Metadata)
			if err != nil {
				return nil, fmt.Errorf("encode metadata filter: %w", err)
			}
			args = append(args, probe)
			where = append(where, fmt.Sprintf("metadata @> $%d", len(args)))
		}
	}
	for i, clause := range where {
		if i == 0 {
			query += " WHERE " + clause
		} else {
			query += " AND " + clause
		}
	}
	query += " ORDER BY id"

	var nodes []*models.Node
	err := s.withRetry(ctx, "query nodes", func() error {
		rows, queryErr := s.db.QueryContext(ctx, query, args...)
		if queryErr != nil {
			return queryErr
		}
		defer rows.Close()
		nodes = nodes[:0]
		for rows.Next() {
			node, scanErr := scanNode(rows)
			if scanErr != nil {
				return scanErr
			}
			nodes = append(nodes, node)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("query nodes: %w", err)
	}
	return nodes, nil
}

// QueryEdges returns edges matching the filter, ordered by id.
func (s *PGGraphStore) QueryEdges(ctx context.Context, filter *models.EdgeFilter) ([]*models.Edge, error) {
	query := `SELECT ` + edgeColumns + ` FROM spec_edges`
	var args []any
	var where []string
	if filter != nil {
		if filter.Kind != "" {
			args = append(args, string(filter.Kind))
			where = append(where, fmt.Sprintf("kind = $%d", len(args)))
		}
		if filter.SourceID != "" {
			args = append(args, filter.SourceID)
			where = append(where, fmt.Sprintf("source_id = $%d", len(args)))
		}
		if filter.TargetID != "" {
			args = append(args, filter.TargetID)
			where = append(where, fmt.Sprintf("target_id = $%d", len(args)))
		}
	}
	for i, clause := range where {
		if i == 0 {
			query += " WHERE " + clause
		} else {
			query += " AND " + clause
		}
	}
	query += " ORDER BY id"

	var edges []*models.Edge
	err := s.withRetry(ctx, "query edges", func() error {
		rows, queryErr := s.db.QueryContext(ctx, query, args...)
		if queryErr != nil {
			return queryErr
		}
		defer rows.Close()
		edges = edges[:0]
		for rows.Next() {
			edge, scanErr := scanEdge(rows)
			if scanErr != nil {
				return scanErr
			}
			edges = append(edges, edge)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("query edges: %w", err)
	}
	return edges, nil
}

// Snapshot returns a consistent copy of the named nodes and edges. Both reads
// run in one repeatable-read transaction.
func (s *PGGraphStore) Snapshot(ctx context.Context, nodeIDs, edgeIDs []string) (*models.GraphSnapshot, error) {
	snap := &models.GraphSnapshot{TakenAt: time.Now().UTC()}
	err := s.withRetry(ctx, "snapshot", func() error {
		tx, txErr := s.db.BeginTx(ctx, &stdsql.TxOptions{
			Isolation: stdsql.LevelRepeatableRead,
			ReadOnly:  true,
		})
		if txErr != nil {
			return txErr
		}
		defer func() { _ = tx.Rollback() }()

		nodes, nodesErr := snapshotNodes(ctx, tx, nodeIDs)
		if nodesErr != nil {
			return nodesErr
		}
		edges, edgesErr := snapshotEdges(ctx, tx, edgeIDs)
		if edgesErr != nil {
			return edgesErr
		}
		snap.Nodes, snap.Edges = nodes, edges
		return tx.Commit()
	})
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	return snap, nil
}

func snapshotNodes(ctx context.Context, tx *stdsql.Tx, ids []string) ([]*models.Node, error) {
	query := `SELECT ` + nodeColumns + ` FROM spec_nodes`
	var args []any
	if len(ids) > 0 {
		query += ` WHERE id = ANY($1)`
		args = append(args, ids)
	}
	rows, err := tx.QueryContext(ctx, query+" ORDER BY id", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var nodes []*models.Node
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}
	return nodes, rows.Err()
}

func snapshotEdges(ctx context.Context, tx *stdsql.Tx, ids []string) ([]*models.Edge, error) {
	query := `SELECT ` + edgeColumns + ` FROM spec_edges`
	var args []any
	if len(ids) > 0 {
		query += ` WHERE id = ANY($1)`
		args = append(args, ids)
	}
	rows, err := tx.QueryContext(ctx, query+" ORDER BY id", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var edges []*models.Edge
	for rows.Next() {
		edge, err := scanEdge(rows)
		if err != nil {
			return nil, err
		}
		edges = append(edges, edge)
	}
	return edges, rows.Err()
}

// inTx runs fn inside a transaction, rolling back on error.
func (s *PGGraphStore) inTx(ctx context.Context, fn func(tx *stdsql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// withRetry re-runs fn on transient Postgres failures, up to retryAttempts.
func (s *PGGraphStore) withRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= s.retryAttempts; attempt++ {
		err = fn()
		if err == nil || !isTransient(err) || ctx.Err() != nil {
			return err
		}
		s.logger.Warn("Retrying transient database failure",
			"operation", op, "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * 50 * time.Millisecond):
		}
	}
	return err
}

func isTransient(err error) bool {
	return isPgCode(err, pgSerializationFail) || isPgCode(err, pgDeadlockDetected)
}

func isPgCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNode(row rowScanner) (*models.Node, error) {
	var node models.Node
	var kind, status string
	var metadata []byte
	var embedding []byte
	if err := row.Scan(&node.ID, &kind, &node.Name, &node.Description, &node.Content,
		&node.SpecSource, &metadata, &status, &embedding,
		&node.CreatedAt, &node.UpdatedAt); err != nil {
		return nil, err
	}
	node.Kind = models.NodeKind(kind)
	node.Status = models.NodeStatus(status)
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &node.Metadata); err != nil {
			return nil, fmt.Errorf("decode node metadata: %w", err)
		}
	}
	if len(embedding) > 0 {
		if err := json.Unmarshal(embedding, &node.Embedding); err != nil {
			return nil, fmt.Errorf("decode node embedding: %w", err)
		}
	}
	return &node, nil
}

func scanEdge(row rowScanner) (*models.Edge, error) {
	var edge models.Edge
	var kind string
	if err := row.Scan(&edge.ID, &edge.SourceID, &edge.TargetID, &kind,
		&edge.Description, &edge.Confidence, &edge.CreatedAt, &edge.UpdatedAt); err != nil {
		return nil, err
	}
	edge.Kind = models.EdgeKind(kind)
	return &edge, nil
}

func encodeNodeJSON(node *models.Node) (metadata, embedding []byte, err error) {
	meta := node.Metadata
	if meta == nil {
		meta = map[string]string{}
	}
	metadata, err = json.Marshal(meta)
	if err != nil {
		return nil, nil, fmt.Errorf("encode node metadata: %w", err)
	}
	if node.Embedding != nil {
		embedding, err = json.Marshal(node.Embedding)
		if err != nil {
			return nil, nil, fmt.Errorf("encode node embedding: %w", err)
		}
	}
	return metadata, embedding, nil
}

func applyNodeUpdate(node *models.Node, update *models.NodeUpdate) {
	if update.Name != nil {
		node.Name = *update.Name
	}
	if update.Description != nil {
		node.Description = *update.Description
	}
	if update.Content != nil {
		node.Content = *update.Content
	}
	if update.SpecSource != nil {
		node.SpecSource = *update.SpecSource
	}
	if update.Metadata != nil {
		if node.Metadata == nil {
			node.Metadata = make(map[string]string, len(update.Metadata))
		}
		for k, v := range update.Metadata {
			node.Metadata[k] = v
		}
	}
	if update.Status != nil {
		node.Status = *update.Status
	}
	if update.Embedding != nil {
		node.Embedding = update.Embedding
	}
}

func checkNode(node *models.Node) error {
	if node == nil {
		return graph.NewValidationError("node", "required")
	}
	if node.ID == "" {
		return graph.NewValidationError("id", "required")
	}
	if !node.Kind.Valid() {
		return graph.NewValidationError("kind", "unknown node kind: "+string(node.Kind))
	}
	if node.Name == "" {
		return graph.NewValidationError("name", "required")
	}
	if node.Status != "" && !node.Status.Valid() {
		return graph.NewValidationError("status", "unknown node status: "+string(node.Status))
	}
	return nil
}

func checkEdge(edge *models.Edge) error {
	if edge.SourceID == "" {
		return graph.NewValidationError("source_id", "required")
	}
	if edge.TargetID == "" {
		return graph.NewValidationError("target_id", "required")
	}
	if !edge.Kind.Valid() {
		return graph.NewValidationError("kind", "unknown edge kind: "+string(edge.Kind))
	}
	if edge.Confidence < 0 || edge.Confidence > 1 {
		return graph.NewValidationError("confidence", "must be in [0,1]")
	}
	return nil
}
