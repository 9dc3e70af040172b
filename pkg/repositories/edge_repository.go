package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/inkwell-ai/inkwell-engine/pkg/apperrors"
	"github.com/inkwell-ai/inkwell-engine/pkg/database"
	"github.com/inkwell-ai/inkwell-engine/pkg/models"
)

// EdgeRepository provides data access for knowledge edges.
//
// A partial unique index guarantees at most one ACTIVE or PROPOSED edge per
// (owner_id, from_id, to_id, relation); REFUTED and ARCHIVED rows sit outside
// it as history.
type EdgeRepository interface {
	// Insert adds a new edge row. Returns apperrors.ErrConflict when a current
	// edge for the same triple already exists.
	Insert(ctx context.Context, edge *models.KnowledgeEdge) error

	// GetByID retrieves an edge by id. Returns apperrors.ErrNotFound on miss.
	GetByID(ctx context.Context, id uuid.UUID) (*models.KnowledgeEdge, error)

	// GetCurrentByTriple returns the single ACTIVE or PROPOSED edge for the
	// triple, or nil, nil when the slot is empty.
	GetCurrentByTriple(ctx context.Context, fromID, toID uuid.UUID, relation models.Relation) (*models.KnowledgeEdge, error)

	// GetLatestRefuted returns the most recently refuted edge for the triple,
	// or nil, nil when none exists.
	GetLatestRefuted(ctx context.Context, fromID, toID uuid.UUID, relation models.Relation) (*models.KnowledgeEdge, error)

	// Update persists status, weight, refuted_at and metadata changes.
	Update(ctx context.Context, edge *models.KnowledgeEdge) error

	// Delete removes the edge row entirely.
	Delete(ctx context.Context, id uuid.UUID) error

	// ListOutbound returns edges leaving the node, optionally filtered to the
	// given statuses (all statuses when empty).
	ListOutbound(ctx context.Context, nodeID uuid.UUID, statuses []string) ([]*models.KnowledgeEdge, error)

	// ListInbound returns edges arriving at the node, optionally filtered to
	// the given statuses.
	ListInbound(ctx context.Context, nodeID uuid.UUID, statuses []string) ([]*models.KnowledgeEdge, error)

	// ListRefutedByOwner returns all refuted edges for the scoped owner.
	ListRefutedByOwner(ctx context.Context) ([]*models.KnowledgeEdge, error)

	// DeleteByNode removes every edge touching the node, in either direction.
	// Returns the number of rows removed.
	DeleteByNode(ctx context.Context, nodeID uuid.UUID) (int64, error)
}

type edgeRepository struct{}

// NewEdgeRepository creates a new EdgeRepository.
func NewEdgeRepository() EdgeRepository {
	return &edgeRepository{}
}

var _ EdgeRepository = (*edgeRepository)(nil)

const edgeColumns = `id, owner_id, from_id, from_type, to_id, to_type, relation, status,
		weight, source_entry_id, refuted_at, metadata, created_at, updated_at`

func (r *edgeRepository) Insert(ctx context.Context, edge *models.KnowledgeEdge) error {
	scope, ok := database.GetOwnerScope(ctx)
	if !ok {
		return fmt.Errorf("no owner scope in context")
	}

	now := time.Now()
	if edge.ID == uuid.Nil {
		edge.ID = uuid.New()
	}
	edge.CreatedAt = now
	edge.UpdatedAt = now

	metadata, err := json.Marshal(edge.Metadata)
	if err != nil {
		return fmt.Errorf("marshal edge metadata: %w", err)
	}

	query := `
		INSERT INTO engine_knowledge_edges (
			id, owner_id, from_id, from_type, to_id, to_type, relation, status,
			weight, source_entry_id, refuted_at, metadata, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err = scope.Q().Exec(ctx, query,
		edge.ID, edge.OwnerID, edge.From.ID, edge.From.Type, edge.To.ID, edge.To.Type,
		edge.Relation, edge.Status, edge.Weight, edge.SourceEntryID, edge.RefutedAt,
		metadata, edge.CreatedAt, edge.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("%w: current edge exists for triple (%s, %s, %s)",
				apperrors.ErrConflict, edge.From.ID, edge.To.ID, edge.Relation)
		}
		return fmt.Errorf("failed to insert edge: %w", err)
	}

	return nil
}

func (r *edgeRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.KnowledgeEdge, error) {
	scope, ok := database.GetOwnerScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no owner scope in context")
	}

	query := `SELECT ` + edgeColumns + ` FROM engine_knowledge_edges WHERE id = $1`

	edge, err := scanEdge(scope.Q().QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: edge %s", apperrors.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get edge: %w", err)
	}

	return edge, nil
}

func (r *edgeRepository) GetCurrentByTriple(ctx context.Context, fromID, toID uuid.UUID, relation models.Relation) (*models.KnowledgeEdge, error) {
	scope, ok := database.GetOwnerScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no owner scope in context")
	}

	query := `
		SELECT ` + edgeColumns + `
		FROM engine_knowledge_edges
		WHERE from_id = $1 AND to_id = $2 AND relation = $3
		  AND status IN ('ACTIVE', 'PROPOSED')`

	edge, err := scanEdge(scope.Q().QueryRow(ctx, query, fromID, toID, relation))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get current edge: %w", err)
	}

	return edge, nil
}

func (r *edgeRepository) GetLatestRefuted(ctx context.Context, fromID, toID uuid.UUID, relation models.Relation) (*models.KnowledgeEdge, error) {
	scope, ok := database.GetOwnerScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no owner scope in context")
	}

	query := `
		SELECT ` + edgeColumns + `
		FROM engine_knowledge_edges
		WHERE from_id = $1 AND to_id = $2 AND relation = $3 AND status = 'REFUTED'
		ORDER BY refuted_at DESC NULLS LAST
		LIMIT 1`

	edge, err := scanEdge(scope.Q().QueryRow(ctx, query, fromID, toID, relation))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get refuted edge: %w", err)
	}

	return edge, nil
}

func (r *edgeRepository) Update(ctx context.Context, edge *models.KnowledgeEdge) error {
	scope, ok := database.GetOwnerScope(ctx)
	if !ok {
		return fmt.Errorf("no owner scope in context")
	}

	edge.UpdatedAt = time.Now()

	metadata, err := json.Marshal(edge.Metadata)
	if err != nil {
		return fmt.Errorf("marshal edge metadata: %w", err)
	}

	query := `
		UPDATE engine_knowledge_edges SET
			status = $2,
			weight = $3,
			refuted_at = $4,
			metadata = $5,
			updated_at = $6
		WHERE id = $1`

	tag, err := scope.Q().Exec(ctx, query,
		edge.ID, edge.Status, edge.Weight, edge.RefutedAt, metadata, edge.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("%w: current edge exists for triple", apperrors.ErrConflict)
		}
		return fmt.Errorf("failed to update edge: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: edge %s", apperrors.ErrNotFound, edge.ID)
	}

	return nil
}

func (r *edgeRepository) Delete(ctx context.Context, id uuid.UUID) error {
	scope, ok := database.GetOwnerScope(ctx)
	if !ok {
		return fmt.Errorf("no owner scope in context")
	}

	tag, err := scope.Q().Exec(ctx, `DELETE FROM engine_knowledge_edges WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete edge: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: edge %s", apperrors.ErrNotFound, id)
	}

	return nil
}

func (r *edgeRepository) ListOutbound(ctx context.Context, nodeID uuid.UUID, statuses []string) ([]*models.KnowledgeEdge, error) {
	return r.listByNode(ctx, "from_id", nodeID, statuses)
}

func (r *edgeRepository) ListInbound(ctx context.Context, nodeID uuid.UUID, statuses []string) ([]*models.KnowledgeEdge, error) {
	return r.listByNode(ctx, "to_id", nodeID, statuses)
}

func (r *edgeRepository) listByNode(ctx context.Context, column string, nodeID uuid.UUID, statuses []string) ([]*models.KnowledgeEdge, error) {
	scope, ok := database.GetOwnerScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no owner scope in context")
	}

	query := `
		SELECT ` + edgeColumns + `
		FROM engine_knowledge_edges
		WHERE ` + column + ` = $1
		  AND (cardinality($2::text[]) = 0 OR status = ANY($2::text[]))
		ORDER BY weight DESC, updated_at DESC`

	if statuses == nil {
		statuses = []string{}
	}

	rows, err := scope.Q().Query(ctx, query, nodeID, statuses)
	if err != nil {
		return nil, fmt.Errorf("failed to list edges: %w", err)
	}
	defer rows.Close()

	return collectEdges(rows)
}

func (r *edgeRepository) ListRefutedByOwner(ctx context.Context) ([]*models.KnowledgeEdge, error) {
	scope, ok := database.GetOwnerScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no owner scope in context")
	}

	query := `
		SELECT ` + edgeColumns + `
		FROM engine_knowledge_edges
		WHERE status = 'REFUTED'
		ORDER BY refuted_at DESC NULLS LAST`

	rows, err := scope.Q().Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list refuted edges: %w", err)
	}
	defer rows.Close()

	return collectEdges(rows)
}

func (r *edgeRepository) DeleteByNode(ctx context.Context, nodeID uuid.UUID) (int64, error) {
	scope, ok := database.GetOwnerScope(ctx)
	if !ok {
		return 0, fmt.Errorf("no owner scope in context")
	}

	tag, err := scope.Q().Exec(ctx,
		`DELETE FROM engine_knowledge_edges WHERE from_id = $1 OR to_id = $1`, nodeID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete node edges: %w", err)
	}

	return tag.RowsAffected(), nil
}

func collectEdges(rows pgx.Rows) ([]*models.KnowledgeEdge, error) {
	edges := make([]*models.KnowledgeEdge, 0)
	for rows.Next() {
		e, err := scanEdge(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan edge: %w", err)
		}
		edges = append(edges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating edges: %w", err)
	}
	return edges, nil
}

func scanEdge(row pgx.Row) (*models.KnowledgeEdge, error) {
	var e models.KnowledgeEdge
	var metadata []byte

	err := row.Scan(
		&e.ID, &e.OwnerID, &e.From.ID, &e.From.Type, &e.To.ID, &e.To.Type,
		&e.Relation, &e.Status, &e.Weight, &e.SourceEntryID, &e.RefutedAt,
		&metadata, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal edge metadata: %w", err)
		}
	}

	return &e, nil
}
