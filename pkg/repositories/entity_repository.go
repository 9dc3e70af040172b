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

// EntityRepository provides data access for knowledge entities.
type EntityRepository interface {
	// Create inserts a new entity. Returns apperrors.ErrConflict when another
	// live entity with the same name already exists for the owner.
	Create(ctx context.Context, entity *models.KnowledgeEntity) error

	// GetByID retrieves an entity by id, including soft-deleted ones.
	// Returns apperrors.ErrNotFound when no row exists.
	GetByID(ctx context.Context, id uuid.UUID) (*models.KnowledgeEntity, error)

	// FindByNameOrAlias looks up a live entity whose name or any alias matches
	// case-insensitively. Returns nil, nil when nothing matches.
	FindByNameOrAlias(ctx context.Context, name string) (*models.KnowledgeEntity, error)

	// Update persists all mutable fields of the entity.
	Update(ctx context.Context, entity *models.KnowledgeEntity) error

	// SoftDelete marks the entity deleted, keeping the row for edge history.
	SoftDelete(ctx context.Context, id uuid.UUID) error

	// Restore brings a soft-deleted entity back. Returns apperrors.ErrConflict
	// when a live entity has since claimed the name.
	Restore(ctx context.Context, id uuid.UUID) error

	// ListActiveByOwner returns all live entities for the scoped owner.
	ListActiveByOwner(ctx context.Context) ([]*models.KnowledgeEntity, error)
}

type entityRepository struct{}

// NewEntityRepository creates a new EntityRepository.
func NewEntityRepository() EntityRepository {
	return &entityRepository{}
}

var _ EntityRepository = (*entityRepository)(nil)

const entityColumns = `id, owner_id, name, aliases, type, narrative, summary, tags,
		interaction_count, last_interaction_at, last_interaction_summary,
		sentiment_score, metadata, is_deleted, deleted_at, created_at, updated_at`

func (r *entityRepository) Create(ctx context.Context, entity *models.KnowledgeEntity) error {
	scope, ok := database.GetOwnerScope(ctx)
	if !ok {
		return fmt.Errorf("no owner scope in context")
	}

	now := time.Now()
	if entity.ID == uuid.Nil {
		entity.ID = uuid.New()
	}
	entity.CreatedAt = now
	entity.UpdatedAt = now

	metadata, err := json.Marshal(entity.Metadata)
	if err != nil {
		return fmt.Errorf("marshal entity metadata: %w", err)
	}

	query := `
		INSERT INTO engine_knowledge_entities (
			id, owner_id, name, aliases, type, narrative, summary, tags,
			interaction_count, last_interaction_at, last_interaction_summary,
			sentiment_score, metadata, is_deleted, deleted_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

	_, err = scope.Q().Exec(ctx, query,
		entity.ID, entity.OwnerID, entity.Name, entity.Aliases, entity.Type,
		entity.Narrative, entity.Summary, entity.Tags,
		entity.InteractionCount, entity.LastInteractionAt, entity.LastInteractionSummary,
		entity.SentimentScore, metadata, entity.IsDeleted, entity.DeletedAt,
		entity.CreatedAt, entity.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("%w: entity %q already exists", apperrors.ErrConflict, entity.Name)
		}
		return fmt.Errorf("failed to create entity: %w", err)
	}

	return nil
}

func (r *entityRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.KnowledgeEntity, error) {
	scope, ok := database.GetOwnerScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no owner scope in context")
	}

	query := `SELECT ` + entityColumns + ` FROM engine_knowledge_entities WHERE id = $1`

	entity, err := scanEntity(scope.Q().QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: entity %s", apperrors.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get entity: %w", err)
	}

	return entity, nil
}

func (r *entityRepository) FindByNameOrAlias(ctx context.Context, name string) (*models.KnowledgeEntity, error) {
	scope, ok := database.GetOwnerScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no owner scope in context")
	}

	query := `
		SELECT ` + entityColumns + `
		FROM engine_knowledge_entities
		WHERE NOT is_deleted
		  AND (lower(name) = lower($1)
		       OR EXISTS (SELECT 1 FROM unnest(aliases) AS a WHERE lower(a) = lower($1)))
		ORDER BY created_at
		LIMIT 1`

	entity, err := scanEntity(scope.Q().QueryRow(ctx, query, name))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find entity by name: %w", err)
	}

	return entity, nil
}

func (r *entityRepository) Update(ctx context.Context, entity *models.KnowledgeEntity) error {
	scope, ok := database.GetOwnerScope(ctx)
	if !ok {
		return fmt.Errorf("no owner scope in context")
	}

	entity.UpdatedAt = time.Now()

	metadata, err := json.Marshal(entity.Metadata)
	if err != nil {
		return fmt.Errorf("marshal entity metadata: %w", err)
	}

	query := `
		UPDATE engine_knowledge_entities SET
			name = $2,
			aliases = $3,
			narrative = $4,
			summary = $5,
			tags = $6,
			interaction_count = $7,
			last_interaction_at = $8,
			last_interaction_summary = $9,
			sentiment_score = $10,
			metadata = $11,
			updated_at = $12
		WHERE id = $1`

	tag, err := scope.Q().Exec(ctx, query,
		entity.ID, entity.Name, entity.Aliases, entity.Narrative, entity.Summary,
		entity.Tags, entity.InteractionCount, entity.LastInteractionAt,
		entity.LastInteractionSummary, entity.SentimentScore, metadata, entity.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update entity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: entity %s", apperrors.ErrNotFound, entity.ID)
	}

	return nil
}

func (r *entityRepository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	scope, ok := database.GetOwnerScope(ctx)
	if !ok {
		return fmt.Errorf("no owner scope in context")
	}

	query := `
		UPDATE engine_knowledge_entities
		SET is_deleted = TRUE, deleted_at = now(), updated_at = now()
		WHERE id = $1 AND NOT is_deleted`

	tag, err := scope.Q().Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to soft-delete entity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: entity %s", apperrors.ErrNotFound, id)
	}

	return nil
}

func (r *entityRepository) Restore(ctx context.Context, id uuid.UUID) error {
	scope, ok := database.GetOwnerScope(ctx)
	if !ok {
		return fmt.Errorf("no owner scope in context")
	}

	query := `
		UPDATE engine_knowledge_entities
		SET is_deleted = FALSE, deleted_at = NULL, updated_at = now()
		WHERE id = $1 AND is_deleted`

	tag, err := scope.Q().Exec(ctx, query, id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("%w: a live entity already uses this name", apperrors.ErrConflict)
		}
		return fmt.Errorf("failed to restore entity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: deleted entity %s", apperrors.ErrNotFound, id)
	}

	return nil
}

func (r *entityRepository) ListActiveByOwner(ctx context.Context) ([]*models.KnowledgeEntity, error) {
	scope, ok := database.GetOwnerScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no owner scope in context")
	}

	query := `
		SELECT ` + entityColumns + `
		FROM engine_knowledge_entities
		WHERE NOT is_deleted
		ORDER BY interaction_count DESC, name`

	rows, err := scope.Q().Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list entities: %w", err)
	}
	defer rows.Close()

	entities := make([]*models.KnowledgeEntity, 0)
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entity: %w", err)
		}
		entities = append(entities, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating entities: %w", err)
	}

	return entities, nil
}

func scanEntity(row pgx.Row) (*models.KnowledgeEntity, error) {
	var e models.KnowledgeEntity
	var metadata []byte

	err := row.Scan(
		&e.ID, &e.OwnerID, &e.Name, &e.Aliases, &e.Type, &e.Narrative, &e.Summary,
		&e.Tags, &e.InteractionCount, &e.LastInteractionAt, &e.LastInteractionSummary,
		&e.SentimentScore, &metadata, &e.IsDeleted, &e.DeletedAt,
		&e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal entity metadata: %w", err)
		}
	}

	return &e, nil
}
