package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/inkwell-ai/inkwell-engine/pkg/database"
	"github.com/inkwell-ai/inkwell-engine/pkg/models"
	"github.com/inkwell-ai/inkwell-engine/pkg/repositories"
)

// EntityService is the explicit entity lifecycle: creation outside the
// extraction pipeline, retrieval, soft delete with edge cascade, restore.
type EntityService interface {
	// CreateEntity creates an entity by hand (as opposed to extraction).
	// Returns apperrors.ErrConflict when the name is taken.
	CreateEntity(ctx context.Context, ownerID uuid.UUID, name string, otype models.NodeType, summary string, aliases []string) (*models.KnowledgeEntity, error)

	// GetEntity retrieves an entity by id.
	GetEntity(ctx context.Context, ownerID, entityID uuid.UUID) (*models.KnowledgeEntity, error)

	// ListEntities returns all live entities for the owner.
	ListEntities(ctx context.Context, ownerID uuid.UUID) ([]*models.KnowledgeEntity, error)

	// DeleteEntity soft-deletes the entity, removes every edge touching it,
	// and drops it from the registry.
	DeleteEntity(ctx context.Context, ownerID, entityID uuid.UUID) error

	// RestoreEntity brings a soft-deleted entity back and reindexes it. The
	// entity returns without edges; the repair sweep reconnects it.
	RestoreEntity(ctx context.Context, ownerID, entityID uuid.UUID) (*models.KnowledgeEntity, error)
}

type entityService struct {
	entityRepo   repositories.EntityRepository
	associations AssociationService
	registry     EntityRegistry
	txRunner     database.TxRunner
	getOwnerCtx  OwnerContextFunc
	logger       *zap.Logger
}

// NewEntityService creates a new entity service.
func NewEntityService(
	entityRepo repositories.EntityRepository,
	associations AssociationService,
	registry EntityRegistry,
	txRunner database.TxRunner,
	getOwnerCtx OwnerContextFunc,
	logger *zap.Logger,
) EntityService {
	return &entityService{
		entityRepo:   entityRepo,
		associations: associations,
		registry:     registry,
		txRunner:     txRunner,
		getOwnerCtx:  getOwnerCtx,
		logger:       logger.Named("entities"),
	}
}

var _ EntityService = (*entityService)(nil)

func (s *entityService) CreateEntity(ctx context.Context, ownerID uuid.UUID, name string, otype models.NodeType, summary string, aliases []string) (*models.KnowledgeEntity, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("entity name is required")
	}
	if !models.IsEntityType(otype) {
		return nil, fmt.Errorf("%q is not an entity type", otype)
	}

	ownerCtx, cleanup, err := s.getOwnerCtx(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	entity := &models.KnowledgeEntity{
		OwnerID: ownerID,
		Name:    name,
		Type:    otype,
		Summary: summary,
		Aliases: aliases,
	}
	if err := s.entityRepo.Create(ownerCtx, entity); err != nil {
		return nil, err
	}

	s.registry.Register(ownerCtx, ownerID, entity)

	s.logger.Info("entity created",
		zap.String("entity_id", entity.ID.String()),
		zap.String("type", string(otype)))
	return entity, nil
}

func (s *entityService) GetEntity(ctx context.Context, ownerID, entityID uuid.UUID) (*models.KnowledgeEntity, error) {
	ownerCtx, cleanup, err := s.getOwnerCtx(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	return s.entityRepo.GetByID(ownerCtx, entityID)
}

func (s *entityService) ListEntities(ctx context.Context, ownerID uuid.UUID) ([]*models.KnowledgeEntity, error) {
	ownerCtx, cleanup, err := s.getOwnerCtx(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	return s.entityRepo.ListActiveByOwner(ownerCtx)
}

func (s *entityService) DeleteEntity(ctx context.Context, ownerID, entityID uuid.UUID) error {
	ownerCtx, cleanup, err := s.getOwnerCtx(ctx, ownerID)
	if err != nil {
		return err
	}
	defer cleanup()

	entity, err := s.entityRepo.GetByID(ownerCtx, entityID)
	if err != nil {
		return err
	}

	// Soft delete and edge cascade commit together.
	err = s.txRunner.InTx(ownerCtx, func(txCtx context.Context) error {
		if err := s.entityRepo.SoftDelete(txCtx, entityID); err != nil {
			return err
		}
		removed, err := s.associations.RemoveNodeEdges(txCtx, entityID)
		if err != nil {
			return err
		}
		s.logger.Info("entity deleted",
			zap.String("entity_id", entityID.String()),
			zap.Int64("edges_removed", removed))
		return nil
	})
	if err != nil {
		return err
	}

	s.registry.Unregister(ownerCtx, ownerID, entity)
	return nil
}

func (s *entityService) RestoreEntity(ctx context.Context, ownerID, entityID uuid.UUID) (*models.KnowledgeEntity, error) {
	ownerCtx, cleanup, err := s.getOwnerCtx(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	if err := s.entityRepo.Restore(ownerCtx, entityID); err != nil {
		return nil, err
	}

	entity, err := s.entityRepo.GetByID(ownerCtx, entityID)
	if err != nil {
		return nil, err
	}

	s.registry.Register(ownerCtx, ownerID, entity)
	return entity, nil
}
