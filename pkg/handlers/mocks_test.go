package handlers

import (
	"context"

	"github.com/google/uuid"

	"github.com/inkwell-ai/inkwell-engine/pkg/models"
	"github.com/inkwell-ai/inkwell-engine/pkg/services"
)

// mockEntityService implements services.EntityService with function fields.
type mockEntityService struct {
	CreateEntityFunc  func(ctx context.Context, ownerID uuid.UUID, name string, otype models.NodeType, summary string, aliases []string) (*models.KnowledgeEntity, error)
	GetEntityFunc     func(ctx context.Context, ownerID, entityID uuid.UUID) (*models.KnowledgeEntity, error)
	ListEntitiesFunc  func(ctx context.Context, ownerID uuid.UUID) ([]*models.KnowledgeEntity, error)
	DeleteEntityFunc  func(ctx context.Context, ownerID, entityID uuid.UUID) error
	RestoreEntityFunc func(ctx context.Context, ownerID, entityID uuid.UUID) (*models.KnowledgeEntity, error)
}

func (m *mockEntityService) CreateEntity(ctx context.Context, ownerID uuid.UUID, name string, otype models.NodeType, summary string, aliases []string) (*models.KnowledgeEntity, error) {
	return m.CreateEntityFunc(ctx, ownerID, name, otype, summary, aliases)
}

func (m *mockEntityService) GetEntity(ctx context.Context, ownerID, entityID uuid.UUID) (*models.KnowledgeEntity, error) {
	return m.GetEntityFunc(ctx, ownerID, entityID)
}

func (m *mockEntityService) ListEntities(ctx context.Context, ownerID uuid.UUID) ([]*models.KnowledgeEntity, error) {
	return m.ListEntitiesFunc(ctx, ownerID)
}

func (m *mockEntityService) DeleteEntity(ctx context.Context, ownerID, entityID uuid.UUID) error {
	return m.DeleteEntityFunc(ctx, ownerID, entityID)
}

func (m *mockEntityService) RestoreEntity(ctx context.Context, ownerID, entityID uuid.UUID) (*models.KnowledgeEntity, error) {
	return m.RestoreEntityFunc(ctx, ownerID, entityID)
}

var _ services.EntityService = (*mockEntityService)(nil)

// mockGraphQueryService implements services.GraphQueryService.
type mockGraphQueryService struct {
	GetGraphSummaryFunc        func(ctx context.Context, ownerID uuid.UUID) string
	GetEntityInteractionsFunc  func(ctx context.Context, entityID, ownerID uuid.UUID, page int) (*services.InteractionPage, error)
	RepairOrphanedEntitiesFunc func(ctx context.Context, ownerID uuid.UUID) ([]services.RepairedEntity, error)
}

func (m *mockGraphQueryService) GetGraphSummary(ctx context.Context, ownerID uuid.UUID) string {
	return m.GetGraphSummaryFunc(ctx, ownerID)
}

func (m *mockGraphQueryService) GetEntityInteractions(ctx context.Context, entityID, ownerID uuid.UUID, page int) (*services.InteractionPage, error) {
	return m.GetEntityInteractionsFunc(ctx, entityID, ownerID, page)
}

func (m *mockGraphQueryService) RepairOrphanedEntities(ctx context.Context, ownerID uuid.UUID) ([]services.RepairedEntity, error) {
	return m.RepairOrphanedEntitiesFunc(ctx, ownerID)
}

var _ services.GraphQueryService = (*mockGraphQueryService)(nil)

// mockExtractionService implements services.ExtractionService.
type mockExtractionService struct {
	ExtractFunc      func(ctx context.Context, entryID, ownerID uuid.UUID) (*services.ExtractionResult, error)
	ExtractBatchFunc func(ctx context.Context, entryIDs []uuid.UUID, ownerID uuid.UUID) []*services.ExtractionResult
}

func (m *mockExtractionService) Extract(ctx context.Context, entryID, ownerID uuid.UUID) (*services.ExtractionResult, error) {
	return m.ExtractFunc(ctx, entryID, ownerID)
}

func (m *mockExtractionService) ExtractBatch(ctx context.Context, entryIDs []uuid.UUID, ownerID uuid.UUID) []*services.ExtractionResult {
	return m.ExtractBatchFunc(ctx, entryIDs, ownerID)
}

var _ services.ExtractionService = (*mockExtractionService)(nil)

// mockAssociationService implements services.AssociationService.
type mockAssociationService struct {
	CreateAssociationFunc func(ctx context.Context, req services.AssociationRequest) (*models.KnowledgeEdge, error)
	RemoveEdgeFunc        func(ctx context.Context, fromID, toID uuid.UUID, relation models.Relation) error
	RefuteEdgeFunc        func(ctx context.Context, edgeID uuid.UUID) (*models.KnowledgeEdge, error)
	UnrefuteEdgeFunc      func(ctx context.Context, edgeID uuid.UUID) (*models.KnowledgeEdge, error)
	ResolveProposalFunc   func(ctx context.Context, edgeID uuid.UUID, accept bool) (*models.KnowledgeEdge, error)
	RemoveNodeEdgesFunc   func(ctx context.Context, nodeID uuid.UUID) (int64, error)
	GetOutboundsFunc      func(ctx context.Context, fromID uuid.UUID, relation *models.Relation) ([]*models.KnowledgeEdge, error)
	GetInboundsFunc       func(ctx context.Context, toID uuid.UUID, relation *models.Relation) ([]*models.KnowledgeEdge, error)
}

func (m *mockAssociationService) CreateAssociation(ctx context.Context, req services.AssociationRequest) (*models.KnowledgeEdge, error) {
	return m.CreateAssociationFunc(ctx, req)
}

func (m *mockAssociationService) RemoveEdge(ctx context.Context, fromID, toID uuid.UUID, relation models.Relation) error {
	return m.RemoveEdgeFunc(ctx, fromID, toID, relation)
}

func (m *mockAssociationService) RefuteEdge(ctx context.Context, edgeID uuid.UUID) (*models.KnowledgeEdge, error) {
	return m.RefuteEdgeFunc(ctx, edgeID)
}

func (m *mockAssociationService) UnrefuteEdge(ctx context.Context, edgeID uuid.UUID) (*models.KnowledgeEdge, error) {
	return m.UnrefuteEdgeFunc(ctx, edgeID)
}

func (m *mockAssociationService) ResolveProposal(ctx context.Context, edgeID uuid.UUID, accept bool) (*models.KnowledgeEdge, error) {
	return m.ResolveProposalFunc(ctx, edgeID, accept)
}

func (m *mockAssociationService) RemoveNodeEdges(ctx context.Context, nodeID uuid.UUID) (int64, error) {
	return m.RemoveNodeEdgesFunc(ctx, nodeID)
}

func (m *mockAssociationService) GetOutbounds(ctx context.Context, fromID uuid.UUID, relation *models.Relation) ([]*models.KnowledgeEdge, error) {
	return m.GetOutboundsFunc(ctx, fromID, relation)
}

func (m *mockAssociationService) GetInbounds(ctx context.Context, toID uuid.UUID, relation *models.Relation) ([]*models.KnowledgeEdge, error) {
	return m.GetInboundsFunc(ctx, toID, relation)
}

var _ services.AssociationService = (*mockAssociationService)(nil)

// mockEntityRegistry implements services.EntityRegistry.
type mockEntityRegistry struct {
	LookupFunc     func(ctx context.Context, ownerID uuid.UUID, name string) (*models.KnowledgeEntity, error)
	RegisterFunc   func(ctx context.Context, ownerID uuid.UUID, entity *models.KnowledgeEntity)
	UnregisterFunc func(ctx context.Context, ownerID uuid.UUID, entity *models.KnowledgeEntity)
	ResyncFunc     func(ctx context.Context, ownerID uuid.UUID) error
}

func (m *mockEntityRegistry) Lookup(ctx context.Context, ownerID uuid.UUID, name string) (*models.KnowledgeEntity, error) {
	return m.LookupFunc(ctx, ownerID, name)
}

func (m *mockEntityRegistry) Register(ctx context.Context, ownerID uuid.UUID, entity *models.KnowledgeEntity) {
	if m.RegisterFunc != nil {
		m.RegisterFunc(ctx, ownerID, entity)
	}
}

func (m *mockEntityRegistry) Unregister(ctx context.Context, ownerID uuid.UUID, entity *models.KnowledgeEntity) {
	if m.UnregisterFunc != nil {
		m.UnregisterFunc(ctx, ownerID, entity)
	}
}

func (m *mockEntityRegistry) Resync(ctx context.Context, ownerID uuid.UUID) error {
	return m.ResyncFunc(ctx, ownerID)
}

var _ services.EntityRegistry = (*mockEntityRegistry)(nil)

// passthroughOwnerCtx returns the context unchanged. Handler tests do not
// exercise connection scoping.
func passthroughOwnerCtx() services.OwnerContextFunc {
	return func(ctx context.Context, ownerID uuid.UUID) (context.Context, func(), error) {
		return ctx, func() {}, nil
	}
}
