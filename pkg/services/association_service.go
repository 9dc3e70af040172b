package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/inkwell-ai/inkwell-engine/pkg/apperrors"
	"github.com/inkwell-ai/inkwell-engine/pkg/database"
	"github.com/inkwell-ai/inkwell-engine/pkg/models"
	"github.com/inkwell-ai/inkwell-engine/pkg/ontology"
	"github.com/inkwell-ai/inkwell-engine/pkg/repositories"
)

// AssociationRequest is one claim against the graph: a typed edge between two
// node references, with optional provenance and metadata.
type AssociationRequest struct {
	From          models.NodeRef
	To            models.NodeRef
	Relation      models.Relation
	Weight        float64 // defaults to 1.0 when zero
	SourceEntryID *uuid.UUID
	Metadata      models.EdgeMetadata
}

// AssociationService is the conflict-aware write path for edges. All methods
// require an owner scope in the context (see OwnerContextFunc); inside an
// extraction write phase the scope carries the open transaction.
type AssociationService interface {
	// CreateAssociation applies the decision table for one claim:
	// no edge → ACTIVE insert; ACTIVE → in-place merge; PROPOSED → merge into
	// the pending proposal; REFUTED history → a separate PROPOSED edge, never
	// overwriting the refutation. Returns the resulting edge with its status.
	CreateAssociation(ctx context.Context, req AssociationRequest) (*models.KnowledgeEdge, error)

	// RemoveEdge deletes the current edge for the triple.
	RemoveEdge(ctx context.Context, fromID, toID uuid.UUID, relation models.Relation) error

	// RefuteEdge marks an edge REFUTED and stamps refutedAt. This is the
	// user-correction path: the record stays queryable as negative context.
	RefuteEdge(ctx context.Context, edgeID uuid.UUID) (*models.KnowledgeEdge, error)

	// UnrefuteEdge reinstates a refuted edge as ACTIVE. Fails with
	// apperrors.ErrConflict when the edge is not REFUTED or a current edge
	// for the triple already exists.
	UnrefuteEdge(ctx context.Context, edgeID uuid.UUID) (*models.KnowledgeEdge, error)

	// ResolveProposal settles a PROPOSED edge: accept → ACTIVE,
	// reject → REFUTED. Any other starting status is ErrProposalNotPending.
	ResolveProposal(ctx context.Context, edgeID uuid.UUID, accept bool) (*models.KnowledgeEdge, error)

	// RemoveNodeEdges deletes every edge touching the node, both directions.
	RemoveNodeEdges(ctx context.Context, nodeID uuid.UUID) (int64, error)

	// GetOutbounds returns the current (ACTIVE or PROPOSED) edges leaving the
	// node, optionally filtered to one relation.
	GetOutbounds(ctx context.Context, fromID uuid.UUID, relation *models.Relation) ([]*models.KnowledgeEdge, error)

	// GetInbounds returns the current edges arriving at the node.
	GetInbounds(ctx context.Context, toID uuid.UUID, relation *models.Relation) ([]*models.KnowledgeEdge, error)
}

type associationService struct {
	edgeRepo repositories.EdgeRepository
	logger   *zap.Logger
}

// NewAssociationService creates a new association service.
func NewAssociationService(edgeRepo repositories.EdgeRepository, logger *zap.Logger) AssociationService {
	return &associationService{
		edgeRepo: edgeRepo,
		logger:   logger.Named("associations"),
	}
}

var _ AssociationService = (*associationService)(nil)

func (s *associationService) CreateAssociation(ctx context.Context, req AssociationRequest) (*models.KnowledgeEdge, error) {
	if req.From.ID == req.To.ID {
		return nil, fmt.Errorf("%w: %s -[%s]-> itself", apperrors.ErrSelfReference, req.From.ID, req.Relation)
	}
	if err := ontology.Validate(req.From.Type, req.Relation, req.To.Type); err != nil {
		return nil, err
	}
	if req.Weight == 0 {
		req.Weight = 1.0
	}

	scope, ok := database.GetOwnerScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no owner scope in context")
	}

	// Two attempts: a concurrent insert of the same triple surfaces as a
	// unique violation, and the retry converges on the merge path.
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		edge, err := s.applyClaim(ctx, scope.OwnerID, req)
		if err == nil {
			return edge, nil
		}
		if !errors.Is(err, apperrors.ErrConflict) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func (s *associationService) applyClaim(ctx context.Context, ownerID uuid.UUID, req AssociationRequest) (*models.KnowledgeEdge, error) {
	current, err := s.edgeRepo.GetCurrentByTriple(ctx, req.From.ID, req.To.ID, req.Relation)
	if err != nil {
		return nil, err
	}

	if current != nil {
		// ACTIVE: idempotent re-assertion. PROPOSED: merge into the pending
		// proposal. Either way the claim folds into the existing record.
		current.Weight = req.Weight
		current.Metadata.Merge(req.Metadata)
		if req.SourceEntryID != nil {
			current.SourceEntryID = req.SourceEntryID
		}
		if err := s.edgeRepo.Update(ctx, current); err != nil {
			return nil, err
		}
		s.logger.Debug("merged claim into existing edge",
			zap.String("edge_id", current.ID.String()),
			zap.String("relation", string(req.Relation)),
			zap.String("status", current.Status))
		return current, nil
	}

	status := models.EdgeStatusActive
	refuted, err := s.edgeRepo.GetLatestRefuted(ctx, req.From.ID, req.To.ID, req.Relation)
	if err != nil {
		return nil, err
	}
	if refuted != nil {
		// The user rejected this claim before. The new assertion becomes a
		// pending proposal beside the refutation instead of undoing it.
		status = models.EdgeStatusProposed
		s.logger.Info("claim conflicts with refuted edge, proposing",
			zap.String("refuted_edge_id", refuted.ID.String()),
			zap.String("relation", string(req.Relation)))
	}

	edge := &models.KnowledgeEdge{
		OwnerID:       ownerID,
		From:          req.From,
		To:            req.To,
		Relation:      req.Relation,
		Status:        status,
		Weight:        req.Weight,
		SourceEntryID: req.SourceEntryID,
		Metadata:      req.Metadata,
	}
	if err := s.edgeRepo.Insert(ctx, edge); err != nil {
		return nil, err
	}
	return edge, nil
}

func (s *associationService) RemoveEdge(ctx context.Context, fromID, toID uuid.UUID, relation models.Relation) error {
	current, err := s.edgeRepo.GetCurrentByTriple(ctx, fromID, toID, relation)
	if err != nil {
		return err
	}
	if current == nil {
		return fmt.Errorf("%w: no current edge for (%s, %s, %s)", apperrors.ErrNotFound, fromID, toID, relation)
	}
	return s.edgeRepo.Delete(ctx, current.ID)
}

func (s *associationService) RefuteEdge(ctx context.Context, edgeID uuid.UUID) (*models.KnowledgeEdge, error) {
	edge, err := s.edgeRepo.GetByID(ctx, edgeID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	edge.Status = models.EdgeStatusRefuted
	edge.RefutedAt = &now
	if err := s.edgeRepo.Update(ctx, edge); err != nil {
		return nil, err
	}

	s.logger.Info("edge refuted",
		zap.String("edge_id", edge.ID.String()),
		zap.String("relation", string(edge.Relation)))
	return edge, nil
}

func (s *associationService) UnrefuteEdge(ctx context.Context, edgeID uuid.UUID) (*models.KnowledgeEdge, error) {
	edge, err := s.edgeRepo.GetByID(ctx, edgeID)
	if err != nil {
		return nil, err
	}
	if edge.Status != models.EdgeStatusRefuted {
		return nil, fmt.Errorf("%w: edge %s is %s, not REFUTED", apperrors.ErrConflict, edgeID, edge.Status)
	}

	edge.Status = models.EdgeStatusActive
	edge.RefutedAt = nil
	if err := s.edgeRepo.Update(ctx, edge); err != nil {
		return nil, err
	}
	return edge, nil
}

func (s *associationService) ResolveProposal(ctx context.Context, edgeID uuid.UUID, accept bool) (*models.KnowledgeEdge, error) {
	edge, err := s.edgeRepo.GetByID(ctx, edgeID)
	if err != nil {
		return nil, err
	}
	if edge.Status != models.EdgeStatusProposed {
		return nil, fmt.Errorf("%w: edge %s is %s", apperrors.ErrProposalNotPending, edgeID, edge.Status)
	}

	if accept {
		edge.Status = models.EdgeStatusActive
	} else {
		now := time.Now()
		edge.Status = models.EdgeStatusRefuted
		edge.RefutedAt = &now
	}
	if err := s.edgeRepo.Update(ctx, edge); err != nil {
		return nil, err
	}

	s.logger.Info("proposal resolved",
		zap.String("edge_id", edge.ID.String()),
		zap.Bool("accepted", accept))
	return edge, nil
}

func (s *associationService) RemoveNodeEdges(ctx context.Context, nodeID uuid.UUID) (int64, error) {
	removed, err := s.edgeRepo.DeleteByNode(ctx, nodeID)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		s.logger.Info("removed node edges",
			zap.String("node_id", nodeID.String()),
			zap.Int64("count", removed))
	}
	return removed, nil
}

func (s *associationService) GetOutbounds(ctx context.Context, fromID uuid.UUID, relation *models.Relation) ([]*models.KnowledgeEdge, error) {
	edges, err := s.edgeRepo.ListOutbound(ctx, fromID, []string{models.EdgeStatusActive, models.EdgeStatusProposed})
	if err != nil {
		return nil, err
	}
	return filterByRelation(edges, relation), nil
}

func (s *associationService) GetInbounds(ctx context.Context, toID uuid.UUID, relation *models.Relation) ([]*models.KnowledgeEdge, error) {
	edges, err := s.edgeRepo.ListInbound(ctx, toID, []string{models.EdgeStatusActive, models.EdgeStatusProposed})
	if err != nil {
		return nil, err
	}
	return filterByRelation(edges, relation), nil
}

func filterByRelation(edges []*models.KnowledgeEdge, relation *models.Relation) []*models.KnowledgeEdge {
	if relation == nil {
		return edges
	}
	filtered := make([]*models.KnowledgeEdge, 0, len(edges))
	for _, e := range edges {
		if e.Relation == *relation {
			filtered = append(filtered, e)
		}
	}
	return filtered
}
