package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/inkwell-ai/inkwell-engine/pkg/models"
	"github.com/inkwell-ai/inkwell-engine/pkg/repositories"
)

// GraphSummaryUnavailable is returned instead of an error when the summary
// cannot be read. The summary feeds best-effort prompt context, never a
// critical path.
const GraphSummaryUnavailable = "No knowledge graph data available."

// interactionsPageSize is the page length for provenance lookups.
const interactionsPageSize = 20

// InteractionPage is one page of entries mentioning an entity.
type InteractionPage struct {
	Entries []*models.JournalEntry
	Page    int
	HasMore bool
}

// RepairedEntity is one orphan found (and reconnected) by the repair sweep.
type RepairedEntity struct {
	EntityID    uuid.UUID
	Name        string
	Reconnected bool
}

// GraphQueryService is the read/summary side of the graph: outbound buckets
// rendered for prompt injection, provenance pagination, and the orphan sweep.
type GraphQueryService interface {
	// GetGraphSummary renders the owner's graph as a compact text block
	// (Goals / Behavioral Patterns / Top Interests). Read failures yield
	// GraphSummaryUnavailable, never an error.
	GetGraphSummary(ctx context.Context, ownerID uuid.UUID) string

	// GetEntityInteractions pages through the entries that mention the
	// entity, newest first. Page is 1-based.
	GetEntityInteractions(ctx context.Context, entityID, ownerID uuid.UUID, page int) (*InteractionPage, error)

	// RepairOrphanedEntities finds live entities with no current edges and
	// reconnects each through an ego edge.
	RepairOrphanedEntities(ctx context.Context, ownerID uuid.UUID) ([]RepairedEntity, error)
}

type graphQueryService struct {
	entityRepo   repositories.EntityRepository
	entryRepo    repositories.EntryRepository
	edgeRepo     repositories.EdgeRepository
	associations AssociationService
	getOwnerCtx  OwnerContextFunc
	logger       *zap.Logger
}

// NewGraphQueryService creates a new graph query service.
func NewGraphQueryService(
	entityRepo repositories.EntityRepository,
	entryRepo repositories.EntryRepository,
	edgeRepo repositories.EdgeRepository,
	associations AssociationService,
	getOwnerCtx OwnerContextFunc,
	logger *zap.Logger,
) GraphQueryService {
	return &graphQueryService{
		entityRepo:   entityRepo,
		entryRepo:    entryRepo,
		edgeRepo:     edgeRepo,
		associations: associations,
		getOwnerCtx:  getOwnerCtx,
		logger:       logger.Named("graph-query"),
	}
}

var _ GraphQueryService = (*graphQueryService)(nil)

// Summary bucket definitions.
var (
	goalRelations = map[models.Relation]bool{
		models.RelationHasGoal: true,
		models.RelationHasTask: true,
	}
	patternRelations = map[models.Relation]bool{
		models.RelationAvoids:        true,
		models.RelationNeglects:      true,
		models.RelationStrugglesWith: true,
		models.RelationConsistentIn:  true,
	}
)

func (s *graphQueryService) GetGraphSummary(ctx context.Context, ownerID uuid.UUID) string {
	summary, err := s.buildSummary(ctx, ownerID)
	if err != nil {
		s.logger.Warn("graph summary unavailable",
			zap.String("owner_id", ownerID.String()),
			zap.Error(err))
		return GraphSummaryUnavailable
	}
	return summary
}

func (s *graphQueryService) buildSummary(ctx context.Context, ownerID uuid.UUID) (string, error) {
	ownerCtx, cleanup, err := s.getOwnerCtx(ctx, ownerID)
	if err != nil {
		return "", err
	}
	defer cleanup()

	edges, err := s.edgeRepo.ListOutbound(ownerCtx, ownerID, []string{models.EdgeStatusActive})
	if err != nil {
		return "", err
	}
	if len(edges) == 0 {
		return GraphSummaryUnavailable, nil
	}

	var goals, patterns, interests []*models.KnowledgeEdge
	for _, e := range edges {
		switch {
		case goalRelations[e.Relation]:
			goals = append(goals, e)
		case patternRelations[e.Relation]:
			patterns = append(patterns, e)
		case e.Relation == models.RelationInterestedIn || e.Relation == models.RelationKnows:
			interests = append(interests, e)
		}
	}
	if len(goals) == 0 && len(patterns) == 0 && len(interests) == 0 {
		return GraphSummaryUnavailable, nil
	}

	sort.Slice(interests, func(a, b int) bool { return interests[a].Weight > interests[b].Weight })
	if len(interests) > 10 {
		interests = interests[:10]
	}

	var b strings.Builder
	writeBucket := func(title string, bucket []*models.KnowledgeEdge) {
		if len(bucket) == 0 {
			return
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("## " + title + "\n")
		for _, e := range bucket {
			name := s.edgeTargetName(ownerCtx, e)
			if name == "" {
				continue
			}
			b.WriteString(fmt.Sprintf("- %s: %s\n", relationLabel(e.Relation), name))
		}
	}

	writeBucket("Goals", goals)
	writeBucket("Behavioral Patterns", patterns)
	writeBucket("Top Interests", interests)

	if b.Len() == 0 {
		return GraphSummaryUnavailable, nil
	}
	return b.String(), nil
}

// edgeTargetName resolves a display name for the edge's target node.
func (s *graphQueryService) edgeTargetName(ctx context.Context, edge *models.KnowledgeEdge) string {
	if edge.Metadata.DisplayTitle != "" {
		return edge.Metadata.DisplayTitle
	}
	if !models.IsEntityType(edge.To.Type) {
		return ""
	}
	entity, err := s.entityRepo.GetByID(ctx, edge.To.ID)
	if err != nil {
		return ""
	}
	return entity.Name
}

// relationLabel renders WORKS_AT as "works at" for the summary block.
func relationLabel(r models.Relation) string {
	return strings.ReplaceAll(strings.ToLower(string(r)), "_", " ")
}

func (s *graphQueryService) GetEntityInteractions(ctx context.Context, entityID, ownerID uuid.UUID, page int) (*InteractionPage, error) {
	if page < 1 {
		page = 1
	}

	ownerCtx, cleanup, err := s.getOwnerCtx(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	offset := (page - 1) * interactionsPageSize
	// Fetch one extra row to detect a following page.
	entries, err := s.entryRepo.ListByMention(ownerCtx, entityID, interactionsPageSize+1, offset)
	if err != nil {
		return nil, fmt.Errorf("list interactions: %w", err)
	}

	hasMore := len(entries) > interactionsPageSize
	if hasMore {
		entries = entries[:interactionsPageSize]
	}

	return &InteractionPage{Entries: entries, Page: page, HasMore: hasMore}, nil
}

func (s *graphQueryService) RepairOrphanedEntities(ctx context.Context, ownerID uuid.UUID) ([]RepairedEntity, error) {
	ownerCtx, cleanup, err := s.getOwnerCtx(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	entities, err := s.entityRepo.ListActiveByOwner(ownerCtx)
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}

	ownerRef := models.NodeRef{ID: ownerID, Type: models.NodeTypeUser}
	var repaired []RepairedEntity
	for _, entity := range entities {
		outbound, err := s.edgeRepo.ListOutbound(ownerCtx, entity.ID, nil)
		if err != nil {
			return repaired, err
		}
		if len(outbound) > 0 {
			continue
		}
		inbound, err := s.edgeRepo.ListInbound(ownerCtx, entity.ID, nil)
		if err != nil {
			return repaired, err
		}
		if len(inbound) > 0 {
			continue
		}

		report := RepairedEntity{EntityID: entity.ID, Name: entity.Name}
		egoRelation := models.RelationInterestedIn
		if entity.Type == models.NodeTypePerson {
			egoRelation = models.RelationKnows
		}
		if _, err := s.associations.CreateAssociation(ownerCtx, AssociationRequest{
			From:     ownerRef,
			To:       entity.NodeRef(),
			Relation: egoRelation,
			Metadata: models.EdgeMetadata{DisplayTitle: entity.Name},
		}); err != nil {
			s.logger.Warn("failed to reconnect orphaned entity",
				zap.String("entity_id", entity.ID.String()),
				zap.Error(err))
		} else {
			report.Reconnected = true
		}
		repaired = append(repaired, report)
	}

	if len(repaired) > 0 {
		s.logger.Info("orphan sweep finished",
			zap.String("owner_id", ownerID.String()),
			zap.Int("orphans", len(repaired)))
	}
	return repaired, nil
}
