package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/inkwell-ai/inkwell-engine/pkg/apperrors"
	"github.com/inkwell-ai/inkwell-engine/pkg/config"
	"github.com/inkwell-ai/inkwell-engine/pkg/database"
	"github.com/inkwell-ai/inkwell-engine/pkg/llm"
	"github.com/inkwell-ai/inkwell-engine/pkg/logging"
	"github.com/inkwell-ai/inkwell-engine/pkg/models"
	"github.com/inkwell-ai/inkwell-engine/pkg/ontology"
	"github.com/inkwell-ai/inkwell-engine/pkg/prompts"
	"github.com/inkwell-ai/inkwell-engine/pkg/repositories"
)

// Extraction run outcome statuses.
const (
	ExtractionCompleted = "completed"
	ExtractionFailed    = "failed"
)

// ExtractionResult summarizes one extraction run over one journal entry.
// Names lists the upserted entities' canonical names; a completed run that
// wrote nothing carries an empty (never nil) slice.
type ExtractionResult struct {
	Status        string
	EntryID       uuid.UUID
	EntityIDs     []uuid.UUID
	Names         []string
	EntityCount   int
	RelationCount int
}

// ExtractionService turns raw journal entries into graph mutations: entities
// upserted, provenance and ego edges written, candidate relations pushed
// through the conflict-aware association path.
type ExtractionService interface {
	// Extract processes one entry. All provider calls happen before the
	// database transaction opens; the write phase is all-or-nothing.
	Extract(ctx context.Context, entryID, ownerID uuid.UUID) (*ExtractionResult, error)

	// ExtractBatch processes entries concurrently through a bounded worker
	// pool. Failures are isolated per entry; one result per input id.
	ExtractBatch(ctx context.Context, entryIDs []uuid.UUID, ownerID uuid.UUID) []*ExtractionResult
}

type extractionService struct {
	entryRepo    repositories.EntryRepository
	entityRepo   repositories.EntityRepository
	edgeRepo     repositories.EdgeRepository
	associations AssociationService
	registry     EntityRegistry
	llmClient    llm.Client
	txRunner     database.TxRunner
	workerPool   *llm.WorkerPool
	getOwnerCtx  OwnerContextFunc
	cfg          config.ExtractionConfig
	logger       *zap.Logger
}

// NewExtractionService creates a new extraction service.
func NewExtractionService(
	entryRepo repositories.EntryRepository,
	entityRepo repositories.EntityRepository,
	edgeRepo repositories.EdgeRepository,
	associations AssociationService,
	registry EntityRegistry,
	llmClient llm.Client,
	txRunner database.TxRunner,
	workerPool *llm.WorkerPool,
	getOwnerCtx OwnerContextFunc,
	cfg config.ExtractionConfig,
	logger *zap.Logger,
) ExtractionService {
	return &extractionService{
		entryRepo:    entryRepo,
		entityRepo:   entityRepo,
		edgeRepo:     edgeRepo,
		associations: associations,
		registry:     registry,
		llmClient:    llmClient,
		txRunner:     txRunner,
		workerPool:   workerPool,
		getOwnerCtx:  getOwnerCtx,
		cfg:          cfg,
		logger:       logger.Named("extraction"),
	}
}

var _ ExtractionService = (*extractionService)(nil)

// extractedEntity is one entity candidate from the provider.
type extractedEntity struct {
	Name      string   `json:"name"`
	Type      string   `json:"type"`
	Aliases   []string `json:"aliases"`
	Summary   string   `json:"summary"`
	Sentiment *float64 `json:"sentiment"`
	Tags      []string `json:"tags"`
}

// extractedRelation is one relation candidate from the provider.
type extractedRelation struct {
	FromName      string   `json:"from_name"`
	Relation      string   `json:"relation"`
	ToName        string   `json:"to_name"`
	Confidence    *float64 `json:"confidence"`
	ExtractedText string   `json:"extracted_text"`
}

// extractionPayload is the primary pass response shape.
type extractionPayload struct {
	Entities  []extractedEntity   `json:"entities"`
	Relations []extractedRelation `json:"relations"`
}

// criticVerdict is one keep/drop vote from the critic pass. CanonicalName is
// set when the candidate names a known entity under a different spelling.
type criticVerdict struct {
	Index         int    `json:"index"`
	Keep          bool   `json:"keep"`
	CanonicalName string `json:"canonical_name"`
	Reasoning     string `json:"reasoning"`
}

// criticPayload is the critic pass response shape.
type criticPayload struct {
	Entities  []criticVerdict `json:"entities"`
	Relations []criticVerdict `json:"relations"`
}

func (s *extractionService) Extract(ctx context.Context, entryID, ownerID uuid.UUID) (*ExtractionResult, error) {
	ownerCtx, cleanup, err := s.getOwnerCtx(ctx, ownerID)
	if err != nil {
		return failed(entryID), fmt.Errorf("get owner context: %w", err)
	}
	defer cleanup()

	entry, err := s.entryRepo.GetByID(ownerCtx, entryID)
	if err != nil {
		return failed(entryID), fmt.Errorf("fetch entry: %w", err)
	}

	content := strings.TrimSpace(entry.Content)
	if len([]rune(content)) < s.cfg.MinContentLength {
		s.logger.Debug("entry too short to extract from",
			zap.String("entry_id", entryID.String()))
		return completedEmpty(entryID), nil
	}

	known, knownByID, err := s.buildKnownContext(ownerCtx)
	if err != nil {
		return failed(entryID), fmt.Errorf("build known-entity context: %w", err)
	}
	refuted, err := s.buildRefutedContext(ownerCtx, ownerID, knownByID)
	if err != nil {
		return failed(entryID), fmt.Errorf("build refuted context: %w", err)
	}

	payload, err := s.primaryPass(ctx, content, known, refuted)
	if err != nil {
		return failed(entryID), fmt.Errorf("primary extraction: %w", err)
	}

	payload = s.criticPass(ctx, content, payload, known, refuted)

	if len(payload.Entities) == 0 {
		// Nothing grounded in the text. Mark the entry processed so re-runs
		// are no-ops.
		entry.Status = models.EntryStatusProcessed
		if err := s.entryRepo.UpdateMentionsAndStatus(ownerCtx, entry); err != nil {
			return failed(entryID), fmt.Errorf("mark entry processed: %w", err)
		}
		return completedEmpty(entryID), nil
	}

	// All provider calls are done. Open the transaction only now: it must
	// never span an external call with unpredictable latency.
	var upserted []*models.KnowledgeEntity
	var relationCount int
	err = s.txRunner.InTx(ownerCtx, func(txCtx context.Context) error {
		var txErr error
		upserted, relationCount, txErr = s.writePhase(txCtx, entryID, ownerID, payload)
		return txErr
	})
	if err != nil {
		s.logger.Error("extraction write phase aborted",
			zap.String("entry_id", entryID.String()),
			zap.Error(err))
		return failed(entryID), err
	}

	// Post-commit, best-effort: index the touched entities.
	for _, e := range upserted {
		s.registry.Register(ownerCtx, ownerID, e)
	}

	ids := make([]uuid.UUID, len(upserted))
	names := make([]string, len(upserted))
	for i, e := range upserted {
		ids[i] = e.ID
		names[i] = e.Name
	}

	s.logger.Info("extraction completed",
		zap.String("entry_id", entryID.String()),
		zap.Int("entities", len(upserted)),
		zap.Int("relations", relationCount))

	return &ExtractionResult{
		Status:        ExtractionCompleted,
		EntryID:       entryID,
		EntityIDs:     ids,
		Names:         names,
		EntityCount:   len(upserted),
		RelationCount: relationCount,
	}, nil
}

func (s *extractionService) ExtractBatch(ctx context.Context, entryIDs []uuid.UUID, ownerID uuid.UUID) []*ExtractionResult {
	items := make([]llm.WorkItem[*ExtractionResult], len(entryIDs))
	for i, id := range entryIDs {
		entryID := id
		items[i] = llm.WorkItem[*ExtractionResult]{
			ID: entryID.String(),
			Execute: func(ctx context.Context) (*ExtractionResult, error) {
				return s.Extract(ctx, entryID, ownerID)
			},
		}
	}

	workResults := llm.Process(ctx, s.workerPool, items, func(completed, total int) {
		s.logger.Debug("batch extraction progress",
			zap.Int("completed", completed),
			zap.Int("total", total))
	})

	results := make([]*ExtractionResult, 0, len(workResults))
	for _, wr := range workResults {
		if wr.Result != nil {
			results = append(results, wr.Result)
			continue
		}
		entryID, _ := uuid.Parse(wr.ID)
		results = append(results, failed(entryID))
	}
	return results
}

// buildKnownContext loads the owner's live entities for prompt grounding and
// returns an id lookup used to render refuted edges.
func (s *extractionService) buildKnownContext(ctx context.Context) ([]prompts.KnownEntityContext, map[uuid.UUID]*models.KnowledgeEntity, error) {
	entities, err := s.entityRepo.ListActiveByOwner(ctx)
	if err != nil {
		return nil, nil, err
	}

	known := make([]prompts.KnownEntityContext, 0, len(entities))
	byID := make(map[uuid.UUID]*models.KnowledgeEntity, len(entities))
	for _, e := range entities {
		known = append(known, prompts.KnownEntityContext{
			Name:    e.Name,
			Type:    strings.ToLower(string(e.Type)),
			Aliases: e.Aliases,
			Summary: e.Summary,
		})
		byID[e.ID] = e
	}
	return known, byID, nil
}

// buildRefutedContext renders the owner's refuted edges as negative context.
// Edges whose endpoints cannot be named (deleted entities, entry nodes) are
// skipped: the model can only avoid claims it can read.
func (s *extractionService) buildRefutedContext(ctx context.Context, ownerID uuid.UUID, byID map[uuid.UUID]*models.KnowledgeEntity) ([]prompts.RefutedEdgeContext, error) {
	edges, err := s.edgeRepo.ListRefutedByOwner(ctx)
	if err != nil {
		return nil, err
	}

	nameFor := func(ref models.NodeRef) string {
		if ref.ID == ownerID {
			return "The user"
		}
		if e, ok := byID[ref.ID]; ok {
			return e.Name
		}
		return ""
	}

	refuted := make([]prompts.RefutedEdgeContext, 0, len(edges))
	for _, e := range edges {
		from, to := nameFor(e.From), nameFor(e.To)
		if from == "" || to == "" {
			continue
		}
		refuted = append(refuted, prompts.RefutedEdgeContext{
			FromName: from,
			Relation: string(e.Relation),
			ToName:   to,
		})
	}
	return refuted, nil
}

func (s *extractionService) primaryPass(ctx context.Context, content string, known []prompts.KnownEntityContext, refuted []prompts.RefutedEdgeContext) (*extractionPayload, error) {
	prompt := prompts.BuildExtractionPrompt(content, known, refuted)
	resp, err := s.llmClient.GenerateResponse(ctx, prompt, prompts.BuildExtractionSystemMessage(), s.cfg.Temperature)
	if err != nil {
		return nil, err
	}

	payload, err := llm.ParseJSONResponse[extractionPayload](resp.Content)
	if err != nil {
		return nil, fmt.Errorf("parse extraction response: %w", err)
	}

	return s.sanitize(&payload), nil
}

// sanitize drops candidates the write phase could never use: unnamed
// entities, unknown entity types, relations outside the vocabulary.
func (s *extractionService) sanitize(payload *extractionPayload) *extractionPayload {
	out := &extractionPayload{}
	for _, e := range payload.Entities {
		e.Name = strings.TrimSpace(e.Name)
		if e.Name == "" {
			continue
		}
		if _, ok := entityTypeFromString(e.Type); !ok {
			s.logger.Debug("dropping entity with unknown type",
				zap.String("type", e.Type),
				zap.String("name", logging.Snippet(e.Name)))
			continue
		}
		out.Entities = append(out.Entities, e)
	}
	for _, r := range payload.Relations {
		r.Relation = strings.ToUpper(strings.TrimSpace(r.Relation))
		if !ontology.IsRelation(r.Relation) {
			s.logger.Debug("dropping relation outside vocabulary",
				zap.String("relation", r.Relation))
			continue
		}
		out.Relations = append(out.Relations, r)
	}
	return out
}

// criticPass asks a second model call to vote on every candidate. The critic
// sees the same known-entity roster and refuted claims as the primary pass, so
// it can fold shorthand candidates onto established names and drop relations
// that restate refuted claims. A critic failure degrades gracefully: the
// primary output is used as-is.
func (s *extractionService) criticPass(ctx context.Context, content string, payload *extractionPayload, known []prompts.KnownEntityContext, refuted []prompts.RefutedEdgeContext) *extractionPayload {
	if len(payload.Entities) == 0 {
		return payload
	}

	entities := make([]prompts.CandidateEntity, len(payload.Entities))
	for i, e := range payload.Entities {
		entities[i] = prompts.CandidateEntity{Index: i, Name: e.Name, Type: e.Type, Summary: e.Summary}
	}
	relations := make([]prompts.CandidateRelation, len(payload.Relations))
	for i, r := range payload.Relations {
		relations[i] = prompts.CandidateRelation{
			Index:         i,
			FromName:      r.FromName,
			Relation:      r.Relation,
			ToName:        r.ToName,
			ExtractedText: r.ExtractedText,
		}
	}

	prompt := prompts.BuildCriticPrompt(content, known, refuted, entities, relations)
	resp, err := s.llmClient.GenerateResponse(ctx, prompt, prompts.BuildCriticSystemMessage(), s.cfg.Temperature)
	if err != nil {
		s.logger.Warn("critic pass failed, keeping primary output", zap.Error(err))
		return payload
	}

	verdicts, err := llm.ParseJSONResponse[criticPayload](resp.Content)
	if err != nil {
		s.logger.Warn("critic response unparseable, keeping primary output", zap.Error(err))
		return payload
	}

	entityVerdicts := verdictMap(verdicts.Entities)
	relationVerdicts := verdictMap(verdicts.Relations)

	out := &extractionPayload{}
	for i, e := range payload.Entities {
		v, voted := entityVerdicts[i]
		if voted && !v.Keep {
			s.logger.Debug("critic dropped entity", zap.String("name", logging.Snippet(e.Name)))
			continue
		}
		if canonical := strings.TrimSpace(v.CanonicalName); canonical != "" && !strings.EqualFold(canonical, e.Name) {
			// The candidate names a known entity under another spelling. The
			// canonical name drives the upsert; the shorthand survives as an
			// alias so relations referencing it still resolve.
			e.Aliases = append(e.Aliases, e.Name)
			e.Name = canonical
		}
		out.Entities = append(out.Entities, e)
	}
	for i, r := range payload.Relations {
		if v, voted := relationVerdicts[i]; voted && !v.Keep {
			continue
		}
		out.Relations = append(out.Relations, r)
	}
	return out
}

// verdictMap indexes verdicts by candidate number. Candidates without a
// verdict are kept.
func verdictMap(verdicts []criticVerdict) map[int]criticVerdict {
	m := make(map[int]criticVerdict, len(verdicts))
	for _, v := range verdicts {
		m[v.Index] = v
	}
	return m
}

// writePhase runs inside the transaction: entity upserts, provenance and ego
// edges, relation resolution, mention-set union. Any returned error aborts
// the whole transaction.
func (s *extractionService) writePhase(ctx context.Context, entryID, ownerID uuid.UUID, payload *extractionPayload) ([]*models.KnowledgeEntity, int, error) {
	entry, err := s.entryRepo.GetByID(ctx, entryID)
	if err != nil {
		return nil, 0, fmt.Errorf("re-fetch entry: %w", err)
	}

	upserted := make([]*models.KnowledgeEntity, 0, len(payload.Entities))
	nameMap := make(map[string]models.NodeRef)
	for _, candidate := range payload.Entities {
		entity, err := s.upsertEntity(ctx, ownerID, candidate, entry.EntryDate)
		if err != nil {
			return nil, 0, fmt.Errorf("upsert entity %q: %w", candidate.Name, err)
		}
		upserted = append(upserted, entity)
		for _, k := range entity.IndexKeys() {
			nameMap[k] = entity.NodeRef()
		}
		// Candidate aliases index too, even when the canonical record spells
		// them differently.
		for _, a := range append([]string{candidate.Name}, candidate.Aliases...) {
			k := strings.ToLower(strings.TrimSpace(a))
			if _, taken := nameMap[k]; k != "" && !taken {
				nameMap[k] = entity.NodeRef()
			}
		}
	}

	ownerRef := models.NodeRef{ID: ownerID, Type: models.NodeTypeUser}
	entryRef := entry.NodeRef()
	for _, entity := range upserted {
		if _, err := s.associations.CreateAssociation(ctx, AssociationRequest{
			From:          entity.NodeRef(),
			To:            entryRef,
			Relation:      models.RelationMentionedIn,
			SourceEntryID: &entry.ID,
			Metadata:      models.EdgeMetadata{DisplayTitle: entity.Name},
		}); err != nil {
			return nil, 0, fmt.Errorf("mention edge for %q: %w", entity.Name, err)
		}

		// Ego edge: secondary signal, tolerated failure.
		egoRelation := models.RelationInterestedIn
		if entity.Type == models.NodeTypePerson {
			egoRelation = models.RelationKnows
		}
		if _, err := s.associations.CreateAssociation(ctx, AssociationRequest{
			From:          ownerRef,
			To:            entity.NodeRef(),
			Relation:      egoRelation,
			SourceEntryID: &entry.ID,
			Metadata:      models.EdgeMetadata{DisplayTitle: entity.Name},
		}); err != nil {
			s.logger.Warn("ego edge failed",
				zap.String("entity_id", entity.ID.String()),
				zap.Error(err))
		}
	}

	relationCount := 0
	for _, candidate := range payload.Relations {
		from, fromOK := nameMap[strings.ToLower(strings.TrimSpace(candidate.FromName))]
		to, toOK := nameMap[strings.ToLower(strings.TrimSpace(candidate.ToName))]
		if !fromOK || !toOK || from.ID == to.ID {
			s.logger.Debug("skipping unresolvable relation",
				zap.String("relation", candidate.Relation),
				zap.Bool("from_resolved", fromOK),
				zap.Bool("to_resolved", toOK))
			continue
		}

		weight := 1.0
		if candidate.Confidence != nil {
			weight = *candidate.Confidence
		}
		if _, err := s.associations.CreateAssociation(ctx, AssociationRequest{
			From:          from,
			To:            to,
			Relation:      models.Relation(candidate.Relation),
			Weight:        weight,
			SourceEntryID: &entry.ID,
			Metadata: models.EdgeMetadata{
				Confidence:    candidate.Confidence,
				ExtractedText: candidate.ExtractedText,
			},
		}); err != nil {
			// Individual relation failures (ontology rejections included) are
			// logged, not fatal to the batch.
			s.logger.Warn("relation rejected",
				zap.String("relation", candidate.Relation),
				zap.Error(err))
			continue
		}
		relationCount++
	}

	ids := make([]uuid.UUID, len(upserted))
	for i, e := range upserted {
		ids[i] = e.ID
	}
	entry.MergeMentions(ids)
	entry.Status = models.EntryStatusProcessed
	if err := s.entryRepo.UpdateMentionsAndStatus(ctx, entry); err != nil {
		return nil, 0, fmt.Errorf("update entry: %w", err)
	}

	return upserted, relationCount, nil
}

// upsertEntity finds or creates the candidate's entity and folds the mention
// in. Name resolution goes through the registry: an index hit answers in one
// read, and a miss falls back to the store. A create racing another
// extraction lands on the merge path via retry.
func (s *extractionService) upsertEntity(ctx context.Context, ownerID uuid.UUID, candidate extractedEntity, at time.Time) (*models.KnowledgeEntity, error) {
	entity, err := s.registry.Lookup(ctx, ownerID, candidate.Name)
	if err != nil {
		return nil, err
	}

	if entity == nil {
		otype, _ := entityTypeFromString(candidate.Type)
		fresh := &models.KnowledgeEntity{
			OwnerID: ownerID,
			Name:    candidate.Name,
			Type:    otype,
			Summary: candidate.Summary,
		}
		fresh.RecordMention(candidate.Aliases, candidate.Tags, candidate.Sentiment, candidate.Summary, at)

		err = s.entityRepo.Create(ctx, fresh)
		if err == nil {
			return fresh, nil
		}
		if !errors.Is(err, apperrors.ErrConflict) {
			return nil, err
		}
		// Unique-name conflict: another writer created it between the find
		// and the insert. Re-find and merge below.
		entity, err = s.registry.Lookup(ctx, ownerID, candidate.Name)
		if err != nil {
			return nil, err
		}
		if entity == nil {
			return nil, fmt.Errorf("entity %q vanished after create conflict", candidate.Name)
		}
	}

	entity.RecordMention(candidate.Aliases, candidate.Tags, candidate.Sentiment, candidate.Summary, at)
	if entity.Summary == "" {
		entity.Summary = candidate.Summary
	}
	if err := s.entityRepo.Update(ctx, entity); err != nil {
		return nil, err
	}
	return entity, nil
}

// entityTypeFromString maps a provider type label to a NodeType.
func entityTypeFromString(s string) (models.NodeType, bool) {
	for _, t := range models.EntityTypes {
		if strings.EqualFold(string(t), strings.TrimSpace(s)) {
			return t, true
		}
	}
	return "", false
}

func failed(entryID uuid.UUID) *ExtractionResult {
	return &ExtractionResult{Status: ExtractionFailed, EntryID: entryID}
}

func completedEmpty(entryID uuid.UUID) *ExtractionResult {
	return &ExtractionResult{Status: ExtractionCompleted, EntryID: entryID, Names: []string{}}
}
