package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/inkwell-ai/inkwell-engine/pkg/apperrors"
	"github.com/inkwell-ai/inkwell-engine/pkg/database"
	"github.com/inkwell-ai/inkwell-engine/pkg/models"
)

// testOwnerCtx returns an OwnerContextFunc that binds a bare owner scope
// without touching a real database.
func testOwnerCtx() OwnerContextFunc {
	return func(ctx context.Context, ownerID uuid.UUID) (context.Context, func(), error) {
		scope := &database.OwnerScope{OwnerID: ownerID}
		return database.SetOwnerScope(ctx, scope), func() {}, nil
	}
}

// scopedCtx builds a context carrying an owner scope directly.
func scopedCtx(ownerID uuid.UUID) context.Context {
	return database.SetOwnerScope(context.Background(), &database.OwnerScope{OwnerID: ownerID})
}

func cloneEntity(e *models.KnowledgeEntity) *models.KnowledgeEntity {
	c := *e
	c.Aliases = append([]string(nil), e.Aliases...)
	c.Tags = append([]string(nil), e.Tags...)
	if e.Metadata != nil {
		c.Metadata = make(map[string]string, len(e.Metadata))
		for k, v := range e.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

func cloneEdge(e *models.KnowledgeEdge) *models.KnowledgeEdge {
	c := *e
	if e.Metadata.Extra != nil {
		c.Metadata.Extra = make(map[string]string, len(e.Metadata.Extra))
		for k, v := range e.Metadata.Extra {
			c.Metadata.Extra[k] = v
		}
	}
	return &c
}

func cloneEntry(e *models.JournalEntry) *models.JournalEntry {
	c := *e
	c.Mentions = append([]uuid.UUID(nil), e.Mentions...)
	return &c
}

// fakeEntityRepo is an in-memory EntityRepository enforcing the live-name
// uniqueness the real partial index provides.
type fakeEntityRepo struct {
	entities  map[uuid.UUID]*models.KnowledgeEntity
	createErr error
	updateErr error
	listErr   error
}

func newFakeEntityRepo() *fakeEntityRepo {
	return &fakeEntityRepo{entities: make(map[uuid.UUID]*models.KnowledgeEntity)}
}

func (r *fakeEntityRepo) snapshot() map[uuid.UUID]*models.KnowledgeEntity {
	snap := make(map[uuid.UUID]*models.KnowledgeEntity, len(r.entities))
	for id, e := range r.entities {
		snap[id] = cloneEntity(e)
	}
	return snap
}

func (r *fakeEntityRepo) restore(snap map[uuid.UUID]*models.KnowledgeEntity) {
	r.entities = snap
}

func (r *fakeEntityRepo) Create(ctx context.Context, entity *models.KnowledgeEntity) error {
	if r.createErr != nil {
		return r.createErr
	}
	for _, existing := range r.entities {
		if !existing.IsDeleted && strings.EqualFold(existing.Name, entity.Name) {
			return fmt.Errorf("%w: entity %q already exists", apperrors.ErrConflict, entity.Name)
		}
	}
	if entity.ID == uuid.Nil {
		entity.ID = uuid.New()
	}
	now := time.Now()
	entity.CreatedAt = now
	entity.UpdatedAt = now
	r.entities[entity.ID] = cloneEntity(entity)
	return nil
}

func (r *fakeEntityRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.KnowledgeEntity, error) {
	e, ok := r.entities[id]
	if !ok {
		return nil, fmt.Errorf("%w: entity %s", apperrors.ErrNotFound, id)
	}
	return cloneEntity(e), nil
}

func (r *fakeEntityRepo) FindByNameOrAlias(ctx context.Context, name string) (*models.KnowledgeEntity, error) {
	for _, e := range r.entities {
		if !e.IsDeleted && e.MatchesName(name) {
			return cloneEntity(e), nil
		}
	}
	return nil, nil
}

func (r *fakeEntityRepo) Update(ctx context.Context, entity *models.KnowledgeEntity) error {
	if r.updateErr != nil {
		return r.updateErr
	}
	if _, ok := r.entities[entity.ID]; !ok {
		return fmt.Errorf("%w: entity %s", apperrors.ErrNotFound, entity.ID)
	}
	entity.UpdatedAt = time.Now()
	r.entities[entity.ID] = cloneEntity(entity)
	return nil
}

func (r *fakeEntityRepo) SoftDelete(ctx context.Context, id uuid.UUID) error {
	e, ok := r.entities[id]
	if !ok || e.IsDeleted {
		return fmt.Errorf("%w: entity %s", apperrors.ErrNotFound, id)
	}
	now := time.Now()
	e.IsDeleted = true
	e.DeletedAt = &now
	return nil
}

func (r *fakeEntityRepo) Restore(ctx context.Context, id uuid.UUID) error {
	e, ok := r.entities[id]
	if !ok || !e.IsDeleted {
		return fmt.Errorf("%w: deleted entity %s", apperrors.ErrNotFound, id)
	}
	for _, other := range r.entities {
		if other.ID != id && !other.IsDeleted && strings.EqualFold(other.Name, e.Name) {
			return fmt.Errorf("%w: a live entity already uses this name", apperrors.ErrConflict)
		}
	}
	e.IsDeleted = false
	e.DeletedAt = nil
	return nil
}

func (r *fakeEntityRepo) ListActiveByOwner(ctx context.Context) ([]*models.KnowledgeEntity, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	out := make([]*models.KnowledgeEntity, 0, len(r.entities))
	for _, e := range r.entities {
		if !e.IsDeleted {
			out = append(out, cloneEntity(e))
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Name < out[b].Name })
	return out, nil
}

// fakeEdgeRepo is an in-memory EdgeRepository enforcing the current-triple
// uniqueness of the real partial index.
type fakeEdgeRepo struct {
	edges     map[uuid.UUID]*models.KnowledgeEdge
	insertErr error
	listErr   error
}

func newFakeEdgeRepo() *fakeEdgeRepo {
	return &fakeEdgeRepo{edges: make(map[uuid.UUID]*models.KnowledgeEdge)}
}

func (r *fakeEdgeRepo) snapshot() map[uuid.UUID]*models.KnowledgeEdge {
	snap := make(map[uuid.UUID]*models.KnowledgeEdge, len(r.edges))
	for id, e := range r.edges {
		snap[id] = cloneEdge(e)
	}
	return snap
}

func (r *fakeEdgeRepo) restore(snap map[uuid.UUID]*models.KnowledgeEdge) {
	r.edges = snap
}

func (r *fakeEdgeRepo) currentForTriple(fromID, toID uuid.UUID, relation models.Relation, excluding uuid.UUID) *models.KnowledgeEdge {
	for _, e := range r.edges {
		if e.ID != excluding && e.From.ID == fromID && e.To.ID == toID && e.Relation == relation && e.IsCurrent() {
			return e
		}
	}
	return nil
}

func (r *fakeEdgeRepo) Insert(ctx context.Context, edge *models.KnowledgeEdge) error {
	if r.insertErr != nil {
		return r.insertErr
	}
	if r.currentForTriple(edge.From.ID, edge.To.ID, edge.Relation, uuid.Nil) != nil {
		return fmt.Errorf("%w: current edge exists for triple", apperrors.ErrConflict)
	}
	if edge.ID == uuid.Nil {
		edge.ID = uuid.New()
	}
	now := time.Now()
	edge.CreatedAt = now
	edge.UpdatedAt = now
	r.edges[edge.ID] = cloneEdge(edge)
	return nil
}

func (r *fakeEdgeRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.KnowledgeEdge, error) {
	e, ok := r.edges[id]
	if !ok {
		return nil, fmt.Errorf("%w: edge %s", apperrors.ErrNotFound, id)
	}
	return cloneEdge(e), nil
}

func (r *fakeEdgeRepo) GetCurrentByTriple(ctx context.Context, fromID, toID uuid.UUID, relation models.Relation) (*models.KnowledgeEdge, error) {
	if e := r.currentForTriple(fromID, toID, relation, uuid.Nil); e != nil {
		return cloneEdge(e), nil
	}
	return nil, nil
}

func (r *fakeEdgeRepo) GetLatestRefuted(ctx context.Context, fromID, toID uuid.UUID, relation models.Relation) (*models.KnowledgeEdge, error) {
	var latest *models.KnowledgeEdge
	for _, e := range r.edges {
		if e.From.ID != fromID || e.To.ID != toID || e.Relation != relation || e.Status != models.EdgeStatusRefuted {
			continue
		}
		if latest == nil || (e.RefutedAt != nil && latest.RefutedAt != nil && e.RefutedAt.After(*latest.RefutedAt)) {
			latest = e
		}
	}
	if latest == nil {
		return nil, nil
	}
	return cloneEdge(latest), nil
}

func (r *fakeEdgeRepo) Update(ctx context.Context, edge *models.KnowledgeEdge) error {
	if _, ok := r.edges[edge.ID]; !ok {
		return fmt.Errorf("%w: edge %s", apperrors.ErrNotFound, edge.ID)
	}
	if edge.IsCurrent() && r.currentForTriple(edge.From.ID, edge.To.ID, edge.Relation, edge.ID) != nil {
		return fmt.Errorf("%w: current edge exists for triple", apperrors.ErrConflict)
	}
	edge.UpdatedAt = time.Now()
	r.edges[edge.ID] = cloneEdge(edge)
	return nil
}

func (r *fakeEdgeRepo) Delete(ctx context.Context, id uuid.UUID) error {
	if _, ok := r.edges[id]; !ok {
		return fmt.Errorf("%w: edge %s", apperrors.ErrNotFound, id)
	}
	delete(r.edges, id)
	return nil
}

func (r *fakeEdgeRepo) list(filter func(*models.KnowledgeEdge) bool, statuses []string) []*models.KnowledgeEdge {
	statusOK := func(s string) bool {
		if len(statuses) == 0 {
			return true
		}
		for _, want := range statuses {
			if s == want {
				return true
			}
		}
		return false
	}
	out := make([]*models.KnowledgeEdge, 0)
	for _, e := range r.edges {
		if filter(e) && statusOK(e.Status) {
			out = append(out, cloneEdge(e))
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Weight > out[b].Weight })
	return out
}

func (r *fakeEdgeRepo) ListOutbound(ctx context.Context, nodeID uuid.UUID, statuses []string) ([]*models.KnowledgeEdge, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	return r.list(func(e *models.KnowledgeEdge) bool { return e.From.ID == nodeID }, statuses), nil
}

func (r *fakeEdgeRepo) ListInbound(ctx context.Context, nodeID uuid.UUID, statuses []string) ([]*models.KnowledgeEdge, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	return r.list(func(e *models.KnowledgeEdge) bool { return e.To.ID == nodeID }, statuses), nil
}

func (r *fakeEdgeRepo) ListRefutedByOwner(ctx context.Context) ([]*models.KnowledgeEdge, error) {
	return r.list(func(e *models.KnowledgeEdge) bool { return e.Status == models.EdgeStatusRefuted }, nil), nil
}

func (r *fakeEdgeRepo) DeleteByNode(ctx context.Context, nodeID uuid.UUID) (int64, error) {
	var removed int64
	for id, e := range r.edges {
		if e.From.ID == nodeID || e.To.ID == nodeID {
			delete(r.edges, id)
			removed++
		}
	}
	return removed, nil
}

// fakeEntryRepo is an in-memory EntryRepository.
type fakeEntryRepo struct {
	entries   map[uuid.UUID]*models.JournalEntry
	updateErr error
}

func newFakeEntryRepo() *fakeEntryRepo {
	return &fakeEntryRepo{entries: make(map[uuid.UUID]*models.JournalEntry)}
}

func (r *fakeEntryRepo) snapshot() map[uuid.UUID]*models.JournalEntry {
	snap := make(map[uuid.UUID]*models.JournalEntry, len(r.entries))
	for id, e := range r.entries {
		snap[id] = cloneEntry(e)
	}
	return snap
}

func (r *fakeEntryRepo) restore(snap map[uuid.UUID]*models.JournalEntry) {
	r.entries = snap
}

func (r *fakeEntryRepo) Create(ctx context.Context, entry *models.JournalEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.Status == "" {
		entry.Status = models.EntryStatusPending
	}
	if entry.EntryDate.IsZero() {
		entry.EntryDate = time.Now()
	}
	r.entries[entry.ID] = cloneEntry(entry)
	return nil
}

func (r *fakeEntryRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.JournalEntry, error) {
	e, ok := r.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: entry %s", apperrors.ErrNotFound, id)
	}
	return cloneEntry(e), nil
}

func (r *fakeEntryRepo) UpdateMentionsAndStatus(ctx context.Context, entry *models.JournalEntry) error {
	if r.updateErr != nil {
		return r.updateErr
	}
	if _, ok := r.entries[entry.ID]; !ok {
		return fmt.Errorf("%w: entry %s", apperrors.ErrNotFound, entry.ID)
	}
	entry.UpdatedAt = time.Now()
	r.entries[entry.ID] = cloneEntry(entry)
	return nil
}

func (r *fakeEntryRepo) ListByMention(ctx context.Context, entityID uuid.UUID, limit, offset int) ([]*models.JournalEntry, error) {
	matching := make([]*models.JournalEntry, 0)
	for _, e := range r.entries {
		if e.Status != models.EntryStatusProcessed {
			continue
		}
		for _, m := range e.Mentions {
			if m == entityID {
				matching = append(matching, cloneEntry(e))
				break
			}
		}
	}
	sort.Slice(matching, func(a, b int) bool { return matching[a].EntryDate.After(matching[b].EntryDate) })
	if offset >= len(matching) {
		return nil, nil
	}
	matching = matching[offset:]
	if len(matching) > limit {
		matching = matching[:limit]
	}
	return matching, nil
}

// fakeTxRunner snapshots the fakes before fn and restores them when fn fails,
// mirroring the all-or-nothing write phase.
type fakeTxRunner struct {
	entityRepo *fakeEntityRepo
	edgeRepo   *fakeEdgeRepo
	entryRepo  *fakeEntryRepo
	calls      int
}

func (r *fakeTxRunner) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	r.calls++
	var entitySnap map[uuid.UUID]*models.KnowledgeEntity
	var edgeSnap map[uuid.UUID]*models.KnowledgeEdge
	var entrySnap map[uuid.UUID]*models.JournalEntry
	if r.entityRepo != nil {
		entitySnap = r.entityRepo.snapshot()
	}
	if r.edgeRepo != nil {
		edgeSnap = r.edgeRepo.snapshot()
	}
	if r.entryRepo != nil {
		entrySnap = r.entryRepo.snapshot()
	}

	if err := fn(ctx); err != nil {
		if r.entityRepo != nil {
			r.entityRepo.restore(entitySnap)
		}
		if r.edgeRepo != nil {
			r.edgeRepo.restore(edgeSnap)
		}
		if r.entryRepo != nil {
			r.entryRepo.restore(entrySnap)
		}
		return fmt.Errorf("%w: %w", apperrors.ErrTransactionAborted, err)
	}
	return nil
}

// fakeKeyIndex is the in-memory KeyIndex test double.
type fakeKeyIndex struct {
	data    map[uuid.UUID]map[string]uuid.UUID
	failing bool
}

func newFakeKeyIndex() *fakeKeyIndex {
	return &fakeKeyIndex{data: make(map[uuid.UUID]map[string]uuid.UUID)}
}

func (i *fakeKeyIndex) owner(ownerID uuid.UUID) map[string]uuid.UUID {
	if i.data[ownerID] == nil {
		i.data[ownerID] = make(map[string]uuid.UUID)
	}
	return i.data[ownerID]
}

func (i *fakeKeyIndex) Get(ctx context.Context, ownerID uuid.UUID, key string) (uuid.UUID, bool, error) {
	if i.failing {
		return uuid.Nil, false, fmt.Errorf("index unavailable")
	}
	id, ok := i.owner(ownerID)[key]
	return id, ok, nil
}

func (i *fakeKeyIndex) SetMany(ctx context.Context, ownerID uuid.UUID, keys map[string]uuid.UUID) error {
	if i.failing {
		return fmt.Errorf("index unavailable")
	}
	m := i.owner(ownerID)
	for k, id := range keys {
		m[k] = id
	}
	return nil
}

func (i *fakeKeyIndex) DeleteKeys(ctx context.Context, ownerID uuid.UUID, keys []string) error {
	if i.failing {
		return fmt.Errorf("index unavailable")
	}
	m := i.owner(ownerID)
	for _, k := range keys {
		delete(m, k)
	}
	return nil
}

func (i *fakeKeyIndex) ReplaceAll(ctx context.Context, ownerID uuid.UUID, keys map[string]uuid.UUID) error {
	if i.failing {
		return fmt.Errorf("index unavailable")
	}
	fresh := make(map[string]uuid.UUID, len(keys))
	for k, id := range keys {
		fresh[k] = id
	}
	i.data[ownerID] = fresh
	return nil
}

func (i *fakeKeyIndex) Drop(ctx context.Context, ownerID uuid.UUID) error {
	if i.failing {
		return fmt.Errorf("index unavailable")
	}
	delete(i.data, ownerID)
	return nil
}
