package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/inkwell-ai/inkwell-engine/pkg/apperrors"
	"github.com/inkwell-ai/inkwell-engine/pkg/models"
	"github.com/inkwell-ai/inkwell-engine/pkg/repositories"
)

// KeyIndex is the cache behind the entity registry: a per-owner map of
// lowercased name/alias to entity id. It is never the source of truth.
type KeyIndex interface {
	Get(ctx context.Context, ownerID uuid.UUID, key string) (uuid.UUID, bool, error)
	SetMany(ctx context.Context, ownerID uuid.UUID, keys map[string]uuid.UUID) error
	DeleteKeys(ctx context.Context, ownerID uuid.UUID, keys []string) error
	// ReplaceAll atomically swaps the owner's whole index for the given map.
	ReplaceAll(ctx context.Context, ownerID uuid.UUID, keys map[string]uuid.UUID) error
	Drop(ctx context.Context, ownerID uuid.UUID) error
}

// redisKeyIndex implements KeyIndex on a redis hash per owner.
type redisKeyIndex struct {
	client *goredis.Client
}

// NewRedisKeyIndex creates a redis-backed KeyIndex.
func NewRedisKeyIndex(client *goredis.Client) KeyIndex {
	return &redisKeyIndex{client: client}
}

var _ KeyIndex = (*redisKeyIndex)(nil)

func registryKey(ownerID uuid.UUID) string {
	return "kg:idx:" + ownerID.String()
}

func (i *redisKeyIndex) Get(ctx context.Context, ownerID uuid.UUID, key string) (uuid.UUID, bool, error) {
	val, err := i.client.HGet(ctx, registryKey(ownerID), key).Result()
	if errors.Is(err, goredis.Nil) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("registry get: %w", err)
	}

	id, err := uuid.Parse(val)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("registry holds invalid id %q: %w", val, err)
	}
	return id, true, nil
}

func (i *redisKeyIndex) SetMany(ctx context.Context, ownerID uuid.UUID, keys map[string]uuid.UUID) error {
	if len(keys) == 0 {
		return nil
	}
	fields := make(map[string]string, len(keys))
	for k, id := range keys {
		fields[k] = id.String()
	}
	if err := i.client.HSet(ctx, registryKey(ownerID), fields).Err(); err != nil {
		return fmt.Errorf("registry set: %w", err)
	}
	return nil
}

func (i *redisKeyIndex) DeleteKeys(ctx context.Context, ownerID uuid.UUID, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := i.client.HDel(ctx, registryKey(ownerID), keys...).Err(); err != nil {
		return fmt.Errorf("registry delete: %w", err)
	}
	return nil
}

func (i *redisKeyIndex) ReplaceAll(ctx context.Context, ownerID uuid.UUID, keys map[string]uuid.UUID) error {
	pipe := i.client.TxPipeline()
	pipe.Del(ctx, registryKey(ownerID))
	if len(keys) > 0 {
		fields := make(map[string]string, len(keys))
		for k, id := range keys {
			fields[k] = id.String()
		}
		pipe.HSet(ctx, registryKey(ownerID), fields)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("registry replace: %w", err)
	}
	return nil
}

func (i *redisKeyIndex) Drop(ctx context.Context, ownerID uuid.UUID) error {
	if err := i.client.Del(ctx, registryKey(ownerID)).Err(); err != nil {
		return fmt.Errorf("registry drop: %w", err)
	}
	return nil
}

// EntityRegistry resolves entity names to entities in O(1) via the key index,
// falling back to the store on any miss. Index writes are best-effort: a cache
// failure is logged, never fatal, and Resync rebuilds the index at any time.
type EntityRegistry interface {
	// Lookup resolves a name or alias to the live entity. A registry miss is
	// never "entity absent": the store is always consulted before returning
	// nil, nil.
	Lookup(ctx context.Context, ownerID uuid.UUID, name string) (*models.KnowledgeEntity, error)

	// Register indexes the entity's name and aliases. Best-effort.
	Register(ctx context.Context, ownerID uuid.UUID, entity *models.KnowledgeEntity)

	// Unregister drops the entity's keys from the index. Best-effort.
	Unregister(ctx context.Context, ownerID uuid.UUID, entity *models.KnowledgeEntity)

	// Resync rebuilds the owner's index from the entity store: a full
	// overwrite, idempotent and safe to call at any time.
	Resync(ctx context.Context, ownerID uuid.UUID) error
}

type entityRegistry struct {
	index      KeyIndex
	entityRepo repositories.EntityRepository
	logger     *zap.Logger
}

// NewEntityRegistry creates the registry. A nil index disables caching:
// lookups go straight to the store and writes are no-ops.
func NewEntityRegistry(index KeyIndex, entityRepo repositories.EntityRepository, logger *zap.Logger) EntityRegistry {
	return &entityRegistry{
		index:      index,
		entityRepo: entityRepo,
		logger:     logger.Named("entity-registry"),
	}
}

var _ EntityRegistry = (*entityRegistry)(nil)

func (r *entityRegistry) Lookup(ctx context.Context, ownerID uuid.UUID, name string) (*models.KnowledgeEntity, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return nil, nil
	}

	if r.index != nil {
		id, found, err := r.index.Get(ctx, ownerID, key)
		if err != nil {
			r.logger.Warn("registry lookup failed, falling back to store", zap.Error(err))
		} else if found {
			entity, err := r.entityRepo.GetByID(ctx, id)
			if err == nil && !entity.IsDeleted {
				return entity, nil
			}
			if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
				return nil, err
			}
			// Stale index entry pointing at a deleted or missing entity.
			if delErr := r.index.DeleteKeys(ctx, ownerID, []string{key}); delErr != nil {
				r.logger.Warn("failed to drop stale registry key", zap.Error(delErr))
			}
		}
	}

	entity, err := r.entityRepo.FindByNameOrAlias(ctx, name)
	if err != nil {
		return nil, err
	}
	if entity == nil {
		return nil, nil
	}

	r.Register(ctx, ownerID, entity)
	return entity, nil
}

func (r *entityRegistry) Register(ctx context.Context, ownerID uuid.UUID, entity *models.KnowledgeEntity) {
	if r.index == nil || entity == nil {
		return
	}
	keys := make(map[string]uuid.UUID)
	for _, k := range entity.IndexKeys() {
		keys[k] = entity.ID
	}
	if err := r.index.SetMany(ctx, ownerID, keys); err != nil {
		r.logger.Warn("registry register failed",
			zap.String("entity_id", entity.ID.String()),
			zap.Error(err))
	}
}

func (r *entityRegistry) Unregister(ctx context.Context, ownerID uuid.UUID, entity *models.KnowledgeEntity) {
	if r.index == nil || entity == nil {
		return
	}
	if err := r.index.DeleteKeys(ctx, ownerID, entity.IndexKeys()); err != nil {
		r.logger.Warn("registry unregister failed",
			zap.String("entity_id", entity.ID.String()),
			zap.Error(err))
	}
}

func (r *entityRegistry) Resync(ctx context.Context, ownerID uuid.UUID) error {
	if r.index == nil {
		return nil
	}

	entities, err := r.entityRepo.ListActiveByOwner(ctx)
	if err != nil {
		return fmt.Errorf("resync list entities: %w", err)
	}

	keys := make(map[string]uuid.UUID)
	for _, e := range entities {
		for _, k := range e.IndexKeys() {
			if _, taken := keys[k]; !taken {
				keys[k] = e.ID
			}
		}
	}

	if err := r.index.ReplaceAll(ctx, ownerID, keys); err != nil {
		return fmt.Errorf("resync replace index: %w", err)
	}

	r.logger.Info("entity registry resynced",
		zap.String("owner_id", ownerID.String()),
		zap.Int("entities", len(entities)),
		zap.Int("keys", len(keys)))
	return nil
}
