package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/inkwell-ai/inkwell-engine/pkg/apperrors"
	"github.com/inkwell-ai/inkwell-engine/pkg/models"
	"github.com/inkwell-ai/inkwell-engine/pkg/services"
)

func entityMux(entities services.EntityService, graph services.GraphQueryService) *http.ServeMux {
	mux := http.NewServeMux()
	NewEntityHandler(entities, graph, zap.NewNop()).RegisterRoutes(mux)
	return mux
}

func TestEntityList(t *testing.T) {
	ownerID := uuid.New()
	sarah := &models.KnowledgeEntity{
		ID:      uuid.New(),
		OwnerID: ownerID,
		Name:    "Sarah Chen",
		Type:    models.NodeTypePerson,
		Aliases: []string{"Sarah"},
	}
	entities := &mockEntityService{
		ListEntitiesFunc: func(ctx context.Context, gotOwner uuid.UUID) ([]*models.KnowledgeEntity, error) {
			assert.Equal(t, ownerID, gotOwner)
			return []*models.KnowledgeEntity{sarah}, nil
		},
	}

	mux := entityMux(entities, nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/owners/"+ownerID.String()+"/entities", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp EntityListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Total)
	assert.Equal(t, "Sarah Chen", resp.Entities[0].Name)
	assert.Equal(t, "Person", resp.Entities[0].Type)
}

func TestEntityCreate(t *testing.T) {
	ownerID := uuid.New()
	entities := &mockEntityService{
		CreateEntityFunc: func(ctx context.Context, gotOwner uuid.UUID, name string, otype models.NodeType, summary string, aliases []string) (*models.KnowledgeEntity, error) {
			assert.Equal(t, "Acme Corp", name)
			assert.Equal(t, models.NodeTypeOrganization, otype)
			return &models.KnowledgeEntity{ID: uuid.New(), OwnerID: gotOwner, Name: name, Type: otype}, nil
		},
	}

	body := bytes.NewBufferString(`{"name": "Acme Corp", "type": "Organization"}`)
	mux := entityMux(entities, nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/owners/"+ownerID.String()+"/entities", body))

	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestEntityCreate_Conflict(t *testing.T) {
	ownerID := uuid.New()
	entities := &mockEntityService{
		CreateEntityFunc: func(ctx context.Context, gotOwner uuid.UUID, name string, otype models.NodeType, summary string, aliases []string) (*models.KnowledgeEntity, error) {
			return nil, fmt.Errorf("%w: name taken", apperrors.ErrConflict)
		},
	}

	body := bytes.NewBufferString(`{"name": "Acme Corp", "type": "Organization"}`)
	mux := entityMux(entities, nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/owners/"+ownerID.String()+"/entities", body))

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestEntityGet_NotFound(t *testing.T) {
	ownerID := uuid.New()
	entities := &mockEntityService{
		GetEntityFunc: func(ctx context.Context, gotOwner, entityID uuid.UUID) (*models.KnowledgeEntity, error) {
			return nil, fmt.Errorf("%w: entity %s", apperrors.ErrNotFound, entityID)
		},
	}

	mux := entityMux(entities, nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/api/owners/"+ownerID.String()+"/entities/"+uuid.NewString(), nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEntityGet_BadID(t *testing.T) {
	mux := entityMux(&mockEntityService{}, nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/api/owners/"+uuid.NewString()+"/entities/not-a-uuid", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEntityDelete(t *testing.T) {
	ownerID := uuid.New()
	entityID := uuid.New()
	var deleted uuid.UUID
	entities := &mockEntityService{
		DeleteEntityFunc: func(ctx context.Context, gotOwner, gotEntity uuid.UUID) error {
			deleted = gotEntity
			return nil
		},
	}

	mux := entityMux(entities, nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete,
		"/api/owners/"+ownerID.String()+"/entities/"+entityID.String(), nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, entityID, deleted)
}

func TestEntityInteractions(t *testing.T) {
	ownerID := uuid.New()
	entityID := uuid.New()
	graph := &mockGraphQueryService{
		GetEntityInteractionsFunc: func(ctx context.Context, gotEntity, gotOwner uuid.UUID, page int) (*services.InteractionPage, error) {
			assert.Equal(t, entityID, gotEntity)
			assert.Equal(t, 2, page)
			return &services.InteractionPage{
				Entries: []*models.JournalEntry{{
					ID:        uuid.New(),
					Content:   "Coffee with Sarah.",
					EntryDate: time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC),
				}},
				Page:    2,
				HasMore: true,
			}, nil
		},
	}

	mux := entityMux(&mockEntityService{}, graph)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/api/owners/"+ownerID.String()+"/entities/"+entityID.String()+"/interactions?page=2", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp InteractionsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Page)
	assert.True(t, resp.HasMore)
	require.Len(t, resp.Entries, 1)
	assert.Equal(t, "2026-03-14", resp.Entries[0].EntryDate)
}

func TestEntityInteractions_BadPage(t *testing.T) {
	mux := entityMux(&mockEntityService{}, &mockGraphQueryService{})
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/api/owners/"+uuid.NewString()+"/entities/"+uuid.NewString()+"/interactions?page=zero", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
