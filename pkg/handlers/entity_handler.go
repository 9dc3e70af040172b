package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/inkwell-ai/inkwell-engine/pkg/models"
	"github.com/inkwell-ai/inkwell-engine/pkg/services"
)

// ============================================================================
// Request/Response Types
// ============================================================================

// EntityListResponse for GET /entities
type EntityListResponse struct {
	Entities []EntityDetailResponse `json:"entities"`
	Total    int                    `json:"total"`
}

// EntityDetailResponse represents an entity with full details.
type EntityDetailResponse struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	Type             string   `json:"type"`
	Aliases          []string `json:"aliases,omitempty"`
	Summary          string   `json:"summary,omitempty"`
	Tags             []string `json:"tags,omitempty"`
	InteractionCount int      `json:"interaction_count"`
	SentimentScore   float64  `json:"sentiment_score"`
	IsDeleted        bool     `json:"is_deleted"`
}

// CreateEntityRequest for POST /entities
type CreateEntityRequest struct {
	Name    string   `json:"name"`
	Type    string   `json:"type"`
	Summary string   `json:"summary,omitempty"`
	Aliases []string `json:"aliases,omitempty"`
}

// InteractionsResponse for GET /entities/{eid}/interactions
type InteractionsResponse struct {
	Entries []InteractionEntry `json:"entries"`
	Page    int                `json:"page"`
	HasMore bool               `json:"has_more"`
}

// InteractionEntry is one journal entry in an interactions page.
type InteractionEntry struct {
	ID        string `json:"id"`
	Content   string `json:"content"`
	EntryDate string `json:"entry_date"`
}

// ============================================================================
// Handler
// ============================================================================

// EntityHandler handles entity lifecycle HTTP requests.
type EntityHandler struct {
	entityService services.EntityService
	graphQuery    services.GraphQueryService
	logger        *zap.Logger
}

// NewEntityHandler creates a new entity handler.
func NewEntityHandler(
	entityService services.EntityService,
	graphQuery services.GraphQueryService,
	logger *zap.Logger,
) *EntityHandler {
	return &EntityHandler{
		entityService: entityService,
		graphQuery:    graphQuery,
		logger:        logger,
	}
}

// RegisterRoutes registers the entity handler's routes on the given mux.
func (h *EntityHandler) RegisterRoutes(mux *http.ServeMux) {
	base := "/api/owners/{oid}/entities"

	mux.HandleFunc("GET "+base, h.List)
	mux.HandleFunc("POST "+base, h.Create)
	mux.HandleFunc("GET "+base+"/{eid}", h.Get)
	mux.HandleFunc("DELETE "+base+"/{eid}", h.Delete)
	mux.HandleFunc("POST "+base+"/{eid}/restore", h.Restore)
	mux.HandleFunc("GET "+base+"/{eid}/interactions", h.Interactions)
}

// List handles GET /api/owners/{oid}/entities
func (h *EntityHandler) List(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := parsePathID(w, r, "oid")
	if !ok {
		return
	}

	entities, err := h.entityService.ListEntities(r.Context(), ownerID)
	if err != nil {
		h.writeError(w, "list entities", err)
		return
	}

	responses := make([]EntityDetailResponse, 0, len(entities))
	for _, e := range entities {
		responses = append(responses, toEntityDetailResponse(e))
	}
	h.writeJSON(w, http.StatusOK, EntityListResponse{Entities: responses, Total: len(responses)})
}

// Create handles POST /api/owners/{oid}/entities
func (h *EntityHandler) Create(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := parsePathID(w, r, "oid")
	if !ok {
		return
	}

	var req CreateEntityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	entity, err := h.entityService.CreateEntity(r.Context(), ownerID, req.Name, models.NodeType(req.Type), req.Summary, req.Aliases)
	if err != nil {
		h.writeError(w, "create entity", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, toEntityDetailResponse(entity))
}

// Get handles GET /api/owners/{oid}/entities/{eid}
func (h *EntityHandler) Get(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := parsePathID(w, r, "oid")
	if !ok {
		return
	}
	entityID, ok := parsePathID(w, r, "eid")
	if !ok {
		return
	}

	entity, err := h.entityService.GetEntity(r.Context(), ownerID, entityID)
	if err != nil {
		h.writeError(w, "get entity", err)
		return
	}
	h.writeJSON(w, http.StatusOK, toEntityDetailResponse(entity))
}

// Delete handles DELETE /api/owners/{oid}/entities/{eid}
func (h *EntityHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := parsePathID(w, r, "oid")
	if !ok {
		return
	}
	entityID, ok := parsePathID(w, r, "eid")
	if !ok {
		return
	}

	if err := h.entityService.DeleteEntity(r.Context(), ownerID, entityID); err != nil {
		h.writeError(w, "delete entity", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Restore handles POST /api/owners/{oid}/entities/{eid}/restore
func (h *EntityHandler) Restore(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := parsePathID(w, r, "oid")
	if !ok {
		return
	}
	entityID, ok := parsePathID(w, r, "eid")
	if !ok {
		return
	}

	entity, err := h.entityService.RestoreEntity(r.Context(), ownerID, entityID)
	if err != nil {
		h.writeError(w, "restore entity", err)
		return
	}
	h.writeJSON(w, http.StatusOK, toEntityDetailResponse(entity))
}

// Interactions handles GET /api/owners/{oid}/entities/{eid}/interactions
func (h *EntityHandler) Interactions(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := parsePathID(w, r, "oid")
	if !ok {
		return
	}
	entityID, ok := parsePathID(w, r, "eid")
	if !ok {
		return
	}

	page := 1
	if p := r.URL.Query().Get("page"); p != "" {
		parsed, err := strconv.Atoi(p)
		if err != nil || parsed < 1 {
			_ = ErrorResponse(w, http.StatusBadRequest, "invalid_page", "page must be a positive integer")
			return
		}
		page = parsed
	}

	result, err := h.graphQuery.GetEntityInteractions(r.Context(), entityID, ownerID, page)
	if err != nil {
		h.writeError(w, "list interactions", err)
		return
	}

	entries := make([]InteractionEntry, 0, len(result.Entries))
	for _, e := range result.Entries {
		entries = append(entries, InteractionEntry{
			ID:        e.ID.String(),
			Content:   e.Content,
			EntryDate: e.EntryDate.Format("2006-01-02"),
		})
	}
	h.writeJSON(w, http.StatusOK, InteractionsResponse{
		Entries: entries,
		Page:    result.Page,
		HasMore: result.HasMore,
	})
}

func (h *EntityHandler) writeError(w http.ResponseWriter, op string, err error) {
	status, code := statusForError(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("entity request failed", zap.String("op", op), zap.Error(err))
	}
	if werr := ErrorResponse(w, status, code, err.Error()); werr != nil {
		h.logger.Error("failed to write error response", zap.Error(werr))
	}
}

func (h *EntityHandler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	if err := WriteJSON(w, status, data); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}

func toEntityDetailResponse(e *models.KnowledgeEntity) EntityDetailResponse {
	return EntityDetailResponse{
		ID:               e.ID.String(),
		Name:             e.Name,
		Type:             string(e.Type),
		Aliases:          e.Aliases,
		Summary:          e.Summary,
		Tags:             e.Tags,
		InteractionCount: e.InteractionCount,
		SentimentScore:   e.SentimentScore,
		IsDeleted:        e.IsDeleted,
	}
}

// parsePathID parses a UUID path value, writing a 400 on failure.
func parsePathID(w http.ResponseWriter, r *http.Request, key string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(key))
	if err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_id", "invalid "+key)
		return uuid.Nil, false
	}
	return id, true
}
