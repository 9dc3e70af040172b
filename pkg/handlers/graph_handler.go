package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/inkwell-ai/inkwell-engine/pkg/models"
	"github.com/inkwell-ai/inkwell-engine/pkg/services"
)

// ============================================================================
// Request/Response Types
// ============================================================================

// GraphSummaryResponse for GET /graph/summary
type GraphSummaryResponse struct {
	Summary string `json:"summary"`
}

// ExtractRequest for POST /extract
type ExtractRequest struct {
	EntryIDs []string `json:"entry_ids"`
}

// ExtractResultResponse is one extraction outcome.
type ExtractResultResponse struct {
	EntryID       string   `json:"entry_id"`
	Status        string   `json:"status"`
	Names         []string `json:"names"`
	EntityCount   int      `json:"entity_count"`
	RelationCount int      `json:"relation_count"`
}

// ExtractBatchResponse for POST /extract
type ExtractBatchResponse struct {
	Results []ExtractResultResponse `json:"results"`
}

// ResolveEdgeRequest for POST /edges/{eid}/resolve
type ResolveEdgeRequest struct {
	Accept bool `json:"accept"`
}

// EdgeResponse represents an edge in API responses.
type EdgeResponse struct {
	ID       string  `json:"id"`
	FromID   string  `json:"from_id"`
	ToID     string  `json:"to_id"`
	Relation string  `json:"relation"`
	Status   string  `json:"status"`
	Weight   float64 `json:"weight"`
}

// RepairResponse for POST /graph/repair
type RepairResponse struct {
	Repaired []RepairedEntityResponse `json:"repaired"`
}

// RepairedEntityResponse is one reconnected orphan.
type RepairedEntityResponse struct {
	EntityID    string `json:"entity_id"`
	Name        string `json:"name"`
	Reconnected bool   `json:"reconnected"`
}

// ============================================================================
// Handler
// ============================================================================

// GraphHandler handles extraction, graph summary, and edge curation requests.
type GraphHandler struct {
	extraction   services.ExtractionService
	graphQuery   services.GraphQueryService
	associations services.AssociationService
	registry     services.EntityRegistry
	getOwnerCtx  services.OwnerContextFunc
	logger       *zap.Logger
}

// NewGraphHandler creates a new graph handler.
func NewGraphHandler(
	extraction services.ExtractionService,
	graphQuery services.GraphQueryService,
	associations services.AssociationService,
	registry services.EntityRegistry,
	getOwnerCtx services.OwnerContextFunc,
	logger *zap.Logger,
) *GraphHandler {
	return &GraphHandler{
		extraction:   extraction,
		graphQuery:   graphQuery,
		associations: associations,
		registry:     registry,
		getOwnerCtx:  getOwnerCtx,
		logger:       logger,
	}
}

// RegisterRoutes registers the graph handler's routes on the given mux.
func (h *GraphHandler) RegisterRoutes(mux *http.ServeMux) {
	base := "/api/owners/{oid}"

	mux.HandleFunc("GET "+base+"/graph/summary", h.Summary)
	mux.HandleFunc("POST "+base+"/graph/repair", h.Repair)
	mux.HandleFunc("POST "+base+"/registry/resync", h.ResyncRegistry)
	mux.HandleFunc("POST "+base+"/entries/{eid}/extract", h.Extract)
	mux.HandleFunc("POST "+base+"/extract", h.ExtractBatch)
	mux.HandleFunc("POST "+base+"/edges/{eid}/refute", h.RefuteEdge)
	mux.HandleFunc("POST "+base+"/edges/{eid}/unrefute", h.UnrefuteEdge)
	mux.HandleFunc("POST "+base+"/edges/{eid}/resolve", h.ResolveEdge)
}

// Summary handles GET /api/owners/{oid}/graph/summary
func (h *GraphHandler) Summary(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := parsePathID(w, r, "oid")
	if !ok {
		return
	}

	summary := h.graphQuery.GetGraphSummary(r.Context(), ownerID)
	h.writeJSON(w, http.StatusOK, GraphSummaryResponse{Summary: summary})
}

// Repair handles POST /api/owners/{oid}/graph/repair
func (h *GraphHandler) Repair(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := parsePathID(w, r, "oid")
	if !ok {
		return
	}

	repaired, err := h.graphQuery.RepairOrphanedEntities(r.Context(), ownerID)
	if err != nil {
		h.writeError(w, "repair orphans", err)
		return
	}

	responses := make([]RepairedEntityResponse, 0, len(repaired))
	for _, rep := range repaired {
		responses = append(responses, RepairedEntityResponse{
			EntityID:    rep.EntityID.String(),
			Name:        rep.Name,
			Reconnected: rep.Reconnected,
		})
	}
	h.writeJSON(w, http.StatusOK, RepairResponse{Repaired: responses})
}

// ResyncRegistry handles POST /api/owners/{oid}/registry/resync
func (h *GraphHandler) ResyncRegistry(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := parsePathID(w, r, "oid")
	if !ok {
		return
	}

	ownerCtx, cleanup, err := h.getOwnerCtx(r.Context(), ownerID)
	if err != nil {
		h.writeError(w, "acquire owner scope", err)
		return
	}
	defer cleanup()

	if err := h.registry.Resync(ownerCtx, ownerID); err != nil {
		h.writeError(w, "resync registry", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Extract handles POST /api/owners/{oid}/entries/{eid}/extract
func (h *GraphHandler) Extract(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := parsePathID(w, r, "oid")
	if !ok {
		return
	}
	entryID, ok := parsePathID(w, r, "eid")
	if !ok {
		return
	}

	result, err := h.extraction.Extract(r.Context(), entryID, ownerID)
	if err != nil {
		h.writeError(w, "extract entry", err)
		return
	}
	h.writeJSON(w, http.StatusOK, toExtractResultResponse(result))
}

// ExtractBatch handles POST /api/owners/{oid}/extract
func (h *GraphHandler) ExtractBatch(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := parsePathID(w, r, "oid")
	if !ok {
		return
	}

	var req ExtractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if len(req.EntryIDs) == 0 {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "entry_ids is required")
		return
	}

	entryIDs := make([]uuid.UUID, 0, len(req.EntryIDs))
	for _, raw := range req.EntryIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			_ = ErrorResponse(w, http.StatusBadRequest, "invalid_id", "invalid entry id "+raw)
			return
		}
		entryIDs = append(entryIDs, id)
	}

	results := h.extraction.ExtractBatch(r.Context(), entryIDs, ownerID)
	responses := make([]ExtractResultResponse, 0, len(results))
	for _, res := range results {
		responses = append(responses, toExtractResultResponse(res))
	}
	h.writeJSON(w, http.StatusOK, ExtractBatchResponse{Results: responses})
}

// RefuteEdge handles POST /api/owners/{oid}/edges/{eid}/refute
func (h *GraphHandler) RefuteEdge(w http.ResponseWriter, r *http.Request) {
	h.edgeOp(w, r, h.associations.RefuteEdge)
}

// UnrefuteEdge handles POST /api/owners/{oid}/edges/{eid}/unrefute
func (h *GraphHandler) UnrefuteEdge(w http.ResponseWriter, r *http.Request) {
	h.edgeOp(w, r, h.associations.UnrefuteEdge)
}

// ResolveEdge handles POST /api/owners/{oid}/edges/{eid}/resolve
func (h *GraphHandler) ResolveEdge(w http.ResponseWriter, r *http.Request) {
	var req ResolveEdgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	h.edgeOp(w, r, func(ctx context.Context, edgeID uuid.UUID) (*models.KnowledgeEdge, error) {
		return h.associations.ResolveProposal(ctx, edgeID, req.Accept)
	})
}

// edgeOp runs one edge curation call under an owner-scoped connection.
func (h *GraphHandler) edgeOp(w http.ResponseWriter, r *http.Request, op func(context.Context, uuid.UUID) (*models.KnowledgeEdge, error)) {
	ownerID, ok := parsePathID(w, r, "oid")
	if !ok {
		return
	}
	edgeID, ok := parsePathID(w, r, "eid")
	if !ok {
		return
	}

	ownerCtx, cleanup, err := h.getOwnerCtx(r.Context(), ownerID)
	if err != nil {
		h.writeError(w, "acquire owner scope", err)
		return
	}
	defer cleanup()

	edge, err := op(ownerCtx, edgeID)
	if err != nil {
		h.writeError(w, "edge operation", err)
		return
	}
	h.writeJSON(w, http.StatusOK, EdgeResponse{
		ID:       edge.ID.String(),
		FromID:   edge.From.ID.String(),
		ToID:     edge.To.ID.String(),
		Relation: string(edge.Relation),
		Status:   edge.Status,
		Weight:   edge.Weight,
	})
}

func (h *GraphHandler) writeError(w http.ResponseWriter, op string, err error) {
	status, code := statusForError(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("graph request failed", zap.String("op", op), zap.Error(err))
	}
	if werr := ErrorResponse(w, status, code, err.Error()); werr != nil {
		h.logger.Error("failed to write error response", zap.Error(werr))
	}
}

func (h *GraphHandler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	if err := WriteJSON(w, status, data); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}

func toExtractResultResponse(r *services.ExtractionResult) ExtractResultResponse {
	names := r.Names
	if names == nil {
		names = []string{}
	}
	return ExtractResultResponse{
		EntryID:       r.EntryID.String(),
		Status:        r.Status,
		Names:         names,
		EntityCount:   r.EntityCount,
		RelationCount: r.RelationCount,
	}
}
