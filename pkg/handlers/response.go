package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/inkwell-ai/inkwell-engine/pkg/apperrors"
	"github.com/inkwell-ai/inkwell-engine/pkg/ontology"
)

// ErrorResponse writes a JSON error response and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// statusForError maps service errors to HTTP status codes.
func statusForError(err error) (int, string) {
	var invalidRelation *ontology.InvalidRelationError
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, apperrors.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, apperrors.ErrProposalNotPending):
		return http.StatusConflict, "proposal_not_pending"
	case errors.Is(err, apperrors.ErrSelfReference), errors.As(err, &invalidRelation):
		return http.StatusBadRequest, "invalid_association"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
