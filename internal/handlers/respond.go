package handlers

import (
	"encoding/json"
	"net/http"

	"flashcards-backend/internal/apperr"
	"flashcards-backend/internal/models"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeAppError maps err to its status and caller-safe message.
func writeAppError(w http.ResponseWriter, err error) {
	writeJSON(w, apperr.Status(err), models.ErrorResponse{Error: apperr.PublicMessage(err)})
}

func methodNotAllowed(w http.ResponseWriter, allow string) {
	w.Header().Set("Allow", allow)
	writeJSON(w, http.StatusMethodNotAllowed, models.ErrorResponse{Error: "Method not allowed"})
}
