package middleware

import (
	"encoding/json"
	"net/http"

	"flashcards-backend/internal/models"
)

type contextKey string

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(models.ErrorResponse{Error: message})
}
