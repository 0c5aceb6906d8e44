package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"flashcards-backend/internal/logger"
	"flashcards-backend/internal/models"
	"flashcards-backend/internal/services"
)

type InitDataVerifier interface {
	Verify(initData string) (*services.InitData, error)
}

type SessionIssuer interface {
	Issue(data *services.InitData) (string, time.Time, error)
}

type SessionHandler struct {
	verifier InitDataVerifier
	issuer   SessionIssuer
	log      *logger.Logger
}

func NewSessionHandler(verifier InitDataVerifier, issuer SessionIssuer, log *logger.Logger) *SessionHandler {
	return &SessionHandler{verifier: verifier, issuer: issuer, log: log.With("component", "session_handler")}
}

// Create exchanges signed Telegram init data for a session token.
// POST /api/auth/session
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 64<<10)

	var req models.SessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return
	}
	if strings.TrimSpace(req.InitData) == "" {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Missing Telegram data"})
		return
	}

	data, err := h.verifier.Verify(req.InitData)
	if err != nil {
		h.log.Info("session refused", "error", err)
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Invalid Telegram data"})
		return
	}

	token, expiresAt, err := h.issuer.Issue(data)
	if err != nil {
		h.log.Error("failed to issue session token", "error", err)
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, models.SessionResponse{Token: token, ExpiresAt: expiresAt})
}
