package models

import (
	"time"

	"github.com/google/uuid"
)

// FlashCard is one front/back study pair. Both sides are non-empty after
// trimming.
type FlashCard struct {
	Front string `json:"front"`
	Back  string `json:"back"`
}

// CardSet is the ordered, non-empty result of one generation request.
type CardSet []FlashCard

type GenerateFlashcardsResponse struct {
	Success    bool    `json:"success"`
	Flashcards CardSet `json:"flashcards"`
	Count      int     `json:"count"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type SessionRequest struct {
	InitData string `json:"initData"`
}

type SessionResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// StageEvent is pushed to progress subscribers on every pipeline transition.
type StageEvent struct {
	Type      string    `json:"type"`
	RequestID uuid.UUID `json:"request_id"`
	Stage     string    `json:"stage"`
	Error     string    `json:"error,omitempty"`
	At        time.Time `json:"at"`
}
