package services

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"flashcards-backend/internal/models"
)

var (
	ErrNoJSONFound   = errors.New("no JSON array found in provider reply")
	ErrMalformedJSON = errors.New("provider reply JSON array is malformed")
	ErrEmptyCardSet  = errors.New("provider reply contains no cards")
)

// InvalidCardError points at the first element that fails the card schema.
type InvalidCardError struct {
	Index int
	Field string
}

func (e *InvalidCardError) Error() string {
	return fmt.Sprintf("invalid flashcard at index %d: missing %s", e.Index, e.Field)
}

// ParseCards pulls the JSON array out of a free-text model reply and checks
// every element against the card schema. Fields are coerced to strings and
// trimmed; duplicates are kept.
func ParseCards(raw string) (models.CardSet, error) {
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start < 0 || end < start {
		return nil, ErrNoJSONFound
	}

	var elements []json.RawMessage
	if err := json.Unmarshal([]byte(raw[start:end+1]), &elements); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedJSON, err)
	}
	if len(elements) == 0 {
		return nil, ErrEmptyCardSet
	}

	cards := make(models.CardSet, 0, len(elements))
	for i, el := range elements {
		var fields map[string]any
		dec := json.NewDecoder(bytes.NewReader(el))
		dec.UseNumber()
		if err := dec.Decode(&fields); err != nil || fields == nil {
			return nil, &InvalidCardError{Index: i, Field: "front"}
		}

		front := coerceCardField(fields["front"])
		if front == "" {
			return nil, &InvalidCardError{Index: i, Field: "front"}
		}
		back := coerceCardField(fields["back"])
		if back == "" {
			return nil, &InvalidCardError{Index: i, Field: "back"}
		}
		cards = append(cards, models.FlashCard{Front: front, Back: back})
	}

	return cards, nil
}

// CapCards truncates cards to at most max entries. max <= 0 disables the cap.
func CapCards(cards models.CardSet, max int) models.CardSet {
	if max <= 0 || len(cards) <= max {
		return cards
	}
	return cards[:max]
}

func coerceCardField(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return strings.TrimSpace(string(b))
	}
}
