package services

import (
	"context"
	"errors"
)

var ErrProviderUnavailable = errors.New("llm provider unavailable")

// Synthesizer performs the single blocking prompt/reply round trip with the
// LLM provider.
type Synthesizer interface {
	Synthesize(ctx context.Context, prompt string) (string, error)
	Name() string
}
