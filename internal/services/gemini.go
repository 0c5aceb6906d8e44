package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"golang.org/x/sync/semaphore"
	"google.golang.org/api/option"

	"flashcards-backend/internal/logger"
)

type GeminiConfig struct {
	APIKey          string
	Model           string
	MaxOutputTokens int
	ConcurrentReqs  int
}

// GeminiSynthesizer is the process-wide provider client. It is built once at
// startup and handed to the pipeline.
type GeminiSynthesizer struct {
	client *genai.Client
	model  *genai.GenerativeModel
	slots  *semaphore.Weighted
	log    *logger.Logger
}

func NewGeminiSynthesizer(ctx context.Context, cfg GeminiConfig, log *logger.Logger) (*GeminiSynthesizer, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := client.GenerativeModel(cfg.Model)
	model.SetTemperature(0.3)
	model.SetTopP(0.95)
	model.SetMaxOutputTokens(int32(cfg.MaxOutputTokens))

	concurrent := cfg.ConcurrentReqs
	if concurrent <= 0 {
		concurrent = 1
	}

	return &GeminiSynthesizer{
		client: client,
		model:  model,
		slots:  semaphore.NewWeighted(int64(concurrent)),
		log:    log.With("component", "gemini", "model", cfg.Model),
	}, nil
}

func (s *GeminiSynthesizer) Name() string { return "gemini" }

func (s *GeminiSynthesizer) Close() {
	s.client.Close()
}

func (s *GeminiSynthesizer) Synthesize(ctx context.Context, prompt string) (string, error) {
	if err := s.slots.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("%w: waiting for Gemini slot: %v", ErrProviderUnavailable, err)
	}
	defer s.slots.Release(1)

	resp, err := s.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("%w: Gemini API error: %v", ErrProviderUnavailable, err)
	}

	for i, cand := range resp.Candidates {
		if cand.FinishReason != genai.FinishReasonStop {
			s.log.Warn("Gemini stopped early", "candidate", i, "finish_reason", cand.FinishReason.String(), "token_count", cand.TokenCount)
		}
	}

	return extractText(resp), nil
}

func extractText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var text strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content != nil {
			for _, part := range cand.Content.Parts {
				if t, ok := part.(genai.Text); ok {
					text.WriteString(string(t))
				}
			}
		}
	}
	return text.String()
}
