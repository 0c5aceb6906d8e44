package services

import (
	"fmt"
	"strings"
)

const (
	MinPromptCards = 5
	MaxPromptCards = 15
)

// PromptBuilder embeds extracted content into the fixed flashcard
// instruction. The reply language is fixed when the builder is created.
type PromptBuilder struct {
	language string
}

func NewPromptBuilder(language string) *PromptBuilder {
	if strings.TrimSpace(language) == "" {
		language = "Russian"
	}
	return &PromptBuilder{language: language}
}

func (p *PromptBuilder) Language() string {
	return p.language
}

// Build returns the same prompt for the same content.
func (p *PromptBuilder) Build(content string) string {
	var b strings.Builder

	b.WriteString("You are an expert at creating study flashcards. Turn the text below into cards for effective learning.\n\n")

	b.WriteString("---TEXT START---\n")
	b.WriteString(content)
	b.WriteString("\n---TEXT END---\n\n")

	b.WriteString("Requirements:\n")
	b.WriteString(fmt.Sprintf("1. Extract %d-%d key concepts, terms or facts\n", MinPromptCards, MaxPromptCards))
	b.WriteString("2. Each card has a front (question or term) and a back (answer or definition)\n")
	b.WriteString("3. Front: a short question or term (1-8 words)\n")
	b.WriteString("4. Back: a clear answer or definition (up to 100 words)\n")
	b.WriteString("5. Focus on the most important aspects of the material\n")
	b.WriteString(fmt.Sprintf("6. Write every card in %s\n\n", p.language))

	b.WriteString("Reply format - a JSON array only:\n")
	b.WriteString(`[{"front": "Question or term", "back": "Clear answer or definition"}]`)
	b.WriteString("\n\nCRITICAL: Return ONLY the JSON array. No preamble, no markdown, no backticks.")

	return b.String()
}
