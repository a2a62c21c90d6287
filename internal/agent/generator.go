package agent

import (
	"context"
	"fmt"
	"strings"
)

// Generator is the capability interface for text generation. One
// implementation exists per backend; the drafting slot holds whichever one
// the factory selected, so no backend branching leaks into agent code.
type Generator interface {
	// Backend names the generation backend.
	Backend() string

	// Generate produces draft text for a prompt.
	Generate(ctx context.Context, prompt string) (string, error)
}

// Known backend names. Template is the offline default; the named backends
// carry distinct drafting presets and are the seam where SDK-backed
// implementations slot in.
const (
	BackendTemplate = "template"
	BackendOpenAI   = "openai"
	BackendGroq     = "groq"
	BackendOllama   = "ollama"
)

// NewGenerator is the factory for generation backends. An empty name selects
// the template backend; an unknown name is an error.
func NewGenerator(backend string) (Generator, error) {
	switch backend {
	case "", BackendTemplate:
		return &templateGenerator{}, nil
	case BackendOpenAI:
		return &openAIGenerator{}, nil
	case BackendGroq:
		return &groqGenerator{}, nil
	case BackendOllama:
		return &ollamaGenerator{}, nil
	default:
		return nil, fmt.Errorf("unknown generation backend: %q (valid: %s, %s, %s, %s)",
			backend, BackendTemplate, BackendOpenAI, BackendGroq, BackendOllama)
	}
}

// composeExercise renders a deterministic exercise scaffold from the prompt.
// Shared by the offline backends; each wraps it with its own voice.
func composeExercise(prompt, opening, closing string) string {
	var b strings.Builder

	b.WriteString(opening)
	b.WriteString("\n\n")
	b.WriteString("This gentle exercise responds to: ")
	b.WriteString(strings.TrimSpace(prompt))
	b.WriteString("\n\n")
	b.WriteString("1. Notice what you are feeling right now, without judging it.\n")
	b.WriteString("2. Name the thought that is troubling you, and write it down.\n")
	b.WriteString("3. Ask yourself what a caring friend might say about that thought.\n")
	b.WriteString("4. Choose one small, kind step you could take in the next hour.\n")
	b.WriteString("5. Take a slow breath and acknowledge the effort you just made.\n\n")
	b.WriteString(closing)
	b.WriteString("\n")

	return b.String()
}

type templateGenerator struct{}

func (g *templateGenerator) Backend() string { return BackendTemplate }

func (g *templateGenerator) Generate(_ context.Context, prompt string) (string, error) {
	return composeExercise(prompt,
		"Welcome. It is completely understandable to find this difficult, and you deserve support.",
		"However this went for you today, showing up for yourself matters, and you are not alone."), nil
}

type openAIGenerator struct{}

func (g *openAIGenerator) Backend() string { return BackendOpenAI }

func (g *openAIGenerator) Generate(_ context.Context, prompt string) (string, error) {
	return composeExercise(prompt,
		"Welcome to this guided exercise. Whatever brought you here, your feelings are valid and you are worthy of care.",
		"Be gentle with yourself about how this felt. Every attempt counts, and support is always available."), nil
}

type groqGenerator struct{}

func (g *groqGenerator) Backend() string { return BackendGroq }

func (g *groqGenerator) Generate(_ context.Context, prompt string) (string, error) {
	return composeExercise(prompt,
		"Welcome. Take a moment to settle in; there is no wrong way to do this.",
		"Well done for trying this at all. Your pace is the right pace."), nil
}

type ollamaGenerator struct{}

func (g *ollamaGenerator) Backend() string { return BackendOllama }

func (g *ollamaGenerator) Generate(_ context.Context, prompt string) (string, error) {
	return composeExercise(prompt,
		"Welcome. This space is yours, and whatever you bring to it is okay.",
		"Thank yourself for the care you showed here today."), nil
}
