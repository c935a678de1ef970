package generate

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// DefaultModel is the Gemini generation model used when none is configured.
const DefaultModel = "gemini-1.5-pro"

// GeminiConfig holds configuration for the Gemini generator.
type GeminiConfig struct {
	// APIKey authenticates against the Generative Language API.
	APIKey string

	// Model is the generation model name. Default: DefaultModel.
	Model string
}

// Gemini implements Generator against the Gemini API. One client is created
// at process start and shared; the client is stateless and safe for
// concurrent job bodies.
type Gemini struct {
	client *genai.Client
	model  string
}

var _ Generator = (*Gemini)(nil)

// NewGemini creates the generator with its own API client.
func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini generator: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}

	return &Gemini{client: client, model: cfg.Model}, nil
}

// Answer implements Generator.
func (g *Gemini) Answer(ctx context.Context, question string, contexts []string, language string) (string, error) {
	return g.complete(ctx, answerPrompt(question, contexts, language))
}

// DigestScript implements Generator.
func (g *Gemini) DigestScript(ctx context.Context, topic string, contexts []string, language string) (string, error) {
	return g.complete(ctx, digestPrompt(topic, contexts, language))
}

// GraphDescription implements Generator.
func (g *Gemini) GraphDescription(ctx context.Context, topic string, contexts []string, language string) (string, error) {
	return g.complete(ctx, graphPrompt(topic, contexts, language))
}

// complete sends one prompt and concatenates the text parts of the first
// candidate.
func (g *Gemini) complete(ctx context.Context, prompt string) (string, error) {
	model := g.client.GenerativeModel(g.model)

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini generation request failed: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("gemini returned no candidates")
	}

	var out strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			out.WriteString(string(txt))
		}
	}
	if out.Len() == 0 {
		return "", fmt.Errorf("gemini returned a non-text response")
	}
	return out.String(), nil
}

// Close releases the underlying API client.
func (g *Gemini) Close() error {
	return g.client.Close()
}
