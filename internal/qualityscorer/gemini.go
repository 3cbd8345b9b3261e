package qualityscorer

import (
	"context"
	"fmt"

	genai "google.golang.org/genai"
)

// GeminiModel is a thin wrapper around the official genai client,
// adapted from the reference repository's Gemini client: the call
// itself is the only concern here, retries and budget are handled by
// Scorer one layer up.
type GeminiModel struct {
	cli   *genai.Client
	model string
}

func NewGeminiModel(ctx context.Context, model string) (*GeminiModel, error) {
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, fmt.Errorf("init genai client: %w", err)
	}
	if model == "" {
		model = "gemini-2.5-flash"
	}
	return &GeminiModel{cli: cli, model: model}, nil
}

func (g *GeminiModel) Generate(ctx context.Context, prompt, text string, image []byte) (string, error) {
	parts := []*genai.Part{{Text: prompt + "\n\n[CONTENT]\n" + text}}
	if len(image) > 0 {
		parts = append(parts, &genai.Part{
			InlineData: &genai.Blob{MIMEType: "application/octet-stream", Data: image},
		})
	}

	resp, err := g.cli.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{{Parts: parts}},
		&genai.GenerateContentConfig{ResponseMIMEType: "text/plain"},
	)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("empty response from model")
	}
	return resp.Candidates[0].Content.Parts[0].Text, nil
}
