package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// Gemini is the Google Gemini backend.
type Gemini struct {
	apiKey string
	models []Model
}

// NewGemini builds the Gemini backend. The SDK client is created per call
// because it is bound to the request context.
func NewGemini(apiKey string) *Gemini {
	return &Gemini{
		apiKey: apiKey,
		models: []Model{
			{Name: "gemini-1.5-flash", DisplayName: "Gemini 1.5 Flash", Description: "Fast and efficient text generation", MaxTokens: 16384, DefaultTemperature: 0.7},
			{Name: "gemini-1.5-flash-8b", DisplayName: "Gemini 1.5 Flash 8B", Description: "Lightweight and fast text generation", MaxTokens: 16384, DefaultTemperature: 0.7},
			{Name: "gemini-1.5-pro", DisplayName: "Gemini 1.5 Pro", Description: "Advanced text generation and analysis", MaxTokens: 32768, DefaultTemperature: 0.7},
		},
	}
}

func (g *Gemini) Name() string    { return "gemini" }
func (g *Gemini) Models() []Model { return g.models }
func (g *Gemini) Available() bool { return g.apiKey != "" }

// Generate sends prompt as a single user turn.
func (g *Gemini) Generate(ctx context.Context, prompt, model string) (Response, error) {
	if !g.Available() {
		return Response{}, &Error{Provider: g.Name(), Err: ErrNotConfigured}
	}
	model = defaultModel(g.models, model)

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  g.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return Response{}, wrap(g.Name(), fmt.Errorf("create client: %w", err))
	}

	result, err := client.Models.GenerateContent(ctx, model, genai.Text(prompt), &genai.GenerateContentConfig{
		Temperature: genai.Ptr[float32](0.7),
	})
	if err != nil {
		return Response{}, wrap(g.Name(), fmt.Errorf("generate content: %w", err))
	}
	if result == nil || len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
		return Response{}, &Error{Provider: g.Name(), Err: errors.New("no response from gemini")}
	}

	var text strings.Builder
	for _, part := range result.Candidates[0].Content.Parts {
		if part != nil && part.Text != "" {
			text.WriteString(part.Text)
		}
	}
	return normalize(g.Name(), model, text.String(), "Generated using Gemini AI")
}
