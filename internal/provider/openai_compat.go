package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	groqBaseURL     = "https://api.groq.com/openai/v1/"
	xaiBaseURL      = "https://api.x.ai/v1/"
	cerebrasBaseURL = "https://api.cerebras.ai/v1/"
)

// OpenAICompatible talks to any backend exposing the OpenAI chat completions API.
type OpenAICompatible struct {
	name        string
	analysis    string
	apiKey      string
	baseURL     string
	models      []Model
	temperature float64
	maxTokens   int64
	client      openai.Client
}

// Option customizes an OpenAI-compatible backend.
type Option func(*OpenAICompatible)

// WithBaseURL points the backend at another endpoint, e.g. a proxy or a test server.
func WithBaseURL(u string) Option {
	return func(p *OpenAICompatible) { p.baseURL = u }
}

func newOpenAICompatible(p *OpenAICompatible, opts ...Option) *OpenAICompatible {
	for _, o := range opts {
		o(p)
	}
	if p.apiKey != "" {
		p.client = openai.NewClient(
			option.WithAPIKey(p.apiKey),
			option.WithBaseURL(p.baseURL),
			option.WithHeader("User-Agent", p.name+"-client/1.0.0"),
			// The orchestrator owns retry policy.
			option.WithMaxRetries(0),
		)
	}
	return p
}

// NewGroq builds the Groq backend.
func NewGroq(apiKey string, opts ...Option) *OpenAICompatible {
	return newOpenAICompatible(&OpenAICompatible{
		name:     "groq",
		analysis: "Generated using Groq AI",
		apiKey:   apiKey,
		baseURL:  groqBaseURL,
		models: []Model{
			{Name: "mixtral-8x7b-32768", DisplayName: "Mixtral 8x7B", Description: "Fast mixture-of-experts model", MaxTokens: 32768, DefaultTemperature: 0.7},
			{Name: "llama3-70b-8192", DisplayName: "LLaMA 3 70B", Description: "Large general purpose model", MaxTokens: 8192, DefaultTemperature: 0.7},
		},
		temperature: 0.7,
		maxTokens:   1000,
	}, opts...)
}

// NewGrok builds the xAI Grok backend.
func NewGrok(apiKey string, opts ...Option) *OpenAICompatible {
	return newOpenAICompatible(&OpenAICompatible{
		name:     "grok",
		analysis: "Generated using Grok AI",
		apiKey:   apiKey,
		baseURL:  xaiBaseURL,
		models: []Model{
			{Name: "grok-beta", DisplayName: "Grok Beta", Description: "xAI conversational model", MaxTokens: 1000, DefaultTemperature: 0.7},
		},
		temperature: 0.7,
		maxTokens:   1000,
	}, opts...)
}

// NewCerebras builds the Cerebras backend.
func NewCerebras(apiKey string, opts ...Option) *OpenAICompatible {
	return newOpenAICompatible(&OpenAICompatible{
		name:     "cerebras",
		analysis: "Generated using Cerebras AI",
		apiKey:   apiKey,
		baseURL:  cerebrasBaseURL,
		models: []Model{
			{Name: "llama3.1-70b", DisplayName: "LLaMA 3.1 70B", Description: "Large-scale language model for complex tasks", MaxTokens: 8192, DefaultTemperature: 0.7},
			{Name: "llama3.1-8b", DisplayName: "LLaMA 3.1 8B", Description: "Efficient language model for general tasks", MaxTokens: 8192, DefaultTemperature: 0.7},
		},
		temperature: 0.7,
		maxTokens:   8192,
	}, opts...)
}

func (p *OpenAICompatible) Name() string    { return p.name }
func (p *OpenAICompatible) Models() []Model { return p.models }
func (p *OpenAICompatible) Available() bool { return p.apiKey != "" }

// Generate runs a single-turn chat completion.
func (p *OpenAICompatible) Generate(ctx context.Context, prompt, model string) (Response, error) {
	if !p.Available() {
		return Response{}, &Error{Provider: p.name, Err: ErrNotConfigured}
	}
	model = defaultModel(p.models, model)

	completion, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(model),
		Messages:    []openai.ChatCompletionMessageParamUnion{openai.UserMessage(prompt)},
		Temperature: openai.Float(p.temperature),
		MaxTokens:   openai.Int(p.maxTokens),
	})
	if err != nil {
		return Response{}, wrap(p.name, fmt.Errorf("chat completion: %w", err))
	}
	if len(completion.Choices) == 0 {
		return Response{}, &Error{Provider: p.name, Err: errors.New("no response generated")}
	}
	return normalize(p.name, model, completion.Choices[0].Message.Content, p.analysis)
}
