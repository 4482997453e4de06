// Package provider puts every text-generation backend behind one contract so
// callers never branch on backend identity.
package provider

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrNotConfigured is wrapped by Error when a backend has no credential.
var ErrNotConfigured = errors.New("api key not configured")

// Model describes one entry of a backend's catalog.
type Model struct {
	Name               string  `json:"name"`
	DisplayName        string  `json:"displayName"`
	Description        string  `json:"description"`
	MaxTokens          int     `json:"maxTokens"`
	DefaultTemperature float64 `json:"defaultTemperature"`
}

// Response is the normalized output of a backend. Every field is always set.
type Response struct {
	SuggestedContent string   `json:"suggestedContent"`
	Hashtags         []string `json:"hashtags"`
	Analysis         string   `json:"analysis"`
	Provider         string   `json:"provider"`
	Model            string   `json:"model"`
}

// Provider is implemented by each backend.
type Provider interface {
	Name() string
	Models() []Model
	// Available is true iff the backend's credential is configured.
	Available() bool
	// Generate sends prompt to the backend. An empty model selects the backend default.
	Generate(ctx context.Context, prompt, model string) (Response, error)
}

// Error reports a failed call to a single backend.
type Error struct {
	Provider string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func wrap(name string, err error) error {
	if err == nil {
		return nil
	}
	var pe *Error
	if errors.As(err, &pe) {
		return err
	}
	return &Error{Provider: name, Err: err}
}

var hashtagRe = regexp.MustCompile(`#[a-zA-Z0-9]+`)

// ExtractHashtags returns every hashtag in text, lowercased, in order of
// appearance. Repeats are kept.
func ExtractHashtags(text string) []string {
	matches := hashtagRe.FindAllString(text, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, strings.ToLower(m))
	}
	return out
}

// normalize builds the Response for a completion, rejecting blank output.
func normalize(name, model, text, analysis string) (Response, error) {
	if strings.TrimSpace(text) == "" {
		return Response{}, &Error{Provider: name, Err: errors.New("response content missing")}
	}
	return Response{
		SuggestedContent: text,
		Hashtags:         ExtractHashtags(text),
		Analysis:         analysis,
		Provider:         name,
		Model:            model,
	}, nil
}

func defaultModel(models []Model, requested string) string {
	if requested != "" {
		return requested
	}
	if len(models) > 0 {
		return models[0].Name
	}
	return ""
}
