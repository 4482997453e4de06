package api

import (
	"fmt"
	"net/http"
	"strings"

	"social-post-scheduler/internal/assist"
	"social-post-scheduler/internal/models"
	"social-post-scheduler/internal/provider"
)

type providerInfo struct {
	Name      string           `json:"name"`
	Available bool             `json:"available"`
	Models    []provider.Model `json:"models"`
}

func (s *Server) handleProviders(w http.ResponseWriter, _ *http.Request) {
	list := s.assist.Registry().List()
	out := make([]providerInfo, 0, len(list))
	for _, p := range list {
		out = append(out, providerInfo{Name: p.Name(), Available: p.Available(), Models: p.Models()})
	}
	writeJSON(w, http.StatusOK, out)
}

// generateRequest is the body shared by the assist, research and enhance
// endpoints. Prompt and Content are aliases; the dashboard sends content.
type generateRequest struct {
	Prompt     string `json:"prompt"`
	Content    string `json:"content"`
	Provider   string `json:"provider"`
	Model      string `json:"model"`
	MaxRetries int    `json:"maxRetries"`
}

func (g generateRequest) text() string {
	if strings.TrimSpace(g.Prompt) != "" {
		return g.Prompt
	}
	return g.Content
}

func (g generateRequest) toAssist(prompt string) assist.Request {
	return assist.Request{
		Prompt:            prompt,
		PreferredProvider: g.Provider,
		Model:             g.Model,
		MaxRetries:        g.MaxRetries,
	}
}

func requireText(v string) error {
	if strings.TrimSpace(v) == "" {
		return fmt.Errorf("%w: content is required", models.ErrInvalidRequest)
	}
	return nil
}

func (s *Server) handleAssist(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, "Failed to get AI assistance", err)
		return
	}
	if err := requireText(req.text()); err != nil {
		s.writeError(w, r, "Failed to get AI assistance", err)
		return
	}
	resp, err := s.assist.Generate(r.Context(), req.toAssist(req.text()))
	if err != nil {
		s.writeError(w, r, "Failed to get AI assistance", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type researchResponse struct {
	Insights         string   `json:"insights"`
	Topics           []string `json:"topics"`
	SuggestedContent string   `json:"suggestedContent"`
	Provider         string   `json:"provider"`
	Model            string   `json:"model"`
}

func (s *Server) handleResearch(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, "Failed to complete research", err)
		return
	}
	topic := req.text()
	if err := requireText(topic); err != nil {
		s.writeError(w, r, "Failed to complete research", err)
		return
	}
	resp, err := s.assist.Generate(r.Context(), req.toAssist(assist.ResearchPrompt(topic)))
	if err != nil {
		s.writeError(w, r, "Failed to complete research", err)
		return
	}
	topics := make([]string, 0, len(resp.Hashtags))
	for _, tag := range resp.Hashtags {
		topics = append(topics, strings.TrimPrefix(tag, "#"))
	}
	writeJSON(w, http.StatusOK, researchResponse{
		Insights:         resp.Analysis,
		Topics:           topics,
		SuggestedContent: resp.SuggestedContent,
		Provider:         resp.Provider,
		Model:            resp.Model,
	})
}

type enhanceRequest struct {
	generateRequest
	ID string `json:"id"`
}

// handleEnhanceDraft rewrites a stored draft when an id is given, otherwise the
// content in the body. The draft itself is not modified.
func (s *Server) handleEnhanceDraft(w http.ResponseWriter, r *http.Request) {
	var req enhanceRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, "Failed to enhance draft", err)
		return
	}
	draft := req.text()
	if req.ID != "" {
		post, err := s.posts.Get(r.Context(), req.ID)
		if err != nil {
			s.writeError(w, r, "Failed to enhance draft", err)
			return
		}
		draft = post.Content
	}
	if err := requireText(draft); err != nil {
		s.writeError(w, r, "Failed to enhance draft", err)
		return
	}
	resp, err := s.assist.Generate(r.Context(), req.toAssist(assist.EnhancePrompt(draft)))
	if err != nil {
		s.writeError(w, r, "Failed to enhance draft", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSuggestTime(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, "Failed to suggest time", err)
		return
	}
	suggestion, err := s.assist.SuggestTime(r.Context(), req.text(), req.Provider, s.now().UTC())
	if err != nil {
		s.writeError(w, r, "Failed to suggest time", err)
		return
	}
	writeJSON(w, http.StatusOK, suggestion)
}
