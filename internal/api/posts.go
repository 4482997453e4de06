package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"social-post-scheduler/internal/models"
	"social-post-scheduler/internal/posts"
)

type createResponse struct {
	models.Post
	// SeriesSize is the number of rows stored, 1 for a one-off post.
	SeriesSize int `json:"seriesSize"`
}

func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	var req posts.CreateRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, "Failed to create post", err)
		return
	}
	res, err := s.posts.Create(r.Context(), req)
	if err != nil {
		s.writeError(w, r, "Failed to create post", err)
		return
	}
	writeJSON(w, http.StatusCreated, createResponse{Post: res.Post, SeriesSize: res.SeriesSize})
}

func (s *Server) handleListDrafts(w http.ResponseWriter, r *http.Request) {
	list, err := s.posts.ListDrafts(r.Context())
	if err != nil {
		s.writeError(w, r, "Failed to fetch drafts", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleListScheduled(w http.ResponseWriter, r *http.Request) {
	list, err := s.posts.ListScheduled(r.Context())
	if err != nil {
		s.writeError(w, r, "Failed to fetch scheduled posts", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetPost(w http.ResponseWriter, r *http.Request) {
	post, err := s.posts.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, "Failed to fetch post", err)
		return
	}
	writeJSON(w, http.StatusOK, post)
}

func (s *Server) handleUpdatePost(w http.ResponseWriter, r *http.Request) {
	var req posts.UpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, "Failed to update post", err)
		return
	}
	post, err := s.posts.Update(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		s.writeError(w, r, "Failed to update post", err)
		return
	}
	writeJSON(w, http.StatusOK, post)
}

func (s *Server) handleDeletePost(w http.ResponseWriter, r *http.Request) {
	if err := s.posts.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, "Failed to delete post", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
