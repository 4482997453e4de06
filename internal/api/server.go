// Package api exposes posts and AI assistance over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"

	"social-post-scheduler/internal/assist"
	"social-post-scheduler/internal/models"
	"social-post-scheduler/internal/posts"
	"social-post-scheduler/internal/ratelimit"
	"social-post-scheduler/internal/telemetry"
)

// Options carries the optional collaborators of a Server.
type Options struct {
	// Limiter guards /api/ai/* per client. Nil disables the check.
	Limiter     ratelimit.Limiter
	CORSOrigins []string
	Logger      logrus.FieldLogger
}

// Server wires HTTP handlers for the dashboard API.
type Server struct {
	posts   *posts.Service
	assist  *assist.Orchestrator
	limiter ratelimit.Limiter
	origins []string
	log     logrus.FieldLogger
	now     func() time.Time
}

// New constructs the API server.
func New(svc *posts.Service, orch *assist.Orchestrator, opts Options) *Server {
	log := opts.Logger
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &Server{
		posts:   svc,
		assist:  orch,
		limiter: opts.Limiter,
		origins: opts.CORSOrigins,
		log:     log,
		now:     time.Now,
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	if len(s.origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.origins,
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type", "Authorization"},
			ExposedHeaders: []string{"X-Request-Id"},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Mount("/metrics", telemetry.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Route("/posts", func(r chi.Router) {
			r.Post("/", s.handleCreatePost)
			r.Get("/drafts", s.handleListDrafts)
			r.Get("/scheduled", s.handleListScheduled)
			r.With(s.rateLimitAI).Post("/suggest-time", s.handleSuggestTime)
			r.Get("/{id}", s.handleGetPost)
			r.Put("/{id}", s.handleUpdatePost)
			r.Delete("/{id}", s.handleDeletePost)
		})
		r.With(s.rateLimitAI).Post("/drafts/enhance", s.handleEnhanceDraft)
		r.Route("/ai", func(r chi.Router) {
			r.Get("/providers", s.handleProviders)
			r.Group(func(r chi.Router) {
				r.Use(s.rateLimitAI)
				r.Post("/assist", s.handleAssist)
				r.Post("/research", s.handleResearch)
			})
		})
	})
	return r
}

// rateLimitAI spends one token of the caller's bucket. A limiter outage lets
// the request through.
func (s *Server) rateLimitAI(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter == nil {
			next.ServeHTTP(w, r)
			return
		}
		allowed, _, err := s.limiter.Allow(r.Context(), "ai:"+clientKey(r))
		if err != nil {
			s.log.WithError(err).Warn("ai rate limiter unavailable, allowing request")
			next.ServeHTTP(w, r)
			return
		}
		if !allowed {
			telemetry.RateLimitRejects.WithLabelValues("ai").Inc()
			writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "rate limited"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.WithFields(logrus.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      ww.Status(),
			"duration_ms": time.Since(started).Milliseconds(),
			"request_id":  middleware.GetReqID(r.Context()),
		}).Debug("http request")
	})
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type errorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	// Attempts lists what each provider did when all of them failed.
	Attempts []assist.Attempt `json:"attempts,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError maps domain errors onto status codes. summary is what the caller
// sees for server-side failures; the cause goes in details.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, summary string, err error) {
	var exhausted *assist.ExhaustedError
	switch {
	case errors.Is(err, models.ErrInvalidRequest):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
	case errors.Is(err, models.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "post not found"})
	case errors.Is(err, models.ErrConflict):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error()})
	case errors.As(err, &exhausted):
		s.log.WithError(err).WithField("request_id", middleware.GetReqID(r.Context())).Warn(summary)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: summary, Details: err.Error(), Attempts: exhausted.Attempts})
	default:
		s.log.WithError(err).WithField("request_id", middleware.GetReqID(r.Context())).Error(summary)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: summary, Details: err.Error()})
	}
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	if err := dec.Decode(dst); err != nil {
		return invalidBody
	}
	return nil
}

var invalidBody = fmt.Errorf("%w: request body must be a JSON object", models.ErrInvalidRequest)
