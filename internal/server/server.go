// Package server exposes the podcast note backend over HTTP.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"podnote/internal/domain"
	"podnote/internal/llm"
	"podnote/internal/notes"
)

type Parser interface {
	Parse(ctx context.Context, url string) (domain.PodcastMeta, error)
}

type Transcriber interface {
	Submit(ctx context.Context, audioURL string) (domain.TranscriptionJob, error)
	Poll(ctx context.Context, id string) (domain.TranscriptionJob, error)
}

type Publisher interface {
	Publish(ctx context.Context, slug string, content []byte) (domain.PublishResult, error)
	Get(ctx context.Context, slug string) (notes.Published, error)
}

type Discussions interface {
	List(ctx context.Context, slug string) ([]domain.Discussion, error)
	Save(ctx context.Context, slug, visitorID, question, answer string) (domain.Discussion, error)
}

// Dependencies wires the server to its collaborators.
type Dependencies struct {
	Parser      Parser
	Transcriber Transcriber
	Streamer    llm.Streamer
	Publisher   Publisher
	Discussions Discussions

	// Secret guards the creator endpoints. An empty secret rejects every
	// authenticated request.
	Secret                 string
	ChatMaxMessages        int
	DiscussContextMessages int
}

// Server is the HTTP API.
type Server struct {
	deps   Dependencies
	router chi.Router
}

func New(deps Dependencies) *Server {
	if deps.ChatMaxMessages <= 0 {
		deps.ChatMaxMessages = 20
	}
	if deps.DiscussContextMessages <= 0 {
		deps.DiscussContextMessages = 10
	}
	s := &Server{deps: deps}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Route("/podcast", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(s.requireSecret)
				r.Post("/parse", s.handleParse)
				r.Post("/transcribe", s.handleTranscribe)
				r.Get("/transcribe/status", s.handleTranscribeStatus)
				r.Post("/chat", s.handleChat)
				r.Post("/publish", s.handlePublish)
			})

			r.Get("/discuss", s.handleListDiscussions)
			r.Post("/discuss", s.handleDiscuss)
			r.Post("/discuss/save", s.handleSaveDiscussion)
			r.Get("/notes/{slug}", s.handleGetNote)
		})
	})

	s.router = r
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves on addr until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("server starting on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) requireSecret(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if s.deps.Secret == "" || subtle.ConstantTimeCompare([]byte(token), []byte(s.deps.Secret)) != 1 {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeFailure maps domain errors onto HTTP statuses.
func writeFailure(w http.ResponseWriter, op string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, domain.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrAlreadyParticipated):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		log.Printf("%s failed: %v", op, err)
	}
	writeError(w, status, err.Error())
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 4<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
