package server

import (
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"podnote/internal/domain"
	"podnote/internal/llm"
	"podnote/internal/notes"
	"podnote/internal/render"
)

func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL string `json:"url"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	meta, err := s.deps.Parser.Parse(r.Context(), req.URL)
	if err != nil {
		writeFailure(w, "parse", err)
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AudioURL string `json:"audioUrl"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.AudioURL) == "" {
		writeError(w, http.StatusBadRequest, "audioUrl is required")
		return
	}

	job, err := s.deps.Transcriber.Submit(r.Context(), req.AudioURL)
	if err != nil {
		writeFailure(w, "transcribe", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"transcriptId": job.TranscriptID,
		"status":       job.Status,
		"cached":       job.Cached,
	})
}

func (s *Server) handleTranscribeStatus(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}

	job, err := s.deps.Transcriber.Poll(r.Context(), id)
	if err != nil {
		writeFailure(w, "transcribe status", err)
		return
	}
	resp := map[string]any{"status": job.Status}
	switch job.Status {
	case domain.TranscriptionCompleted:
		resp["text"] = job.Text
	case domain.TranscriptionError:
		resp["error"] = job.Error
	}
	writeJSON(w, http.StatusOK, resp)
}

type chatRequest struct {
	System   string               `json:"system"`
	Messages []domain.ChatMessage `json:"messages"`
	Slug     string               `json:"slug,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Messages) == 0 || len(req.Messages) > s.deps.ChatMaxMessages {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("messages must contain 1 to %d entries", s.deps.ChatMaxMessages))
		return
	}
	s.stream(w, r, req.System, req.Messages)
}

func (s *Server) handleDiscuss(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Messages) == 0 || len(req.Messages) > s.deps.ChatMaxMessages {
		writeError(w, http.StatusBadRequest, "Too many messages")
		return
	}

	system := req.System
	if req.Slug != "" {
		published, err := s.deps.Publisher.Get(r.Context(), req.Slug)
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "note not found")
			return
		}
		if err != nil {
			writeFailure(w, "discuss", err)
			return
		}
		fm, body, err := notes.Parse([]byte(published.Markdown))
		if err != nil {
			writeFailure(w, "discuss", err)
			return
		}
		system = llm.DiscussionPrompt(fm.Title, fm.Description, body)
	}

	s.stream(w, r, system, llm.Recent(req.Messages, s.deps.DiscussContextMessages))
}

// stream proxies a completion as a chunked text/plain body. Failures before
// the first chunk are reported as JSON errors.
func (s *Server) stream(w http.ResponseWriter, r *http.Request, system string, messages []domain.ChatMessage) {
	flusher, _ := w.(http.Flusher)
	started := false

	err := s.deps.Streamer.Stream(r.Context(), system, messages, func(chunk string) error {
		if !started {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.Header().Set("Cache-Control", "no-cache")
			w.WriteHeader(http.StatusOK)
			started = true
		}
		if _, err := w.Write([]byte(chunk)); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	})
	if err == nil {
		if !started {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.WriteHeader(http.StatusOK)
		}
		return
	}
	if !started {
		writeFailure(w, "chat", err)
		return
	}
	if r.Context().Err() == nil {
		log.Printf("chat stream interrupted: %v", err)
	}
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Slug          string `json:"slug"`
		ContentBase64 string `json:"contentBase64"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Slug == "" || req.ContentBase64 == "" {
		writeError(w, http.StatusBadRequest, "slug and contentBase64 are required")
		return
	}
	content, err := base64.StdEncoding.DecodeString(req.ContentBase64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "contentBase64 is not valid base64")
		return
	}

	result, err := s.deps.Publisher.Publish(r.Context(), req.Slug, content)
	if err != nil {
		writeFailure(w, "publish", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleListDiscussions(w http.ResponseWriter, r *http.Request) {
	slug := r.URL.Query().Get("slug")
	if slug == "" {
		writeError(w, http.StatusBadRequest, "slug is required")
		return
	}
	list, err := s.deps.Discussions.List(r.Context(), slug)
	if err != nil {
		writeFailure(w, "list discussions", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleSaveDiscussion(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Slug      string `json:"slug"`
		VisitorID string `json:"visitorId"`
		Question  string `json:"question"`
		Answer    string `json:"answer"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Slug == "" || req.VisitorID == "" || req.Question == "" || req.Answer == "" {
		writeError(w, http.StatusBadRequest, "Missing required fields")
		return
	}

	saved, err := s.deps.Discussions.Save(r.Context(), req.Slug, req.VisitorID, req.Question, req.Answer)
	if err != nil {
		writeFailure(w, "save discussion", err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (s *Server) handleGetNote(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	published, err := s.deps.Publisher.Get(r.Context(), slug)
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "note not found")
		return
	}
	if err != nil {
		writeFailure(w, "get note", err)
		return
	}

	_, body, err := notes.Parse([]byte(published.Markdown))
	if err != nil {
		body = published.Markdown
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"slug":     published.Slug,
		"path":     published.Path,
		"markdown": published.Markdown,
		"html":     render.HTML(body),
	})
}
