package httpserver

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/blueprintforge/blueprintd/internal/blueprint"
	"github.com/blueprintforge/blueprintd/internal/prompt"
)

const defaultListLimit = 50

// markdown renders stored blueprints for the html endpoint. GFM covers the
// tables and task lists the generators tend to emit.
var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
)

func (s *Server) handleGetBlueprint(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, err := s.store.GetByID(r.Context(), id)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, rec)
}

func (s *Server) handleListBlueprints(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user")
	if userID == "" {
		s.respondError(w, http.StatusBadRequest, errors.New("user query parameter is required"))
		return
	}
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			s.respondError(w, http.StatusBadRequest, errors.New("limit must be a positive integer"))
			return
		}
		limit = n
	}
	recs, err := s.store.ListForUser(r.Context(), userID, limit)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	if recs == nil {
		recs = []blueprint.Record{}
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"blueprints": recs})
}

func (s *Server) handleDeleteBlueprint(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.store.Delete(r.Context(), id); err != nil {
		s.respondStoreError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"deleted": id})
}

func (s *Server) handleRenderBlueprint(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, err := s.store.GetByID(r.Context(), id)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(rec.Content), &buf); err != nil {
		s.respondError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (s *Server) handlePlatforms(w http.ResponseWriter, r *http.Request) {
	type platformInfo struct {
		ID          string   `json:"id"`
		DisplayName string   `json:"displayName"`
		TechStack   []string `json:"techStack"`
	}
	var out []platformInfo
	for _, p := range prompt.SupportedPlatforms() {
		tpl, ok := s.prompts.Template(p)
		if !ok {
			continue
		}
		out = append(out, platformInfo{
			ID:          string(p),
			DisplayName: tpl.DisplayName,
			TechStack:   tpl.TechStack,
		})
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"platforms": out})
}

func (s *Server) handleRecentEvents(w http.ResponseWriter, r *http.Request) {
	if s.memSink == nil {
		s.respondError(w, http.StatusNotFound, errors.New("event buffer not enabled"))
		return
	}
	n := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			s.respondError(w, http.StatusBadRequest, errors.New("limit must be a positive integer"))
			return
		}
		n = parsed
	}
	events := s.memSink.Recent(n)
	s.respondJSON(w, http.StatusOK, map[string]any{
		"events":      events,
		"generatedAt": time.Now().UTC(),
	})
}

func (s *Server) respondStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, blueprint.ErrNotFound):
		s.respondError(w, http.StatusNotFound, errors.New("blueprint not found"))
	case errors.Is(err, blueprint.ErrStoreUnavailable):
		s.respondError(w, http.StatusServiceUnavailable, errors.New("blueprint store unavailable"))
	default:
		s.respondError(w, http.StatusInternalServerError, err)
	}
}
