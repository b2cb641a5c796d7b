package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/blueprintforge/blueprintd/internal/blueprint"
	"github.com/blueprintforge/blueprintd/internal/prompt"
	"github.com/blueprintforge/blueprintd/internal/relay"
)

// maxPromptLength bounds the request prompt in characters.
const maxPromptLength = 8192

type generateRequest struct {
	Prompt   string `json:"prompt"`
	Platform string `json:"platform"`
	UserID   string `json:"userId"`
	APIKey   string `json:"apiKey"`
}

// validate returns a client-facing error for a malformed request. The
// response must be a plain 400 here: SSE headers are only committed once
// the request is known good.
func (req *generateRequest) validate(prompts *prompt.Builder) error {
	if req.Prompt == "" {
		return errors.New("prompt is required")
	}
	if len(req.Prompt) > maxPromptLength {
		return fmt.Errorf("prompt exceeds %d characters", maxPromptLength)
	}
	if req.Platform == "" {
		return errors.New("platform is required")
	}
	if !prompts.Supported(req.Platform) {
		return fmt.Errorf("unsupported platform %q", req.Platform)
	}
	return nil
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	reqStart := time.Now()

	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, errors.New("invalid JSON body"))
		return
	}
	if err := req.validate(s.prompts); err != nil {
		s.respondError(w, http.StatusBadRequest, err)
		return
	}

	client, err := s.registry.Get(s.provider)
	if err != nil {
		s.respondError(w, http.StatusServiceUnavailable, err)
		return
	}

	sw, err := relay.NewSSEWriter(w)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err)
		return
	}

	platform := prompt.Platform(req.Platform)
	res := s.pipeline.Run(r.Context(), sw, relay.RunParams{
		UserID:   req.UserID,
		Prompt:   req.Prompt,
		Platform: req.Platform,
		System:   s.prompts.Build(platform),
		APIKey:   req.APIKey,
		Client:   client,
	})

	if res.Status == blueprint.StatusComplete && s.assessor != nil {
		score := s.assessor.Score(res.Content)
		if err := s.store.SetScore(r.Context(), res.BlueprintID, score); err != nil {
			s.logger.Printf("generate.set_score failed id=%s err=%v", res.BlueprintID, err)
		}
	}

	s.logger.Printf("generate platform=%s status=%s id=%s total_ms=%d",
		req.Platform, res.Status, res.BlueprintID, time.Since(reqStart).Milliseconds())
}
