package httpserver

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/blueprintforge/blueprintd/internal/analytics"
	"github.com/blueprintforge/blueprintd/internal/blueprint"
	"github.com/blueprintforge/blueprintd/internal/blueprint/sqlite"
	"github.com/blueprintforge/blueprintd/internal/prompt"
	"github.com/blueprintforge/blueprintd/internal/quality"
	"github.com/blueprintforge/blueprintd/internal/testutil"
	"github.com/blueprintforge/blueprintd/internal/upstream"
)

// scriptedClient replays fragments then closes, or fails immediately.
type scriptedClient struct {
	fragments []string
	startErr  error
	streamErr error
}

func (c *scriptedClient) StreamGenerate(ctx context.Context, _ upstream.Request) (<-chan upstream.Event, error) {
	if c.startErr != nil {
		return nil, c.startErr
	}
	ch := make(chan upstream.Event)
	go func() {
		defer close(ch)
		for _, f := range c.fragments {
			select {
			case ch <- upstream.Event{Fragment: f}:
			case <-ctx.Done():
				return
			}
		}
		if c.streamErr != nil {
			select {
			case ch <- upstream.Event{Err: c.streamErr}:
			case <-ctx.Done():
			}
		}
	}()
	return ch, nil
}

func newTestServer(t *testing.T, client upstream.Client) (*Server, *sqlite.Store, *analytics.MemorySink) {
	t.Helper()
	store, err := sqlite.New(filepath.Join(t.TempDir(), "blueprints.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	registry := upstream.NewRegistry()
	registry.Register("scripted", client)

	mem := analytics.NewMemorySink(100)
	prompts := prompt.NewBuilder()
	srv := New(store, mem, registry, prompts, quality.NewKeywordAssessor(), nil, Options{
		Provider:   "scripted",
		MemorySink: mem,
	})
	return srv, store, mem
}

func generateBody(t *testing.T, prompt, platform string) *bytes.Reader {
	t.Helper()
	b, err := json.Marshal(map[string]string{
		"prompt":   prompt,
		"platform": platform,
		"userId":   "user-1",
	})
	require.NoError(t, err)
	return bytes.NewReader(b)
}

type sseFrame struct {
	Type        string `json:"type"`
	Content     string `json:"content"`
	FullContent string `json:"fullContent"`
	BlueprintID string `json:"blueprintId"`
	Error       string `json:"error"`
}

func readFrames(t *testing.T, body string) []sseFrame {
	t.Helper()
	var frames []sseFrame
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		line := sc.Text()
		payload, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		var f sseFrame
		require.NoError(t, json.Unmarshal([]byte(payload), &f))
		frames = append(frames, f)
	}
	return frames
}

func TestGenerateStreamsAndPersists(t *testing.T) {
	srv, store, mem := newTestServer(t, &scriptedClient{fragments: []string{"# Plan", "\n\nBuild it."}})
	ts := testutil.NewIPv4Server(t, srv.Router())
	defer ts.Close()

	resp, err := ts.Client().Post(ts.URL+"/api/v1/generate", "application/json",
		generateBody(t, "Build me a todo app", "cursor"))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	var sb strings.Builder
	buf := make([]byte, 1024)
	for {
		n, rerr := resp.Body.Read(buf)
		sb.Write(buf[:n])
		if rerr != nil {
			break
		}
	}
	frames := readFrames(t, sb.String())
	require.NotEmpty(t, frames)
	last := frames[len(frames)-1]
	require.Equal(t, "complete", last.Type)
	require.Equal(t, "# Plan\n\nBuild it.", last.FullContent)
	require.NotEmpty(t, last.BlueprintID)

	rec, err := store.GetByID(context.Background(), last.BlueprintID)
	require.NoError(t, err)
	require.Equal(t, blueprint.StatusComplete, rec.Status)
	require.Equal(t, "# Plan\n\nBuild it.", rec.Content)
	require.Greater(t, rec.Score, 0)

	require.GreaterOrEqual(t, mem.Len(), 2)
}

func TestGenerateRejectsBadRequestsBeforeStreaming(t *testing.T) {
	srv, _, _ := newTestServer(t, &scriptedClient{})

	cases := []struct {
		name string
		body string
	}{
		{"empty prompt", `{"prompt":"","platform":"cursor"}`},
		{"unknown platform", `{"prompt":"hi","platform":"emacs"}`},
		{"missing platform", `{"prompt":"hi"}`},
		{"oversized prompt", `{"prompt":"` + strings.Repeat("a", maxPromptLength+1) + `","platform":"cursor"}`},
		{"invalid json", `{"prompt":`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/generate", strings.NewReader(tc.body))
			w := httptest.NewRecorder()
			srv.Router().ServeHTTP(w, req)

			require.Equal(t, http.StatusBadRequest, w.Code)
			require.Contains(t, w.Header().Get("Content-Type"), "application/json")
			var payload map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
			require.NotEmpty(t, payload["error"])
		})
	}
}

func TestGenerateUpstreamFailureYieldsErrorFrame(t *testing.T) {
	srv, store, _ := newTestServer(t, &scriptedClient{startErr: upstream.ErrCredentialMissing})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/generate",
		generateBody(t, "Build me a todo app", "replit"))
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	// The stream opened, so the failure arrives as a frame, not a status.
	require.Equal(t, http.StatusOK, w.Code)
	frames := readFrames(t, w.Body.String())
	require.Len(t, frames, 1)
	require.Equal(t, "error", frames[0].Type)
	require.NotEmpty(t, frames[0].Error)
	require.NotEmpty(t, frames[0].BlueprintID)

	rec, err := store.GetByID(context.Background(), frames[0].BlueprintID)
	require.NoError(t, err)
	require.Equal(t, blueprint.StatusError, rec.Status)
}

func TestGenerateMidStreamErrorKeepsPartialContent(t *testing.T) {
	srv, store, _ := newTestServer(t, &scriptedClient{
		fragments: []string{"partial "},
		streamErr: upstream.Errorf(upstream.KindRateLimited, "rate limit exceeded"),
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/generate",
		generateBody(t, "Build me a todo app", "bolt"))
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	frames := readFrames(t, w.Body.String())
	require.NotEmpty(t, frames)
	last := frames[len(frames)-1]
	require.Equal(t, "error", last.Type)

	rec, err := store.GetByID(context.Background(), last.BlueprintID)
	require.NoError(t, err)
	require.Equal(t, blueprint.StatusError, rec.Status)
	require.Equal(t, "partial ", rec.Content)
}

func TestBlueprintCRUD(t *testing.T) {
	srv, store, _ := newTestServer(t, &scriptedClient{})
	ctx := context.Background()

	rec, err := store.Create(ctx, blueprint.NewRecordParams{
		UserID: "user-1", Prompt: "p", Platform: "cursor",
	})
	require.NoError(t, err)
	_, err = store.UpdateContent(ctx, rec.ID, "# Title\n\nbody", blueprint.StatusComplete)
	require.NoError(t, err)

	router := srv.Router()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/blueprints/"+rec.ID, nil))
	require.Equal(t, http.StatusOK, w.Code)
	var got blueprint.Record
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Equal(t, rec.ID, got.ID)
	require.Equal(t, blueprint.StatusComplete, got.Status)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/blueprints/?user=user-1", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), rec.ID)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/blueprints/"+rec.ID+"/html", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Header().Get("Content-Type"), "text/html")
	require.Contains(t, w.Body.String(), "<h1")

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/v1/blueprints/"+rec.ID, nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/blueprints/"+rec.ID, nil))
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestPlatformsEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t, &scriptedClient{})

	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/platforms", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var payload struct {
		Platforms []struct {
			ID          string   `json:"id"`
			DisplayName string   `json:"displayName"`
			TechStack   []string `json:"techStack"`
		} `json:"platforms"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	require.Len(t, payload.Platforms, 6)
	ids := make([]string, 0, len(payload.Platforms))
	for _, p := range payload.Platforms {
		require.NotEmpty(t, p.DisplayName)
		require.NotEmpty(t, p.TechStack)
		ids = append(ids, p.ID)
	}
	require.Contains(t, ids, "cursor")
	require.Contains(t, ids, "v0")
}

func TestRecentEventsEndpoint(t *testing.T) {
	srv, _, mem := newTestServer(t, &scriptedClient{})
	mem.Track("blueprint_generation_started", "user-1", map[string]any{"platform": "cursor"})

	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/events/recent", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "blueprint_generation_started")
}

func TestHealthz(t *testing.T) {
	srv, _, _ := newTestServer(t, &scriptedClient{})

	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"status":"ok"`)
}
