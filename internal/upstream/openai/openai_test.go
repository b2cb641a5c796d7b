package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/blueprintforge/blueprintd/internal/testutil"
	"github.com/blueprintforge/blueprintd/internal/upstream"
)

func TestStreamGenerate_Success(t *testing.T) {
	server := testutil.NewIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if accept := r.Header.Get("Accept"); accept != "text/event-stream" {
			t.Errorf("Accept header = %q, want text/event-stream", accept)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer sk-test" {
			t.Errorf("Authorization = %q, want Bearer sk-test", auth)
		}

		var body struct {
			Model    string `json:"model"`
			Stream   bool   `json:"stream"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		raw, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(raw, &body); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		if !body.Stream {
			t.Error("expected stream=true")
		}
		if len(body.Messages) != 2 || body.Messages[0].Role != "system" {
			t.Errorf("expected system+user messages, got %+v", body.Messages)
		}

		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		chunks := []string{
			`data: {"choices":[{"delta":{"content":"Hello"},"finish_reason":null}]}`,
			`data: {"choices":[{"delta":{"content":" world"},"finish_reason":null}]}`,
			`data: {"choices":[{"delta":{},"finish_reason":"stop"}]}`,
			`data: [DONE]`,
		}
		for _, c := range chunks {
			fmt.Fprintf(w, "%s\n\n", c)
			flusher.Flush()
			time.Sleep(5 * time.Millisecond)
		}
	}))
	defer server.Close()

	c := New(Config{APIKey: "sk-test", BaseURL: server.URL})
	events, err := c.StreamGenerate(context.Background(), upstream.Request{
		System: "You write blueprints.",
		Prompt: "Build a todo app",
	})
	if err != nil {
		t.Fatalf("StreamGenerate() error = %v", err)
	}

	var content string
	for ev := range events {
		if ev.IsError() {
			t.Fatalf("received error event: %v", ev.Err)
		}
		content += ev.Fragment
	}
	if content != "Hello world" {
		t.Errorf("accumulated content = %q, want 'Hello world'", content)
	}
}

func TestStreamGenerate_DoneSentinelAbsorbed(t *testing.T) {
	server := testutil.NewIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, `data: {"choices":[{"delta":{"content":"x"},"finish_reason":null}]}`+"\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	c := New(Config{APIKey: "sk-test", BaseURL: server.URL})
	events, err := c.StreamGenerate(context.Background(), upstream.Request{Prompt: "hi"})
	if err != nil {
		t.Fatalf("StreamGenerate() error = %v", err)
	}
	for ev := range events {
		if ev.IsError() {
			t.Fatalf("unexpected error event: %v", ev.Err)
		}
		if ev.Fragment == "[DONE]" {
			t.Error("[DONE] sentinel leaked to the consumer")
		}
	}
}

func TestStreamGenerate_MissingCredential(t *testing.T) {
	c := New(Config{})
	_, err := c.StreamGenerate(context.Background(), upstream.Request{Prompt: "hi"})
	if !errors.Is(err, upstream.ErrCredentialMissing) {
		t.Fatalf("error = %v, want ErrCredentialMissing", err)
	}
}

func TestStreamGenerate_EmptyPrompt(t *testing.T) {
	c := New(Config{APIKey: "sk-test"})
	_, err := c.StreamGenerate(context.Background(), upstream.Request{})
	if err == nil {
		t.Fatal("expected error for empty prompt")
	}
}

func TestStreamGenerate_RateLimit(t *testing.T) {
	server := testutil.NewIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{"message": "rate limit exceeded", "type": "requests"},
		})
	}))
	defer server.Close()

	c := New(Config{APIKey: "sk-test", BaseURL: server.URL})
	_, err := c.StreamGenerate(context.Background(), upstream.Request{Prompt: "hi"})
	if err == nil {
		t.Fatal("expected error")
	}
	if kind := upstream.KindOf(err); kind != upstream.KindRateLimited {
		t.Errorf("kind = %s, want rate_limited", kind)
	}
}
