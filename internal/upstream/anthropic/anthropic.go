package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/blueprintforge/blueprintd/internal/upstream"
)

// Ensure Client implements upstream.Client.
var _ upstream.Client = (*Client)(nil)

const defaultModel = "claude-3-5-sonnet-20241022"

// Client streams generation requests against the Anthropic Messages API.
type Client struct {
	apiKey     string
	baseURL    string
	version    string
	model      string
	maxTokens  int
	httpClient *http.Client
}

// Config holds configuration for the Anthropic client. APIKey may be empty
// when every request supplies its own credential.
type Config struct {
	APIKey         string
	BaseURL        string // optional, defaults to https://api.anthropic.com
	Version        string // optional, defaults to 2023-06-01
	Model          string // optional, defaults to claude-3-5-sonnet
	MaxTokens      int    // optional, defaults to 8192
	RequestTimeout time.Duration
}

// New creates an Anthropic streaming client.
func New(cfg Config) *Client {
	baseURL := strings.TrimSuffix(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}
	version := strings.TrimSpace(cfg.Version)
	if version == "" {
		version = "2023-06-01"
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 8192
	}
	timeout := cfg.RequestTimeout
	if timeout == 0 {
		timeout = 5 * time.Minute
	}
	return &Client{
		apiKey:    strings.TrimSpace(cfg.APIKey),
		baseURL:   baseURL,
		version:   version,
		model:     model,
		maxTokens: maxTokens,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// StreamGenerate opens a streamed /v1/messages call and forwards text deltas
// as fragments. The returned channel closes on message_stop or EOF.
func (c *Client) StreamGenerate(ctx context.Context, req upstream.Request) (<-chan upstream.Event, error) {
	apiKey := strings.TrimSpace(req.APIKey)
	if apiKey == "" {
		apiKey = c.apiKey
	}
	if apiKey == "" {
		return nil, upstream.ErrCredentialMissing
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, errors.New("anthropic: prompt required")
	}

	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = c.model
	}
	payload := map[string]interface{}{
		"model":      model,
		"max_tokens": c.maxTokens,
		"stream":     true,
		"messages": []map[string]interface{}{
			{
				"role": "user",
				"content": []map[string]string{
					{"type": "text", "text": req.Prompt},
				},
			},
		},
	}
	if strings.TrimSpace(req.System) != "" {
		payload["system"] = req.System
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("anthropic: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("anthropic: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("x-api-key", apiKey)
	httpReq.Header.Set("anthropic-version", c.version)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, upstream.NewError(upstream.KindUpstreamUnavailable, "anthropic: send request: "+err.Error(), err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, upstream.NewError(upstream.ClassifyStatus(resp.StatusCode), upstreamErrorMessage(resp.StatusCode, data), nil)
	}

	ch := make(chan upstream.Event, 10)
	go func() {
		defer close(ch)
		defer resp.Body.Close()
		reader := resp.Body
		buf := make([]byte, 8192)
		leftover := ""
		for {
			select {
			case <-ctx.Done():
				ch <- upstream.Event{Err: ctx.Err()}
				return
			default:
			}

			n, err := reader.Read(buf)
			if n > 0 {
				data := leftover + string(buf[:n])
				lines := strings.Split(data, "\n")
				leftover = lines[len(lines)-1]
				lines = lines[:len(lines)-1]
				var eventType string
				for _, line := range lines {
					line = strings.TrimSpace(line)
					if line == "" {
						continue
					}
					if strings.HasPrefix(line, "event:") {
						eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
						continue
					}
					if !strings.HasPrefix(line, "data:") {
						continue
					}
					payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
					if payload == "" || payload == "{}" || payload == "[DONE]" {
						continue
					}
					var evt streamEvent
					if perr := json.Unmarshal([]byte(payload), &evt); perr != nil {
						// Keep-alive and diagnostic lines show up on some
						// deployments; skip them instead of aborting.
						continue
					}
					if evt.Type == "content_block_delta" && evt.Delta.Type == "text_delta" && evt.Delta.Text != "" {
						ch <- upstream.Event{Fragment: evt.Delta.Text}
						continue
					}
					if evt.Type == "error" {
						ch <- upstream.Event{Err: upstream.Errorf(upstream.KindUpstreamUnavailable, "anthropic: %s", evt.Error.Message)}
						return
					}
					if evt.Type == "message_stop" || eventType == "message_stop" {
						return
					}
				}
			}
			if err != nil {
				if err == io.EOF {
					return
				}
				ch <- upstream.Event{Err: upstream.NewError(upstream.KindUpstreamUnavailable, "anthropic: read stream: "+err.Error(), err)}
				return
			}
		}
	}()
	return ch, nil
}

// streamEvent is the minimal schema we care about from the SSE stream.
type streamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text,omitempty"`
	} `json:"delta,omitempty"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func upstreamErrorMessage(status int, body []byte) string {
	var errResp struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		return fmt.Sprintf("anthropic: %s (type=%s)", errResp.Error.Message, errResp.Error.Type)
	}
	return fmt.Sprintf("anthropic: http %d: %s", status, string(body))
}
