package openai

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

const defaultModel = "gpt-4o"

// Client streams generation requests against the OpenAI chat completions API.
type Client struct {
	apiKey     string
	baseURL    string
	org        string
	model      string
	httpClient *http.Client
}

// Config holds configuration for the OpenAI client.
type Config struct {
	APIKey         string
	BaseURL        string // optional, defaults to https://api.openai.com/v1
	Organization   string // optional
	Model          string // optional, defaults to gpt-4o
	RequestTimeout time.Duration
}

// New creates an OpenAI streaming client.
func New(cfg Config) *Client {
	baseURL := strings.TrimSuffix(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}
	timeout := cfg.RequestTimeout
	if timeout == 0 {
		timeout = 5 * time.Minute
	}
	return &Client{
		apiKey:  strings.TrimSpace(cfg.APIKey),
		baseURL: baseURL,
		org:     strings.TrimSpace(cfg.Organization),
		model:   model,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// StreamGenerate opens a streamed /chat/completions call and forwards content
// deltas as fragments. The [DONE] sentinel is absorbed here and never reaches
// the caller.
func (c *Client) StreamGenerate(ctx context.Context, req upstream.Request) (<-chan upstream.Event, error) {
	apiKey := strings.TrimSpace(req.APIKey)
	if apiKey == "" {
		apiKey = c.apiKey
	}
	if apiKey == "" {
		return nil, upstream.ErrCredentialMissing
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, errors.New("openai: prompt required")
	}

	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = c.model
	}
	messages := []map[string]string{}
	if strings.TrimSpace(req.System) != "" {
		messages = append(messages, map[string]string{"role": "system", "content": req.System})
	}
	messages = append(messages, map[string]string{"role": "user", "content": req.Prompt})
	payload := map[string]interface{}{
		"model":    model,
		"messages": messages,
		"stream":   true,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("openai: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("openai: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	if c.org != "" {
		httpReq.Header.Set("OpenAI-Organization", c.org)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, upstream.NewError(upstream.KindUpstreamUnavailable, "openai: send request: "+err.Error(), err)
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
				for _, line := range lines {
					line = strings.TrimSpace(line)
					if line == "" || !strings.HasPrefix(line, "data:") {
						continue
					}
					payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
					if payload == "[DONE]" {
						return
					}
					var chunk streamChunk
					if perr := json.Unmarshal([]byte(payload), &chunk); perr != nil {
						// Tolerate keep-alive and comment lines; other
						// providers behind compatible endpoints emit them.
						continue
					}
					if len(chunk.Choices) == 0 {
						continue
					}
					if text := chunk.Choices[0].Delta.Content; text != "" {
						ch <- upstream.Event{Fragment: text}
					}
					if fr := chunk.Choices[0].FinishReason; fr != nil && *fr != "" {
						return
					}
				}
			}
			if err != nil {
				if err == io.EOF {
					return
				}
				ch <- upstream.Event{Err: upstream.NewError(upstream.KindUpstreamUnavailable, "openai: read stream: "+err.Error(), err)}
				return
			}
		}
	}()
	return ch, nil
}

// streamChunk is the minimal streaming chunk schema.
type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content,omitempty"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

func upstreamErrorMessage(status int, body []byte) string {
	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		return fmt.Sprintf("openai: %s (type=%s, code=%s)", errResp.Error.Message, errResp.Error.Type, errResp.Error.Code)
	}
	return fmt.Sprintf("openai: http %d: %s", status, string(body))
}
