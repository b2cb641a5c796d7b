package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"
)

// HTTPSink posts events to an external collector. Deliveries run in their own
// goroutine; a failed POST is logged and dropped, never surfaced.
type HTTPSink struct {
	endpoint   string
	httpClient *http.Client
	logger     *log.Logger
}

// NewHTTPSink creates a sink posting to the given collector URL.
func NewHTTPSink(endpoint string, logger *log.Logger) *HTTPSink {
	if logger == nil {
		logger = log.New(log.Writer(), "[analytics] ", log.LstdFlags|log.Lmicroseconds)
	}
	return &HTTPSink{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

// Track sends the event asynchronously.
func (s *HTTPSink) Track(name, userID string, properties map[string]any) {
	evt := Event{
		Name:       name,
		UserID:     userID,
		Properties: properties,
		OccurredAt: time.Now().UTC(),
	}
	go s.deliver(evt)
}

func (s *HTTPSink) deliver(evt Event) {
	body, err := json.Marshal(evt)
	if err != nil {
		s.logger.Printf("marshal event %s failed: %v", evt.Name, err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		s.logger.Printf("create event request failed: %v", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.logger.Printf("deliver event %s failed (non-fatal): %v", evt.Name, err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		s.logger.Printf("collector rejected event %s: status=%d", evt.Name, resp.StatusCode)
	}
}
