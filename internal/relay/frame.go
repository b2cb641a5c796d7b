package relay

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

// FrameType discriminates the browser-facing stream frame union.
type FrameType string

const (
	FrameChunk    FrameType = "chunk"
	FrameComplete FrameType = "complete"
	FrameError    FrameType = "error"
)

// Frame is one SSE event on the wire. Frames are append-only: once emitted
// they are never retracted, and a stream ends with exactly one complete or
// error frame. The upstream provider's own sentinels never appear here.
type Frame struct {
	Type        FrameType `json:"type"`
	Content     string    `json:"content,omitempty"`
	FullContent string    `json:"fullContent,omitempty"`
	BlueprintID string    `json:"blueprintId,omitempty"`
	Error       string    `json:"error,omitempty"`
}

// NewChunkFrame builds an incremental content frame.
func NewChunkFrame(blueprintID, content, fullContent string) Frame {
	return Frame{
		Type:        FrameChunk,
		Content:     content,
		FullContent: fullContent,
		BlueprintID: blueprintID,
	}
}

// NewCompleteFrame builds the terminal success frame.
func NewCompleteFrame(blueprintID, fullContent string) Frame {
	return Frame{
		Type:        FrameComplete,
		FullContent: fullContent,
		BlueprintID: blueprintID,
	}
}

// NewErrorFrame builds the terminal failure frame. blueprintID may be empty
// when record allocation itself failed.
func NewErrorFrame(blueprintID, message string) Frame {
	return Frame{
		Type:        FrameError,
		Error:       message,
		BlueprintID: blueprintID,
	}
}

// FrameWriter delivers frames to the downstream client. A write error means
// the client is gone; the pipeline stops pulling upstream when it sees one.
type FrameWriter interface {
	WriteFrame(Frame) error
}

// ErrStreamingUnsupported is returned when the ResponseWriter cannot flush.
var ErrStreamingUnsupported = errors.New("relay: response writer does not support streaming")

// SSEWriter frames events as `data: <json>\n\n` on an HTTP response.
type SSEWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewSSEWriter sets the SSE response headers and returns a writer. Call it
// only after request validation: headers are committed here.
func NewSSEWriter(w http.ResponseWriter) (*SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}
	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &SSEWriter{w: w, flusher: flusher}, nil
}

// WriteFrame encodes and flushes one frame.
func (s *SSEWriter) WriteFrame(f Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(s.w, "data: "); err != nil {
		return err
	}
	if _, err := s.w.Write(data); err != nil {
		return err
	}
	if _, err := io.WriteString(s.w, "\n\n"); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
