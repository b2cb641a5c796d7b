// Package streamclient reconstructs a blueprint from a server-sent event
// stream. It is the consumer-side counterpart of the relay's frame writer,
// usable from Go tooling and tests that talk to the generate endpoint.
package streamclient

import (
	"encoding/json"
	"io"
	"strings"
	"sync"

	"github.com/blueprintforge/blueprintd/internal/relay"
)

// Status tracks where a session is in its lifetime.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusGenerating Status = "generating"
	StatusComplete   Status = "complete"
	StatusError      Status = "error"
)

// Snapshot is a point-in-time copy of session state. Content is preserved
// across a terminal error so partial output stays readable.
type Snapshot struct {
	Content     string
	Status      Status
	BlueprintID string
	Err         error
}

// Session consumes one text/event-stream body. A session is single-use:
// once Run returns the state is frozen.
type Session struct {
	mu       sync.Mutex
	state    Snapshot
	body     io.ReadCloser
	onUpdate func(Snapshot)
	closed   bool
}

// New wraps a stream body. onUpdate may be nil; when set it is invoked after
// every state change, on the Run goroutine.
func New(body io.ReadCloser, onUpdate func(Snapshot)) *Session {
	return &Session{
		state:    Snapshot{Status: StatusIdle},
		body:     body,
		onUpdate: onUpdate,
	}
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Close releases the underlying reader. Any in-flight Run unblocks with a
// read error and the state freezes where it stood.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	return s.body.Close()
}

// Run reads the stream to its terminal frame. It returns nil on a complete
// frame and the stream error otherwise. Run blocks; callers wanting
// incremental updates use the onUpdate callback.
func (s *Session) Run() error {
	defer s.Close()
	s.transition(func(st *Snapshot) { st.Status = StatusGenerating })

	buf := make([]byte, 4096)
	var leftover string
	for {
		n, err := s.body.Read(buf)
		if n > 0 {
			data := leftover + string(buf[:n])
			lines := strings.Split(data, "\n")
			leftover = lines[len(lines)-1]
			for _, line := range lines[:len(lines)-1] {
				if done := s.consumeLine(line); done {
					return s.terminalErr()
				}
			}
		}
		if err != nil {
			// Stream ended without a terminal frame. A clean EOF after a
			// complete frame never reaches here; anything else is a failure.
			s.transition(func(st *Snapshot) {
				st.Status = StatusError
				st.Err = err
			})
			return err
		}
	}
}

// consumeLine handles one SSE line, returning true on a terminal frame.
func (s *Session) consumeLine(line string) bool {
	line = strings.TrimRight(line, "\r")
	payload, ok := strings.CutPrefix(line, "data: ")
	if !ok {
		return false
	}
	var f relay.Frame
	if err := json.Unmarshal([]byte(payload), &f); err != nil {
		// Not one of ours. Treat the payload as literal content rather than
		// dropping bytes on the floor.
		s.transition(func(st *Snapshot) { st.Content += payload })
		return false
	}
	switch f.Type {
	case relay.FrameChunk:
		s.transition(func(st *Snapshot) {
			st.Content += f.Content
			if f.BlueprintID != "" {
				st.BlueprintID = f.BlueprintID
			}
		})
	case relay.FrameComplete:
		s.transition(func(st *Snapshot) {
			if f.FullContent != "" {
				st.Content = f.FullContent
			}
			if f.BlueprintID != "" {
				st.BlueprintID = f.BlueprintID
			}
			st.Status = StatusComplete
		})
		return true
	case relay.FrameError:
		s.transition(func(st *Snapshot) {
			if f.BlueprintID != "" {
				st.BlueprintID = f.BlueprintID
			}
			st.Status = StatusError
			st.Err = &StreamError{Message: f.Error}
		})
		return true
	default:
		// Valid JSON but not a frame we know. Same fallback as an
		// undecodable payload: keep the bytes.
		s.transition(func(st *Snapshot) { st.Content += payload })
	}
	return false
}

func (s *Session) transition(apply func(*Snapshot)) {
	s.mu.Lock()
	apply(&s.state)
	snap := s.state
	s.mu.Unlock()
	if s.onUpdate != nil {
		s.onUpdate(snap)
	}
}

func (s *Session) terminalErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Err
}

// StreamError is a server-reported stream failure.
type StreamError struct {
	Message string
}

func (e *StreamError) Error() string {
	if e.Message == "" {
		return "stream error"
	}
	return e.Message
}
