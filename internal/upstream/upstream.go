package upstream

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Request carries one streamed generation call to a provider.
type Request struct {
	System string // system instructions built by the prompt layer
	Prompt string // user's app description
	APIKey string // per-request credential override; empty means provider default
	Model  string // optional provider model override
}

// Event is a single item in a streamed response. Exactly one of Fragment or
// Err is set; a closed channel with no pending error means clean completion.
type Event struct {
	Fragment string
	Err      error
}

// IsError reports whether this event carries a stream failure.
func (e Event) IsError() bool {
	return e.Err != nil
}

// Client opens a single streamed generation request and exposes it as a
// finite, forward-only sequence of text fragments. The sequence is not
// restartable; cancelling ctx releases the underlying connection.
type Client interface {
	StreamGenerate(ctx context.Context, req Request) (<-chan Event, error)
}

// Registry maps provider names to clients.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]Client
}

// NewRegistry returns an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]Client)}
}

// Register adds a named provider client. Names are case-insensitive.
func (r *Registry) Register(name string, c Client) error {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return fmt.Errorf("upstream: provider name required")
	}
	if c == nil {
		return fmt.Errorf("upstream: nil client for provider %q", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.clients[name]; exists {
		return fmt.Errorf("upstream: provider %q already registered", name)
	}
	r.clients[name] = c
	return nil
}

// Get returns the client registered under name.
func (r *Registry) Get(name string) (Client, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[name]
	if !ok {
		return nil, fmt.Errorf("upstream: no provider %q registered", name)
	}
	return c, nil
}

// Names lists registered provider names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
