package analytics

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/blueprintforge/blueprintd/internal/testutil"
)

func TestMemorySinkDropsOldestAtCapacity(t *testing.T) {
	s := NewMemorySink(3)
	for i := 0; i < 5; i++ {
		s.Track(fmt.Sprintf("event-%d", i), "u", nil)
	}
	require.Equal(t, 3, s.Len())

	recent := s.Recent(10)
	require.Len(t, recent, 3)
	// Newest first; events 0 and 1 were evicted.
	require.Equal(t, "event-4", recent[0].Name)
	require.Equal(t, "event-3", recent[1].Name)
	require.Equal(t, "event-2", recent[2].Name)
}

func TestMemorySinkRecentLimit(t *testing.T) {
	s := NewMemorySink(10)
	s.Track("a", "u", nil)
	s.Track("b", "u", nil)

	require.Len(t, s.Recent(1), 1)
	require.Equal(t, "b", s.Recent(1)[0].Name)
	// Zero or negative means "everything buffered".
	require.Len(t, s.Recent(0), 2)
}

func TestMemorySinkConcurrentTrack(t *testing.T) {
	s := NewMemorySink(100)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				s.Track("concurrent", "u", nil)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 100, s.Len())
}

func TestMultiSinkFanout(t *testing.T) {
	a := NewMemorySink(10)
	b := NewMemorySink(10)
	m := MultiSink{a, b, nil}

	m.Track("fanned", "u", map[string]any{"k": "v"})
	require.Equal(t, 1, a.Len())
	require.Equal(t, 1, b.Len())
}

func TestHTTPSinkDeliversEvents(t *testing.T) {
	var mu sync.Mutex
	var received []Event
	server := testutil.NewIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var evt Event
		require.NoError(t, json.NewDecoder(r.Body).Decode(&evt))
		mu.Lock()
		received = append(received, evt)
		mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	sink := NewHTTPSink(server.URL, nil)
	sink.Track("blueprint_generation_started", "user-1", map[string]any{"platform": "cursor"})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, "blueprint_generation_started", received[0].Name)
	require.Equal(t, "user-1", received[0].UserID)
}

func TestHTTPSinkFailureDoesNotPanic(t *testing.T) {
	sink := NewHTTPSink("http://127.0.0.1:1/unreachable", nil)
	require.NotPanics(t, func() {
		sink.Track("lost", "u", nil)
	})
}
