package relay

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSSEWriterSetsHeadersAndFraming(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := NewSSEWriter(rec)
	require.NoError(t, err)

	require.NoError(t, w.WriteFrame(NewChunkFrame("bp-1", "Hi", "Hi")))
	require.NoError(t, w.WriteFrame(NewCompleteFrame("bp-1", "Hi")))

	require.Contains(t, rec.Header().Get("Content-Type"), "text/event-stream")
	require.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	require.True(t, rec.Flushed)

	body := rec.Body.String()
	events := strings.Split(strings.TrimSuffix(body, "\n\n"), "\n\n")
	require.Len(t, events, 2)
	for _, ev := range events {
		require.True(t, strings.HasPrefix(ev, "data: "))
		var f Frame
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(ev, "data: ")), &f))
		require.Equal(t, "bp-1", f.BlueprintID)
	}
}

func TestFrameJSONShape(t *testing.T) {
	b, err := json.Marshal(NewErrorFrame("", "boom"))
	require.NoError(t, err)
	// Optional fields are omitted, never null.
	require.JSONEq(t, `{"type":"error","error":"boom"}`, string(b))

	b, err = json.Marshal(NewChunkFrame("bp", "a", "abc"))
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"chunk","content":"a","fullContent":"abc","blueprintId":"bp"}`, string(b))
}
