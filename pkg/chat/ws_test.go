package chat

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scribehub/scribe/pkg/auth"
)

type fakeAuthenticator struct{}

func (fakeAuthenticator) Authenticate(_ context.Context, _ string) (*auth.Claims, error) {
	return &auth.Claims{Username: "alice", Role: "USER"}, nil
}

func dialStream(t *testing.T, h *Handler) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.ServeStream(w, r, "handle-1")
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(10*time.Second)))
	return conn
}

func TestServeStreamAnnouncesSession(t *testing.T) {
	searcher := &fakeSearcher{}
	llm := &fakeStreamer{deltas: []string{"ok"}}
	o, _ := newOrchestrator(t, searcher, llm)
	h := NewHandler(fakeAuthenticator{}, o, NewSessionManager())

	conn := dialStream(t, h)

	var frame map[string]any
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, "session", frame["type"])
	assert.NotEmpty(t, frame["session_id"])
	assert.NotEmpty(t, frame["_internal_cmd_token"])
}

func TestServeStreamRejectsMessageWhileStreaming(t *testing.T) {
	searcher := &fakeSearcher{}
	llm := &fakeStreamer{deltas: []string{"a", "b", "c"}, delay: 100 * time.Millisecond}
	o, _ := newOrchestrator(t, searcher, llm)
	h := NewHandler(fakeAuthenticator{}, o, NewSessionManager())

	conn := dialStream(t, h)

	var sessFrame map[string]any
	require.NoError(t, conn.ReadJSON(&sessFrame))
	require.Equal(t, "session", sessFrame["type"])

	require.NoError(t, conn.WriteJSON(map[string]string{"message": "first"}))
	require.NoError(t, conn.WriteJSON(map[string]string{"message": "second"}))

	// The second message is refused while the first streams; the first
	// exchange still finishes cleanly.
	sawBusy := false
	chunks := 0
	for {
		var frame map[string]any
		require.NoError(t, conn.ReadJSON(&frame))
		if e, ok := frame["error"].(string); ok {
			assert.Contains(t, e, "already streaming")
			sawBusy = true
			continue
		}
		if _, ok := frame["chunk"]; ok {
			chunks++
			continue
		}
		if frame["type"] == "completion" {
			break
		}
	}
	assert.True(t, sawBusy)
	assert.Equal(t, 3, chunks)
}
