package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/scribehub/scribe/internal/logger"
	"github.com/scribehub/scribe/pkg/auth"
)

// Authenticator resolves the session handle carried in the stream path.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*auth.Claims, error)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The handle in the path authenticates the stream; origins are not
	// restricted beyond that.
	CheckOrigin: func(*http.Request) bool { return true },
}

// inboundFrame is what clients send: either a user message or a control
// command.
type inboundFrame struct {
	Type             string `json:"type,omitempty"`
	Message          string `json:"message,omitempty"`
	InternalCmdToken string `json:"_internal_cmd_token,omitempty"`
}

// sessionFrame announces the session and its server-issued stop token.
type sessionFrame struct {
	Type             string `json:"type"`
	SessionID        string `json:"session_id"`
	InternalCmdToken string `json:"_internal_cmd_token"`
	Timestamp        string `json:"timestamp"`
}

// Handler owns the bidirectional chat endpoint.
type Handler struct {
	authenticator Authenticator
	orchestrator  *Orchestrator
	sessions      *SessionManager
}

// NewHandler wires the chat stream handler.
func NewHandler(authenticator Authenticator, orchestrator *Orchestrator, sessions *SessionManager) *Handler {
	return &Handler{
		authenticator: authenticator,
		orchestrator:  orchestrator,
		sessions:      sessions,
	}
}

// ServeStream upgrades the connection and runs the session until the client
// disconnects. handle is the session token from the final path segment.
func (h *Handler) ServeStream(w http.ResponseWriter, r *http.Request, handle string) {
	ctx := r.Context()

	claims, err := h.authenticator.Authenticate(ctx, handle)
	if err != nil {
		http.Error(w, "invalid session handle", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WarnCtx(ctx, "websocket upgrade failed", logger.KeyError, err)
		return
	}
	defer conn.Close()

	sess := h.sessions.Create(handle)
	defer h.sessions.Remove(handle)

	var writeMu sync.Mutex
	send := func(frame any) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteJSON(frame)
	}

	err = send(sessionFrame{
		Type:             "session",
		SessionID:        sess.ID,
		InternalCmdToken: sess.StopToken,
		Timestamp:        time.Now().Format(time.RFC3339),
	})
	if err != nil {
		return
	}

	logger.InfoCtx(ctx, "chat stream opened",
		logger.KeyUsername, claims.Username, logger.KeySessionID, sess.ID)

	// The read loop keeps running while a response streams so stop
	// commands are seen immediately.
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.WarnCtx(ctx, "chat stream closed unexpectedly", logger.KeyError, err)
			}
			return
		}

		var frame inboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			if sendErr := send(errorFrame{Error: "malformed frame"}); sendErr != nil {
				return
			}
			continue
		}

		switch {
		case frame.Type == "stop":
			if frame.InternalCmdToken != sess.StopToken {
				if sendErr := send(errorFrame{Error: "invalid stop token"}); sendErr != nil {
					return
				}
				continue
			}
			sess.Cancel()
			if err := AcknowledgeStop(send); err != nil {
				return
			}

		case frame.Message != "":
			// One response at a time per session; the read loop stays free
			// for stop commands only.
			if !sess.TryBeginResponse() {
				if sendErr := send(errorFrame{Error: "a response is already streaming"}); sendErr != nil {
					return
				}
				continue
			}
			message := frame.Message
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer sess.EndResponse()
				h.orchestrator.Respond(ctx, sess, claims.Username, message, send)
			}()

		default:
			if sendErr := send(errorFrame{Error: "empty message"}); sendErr != nil {
				return
			}
		}
	}
}
