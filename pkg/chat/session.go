package chat

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// cancelClearDelay is how long the cancel flag stays set after a stop
// command, so in-flight deltas are discarded but the next message on the
// same session is unaffected.
const cancelClearDelay = 2 * time.Second

// Session is the per-stream mutable state: a growing response buffer and a
// cancel flag. It is sticky to the server instance that accepted the stream.
type Session struct {
	// ID is the session handle from the stream path.
	ID string

	// StopToken must accompany stop commands; it is issued to the client
	// when the session opens.
	StopToken string

	mu        sync.Mutex
	buffer    strings.Builder
	cancelled bool
	streaming bool
}

// TryBeginResponse marks the session as streaming a response. Returns false
// when another response is already in flight; the session is single-writer
// and concurrent exchanges would interleave frames and clobber the buffer.
func (s *Session) TryBeginResponse() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.streaming {
		return false
	}
	s.streaming = true
	return true
}

// EndResponse releases the session for the next message.
func (s *Session) EndResponse() {
	s.mu.Lock()
	s.streaming = false
	s.mu.Unlock()
}

// AppendChunk adds a delta to the buffer unless the session is cancelled.
// Returns false when the chunk was discarded.
func (s *Session) AppendChunk(text string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelled {
		return false
	}
	s.buffer.WriteString(text)
	return true
}

// BufferLen returns the current response length.
func (s *Session) BufferLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buffer.Len()
}

// BufferString returns the accumulated response.
func (s *Session) BufferString() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buffer.String()
}

// ResetBuffer clears the response buffer for the next message.
func (s *Session) ResetBuffer() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buffer.Reset()
}

// Cancel sets the cancel flag and schedules its clearance.
func (s *Session) Cancel() {
	s.mu.Lock()
	s.cancelled = true
	s.mu.Unlock()

	time.AfterFunc(cancelClearDelay, func() {
		s.mu.Lock()
		s.cancelled = false
		s.mu.Unlock()
	})
}

// IsCancelled reports the cancel flag.
func (s *Session) IsCancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

// SessionManager tracks live sessions by handle.
type SessionManager struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewSessionManager creates an empty manager.
func NewSessionManager() *SessionManager {
	return &SessionManager{sessions: make(map[string]*Session)}
}

// Create registers a session with a fresh stop token, replacing any previous
// session under the same handle.
func (m *SessionManager) Create(id string) *Session {
	sess := &Session{ID: id, StopToken: uuid.NewString()}
	m.mu.Lock()
	m.sessions[id] = sess
	m.mu.Unlock()
	return sess
}

// Get returns the session for a handle, or nil.
func (m *SessionManager) Get(id string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[id]
}

// Remove drops the session state.
func (m *SessionManager) Remove(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}
