package session

import (
	"errors"
	"strconv"
	"sync"
)

// ErrConversationNotFound is returned by Get for an unknown conversation id.
var ErrConversationNotFound = errors.New("conversation not found")

// Registry owns every live conversation for the lifetime of the process.
// It maps a conversation id to its Session and is the only component that
// creates, replaces, or hands out sessions. State is in-memory only:
// a restart starts from an empty registry.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	lastID   uint64
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
	}
}

// Resolve looks up a conversation leniently. An empty token mints a fresh
// server-assigned id ("1", "2", ...). A non-empty token is the caller's
// own identity: its session is created on first use and returned as-is on
// every later call until an explicit Reset. Resolve never fails.
func (r *Registry) Resolve(token string) (string, *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if token == "" {
		r.lastID++
		token = strconv.FormatUint(r.lastID, 10)
	}

	s, ok := r.sessions[token]
	if !ok {
		s = newSession(token)
		r.sessions[token] = s
	}

	return token, s
}

// Get looks up a conversation strictly: an unknown id is
// ErrConversationNotFound rather than an auto-created session.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrConversationNotFound
	}

	return s, nil
}

// Reset replaces the ledger for id with a fresh empty one under the same
// id, creating the id if absent. A concurrent turn still holding the old
// *Session finishes against the discarded ledger; its appends are not
// visible under the id afterwards.
func (r *Registry) Reset(id string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := newSession(id)
	r.sessions[id] = s
	return s
}

// Len returns the number of live conversations.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
