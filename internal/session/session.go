package session

import (
	"sync"

	"github.com/mtessier/visiochat/internal/model"
)

// Session is the append-only history ledger for one conversation. Turns
// are never reordered or mutated in place; the only mutations are Append
// and wholesale replacement by Registry.Reset.
//
// Individual Append/Snapshot calls are atomic. Callers running a full
// turn (append caller turn, snapshot, call the engine, append the reply)
// additionally hold the turn lock (Lock/Unlock) so that concurrent turns
// on the same conversation serialize without blocking other conversations.
type Session struct {
	id string

	turnMu sync.Mutex

	mu    sync.Mutex
	turns []model.Turn
}

func newSession(id string) *Session {
	return &Session{id: id}
}

// ID returns the conversation identifier owning this ledger.
func (s *Session) ID() string {
	return s.id
}

// Append adds a turn at the end of the ledger. Role alternation is not
// enforced: a failed engine call legitimately leaves two caller turns in
// a row.
func (s *Session) Append(turn model.Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, turn)
}

// Snapshot returns a copy of the full history in append order. It
// reflects every append that completed before the call and none after.
func (s *Session) Snapshot() []model.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// Len returns the number of turns recorded so far.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.turns)
}

// Lock acquires the per-conversation turn lock.
func (s *Session) Lock() {
	s.turnMu.Lock()
}

// Unlock releases the per-conversation turn lock.
func (s *Session) Unlock() {
	s.turnMu.Unlock()
}
