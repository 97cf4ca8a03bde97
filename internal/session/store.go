package session

import (
	"slices"
	"sync"
	"time"

	"bulkdl/internal/entity"
)

// Result is the outcome of Store.Apply.
type Result struct {
	// Before and After are snapshots; mutating them does not affect the store.
	Before entity.SessionState
	After  entity.SessionState
	Effect Effect
}

// Store keeps one SessionState per requester. Lookup, transition and write
// happen under a single lock, so a transition never sees a stale phase.
type Store struct {
	machine Machine
	now     func() time.Time

	mu       sync.Mutex
	sessions map[int64]entity.SessionState
}

// NewStore returns an empty store. A nil now uses time.Now.
func NewStore(machine Machine, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}

	return &Store{
		machine:  machine,
		now:      now,
		sessions: make(map[int64]entity.SessionState),
	}
}

// Apply runs in against the requester's session, creating it in IDLE on first use.
func (s *Store) Apply(requesterID int64, in Input) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	before, ok := s.sessions[requesterID]
	if !ok {
		before = entity.SessionState{RequesterID: requesterID, Phase: entity.PhaseIdle}
	}

	after, effect := s.machine.Next(before, in)
	after.RequesterID = requesterID
	after.UpdatedAt = s.now()

	s.sessions[requesterID] = after

	return Result{
		Before: clone(before),
		After:  clone(after),
		Effect: effect,
	}
}

// Get returns a snapshot of the requester's session.
func (s *Store) Get(requesterID int64) entity.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.sessions[requesterID]
	if !ok {
		return entity.SessionState{RequesterID: requesterID, Phase: entity.PhaseIdle}
	}

	return clone(st)
}

// Len returns the number of known sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.sessions)
}

func clone(st entity.SessionState) entity.SessionState {
	st.PendingURLs = slices.Clone(st.PendingURLs)

	return st
}
