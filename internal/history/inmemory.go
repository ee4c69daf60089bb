package history

import (
	"context"
	"sync"
)

type userRecord struct {
	profile Profile
	turns   []Turn
}

// InMemoryStore is an in-process store for local/dev use and tests. It keeps
// the durable-store contract: append-only turns, set-if-absent profile fields.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]*userRecord
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string]*userRecord)}
}

func (s *InMemoryStore) Exists(_ context.Context, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.records[userID]
	return ok, nil
}

func (s *InMemoryStore) AppendTurn(_ context.Context, turn Turn, profile Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[turn.UserID]
	if !ok {
		rec = &userRecord{}
		s.records[turn.UserID] = rec
	}
	if rec.profile.PhoneNumber == "" {
		rec.profile.PhoneNumber = profile.PhoneNumber
	}
	if rec.profile.FirstName == "" {
		rec.profile.FirstName = profile.FirstName
	}
	if rec.profile.UserName == "" {
		rec.profile.UserName = profile.UserName
	}
	rec.turns = append(rec.turns, turn)
	return nil
}

func (s *InMemoryStore) ReadRecent(_ context.Context, userID string, n int) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[userID]
	if !ok || len(rec.turns) == 0 || n <= 0 {
		return nil, nil
	}
	start := len(rec.turns) - n
	if start < 0 {
		start = 0
	}
	out := make([]Message, 0, len(rec.turns)-start)
	for _, t := range rec.turns[start:] {
		out = append(out, t.Message())
	}
	return out, nil
}

// ProfileOf returns the stored profile, for tests of set-if-absent semantics.
func (s *InMemoryStore) ProfileOf(userID string) (Profile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[userID]
	if !ok {
		return Profile{}, false
	}
	return rec.profile, true
}

func (s *InMemoryStore) Close() error { return nil }
