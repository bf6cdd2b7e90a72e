package ledger

import (
	"slices"
	"sync"
)

// idSet is the in-memory mirror shared by all drivers.
type idSet struct {
	mu  sync.RWMutex
	ids map[int64]struct{}
}

func newIDSet(ids []int64) *idSet {
	s := &idSet{ids: make(map[int64]struct{}, len(ids))}
	for _, id := range ids {
		s.ids[id] = struct{}{}
	}
	return s
}

func (s *idSet) IsRedeemed(userID int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.ids[userID]
	return ok
}

func (s *idSet) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ids)
}

// sortedLocked returns the ids in ascending order. Callers hold mu.
func (s *idSet) sortedLocked() []int64 {
	out := make([]int64, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// insert adds userID and calls persist while holding the write lock. If persist fails
// the insert is undone.
func (s *idSet) insert(userID int64, persist func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[userID]; ok {
		return nil
	}
	s.ids[userID] = struct{}{}
	if err := persist(); err != nil {
		delete(s.ids, userID)
		return &WriteError{UserID: userID, Err: err}
	}
	return nil
}
