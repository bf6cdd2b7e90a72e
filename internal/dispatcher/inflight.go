package dispatcher

import "sync"

// inflight tracks users whose card request is currently being handled.
type inflight struct {
	mu    sync.Mutex
	users map[int64]struct{}
}

func newInflight() *inflight {
	return &inflight{users: make(map[int64]struct{})}
}

// acquire returns false if userID already has a request in progress.
func (f *inflight) acquire(userID int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, busy := f.users[userID]; busy {
		return false
	}
	f.users[userID] = struct{}{}
	return true
}

func (f *inflight) release(userID int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.users, userID)
}
