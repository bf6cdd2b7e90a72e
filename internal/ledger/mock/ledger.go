package mock

import "sync"

// Ledger is an in-memory ledger for dispatcher tests.
type Ledger struct {
	mu       sync.Mutex
	Redeemed map[int64]bool
	MarkErr  error
	Marks    []int64
}

func New(ids ...int64) *Ledger {
	l := &Ledger{Redeemed: map[int64]bool{}}
	for _, id := range ids {
		l.Redeemed[id] = true
	}
	return l
}

func (l *Ledger) IsRedeemed(userID int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.Redeemed[userID]
}

func (l *Ledger) MarkRedeemed(userID int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Marks = append(l.Marks, userID)
	if l.MarkErr != nil {
		return l.MarkErr
	}
	if l.Redeemed == nil {
		l.Redeemed = map[int64]bool{}
	}
	l.Redeemed[userID] = true
	return nil
}

func (l *Ledger) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.Redeemed)
}

func (l *Ledger) Close() error { return nil }
