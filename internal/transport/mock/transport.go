package mock

import (
	"context"
	"sync"

	"github.com/bakkerme/giftcard-bot/internal/core"
)

type Transport struct {
	mu           sync.Mutex
	Members      map[int64]bool
	SendErr      error
	Sent         []core.OutgoingMessage
	MemberChecks []int64
}

func (t *Transport) IsMember(ctx context.Context, userID, groupID int64) bool {
	_ = ctx
	_ = groupID
	t.mu.Lock()
	defer t.mu.Unlock()
	t.MemberChecks = append(t.MemberChecks, userID)
	return t.Members[userID]
}

func (t *Transport) Send(ctx context.Context, message core.OutgoingMessage) error {
	_ = ctx
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.SendErr != nil {
		return t.SendErr
	}
	t.Sent = append(t.Sent, message)
	return nil
}

// Messages returns a copy of everything sent so far.
func (t *Transport) Messages() []core.OutgoingMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]core.OutgoingMessage, len(t.Sent))
	copy(out, t.Sent)
	return out
}
