package transport

import (
	"context"

	"github.com/bakkerme/giftcard-bot/internal/core"
)

// Transport is the chat channel the bot talks through.
type Transport interface {
	// IsMember reports whether userID belongs to groupID. Lookup failures report false.
	IsMember(ctx context.Context, userID, groupID int64) bool
	// Send delivers one message.
	Send(ctx context.Context, message core.OutgoingMessage) error
}

// Handler processes one inbound update.
type Handler func(ctx context.Context, update core.Update)
