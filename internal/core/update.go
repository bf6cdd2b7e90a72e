package core

import "strings"

// Update is the subset of a Telegram update the bot acts on.
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message,omitempty"`
}

// Message is an inbound chat message.
type Message struct {
	MessageID int64  `json:"message_id"`
	From      *User  `json:"from,omitempty"`
	Chat      Chat   `json:"chat"`
	Text      string `json:"text,omitempty"`
	Date      int64  `json:"date,omitempty"`
}

// User identifies the sender of a message.
type User struct {
	ID           int64  `json:"id"`
	IsBot        bool   `json:"is_bot,omitempty"`
	Username     string `json:"username,omitempty"`
	FirstName    string `json:"first_name,omitempty"`
	LanguageCode string `json:"language_code,omitempty"`
}

// Chat is the conversation a message was posted in.
type Chat struct {
	ID   int64    `json:"id"`
	Type ChatType `json:"type"`
}

type ChatType string

const (
	ChatTypePrivate    ChatType = "private"
	ChatTypeGroup      ChatType = "group"
	ChatTypeSupergroup ChatType = "supergroup"
	ChatTypeChannel    ChatType = "channel"
)

func (t ChatType) IsGroup() bool {
	return t == ChatTypeGroup || t == ChatTypeSupergroup
}

// OutgoingMessage is a reply the bot sends through the transport.
type OutgoingMessage struct {
	ChatID           int64
	Text             string
	ReplyToMessageID int64
}

// MentionsUser reports whether text contains an @username mention, ignoring case.
func MentionsUser(text, username string) bool {
	username = strings.TrimPrefix(strings.TrimSpace(username), "@")
	if username == "" {
		return false
	}
	return strings.Contains(strings.ToLower(text), "@"+strings.ToLower(username))
}
