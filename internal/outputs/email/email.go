// Package email defines the contract for sending administrative e-mail.
package email

import "context"

// Message is one outbound e-mail. HTMLBody is sent as an alternative to TextBody when both are set.
type Message struct {
	From     string
	To       string
	Subject  string
	TextBody string
	HTMLBody string
}

type Sender interface {
	Send(ctx context.Context, message Message) error
}
