package core

import (
	"context"
	"log/slog"
	"testing"
)

func TestMentionsUser(t *testing.T) {
	cases := []struct {
		text, user string
		want       bool
	}{
		{"hey @GephGiftBot give me a card", "gephgiftbot", true},
		{"hey @gephgiftbot", "@GephGiftBot", true},
		{"hey gephgiftbot", "gephgiftbot", false},
		{"@someone", "", false},
	}
	for _, tc := range cases {
		if got := MentionsUser(tc.text, tc.user); got != tc.want {
			t.Errorf("MentionsUser(%q, %q) = %v, want %v", tc.text, tc.user, got, tc.want)
		}
	}
}

func TestContextHelpers(t *testing.T) {
	ctx := WithUserID(WithRequestID(context.Background(), "req-1"), 42)
	if got := RequestIDFromContext(ctx); got != "req-1" {
		t.Fatalf("request id = %q", got)
	}
	if got := UserIDFromContext(ctx); got != 42 {
		t.Fatalf("user id = %d", got)
	}
	if got := UserIDFromContext(context.Background()); got != 0 {
		t.Fatalf("expected zero user id, got %d", got)
	}

	logger := slog.New(slog.DiscardHandler)
	if LoggerFromContext(WithLogger(ctx, logger)) != logger {
		t.Fatalf("expected attached logger")
	}
	if LoggerFromContext(ctx) != slog.Default() {
		t.Fatalf("expected default logger when none attached")
	}
}

func TestSpanAttributes(t *testing.T) {
	if attrs := SpanAttributes(context.Background()); len(attrs) != 0 {
		t.Fatalf("expected no attributes, got %v", attrs)
	}

	attrs := SpanAttributes(WithUserID(WithRequestID(context.Background(), "req-1"), 42))
	if len(attrs) != 2 {
		t.Fatalf("attrs = %v, want request and user ids", attrs)
	}
	if attrs[0].Key != "request.id" || attrs[0].Value.AsString() != "req-1" {
		t.Fatalf("unexpected request attribute %v", attrs[0])
	}
	if attrs[1].Key != "telegram.user_id" || attrs[1].Value.AsInt64() != 42 {
		t.Fatalf("unexpected user attribute %v", attrs[1])
	}
}
