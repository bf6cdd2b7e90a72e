package dispatcher

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bakkerme/giftcard-bot/internal/core"
	"github.com/bakkerme/giftcard-bot/internal/eligibility"
	"github.com/bakkerme/giftcard-bot/internal/issuer"
	issuermock "github.com/bakkerme/giftcard-bot/internal/issuer/mock"
	ledgermock "github.com/bakkerme/giftcard-bot/internal/ledger/mock"
	"github.com/bakkerme/giftcard-bot/internal/messages"
	transportmock "github.com/bakkerme/giftcard-bot/internal/transport/mock"
)

const (
	groupID = int64(-1001)
	userID  = int64(42)
)

type fixture struct {
	ledger    *ledgermock.Ledger
	issuer    *issuermock.Issuer
	transport *transportmock.Transport
	dispatch  *Dispatcher
}

func newFixture(t *testing.T, mutate func(*Config)) *fixture {
	t.Helper()
	f := &fixture{
		ledger:    ledgermock.New(),
		issuer:    &issuermock.Issuer{Codes: []string{"GIFT-ABCD"}},
		transport: &transportmock.Transport{Members: map[int64]bool{userID: true}},
	}
	cfg := Config{
		AdminUsername:   "@gephadmin",
		BotUsername:     "gephgiftbot",
		GroupID:         groupID,
		GroupLink:       "https://t.me/gephusers",
		DaysPerGiftcard: 3,
		Secret:          "s3cret",
		RateLimit:       100,
		RateBurst:       100,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	f.dispatch = New(cfg, Deps{
		Ledger:    f.ledger,
		Issuer:    f.issuer,
		Transport: f.transport,
		Logger:    slog.New(slog.DiscardHandler),
	})
	return f
}

func privateUpdate(from core.User, text string) core.Update {
	return core.Update{
		UpdateID: 1,
		Message: &core.Message{
			MessageID: 10,
			From:      &from,
			Chat:      core.Chat{ID: from.ID, Type: core.ChatTypePrivate},
			Text:      text,
		},
	}
}

func render(t *testing.T, kind messages.Kind, data messages.Data) string {
	t.Helper()
	text, err := messages.Render(kind, data)
	if err != nil {
		t.Fatalf("render %s: %v", kind, err)
	}
	return text
}

func TestRedemptionHappyPath(t *testing.T) {
	f := newFixture(t, nil)
	f.dispatch.Handle(context.Background(), privateUpdate(core.User{ID: userID, Username: "alice"}, "hi"))

	if f.issuer.CallCount() != 1 {
		t.Fatalf("issuer calls = %d, want 1", f.issuer.CallCount())
	}
	if got := f.issuer.Calls[0]; got != (issuer.Request{DaysPerCard: 3, Secret: "s3cret"}) {
		t.Fatalf("issuer request = %+v", got)
	}
	if !f.ledger.IsRedeemed(userID) {
		t.Fatalf("expected user to be recorded")
	}

	sent := f.transport.Messages()
	want := []string{
		render(t, messages.Congratulations, messages.Data{Days: 3}),
		"<code>GIFT-ABCD</code>",
		render(t, messages.RedeemInstructions, messages.Data{}),
	}
	if len(sent) != len(want) {
		t.Fatalf("sent %d messages, want %d: %+v", len(sent), len(want), sent)
	}
	for i, msg := range sent {
		if msg.ChatID != userID {
			t.Errorf("message %d chat = %d, want %d", i, msg.ChatID, userID)
		}
		if msg.Text != want[i] {
			t.Errorf("message %d = %q, want %q", i, msg.Text, want[i])
		}
	}
}

func TestAlreadyRedeemedSkipsIssuer(t *testing.T) {
	f := newFixture(t, nil)
	f.ledger.Redeemed[userID] = true

	f.dispatch.Handle(context.Background(), privateUpdate(core.User{ID: userID}, "again"))

	if f.issuer.CallCount() != 0 {
		t.Fatalf("issuer must not be called for a redeemed user")
	}
	if len(f.transport.MemberChecks) != 0 {
		t.Fatalf("membership must not be checked for a redeemed user")
	}
	sent := f.transport.Messages()
	if len(sent) != 1 || sent[0].Text != render(t, messages.AlreadyRedeemed, messages.Data{}) {
		t.Fatalf("unexpected replies %+v", sent)
	}
}

func TestNonMemberMustJoin(t *testing.T) {
	f := newFixture(t, nil)
	f.transport.Members = map[int64]bool{}

	f.dispatch.Handle(context.Background(), privateUpdate(core.User{ID: userID}, "card please"))

	if f.issuer.CallCount() != 0 {
		t.Fatalf("issuer must not be called for a non-member")
	}
	if f.ledger.IsRedeemed(userID) {
		t.Fatalf("non-member must not be recorded")
	}
	sent := f.transport.Messages()
	if len(sent) != 1 || !strings.Contains(sent[0].Text, "https://t.me/gephusers") {
		t.Fatalf("expected must-join notice with group link, got %+v", sent)
	}
}

func TestIssuerFailureLeavesLedgerUntouched(t *testing.T) {
	f := newFixture(t, nil)
	f.issuer.Err = &issuer.Error{StatusCode: 500, Body: "boom"}

	f.dispatch.Handle(context.Background(), privateUpdate(core.User{ID: userID}, "card"))

	if len(f.ledger.Marks) != 0 {
		t.Fatalf("ledger must not be touched, marks = %v", f.ledger.Marks)
	}
	sent := f.transport.Messages()
	if len(sent) != 1 || sent[0].Text != render(t, messages.IssueFailed, messages.Data{}) {
		t.Fatalf("unexpected replies %+v", sent)
	}
}

func TestMarkFailureWithholdsCode(t *testing.T) {
	f := newFixture(t, nil)
	f.ledger.MarkErr = errors.New("disk full")

	f.dispatch.Handle(context.Background(), privateUpdate(core.User{ID: userID}, "card"))

	if f.issuer.CallCount() != 1 {
		t.Fatalf("issuer calls = %d, want 1", f.issuer.CallCount())
	}
	for _, msg := range f.transport.Messages() {
		if strings.Contains(msg.Text, "GIFT-ABCD") {
			t.Fatalf("code must not be delivered when recording fails: %+v", msg)
		}
	}
	sent := f.transport.Messages()
	if len(sent) != 1 || sent[0].Text != render(t, messages.RecordFailed, messages.Data{}) {
		t.Fatalf("unexpected replies %+v", sent)
	}
}

func TestBotsAndRuleRejectionsAreNotEligible(t *testing.T) {
	rule, err := eligibility.NewRule(`user.language_code != "en"`)
	if err != nil {
		t.Fatalf("rule: %v", err)
	}
	f := newFixture(t, func(c *Config) { c.Rule = rule })
	f.transport.Members[7] = true

	f.dispatch.Handle(context.Background(), privateUpdate(core.User{ID: userID, LanguageCode: "en"}, "card"))
	f.dispatch.Handle(context.Background(), privateUpdate(core.User{ID: 7, IsBot: true}, "card"))

	if f.issuer.CallCount() != 0 {
		t.Fatalf("issuer must not be called for ineligible users")
	}
	notEligible := render(t, messages.NotEligible, messages.Data{})
	sent := f.transport.Messages()
	if len(sent) != 2 || sent[0].Text != notEligible || sent[1].Text != notEligible {
		t.Fatalf("unexpected replies %+v", sent)
	}
}

func TestAdminRecipientCount(t *testing.T) {
	f := newFixture(t, nil)
	f.ledger.Redeemed[1] = true
	f.ledger.Redeemed[2] = true

	admin := core.User{ID: 99, Username: "GephAdmin"}
	f.dispatch.Handle(context.Background(), privateUpdate(admin, "#RecipientCount"))
	f.dispatch.Handle(context.Background(), privateUpdate(admin, "hello"))

	sent := f.transport.Messages()
	if len(sent) != 1 || sent[0].Text != "🌸 2 users received giftcards!" {
		t.Fatalf("unexpected replies %+v", sent)
	}
	if f.issuer.CallCount() != 0 {
		t.Fatalf("admin must never trigger the issuer")
	}
}

func TestGroupMentionRepliesWithHint(t *testing.T) {
	f := newFixture(t, nil)
	from := core.User{ID: userID}
	mention := core.Update{Message: &core.Message{
		MessageID: 77,
		From:      &from,
		Chat:      core.Chat{ID: groupID, Type: core.ChatTypeSupergroup},
		Text:      "hey @GephGiftBot give me a card",
	}}
	chatter := core.Update{Message: &core.Message{
		MessageID: 78,
		From:      &from,
		Chat:      core.Chat{ID: groupID, Type: core.ChatTypeGroup},
		Text:      "just chatting",
	}}

	f.dispatch.Handle(context.Background(), mention)
	f.dispatch.Handle(context.Background(), chatter)

	sent := f.transport.Messages()
	if len(sent) != 1 {
		t.Fatalf("expected one hint, got %+v", sent)
	}
	if sent[0].ChatID != groupID || sent[0].ReplyToMessageID != 77 {
		t.Fatalf("hint sent to wrong place: %+v", sent[0])
	}
	if sent[0].Text != render(t, messages.PrivateMessageHint, messages.Data{}) {
		t.Fatalf("unexpected hint %q", sent[0].Text)
	}
	if f.issuer.CallCount() != 0 {
		t.Fatalf("group messages must never trigger the issuer")
	}
}

func TestIgnoresChannelsAndEmptyUpdates(t *testing.T) {
	f := newFixture(t, nil)
	from := core.User{ID: userID}
	f.dispatch.Handle(context.Background(), core.Update{UpdateID: 5})
	f.dispatch.Handle(context.Background(), core.Update{Message: &core.Message{Chat: core.Chat{ID: 1, Type: core.ChatTypePrivate}}})
	f.dispatch.Handle(context.Background(), core.Update{Message: &core.Message{
		From: &from,
		Chat: core.Chat{ID: 3, Type: core.ChatTypeChannel},
		Text: "@gephgiftbot",
	}})

	if len(f.transport.Messages()) != 0 || f.issuer.CallCount() != 0 {
		t.Fatalf("expected no activity")
	}
}

func TestRateLimitDropsSilently(t *testing.T) {
	f := newFixture(t, func(c *Config) {
		c.RateLimit = 0.001
		c.RateBurst = 1
	})
	f.transport.Members = map[int64]bool{}

	f.dispatch.Handle(context.Background(), privateUpdate(core.User{ID: userID}, "1"))
	f.dispatch.Handle(context.Background(), privateUpdate(core.User{ID: userID}, "2"))

	if got := len(f.transport.Messages()); got != 1 {
		t.Fatalf("sent %d messages, want 1", got)
	}
	if got := len(f.transport.MemberChecks); got != 1 {
		t.Fatalf("membership checked %d times, want 1", got)
	}
}

func TestRedeemedUserAlwaysGetsNotice(t *testing.T) {
	f := newFixture(t, func(c *Config) {
		c.RateLimit = 0.001
		c.RateBurst = 1
	})
	f.ledger.Redeemed[userID] = true

	for i := 0; i < 3; i++ {
		f.dispatch.Handle(context.Background(), privateUpdate(core.User{ID: userID}, "hi"))
	}

	sent := f.transport.Messages()
	if len(sent) != 3 {
		t.Fatalf("sent %d messages, want 3", len(sent))
	}
	want, _ := messages.Render(messages.AlreadyRedeemed, messages.Data{})
	for _, m := range sent {
		if m.Text != want {
			t.Fatalf("text = %q, want already-redeemed notice", m.Text)
		}
	}
}

// blockingIssuer holds every call until release is closed.
type blockingIssuer struct {
	mu      sync.Mutex
	calls   int
	entered chan struct{}
	release chan struct{}
}

func (b *blockingIssuer) Issue(ctx context.Context, _ issuer.Request) (string, error) {
	b.mu.Lock()
	b.calls++
	b.mu.Unlock()
	b.entered <- struct{}{}
	select {
	case <-b.release:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return "GIFT-ONCE", nil
}

func TestConcurrentRequestsFromOneUserIssueOnce(t *testing.T) {
	f := newFixture(t, nil)
	blocking := &blockingIssuer{entered: make(chan struct{}, 1), release: make(chan struct{})}
	f.dispatch.issuer = blocking

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		f.dispatch.Handle(context.Background(), privateUpdate(core.User{ID: userID}, "first"))
	}()

	select {
	case <-blocking.entered:
	case <-time.After(2 * time.Second):
		t.Fatalf("first request never reached the issuer")
	}

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.dispatch.Handle(context.Background(), privateUpdate(core.User{ID: userID}, "again"))
		}()
	}
	// Give the duplicates time to hit the in-flight guard before the first finishes.
	time.Sleep(50 * time.Millisecond)
	close(blocking.release)
	wg.Wait()

	blocking.mu.Lock()
	calls := blocking.calls
	blocking.mu.Unlock()
	if calls != 1 {
		t.Fatalf("issuer calls = %d, want 1", calls)
	}

	codes := 0
	for _, msg := range f.transport.Messages() {
		if strings.Contains(msg.Text, "GIFT-ONCE") {
			codes++
		}
	}
	if codes != 1 {
		t.Fatalf("delivered %d codes, want 1", codes)
	}
}
