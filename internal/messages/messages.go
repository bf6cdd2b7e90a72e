// Package messages holds the fixed texts the bot sends. Texts are Telegram HTML and are
// rendered with html/template so codes and links are escaped.
package messages

import (
	"fmt"
	"html/template"
	"strings"
)

// Kind names one message in the catalog.
type Kind string

const (
	AlreadyRedeemed    Kind = "already_redeemed"
	RequestInProgress  Kind = "request_in_progress"
	MustJoin           Kind = "must_join"
	NotEligible        Kind = "not_eligible"
	IssueFailed        Kind = "issue_failed"
	RecordFailed       Kind = "record_failed"
	Congratulations    Kind = "congratulations"
	GiftCode           Kind = "gift_code"
	RedeemInstructions Kind = "redeem_instructions"
	PrivateMessageHint Kind = "private_message_hint"
	RecipientCount     Kind = "recipient_count"
	RecipientReport    Kind = "recipient_report"
)

// Data is the union of values referenced by the templates.
type Data struct {
	Days      int
	Code      string
	Count     int
	GroupLink string
	Date      string
}

var catalog = map[Kind]string{
	AlreadyRedeemed: "🎁 You have already received a giftcard! Each user will only receive 1 giftcard\n\n" +
		"🧧 您已经获得了一张礼品卡！每名用户可以得到一张礼品卡",
	RequestInProgress: "⏳ Your giftcard is being prepared, please wait a moment\n\n" +
		"⏳ 您的礼品卡正在生成中，请稍候",
	MustJoin: "⛔ You must join our official group to get a giftcard:\n" +
		"🚦 您必须加入迷雾通官方群组才能获得礼品卡： {{.GroupLink}}",
	NotEligible: "🚫 Sorry, this account is not eligible for a giftcard\n\n" +
		"🚫 抱歉，此账号不符合领取礼品卡的条件",
	IssueFailed: "⚠️ We could not create a giftcard right now. Please try again later\n\n" +
		"⚠️ 暂时无法生成礼品卡，请稍后再试",
	RecordFailed: "⚠️ Something went wrong while recording your giftcard. Please contact the group admins\n\n" +
		"⚠️ 记录礼品卡时出错，请联系群组管理员",
	Congratulations: "🎉 Congratulations! Here's a {{.Days}}-day Geph Plus giftcard for you:\n\n" +
		"恭喜您！这里是一张{{.Days}}天迷雾通 Plus 礼品卡:",
	GiftCode: "<code>{{.Code}}</code>",
	RedeemInstructions: "💳 To redeem the giftcard: open the Geph app --> \"Buy Plus\" / \"Extend\" in the top right corner --> \"Redeem voucher\"\n\n" +
		"💝 如何兑换礼品卡：打开迷雾通 APP --> 点击右上角的“购买 Plus”或“延长” --> “兑换礼品卡”",
	PrivateMessageHint: "Please <b>private message</b> me to get your giftcard\n\n" +
		"请<b>私信</b>我来领取礼品卡\n\n" +
		"لطفاً برای دریافت گیفت‌کارت به من <b>پیام خصوصی</b> بدهید",
	RecipientCount:  "🌸 {{.Count}} users received giftcards!",
	RecipientReport: "# Giftcard recipients\n\n**{{.Count}}** users have received a giftcard as of {{.Date}}.\n",
}

var templates = parseCatalog()

func parseCatalog() *template.Template {
	root := template.New("messages")
	for kind, text := range catalog {
		template.Must(root.New(string(kind)).Parse(text))
	}
	return root
}

// Render produces the text for kind.
func Render(kind Kind, data Data) (string, error) {
	tmpl := templates.Lookup(string(kind))
	if tmpl == nil {
		return "", fmt.Errorf("messages: unknown message %q", kind)
	}
	var b strings.Builder
	if err := tmpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("messages: render %s: %w", kind, err)
	}
	return b.String(), nil
}
