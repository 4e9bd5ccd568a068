package bot

import (
	"context"

	tele "gopkg.in/telebot.v4"
)

// MessageRef identifies a message inside a chat.
type MessageRef struct {
	ChatID    int64
	MessageID int
}

// SendOptions tunes outbound sends and copies.
type SendOptions struct {
	// ReplyTo attaches the message as a reply to the given message id
	// in the destination chat.
	ReplyTo int
	// Silent delivers without a notification.
	Silent   bool
	Markdown bool
	Markup   *tele.ReplyMarkup
}

// AdminStatus describes the bot's own standing in a channel.
type AdminStatus struct {
	IsAdmin bool
	CanPost bool
}

// Messenger abstracts the outbound Bot API surface used by the wizard,
// the access gate and the dispatch engine. All failures surface as
// *TransportError.
type Messenger interface {
	SendContent(ctx context.Context, chatID int64, text string, opts SendOptions) (MessageRef, error)
	CopyContent(ctx context.Context, fromChatID, toChatID int64, messageID int, opts SendOptions) (MessageRef, error)
	DeleteContent(ctx context.Context, chatID int64, messageID int) error
	QueryChatAdminStatus(ctx context.Context, chatID int64) (AdminStatus, error)
	QueryMembership(ctx context.Context, chatID, userID int64) (bool, error)
	AnswerCallback(ctx context.Context, callbackID, text string) error
}
