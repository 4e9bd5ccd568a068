package bot

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"nextmsgbot/core/logger"
	"log/slog"

	tele "gopkg.in/telebot.v4"
)

// ErrNotBound is returned when the messenger is used before the bot starts.
var ErrNotBound = errors.New("bot: messenger not bound")

// BotMessenger adapts a running telebot instance to the Messenger interface.
// It is constructed before the bot exists and bound from the OnStart hook.
type BotMessenger struct {
	mu  sync.RWMutex
	bot *tele.Bot
}

// NewBotMessenger returns an unbound messenger.
func NewBotMessenger() *BotMessenger {
	return &BotMessenger{}
}

// Bind attaches the live bot instance.
func (m *BotMessenger) Bind(b *tele.Bot) {
	m.mu.Lock()
	m.bot = b
	m.mu.Unlock()
}

func (m *BotMessenger) client() (*tele.Bot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.bot == nil {
		return nil, ErrNotBound
	}
	return m.bot, nil
}

func sendOptions(chatID int64, opts SendOptions) *tele.SendOptions {
	so := &tele.SendOptions{
		DisableNotification: opts.Silent,
		ReplyMarkup:         opts.Markup,
	}
	if opts.Markdown {
		so.ParseMode = tele.ModeMarkdown
	}
	if opts.ReplyTo != 0 {
		so.ReplyTo = &tele.Message{ID: opts.ReplyTo, Chat: &tele.Chat{ID: chatID}}
	}
	return so
}

// SendContent sends a text message into the chat.
func (m *BotMessenger) SendContent(ctx context.Context, chatID int64, text string, opts SendOptions) (MessageRef, error) {
	b, err := m.client()
	if err != nil {
		return MessageRef{}, &TransportError{Op: "sendMessage", Err: err}
	}
	msg, err := b.Send(tele.ChatID(chatID), text, sendOptions(chatID, opts))
	if err != nil {
		return MessageRef{}, &TransportError{Op: "sendMessage", Err: err}
	}
	return MessageRef{ChatID: chatID, MessageID: msg.ID}, nil
}

// CopyContent re-sends an existing message into another chat without the
// forward header. The returned ref points at the new copy.
func (m *BotMessenger) CopyContent(ctx context.Context, fromChatID, toChatID int64, messageID int, opts SendOptions) (MessageRef, error) {
	b, err := m.client()
	if err != nil {
		return MessageRef{}, &TransportError{Op: "copyMessage", Err: err}
	}
	src := tele.StoredMessage{MessageID: strconv.Itoa(messageID), ChatID: fromChatID}
	msg, err := b.Copy(tele.ChatID(toChatID), src, sendOptions(toChatID, opts))
	if err != nil {
		return MessageRef{}, &TransportError{Op: "copyMessage", Err: err}
	}
	logger.Debug(ctx, "tg", "copy.done",
		slog.Int64("chat_id", toChatID),
		slog.Int("msg_id", msg.ID),
	)
	return MessageRef{ChatID: toChatID, MessageID: msg.ID}, nil
}

// DeleteContent removes a message the bot can still delete.
func (m *BotMessenger) DeleteContent(ctx context.Context, chatID int64, messageID int) error {
	b, err := m.client()
	if err != nil {
		return &TransportError{Op: "deleteMessage", Err: err}
	}
	target := tele.StoredMessage{MessageID: strconv.Itoa(messageID), ChatID: chatID}
	if err := b.Delete(target); err != nil {
		return &TransportError{Op: "deleteMessage", Err: err}
	}
	return nil
}

// QueryChatAdminStatus reports whether the bot is an administrator of the
// channel and whether it may post there.
func (m *BotMessenger) QueryChatAdminStatus(ctx context.Context, chatID int64) (AdminStatus, error) {
	b, err := m.client()
	if err != nil {
		return AdminStatus{}, &TransportError{Op: "getChatAdministrators", Err: err}
	}
	admins, err := b.AdminsOf(&tele.Chat{ID: chatID})
	if err != nil {
		return AdminStatus{}, &TransportError{Op: "getChatAdministrators", Err: err}
	}
	for _, member := range admins {
		if member.User == nil || member.User.ID != b.Me.ID {
			continue
		}
		if member.Role == tele.Creator {
			return AdminStatus{IsAdmin: true, CanPost: true}, nil
		}
		return AdminStatus{IsAdmin: true, CanPost: member.Rights.CanPostMessages}, nil
	}
	return AdminStatus{}, nil
}

// QueryMembership reports whether the user currently belongs to the chat.
// Left and kicked members count as outsiders.
func (m *BotMessenger) QueryMembership(ctx context.Context, chatID, userID int64) (bool, error) {
	b, err := m.client()
	if err != nil {
		return false, &TransportError{Op: "getChatMember", Err: err}
	}
	member, err := b.ChatMemberOf(&tele.Chat{ID: chatID}, &tele.User{ID: userID})
	if err != nil {
		return false, &TransportError{Op: "getChatMember", Err: err}
	}
	switch member.Role {
	case tele.Creator, tele.Administrator, tele.Member:
		return true, nil
	}
	return false, nil
}

// AnswerCallback acknowledges a callback query with an optional toast.
func (m *BotMessenger) AnswerCallback(ctx context.Context, callbackID, text string) error {
	b, err := m.client()
	if err != nil {
		return &TransportError{Op: "answerCallbackQuery", Err: err}
	}
	resp := &tele.CallbackResponse{Text: text}
	if err := b.Respond(&tele.Callback{ID: callbackID}, resp); err != nil {
		return &TransportError{Op: "answerCallbackQuery", Err: err}
	}
	return nil
}
