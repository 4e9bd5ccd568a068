package bot

import (
	"nextmsgbot/core/logger"
	"nextmsgbot/core/telegram/router"
	"log/slog"

	tele "gopkg.in/telebot.v4"
)

// Kind classifies an incoming update.
type Kind int

const (
	KindIgnored Kind = iota
	KindCallbackAction
	KindPrivateMessage
	KindChannelPost
)

func (k Kind) String() string {
	switch k {
	case KindCallbackAction:
		return router.KindCallback
	case KindPrivateMessage:
		return router.KindPrivate
	case KindChannelPost:
		return router.KindChannelPost
	}
	return "ignored"
}

// Classified is the routing decision for one update.
type Classified struct {
	Kind     Kind
	Message  *tele.Message
	Callback *tele.Callback
}

// Classify decides how an update should be handled. Posts originating in
// the archive channel are feedback from the bot's own copies and are
// dropped; so is everything outside private chats, channels and callbacks.
func Classify(u tele.Update, archiveChatID int64) Classified {
	if u.Callback != nil {
		return Classified{Kind: KindCallbackAction, Callback: u.Callback}
	}

	msg := u.Message
	if msg == nil {
		msg = u.ChannelPost
	}
	if msg == nil || msg.Chat == nil {
		return Classified{}
	}
	if archiveChatID != 0 && msg.Chat.ID == archiveChatID {
		return Classified{}
	}

	switch msg.Chat.Type {
	case tele.ChatPrivate:
		return Classified{Kind: KindPrivateMessage, Message: msg}
	case tele.ChatChannel, tele.ChatChannelPrivate:
		return Classified{Kind: KindChannelPost, Message: msg}
	}
	return Classified{}
}

// ClassifierMiddleware drops unroutable updates and records the kind on the
// context so routes can branch without re-inspecting the raw update.
func ClassifierMiddleware(archiveChatID int64) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			cl := Classify(c.Update(), archiveChatID)
			if cl.Kind == KindIgnored {
				logger.Debug(logger.Background(), "tg", "classify.drop",
					slog.Int("update_id", c.Update().ID),
				)
				return nil
			}
			c.Set(router.UpdateKindKey, cl.Kind.String())
			return next(c)
		}
	}
}
