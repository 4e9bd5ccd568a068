package bot

import (
	"context"

	"nextmsgbot/core/logger"
	tghelpers "nextmsgbot/core/telegram/helpers"
	"nextmsgbot/core/telegram/router"
	"nextmsgbot/storage"
	"log/slog"

	tele "gopkg.in/telebot.v4"
)

const localUserKey = "local_user"

// UserDirectory upserts private-chat senders into the user directory.
type UserDirectory interface {
	Upsert(ctx context.Context, telegramUserID int64, firstName, lastName, username, languageCode string) (storage.User, error)
}

// ChannelDirectory tracks channels referenced by forwarded posts.
type ChannelDirectory interface {
	Upsert(ctx context.Context, channelID int64, title, username, kind string) (storage.Channel, error)
	ByChannelID(ctx context.Context, channelID int64) (storage.Channel, error)
}

// BindingDirectory persists channel-to-response bindings and their counters.
type BindingDirectory interface {
	ByChannel(ctx context.Context, channelID int64) (storage.Binding, error)
	ByOwner(ctx context.Context, ownerUserID int64) ([]storage.Binding, error)
	Upsert(ctx context.Context, channelID, ownerUserID int64, responseRef int, isReply bool, throttleN int) (storage.Binding, error)
	BumpReceived(ctx context.Context, channelID int64) (storage.Binding, error)
	ResetReceived(ctx context.Context, channelID int64) error
	CountByOwner(ctx context.Context, ownerUserID int64) (int, error)
}

// ResolveUserMiddleware upserts the sender into the directory and stores the
// resolved record on the context. Updates without a human sender pass
// through untouched; directory failures drop the update after logging.
func ResolveUserMiddleware(users UserDirectory) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			from := c.Sender()
			if from == nil || from.IsBot || router.UpdateKind(c) == router.KindChannelPost {
				return next(c)
			}
			ctx := tghelpers.BuildContext(c)
			u, err := users.Upsert(ctx, from.ID, from.FirstName, from.LastName, from.Username, from.LanguageCode)
			if err != nil {
				logger.Error(ctx, "store.users", "user.resolve",
					slog.Int64("user_id", from.ID),
					slog.String("err", err.Error()),
				)
				return nil
			}
			c.Set(localUserKey, u)
			return next(c)
		}
	}
}

// LocalUser returns the directory record resolved for the sender.
func LocalUser(c tele.Context) (storage.User, bool) {
	u, ok := c.Get(localUserKey).(storage.User)
	return u, ok
}
