package router

import (
	"time"

	tg "nextmsgbot/core/telegram"
	"nextmsgbot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// Context key and values describing the classified update kind. The
// classifier middleware stores them so routes can branch without
// re-inspecting the raw update.
const (
	UpdateKindKey = "update_kind"

	KindPrivate     = "private"
	KindChannelPost = "channel_post"
	KindCallback    = "callback"
)

// UpdateKind returns the classified kind stored on the context, if any.
func UpdateKind(c tele.Context) string {
	kind, _ := c.Get(UpdateKindKey).(string)
	return kind
}

// FSM defines the minimal interface for a conversation manager.
type FSM interface {
	// HandleActive dispatches the update to the active conversation step.
	// It reports false when the user has no conversation in progress.
	HandleActive(c tele.Context, userID int64) (bool, error)
}

// TextOptions controls routing of text and media updates.
type TextOptions struct {
	// LocalUserID resolves the directory id of the sender, when known.
	LocalUserID func(c tele.Context) (int64, bool)
	// ChannelPost handles updates classified as channel posts. Some media
	// channel posts surface on media endpoints rather than OnChannelPost,
	// so the message routes divert them here by kind.
	ChannelPost  tele.HandlerFunc
	UnknownText  tele.HandlerFunc
	UnknownMedia tele.HandlerFunc
}

// TextRoutes builds handlers for text and media routing. Conversation steps
// take priority; plain text falls through to command lookup and fallbacks.
func TextRoutes(fsmMgr FSM, reg *tg.Registry, opts TextOptions) []tg.Route {
	dispatchConversation := func(c tele.Context, start time.Time) (bool, error) {
		if fsmMgr == nil || opts.LocalUserID == nil {
			return false, nil
		}
		id, ok := opts.LocalUserID(c)
		if !ok {
			return false, nil
		}
		var handled bool
		err := handleWithSummary(c, "conversation", start, "", "", func() error {
			var stepErr error
			handled, stepErr = fsmMgr.HandleActive(c, id)
			return stepErr
		})
		return handled || err != nil, err
	}

	textHandler := func(c tele.Context) error {
		start := time.Now()

		if UpdateKind(c) == KindChannelPost {
			if opts.ChannelPost == nil {
				logHandlerSummary(c, "channel_post", start, "skip", "ok", nil)
				return nil
			}
			return handleWithSummary(c, "channel_post", start, "", "", func() error {
				return opts.ChannelPost(c)
			})
		}

		if done, err := dispatchConversation(c, start); done {
			return err
		}

		if reg != nil {
			if key, cmd, ok := reg.LookupCommand(c.Text()); ok && cmd.Handler != nil {
				name := normalizeHandlerName(key)
				return handleWithSummary(c, name, start, "", "", func() error {
					return cmd.Handler(c)
				})
			}
			if fb := reg.TextFallback(); fb != nil {
				return handleWithSummary(c, "fallback", start, "", "", func() error {
					return fb(c)
				})
			}
		}

		if opts.UnknownText != nil {
			return handleWithSummary(c, "unknown_text", start, "", "", func() error {
				return opts.UnknownText(c)
			})
		}

		logHandlerSummary(c, "unknown_text", start, "skip", "ok", nil)
		return nil
	}

	mediaHandler := func(c tele.Context) error {
		start := time.Now()

		if UpdateKind(c) == KindChannelPost {
			if opts.ChannelPost == nil {
				logHandlerSummary(c, "channel_post", start, "skip", "ok", nil)
				return nil
			}
			return handleWithSummary(c, "channel_post", start, "", "", func() error {
				return opts.ChannelPost(c)
			})
		}

		if done, err := dispatchConversation(c, start); done {
			return err
		}

		if opts.UnknownMedia != nil {
			return handleWithSummary(c, "unexpected_media", start, "", "", func() error {
				return opts.UnknownMedia(c)
			})
		}

		logHandlerSummary(c, "unexpected_media", start, "skip", "ok", nil)
		return nil
	}

	return []tg.Route{
		{
			Endpoint: tele.OnText,
			Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(textHandler)),
		},
		{
			Endpoint: tele.OnMedia,
			Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(mediaHandler)),
		},
	}
}
