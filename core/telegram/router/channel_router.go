package router

import (
	"time"

	tg "nextmsgbot/core/telegram"
	"nextmsgbot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// ChannelPostRoute binds a handler for channel post updates.
func ChannelPostRoute(handler tele.HandlerFunc) tg.Route {
	h := func(c tele.Context) error {
		start := time.Now()
		if handler == nil || c.Message() == nil {
			logHandlerSummary(c, "channel_post", start, "skip", "ok", nil)
			return nil
		}
		return handleWithSummary(c, "channel_post", start, "", "", func() error {
			return handler(c)
		})
	}
	return tg.Route{
		Endpoint: tele.OnChannelPost,
		Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(h)),
	}
}
