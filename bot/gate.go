package bot

import (
	"strings"

	"nextmsgbot/core/logger"
	tghelpers "nextmsgbot/core/telegram/helpers"
	"nextmsgbot/core/telegram/middleware"
	"nextmsgbot/core/telegram/router"
	"nextmsgbot/core/telegram/state"
	"log/slog"

	tele "gopkg.in/telebot.v4"
)

// Gate restricts private interactions to members of the admin channel.
// Lookup failures deny access; a denial also resets any conversation the
// user had in flight so a later retry starts clean.
type Gate struct {
	msgr      Messenger
	states    *state.Manager
	channelID int64
	inviteURL string
	exempt    map[string]struct{}
}

// NewGate builds the access gate. With channelID == 0 the gate is disabled
// and every interaction passes.
func NewGate(msgr Messenger, states *state.Manager, channelID int64, inviteURL string, exempt map[string]struct{}) *Gate {
	if exempt == nil {
		exempt = map[string]struct{}{}
	}
	return &Gate{
		msgr:      msgr,
		states:    states,
		channelID: channelID,
		inviteURL: inviteURL,
		exempt:    exempt,
	}
}

// Enabled reports whether membership is being enforced.
func (g *Gate) Enabled() bool { return g != nil && g.channelID != 0 }

// Middleware returns the gate as a global bot middleware. Channel posts
// carry no human sender and always pass.
func (g *Gate) Middleware() tele.MiddlewareFunc {
	return middleware.AccessMiddleware(middleware.AccessOptions{
		Skip:     g.skip,
		Allow:    g.allow,
		OnDenied: g.denied,
	})
}

func (g *Gate) skip(c tele.Context) bool {
	if !g.Enabled() {
		return true
	}
	switch router.UpdateKind(c) {
	case router.KindPrivate:
	case router.KindCallback:
		return false
	default:
		return true
	}
	if cmd := commandWord(c.Text()); cmd != "" {
		if _, ok := g.exempt[cmd]; ok {
			return true
		}
	}
	return false
}

func (g *Gate) allow(c tele.Context) bool {
	from := c.Sender()
	if from == nil {
		return false
	}
	ctx := tghelpers.BuildContext(c)
	member, err := g.msgr.QueryMembership(ctx, g.channelID, from.ID)
	if err != nil {
		logger.Warn(ctx, "gate", "membership.check",
			slog.Int64("user_id", from.ID),
			slog.String("err", err.Error()),
		)
		return false
	}
	return member
}

func (g *Gate) denied(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	if u, ok := LocalUser(c); ok {
		if err := g.states.Reset(ctx, u.ID); err != nil {
			logger.Error(ctx, "gate", "state.reset",
				slog.Int64("user_id", u.ID),
				slog.String("err", err.Error()),
			)
		}
	}
	if cb := c.Callback(); cb != nil {
		_ = g.msgr.AnswerCallback(ctx, cb.ID, "Access denied")
	}
	logger.Info(ctx, "gate", "denied",
		slog.Int64("chat_id", chatIDOf(c)),
	)
	return tghelpers.SendMD(c, msgAccessDenied(g.inviteURL), kbJoin(g.inviteURL))
}

func chatIDOf(c tele.Context) int64 {
	if chat := c.Chat(); chat != nil {
		return chat.ID
	}
	return 0
}

// commandWord extracts the leading /command from message text, dropping any
// @botname suffix.
func commandWord(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return ""
	}
	if i := strings.IndexAny(text, " \n"); i >= 0 {
		text = text[:i]
	}
	if i := strings.IndexByte(text, '@'); i >= 0 {
		text = text[:i]
	}
	return text
}
