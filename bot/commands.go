package bot

import (
	"strings"

	"nextmsgbot/core/logger"
	tghelpers "nextmsgbot/core/telegram/helpers"
	"nextmsgbot/core/telegram/state"
	"nextmsgbot/core/telegram/ui"
	"log/slog"

	tele "gopkg.in/telebot.v4"
)

// Commands bundles the small informational handlers and the fallbacks for
// updates that match nothing.
type Commands struct {
	channels ChannelDirectory
	bindings BindingDirectory
	states   *state.Manager
}

var _ ui.FallbackProvider = (*Commands)(nil)

// NewCommands builds the informational command handlers.
func NewCommands(channels ChannelDirectory, bindings BindingDirectory, states *state.Manager) *Commands {
	return &Commands{channels: channels, bindings: bindings, states: states}
}

// Start greets the user and shows the entry keyboard.
func (h *Commands) Start(c tele.Context) error {
	name := "there"
	if u, ok := LocalUser(c); ok && u.DisplayName() != "" {
		name = u.DisplayName()
	} else if from := c.Sender(); from != nil && from.FirstName != "" {
		name = from.FirstName
	}
	return tghelpers.SendMD(c, msgStart(name), kbStart())
}

// List shows the supported commands.
func (h *Commands) List(c tele.Context) error {
	return tghelpers.SendMD(c, msgCommands(), kbConfigure())
}

// Status lists the channels the user has configured.
func (h *Commands) Status(c tele.Context) error {
	u, ok := LocalUser(c)
	if !ok {
		return nil
	}
	ctx := tghelpers.BuildContext(c)

	list, err := h.bindings.ByOwner(ctx, u.ID)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		return tghelpers.SendMD(c, msgStatusEmpty(), kbConfigure())
	}

	lines := make([]string, 0, len(list)+4)
	lines = append(lines, "Your configured channels:", "")
	for _, b := range list {
		ch, chErr := h.channels.ByChannelID(ctx, b.ChannelID)
		if chErr != nil {
			logger.Warn(ctx, "store.channels", "status.lookup",
				slog.Int64("channel_id", b.ChannelID),
				slog.String("err", chErr.Error()),
			)
		}
		lines = append(lines, msgStatusLine(ch, b))
	}
	if h.states.InProgress(ctx, u.ID) {
		lines = append(lines, "", "A setup is currently in progress — send /cancel to abort it.")
	}
	return tghelpers.SendMD(c, strings.Join(lines, "\n"), kbConfigure())
}

// UnknownText handles private text that matches no command or step.
func (h *Commands) UnknownText() tele.HandlerFunc {
	return func(c tele.Context) error {
		return tghelpers.SendMD(c, msgUnknownInput(), kbConfigure())
	}
}

// UnknownMedia handles private media that matches no step.
func (h *Commands) UnknownMedia() tele.HandlerFunc {
	return func(c tele.Context) error {
		return tghelpers.SendMD(c, msgUnknownInput(), kbConfigure())
	}
}

// UnknownCallback handles button presses with no registered action.
func (h *Commands) UnknownCallback() tele.HandlerFunc {
	return func(c tele.Context) error {
		_ = c.Respond(&tele.CallbackResponse{Text: "Unsupported action"})
		return nil
	}
}
