package bot

import (
	"fmt"
	"strings"

	"nextmsgbot/core/telegram/format"
	"nextmsgbot/core/telegram/keyboard"
	"nextmsgbot/storage"

	tele "gopkg.in/telebot.v4"
)

// mdSafe escapes user-controlled text interpolated into Markdown messages.
func mdSafe(text string) string {
	escaped, err := format.EscapeMarkdown(text, format.MarkdownV1, "")
	if err != nil {
		return text
	}
	return escaped
}

// Callback keys and payloads used by inline keyboards.
const (
	cbConfigure = "configure"
	cbCancel    = "cancel"
	cbCommands  = "commands"
	cbReplyMode = "reply_mode"

	replyModeReply = "reply"
	replyModeNew   = "new"
)

func msgStart(name string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s! 👋\n\n", mdSafe(name))
	b.WriteString("I can automatically publish a saved response in your channel ")
	b.WriteString("every time a number of new posts appear there.\n\n")
	b.WriteString("Press *Configure* or send /configure to set it up.")
	return b.String()
}

func msgCommands() string {
	return strings.Join([]string{
		"Available commands:",
		"",
		"/configure — bind a response to one of your channels",
		"/status — show your configured channels",
		"/cancel — abort the current setup",
	}, "\n")
}

func msgStatusEmpty() string {
	return "You have no configured channels yet. Send /configure to add one."
}

func msgStatusLine(ch storage.Channel, b storage.Binding) string {
	mode := "new post"
	if b.IsReply {
		mode = "reply"
	}
	title := channelTitle(ch)
	if ch.Title == "" && ch.Username == "" {
		title = fmt.Sprintf("channel %d", b.ChannelID)
	}
	return fmt.Sprintf("• *%s* — every %d post(s), as %s (%d/%d so far)",
		title, b.ThrottleN, mode, b.ReceivedCount, b.ThrottleN)
}

func msgStepChannel() string {
	return "Step 1 of 4 — forward me any post from your channel.\n\n" +
		"I must be an administrator of that channel with permission to post."
}

func msgNotChannelForward() string {
	return "That doesn't look like a post forwarded from a channel. " +
		"Forward me any post from your channel, or press Cancel."
}

func msgNotAdmin(title string) string {
	return fmt.Sprintf("I'm not an administrator of *%s*. "+
		"Promote me there and start again with /configure.", title)
}

func msgNoPostPermission(title string) string {
	return fmt.Sprintf("I'm an administrator of *%s* but I'm not allowed to post there. "+
		"Grant me the *Post messages* right and start again with /configure.", title)
}

func msgStepResponse(title string) string {
	return fmt.Sprintf("Step 2 of 4 — got *%s*.\n\n"+
		"Now send me the response I should publish there. "+
		"Any content works: text, photo, video, document…", title)
}

func msgArchiveFailed() string {
	return "I couldn't save your response, so the setup was cancelled. " +
		"Please try /configure again."
}

func msgStepReplyMode() string {
	return "Step 3 of 4 — how should I publish the response?"
}

func msgStepFrequency() string {
	return "Step 4 of 4 — after how many new posts should I send the response?\n\n" +
		"Reply with a number. 1 means after every post."
}

func msgInvalidFrequency() string {
	return "Please send a whole number greater than zero, e.g. 5."
}

func msgConfigured(title string, throttleN int, isReply bool) string {
	mode := "as a new post"
	if isReply {
		mode = "as a silent reply"
	}
	return fmt.Sprintf("Done! ✅\n\nI will publish your response in *%s* %s "+
		"after every %d post(s).", title, mode, throttleN)
}

func msgCancelled() string {
	return "Setup cancelled. Send /configure whenever you want to start over."
}

func msgNothingToCancel() string {
	return "Nothing to cancel — you're not in the middle of a setup."
}

func msgAccessDenied(inviteURL string) string {
	text := "This bot is available to members of its admin channel only."
	if inviteURL != "" {
		text += "\n\nJoin here and try again: " + inviteURL
	}
	return text
}

func msgStaleAction() string {
	return "This button belongs to an older setup. Start again with /configure."
}

func msgMaxChannels(limit int) string {
	return fmt.Sprintf("You already configured %d channels, which is the maximum for now.", limit)
}

func msgUseButtons() string {
	return "Please use the buttons below to pick a publishing mode."
}

func msgPermissionCheckFailed(title string) string {
	return fmt.Sprintf("I couldn't verify my permissions in *%s*, so the setup was cancelled. "+
		"Please try /configure again in a moment.", title)
}

func msgUnknownInput() string {
	return "I'm not sure what to do with that. Send /commands to see what I can do."
}

func kbStart() *tele.ReplyMarkup {
	return keyboard.InlineButtonsRows(
		[]keyboard.InlineBtn{{Text: "⚙️ Configure", Unique: cbConfigure}},
		[]keyboard.InlineBtn{{Text: "📋 Commands", Unique: cbCommands}},
	)
}

func kbConfigure() *tele.ReplyMarkup {
	return keyboard.InlineButtons([]keyboard.InlineBtn{
		{Text: "⚙️ Configure", Unique: cbConfigure},
	})
}

func kbCancel() *tele.ReplyMarkup {
	return keyboard.InlineButtons([]keyboard.InlineBtn{
		{Text: "❌ Cancel", Unique: cbCancel},
	})
}

func kbReplyMode() *tele.ReplyMarkup {
	return keyboard.InlineButtonsRows(
		[]keyboard.InlineBtn{
			{Text: "💬 As a reply", Unique: cbReplyMode, Data: replyModeReply},
			{Text: "📣 As a new post", Unique: cbReplyMode, Data: replyModeNew},
		},
		[]keyboard.InlineBtn{{Text: "❌ Cancel", Unique: cbCancel}},
	)
}

func kbJoin(inviteURL string) *tele.ReplyMarkup {
	if inviteURL == "" {
		return nil
	}
	markup := &tele.ReplyMarkup{}
	join := markup.URL("🔑 Join the admin channel", inviteURL)
	markup.Inline(markup.Row(join))
	return markup
}
