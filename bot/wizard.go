package bot

import (
	"context"
	"errors"
	"fmt"

	"nextmsgbot/core/logger"
	"nextmsgbot/core/telegram/callbacks"
	tghelpers "nextmsgbot/core/telegram/helpers"
	"nextmsgbot/core/telegram/state"
	"nextmsgbot/storage"
	"log/slog"

	tele "gopkg.in/telebot.v4"
)

// Wizard drives the four-step configuration conversation: pick a channel,
// archive a response, choose a publishing mode, set the post frequency.
type Wizard struct {
	states        *state.Manager
	channels      ChannelDirectory
	bindings      BindingDirectory
	msgr          Messenger
	archiveChatID int64
	maxChannels   int
}

// NewWizard builds the wizard and registers its conversation steps.
func NewWizard(states *state.Manager, channels ChannelDirectory, bindings BindingDirectory, msgr Messenger, archiveChatID int64, maxChannels int) *Wizard {
	w := &Wizard{
		states:        states,
		channels:      channels,
		bindings:      bindings,
		msgr:          msgr,
		archiveChatID: archiveChatID,
		maxChannels:   maxChannels,
	}
	states.RegisterHandler(state.PhaseAwaitingChannel, w.stepChannelForward)
	states.RegisterHandler(state.PhaseAwaitingResponse, w.stepResponseMessage)
	states.RegisterHandler(state.PhaseAwaitingReplyMode, w.stepReplyModeNudge)
	states.RegisterHandler(state.PhaseAwaitingFrequency, w.stepFrequency)
	return w
}

// notify delivers a wizard prompt best-effort. A user who missed a prompt
// can always /cancel, so a failed send never blocks the conversation.
func (w *Wizard) notify(ctx context.Context, chatID int64, text string, markup *tele.ReplyMarkup) {
	_, err := w.msgr.SendContent(ctx, chatID, text, SendOptions{Markdown: true, Markup: markup})
	if err != nil {
		logger.Warn(ctx, "wizard", "notify.fail",
			slog.Int64("chat_id", chatID),
			slog.String("err", err.Error()),
		)
	}
}

// StartConfigure begins a fresh configuration flow. Bound to /configure and
// to the inline Configure button.
func (w *Wizard) StartConfigure(c tele.Context) error {
	u, ok := LocalUser(c)
	if !ok {
		return nil
	}
	ctx := tghelpers.BuildContext(c)
	chatID := chatIDOf(c)

	if w.maxChannels > 0 {
		n, err := w.bindings.CountByOwner(ctx, u.ID)
		if err != nil {
			return err
		}
		if n >= w.maxChannels {
			w.notify(ctx, chatID, msgMaxChannels(w.maxChannels), nil)
			return nil
		}
	}

	err := w.states.Update(ctx, u.ID, func(s *state.Session) error {
		w.discardPending(ctx, s)
		s.Phase = state.PhaseAwaitingChannel
		s.Payload = nil
		return nil
	})
	if err != nil {
		return err
	}
	w.notify(ctx, chatID, msgStepChannel(), kbCancel())
	return nil
}

// Cancel aborts the flow from any step, deleting a response that was
// already archived. Bound to /cancel and to the inline Cancel button.
func (w *Wizard) Cancel(c tele.Context) error {
	u, ok := LocalUser(c)
	if !ok {
		return nil
	}
	ctx := tghelpers.BuildContext(c)
	chatID := chatIDOf(c)

	return w.states.Update(ctx, u.ID, func(s *state.Session) error {
		if s.Phase == state.PhaseIdle {
			w.notify(ctx, chatID, msgNothingToCancel(), kbConfigure())
			return nil
		}
		w.discardPending(ctx, s)
		s.Reset()
		w.notify(ctx, chatID, msgCancelled(), kbConfigure())
		return nil
	})
}

// discardPending deletes a response the session archived but never bound.
// Abandoning a flow mid-way, via /cancel or by starting over, must not
// strand the copy in the archive chat forever.
func (w *Wizard) discardPending(ctx context.Context, s *state.Session) {
	ref, pending := s.PendingResponseRef()
	if !pending {
		return
	}
	if err := w.msgr.DeleteContent(ctx, w.archiveChatID, ref); err != nil {
		logger.Warn(ctx, "wizard", "archive.cleanup",
			slog.Int("response_ref", ref),
			slog.String("err", err.Error()),
		)
	}
}

// HandleReplyMode consumes the publishing-mode button press.
func (w *Wizard) HandleReplyMode(c tele.Context) error {
	u, ok := LocalUser(c)
	if !ok {
		return nil
	}
	ctx := tghelpers.BuildContext(c)
	chatID := chatIDOf(c)

	choice := callbacks.CallbackPayload(c)
	if choice != replyModeReply && choice != replyModeNew {
		return &ValidationError{Reason: fmt.Sprintf("unknown reply mode %q", choice)}
	}

	var conflict error
	err := w.states.Update(ctx, u.ID, func(s *state.Session) error {
		arch, live := s.ResponseArchived()
		if !live {
			conflict = &StateConflictError{Phase: s.Phase}
			w.notify(ctx, chatID, msgStaleAction(), kbConfigure())
			return nil
		}
		s.Phase = state.PhaseAwaitingFrequency
		s.Payload = state.ModeChosen{
			ChannelID:   arch.ChannelID,
			ResponseRef: arch.ResponseRef,
			IsReply:     choice == replyModeReply,
		}
		return nil
	})
	if err != nil {
		return err
	}
	if conflict != nil {
		return conflict
	}
	w.notify(ctx, chatID, msgStepFrequency(), kbCancel())
	return nil
}

func (w *Wizard) stepChannelForward(c tele.Context, s *state.Session) error {
	ctx := tghelpers.BuildContext(c)
	chatID := chatIDOf(c)

	var src *tele.Chat
	if m := c.Message(); m != nil {
		src = m.OriginalChat
	}
	if src == nil || (src.Type != tele.ChatChannel && src.Type != tele.ChatChannelPrivate) {
		w.notify(ctx, chatID, msgNotChannelForward(), kbCancel())
		return nil
	}

	ch, err := w.channels.Upsert(ctx, src.ID, src.Title, src.Username, string(src.Type))
	if err != nil {
		return err
	}
	title := channelTitle(ch)

	status, err := w.msgr.QueryChatAdminStatus(ctx, ch.ChannelID)
	if err != nil {
		logger.Error(ctx, "wizard", "admin.check",
			slog.Int64("channel_id", ch.ChannelID),
			slog.String("err", err.Error()),
		)
		s.Reset()
		w.notify(ctx, chatID, msgPermissionCheckFailed(title), kbConfigure())
		return nil
	}
	if !status.IsAdmin {
		s.Reset()
		w.notify(ctx, chatID, msgNotAdmin(title), kbConfigure())
		return nil
	}
	if !status.CanPost {
		s.Reset()
		w.notify(ctx, chatID, msgNoPostPermission(title), kbConfigure())
		return nil
	}

	s.Phase = state.PhaseAwaitingResponse
	s.Payload = state.ChannelSelected{ChannelID: ch.ChannelID}
	w.notify(ctx, chatID, msgStepResponse(title), kbCancel())
	return nil
}

func (w *Wizard) stepResponseMessage(c tele.Context, s *state.Session) error {
	ctx := tghelpers.BuildContext(c)
	chatID := chatIDOf(c)

	sel, live := s.ChannelSelected()
	if !live {
		s.Reset()
		w.notify(ctx, chatID, msgStaleAction(), kbConfigure())
		return nil
	}
	m := c.Message()
	if m == nil {
		return nil
	}

	ref, err := w.msgr.CopyContent(ctx, m.Chat.ID, w.archiveChatID, m.ID, SendOptions{})
	if err != nil {
		logger.Error(ctx, "wizard", "archive.copy",
			slog.Int64("channel_id", sel.ChannelID),
			slog.String("err", err.Error()),
		)
		s.Reset()
		w.notify(ctx, chatID, msgArchiveFailed(), kbConfigure())
		return nil
	}

	s.Phase = state.PhaseAwaitingReplyMode
	s.Payload = state.ResponseArchived{ChannelID: sel.ChannelID, ResponseRef: ref.MessageID}
	w.notify(ctx, chatID, msgStepReplyMode(), kbReplyMode())
	return nil
}

// stepReplyModeNudge handles plain messages sent while the flow waits for a
// button press.
func (w *Wizard) stepReplyModeNudge(c tele.Context, s *state.Session) error {
	ctx := tghelpers.BuildContext(c)
	w.notify(ctx, chatIDOf(c), msgUseButtons(), kbReplyMode())
	return nil
}

func (w *Wizard) stepFrequency(c tele.Context, s *state.Session) error {
	ctx := tghelpers.BuildContext(c)
	chatID := chatIDOf(c)

	mode, live := s.ModeChosen()
	if !live {
		s.Reset()
		w.notify(ctx, chatID, msgStaleAction(), kbConfigure())
		return nil
	}
	n, valid := tghelpers.ParsePositiveInt(c.Text())
	if !valid {
		w.notify(ctx, chatID, msgInvalidFrequency(), kbCancel())
		return nil
	}
	u, ok := LocalUser(c)
	if !ok {
		return nil
	}

	prevRef := w.supersededRef(ctx, mode.ChannelID, mode.ResponseRef)

	b, err := w.bindings.Upsert(ctx, mode.ChannelID, u.ID, mode.ResponseRef, mode.IsReply, n)
	if err != nil {
		return err
	}

	// The old copy is retired only now that the binding points at the new
	// one; a failed save must keep the surviving binding deliverable.
	w.retire(ctx, mode.ChannelID, prevRef)

	title := fmt.Sprintf("channel %d", mode.ChannelID)
	if ch, chErr := w.channels.ByChannelID(ctx, mode.ChannelID); chErr == nil {
		title = channelTitle(ch)
	}

	s.Reset()
	logger.Info(ctx, "wizard", "binding.saved",
		slog.Int64("channel_id", b.ChannelID),
		slog.Int("response_ref", b.ResponseRef),
		slog.Int("throttle_n", b.ThrottleN),
		slog.Bool("is_reply", b.IsReply),
	)
	w.notify(ctx, chatID, msgConfigured(title, b.ThrottleN, b.IsReply), nil)
	return nil
}

// supersededRef returns the archived response a new binding would replace,
// or zero when the channel is unbound or already points at newRef.
func (w *Wizard) supersededRef(ctx context.Context, channelID int64, newRef int) int {
	prev, err := w.bindings.ByChannel(ctx, channelID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			logger.Warn(ctx, "wizard", "binding.lookup",
				slog.Int64("channel_id", channelID),
				slog.String("err", err.Error()),
			)
		}
		return 0
	}
	if prev.ResponseRef == 0 || prev.ResponseRef == newRef {
		return 0
	}
	return prev.ResponseRef
}

// retire deletes a superseded archived response. The old copy is
// unreachable once the binding points elsewhere, so a failed delete is
// only logged.
func (w *Wizard) retire(ctx context.Context, channelID int64, ref int) {
	if ref == 0 {
		return
	}
	if err := w.msgr.DeleteContent(ctx, w.archiveChatID, ref); err != nil {
		logger.Warn(ctx, "wizard", "archive.retire",
			slog.Int64("channel_id", channelID),
			slog.Int("response_ref", ref),
			slog.String("err", err.Error()),
		)
	}
}

func channelTitle(ch storage.Channel) string {
	if ch.Title != "" {
		return mdSafe(ch.Title)
	}
	if ch.Username != "" {
		return mdSafe("@" + ch.Username)
	}
	return fmt.Sprintf("channel %d", ch.ChannelID)
}
