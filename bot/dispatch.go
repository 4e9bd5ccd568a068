package bot

import (
	"errors"
	"sync"

	"nextmsgbot/core/logger"
	tghelpers "nextmsgbot/core/telegram/helpers"
	"nextmsgbot/storage"
	"log/slog"

	tele "gopkg.in/telebot.v4"
)

const dispatchLockStripes = 64

// Dispatcher counts channel posts and re-publishes the bound response once
// the configured number of posts has arrived. Posts for the same channel are
// handled one at a time: the increment, the copy and the counter reset form
// one cycle that concurrent deliveries must not interleave.
type Dispatcher struct {
	bindings      BindingDirectory
	msgr          Messenger
	archiveChatID int64
	locks         [dispatchLockStripes]sync.Mutex
}

func (d *Dispatcher) lockFor(channelID int64) *sync.Mutex {
	return &d.locks[uint64(channelID)%dispatchLockStripes]
}

// NewDispatcher builds the channel post dispatcher.
func NewDispatcher(bindings BindingDirectory, msgr Messenger, archiveChatID int64) *Dispatcher {
	return &Dispatcher{bindings: bindings, msgr: msgr, archiveChatID: archiveChatID}
}

// HandleChannelPost processes one channel post. The counter increment is a
// single guarded UPDATE, so concurrent posts from the same channel never
// lose a count. The counter is zeroed only after the copy succeeds; a
// failed copy leaves it in place and the next post retries.
func (d *Dispatcher) HandleChannelPost(c tele.Context) error {
	m := c.Message()
	if m == nil || m.Chat == nil {
		return nil
	}
	ctx := tghelpers.BuildContext(c)

	if isServicePost(m) {
		logger.Debug(ctx, "dispatch", "post.service",
			slog.Int64("channel_id", m.Chat.ID),
		)
		return nil
	}

	// Posts for the same channel run the full increment/copy/reset cycle
	// under one lock; a post arriving mid-copy must not see an interim
	// count or get its bump wiped by the reset.
	mu := d.lockFor(m.Chat.ID)
	mu.Lock()
	defer mu.Unlock()

	b, err := d.bindings.BumpReceived(ctx, m.Chat.ID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			logger.Debug(ctx, "dispatch", "post.unbound",
				slog.Int64("channel_id", m.Chat.ID),
			)
			return nil
		}
		return err
	}

	if b.ReceivedCount < b.ThrottleN {
		logger.Debug(ctx, "dispatch", "post.counted",
			slog.Int64("channel_id", b.ChannelID),
			slog.Int("received_count", b.ReceivedCount),
			slog.Int("throttle_n", b.ThrottleN),
		)
		return nil
	}

	opts := SendOptions{}
	if b.IsReply {
		opts.ReplyTo = m.ID
		opts.Silent = true
	}
	if _, err := d.msgr.CopyContent(ctx, d.archiveChatID, b.ChannelID, b.ResponseRef, opts); err != nil {
		// Counter stays put so the next post triggers another attempt.
		logger.Error(ctx, "dispatch", "response.send",
			slog.Int64("channel_id", b.ChannelID),
			slog.Int("response_ref", b.ResponseRef),
			slog.String("err", err.Error()),
		)
		return nil
	}
	if err := d.bindings.ResetReceived(ctx, b.ChannelID); err != nil {
		return err
	}

	logger.Info(ctx, "dispatch", "response.sent",
		slog.Int64("channel_id", b.ChannelID),
		slog.Int("response_ref", b.ResponseRef),
		slog.Bool("is_reply", b.IsReply),
	)
	return nil
}

// isServicePost reports join/leave/title style service messages that never
// count towards the throttle.
func isServicePost(m *tele.Message) bool {
	switch {
	case m.UserJoined != nil,
		len(m.UsersJoined) > 0,
		m.UserLeft != nil,
		m.NewGroupTitle != "",
		m.NewGroupPhoto != nil,
		m.GroupPhotoDeleted,
		m.GroupCreated,
		m.SuperGroupCreated,
		m.ChannelCreated:
		return true
	}
	return false
}
