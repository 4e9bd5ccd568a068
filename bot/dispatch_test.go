package bot

import (
	"context"
	"errors"
	"sync"
	"testing"

	tele "gopkg.in/telebot.v4"
)

func newDispatchFixture(throttleN int, isReply bool) (*Dispatcher, *memBindings, *fakeMessenger) {
	bindings := newMemBindings()
	_, _ = bindings.Upsert(context.Background(), -100123, 1, 55, isReply, throttleN)
	msgr := newFakeMessenger()
	return NewDispatcher(bindings, msgr, testArchiveID), bindings, msgr
}

func TestDispatchFiresOnThreshold(t *testing.T) {
	d, bindings, msgr := newDispatchFixture(3, false)

	for i, msgID := range []int{201, 202} {
		if err := d.HandleChannelPost(channelPostCtx(-100123, msgID)); err != nil {
			t.Fatalf("post %d: %v", i, err)
		}
		if len(msgr.copies) != 0 {
			t.Fatalf("fired early after %d posts", i+1)
		}
	}

	if err := d.HandleChannelPost(channelPostCtx(-100123, 203)); err != nil {
		t.Fatalf("third post: %v", err)
	}
	if len(msgr.copies) != 1 {
		t.Fatalf("copies = %d, expected dispatch on the third post", len(msgr.copies))
	}
	sent := msgr.copies[0]
	if sent.from != testArchiveID || sent.to != -100123 || sent.messageID != 55 {
		t.Fatalf("dispatched %+v", sent)
	}
	if sent.opts.ReplyTo != 0 || sent.opts.Silent {
		t.Fatalf("standalone mode used reply options: %+v", sent.opts)
	}

	b, _ := bindings.ByChannel(context.Background(), -100123)
	if b.ReceivedCount != 0 {
		t.Fatalf("counter = %d after dispatch", b.ReceivedCount)
	}
}

func TestDispatchEveryPostWhenThrottleIsOne(t *testing.T) {
	d, _, msgr := newDispatchFixture(1, false)

	for i := 0; i < 4; i++ {
		if err := d.HandleChannelPost(channelPostCtx(-100123, 300+i)); err != nil {
			t.Fatalf("post %d: %v", i, err)
		}
	}
	if len(msgr.copies) != 4 {
		t.Fatalf("copies = %d, throttle 1 dispatches on every post", len(msgr.copies))
	}
}

func TestDispatchReplyModeRepliesSilently(t *testing.T) {
	d, _, msgr := newDispatchFixture(1, true)

	if err := d.HandleChannelPost(channelPostCtx(-100123, 400)); err != nil {
		t.Fatalf("post: %v", err)
	}
	if len(msgr.copies) != 1 {
		t.Fatalf("copies = %d", len(msgr.copies))
	}
	opts := msgr.copies[0].opts
	if opts.ReplyTo != 400 || !opts.Silent {
		t.Fatalf("reply mode options = %+v", opts)
	}
}

func TestDispatchKeepsCounterWhenSendFails(t *testing.T) {
	d, bindings, msgr := newDispatchFixture(2, false)
	msgr.copyErr = &TransportError{Op: "copyMessage", Err: errors.New("flood wait")}

	if err := d.HandleChannelPost(channelPostCtx(-100123, 500)); err != nil {
		t.Fatalf("post: %v", err)
	}
	if err := d.HandleChannelPost(channelPostCtx(-100123, 501)); err != nil {
		t.Fatalf("post: %v", err)
	}

	b, _ := bindings.ByChannel(context.Background(), -100123)
	if b.ReceivedCount != 2 {
		t.Fatalf("counter = %d, failed send must keep the count", b.ReceivedCount)
	}

	// Transport recovers; the very next post crosses the threshold again.
	msgr.copyErr = nil
	if err := d.HandleChannelPost(channelPostCtx(-100123, 502)); err != nil {
		t.Fatalf("post: %v", err)
	}
	if len(msgr.copies) != 1 {
		t.Fatalf("copies = %d, expected a self-healing retry", len(msgr.copies))
	}
	b, _ = bindings.ByChannel(context.Background(), -100123)
	if b.ReceivedCount != 0 {
		t.Fatalf("counter = %d after successful retry", b.ReceivedCount)
	}
}

// gatedMessenger blocks its first copy until released so a test can line up
// another post while a dispatch is still in flight.
type gatedMessenger struct {
	*fakeMessenger
	entered chan struct{}
	release chan struct{}
	first   sync.Once
}

func (g *gatedMessenger) CopyContent(ctx context.Context, fromChatID, toChatID int64, messageID int, opts SendOptions) (MessageRef, error) {
	g.first.Do(func() {
		close(g.entered)
		<-g.release
	})
	return g.fakeMessenger.CopyContent(ctx, fromChatID, toChatID, messageID, opts)
}

func TestDispatchSerializesPostsPerChannel(t *testing.T) {
	bindings := newMemBindings()
	_, _ = bindings.Upsert(context.Background(), -100123, 1, 55, false, 3)
	msgr := &gatedMessenger{
		fakeMessenger: newFakeMessenger(),
		entered:       make(chan struct{}),
		release:       make(chan struct{}),
	}
	d := NewDispatcher(bindings, msgr, testArchiveID)

	for _, msgID := range []int{801, 802} {
		if err := d.HandleChannelPost(channelPostCtx(-100123, msgID)); err != nil {
			t.Fatalf("post %d: %v", msgID, err)
		}
	}

	errs := make(chan error, 2)
	go func() { errs <- d.HandleChannelPost(channelPostCtx(-100123, 803)) }()
	<-msgr.entered

	// The fourth post arrives while the third is still copying. It must
	// wait its turn rather than read the not-yet-reset counter and fire a
	// second copy, and its bump must survive the reset.
	go func() { errs <- d.HandleChannelPost(channelPostCtx(-100123, 804)) }()
	close(msgr.release)
	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil {
			t.Fatalf("concurrent post: %v", err)
		}
	}

	if len(msgr.copies) != 1 {
		t.Fatalf("copies = %d, only the third post crosses the threshold", len(msgr.copies))
	}
	b, _ := bindings.ByChannel(context.Background(), -100123)
	if b.ReceivedCount != 1 {
		t.Fatalf("counter = %d, the fourth post must count towards the next cycle", b.ReceivedCount)
	}
}

func TestDispatchIgnoresUnboundChannel(t *testing.T) {
	d, _, msgr := newDispatchFixture(1, false)

	if err := d.HandleChannelPost(channelPostCtx(-777, 600)); err != nil {
		t.Fatalf("post: %v", err)
	}
	if len(msgr.copies) != 0 {
		t.Fatalf("copies = %d for unbound channel", len(msgr.copies))
	}
}

func TestDispatchIgnoresServicePosts(t *testing.T) {
	d, bindings, msgr := newDispatchFixture(1, false)

	c := channelPostCtx(-100123, 700)
	c.update.ChannelPost.Text = ""
	c.update.ChannelPost.UserJoined = &tele.User{ID: 9}
	if err := d.HandleChannelPost(c); err != nil {
		t.Fatalf("service post: %v", err)
	}

	if len(msgr.copies) != 0 {
		t.Fatalf("copies = %d for service post", len(msgr.copies))
	}
	b, _ := bindings.ByChannel(context.Background(), -100123)
	if b.ReceivedCount != 0 {
		t.Fatalf("service post counted: %d", b.ReceivedCount)
	}
}
