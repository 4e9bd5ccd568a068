package bot

import (
	"errors"
	"strings"
	"testing"

	"nextmsgbot/core/telegram/router"
	"nextmsgbot/core/telegram/state"
	"nextmsgbot/storage"

	tele "gopkg.in/telebot.v4"
)

const testAdminChannelID int64 = -100800

type gateFixture struct {
	store *memStateStore
	msgr  *fakeMessenger
	gate  *Gate
	user  storage.User
}

func newGateFixture() *gateFixture {
	store := newMemStateStore()
	msgr := newFakeMessenger()
	gate := NewGate(msgr, state.NewManager(store), testAdminChannelID, "https://t.me/+invite",
		map[string]struct{}{"/start": {}})
	return &gateFixture{
		store: store,
		msgr:  msgr,
		gate:  gate,
		user:  storage.User{ID: 1, TelegramUserID: 555, FirstName: "Ada"},
	}
}

func (fx *gateFixture) run(t *testing.T, c tele.Context, kind string) bool {
	t.Helper()
	c.Set(router.UpdateKindKey, kind)
	passed := false
	err := fx.gate.Middleware()(func(tele.Context) error {
		passed = true
		return nil
	})(c)
	if err != nil {
		t.Fatalf("gate: %v", err)
	}
	return passed
}

func TestGateAllowsMembers(t *testing.T) {
	fx := newGateFixture()
	fx.msgr.member = true

	if !fx.run(t, privateTextCtx(fx.user, "/configure"), router.KindPrivate) {
		t.Fatal("member blocked")
	}
}

func TestGateDeniesOutsidersAndResetsState(t *testing.T) {
	fx := newGateFixture()
	fx.msgr.member = false
	fx.store.phases[fx.user.ID] = "awaiting_channel_message"

	c := privateTextCtx(fx.user, "/configure")
	if fx.run(t, c, router.KindPrivate) {
		t.Fatal("outsider passed the gate")
	}
	if got := fx.store.phase(fx.user.ID); got != "idle" {
		t.Fatalf("phase = %s, denial must reset the conversation", got)
	}
	if len(c.sent) == 0 || !strings.Contains(c.sent[0], "invite") {
		t.Fatalf("denial message missing: %v", c.sent)
	}
}

func TestGateFailsClosedOnLookupError(t *testing.T) {
	fx := newGateFixture()
	fx.msgr.memberErr = &TransportError{Op: "getChatMember", Err: errors.New("timeout")}

	if fx.run(t, privateTextCtx(fx.user, "/configure"), router.KindPrivate) {
		t.Fatal("lookup failure must deny access")
	}
}

func TestGateSkipsChannelPosts(t *testing.T) {
	fx := newGateFixture()
	fx.msgr.member = false

	if !fx.run(t, channelPostCtx(-100123, 1), router.KindChannelPost) {
		t.Fatal("channel post blocked by the gate")
	}
}

func TestGateSkipsExemptCommands(t *testing.T) {
	fx := newGateFixture()
	fx.msgr.member = false

	if !fx.run(t, privateTextCtx(fx.user, "/start"), router.KindPrivate) {
		t.Fatal("/start must bypass the gate")
	}
	if !fx.run(t, privateTextCtx(fx.user, "/start@nextmsgbot some args"), router.KindPrivate) {
		t.Fatal("addressed /start must bypass the gate")
	}
	if fx.run(t, privateTextCtx(fx.user, "/configure"), router.KindPrivate) {
		t.Fatal("/configure must stay gated")
	}
}

func TestGateGatesCallbacks(t *testing.T) {
	fx := newGateFixture()
	fx.msgr.member = false

	c := callbackCtx(fx.user, cbConfigure, "")
	if fx.run(t, c, router.KindCallback) {
		t.Fatal("outsider callback passed the gate")
	}
	if len(fx.msgr.answers) != 1 {
		t.Fatalf("callback not acknowledged on denial: %d", len(fx.msgr.answers))
	}
}

func TestGateDisabledPassesEveryone(t *testing.T) {
	store := newMemStateStore()
	msgr := newFakeMessenger()
	msgr.member = false
	gate := NewGate(msgr, state.NewManager(store), 0, "", nil)

	passed := false
	c := privateTextCtx(storage.User{ID: 1, TelegramUserID: 5}, "hello")
	c.Set(router.UpdateKindKey, router.KindPrivate)
	err := gate.Middleware()(func(tele.Context) error {
		passed = true
		return nil
	})(c)
	if err != nil {
		t.Fatalf("gate: %v", err)
	}
	if !passed {
		t.Fatal("disabled gate blocked an update")
	}
}
