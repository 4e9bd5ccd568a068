package bot

import (
	"errors"
	"testing"

	"nextmsgbot/storage"

	tele "gopkg.in/telebot.v4"
)

func TestResolveUserMiddlewareUpserts(t *testing.T) {
	users := newMemUsers()
	mw := ResolveUserMiddleware(users)

	var resolved storage.User
	var ok bool
	next := func(c tele.Context) error {
		resolved, ok = LocalUser(c)
		return nil
	}

	c := &fakeContext{update: tele.Update{Message: &tele.Message{
		Sender: &tele.User{ID: 555, FirstName: "Ada", LastName: "L", Username: "ada", LanguageCode: "en"},
		Chat:   &tele.Chat{ID: 555, Type: tele.ChatPrivate},
		Text:   "/start",
	}}}
	if err := mw(next)(c); err != nil {
		t.Fatalf("middleware: %v", err)
	}
	if !ok {
		t.Fatal("local user not stored on context")
	}
	if resolved.TelegramUserID != 555 || resolved.FirstName != "Ada" || resolved.ID == 0 {
		t.Fatalf("resolved %+v", resolved)
	}

	// Same sender again keeps the directory id stable.
	second := &fakeContext{update: c.update}
	if err := mw(next)(second); err != nil {
		t.Fatalf("middleware: %v", err)
	}
	again, _ := LocalUser(second)
	if again.ID != resolved.ID {
		t.Fatalf("directory id changed: %d -> %d", resolved.ID, again.ID)
	}
}

func TestResolveUserMiddlewareDropsOnFailure(t *testing.T) {
	users := newMemUsers()
	users.err = errors.New("db down")
	mw := ResolveUserMiddleware(users)

	called := false
	next := func(c tele.Context) error {
		called = true
		return nil
	}
	c := privateTextCtx(storage.User{TelegramUserID: 555}, "hello")
	delete(c.kv, localUserKey)
	if err := mw(next)(c); err != nil {
		t.Fatalf("middleware: %v", err)
	}
	if called {
		t.Fatal("update must be dropped when the directory is unavailable")
	}
}

func TestResolveUserMiddlewareSkipsBotsAndChannelPosts(t *testing.T) {
	users := newMemUsers()
	mw := ResolveUserMiddleware(users)

	next := func(c tele.Context) error { return nil }

	bot := &fakeContext{update: tele.Update{Message: &tele.Message{
		Sender: &tele.User{ID: 777, IsBot: true},
		Chat:   &tele.Chat{ID: 777, Type: tele.ChatPrivate},
	}}}
	if err := mw(next)(bot); err != nil {
		t.Fatalf("middleware: %v", err)
	}
	if err := mw(next)(channelPostCtx(-100123, 1)); err != nil {
		t.Fatalf("middleware: %v", err)
	}
	if len(users.byTG) != 0 {
		t.Fatalf("directory grew for bot/channel updates: %d", len(users.byTG))
	}
}
