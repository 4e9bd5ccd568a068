package bot

import (
	"testing"

	tele "gopkg.in/telebot.v4"
)

func TestClassifyCallback(t *testing.T) {
	u := tele.Update{Callback: &tele.Callback{ID: "x"}}
	cl := Classify(u, testArchiveID)
	if cl.Kind != KindCallbackAction || cl.Callback == nil {
		t.Fatalf("classified %+v", cl)
	}
}

func TestClassifyPrivateMessage(t *testing.T) {
	u := tele.Update{Message: &tele.Message{
		Chat: &tele.Chat{ID: 5, Type: tele.ChatPrivate},
	}}
	cl := Classify(u, testArchiveID)
	if cl.Kind != KindPrivateMessage || cl.Message == nil {
		t.Fatalf("classified %+v", cl)
	}
}

func TestClassifyChannelPost(t *testing.T) {
	u := tele.Update{ChannelPost: &tele.Message{
		Chat: &tele.Chat{ID: -100123, Type: tele.ChatChannel},
	}}
	cl := Classify(u, testArchiveID)
	if cl.Kind != KindChannelPost || cl.Message == nil {
		t.Fatalf("classified %+v", cl)
	}
}

func TestClassifyDropsArchiveFeedback(t *testing.T) {
	u := tele.Update{ChannelPost: &tele.Message{
		Chat: &tele.Chat{ID: testArchiveID, Type: tele.ChatChannel},
	}}
	if cl := Classify(u, testArchiveID); cl.Kind != KindIgnored {
		t.Fatalf("archive feedback classified as %v", cl.Kind)
	}
}

func TestClassifyDropsGroupsAndEmptyUpdates(t *testing.T) {
	group := tele.Update{Message: &tele.Message{
		Chat: &tele.Chat{ID: -5, Type: tele.ChatGroup},
	}}
	if cl := Classify(group, testArchiveID); cl.Kind != KindIgnored {
		t.Fatalf("group message classified as %v", cl.Kind)
	}
	edited := tele.Update{EditedMessage: &tele.Message{
		Chat: &tele.Chat{ID: 5, Type: tele.ChatPrivate},
	}}
	if cl := Classify(edited, testArchiveID); cl.Kind != KindIgnored {
		t.Fatalf("edited message classified as %v", cl.Kind)
	}
	if cl := Classify(tele.Update{}, testArchiveID); cl.Kind != KindIgnored {
		t.Fatalf("empty update classified as %v", cl.Kind)
	}
}

func TestClassifierMiddlewareDropsIgnored(t *testing.T) {
	mw := ClassifierMiddleware(testArchiveID)

	called := false
	next := func(c tele.Context) error {
		called = true
		return nil
	}

	ignored := &fakeContext{update: tele.Update{EditedMessage: &tele.Message{
		Chat: &tele.Chat{ID: 5, Type: tele.ChatPrivate},
	}}}
	if err := mw(next)(ignored); err != nil {
		t.Fatalf("middleware: %v", err)
	}
	if called {
		t.Fatal("ignored update reached the handler")
	}

	post := channelPostCtx(-100123, 1)
	if err := mw(next)(post); err != nil {
		t.Fatalf("middleware: %v", err)
	}
	if !called {
		t.Fatal("channel post dropped")
	}
	if kind, _ := post.Get("update_kind").(string); kind != "channel_post" {
		t.Fatalf("stored kind = %q", kind)
	}
}
