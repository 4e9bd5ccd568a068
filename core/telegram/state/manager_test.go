package state

import (
	"context"
	"errors"
	"sync"
	"testing"

	tele "gopkg.in/telebot.v4"
)

type memStore struct {
	mu       sync.Mutex
	phases   map[int64]string
	payloads map[int64][]byte
	saveErr  error
	saves    int
}

func newMemStore() *memStore {
	return &memStore{phases: map[int64]string{}, payloads: map[int64][]byte{}}
}

func (s *memStore) Load(_ context.Context, userID int64) (string, []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	phase, ok := s.phases[userID]
	if !ok {
		return string(PhaseIdle), nil, nil
	}
	return phase, s.payloads[userID], nil
}

func (s *memStore) Save(_ context.Context, userID int64, phase string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saves++
	s.phases[userID] = phase
	s.payloads[userID] = payload
	return nil
}

type stubContext struct {
	tele.Context
	update tele.Update
	kv     map[string]any
}

func (s *stubContext) Update() tele.Update { return s.update }

func (s *stubContext) Sender() *tele.User {
	if s.update.Message != nil {
		return s.update.Message.Sender
	}
	return nil
}

func (s *stubContext) Chat() *tele.Chat {
	if s.update.Message != nil {
		return s.update.Message.Chat
	}
	return nil
}

func (s *stubContext) Get(key string) any { return s.kv[key] }

func (s *stubContext) Set(key string, value any) {
	if s.kv == nil {
		s.kv = map[string]any{}
	}
	s.kv[key] = value
}

func privateText(userID int64, text string) *stubContext {
	user := &tele.User{ID: userID}
	return &stubContext{update: tele.Update{Message: &tele.Message{
		ID:     1,
		Sender: user,
		Chat:   &tele.Chat{ID: userID, Type: tele.ChatPrivate},
		Text:   text,
	}}}
}

func TestUpdatePersistsMutation(t *testing.T) {
	store := newMemStore()
	mgr := NewManager(store)

	err := mgr.Update(context.Background(), 7, func(s *Session) error {
		if s.Phase != PhaseIdle {
			t.Fatalf("fresh user starts in %s", s.Phase)
		}
		s.Phase = PhaseAwaitingResponse
		s.Payload = ChannelSelected{ChannelID: -42}
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	err = mgr.Update(context.Background(), 7, func(s *Session) error {
		sel, ok := s.ChannelSelected()
		if !ok || sel.ChannelID != -42 {
			t.Fatalf("payload not restored: %+v", s.Payload)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("second update: %v", err)
	}
}

func TestUpdateSkipsSaveOnHandlerError(t *testing.T) {
	store := newMemStore()
	mgr := NewManager(store)
	boom := errors.New("boom")

	err := mgr.Update(context.Background(), 7, func(s *Session) error {
		s.Phase = PhaseAwaitingChannel
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if store.saves != 0 {
		t.Fatalf("state saved despite handler error")
	}
}

func TestUpdateRejectsCorruptPhase(t *testing.T) {
	store := newMemStore()
	store.phases[7] = "warp_drive"
	mgr := NewManager(store)

	err := mgr.Update(context.Background(), 7, func(s *Session) error { return nil })
	if err == nil {
		t.Fatal("expected corrupt phase to surface")
	}
}

func TestHandleActiveIdleIsNoop(t *testing.T) {
	mgr := NewManager(newMemStore())
	mgr.RegisterHandler(PhaseAwaitingChannel, func(c tele.Context, s *Session) error {
		t.Fatal("handler must not run for idle user")
		return nil
	})

	handled, err := mgr.HandleActive(privateText(7, "hello"), 7)
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if handled {
		t.Fatal("idle user reported as handled")
	}
}

func TestHandleActiveDispatchesByPhase(t *testing.T) {
	store := newMemStore()
	store.phases[7] = string(PhaseAwaitingChannel)
	mgr := NewManager(store)

	mgr.RegisterHandler(PhaseAwaitingChannel, func(c tele.Context, s *Session) error {
		s.Phase = PhaseAwaitingResponse
		s.Payload = ChannelSelected{ChannelID: -1}
		return nil
	})

	handled, err := mgr.HandleActive(privateText(7, "fwd"), 7)
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if !handled {
		t.Fatal("active user not handled")
	}
	if store.phases[7] != string(PhaseAwaitingResponse) {
		t.Fatalf("phase = %s", store.phases[7])
	}
}

func TestHandleActiveMissingHandlerFails(t *testing.T) {
	store := newMemStore()
	store.phases[7] = string(PhaseAwaitingReplyMode)
	store.payloads[7] = []byte(`{"channel_id":-1,"response_ref":5}`)
	mgr := NewManager(store)

	handled, err := mgr.HandleActive(privateText(7, "text"), 7)
	if err == nil {
		t.Fatal("expected wiring error for unhandled phase")
	}
	if handled {
		t.Fatal("unhandled phase reported as handled")
	}
}

func TestResetReturnsToIdle(t *testing.T) {
	store := newMemStore()
	store.phases[7] = string(PhaseAwaitingFrequency)
	store.payloads[7] = []byte(`{"channel_id":-1,"response_ref":5,"is_reply":true}`)
	mgr := NewManager(store)

	if err := mgr.Reset(context.Background(), 7); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if store.phases[7] != string(PhaseIdle) {
		t.Fatalf("phase = %s", store.phases[7])
	}
	if store.payloads[7] != nil {
		t.Fatalf("payload survived reset: %s", store.payloads[7])
	}
}

func TestConcurrentUpdatesSameUserSerialize(t *testing.T) {
	store := newMemStore()
	mgr := NewManager(store)

	const workers = 16
	var wg sync.WaitGroup
	counts := make(chan int, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = mgr.Update(context.Background(), 7, func(s *Session) error {
				sel, _ := s.ChannelSelected()
				s.Phase = PhaseAwaitingResponse
				s.Payload = ChannelSelected{ChannelID: sel.ChannelID + 1}
				counts <- int(sel.ChannelID)
				return nil
			})
		}()
	}
	wg.Wait()
	close(counts)

	var final Session
	_ = mgr.Update(context.Background(), 7, func(s *Session) error {
		final = *s
		return nil
	})
	sel, _ := final.ChannelSelected()
	if sel.ChannelID != workers {
		t.Fatalf("lost increments: %d of %d", sel.ChannelID, workers)
	}
}
