package state

import (
	"context"
	"fmt"
	"log/slog"

	"nextmsgbot/core/logger"
	tghelpers "nextmsgbot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// Store persists conversation records keyed by local user id.
// Load must report a user without a record as an idle phase with nil payload.
type Store interface {
	Load(ctx context.Context, userID int64) (phase string, payload []byte, err error)
	Save(ctx context.Context, userID int64, phase string, payload []byte) error
}

// Handler advances the conversation for the phase it is registered under.
// It mutates the session in place; the manager persists the result after the
// handler returns nil. Returning an error leaves the stored record untouched.
type Handler func(c tele.Context, s *Session) error

// Manager serializes conversation updates per user on top of a Store.
// Two concurrent updates for the same user never interleave a load from one
// with a save from the other; distinct users proceed in parallel.
type Manager struct {
	store    Store
	locks    stripedLock
	handlers map[Phase]Handler
}

// NewManager wraps a Store into a conversation manager.
func NewManager(store Store) *Manager {
	return &Manager{
		store:    store,
		handlers: make(map[Phase]Handler),
	}
}

// RegisterHandler associates a non-idle phase with its handler.
func (m *Manager) RegisterHandler(phase Phase, h Handler) {
	if h == nil || phase == PhaseIdle {
		return
	}
	m.handlers[phase] = h
}

// Update applies fn to the user's session as a single serialized
// read-modify-write. The mutated session is persisted only when fn returns nil.
func (m *Manager) Update(ctx context.Context, userID int64, fn func(s *Session) error) error {
	mu := m.locks.forKey(userID)
	mu.Lock()
	defer mu.Unlock()

	rawPhase, rawPayload, err := m.store.Load(ctx, userID)
	if err != nil {
		return fmt.Errorf("state: load user %d: %w", userID, err)
	}
	phase, err := ParsePhase(rawPhase)
	if err != nil {
		return err
	}
	payload, err := DecodePayload(phase, rawPayload)
	if err != nil {
		return err
	}

	s := &Session{UserID: userID, Phase: phase, Payload: payload}
	if err := fn(s); err != nil {
		return err
	}

	encoded, err := EncodePayload(s.Phase, s.Payload)
	if err != nil {
		return err
	}
	if err := m.store.Save(ctx, userID, string(s.Phase), encoded); err != nil {
		return fmt.Errorf("state: save user %d: %w", userID, err)
	}
	return nil
}

// Reset forces the user's conversation back to idle.
func (m *Manager) Reset(ctx context.Context, userID int64) error {
	return m.Update(ctx, userID, func(s *Session) error {
		s.Reset()
		return nil
	})
}

// HandleActive dispatches the update to the handler registered for the user's
// current phase. It reports false without side effects when the user is idle.
// A non-idle phase with no registered handler is a wiring defect and fails.
func (m *Manager) HandleActive(c tele.Context, userID int64) (bool, error) {
	ctx := tghelpers.BuildContext(c)
	handled := false
	err := m.Update(ctx, userID, func(s *Session) error {
		if s.Phase == PhaseIdle {
			return nil
		}
		h, ok := m.handlers[s.Phase]
		if !ok {
			return fmt.Errorf("state: no handler registered for phase %q", s.Phase)
		}
		logger.Debug(ctx, "wizard", "fsm.dispatch",
			slog.Int64("user_id", userID),
			slog.String("phase", string(s.Phase)),
		)
		handled = true
		return h(c, s)
	})
	return handled, err
}

// InProgress reports whether the user currently has an active conversation.
func (m *Manager) InProgress(ctx context.Context, userID int64) bool {
	rawPhase, _, err := m.store.Load(ctx, userID)
	if err != nil {
		logger.Warn(ctx, "wizard", "fsm.peek.fail",
			slog.Int64("user_id", userID),
			slog.String("err", err.Error()),
		)
		return false
	}
	phase, err := ParsePhase(rawPhase)
	if err != nil {
		return false
	}
	return phase != PhaseIdle
}
