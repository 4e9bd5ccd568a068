package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"nextmsgbot/core/logger"
)

// StateStore persists per-user conversation records. It implements the state
// package's Store contract: a user without a record loads as idle.
type StateStore struct {
	db *sqlx.DB
}

// NewStateStore builds a StateStore on the shared connection pool.
func NewStateStore(db *sqlx.DB) *StateStore {
	return &StateStore{db: db}
}

// Load returns the stored phase and payload for the user, or an idle record
// when the user has never started a conversation.
func (s *StateStore) Load(ctx context.Context, userID int64) (string, []byte, error) {
	var rec ConversationRecord
	err := s.db.GetContext(ctx, &rec, `
SELECT user_id, phase, payload, created_at, updated_at
FROM conversation_states WHERE user_id = $1`, userID)
	if err != nil {
		if isNoRows(err) {
			return "idle", nil, nil
		}
		return "", nil, fmt.Errorf("storage: load state for user %d: %w", userID, err)
	}
	return rec.Phase, rec.Payload, nil
}

// Save writes the phase/payload pair for the user, creating the record on
// first use. A nil payload is stored as SQL NULL.
func (s *StateStore) Save(ctx context.Context, userID int64, phase string, payload []byte) error {
	var raw any
	if len(payload) > 0 {
		raw = payload
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO conversation_states (user_id, phase, payload, created_at, updated_at)
VALUES ($1, $2, $3, now(), now())
ON CONFLICT (user_id) DO UPDATE SET
    phase      = EXCLUDED.phase,
    payload    = EXCLUDED.payload,
    updated_at = now()`, userID, phase, raw)
	if err != nil {
		logger.SVCStates.Error("state save failed",
			slog.String("event", "states.save"),
			slog.Int64("user_id", userID),
			slog.String("phase", phase),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("storage: save state for user %d: %w", userID, err)
	}
	return nil
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
