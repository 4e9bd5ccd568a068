package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"nextmsgbot/core/logger"
)

// UserStore upserts Telegram users by external id.
type UserStore struct {
	db *sqlx.DB
}

// NewUserStore builds a UserStore on the shared connection pool.
func NewUserStore(db *sqlx.DB) *UserStore {
	return &UserStore{db: db}
}

const upsertUserQuery = `
INSERT INTO users (telegram_user_id, first_name, last_name, username, language_code, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, now(), now())
ON CONFLICT (telegram_user_id) DO UPDATE SET
    first_name    = EXCLUDED.first_name,
    last_name     = EXCLUDED.last_name,
    username      = EXCLUDED.username,
    language_code = EXCLUDED.language_code,
    updated_at    = now()
RETURNING id, telegram_user_id, first_name, last_name, username, language_code, created_at, updated_at`

// Upsert creates or refreshes the record for the given external id and returns
// the local identity. Calling twice with the same id yields the same record,
// with the newer profile fields winning.
func (s *UserStore) Upsert(ctx context.Context, telegramUserID int64, firstName, lastName, username, languageCode string) (User, error) {
	var u User
	err := s.db.GetContext(ctx, &u, upsertUserQuery, telegramUserID, firstName, lastName, username, languageCode)
	if err != nil {
		logger.SVCUsers.Error("user upsert failed",
			slog.String("event", "users.upsert"),
			slog.Int64("user_id", telegramUserID),
			slog.String("err", err.Error()),
		)
		return User{}, fmt.Errorf("storage: upsert user %d: %w", telegramUserID, err)
	}
	return u, nil
}
