package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"nextmsgbot/core/logger"
)

// ChannelStore upserts Telegram channels by external id.
type ChannelStore struct {
	db *sqlx.DB
}

// NewChannelStore builds a ChannelStore on the shared connection pool.
func NewChannelStore(db *sqlx.DB) *ChannelStore {
	return &ChannelStore{db: db}
}

const upsertChannelQuery = `
INSERT INTO channels (channel_id, title, username, kind, created_at, updated_at)
VALUES ($1, $2, $3, $4, now(), now())
ON CONFLICT (channel_id) DO UPDATE SET
    title      = EXCLUDED.title,
    username   = EXCLUDED.username,
    kind       = EXCLUDED.kind,
    updated_at = now()
RETURNING id, channel_id, title, username, kind, created_at, updated_at`

// Upsert creates or refreshes the record for the given external channel id.
func (s *ChannelStore) Upsert(ctx context.Context, channelID int64, title, username, kind string) (Channel, error) {
	if kind == "" {
		kind = "channel"
	}
	var ch Channel
	err := s.db.GetContext(ctx, &ch, upsertChannelQuery, channelID, title, username, kind)
	if err != nil {
		logger.SVCChannels.Error("channel upsert failed",
			slog.String("event", "channels.upsert"),
			slog.Int64("channel_id", channelID),
			slog.String("err", err.Error()),
		)
		return Channel{}, fmt.Errorf("storage: upsert channel %d: %w", channelID, err)
	}
	return ch, nil
}

// ByChannelID returns the stored channel, or ErrNotFound.
func (s *ChannelStore) ByChannelID(ctx context.Context, channelID int64) (Channel, error) {
	var ch Channel
	err := s.db.GetContext(ctx, &ch, `
SELECT id, channel_id, title, username, kind, created_at, updated_at
FROM channels WHERE channel_id = $1`, channelID)
	if err != nil {
		if isNoRows(err) {
			return Channel{}, ErrNotFound
		}
		return Channel{}, fmt.Errorf("storage: load channel %d: %w", channelID, err)
	}
	return ch, nil
}
