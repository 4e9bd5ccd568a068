package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"nextmsgbot/core/logger"
)

// BindingStore persists channel-to-response configurations. Counter mutations
// run as single UPDATE statements so concurrent posts for the same channel
// serialize at the database rather than in process memory.
type BindingStore struct {
	db *sqlx.DB
}

// NewBindingStore builds a BindingStore on the shared connection pool.
func NewBindingStore(db *sqlx.DB) *BindingStore {
	return &BindingStore{db: db}
}

const bindingColumns = `id, channel_id, owner_user_id, response_ref, is_reply, throttle_n, received_count, created_at, updated_at`

// ByChannel returns the binding configured for the channel, or ErrNotFound.
func (s *BindingStore) ByChannel(ctx context.Context, channelID int64) (Binding, error) {
	var b Binding
	err := s.db.GetContext(ctx, &b, `
SELECT `+bindingColumns+` FROM bindings WHERE channel_id = $1`, channelID)
	if err != nil {
		if isNoRows(err) {
			return Binding{}, ErrNotFound
		}
		return Binding{}, fmt.Errorf("storage: load binding for channel %d: %w", channelID, err)
	}
	return b, nil
}

const upsertBindingQuery = `
INSERT INTO bindings (channel_id, owner_user_id, response_ref, is_reply, throttle_n, received_count, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, 0, now(), now())
ON CONFLICT (channel_id) DO UPDATE SET
    owner_user_id  = EXCLUDED.owner_user_id,
    response_ref   = EXCLUDED.response_ref,
    is_reply       = EXCLUDED.is_reply,
    throttle_n     = EXCLUDED.throttle_n,
    received_count = 0,
    updated_at     = now()
RETURNING ` + bindingColumns

// Upsert installs or replaces the binding for a channel. The received counter
// always restarts at zero: a fresh configuration begins a fresh cycle.
func (s *BindingStore) Upsert(ctx context.Context, channelID, ownerUserID int64, responseRef int, isReply bool, throttleN int) (Binding, error) {
	if throttleN < 1 {
		throttleN = 1
	}
	var b Binding
	err := s.db.GetContext(ctx, &b, upsertBindingQuery, channelID, ownerUserID, responseRef, isReply, throttleN)
	if err != nil {
		logger.SVCBindings.Error("binding upsert failed",
			slog.String("event", "bindings.upsert"),
			slog.Int64("channel_id", channelID),
			slog.String("err", err.Error()),
		)
		return Binding{}, fmt.Errorf("storage: upsert binding for channel %d: %w", channelID, err)
	}
	return b, nil
}

// BumpReceived increments the received counter for the channel and returns the
// binding as of the increment. Channels with no binding, or whose binding has
// no archived response, are not counted and report ErrNotFound.
func (s *BindingStore) BumpReceived(ctx context.Context, channelID int64) (Binding, error) {
	var b Binding
	err := s.db.GetContext(ctx, &b, `
UPDATE bindings
SET received_count = received_count + 1, updated_at = now()
WHERE channel_id = $1 AND response_ref <> 0
RETURNING `+bindingColumns, channelID)
	if err != nil {
		if isNoRows(err) {
			return Binding{}, ErrNotFound
		}
		return Binding{}, fmt.Errorf("storage: bump counter for channel %d: %w", channelID, err)
	}
	return b, nil
}

// ResetReceived zeroes the received counter after a successful dispatch.
func (s *BindingStore) ResetReceived(ctx context.Context, channelID int64) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE bindings SET received_count = 0, updated_at = now() WHERE channel_id = $1`, channelID)
	if err != nil {
		return fmt.Errorf("storage: reset counter for channel %d: %w", channelID, err)
	}
	return nil
}

// ByOwner lists the bindings configured by the user, newest first.
func (s *BindingStore) ByOwner(ctx context.Context, ownerUserID int64) ([]Binding, error) {
	var out []Binding
	err := s.db.SelectContext(ctx, &out, `
SELECT `+bindingColumns+` FROM bindings WHERE owner_user_id = $1 ORDER BY updated_at DESC`, ownerUserID)
	if err != nil {
		return nil, fmt.Errorf("storage: list bindings for owner %d: %w", ownerUserID, err)
	}
	return out, nil
}

// CountByOwner reports how many channels the user has configured.
func (s *BindingStore) CountByOwner(ctx context.Context, ownerUserID int64) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM bindings WHERE owner_user_id = $1`, ownerUserID)
	if err != nil {
		return 0, fmt.Errorf("storage: count bindings for owner %d: %w", ownerUserID, err)
	}
	return n, nil
}
