package storage

import (
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound reports that no record matched the lookup key.
var ErrNotFound = errors.New("storage: not found")

// User is a Telegram account known to the bot, keyed by its external id.
// Records are upserted on every interaction and never deleted.
type User struct {
	ID             int64     `db:"id"`
	TelegramUserID int64     `db:"telegram_user_id"`
	FirstName      string    `db:"first_name"`
	LastName       string    `db:"last_name"`
	Username       string    `db:"username"`
	LanguageCode   string    `db:"language_code"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

// DisplayName joins the profile name parts for user-facing messages.
func (u User) DisplayName() string {
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// Channel is a Telegram channel seen during configuration, keyed by its
// external id. The title is refreshed on later encounters.
type Channel struct {
	ID        int64     `db:"id"`
	ChannelID int64     `db:"channel_id"`
	Title     string    `db:"title"`
	Username  string    `db:"username"`
	Kind      string    `db:"kind"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// ConversationRecord is the raw persisted form of a user's wizard progress.
// The phase/payload pair is interpreted by the state package.
type ConversationRecord struct {
	UserID    int64           `db:"user_id"`
	Phase     string          `db:"phase"`
	Payload   json.RawMessage `db:"payload"`
	CreatedAt time.Time       `db:"created_at"`
	UpdatedAt time.Time       `db:"updated_at"`
}

// Binding is the channel-to-response configuration: which archived message to
// replay on new posts in the channel, how, and how often. One per channel;
// reconfiguring a channel replaces the whole row.
type Binding struct {
	ID            int64     `db:"id"`
	ChannelID     int64     `db:"channel_id"`
	OwnerUserID   int64     `db:"owner_user_id"`
	ResponseRef   int       `db:"response_ref"`
	IsReply       bool      `db:"is_reply"`
	ThrottleN     int       `db:"throttle_n"`
	ReceivedCount int       `db:"received_count"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}
