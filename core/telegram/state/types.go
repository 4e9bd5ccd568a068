package state

import (
	"encoding/json"
	"fmt"
)

// Phase identifies a step of the channel configuration conversation.
type Phase string

const (
	// PhaseIdle indicates there is no active conversation with the user.
	PhaseIdle Phase = "idle"
	// PhaseAwaitingChannel waits for a message forwarded from the target channel.
	PhaseAwaitingChannel Phase = "awaiting_channel_message"
	// PhaseAwaitingResponse waits for the content that should be replayed on new posts.
	PhaseAwaitingResponse Phase = "awaiting_response_message"
	// PhaseAwaitingReplyMode waits for the reply/new-message choice.
	PhaseAwaitingReplyMode Phase = "awaiting_reply_mode"
	// PhaseAwaitingFrequency waits for the throttle value (send every Nth post).
	PhaseAwaitingFrequency Phase = "awaiting_message_frequency"
)

// ParsePhase maps a stored phase tag back to the closed enum.
// An unknown tag means the record was written by incompatible code and is
// surfaced as a configuration-integrity error rather than silently coerced.
func ParsePhase(raw string) (Phase, error) {
	switch p := Phase(raw); p {
	case PhaseIdle, PhaseAwaitingChannel, PhaseAwaitingResponse, PhaseAwaitingReplyMode, PhaseAwaitingFrequency:
		return p, nil
	}
	return PhaseIdle, fmt.Errorf("state: unknown phase %q", raw)
}

// ChannelSelected is the payload carried while waiting for the response message.
type ChannelSelected struct {
	ChannelID int64 `json:"channel_id"`
}

// ResponseArchived is the payload carried while waiting for the reply-mode choice.
type ResponseArchived struct {
	ChannelID   int64 `json:"channel_id"`
	ResponseRef int   `json:"response_ref"`
}

// ModeChosen is the payload carried while waiting for the throttle value.
type ModeChosen struct {
	ChannelID   int64 `json:"channel_id"`
	ResponseRef int   `json:"response_ref"`
	IsReply     bool  `json:"is_reply"`
}

// Session is a user's conversation record: the current phase plus the payload
// shape that phase defines. Payload is nil exactly for the phases that carry
// no data (idle and awaiting_channel_message).
type Session struct {
	UserID  int64
	Phase   Phase
	Payload any
}

// ChannelSelected returns the payload of PhaseAwaitingResponse.
func (s *Session) ChannelSelected() (ChannelSelected, bool) {
	v, ok := s.Payload.(ChannelSelected)
	return v, ok
}

// ResponseArchived returns the payload of PhaseAwaitingReplyMode.
func (s *Session) ResponseArchived() (ResponseArchived, bool) {
	v, ok := s.Payload.(ResponseArchived)
	return v, ok
}

// ModeChosen returns the payload of PhaseAwaitingFrequency.
func (s *Session) ModeChosen() (ModeChosen, bool) {
	v, ok := s.Payload.(ModeChosen)
	return v, ok
}

// PendingResponseRef reports the archived response locator held by the current
// payload, if any. Cancel cleanup uses it to retire a half-configured archive.
func (s *Session) PendingResponseRef() (int, bool) {
	switch p := s.Payload.(type) {
	case ResponseArchived:
		return p.ResponseRef, p.ResponseRef != 0
	case ModeChosen:
		return p.ResponseRef, p.ResponseRef != 0
	}
	return 0, false
}

// Reset returns the session to idle and clears the payload.
func (s *Session) Reset() {
	s.Phase = PhaseIdle
	s.Payload = nil
}

// EncodePayload serializes a payload for storage, enforcing the shape the
// phase defines. A nil result means the phase carries no payload.
func EncodePayload(phase Phase, payload any) ([]byte, error) {
	switch phase {
	case PhaseIdle, PhaseAwaitingChannel:
		if payload != nil {
			return nil, fmt.Errorf("state: phase %s carries no payload, got %T", phase, payload)
		}
		return nil, nil
	case PhaseAwaitingResponse:
		if _, ok := payload.(ChannelSelected); !ok {
			return nil, fmt.Errorf("state: phase %s requires ChannelSelected, got %T", phase, payload)
		}
	case PhaseAwaitingReplyMode:
		if _, ok := payload.(ResponseArchived); !ok {
			return nil, fmt.Errorf("state: phase %s requires ResponseArchived, got %T", phase, payload)
		}
	case PhaseAwaitingFrequency:
		if _, ok := payload.(ModeChosen); !ok {
			return nil, fmt.Errorf("state: phase %s requires ModeChosen, got %T", phase, payload)
		}
	default:
		return nil, fmt.Errorf("state: unknown phase %q", phase)
	}
	return json.Marshal(payload)
}

// DecodePayload restores the typed payload a phase defines from its stored form.
func DecodePayload(phase Phase, raw []byte) (any, error) {
	switch phase {
	case PhaseIdle, PhaseAwaitingChannel:
		return nil, nil
	case PhaseAwaitingResponse:
		var v ChannelSelected
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("state: decode %s payload: %w", phase, err)
		}
		return v, nil
	case PhaseAwaitingReplyMode:
		var v ResponseArchived
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("state: decode %s payload: %w", phase, err)
		}
		return v, nil
	case PhaseAwaitingFrequency:
		var v ModeChosen
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("state: decode %s payload: %w", phase, err)
		}
		return v, nil
	}
	return nil, fmt.Errorf("state: unknown phase %q", phase)
}
