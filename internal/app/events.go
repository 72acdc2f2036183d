package app

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/astelio/consult/internal/core"
	"github.com/astelio/consult/internal/domain"
)

// Outbound notification types, one per wire event.
const (
	TypeJoined           = "joined"
	TypeChatEnabled      = "chat_enabled"
	TypePreviousMessages = "previous_messages"
	TypeTimerUpdate      = "timer_update"
	TypeBillingUpdate    = "billing_update"
	TypeChatMessage      = "chat_message"
	TypeSystemMessage    = "system_message"
	TypeChatPaused       = "chat_paused"
	TypeChatResumed      = "chat_resumed"
	TypeChatEnded        = "chat_ended"
)

const ReasonInsufficientCredit = "insufficient credit"

type JoinedEvent struct {
	Type string      `json:"type"`
	Role domain.Role `json:"role"`
}

type ChatEnabledEvent struct {
	Type    string `json:"type"`
	Enabled bool   `json:"enabled"`
}

// MessageDTO is the replay/broadcast view of a stored message.
type MessageDTO struct {
	Sender domain.Role `json:"sender"`
	Text   string      `json:"text"`
}

type PreviousMessagesEvent struct {
	Type     string       `json:"type"`
	Messages []MessageDTO `json:"messages"`
}

type TimerUpdateEvent struct {
	Type    string `json:"type"`
	Elapsed int64  `json:"elapsed"`
}

type BillingUpdateEvent struct {
	Type             string  `json:"type"`
	CustomerAmount   float64 `json:"customer_amount"`
	ConsultantAmount float64 `json:"consultant_amount"`
}

type ChatMessageEvent struct {
	Type   string      `json:"type"`
	Sender domain.Role `json:"sender"`
	Text   string      `json:"text"`
}

type SystemMessageEvent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type ChatPausedEvent struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

type ChatResumedEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type ChatEndedEvent struct {
	Type     string `json:"type"`
	Redirect bool   `json:"redirect"`
	Message  string `json:"message,omitempty"`
}

func encode(v any) (core.Frame, bool) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "app.events").Msg("encode event")
		return nil, false
	}
	return b, true
}

// publishRoom fans an event out to every member of the room, sender included
// (the reference transport emits to the whole room).
func publishRoom(rooms core.RoomFactory, key domain.RoomKey, v any) core.PublishResult {
	room, ok := rooms.Get(key)
	if !ok {
		return core.PublishResult{}
	}
	b, ok := encode(v)
	if !ok {
		return core.PublishResult{}
	}
	return room.Broadcast(b)
}

func sendTo(conn core.SignalConnection, v any) {
	if conn == nil {
		return
	}
	b, ok := encode(v)
	if !ok {
		return
	}
	_ = conn.TrySend(b)
}
