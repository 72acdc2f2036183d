package app

import (
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/astelio/consult/internal/core"
	"github.com/astelio/consult/internal/domain"
)

// System messages broadcast on the end paths.
const (
	msgEndedByYou     = "You ended the consultation."
	msgEndedByPeer    = "The consultation was ended by the other participant."
	msgEndedNoCredits = "The consultation ended. No billing changes were made."
	msgConsultResumed = "Consultation resumed."
)

// Controller dispatches inbound lifecycle events against the session state
// machine. All failure modes here are local: unknown rooms and invalid
// transitions are no-ops, ungated messages are dropped silently. Nothing
// propagates as a hard error to the sender.
type Controller struct {
	Registry *Registry
	Rooms    core.RoomFactory
	Sessions *SessionStore
	History  *History
	Meter    *Meter
	Policy   Policy

	locks roomLocks
}

// Join adds the participant to the room, lazily creating the session record,
// replays history to the joiner, and re-evaluates occupancy gating. The
// joiner always receives a fresh timer/billing snapshot, which covers
// reconnects.
func (c *Controller) Join(sid core.SessionID, key domain.RoomKey, rate float64) {
	if prev, _, ok := c.Registry.RoomOf(sid); ok {
		if prev == key {
			// Repeated join for the same room: no membership change, but
			// the joiner still gets the current snapshot.
			if ms, ok := c.Registry.GetSession(sid); ok {
				if sess, ok := c.Sessions.Get(key); ok {
					c.sendSnapshot(ms, sess)
				}
			}
			return
		}
		c.Leave(sid)
		log.Info().Str("module", "app.lifecycle").Str("sid", string(sid)).Str("from_room", string(prev)).Msg("left previous room on join")
	}
	ms, ok := c.Registry.GetSession(sid)
	if !ok {
		return
	}

	release := c.locks.Acquire(key)
	defer release()

	room := c.Rooms.GetOrCreate(key)
	room.AddMember(sid, ms)
	c.Registry.UpdateRoom(sid, key)
	sess := c.Sessions.GetOrCreate(key, rate)

	publishRoom(c.Rooms, key, JoinedEvent{Type: TypeJoined, Role: ms.Meta().Role})

	// The joiner alone gets the full replay before any new broadcast.
	if msgs := c.History.Messages(key); len(msgs) > 0 {
		sendTo(ms.Signal(), PreviousMessagesEvent{
			Type: TypePreviousMessages,
			Messages: lo.Map(msgs, func(m domain.Message, _ int) MessageDTO {
				return MessageDTO{Sender: m.Sender, Text: m.Text}
			}),
		})
	}

	switch n := room.MemberCount(); {
	case n == 2:
		publishRoom(c.Rooms, key, ChatEnabledEvent{Type: TypeChatEnabled, Enabled: true})
		c.Meter.EnsureRunning(key, sess)
	default:
		publishRoom(c.Rooms, key, ChatEnabledEvent{Type: TypeChatEnabled, Enabled: false})
		c.Meter.Pause(key, sess)
	}

	c.sendSnapshot(ms, sess)
	log.Info().Str("module", "app.lifecycle").Str("sid", string(sid)).Str("room", string(key)).Int("occupancy", room.MemberCount()).Msg("join")
}

// sendSnapshot delivers the current timer and billing state to one member.
func (c *Controller) sendSnapshot(ms core.MemberSession, sess *Session) {
	elapsed, billing := sess.Snapshot(c.Meter.Now())
	sendTo(ms.Signal(), TimerUpdateEvent{Type: TypeTimerUpdate, Elapsed: elapsed})
	sendTo(ms.Signal(), BillingUpdateEvent{
		Type:             TypeBillingUpdate,
		CustomerAmount:   billing.CustomerAmount,
		ConsultantAmount: billing.ConsultantAmount,
	})
}

// Message relays a chat message to the room. The relay gate is occupancy >= 1
// (the two-party gate only controls chat_enabled and the timer), so a lone
// participant still gets their message persisted and echoed.
func (c *Controller) Message(sid core.SessionID, text string) {
	if text == "" {
		return
	}
	key, ms, ok := c.Registry.RoomOf(sid)
	if !ok {
		return
	}
	release := c.locks.Acquire(key)
	defer release()

	room, ok := c.Rooms.Get(key)
	if !ok || room.MemberCount() < 1 {
		return
	}

	msg := domain.Message{
		ID:     uuid.NewString(),
		Sender: ms.Meta().Role,
		Text:   text,
		At:     c.Meter.Now(),
	}
	c.History.Append(key, msg)

	res := publishRoom(c.Rooms, key, ChatMessageEvent{Type: TypeChatMessage, Sender: msg.Sender, Text: msg.Text})
	c.applyPolicy(key, room, res)
}

// Pause freezes the timer and notifies the room with the given reason.
func (c *Controller) Pause(key domain.RoomKey, reason string) {
	release := c.locks.Acquire(key)
	defer release()

	sess, ok := c.Sessions.Get(key)
	if !ok {
		return
	}
	publishRoom(c.Rooms, key, ChatPausedEvent{Type: TypeChatPaused, Reason: reason})
	c.Meter.Pause(key, sess)
}

// Resume restarts a paused timer. A resume on a non-paused room, or on a room
// missing its second participant, is a no-op.
func (c *Controller) Resume(key domain.RoomKey) {
	release := c.locks.Acquire(key)
	defer release()

	sess, ok := c.Sessions.Get(key)
	if !ok {
		return
	}
	room, ok := c.Rooms.Get(key)
	if !ok || room.MemberCount() != 2 {
		return
	}
	if c.Meter.Resume(key, sess) {
		publishRoom(c.Rooms, key, ChatResumedEvent{Type: TypeChatResumed, Message: msgConsultResumed})
	}
}

// End terminates the consultation: a system message to the initiator, a
// distinct one to the remaining participant, the terminal ended notification
// with the redirect flag to all, then full teardown.
func (c *Controller) End(sid core.SessionID, key domain.RoomKey) {
	c.end(sid, key, msgEndedByYou, msgEndedByPeer)
}

// EndWithoutCredits is identical teardown to End, but both parties are told
// no billing changes occurred.
func (c *Controller) EndWithoutCredits(sid core.SessionID, key domain.RoomKey) {
	c.end(sid, key, msgEndedNoCredits, msgEndedNoCredits)
}

func (c *Controller) end(sid core.SessionID, key domain.RoomKey, toInitiator, toPeer string) {
	release := c.locks.Acquire(key)
	defer release()

	if _, ok := c.Sessions.Get(key); !ok {
		return
	}
	if room, ok := c.Rooms.Get(key); ok {
		if initiator, ok := encode(SystemMessageEvent{Type: TypeSystemMessage, Text: toInitiator}); ok {
			_ = room.SendTo(sid, initiator)
		}
		if peer, ok := encode(SystemMessageEvent{Type: TypeSystemMessage, Text: toPeer}); ok {
			room.SendExcept(sid, peer)
		}
	}
	publishRoom(c.Rooms, key, ChatEndedEvent{Type: TypeChatEnded, Redirect: true})

	// Evict both members before teardown so a message sent after chat_ended
	// cannot recreate history under the dead key.
	if room, ok := c.Rooms.Get(key); ok {
		for _, snap := range c.Registry.MembersOfRoom(key) {
			room.RemoveMember(snap.SID)
			c.Registry.RemoveRoom(snap.SID)
		}
	}
	c.teardown(key)
	log.Info().Str("module", "app.lifecycle").Str("sid", string(sid)).Str("room", string(key)).Msg("consultation ended")
}

// Leave removes the participant from their room without dropping the
// connection, re-evaluating gating the same way a disconnect does.
func (c *Controller) Leave(sid core.SessionID) {
	key, _, ok := c.Registry.RoomOf(sid)
	if !ok {
		return
	}
	c.Registry.RemoveRoom(sid)
	c.dropFromRoom(sid, key)
}

// Disconnect is the implicit leave on connection drop.
func (c *Controller) Disconnect(sid core.SessionID) {
	key, _, ok := c.Registry.RoomOf(sid)
	c.Registry.Unbind(sid)
	if !ok {
		return
	}
	c.dropFromRoom(sid, key)
}

func (c *Controller) dropFromRoom(sid core.SessionID, key domain.RoomKey) {
	release := c.locks.Acquire(key)
	defer release()

	room, ok := c.Rooms.Get(key)
	if !ok {
		return
	}
	room.RemoveMember(sid)

	switch n := room.MemberCount(); {
	case n == 0:
		// Silent teardown: no system messages on disconnect-to-zero.
		c.teardown(key)
	case n < 2:
		publishRoom(c.Rooms, key, ChatEnabledEvent{Type: TypeChatEnabled, Enabled: false})
		if sess, ok := c.Sessions.Get(key); ok {
			c.Meter.Pause(key, sess)
		}
	}
	log.Info().Str("module", "app.lifecycle").Str("sid", string(sid)).Str("room", string(key)).Int("occupancy", room.MemberCount()).Msg("left room")
}

// teardown destroys session, billing, and history together; no partial
// teardown state is observable afterwards.
func (c *Controller) teardown(key domain.RoomKey) {
	if sess, ok := c.Sessions.Get(key); ok {
		c.Meter.Stop(key, sess)
	}
	c.Sessions.Delete(key)
	c.History.Clear(key)
	if room, ok := c.Rooms.Get(key); ok && room.MemberCount() == 0 {
		c.Rooms.StopRoom(key)
	}
}

func (c *Controller) applyPolicy(key domain.RoomKey, room core.RoomService, res core.PublishResult) {
	if c.Policy == nil {
		return
	}
	for _, slow := range res.Dropped {
		switch c.Policy.OnBackpressure(room, slow) {
		case KickMember:
			for _, snap := range c.Registry.MembersOfRoom(key) {
				if snap.Session == slow {
					c.Registry.Cancel(snap.SID)
				}
			}
		case DropFrame, NoAction:
		}
	}
}
