package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/astelio/consult/internal/core"
	"github.com/astelio/consult/internal/domain"
)

func (ctl *ChatWSController) handleJoin(
	sid core.SessionID,
	conn *WsSignalConn,
	data []byte,
) {
	type joinPayload struct {
		Type string  `json:"type"`
		Room string  `json:"room"`
		Rate float64 `json:"rate,omitempty"`
	}
	var p joinPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad join payload")
		ctl.sendJSON(conn, map[string]any{
			"type":  "error",
			"error": "bad_payload",
		})
		return
	}
	if p.Room == "" {
		ctl.sendJSON(conn, map[string]any{
			"type":  "error",
			"error": "empty room",
		})
		return
	}

	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("room", p.Room).Msg("join")
	ctl.App.Join(sid, domain.RoomKey(p.Room), p.Rate)
}

func (ctl *ChatWSController) handleChatMessage(
	sid core.SessionID,
	_ *WsSignalConn,
	data []byte,
) {
	type messagePayload struct {
		Type string `json:"type"`
		Room string `json:"room,omitempty"`
		Text string `json:"text"`
	}
	var p messagePayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad message payload")
		return
	}
	if ctl.limiter != nil && !ctl.limiter.Allow(sid) {
		log.Debug().Str("module", "signal").Str("sid", string(sid)).Msg("message rate limited")
		return
	}
	ctl.App.Message(sid, p.Text)
}

func (ctl *ChatWSController) handlePause(
	sid core.SessionID,
	_ *WsSignalConn,
	data []byte,
) {
	type pausePayload struct {
		Type   string `json:"type"`
		Room   string `json:"room"`
		Reason string `json:"reason"`
	}
	var p pausePayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad pause payload")
		return
	}
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("room", p.Room).Str("reason", p.Reason).Msg("pause")
	ctl.App.Pause(ctl.roomKey(sid, p.Room), p.Reason)
}

func (ctl *ChatWSController) handleResume(
	sid core.SessionID,
	_ *WsSignalConn,
	data []byte,
) {
	type resumePayload struct {
		Type string `json:"type"`
		Room string `json:"room"`
	}
	var p resumePayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad resume payload")
		return
	}
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("room", p.Room).Msg("resume")
	ctl.App.Resume(ctl.roomKey(sid, p.Room))
}

func (ctl *ChatWSController) handleEnd(
	sid core.SessionID,
	_ *WsSignalConn,
	data []byte,
	withoutCredits bool,
) {
	type endPayload struct {
		Type string `json:"type"`
		Room string `json:"room"`
	}
	var p endPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad end payload")
		return
	}
	key := ctl.roomKey(sid, p.Room)
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("room", string(key)).Bool("without_credits", withoutCredits).Msg("end")
	if withoutCredits {
		ctl.App.EndWithoutCredits(sid, key)
		return
	}
	ctl.App.End(sid, key)
}

// handleLeave — leave the current room; the connection itself stays up.
func (ctl *ChatWSController) handleLeave(
	sid core.SessionID,
	conn *WsSignalConn,
) {
	log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("leave")
	ctl.App.Leave(sid)
	ctl.sendJSON(conn, map[string]any{
		"type": "left",
	})
}

func (ctl *ChatWSController) handlePing(
	conn *WsSignalConn,
) {
	resp := struct {
		Type string `json:"type"`
	}{
		Type: "pong",
	}
	ctl.sendJSON(conn, resp)
}

// roomKey prefers the payload's room, falling back to the sender's current one.
func (ctl *ChatWSController) roomKey(sid core.SessionID, room string) domain.RoomKey {
	if room != "" {
		return domain.RoomKey(room)
	}
	key, _, _ := ctl.App.Registry.RoomOf(sid)
	return key
}
