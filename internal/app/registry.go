package app

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/astelio/consult/internal/core"
	"github.com/astelio/consult/internal/domain"
)

type connEntry struct {
	RoomKey domain.RoomKey
	Session core.MemberSession
	Cancel  context.CancelFunc
}

// Registry tracks connected participants and which room each is in.
type Registry struct {
	mu           sync.RWMutex
	classifier   core.RoleClassifier
	entries      map[core.SessionID]*connEntry
	participants map[core.SessionID]*domain.Participant
}

func NewRegistry(classifier core.RoleClassifier) *Registry {
	return &Registry{
		classifier:   classifier,
		entries:      make(map[core.SessionID]*connEntry),
		participants: make(map[core.SessionID]*domain.Participant),
	}
}

// GetOrCreateParticipant classifies the identity on first sight. An identity
// the domain rejects (empty) is refused rather than registered.
func (r *Registry) GetOrCreateParticipant(sid core.SessionID) (*domain.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.participants[sid]; ok {
		return p, nil
	}
	role := r.classifier.Classify(domain.ParticipantID(sid))
	p, err := domain.NewParticipant(domain.ParticipantID(sid), role)
	if err != nil {
		return nil, err
	}
	r.participants[sid] = p
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("role", string(role)).Msg("created participant")
	return p, nil
}

func (r *Registry) BindSignal(sid core.SessionID, sess core.MemberSession, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[sid] = &connEntry{Session: sess, Cancel: cancel}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("bound signal")
}

func (r *Registry) GetSession(sid core.SessionID) (core.MemberSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.entries[sid]; ok {
		return e.Session, true
	}
	return nil, false
}

func (r *Registry) Unbind(sid core.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, sid)
	delete(r.participants, sid)
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("unbind session")
}

// RoomOf reports the room a connected participant currently occupies.
func (r *Registry) RoomOf(sid core.SessionID) (domain.RoomKey, core.MemberSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[sid]
	if !ok || entry.RoomKey == "" {
		return "", nil, false
	}
	return entry.RoomKey, entry.Session, true
}

func (r *Registry) UpdateRoom(sid core.SessionID, key domain.RoomKey) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[sid]
	if !ok {
		return false
	}
	entry.RoomKey = key
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("room", string(key)).Msg("updated room")
	return true
}

func (r *Registry) RemoveRoom(sid core.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.entries[sid]; ok {
		entry.RoomKey = ""
	}
}

type regSnap struct {
	SID     core.SessionID
	Session core.MemberSession
}

func (r *Registry) MembersOfRoom(key domain.RoomKey) []regSnap {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]regSnap, 0, 2)
	for sid, e := range r.entries {
		if e.RoomKey == key {
			out = append(out, regSnap{SID: sid, Session: e.Session})
		}
	}
	return out
}

// Cancel tears down the transport context of a connection, which unwinds the
// read/write pumps and triggers the normal disconnect path.
func (r *Registry) Cancel(sid core.SessionID) bool {
	r.mu.RLock()
	e, ok := r.entries[sid]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("canceled session")
	return true
}
