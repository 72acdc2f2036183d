// LOCK ORDERING INVARIANT:
// SessionStore.mu must always be acquired BEFORE Session.mu.
// Never acquire SessionStore.mu while holding Session.mu.
package app

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/astelio/consult/internal/domain"
)

// Session is the per-room metering record. Rate is fixed at first join and
// immutable for the room's life. Timer fields require mu.
type Session struct {
	Rate float64

	mu            sync.Mutex
	Status        domain.Status
	StartTime     time.Time
	PausedElapsed time.Duration
	Billing       domain.Billing

	// At most one armed tick per room. Replaced only through arm/disarm.
	cancelTick context.CancelFunc
	tickCtx    context.Context
}

// Snapshot returns elapsed whole seconds and the current billing amounts.
func (s *Session) Snapshot(now time.Time) (int64, domain.Billing) {
	s.mu.Lock()
	defer s.mu.Unlock()
	elapsed := s.PausedElapsed
	if s.Status == domain.StatusActive {
		elapsed = now.Sub(s.StartTime)
	}
	return int64(elapsed / time.Second), s.Billing
}

// SessionStore owns the room key -> Session map. Entries are created lazily
// on first join and destroyed together with billing and history.
type SessionStore struct {
	mu          sync.RWMutex
	defaultRate float64
	sessions    map[domain.RoomKey]*Session
}

func NewSessionStore(defaultRate float64) *SessionStore {
	return &SessionStore{
		defaultRate: defaultRate,
		sessions:    make(map[domain.RoomKey]*Session),
	}
}

// GetOrCreate returns the session for key, creating it with rate on first
// join. rate <= 0 applies the default. Subsequent joins never alter the rate.
func (s *SessionStore) GetOrCreate(key domain.RoomKey, rate float64) *Session {
	s.mu.RLock()
	sess, ok := s.sessions[key]
	s.mu.RUnlock()
	if ok {
		return sess
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok = s.sessions[key]; ok {
		return sess
	}
	if rate <= 0 {
		rate = s.defaultRate
	}
	sess = &Session{Rate: rate, Status: domain.StatusWaitingForPeer}
	s.sessions[key] = sess
	log.Info().Str("module", "app.sessions").Str("room", string(key)).Float64("rate", rate).Msg("created session")
	return sess
}

func (s *SessionStore) Get(key domain.RoomKey) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[key]
	return sess, ok
}

// Delete is idempotent; deleting an absent key is a no-op.
func (s *SessionStore) Delete(key domain.RoomKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, key)
}

func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
