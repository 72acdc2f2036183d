package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/astelio/consult/internal/core"
	"github.com/astelio/consult/internal/domain"
)

// Meter owns the per-room elapsed-time clock and billing computation.
//
// Amounts are re-derived from elapsed time on every tick, never accumulated
// incrementally: a missed tick changes nothing, a resumed tick jumps to the
// correct total, and rounding error cannot compound.
//
// Tick ownership discipline: a session has at most one armed tick, and a new
// tick is only armed through arm(), which cancels any predecessor first.
// Cancellation is requested under Session.mu and the running tick re-checks
// its context under the same mutex, so a tick can never act on a session
// after its cancellation was requested.
type Meter struct {
	ledger        core.CreditLedger
	rooms         core.RoomFactory
	period        time.Duration
	defaultCredit float64
	now           func() time.Time
}

func NewMeter(ledger core.CreditLedger, rooms core.RoomFactory, period time.Duration, defaultCredit float64) *Meter {
	if period <= 0 {
		period = time.Second
	}
	return &Meter{
		ledger:        ledger,
		rooms:         rooms,
		period:        period,
		defaultCredit: defaultCredit,
		now:           time.Now,
	}
}

// Now exposes the meter's clock so callers snapshot with the same time source.
func (m *Meter) Now() time.Time { return m.now() }

// EnsureRunning transitions the session to Active and arms its tick, unless
// one is already running. Called when occupancy reaches two.
func (m *Meter) EnsureRunning(key domain.RoomKey, s *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Status == domain.StatusActive && s.cancelTick != nil {
		return
	}
	s.StartTime = m.now().Add(-s.PausedElapsed)
	s.Status = domain.StatusActive
	m.arm(key, s)
	log.Info().Str("module", "app.meter").Str("room", string(key)).Dur("paused_elapsed", s.PausedElapsed).Msg("timer running")
}

// Pause freezes elapsed time and cancels the tick. Safe to call in any state;
// a session that was never Active keeps waiting for its peer.
func (m *Meter) Pause(key domain.RoomKey, s *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Status == domain.StatusActive {
		s.PausedElapsed = m.now().Sub(s.StartTime)
		s.Status = domain.StatusPaused
	}
	m.disarm(s)
	log.Info().Str("module", "app.meter").Str("room", string(key)).Str("status", s.Status.String()).Dur("paused_elapsed", s.PausedElapsed).Msg("timer paused")
}

// Resume re-anchors the clock and arms a fresh tick. Only valid from Paused;
// anything else is a no-op and reports false.
func (m *Meter) Resume(key domain.RoomKey, s *Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Status != domain.StatusPaused {
		return false
	}
	s.StartTime = m.now().Add(-s.PausedElapsed)
	s.Status = domain.StatusActive
	m.arm(key, s)
	log.Info().Str("module", "app.meter").Str("room", string(key)).Dur("paused_elapsed", s.PausedElapsed).Msg("timer resumed")
	return true
}

// Stop cancels the tick and marks the session Ended. Unconditional on every
// teardown path.
func (m *Meter) Stop(key domain.RoomKey, s *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m.disarm(s)
	s.Status = domain.StatusEnded
	log.Info().Str("module", "app.meter").Str("room", string(key)).Msg("timer stopped")
}

// arm cancels any outstanding tick before scheduling a new one.
// Caller must hold s.mu.
func (m *Meter) arm(key domain.RoomKey, s *Session) {
	if s.cancelTick != nil {
		s.cancelTick()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancelTick = cancel
	s.tickCtx = ctx
	go m.run(ctx, key, s)
}

// disarm cancels the outstanding tick, if any. Caller must hold s.mu.
func (m *Meter) disarm(s *Session) {
	if s.cancelTick != nil {
		s.cancelTick()
		s.cancelTick = nil
		s.tickCtx = nil
	}
}

func (m *Meter) run(ctx context.Context, key domain.RoomKey, s *Session) {
	t := time.NewTicker(m.period)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if !m.tick(ctx, key, s) {
				return
			}
		}
	}
}

// tick performs one billing computation. Returns false when the tick loop
// must stop (cancelled, no longer active, or credit exhausted).
func (m *Meter) tick(ctx context.Context, key domain.RoomKey, s *Session) bool {
	s.mu.Lock()
	if ctx.Err() != nil || s.Status != domain.StatusActive {
		s.mu.Unlock()
		return false
	}

	elapsed := int64(m.now().Sub(s.StartTime) / time.Second)
	total := domain.Round2(float64(elapsed) * s.Rate)
	credit := m.credit(ctx, key)

	if total > credit {
		s.Billing.CustomerAmount = credit
		s.Billing.ConsultantAmount = credit
		s.PausedElapsed = m.now().Sub(s.StartTime)
		s.Status = domain.StatusPaused
		m.disarm(s)
		billing := s.Billing
		s.mu.Unlock()

		publishRoom(m.rooms, key, BillingUpdateEvent{
			Type:             TypeBillingUpdate,
			CustomerAmount:   billing.CustomerAmount,
			ConsultantAmount: billing.ConsultantAmount,
		})
		publishRoom(m.rooms, key, ChatPausedEvent{Type: TypeChatPaused, Reason: ReasonInsufficientCredit})
		log.Warn().Str("module", "app.meter").Str("room", string(key)).Float64("total", total).Float64("credit", credit).Msg("credit exhausted, timer paused")
		return false
	}

	s.Billing.CustomerAmount = total
	s.Billing.ConsultantAmount = total
	s.mu.Unlock()

	publishRoom(m.rooms, key, TimerUpdateEvent{Type: TypeTimerUpdate, Elapsed: elapsed})
	publishRoom(m.rooms, key, BillingUpdateEvent{
		Type:             TypeBillingUpdate,
		CustomerAmount:   total,
		ConsultantAmount: total,
	})
	return true
}

func (m *Meter) credit(ctx context.Context, key domain.RoomKey) float64 {
	if m.ledger == nil {
		return m.defaultCredit
	}
	bal, err := m.ledger.Balance(ctx, key)
	if err != nil {
		// Unknown to the ledger: effectively unlimited until a real
		// ledger integration takes over.
		log.Debug().Err(err).Str("module", "app.meter").Str("room", string(key)).Msg("balance lookup failed, using default")
		return m.defaultCredit
	}
	return bal
}
