package app

import (
	"sync"

	"github.com/astelio/consult/internal/domain"
)

// roomLocks serializes lifecycle transitions per room. Every occupancy read
// that drives a gating action (enable chat, arm or pause the timer, teardown)
// must happen while holding the room's lock, so a concurrent join and
// disconnect cannot interleave between the check and the act.
type roomLocks struct {
	mu   sync.Mutex
	held map[domain.RoomKey]*roomLock
}

type roomLock struct {
	mu   sync.Mutex
	refs int
}

// Acquire locks key and returns the release func. An entry is dropped once
// its last holder releases, so idle rooms leave nothing behind.
func (l *roomLocks) Acquire(key domain.RoomKey) func() {
	l.mu.Lock()
	if l.held == nil {
		l.held = make(map[domain.RoomKey]*roomLock)
	}
	rl, ok := l.held[key]
	if !ok {
		rl = &roomLock{}
		l.held[key] = rl
	}
	rl.refs++
	l.mu.Unlock()

	rl.mu.Lock()
	return func() {
		rl.mu.Unlock()
		l.mu.Lock()
		rl.refs--
		if rl.refs == 0 {
			delete(l.held, key)
		}
		l.mu.Unlock()
	}
}
