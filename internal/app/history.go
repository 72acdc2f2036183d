package app

import (
	"sync"

	"github.com/astelio/consult/internal/domain"
)

// History is the per-room ordered message log, append-only until teardown.
type History struct {
	mu   sync.RWMutex
	logs map[domain.RoomKey][]domain.Message
}

func NewHistory() *History {
	return &History{logs: make(map[domain.RoomKey][]domain.Message)}
}

func (h *History) Append(key domain.RoomKey, msg domain.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.logs[key] = append(h.logs[key], msg)
}

// Messages returns a copy of the room's log, empty if absent.
func (h *History) Messages(key domain.RoomKey) []domain.Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	msgs := h.logs[key]
	if len(msgs) == 0 {
		return nil
	}
	out := make([]domain.Message, len(msgs))
	copy(out, msgs)
	return out
}

func (h *History) Clear(key domain.RoomKey) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.logs, key)
}
